package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewInvoiceIDIsPrefixedUUID(t *testing.T) {
	id := NewInvoiceID()
	if !strings.HasPrefix(id, "inv-") {
		t.Fatalf("expected inv- prefix, got %s", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "inv-")); err != nil {
		t.Fatalf("expected uuid suffix, got %s: %v", id, err)
	}
	if NewInvoiceID() == id {
		t.Fatalf("expected unique ids")
	}
}

func TestNewWithoutPrefix(t *testing.T) {
	if _, err := uuid.Parse(New("")); err != nil {
		t.Fatalf("expected bare uuid: %v", err)
	}
}
