package xid

import (
	"fmt"

	"github.com/google/uuid"
)

func New(prefix string) string {
	id := uuid.New().String()
	if prefix == "" {
		return id
	}
	return fmt.Sprintf("%s-%s", prefix, id)
}

func NewInvoiceID() string {
	return New("inv")
}
