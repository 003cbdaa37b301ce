package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"bakerypos/internal/domain"
	"bakerypos/internal/store"
)

func newPostgresStore(t *testing.T) *Store {
	t.Helper()

	databaseURL := os.Getenv("POS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := Open(ctx, DialectPostgres, databaseURL)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestPostgresCommitSaleIsAtomic(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	name := fmt.Sprintf("Bread IT %d", stamp)
	businessDate := fmt.Sprintf("1999-%02d-%02d", stamp%12+1, stamp%28+1)
	okID := fmt.Sprintf("inv-it-ok-%d", stamp)
	badID := fmt.Sprintf("inv-it-bad-%d", stamp)

	item, err := s.CreateItem(ctx, domain.Item{Name: name, PriceCents: 200})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE invoice_id IN ($1, $2)`, okID, badID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoices WHERE id IN ($1, $2)`, okID, badID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM daily_invoice_count WHERE date = $1`, businessDate)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, item.ID)
	})

	at := time.Now().UTC().Truncate(time.Microsecond)
	_, err = s.CommitSale(ctx, domain.Invoice{ID: badID, Number: 1, BusinessDate: businessDate, CreatedAt: at}, []domain.SaleLine{
		{ItemID: item.ID, ItemName: name, Quantity: 1, UnitPriceCents: 200, TotalCents: 200},
		{ItemID: -1, ItemName: "Ghost", Quantity: 1, UnitPriceCents: 100, TotalCents: 100},
	})
	if !errors.Is(err, store.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if _, err := s.GetInvoice(ctx, badID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected failed invoice to be absent, got %v", err)
	}

	saved, err := s.CommitSale(ctx, domain.Invoice{ID: okID, Number: 2, BusinessDate: businessDate, CreatedAt: at}, []domain.SaleLine{
		{ItemID: item.ID, ItemName: name, Quantity: 3, UnitPriceCents: 200, TotalCents: 600},
	})
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	if saved.TotalCents != 600 || saved.ItemCount != 3 {
		t.Fatalf("unexpected saved invoice: %+v", saved)
	}

	lines, err := s.ListInvoiceLines(ctx, okID)
	if err != nil {
		t.Fatalf("list lines: %v", err)
	}
	if len(lines) != 1 || !lines[0].SoldAt.Equal(at) {
		t.Fatalf("unexpected lines: %+v", lines)
	}
}

func TestPostgresDailyCountUnderConcurrency(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	date := fmt.Sprintf("1998-%02d-%02d", stamp%12+1, stamp%28+1)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM daily_invoice_count WHERE date = $1`, date)
	})

	const callers = 40
	numbers := make([]int, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			n, err := s.IncrementDailyCount(ctx, date)
			if err != nil {
				return err
			}
			numbers[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("increment: %v", err)
	}

	seen := make(map[int]bool, callers)
	for _, n := range numbers {
		if n < 1 || n > callers || seen[n] {
			t.Fatalf("unexpected or duplicate number %d in %v", n, numbers)
		}
		seen[n] = true
	}
}
