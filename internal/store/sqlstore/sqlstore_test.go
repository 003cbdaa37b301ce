package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakerypos/internal/domain"
	"bakerypos/internal/store"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", filepath.Join(t.TempDir(), "bakery.db"))
	ctx := context.Background()
	s, err := Open(ctx, DialectSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(ctx, nil))
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.Migrate(context.Background(), nil))
}

func TestItemLifecycle(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	created, err := s.CreateItem(ctx, domain.Item{Name: "Bread", PriceCents: 200, Image: []byte{0x89, 0x50}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, []byte{0x89, 0x50}, created.Image)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = s.CreateItem(ctx, domain.Item{Name: "Cake", PriceCents: 600})
	require.NoError(t, err)

	created.Name = "Sourdough"
	created.PriceCents = 350
	created.Image = nil
	updated, err := s.UpdateItem(ctx, *created)
	require.NoError(t, err)
	assert.Equal(t, "Sourdough", updated.Name)
	assert.Equal(t, int64(350), updated.PriceCents)
	assert.Nil(t, updated.Image)

	found, err := s.FindItemByName(ctx, "  sourdough ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	items, err := s.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Sourdough", items[0].Name)
	assert.Equal(t, "Cake", items[1].Name)

	require.NoError(t, s.DeleteItem(ctx, created.ID))
	_, err = s.GetItem(ctx, created.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.DeleteItem(ctx, created.ID), store.ErrNotFound)

	_, err = s.UpdateItem(ctx, domain.Item{ID: 42, Name: "Nothing", PriceCents: 1})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDailyCountIncrementsAndPrunes(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	current, err := s.GetDailyCount(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Zero(t, current)

	for want := 1; want <= 3; want++ {
		got, err := s.IncrementDailyCount(ctx, "2024-05-01")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = s.IncrementDailyCount(ctx, "2024-03-15")
	require.NoError(t, err)

	removed, err := s.PruneDailyCounts(ctx, "2024-04-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	counters, err := s.ListDailyCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.DailyInvoiceCounter{{Date: "2024-05-01", Count: 3}}, counters)
}

func TestDailyCountConcurrentCallersGetDistinctNumbers(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	const callers = 50
	results := make(chan int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.IncrementDailyCount(ctx, "2024-05-01")
			if err != nil {
				t.Errorf("increment failed: %v", err)
				return
			}
			results <- n
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool, callers)
	for n := range results {
		assert.False(t, seen[n], "duplicate number %d", n)
		seen[n] = true
	}
	assert.Len(t, seen, callers)
	for n := 1; n <= callers; n++ {
		assert.True(t, seen[n], "missing number %d", n)
	}
}

func TestCommitSaleRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	bread, err := s.CreateItem(ctx, domain.Item{Name: "Bread", PriceCents: 200})
	require.NoError(t, err)
	cake, err := s.CreateItem(ctx, domain.Item{Name: "Cake", PriceCents: 600})
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 9, 30, 15, 123456789, time.UTC)
	saved, err := s.CommitSale(ctx, domain.Invoice{ID: "inv-a", Number: 1, BusinessDate: "2024-05-01", CreatedAt: at}, []domain.SaleLine{
		{ItemID: bread.ID, ItemName: "Bread", Quantity: 2, UnitPriceCents: 200, TotalCents: 400},
		{ItemID: cake.ID, ItemName: "Cake", Quantity: 1, UnitPriceCents: 600, TotalCents: 600},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), saved.TotalCents)
	assert.Equal(t, 3, saved.ItemCount)
	assert.Equal(t, 2, saved.LineCount)

	invoice, err := s.GetInvoice(ctx, "inv-a")
	require.NoError(t, err)
	assert.True(t, invoice.CreatedAt.Equal(at))
	assert.Equal(t, 1, invoice.Number)

	byTime, err := s.GetInvoiceAt(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, "inv-a", byTime.ID)

	_, err = s.GetInvoiceAt(ctx, at.Add(time.Nanosecond))
	require.ErrorIs(t, err, store.ErrNotFound)

	lines, err := s.ListInvoiceLines(ctx, "inv-a")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.True(t, line.SoldAt.Equal(at), "lines share one timestamp")
	}
	assert.Equal(t, int64(200), lines[0].UnitPriceCents)
	assert.Equal(t, int64(600), lines[1].UnitPriceCents)

	inRange, err := s.ListSaleLines(ctx, at, at.Add(time.Nanosecond))
	require.NoError(t, err)
	assert.Len(t, inRange, 2)
	outside, err := s.ListSaleLines(ctx, at.Add(time.Nanosecond), at.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, outside)

	totals, err := s.AggregateSales(ctx, at.Truncate(24*time.Hour), at.Truncate(24*time.Hour).Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemTotal{
		{ItemID: bread.ID, ItemName: "Bread", Quantity: 2, AmountCents: 400},
		{ItemID: cake.ID, ItemName: "Cake", Quantity: 1, AmountCents: 600},
	}, totals)
}

func TestCommitSaleWithMissingItemWritesNothing(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	bread, err := s.CreateItem(ctx, domain.Item{Name: "Bread", PriceCents: 200})
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	_, err = s.CommitSale(ctx, domain.Invoice{ID: "inv-b", Number: 1, BusinessDate: "2024-05-01", CreatedAt: at}, []domain.SaleLine{
		{ItemID: bread.ID, ItemName: "Bread", Quantity: 1, UnitPriceCents: 200, TotalCents: 200},
		{ItemID: 77, ItemName: "Ghost", Quantity: 1, UnitPriceCents: 100, TotalCents: 100},
	})
	require.True(t, errors.Is(err, store.ErrItemNotFound), "got %v", err)

	invoices, err := s.ListInvoices(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, invoices)

	lines, err := s.ListInvoiceLines(ctx, "inv-b")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestCommitSaleRejectsDuplicateNumberForDay(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	bread, err := s.CreateItem(ctx, domain.Item{Name: "Bread", PriceCents: 200})
	require.NoError(t, err)
	line := domain.SaleLine{ItemID: bread.ID, ItemName: "Bread", Quantity: 1, UnitPriceCents: 200, TotalCents: 200}
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	_, err = s.CommitSale(ctx, domain.Invoice{ID: "inv-1", Number: 1, BusinessDate: "2024-05-01", CreatedAt: at}, []domain.SaleLine{line})
	require.NoError(t, err)
	_, err = s.CommitSale(ctx, domain.Invoice{ID: "inv-2", Number: 1, BusinessDate: "2024-05-01", CreatedAt: at.Add(time.Second)}, []domain.SaleLine{line})
	require.Error(t, err)
	assert.True(t, isUniqueViolation(errors.Unwrap(err)))
}

func TestDeletedItemStillAppearsInHistory(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	bread, err := s.CreateItem(ctx, domain.Item{Name: "Bread", PriceCents: 200})
	require.NoError(t, err)
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	_, err = s.CommitSale(ctx, domain.Invoice{ID: "inv-1", Number: 1, BusinessDate: "2024-05-01", CreatedAt: at}, []domain.SaleLine{
		{ItemID: bread.ID, ItemName: "Bread", Quantity: 3, UnitPriceCents: 200, TotalCents: 600},
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteItem(ctx, bread.ID))

	lines, err := s.ListInvoiceLines(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Bread", lines[0].ItemName)

	totals, err := s.AggregateSales(ctx, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, int64(600), totals[0].AmountCents)
}

func TestListInvoicesSinceMostRecentFirst(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	bread, err := s.CreateItem(ctx, domain.Item{Name: "Bread", PriceCents: 200})
	require.NoError(t, err)
	line := domain.SaleLine{ItemID: bread.ID, ItemName: "Bread", Quantity: 1, UnitPriceCents: 200, TotalCents: 200}
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		_, err := s.CommitSale(ctx, domain.Invoice{
			ID: fmt.Sprintf("inv-%d", i), Number: i, BusinessDate: "2024-05-01", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}, []domain.SaleLine{line})
		require.NoError(t, err)
	}

	invoices, err := s.ListInvoices(ctx, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, 3, invoices[0].Number)
	assert.Equal(t, 2, invoices[1].Number)
}

func TestWipeClearsEverythingAndRestartsIDs(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	bread, err := s.CreateItem(ctx, domain.Item{Name: "Bread", PriceCents: 200})
	require.NoError(t, err)
	_, err = s.IncrementDailyCount(ctx, "2024-05-01")
	require.NoError(t, err)
	_, err = s.CommitSale(ctx, domain.Invoice{ID: "inv-1", Number: 1, BusinessDate: "2024-05-01", CreatedAt: time.Now()}, []domain.SaleLine{
		{ItemID: bread.ID, ItemName: "Bread", Quantity: 1, UnitPriceCents: 200, TotalCents: 200},
	})
	require.NoError(t, err)

	require.NoError(t, s.Wipe(ctx))

	items, err := s.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	invoices, err := s.ListInvoices(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, invoices)
	counters, err := s.ListDailyCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counters)

	again, err := s.CreateItem(ctx, domain.Item{Name: "Cake", PriceCents: 600})
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.ID)
}
