package store

import (
	"context"
	"errors"
	"math"
	"time"

	"bakerypos/internal/domain"
	"bakerypos/internal/money"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrItemNotFound = errors.New("item not found")
	ErrInvalidInput = errors.New("invalid input")
)

// TimestampLayout is fixed-width so stored instants compare correctly as text.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func ParseTimestamp(raw string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

type CatalogStore interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	GetItem(ctx context.Context, id int64) (*domain.Item, error)
	FindItemByName(ctx context.Context, name string) (*domain.Item, error)
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	DeleteItem(ctx context.Context, id int64) error
}

// CounterStore persists the per-day invoice counters.
type CounterStore interface {
	IncrementDailyCount(ctx context.Context, date string) (int, error)
	GetDailyCount(ctx context.Context, date string) (int, error)
	PruneDailyCounts(ctx context.Context, before string) (int64, error)
	ListDailyCounts(ctx context.Context) ([]domain.DailyInvoiceCounter, error)
}

type LedgerStore interface {
	// CommitSale writes the invoice and all of its lines in one transaction.
	// Every line must reference an item that still exists.
	CommitSale(ctx context.Context, invoice domain.Invoice, lines []domain.SaleLine) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	GetInvoiceAt(ctx context.Context, at time.Time) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, since time.Time) ([]domain.Invoice, error)
	ListInvoiceLines(ctx context.Context, invoiceID string) ([]domain.SaleLine, error)
	// ListSaleLines returns lines sold in [from, to), oldest first.
	ListSaleLines(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleLine, error)
	AggregateSales(ctx context.Context, from time.Time, to time.Time) ([]domain.ItemTotal, error)
}

type Repository interface {
	CatalogStore
	CounterStore
	LedgerStore
	Wipe(ctx context.Context) error
}

// PrepareSale fills the invoice totals from its lines and checks line
// arithmetic. Totals that would overflow are rejected.
func PrepareSale(invoice domain.Invoice, lines []domain.SaleLine) (domain.Invoice, error) {
	if invoice.ID == "" || invoice.Number < 1 || invoice.BusinessDate == "" || len(lines) == 0 {
		return invoice, ErrInvalidInput
	}
	invoice.LineCount = len(lines)
	invoice.ItemCount = 0
	invoice.TotalCents = 0
	for _, line := range lines {
		if line.ItemID < 1 || line.Quantity < 1 || line.UnitPriceCents < 0 {
			return invoice, ErrInvalidInput
		}
		lineTotal, ok := money.MulCents(line.UnitPriceCents, line.Quantity)
		if !ok || line.TotalCents != lineTotal {
			return invoice, ErrInvalidInput
		}
		total, ok := money.AddCents(invoice.TotalCents, lineTotal)
		if !ok || invoice.ItemCount > math.MaxInt32-line.Quantity {
			return invoice, ErrInvalidInput
		}
		invoice.TotalCents = total
		invoice.ItemCount += line.Quantity
	}
	return invoice, nil
}
