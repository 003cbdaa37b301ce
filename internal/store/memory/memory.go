package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"bakerypos/internal/domain"
	"bakerypos/internal/store"
)

var _ store.Repository = (*Store)(nil)

type Store struct {
	mu           sync.RWMutex
	items        map[int64]domain.Item
	nextItemID   int64
	counters     map[string]int
	invoicesByID map[string]domain.Invoice
	invoiceOrder []string
	lines        []domain.SaleLine
	nextLineID   int64
}

func New() *Store {
	return &Store{
		items:        make(map[int64]domain.Item),
		nextItemID:   1,
		counters:     make(map[string]int),
		invoicesByID: make(map[string]domain.Invoice),
		invoiceOrder: make([]string, 0, 64),
		lines:        make([]domain.SaleLine, 0, 256),
		nextLineID:   1,
	}
}

// NewSeeded returns a store with a small bakery catalog for demo mode.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, item := range []domain.Item{
		{Name: "Bread", PriceCents: 200},
		{Name: "Cake", PriceCents: 600},
		{Name: "Croissant", PriceCents: 150},
		{Name: "Baguette", PriceCents: 250},
		{Name: "Cheese Manakish", PriceCents: 300},
		{Name: "Zaatar Manakish", PriceCents: 200},
	} {
		item.ID = s.nextItemID
		item.CreatedAt = now
		item.UpdatedAt = now
		s.items[item.ID] = item
		s.nextItemID++
	}
	return s
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, cloneItem(item))
	}
	slices.SortFunc(items, func(a, b domain.Item) int {
		return compareInt64(a.ID, b.ID)
	})
	return items, nil
}

func (s *Store) GetItem(_ context.Context, id int64) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyItem := cloneItem(item)
	return &copyItem, nil
}

func (s *Store) FindItemByName(_ context.Context, name string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name = strings.TrimSpace(name)
	var found *domain.Item
	for _, item := range s.items {
		if !strings.EqualFold(item.Name, name) {
			continue
		}
		if found == nil || item.ID < found.ID {
			copyItem := cloneItem(item)
			found = &copyItem
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(item.Name) == "" || item.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	item.ID = s.nextItemID
	item.CreatedAt = now
	item.UpdatedAt = now
	s.nextItemID++
	s.items[item.ID] = cloneItem(item)

	created := cloneItem(item)
	return &created, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(item.Name) == "" || item.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	existing, ok := s.items[item.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now().UTC()
	s.items[item.ID] = cloneItem(item)

	updated := cloneItem(item)
	return &updated, nil
}

func (s *Store) DeleteItem(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Store) IncrementDailyCount(_ context.Context, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if date == "" {
		return 0, store.ErrInvalidInput
	}
	s.counters[date]++
	return s.counters[date], nil
}

func (s *Store) GetDailyCount(_ context.Context, date string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.counters[date], nil
}

func (s *Store) PruneDailyCounts(_ context.Context, before string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for date := range s.counters {
		if date < before {
			delete(s.counters, date)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) ListDailyCounts(_ context.Context) ([]domain.DailyInvoiceCounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counters := make([]domain.DailyInvoiceCounter, 0, len(s.counters))
	for date, count := range s.counters {
		counters = append(counters, domain.DailyInvoiceCounter{Date: date, Count: count})
	}
	slices.SortFunc(counters, func(a, b domain.DailyInvoiceCounter) int {
		return strings.Compare(a.Date, b.Date)
	})
	return counters, nil
}

func (s *Store) CommitSale(_ context.Context, invoice domain.Invoice, lines []domain.SaleLine) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepared, err := store.PrepareSale(invoice, lines)
	if err != nil {
		return nil, err
	}
	if _, exists := s.invoicesByID[prepared.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	for _, line := range lines {
		if _, ok := s.items[line.ItemID]; !ok {
			return nil, fmt.Errorf("%w: id %d", store.ErrItemNotFound, line.ItemID)
		}
	}

	soldAt := prepared.CreatedAt.UTC()
	prepared.CreatedAt = soldAt
	for _, line := range lines {
		line.ID = s.nextLineID
		line.InvoiceID = prepared.ID
		line.SoldAt = soldAt
		s.nextLineID++
		s.lines = append(s.lines, line)
	}
	s.invoicesByID[prepared.ID] = prepared
	s.invoiceOrder = append(s.invoiceOrder, prepared.ID)

	saved := prepared
	return &saved, nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, ok := s.invoicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &invoice, nil
}

func (s *Store) GetInvoiceAt(_ context.Context, at time.Time) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.invoiceOrder {
		invoice := s.invoicesByID[id]
		if invoice.CreatedAt.Equal(at) {
			return &invoice, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListInvoices(_ context.Context, since time.Time) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.Invoice, 0, len(s.invoiceOrder))
	for _, id := range s.invoiceOrder {
		invoice := s.invoicesByID[id]
		if invoice.CreatedAt.Before(since) {
			continue
		}
		invoices = append(invoices, invoice)
	}
	slices.SortStableFunc(invoices, func(a, b domain.Invoice) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return b.Number - a.Number
	})
	return invoices, nil
}

func (s *Store) ListInvoiceLines(_ context.Context, invoiceID string) ([]domain.SaleLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]domain.SaleLine, 0, 8)
	for _, line := range s.lines {
		if line.InvoiceID == invoiceID {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (s *Store) ListSaleLines(_ context.Context, from time.Time, to time.Time) ([]domain.SaleLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]domain.SaleLine, 0, 32)
	for _, line := range s.lines {
		if line.SoldAt.Before(from) || !line.SoldAt.Before(to) {
			continue
		}
		lines = append(lines, line)
	}
	slices.SortStableFunc(lines, func(a, b domain.SaleLine) int {
		if c := a.SoldAt.Compare(b.SoldAt); c != 0 {
			return c
		}
		return compareInt64(a.ID, b.ID)
	})
	return lines, nil
}

func (s *Store) AggregateSales(_ context.Context, from time.Time, to time.Time) ([]domain.ItemTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		id   int64
		name string
	}
	totals := make(map[key]*domain.ItemTotal)
	for _, line := range s.lines {
		if line.SoldAt.Before(from) || !line.SoldAt.Before(to) {
			continue
		}
		k := key{id: line.ItemID, name: line.ItemName}
		entry, ok := totals[k]
		if !ok {
			entry = &domain.ItemTotal{ItemID: line.ItemID, ItemName: line.ItemName}
			totals[k] = entry
		}
		entry.Quantity += int64(line.Quantity)
		entry.AmountCents += line.TotalCents
	}

	result := make([]domain.ItemTotal, 0, len(totals))
	for _, entry := range totals {
		result = append(result, *entry)
	}
	slices.SortFunc(result, func(a, b domain.ItemTotal) int {
		if c := strings.Compare(a.ItemName, b.ItemName); c != 0 {
			return c
		}
		return compareInt64(a.ItemID, b.ItemID)
	})
	return result, nil
}

func (s *Store) Wipe(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[int64]domain.Item)
	s.nextItemID = 1
	s.counters = make(map[string]int)
	s.invoicesByID = make(map[string]domain.Invoice)
	s.invoiceOrder = s.invoiceOrder[:0]
	s.lines = s.lines[:0]
	s.nextLineID = 1
	return nil
}

func cloneItem(item domain.Item) domain.Item {
	if item.Image != nil {
		item.Image = slices.Clone(item.Image)
	}
	return item
}

func compareInt64(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
