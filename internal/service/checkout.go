package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bakerypos/internal/apperr"
	"bakerypos/internal/cache"
	"bakerypos/internal/cart"
	"bakerypos/internal/domain"
	"bakerypos/internal/money"
	"bakerypos/internal/store"
	"bakerypos/internal/xid"
)

func (s *Service) Cart() domain.CartView {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()
	return s.viewCart(s.cart)
}

// AddToCart resolves the item now and snapshots its id, name and price into
// the pending sale.
func (s *Service) AddToCart(ctx context.Context, itemID int64) (domain.CartView, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return domain.CartView{}, translateStoreErr(err, fmt.Sprintf("item %d not found", itemID))
	}

	s.cartMu.Lock()
	defer s.cartMu.Unlock()
	if _, err := s.cart.AddLine(item.ID, item.Name, item.PriceCents); err != nil {
		return domain.CartView{}, translateCartErr(err, s.cart.IndexOf(item.ID))
	}
	return s.viewCart(s.cart), nil
}

func (s *Service) RemoveCartLine(index int) (domain.CartView, error) {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()

	if err := s.cart.RemoveLine(index); err != nil {
		return domain.CartView{}, translateCartErr(err, index)
	}
	return s.viewCart(s.cart), nil
}

func (s *Service) SetCartQuantity(index int, quantity int) (domain.CartView, error) {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()

	if _, err := s.cart.SetQuantity(index, quantity); err != nil {
		return domain.CartView{}, translateCartErr(err, index)
	}
	return s.viewCart(s.cart), nil
}

func (s *Service) ClearCart() domain.CartView {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()

	s.cart.Clear()
	return s.viewCart(s.cart)
}

// Finalize commits the till's pending sale.
func (s *Service) Finalize(ctx context.Context) (domain.Receipt, error) {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()
	return s.FinalizeCart(ctx, s.cart)
}

// FinalizeCart records c as one invoice and clears it on success. The caller
// owns c for the duration of the call.
//
// The invoice number is taken first. If the ledger write then fails the number
// is not reused, so a day's sequence may have gaps but never repeats.
func (s *Service) FinalizeCart(ctx context.Context, c *cart.Cart) (domain.Receipt, error) {
	if c.IsEmpty() {
		return domain.Receipt{}, apperr.New(apperr.CodeEmptyCart, "no items in sale")
	}

	started := time.Now()
	now := s.now()
	number, err := s.sequencer.Next(ctx, now)
	if err != nil {
		s.metrics.ObserveCommit("sequencer_failed", time.Since(started))
		s.log.Error(ctx, "invoice number not issued", err)
		return domain.Receipt{}, err
	}

	cartLines := c.Lines()
	invoice := domain.Invoice{
		ID:           xid.NewInvoiceID(),
		Number:       number,
		BusinessDate: s.sequencer.BusinessDate(now),
		CreatedAt:    now.UTC(),
	}
	lines := make([]domain.SaleLine, 0, len(cartLines))
	for _, line := range cartLines {
		lines = append(lines, domain.SaleLine{
			InvoiceID:      invoice.ID,
			ItemID:         line.ItemID,
			ItemName:       line.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			TotalCents:     line.TotalCents,
			SoldAt:         invoice.CreatedAt,
		})
	}

	ctx = s.log.WithFields(ctx, map[string]any{
		"invoice":       invoice.Label(),
		"business_date": invoice.BusinessDate,
	})
	saved, err := s.repo.CommitSale(ctx, invoice, lines)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			s.metrics.ObserveCommit("item_not_found", time.Since(started))
			s.log.Warn(ctx, "sale rejected", err)
			return domain.Receipt{}, apperr.Wrap(apperr.CodeItemNotFound, err, "item no longer in catalog").
				WithDetails(map[string]any{"error": err.Error()})
		}
		s.metrics.ObserveCommit("commit_failed", time.Since(started))
		s.log.Error(ctx, "sale not recorded", err)
		return domain.Receipt{}, apperr.Wrap(apperr.CodeCommitFailed, err, "sale could not be recorded")
	}

	c.Clear()
	s.reportGen.Add(1)
	s.invalidateReports(ctx, saved.BusinessDate)
	s.metrics.ObserveCommit("ok", time.Since(started))
	s.metrics.AddSales(saved.TotalCents)
	s.log.Info(s.log.WithField(ctx, "total_cents", saved.TotalCents), "sale recorded")

	return domain.Receipt{
		InvoiceID:     saved.ID,
		InvoiceNumber: saved.Number,
		Label:         saved.Label(),
		SoldAt:        saved.CreatedAt,
		Lines:         cartLines,
		TotalCents:    saved.TotalCents,
		Total:         money.Format(saved.TotalCents),
		DisplayTotal:  s.converter.Format(saved.TotalCents),
	}, nil
}

func (s *Service) invalidateReports(ctx context.Context, businessDate string) {
	keys := []string{cache.DailyKey(businessDate)}
	if len(businessDate) >= len(domain.MonthLayout) {
		keys = append(keys, cache.MonthlyKey(businessDate[:len(domain.MonthLayout)]))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn(ctx, "report cache invalidation failed", err)
	}
}

func (s *Service) viewCart(c *cart.Cart) domain.CartView {
	total := c.Total()
	return domain.CartView{
		Lines:        c.Lines(),
		ItemCount:    c.ItemCount(),
		TotalCents:   total,
		Total:        money.Format(total),
		DisplayTotal: s.converter.Format(total),
	}
}

func translateCartErr(err error, index int) error {
	switch {
	case errors.Is(err, cart.ErrOutOfRange):
		return apperr.Wrap(apperr.CodeOutOfRange, err, fmt.Sprintf("no line at index %d", index))
	case errors.Is(err, cart.ErrInvalidQuantity):
		return apperr.Wrap(apperr.CodeInvalidInput, err, fmt.Sprintf("quantity must be between 1 and %d", cart.MaxQuantity)).
			WithDetails(map[string]string{"quantity": fmt.Sprintf("must be between 1 and %d", cart.MaxQuantity)})
	case errors.Is(err, cart.ErrAmountRange):
		return apperr.Wrap(apperr.CodeInvalidInput, err, fmt.Sprintf("line %d total is out of range", index)).
			WithDetails(map[string]string{"quantity": "line total is out of range"})
	default:
		return err
	}
}
