package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bakerypos/internal/apperr"
	"bakerypos/internal/cache"
	"bakerypos/internal/domain"
	"bakerypos/internal/money"
)

const (
	PeriodDaily   = "daily"
	PeriodMonthly = "monthly"
)

// DailyReport totals sales per item for one business day. An empty date means
// today. A day without sales yields an empty report, not an error.
func (s *Service) DailyReport(ctx context.Context, date string) (domain.SalesReport, error) {
	now := s.now().In(s.location)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
	if strings.TrimSpace(date) != "" {
		parsed, err := time.ParseInLocation(domain.DateLayout, strings.TrimSpace(date), s.location)
		if err != nil {
			return domain.SalesReport{}, apperr.Wrap(apperr.CodeInvalidInput, err, "date must be YYYY-MM-DD").
				WithDetails(map[string]string{"date": "must be YYYY-MM-DD"})
		}
		day = parsed
	}

	label := day.Format(domain.DateLayout)
	to := day.AddDate(0, 0, 1)
	return s.cachedReport(ctx, cache.DailyKey(label), func() (domain.SalesReport, error) {
		return s.buildReport(ctx, PeriodDaily, label, day, to, to)
	})
}

// MonthlyReport covers the first of the month up to the first of the next.
// For the running month the reported end is now.
func (s *Service) MonthlyReport(ctx context.Context, month string) (domain.SalesReport, error) {
	now := s.now().In(s.location)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.location)
	if strings.TrimSpace(month) != "" {
		parsed, err := time.ParseInLocation(domain.MonthLayout, strings.TrimSpace(month), s.location)
		if err != nil {
			return domain.SalesReport{}, apperr.Wrap(apperr.CodeInvalidInput, err, "month must be YYYY-MM").
				WithDetails(map[string]string{"month": "must be YYYY-MM"})
		}
		first = parsed
	}

	label := first.Format(domain.MonthLayout)
	to := first.AddDate(0, 1, 0)
	shownTo := to
	if now.Before(to) && !now.Before(first) {
		shownTo = now
	}
	return s.cachedReport(ctx, cache.MonthlyKey(label), func() (domain.SalesReport, error) {
		return s.buildReport(ctx, PeriodMonthly, label, first, to, shownTo)
	})
}

func (s *Service) cachedReport(ctx context.Context, key string, build func() (domain.SalesReport, error)) (domain.SalesReport, error) {
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn(s.log.WithField(ctx, "key", key), "report cache read failed", err)
	}
	s.metrics.IncCacheLookup(ok)
	if ok {
		return *cached, nil
	}

	gen := s.reportGen.Load()
	report, err := build()
	if err != nil {
		return domain.SalesReport{}, err
	}
	if err := s.cache.Set(ctx, key, &report, s.cacheTTL); err != nil {
		s.log.Warn(s.log.WithField(ctx, "key", key), "report cache write failed", err)
		return report, nil
	}
	// A commit landed while building; its invalidation may have run before Set.
	if s.reportGen.Load() != gen {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.log.Warn(s.log.WithField(ctx, "key", key), "report cache invalidation failed", err)
		}
	}
	return report, nil
}

func (s *Service) buildReport(ctx context.Context, period string, label string, from time.Time, to time.Time, shownTo time.Time) (domain.SalesReport, error) {
	totals, err := s.repo.AggregateSales(ctx, from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}

	var total int64
	for _, line := range totals {
		total += line.AmountCents
	}
	return domain.SalesReport{
		Period:       period,
		Label:        label,
		From:         from,
		To:           shownTo,
		Lines:        totals,
		TotalCents:   total,
		Total:        money.Format(total),
		DisplayTotal: s.converter.Format(total),
	}, nil
}

// InvoiceHistory lists invoices created at or after since, newest first.
// A zero since lists everything.
func (s *Service) InvoiceHistory(ctx context.Context, since time.Time) ([]domain.InvoiceSummary, error) {
	invoices, err := s.repo.ListInvoices(ctx, since)
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.InvoiceSummary, 0, len(invoices))
	for _, invoice := range invoices {
		summaries = append(summaries, s.summarize(invoice))
	}
	return summaries, nil
}

// SearchInvoices filters the history by a case-insensitive match on the
// label, the bare number or the business date.
func (s *Service) SearchInvoices(ctx context.Context, since time.Time, query string) ([]domain.InvoiceSummary, error) {
	summaries, err := s.InvoiceHistory(ctx, since)
	if err != nil {
		return nil, err
	}
	query = strings.ToUpper(strings.TrimSpace(query))
	if query == "" {
		return summaries, nil
	}

	matched := summaries[:0]
	for _, summary := range summaries {
		if strings.Contains(summary.Label, query) ||
			strconv.Itoa(summary.InvoiceNumber) == strings.TrimLeft(query, "0") ||
			strings.Contains(summary.BusinessDate, query) {
			matched = append(matched, summary)
		}
	}
	return matched, nil
}

func (s *Service) InvoiceDetail(ctx context.Context, invoiceID string) (domain.InvoiceDetail, error) {
	invoice, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return domain.InvoiceDetail{}, translateStoreErr(err, fmt.Sprintf("invoice %s not found", invoiceID))
	}
	return s.detail(ctx, *invoice)
}

// InvoiceDetailAt finds the invoice recorded at exactly the given instant.
func (s *Service) InvoiceDetailAt(ctx context.Context, at time.Time) (domain.InvoiceDetail, error) {
	invoice, err := s.repo.GetInvoiceAt(ctx, at)
	if err != nil {
		return domain.InvoiceDetail{}, translateStoreErr(err, fmt.Sprintf("no invoice at %s", at.UTC().Format(time.RFC3339Nano)))
	}
	return s.detail(ctx, *invoice)
}

// SalesInRange returns the invoices with lines sold in [from, to), oldest
// first, each carrying only its lines from the range.
func (s *Service) SalesInRange(ctx context.Context, from time.Time, to time.Time) ([]domain.InvoiceDetail, error) {
	if !from.Before(to) {
		return nil, apperr.New(apperr.CodeInvalidInput, "from must be before to").
			WithDetails(map[string]string{"from": "must be before to"})
	}
	lines, err := s.repo.ListSaleLines(ctx, from, to)
	if err != nil {
		return nil, err
	}

	details := make([]domain.InvoiceDetail, 0, 8)
	index := make(map[string]int, 8)
	for _, line := range lines {
		pos, ok := index[line.InvoiceID]
		if !ok {
			invoice, err := s.repo.GetInvoice(ctx, line.InvoiceID)
			if err != nil {
				return nil, fmt.Errorf("invoice %s for line %d: %w", line.InvoiceID, line.ID, err)
			}
			details = append(details, domain.InvoiceDetail{
				InvoiceSummary: s.summarize(*invoice),
				Lines:          make([]domain.InvoiceDetailLine, 0, invoice.LineCount),
				DisplayTotal:   s.converter.Format(invoice.TotalCents),
			})
			pos = len(details) - 1
			index[line.InvoiceID] = pos
		}
		details[pos].Lines = append(details[pos].Lines, detailLine(line))
	}
	return details, nil
}

func (s *Service) SequencerStatus(ctx context.Context) (domain.SequencerStatus, error) {
	return s.sequencer.Status(ctx, s.now())
}

func (s *Service) detail(ctx context.Context, invoice domain.Invoice) (domain.InvoiceDetail, error) {
	lines, err := s.repo.ListInvoiceLines(ctx, invoice.ID)
	if err != nil {
		return domain.InvoiceDetail{}, err
	}

	detail := domain.InvoiceDetail{
		InvoiceSummary: s.summarize(invoice),
		Lines:          make([]domain.InvoiceDetailLine, 0, len(lines)),
		DisplayTotal:   s.converter.Format(invoice.TotalCents),
	}
	for _, line := range lines {
		detail.Lines = append(detail.Lines, detailLine(line))
	}
	return detail, nil
}

func detailLine(line domain.SaleLine) domain.InvoiceDetailLine {
	return domain.InvoiceDetailLine{
		ItemID:         line.ItemID,
		ItemName:       line.ItemName,
		Quantity:       line.Quantity,
		UnitPriceCents: line.UnitPriceCents,
		TotalCents:     line.TotalCents,
	}
}

func (s *Service) summarize(invoice domain.Invoice) domain.InvoiceSummary {
	return domain.InvoiceSummary{
		InvoiceID:     invoice.ID,
		Label:         invoice.Label(),
		InvoiceNumber: invoice.Number,
		BusinessDate:  invoice.BusinessDate,
		SoldAt:        invoice.CreatedAt,
		LineCount:     invoice.LineCount,
		ItemCount:     invoice.ItemCount,
		TotalCents:    invoice.TotalCents,
		Total:         money.Format(invoice.TotalCents),
	}
}
