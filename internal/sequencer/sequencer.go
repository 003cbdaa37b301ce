package sequencer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bakerypos/internal/apperr"
	"bakerypos/internal/domain"
	"bakerypos/internal/logger"
	"bakerypos/internal/metrics"
	"bakerypos/internal/store"
)

const DefaultRetentionDays = 30

type Options struct {
	RetentionDays int
	Location      *time.Location
	Logger        *logger.Logger
	Metrics       *metrics.POSMetrics
}

// Sequencer issues per-day invoice numbers starting at 1.
type Sequencer struct {
	mu        sync.Mutex
	counters  store.CounterStore
	retention int
	location  *time.Location
	log       *logger.Logger
	metrics   *metrics.POSMetrics
}

func New(counters store.CounterStore, opts Options) *Sequencer {
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Sequencer{
		counters:  counters,
		retention: opts.RetentionDays,
		location:  opts.Location,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}
}

// BusinessDate is the calendar day of now in the till's location.
func (s *Sequencer) BusinessDate(now time.Time) string {
	return now.In(s.location).Format(domain.DateLayout)
}

// Next prunes expired counters and returns the next number for the day of now.
// A prune failure is logged and does not block issuance; an increment failure
// is returned as SEQUENCER_FAILED.
func (s *Sequencer) Next(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	date := s.BusinessDate(now)
	cutoff := s.cutoff(now)
	removed, err := s.counters.PruneDailyCounts(ctx, cutoff)
	if err != nil {
		s.metrics.IncSequencerError("prune")
		s.log.Warn(s.log.WithField(ctx, "cutoff", cutoff), "invoice counter prune failed", err)
	} else if removed > 0 {
		s.log.Debug(s.log.WithFields(ctx, map[string]any{"cutoff": cutoff, "removed": removed}), "pruned invoice counters")
	}

	number, err := s.counters.IncrementDailyCount(ctx, date)
	if err != nil {
		s.metrics.IncSequencerError("increment")
		return 0, apperr.Wrap(apperr.CodeSequencerFailed, err, fmt.Sprintf("issue invoice number for %s", date))
	}
	s.metrics.IncInvoiceIssued()
	return number, nil
}

// Current returns the last number issued for the day of now, 0 when none.
func (s *Sequencer) Current(ctx context.Context, now time.Time) (int, error) {
	date := s.BusinessDate(now)
	count, err := s.counters.GetDailyCount(ctx, date)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeSequencerFailed, err, fmt.Sprintf("read invoice counter for %s", date))
	}
	return count, nil
}

func (s *Sequencer) Status(ctx context.Context, now time.Time) (domain.SequencerStatus, error) {
	current, err := s.Current(ctx, now)
	if err != nil {
		return domain.SequencerStatus{}, err
	}
	counters, err := s.counters.ListDailyCounts(ctx)
	if err != nil {
		return domain.SequencerStatus{}, apperr.Wrap(apperr.CodeSequencerFailed, err, "list invoice counters")
	}
	return domain.SequencerStatus{
		Date:     s.BusinessDate(now),
		Current:  current,
		Next:     domain.InvoiceLabel(current + 1),
		Counters: counters,
	}, nil
}

// cutoff is the oldest date kept; counters dated before it are pruned.
func (s *Sequencer) cutoff(now time.Time) string {
	local := now.In(s.location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	return day.AddDate(0, 0, -s.retention).Format(domain.DateLayout)
}
