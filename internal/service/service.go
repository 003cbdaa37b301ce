package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bakerypos/internal/apperr"
	"bakerypos/internal/cache"
	"bakerypos/internal/cart"
	"bakerypos/internal/logger"
	"bakerypos/internal/metrics"
	"bakerypos/internal/money"
	"bakerypos/internal/sequencer"
	"bakerypos/internal/store"
)

type Options struct {
	Cache     cache.ReportCache
	CacheTTL  time.Duration
	Location  *time.Location
	Converter money.Converter
	Logger    *logger.Logger
	Metrics   *metrics.POSMetrics
	// Now overrides the clock; tests pin it.
	Now func() time.Time
}

type Service struct {
	repo      store.Repository
	sequencer *sequencer.Sequencer
	cache     cache.ReportCache
	cacheTTL  time.Duration
	location  *time.Location
	converter money.Converter
	log       *logger.Logger
	metrics   *metrics.POSMetrics
	now       func() time.Time

	// reportGen moves on every ledger change so a report built across a
	// commit is not left in the cache.
	reportGen atomic.Uint64

	// One till, one pending sale.
	cartMu sync.Mutex
	cart   *cart.Cart
}

func New(repo store.Repository, seq *sequencer.Sequencer, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NoopReportCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Converter.Currency == "" {
		opts.Converter = money.NewConverter("", money.DefaultRate)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if seq == nil {
		seq = sequencer.New(repo, sequencer.Options{
			Location: opts.Location,
			Logger:   opts.Logger,
			Metrics:  opts.Metrics,
		})
	}

	return &Service{
		repo:      repo,
		sequencer: seq,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		location:  opts.Location,
		converter: opts.Converter,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
		cart:      cart.New(),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	_, err := s.repo.GetDailyCount(ctx, s.today())
	return err
}

// Reset wipes the catalog, the ledger and the counters, then drops cached
// reports and the pending sale.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.repo.Wipe(ctx); err != nil {
		return err
	}
	s.reportGen.Add(1)
	if err := s.cache.Purge(ctx); err != nil {
		s.log.Warn(ctx, "report cache purge failed", err)
	}

	s.cartMu.Lock()
	s.cart.Clear()
	s.cartMu.Unlock()

	s.log.Info(ctx, "till data wiped")
	return nil
}

func (s *Service) today() string {
	return s.sequencer.BusinessDate(s.now())
}

// translateStoreErr maps store sentinels to coded errors; anything else is
// returned unchanged.
func translateStoreErr(err error, message string) error {
	switch {
	case err == nil:
		return nil
	case apperr.As(err) != nil:
		return err
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(apperr.CodeNotFound, err, message)
	case errors.Is(err, store.ErrItemNotFound):
		return apperr.Wrap(apperr.CodeItemNotFound, err, message)
	case errors.Is(err, store.ErrInvalidInput):
		return apperr.Wrap(apperr.CodeInvalidInput, err, message)
	default:
		return err
	}
}

// Location is the till's time zone; business dates are computed in it.
func (s *Service) Location() *time.Location {
	return s.location
}
