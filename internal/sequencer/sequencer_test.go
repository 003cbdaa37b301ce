package sequencer

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"bakerypos/internal/apperr"
	"bakerypos/internal/domain"
	"bakerypos/internal/metrics"
	"bakerypos/internal/store/memory"
)

type failingCounters struct {
	*memory.Store
	pruneErr     error
	incrementErr error
	increments   int
}

func (f *failingCounters) PruneDailyCounts(ctx context.Context, before string) (int64, error) {
	if f.pruneErr != nil {
		return 0, f.pruneErr
	}
	return f.Store.PruneDailyCounts(ctx, before)
}

func (f *failingCounters) IncrementDailyCount(ctx context.Context, date string) (int, error) {
	f.increments++
	if f.incrementErr != nil {
		return 0, f.incrementErr
	}
	return f.Store.IncrementDailyCount(ctx, date)
}

func TestNextConcurrentCallersGetUniqueIncreasingNumbers(t *testing.T) {
	seq := New(memory.New(), Options{Location: time.UTC})
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	const callers = 200
	numbers := make([]int, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			n, err := seq.Next(context.Background(), now)
			numbers[i] = n
			return err
		})
	}
	require.NoError(t, g.Wait())

	sort.Ints(numbers)
	for i, n := range numbers {
		require.Equal(t, i+1, n)
	}

	current, err := seq.Current(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, callers, current)
}

func TestNextStartsAtOneOnNewDay(t *testing.T) {
	seq := New(memory.New(), Options{Location: time.UTC})
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := seq.Next(ctx, day)
		require.NoError(t, err)
	}

	n, err := seq.Next(ctx, day.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNextUsesLocationForBusinessDate(t *testing.T) {
	beirut := time.FixedZone("EEST", 3*60*60)
	seq := New(memory.New(), Options{Location: beirut})

	// 22:30 UTC is already the next day at the till.
	now := time.Date(2024, 5, 1, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-05-02", seq.BusinessDate(now))
}

func TestNextPrunesCountersOutsideRetention(t *testing.T) {
	counters := memory.New()
	ctx := context.Background()
	for _, date := range []string{"2024-03-01", "2024-04-01", "2024-04-02"} {
		_, err := counters.IncrementDailyCount(ctx, date)
		require.NoError(t, err)
	}

	seq := New(counters, Options{Location: time.UTC})
	_, err := seq.Next(ctx, time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	remaining, err := counters.ListDailyCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.DailyInvoiceCounter{
		{Date: "2024-04-02", Count: 1},
		{Date: "2024-05-02", Count: 1},
	}, remaining)
}

func TestNextPruneFailureDoesNotBlockIssuance(t *testing.T) {
	reg := prometheus.NewRegistry()
	counters := &failingCounters{Store: memory.New(), pruneErr: errors.New("disk busy")}
	seq := New(counters, Options{Location: time.UTC, Metrics: metrics.New(reg)})

	n, err := seq.Next(context.Background(), time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNextIncrementFailureIsSequencerFailed(t *testing.T) {
	counters := &failingCounters{Store: memory.New(), incrementErr: errors.New("database is locked")}
	seq := New(counters, Options{Location: time.UTC})

	n, err := seq.Next(context.Background(), time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Zero(t, n)
	assert.True(t, apperr.IsCode(err, apperr.CodeSequencerFailed))
	assert.ErrorIs(t, err, counters.incrementErr)
}

func TestStatusReportsNextLabel(t *testing.T) {
	seq := New(memory.New(), Options{Location: time.UTC})
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	_, err := seq.Next(ctx, now)
	require.NoError(t, err)

	status, err := seq.Status(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", status.Date)
	assert.Equal(t, 1, status.Current)
	assert.Equal(t, "INV-0002", status.Next)
	assert.Len(t, status.Counters, 1)
}
