package cache

import (
	"context"
	"time"

	"bakerypos/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.SalesReport, bool, error)
	Set(ctx context.Context, key string, value *domain.SalesReport, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Purge drops every cached report.
	Purge(ctx context.Context) error
}

func DailyKey(date string) string {
	return "report:daily:" + date
}

func MonthlyKey(month string) string {
	return "report:monthly:" + month
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.SalesReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.SalesReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Delete(_ context.Context, _ ...string) error {
	return nil
}

func (NoopReportCache) Purge(_ context.Context) error {
	return nil
}
