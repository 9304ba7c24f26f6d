package cache

import (
	"context"
	"time"
)

// StockCache holds derived per-product stock totals. The batch ledger stays
// the source of truth; entries are dropped whenever a product's batches change.
type StockCache interface {
	Get(ctx context.Context, productID int64) (total int, ok bool, err error)
	Set(ctx context.Context, productID int64, total int, ttl time.Duration) error
	Invalidate(ctx context.Context, productIDs ...int64) error
}

type NoopStockCache struct{}

func (NoopStockCache) Get(_ context.Context, _ int64) (int, bool, error) {
	return 0, false, nil
}

func (NoopStockCache) Set(_ context.Context, _ int64, _ int, _ time.Duration) error {
	return nil
}

func (NoopStockCache) Invalidate(_ context.Context, _ ...int64) error {
	return nil
}
