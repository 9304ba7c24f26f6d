package cache

import (
	"context"
	"testing"
	"time"
)

func TestStockKey(t *testing.T) {
	if got := StockKey(42); got != "stock:42" {
		t.Fatalf("expected stock:42, got %s", got)
	}
}

func TestNoopStockCacheNeverHits(t *testing.T) {
	var c StockCache = NoopStockCache{}
	ctx := context.Background()

	if err := c.Set(ctx, 1, 10, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := c.Get(ctx, 1); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Invalidate(ctx, 1, 2); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
}
