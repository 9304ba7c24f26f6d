package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type stockEntry struct {
	ProductID int64     `json:"product_id"`
	Total     int       `json:"total"`
	CachedAt  time.Time `json:"cached_at"`
}

type RedisStockCache struct {
	client *redis.Client
}

func NewRedisStockCache(addr string, password string, db int) *RedisStockCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStockCache{client: client}
}

func StockKey(productID int64) string {
	return "stock:" + strconv.FormatInt(productID, 10)
}

func (c *RedisStockCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStockCache) Close() error {
	return c.client.Close()
}

func (c *RedisStockCache) Get(ctx context.Context, productID int64) (int, bool, error) {
	val, err := c.client.Get(ctx, StockKey(productID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	var entry stockEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return 0, false, err
	}
	return entry.Total, true, nil
}

func (c *RedisStockCache) Set(ctx context.Context, productID int64, total int, ttl time.Duration) error {
	payload, err := json.Marshal(stockEntry{ProductID: productID, Total: total, CachedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, StockKey(productID), payload, ttl).Err()
}

func (c *RedisStockCache) Invalidate(ctx context.Context, productIDs ...int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, StockKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}
