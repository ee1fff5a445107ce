package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisBalanceCache implements BalanceCache on Redis. Values are decimal
// strings under "<service>:cashback-balance:<customer id>".
type RedisBalanceCache struct {
	client      redis.Cmdable
	serviceName string
	ttl         time.Duration
}

// NewRedisBalanceCache creates a balance cache on client
func NewRedisBalanceCache(client redis.Cmdable, serviceName string, ttl time.Duration) *RedisBalanceCache {
	return &RedisBalanceCache{
		client:      client,
		serviceName: serviceName,
		ttl:         ttl,
	}
}

func (c *RedisBalanceCache) key(customerID uint) string {
	return fmt.Sprintf("%s:cashback-balance:%d", c.serviceName, customerID)
}

// Get returns the cached balance and whether it was present
func (c *RedisBalanceCache) Get(ctx context.Context, customerID uint) (decimal.Decimal, bool, error) {
	raw, err := c.client.Get(ctx, c.key(customerID)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt cached balance %q: %w", raw, err)
	}
	return balance, true, nil
}

func (c *RedisBalanceCache) Set(ctx context.Context, customerID uint, balance decimal.Decimal) error {
	return c.client.Set(ctx, c.key(customerID), balance.String(), c.ttl).Err()
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, customerIDs ...uint) error {
	if len(customerIDs) == 0 {
		return nil
	}
	keys := make([]string, len(customerIDs))
	for i, id := range customerIDs {
		keys[i] = c.key(id)
	}
	return c.client.Del(ctx, keys...).Err()
}
