package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/ctfledger/internal/domain"
)

// OpenInterestCache implements domain.OpenInterestCache using plain Redis
// strings. The ledger writes through on every applied delta, so values never
// go stale and carry no TTL.
//
// Key schema:
//
//	oi:market:{conditionID} - decimal amount
//	oi:global               - decimal amount
type OpenInterestCache struct {
	rdb *redis.Client
}

// NewOpenInterestCache creates an OpenInterestCache backed by the given
// Client.
func NewOpenInterestCache(c *Client) *OpenInterestCache {
	return &OpenInterestCache{rdb: c.Underlying()}
}

func marketOIKey(conditionID string) string { return "oi:market:" + conditionID }

const globalOIKey = "oi:global"

// SetMarket stores a market's open-interest total.
func (oc *OpenInterestCache) SetMarket(ctx context.Context, oi domain.MarketOpenInterest) error {
	if err := oc.rdb.Set(ctx, marketOIKey(oi.ConditionID), oi.Amount.String(), 0).Err(); err != nil {
		return fmt.Errorf("redis: set market open interest %s: %w", oi.ConditionID, err)
	}
	return nil
}

// GetMarket retrieves a market's open-interest total. Returns
// domain.ErrNotFound when the key does not exist.
func (oc *OpenInterestCache) GetMarket(ctx context.Context, conditionID string) (domain.MarketOpenInterest, error) {
	val, err := oc.rdb.Get(ctx, marketOIKey(conditionID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.MarketOpenInterest{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.MarketOpenInterest{}, fmt.Errorf("redis: get market open interest %s: %w", conditionID, err)
	}

	amount, ok := new(big.Int).SetString(val, 10)
	if !ok {
		return domain.MarketOpenInterest{}, fmt.Errorf("redis: bad market open interest value %q for %s", val, conditionID)
	}
	return domain.MarketOpenInterest{ConditionID: conditionID, Amount: amount}, nil
}

// SetGlobal stores the global open-interest total.
func (oc *OpenInterestCache) SetGlobal(ctx context.Context, oi domain.GlobalOpenInterest) error {
	if err := oc.rdb.Set(ctx, globalOIKey, oi.Amount.String(), 0).Err(); err != nil {
		return fmt.Errorf("redis: set global open interest: %w", err)
	}
	return nil
}

// GetGlobal retrieves the global open-interest total.
func (oc *OpenInterestCache) GetGlobal(ctx context.Context) (domain.GlobalOpenInterest, error) {
	val, err := oc.rdb.Get(ctx, globalOIKey).Result()
	if errors.Is(err, redis.Nil) {
		return domain.GlobalOpenInterest{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.GlobalOpenInterest{}, fmt.Errorf("redis: get global open interest: %w", err)
	}

	amount, ok := new(big.Int).SetString(val, 10)
	if !ok {
		return domain.GlobalOpenInterest{}, fmt.Errorf("redis: bad global open interest value %q", val)
	}
	return domain.GlobalOpenInterest{Amount: amount}, nil
}
