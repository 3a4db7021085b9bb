package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"banking-ledger/domain"
	"banking-ledger/shared"
)

// RateCache is a read-through Redis cache in front of a RateStore. Cache
// failures never fail a lookup; they fall through to the backing store.
type RateCache struct {
	next   RateStore
	client *redis.Client
	ttl    time.Duration
}

func NewRateCache(next RateStore, client *redis.Client, ttl time.Duration) *RateCache {
	return &RateCache{next: next, client: client, ttl: ttl}
}

func rateKey(base, currency shared.Currency) string {
	return fmt.Sprintf("rate:%s:%s", base, currency)
}

func ratesKey(base shared.Currency) string {
	return fmt.Sprintf("rates:%s", base)
}

func (c *RateCache) LatestRate(ctx context.Context, base, currency shared.Currency) (domain.ExchangeRate, error) {
	key := rateKey(base, currency)
	var cached domain.ExchangeRate
	if c.get(ctx, key, &cached) {
		return cached, nil
	}
	rate, err := c.next.LatestRate(ctx, base, currency)
	if err != nil {
		return domain.ExchangeRate{}, err
	}
	c.set(ctx, key, rate)
	return rate, nil
}

func (c *RateCache) LatestRates(ctx context.Context, base shared.Currency) ([]domain.ExchangeRate, error) {
	key := ratesKey(base)
	var cached []domain.ExchangeRate
	if c.get(ctx, key, &cached) {
		return cached, nil
	}
	rates, err := c.next.LatestRates(ctx, base)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, rates)
	return rates, nil
}

// SaveRate writes through and invalidates both cached views of the pair.
func (c *RateCache) SaveRate(ctx context.Context, rate domain.ExchangeRate) error {
	if err := c.next.SaveRate(ctx, rate); err != nil {
		return err
	}
	if err := c.client.Del(ctx, rateKey(rate.BaseCurrency, rate.Currency), ratesKey(rate.BaseCurrency)).Err(); err != nil {
		log.Printf("Warning: rate cache invalidation failed for %s/%s: %v", rate.BaseCurrency, rate.Currency, err)
	}
	return nil
}

func (c *RateCache) get(ctx context.Context, key string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Warning: rate cache read failed for %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		log.Printf("Warning: rate cache entry %s is corrupt: %v", key, err)
		return false
	}
	return true
}

func (c *RateCache) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("Warning: rate cache marshal failed for %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Printf("Warning: rate cache write failed for %s: %v", key, err)
	}
}
