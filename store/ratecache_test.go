package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"banking-ledger/domain"
	"banking-ledger/shared"
	"banking-ledger/store"
)

// countingRates records how often the cache falls through.
type countingRates struct {
	*store.InMemoryStore
	latestCalls int
}

func (c *countingRates) LatestRate(ctx context.Context, base, currency shared.Currency) (domain.ExchangeRate, error) {
	c.latestCalls++
	return c.InMemoryStore.LatestRate(ctx, base, currency)
}

func TestRateCache_ReadThroughAndInvalidate(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	client.Del(ctx, "rate:TRY:CHF", "rates:TRY")

	backing := &countingRates{InMemoryStore: store.NewInMemoryStore()}
	cache := store.NewRateCache(backing, client, time.Minute)

	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := cache.SaveRate(ctx, domain.ExchangeRate{BaseCurrency: shared.TRY, Currency: shared.CHF, BuyRate: dec("38.1"), SellRate: dec("38.9"), EffectiveDate: day}); err != nil {
		t.Fatalf("SaveRate failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		rate, err := cache.LatestRate(ctx, shared.TRY, shared.CHF)
		if err != nil {
			t.Fatalf("LatestRate failed: %v", err)
		}
		if !rate.SellRate.Equal(dec("38.9")) {
			t.Errorf("expected 38.9, got %s", rate.SellRate)
		}
	}
	if backing.latestCalls != 1 {
		t.Errorf("expected one backing lookup, got %d", backing.latestCalls)
	}

	if err := cache.SaveRate(ctx, domain.ExchangeRate{BaseCurrency: shared.TRY, Currency: shared.CHF, BuyRate: dec("39"), SellRate: dec("40"), EffectiveDate: day.AddDate(0, 0, 1)}); err != nil {
		t.Fatalf("SaveRate failed: %v", err)
	}
	rate, _ := cache.LatestRate(ctx, shared.TRY, shared.CHF)
	if !rate.SellRate.Equal(dec("40")) {
		t.Errorf("stale rate served after SaveRate: %s", rate.SellRate)
	}
}
