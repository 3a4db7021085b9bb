package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"banking-ledger/app"
	"banking-ledger/audit"
	"banking-ledger/config"
	"banking-ledger/events"
	"banking-ledger/store"
)

// streamMaxLen caps the event and audit streams (approximate trimming).
const streamMaxLen = 100000

// runtime is one wired ledger: stores, services and sinks built from config.
type runtime struct {
	cfg     *config.Config
	svc     *app.Services
	audit   audit.Sink
	closers []func()
}

func bootstrap(ctx context.Context, envFile string) (*runtime, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, audit: audit.LogSink{}}

	var (
		db    store.Store
		rates store.RateStore
		rules store.CommissionRuleStore
	)
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			rt.Close()
			return nil, err
		}
		db, rates, rules = pg, pg, pg
		log.Printf("Using PostgreSQL store")
	default:
		mem := store.NewInMemoryStore()
		db, rates, rules = mem, mem, mem
		log.Printf("Using in-memory store")
	}

	var publisher events.Publisher = events.LogPublisher{}
	if cfg.RedisEnabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: redis at %s unreachable, running without rate cache and streams: %v", cfg.RedisAddr, err)
			_ = client.Close()
		} else {
			rt.closers = append(rt.closers, func() { _ = client.Close() })
			rates = store.NewRateCache(rates, client, cfg.RateCacheTTL)
			publisher = events.NewRedisStreamPublisher(client, streamMaxLen)
			rt.audit = audit.Multi{audit.LogSink{}, audit.NewStreamSink(publisher, cfg.AuditStream)}
			log.Printf("Redis connected at %s: rate cache ttl=%s, events -> %s, audit -> %s",
				cfg.RedisAddr, cfg.RateCacheTTL, cfg.EventStream, cfg.AuditStream)
		}
	}

	rt.svc = app.New(app.Deps{
		Store:       db,
		Rates:       rates,
		Rules:       rules,
		Publisher:   publisher,
		EventStream: cfg.EventStream,
	})
	if err := rt.svc.Accounts.EnsureSystemAccounts(ctx, cfg.SystemOwnerID); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to provision system accounts: %w", err)
	}
	return rt, nil
}

// Close releases connections in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
