package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Publisher delivers committed domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

// LogPublisher writes events to the standard logger. Used when no broker is
// configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, stream string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %T: %w", event, err)
	}
	log.Printf("event stream=%s type=%s %s", stream, event.GetBase().Type, data)
	return nil
}

type Published struct {
	Stream string
	Event  Event
}

// MemoryPublisher keeps every published event in order.
type MemoryPublisher struct {
	sync.Mutex
	published []Published
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, stream string, event Event) error {
	p.Lock()
	defer p.Unlock()
	p.published = append(p.published, Published{Stream: stream, Event: event})
	return nil
}

func (p *MemoryPublisher) Events() []Published {
	p.Lock()
	defer p.Unlock()
	out := make([]Published, len(p.published))
	copy(out, p.published)
	return out
}

// RedisStreamPublisher appends events to a Redis stream with XADD.
type RedisStreamPublisher struct {
	client *redis.Client
	maxLen int64
}

func NewRedisStreamPublisher(client *redis.Client, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, maxLen: maxLen}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, stream string, event Event) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	base := event.GetBase()
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"type":         string(base.Type),
			"aggregate_id": base.AggregateID,
			"event":        eventJSON,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
