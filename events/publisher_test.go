package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"banking-ledger/events"
	"banking-ledger/shared"
)

func transferCompleted(id string) events.TransferCompletedEvent {
	return events.TransferCompletedEvent{
		BaseEvent:     events.NewBaseEvent(id, events.TransferCompletedType),
		FromAccountID: "acc-1",
		ToAccountID:   "acc-2",
		Amount:        decimal.RequireFromString("125.50"),
		Currency:      shared.TRY,
		Channel:       "INTERNAL",
		ReferenceCode: "TRX20260501ABCDEF00000001",
	}
}

func TestMemoryPublisher_KeepsOrder(t *testing.T) {
	pub := events.NewMemoryPublisher()
	ctx := context.Background()
	for _, id := range []string{"t-1", "t-2", "t-3"} {
		if err := pub.Publish(ctx, "ledger-events", transferCompleted(id)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	got := pub.Events()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, want := range []string{"t-1", "t-2", "t-3"} {
		if got[i].Event.GetBase().AggregateID != want || got[i].Stream != "ledger-events" {
			t.Errorf("event %d: got %s on %s", i, got[i].Event.GetBase().AggregateID, got[i].Stream)
		}
	}

	got[0] = events.Published{}
	if pub.Events()[0].Stream != "ledger-events" {
		t.Error("Events returned a slice sharing storage with the publisher")
	}
}

func TestLogPublisher_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	if err := (events.LogPublisher{}).Publish(context.Background(), "ledger-events", transferCompleted("t-9")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "type=TransferCompleted") || !strings.Contains(out, `"amount":"125.5"`) {
		t.Errorf("unexpected log line: %s", out)
	}
}

func TestRedisStreamPublisher_AppendsToStream(t *testing.T) {
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
	stream := "test-ledger-events"
	client.Del(ctx, stream)
	t.Cleanup(func() { client.Del(context.Background(), stream) })

	pub := events.NewRedisStreamPublisher(client, 100)
	if err := pub.Publish(ctx, stream, transferCompleted("t-42")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgs, err := client.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 stream entry, got %d", len(msgs))
	}
	values := msgs[0].Values
	if values["type"] != "TransferCompleted" || values["aggregate_id"] != "t-42" {
		t.Errorf("unexpected stream fields: %v", values)
	}
	var decoded events.TransferCompletedEvent
	if err := json.Unmarshal([]byte(values["event"].(string)), &decoded); err != nil {
		t.Fatalf("event payload is not JSON: %v", err)
	}
	if decoded.ReferenceCode != "TRX20260501ABCDEF00000001" {
		t.Errorf("unexpected reference code %q", decoded.ReferenceCode)
	}
}
