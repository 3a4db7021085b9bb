package audit_test

import (
	"context"
	"errors"
	"testing"

	"banking-ledger/audit"
	"banking-ledger/domain"
	"banking-ledger/events"
)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, events.Event) error {
	return errors.New("broker down")
}

func TestNewEntry(t *testing.T) {
	ok := audit.NewEntry(audit.ActionDeposit, audit.EntityTransfer, "t-1", "alice", nil)
	if !ok.Success || ok.ErrorCode != "" || ok.ID == "" {
		t.Errorf("unexpected success entry: %+v", ok)
	}

	err := domain.NewDomainError(domain.CodeInsufficientFunds, "short by 10")
	failed := audit.NewEntry(audit.ActionWithdraw, audit.EntityAccount, "a-1", "alice", err)
	if failed.Success {
		t.Error("expected a failed entry")
	}
	if failed.ErrorCode != domain.CodeInsufficientFunds {
		t.Errorf("expected INSUFFICIENT_FUNDS, got %s", failed.ErrorCode)
	}

	infra := audit.NewEntry(audit.ActionWithdraw, audit.EntityAccount, "a-1", "", errors.New("connection reset"))
	if infra.ErrorCode != domain.CodeInfrastructure {
		t.Errorf("expected INFRASTRUCTURE, got %s", infra.ErrorCode)
	}
}

func TestStreamSink(t *testing.T) {
	pub := events.NewMemoryPublisher()
	sink := audit.Multi{audit.LogSink{}, audit.NewStreamSink(pub, "audit"), audit.Nop{}}

	entry := audit.NewEntry(audit.ActionReverse, audit.EntityTransfer, "t-9", "ops", nil)
	entry.Metadata = map[string]any{"reason": "duplicate"}
	sink.Log(context.Background(), entry)

	published := pub.Events()
	if len(published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(published))
	}
	if published[0].Stream != "audit" {
		t.Errorf("expected audit stream, got %s", published[0].Stream)
	}
	ev, ok := published[0].Event.(events.AuditRecordedEvent)
	if !ok {
		t.Fatalf("unexpected event type %T", published[0].Event)
	}
	if ev.AggregateID != "t-9" || ev.Payload["action"] != audit.ActionReverse {
		t.Errorf("unexpected payload: %+v", ev)
	}
	meta, _ := ev.Payload["metadata"].(map[string]any)
	if meta["reason"] != "duplicate" {
		t.Errorf("metadata lost: %+v", ev.Payload)
	}

	// delivery failures are swallowed
	audit.NewStreamSink(failingPublisher{}, "audit").Log(context.Background(), entry)
}
