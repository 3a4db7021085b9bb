// Package audit records who did what to which entity, and whether it worked.
// Sinks are best effort: a failing sink is logged and never fails the
// operation being audited.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"banking-ledger/domain"
	"banking-ledger/events"
)

const (
	ActionOpenAccount      = "OPEN_ACCOUNT"
	ActionDeposit          = "DEPOSIT"
	ActionWithdraw         = "WITHDRAW"
	ActionTransferInternal = "TRANSFER_INTERNAL"
	ActionTransferExternal = "TRANSFER_EXTERNAL"
	ActionReverse          = "REVERSE"
	ActionBuyCurrency      = "BUY_CURRENCY"
	ActionSellCurrency     = "SELL_CURRENCY"
	ActionSetRate          = "SET_RATE"
	ActionAddCommission    = "ADD_COMMISSION_RULE"
)

const (
	EntityAccount        = "ACCOUNT"
	EntityTransfer       = "TRANSFER"
	EntityCurrencyTx     = "CURRENCY_TRANSACTION"
	EntityExchangeRate   = "EXCHANGE_RATE"
	EntityCommissionRule = "COMMISSION_RULE"
)

type Entry struct {
	ID         string           `json:"id"`
	Action     string           `json:"action"`
	EntityType string           `json:"entityType"`
	EntityID   string           `json:"entityId,omitempty"`
	Actor      string           `json:"actor,omitempty"`
	Success    bool             `json:"success"`
	ErrorCode  domain.ErrorCode `json:"errorCode,omitempty"`
	Summary    string           `json:"summary,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	At         time.Time        `json:"at"`
}

// NewEntry builds the entry for one finished operation; err decides the
// outcome and error code.
func NewEntry(action, entityType, entityID, actor string, err error) Entry {
	e := Entry{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Success:    err == nil,
		At:         time.Now().UTC(),
	}
	if err != nil {
		e.ErrorCode = domain.CodeOf(err)
		e.Summary = err.Error()
	}
	return e
}

type Sink interface {
	Log(ctx context.Context, entry Entry)
}

// LogSink writes each entry as one JSON line to the standard logger.
type LogSink struct{}

func (LogSink) Log(_ context.Context, entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("ERROR: failed to marshal audit entry %s: %v", entry.ID, err)
		return
	}
	log.Printf("audit %s", data)
}

// StreamSink publishes entries as AuditRecorded events, typically onto a
// Redis stream separate from the domain events.
type StreamSink struct {
	publisher events.Publisher
	stream    string
}

func NewStreamSink(publisher events.Publisher, stream string) *StreamSink {
	return &StreamSink{publisher: publisher, stream: stream}
}

func (s *StreamSink) Log(ctx context.Context, entry Entry) {
	payload, err := toPayload(entry)
	if err != nil {
		log.Printf("ERROR: failed to encode audit entry %s: %v", entry.ID, err)
		return
	}
	event := events.AuditRecordedEvent{
		BaseEvent: events.NewBaseEvent(entry.EntityID, events.AuditRecordedType),
		Payload:   payload,
	}
	if err := s.publisher.Publish(ctx, s.stream, event); err != nil {
		log.Printf("Warning: audit entry %s not delivered to %s: %v", entry.ID, s.stream, err)
	}
}

func toPayload(entry Entry) (map[string]any, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Multi fans one entry out to several sinks.
type Multi []Sink

func (m Multi) Log(ctx context.Context, entry Entry) {
	for _, s := range m {
		s.Log(ctx, entry)
	}
}

type Nop struct{}

func (Nop) Log(context.Context, Entry) {}
