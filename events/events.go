package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

type BaseEvent struct {
	EventID     uuid.UUID `json:"eventId"`
	AggregateID string    `json:"aggregateId"`
	Timestamp   time.Time `json:"timestamp"`
	Type        EventType `json:"type"`
}

type Event interface {
	GetBase() BaseEvent
}

func (e BaseEvent) GetBase() BaseEvent {
	return e
}

const (
	TransferCompletedType EventType = "TransferCompleted"
	TransferReversedType  EventType = "TransferReversed"
	CurrencyBoughtType    EventType = "CurrencyBought"
	CurrencySoldType      EventType = "CurrencySold"
	AuditRecordedType     EventType = "AuditRecorded"
)

func NewBaseEvent(aggregateID string, eventType EventType) BaseEvent {
	return BaseEvent{
		EventID:     uuid.New(),
		AggregateID: aggregateID,
		Timestamp:   time.Now().UTC(),
		Type:        eventType,
	}
}
