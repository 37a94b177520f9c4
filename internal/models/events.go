package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderRestocked = "ORDER_RESTOCKED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBaseEvent(eventType string, at time.Time) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: at,
	}
}

// StockChange is the signed stock delta applied to one variant
type StockChange struct {
	VariantID uuid.UUID `json:"variant_id"`
	Delta     int       `json:"delta"`
}

// OrderCreatedEvent published after a checkout commits
type OrderCreatedEvent struct {
	BaseEvent
	OrderID      uuid.UUID       `json:"order_id"`
	Code         string          `json:"code"`
	OrderType    string          `json:"order_type"`
	CustomerID   uuid.UUID       `json:"customer_id"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	StockChanges []StockChange   `json:"stock_changes"`
}

// OrderRestockedEvent published after an issue order returns stock
type OrderRestockedEvent struct {
	BaseEvent
	OrderID      uuid.UUID     `json:"order_id"`
	Code         string        `json:"code"`
	StockChanges []StockChange `json:"stock_changes"`
}
