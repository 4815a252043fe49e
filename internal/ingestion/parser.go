package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"RefLedger/internal/event"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string)
// into a typed event.Inbound. The dispatch loop validates and converts
// raw events before they reach any handler.
func ParseRawEvent(raw RawEvent, eventType string) (event.Inbound, error) {
	switch eventType {
	case "PaymentNotification":
		return parsePaymentNotification(raw.Data)
	case "AffiliationCreated":
		return parseAffiliationCreated(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

type paymentNotificationJSON struct {
	Topic       string `json:"topic"`
	OrderID     string `json:"order_id"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePaymentNotification(data []byte) (*event.PaymentNotification, error) {
	var j paymentNotificationJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PaymentNotification: %w", err)
	}
	if j.Topic == "" {
		return nil, fmt.Errorf("parse PaymentNotification: missing topic")
	}
	return &event.PaymentNotification{
		Topic:     j.Topic,
		OrderID:   j.OrderID,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type affiliationCreatedJSON struct {
	UserID         string `json:"user_id"`
	ProductID      string `json:"product_id"`
	AffiliatedAtUs int64  `json:"affiliated_at_us"`
}

func parseAffiliationCreated(data []byte) (*event.AffiliationCreated, error) {
	var j affiliationCreatedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AffiliationCreated: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	productID, err := uuid.Parse(j.ProductID)
	if err != nil {
		return nil, fmt.Errorf("parse product_id: %w", err)
	}
	return &event.AffiliationCreated{
		UserID:       userID,
		ProductID:    productID,
		AffiliatedAt: time.UnixMicro(j.AffiliatedAtUs),
	}, nil
}
