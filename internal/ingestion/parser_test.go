package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"RefLedger/internal/event"
	"RefLedger/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParsePaymentNotification(t *testing.T) {
	payload := map[string]interface{}{
		"topic":        "payment",
		"order_id":     "ord-42",
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PaymentNotification")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	n, ok := evt.(*event.PaymentNotification)
	if !ok {
		t.Fatalf("expected *event.PaymentNotification, got %T", evt)
	}

	if n.Topic != "payment" {
		t.Errorf("topic: got %s, want payment", n.Topic)
	}
	if n.OrderID != "ord-42" {
		t.Errorf("order_id: got %s, want ord-42", n.OrderID)
	}
	if n.IdempotencyKey() != "ord-42" {
		t.Errorf("idempotency key: got %s, want ord-42", n.IdempotencyKey())
	}
	if n.Kind() != event.KindPaymentNotification {
		t.Errorf("kind: got %v, want PaymentNotification", n.Kind())
	}
}

func TestParsePaymentNotification_MissingTopic_Fails(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{"order_id": "ord-42"})
	if _, err := ingestion.ParseRawEvent(raw, "PaymentNotification"); err == nil {
		t.Fatal("expected error for missing topic")
	}
}

func TestParseAffiliationCreated(t *testing.T) {
	payload := map[string]interface{}{
		"user_id":          "550e8400-e29b-41d4-a716-446655440000",
		"product_id":       "660e8400-e29b-41d4-a716-446655440001",
		"affiliated_at_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "AffiliationCreated")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	a, ok := evt.(*event.AffiliationCreated)
	if !ok {
		t.Fatalf("expected *event.AffiliationCreated, got %T", evt)
	}

	if a.UserID.String() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("user_id: got %s", a.UserID)
	}
	if a.ProductID.String() != "660e8400-e29b-41d4-a716-446655440001" {
		t.Errorf("product_id: got %s", a.ProductID)
	}
	want := "550e8400-e29b-41d4-a716-446655440000:660e8400-e29b-41d4-a716-446655440001"
	if a.IdempotencyKey() != want {
		t.Errorf("idempotency key: got %s, want %s", a.IdempotencyKey(), want)
	}
}

func TestParseAffiliationCreated_InvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"user_id":    "not-a-uuid",
		"product_id": "660e8400-e29b-41d4-a716-446655440001",
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "AffiliationCreated"); err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	if _, err := ingestion.ParseRawEvent(raw, "NonExistentType"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	if _, err := ingestion.ParseRawEvent(raw, "PaymentNotification"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
