package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates inbound event payloads.
type Kind int32

const (
	KindUnknown Kind = iota
	KindPaymentNotification
	KindAffiliationCreated
)

func (k Kind) String() string {
	switch k {
	case KindPaymentNotification:
		return "PaymentNotification"
	case KindAffiliationCreated:
		return "AffiliationCreated"
	default:
		return "Unknown"
	}
}

// Inbound is the interface all inbound event payloads implement.
// Delivery is at-least-once and unordered; the idempotency key is the
// stable dedup handle across redeliveries.
type Inbound interface {
	IdempotencyKey() string
	Kind() Kind
}

// PaymentNotification is a gateway webhook: a (topic, orderID) pair.
// Only the payment topic settles; everything else is acknowledged with
// no effect. The authoritative order state is fetched from the gateway,
// never trusted from the notification itself.
type PaymentNotification struct {
	Topic     string
	OrderID   string
	Timestamp time.Time
}

func (n *PaymentNotification) IdempotencyKey() string {
	return n.OrderID
}

func (n *PaymentNotification) Kind() Kind {
	return KindPaymentNotification
}

// AffiliationCreated fires exactly once per AffiliatedProduct creation
// upstream, but the transport may still redeliver it.
type AffiliationCreated struct {
	UserID       uuid.UUID
	ProductID    uuid.UUID
	AffiliatedAt time.Time
}

func (a *AffiliationCreated) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s", a.UserID, a.ProductID)
}

func (a *AffiliationCreated) Kind() Kind {
	return KindAffiliationCreated
}
