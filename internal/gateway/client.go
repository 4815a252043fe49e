package gateway

import (
	"context"

	"github.com/google/uuid"
)

// OrderStatus is the gateway's view of a payment order.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusApproved OrderStatus = "approved"
	OrderStatusRejected OrderStatus = "rejected"
)

// Order is the authoritative order state fetched from the gateway.
// ExternalReference carries the user id the order was created for.
type Order struct {
	OrderID           string
	Status            OrderStatus
	Amount            int64
	ExternalReference uuid.UUID
}

// CreatedOrder is the result of creating a payment order. Payload is the
// gateway's opaque checkout payload (QR code data, redirect URL), passed
// through untouched.
type CreatedOrder struct {
	OrderID string
	Payload string
}

// Client is the payment gateway adapter. Both calls are remote; failures
// are retryable infrastructure errors, never data.
type Client interface {
	CreateOrder(ctx context.Context, amount int64, description, payerIdentity string, metadata map[string]string) (*CreatedOrder, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
}
