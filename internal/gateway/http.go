package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"RefLedger/internal/observability"

	"github.com/google/uuid"
)

// HTTPClient talks JSON to the payment gateway's REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	metrics    *observability.Metrics
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, metrics *observability.Metrics) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
	}
}

type createOrderRequest struct {
	Amount        int64             `json:"amount"`
	Description   string            `json:"description"`
	PayerIdentity string            `json:"payer_identity"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type createOrderResponse struct {
	OrderID string `json:"order_id"`
	Payload string `json:"payload"`
	Error   string `json:"error,omitempty"`
}

type getOrderResponse struct {
	OrderID           string `json:"order_id"`
	Status            string `json:"status"`
	Amount            int64  `json:"amount"`
	ExternalReference string `json:"external_reference"`
	Error             string `json:"error,omitempty"`
}

// CreateOrder creates a payment order and returns the gateway's order id
// and checkout payload.
func (c *HTTPClient) CreateOrder(ctx context.Context, amount int64, description, payerIdentity string, metadata map[string]string) (*CreatedOrder, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:        amount,
		Description:   description,
		PayerIdentity: payerIdentity,
		Metadata:      metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal create order: %w", err)
	}

	var resp createOrderResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/orders", "create_order", body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("gateway error: %s", resp.Error)
	}
	if resp.OrderID == "" {
		return nil, fmt.Errorf("gateway returned empty order_id")
	}

	return &CreatedOrder{OrderID: resp.OrderID, Payload: resp.Payload}, nil
}

// GetOrder fetches the authoritative state of an order.
func (c *HTTPClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var resp getOrderResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/orders/"+orderID, "get_order", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("gateway error: %s", resp.Error)
	}

	status := OrderStatus(resp.Status)
	switch status {
	case OrderStatusPending, OrderStatusApproved, OrderStatusRejected:
	default:
		return nil, fmt.Errorf("gateway returned unknown status %q for order %s", resp.Status, orderID)
	}

	extRef, err := uuid.Parse(resp.ExternalReference)
	if err != nil {
		return nil, fmt.Errorf("parse external_reference: %w", err)
	}

	return &Order{
		OrderID:           resp.OrderID,
		Status:            status,
		Amount:            resp.Amount,
		ExternalReference: extRef,
	}, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path, call string, body []byte, out interface{}) error {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.GatewayRequestDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
		}
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway %s %s: status %d: %s", method, path, resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
