package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Destination is a user's registered payout profile.
type Destination struct {
	Key    string
	Holder string
}

// Provider executes the outbound transfer after a withdrawal debit.
// The withdrawal handler writes its compensation logic once against this
// interface, so swapping Simulated for LiveTransfer changes nothing in
// the withdrawal flow.
type Provider interface {
	Transfer(ctx context.Context, dest Destination, amount int64) error
}

// Simulated acknowledges transfers without moving money. Used until the
// live payout integration is enabled.
type Simulated struct {
	logger zerolog.Logger
}

func NewSimulated(logger zerolog.Logger) *Simulated {
	return &Simulated{logger: logger}
}

func (s *Simulated) Transfer(ctx context.Context, dest Destination, amount int64) error {
	s.logger.Info().
		Str("payout_key", dest.Key).
		Str("holder", dest.Holder).
		Int64("amount", amount).
		Msg("simulated payout transfer")
	return nil
}

// LiveTransfer posts the transfer to the gateway's payout endpoint.
type LiveTransfer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewLiveTransfer(baseURL, apiKey string, timeout time.Duration) *LiveTransfer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LiveTransfer{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type transferRequest struct {
	Key    string `json:"key"`
	Holder string `json:"holder"`
	Amount int64  `json:"amount"`
}

type transferResponse struct {
	TransferID string `json:"transfer_id"`
	Error      string `json:"error,omitempty"`
}

func (l *LiveTransfer) Transfer(ctx context.Context, dest Destination, amount int64) error {
	body, err := json.Marshal(transferRequest{
		Key:    dest.Key,
		Holder: dest.Holder,
		Amount: amount,
	})
	if err != nil {
		return fmt.Errorf("marshal transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payout transfer: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read transfer response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payout transfer: status %d: %s", resp.StatusCode, respBody)
	}

	var tr transferResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return fmt.Errorf("decode transfer response: %w", err)
	}
	if tr.Error != "" {
		return fmt.Errorf("payout transfer rejected: %s", tr.Error)
	}

	return nil
}
