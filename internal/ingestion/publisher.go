package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher publishes settled results to NATS for downstream
// consumers (statements, notifications). Publishes happen after the
// balance mutation committed; subjects follow ref.settlement.{kind}.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan SettledEvent
	logger    zerolog.Logger
}

// SettledEvent is a committed settlement result ready for publishing.
type SettledEvent struct {
	Kind      string    `json:"kind"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	Ref       string    `json:"ref"`
	Timestamp time.Time `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan SettledEvent, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    logger,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, evt); err != nil {
				// Non-fatal: downstream consumers can query the ledger
				// entries table directly.
				op.logger.Warn().
					Err(err).
					Str("kind", evt.Kind).
					Str("ref", evt.Ref).
					Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt SettledEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("ref.settlement.%s", evt.Kind)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound settlement stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "REF_SETTLEMENT",
		Subjects:  []string{"ref.settlement.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	logger.Info().Msg("ensured outbound stream REF_SETTLEMENT")
	return nil
}
