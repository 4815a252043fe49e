package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"RefLedger/internal/ledger"
	"RefLedger/internal/observability"

	"github.com/rs/zerolog"
)

// EntryWriter batch-inserts audit ledger entries. Multi-row INSERT keeps
// it portable; switch to pgx CopyFrom if entry volume ever warrants it.
type EntryWriter struct {
	db *sql.DB
}

func NewEntryWriter(db *sql.DB) *EntryWriter {
	return &EntryWriter{db: db}
}

// WriteBatch inserts a batch of entries. ON CONFLICT makes redelivered
// batches idempotent on entry id.
func (w *EntryWriter) WriteBatch(ctx context.Context, entries []ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `INSERT INTO settlement.ledger_entries
		(entry_id, user_id, kind, amount, ref, created_at)
		VALUES `

	values := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*6)

	for i, e := range entries {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args,
			e.EntryID, e.UserID, e.Kind.String(), e.Amount, e.Ref, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (entry_id) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

// EntryWorker drains the entry channel and batch-writes to Postgres.
// Handlers send non-blocking; a full channel drops the entry and counts
// it, so this worker falling behind never stalls settlement.
type EntryWorker struct {
	writer       *EntryWriter
	input        <-chan ledger.Entry
	batchSize    int
	flushTimeout time.Duration
	logger       zerolog.Logger
	metrics      *observability.Metrics
}

func NewEntryWorker(
	db *sql.DB,
	input <-chan ledger.Entry,
	batchSize int,
	flushTimeout time.Duration,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *EntryWorker {
	return &EntryWorker{
		writer:       NewEntryWriter(db),
		input:        input,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		logger:       logger,
		metrics:      metrics,
	}
}

// Run batches incoming entries and flushes when the batch fills or the
// flush timeout expires. Blocks until ctx is cancelled or the channel
// closes; either way the final partial batch is flushed.
func (ew *EntryWorker) Run(ctx context.Context) error {
	batch := make([]ledger.Entry, 0, ew.batchSize)

	timer := time.NewTimer(ew.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := ew.flush(context.Background(), batch); err != nil {
					ew.logger.Error().Err(err).Msg("final entry flush failed")
				}
			}
			return ctx.Err()

		case entry, ok := <-ew.input:
			if !ok {
				if len(batch) > 0 {
					if err := ew.flush(context.Background(), batch); err != nil {
						ew.logger.Error().Err(err).Msg("final entry flush failed")
					}
				}
				return nil
			}

			batch = append(batch, entry)
			if len(batch) >= ew.batchSize {
				ew.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(ew.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				ew.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(ew.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write
// succeeds or the context is cancelled. On cancellation it makes one
// final attempt with a background context so a shutting-down process
// does not lose the batch.
func (ew *EntryWorker) flushWithRetry(ctx context.Context, batch []ledger.Entry) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			ew.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("entries", len(batch)).
				Msg("entry flush retry")
			select {
			case <-ctx.Done():
				if err := ew.flush(context.Background(), batch); err != nil {
					ew.logger.Error().Err(err).Msg("entry flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := ew.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				ew.logger.Info().Int("attempts", attempt).Msg("entry flush recovered")
			}
			return
		}

		if ew.metrics != nil {
			ew.metrics.EntryWriteErrors.Inc()
		}
	}
}

func (ew *EntryWorker) flush(ctx context.Context, batch []ledger.Entry) error {
	if err := ew.writer.WriteBatch(ctx, batch); err != nil {
		return err
	}
	if ew.metrics != nil {
		ew.metrics.EntriesWritten.Add(float64(len(batch)))
		ew.metrics.EntryBatchSize.Observe(float64(len(batch)))
	}
	return nil
}
