// Package worker runs the audit trail: it consumes transaction events from
// AMQP and appends them to the audit log table.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finledger/internal/amqp"
)

// AuditSink persists consumed events. Implemented by the SQLite repository.
type AuditSink interface {
	AppendAudit(ctx context.Context, transactionID, userID uuid.UUID, action string, amount decimal.Decimal, occurredAt time.Time) error
}

// EventSource is the consuming side of the AMQP client.
type EventSource interface {
	ConsumeTransactionEvents(ctx context.Context, handler func(*amqp.TransactionEvent) error) error
}

type AuditWorker struct {
	source EventSource
	sink   AuditSink
}

func NewAuditWorker(source EventSource, sink AuditSink) *AuditWorker {
	return &AuditWorker{source: source, sink: sink}
}

// Run consumes events until ctx is cancelled. A sink failure is returned to
// the consumer loop so the delivery is requeued.
func (w *AuditWorker) Run(ctx context.Context) error {
	return w.source.ConsumeTransactionEvents(ctx, func(event *amqp.TransactionEvent) error {
		if err := w.sink.AppendAudit(ctx, event.TransactionID, event.UserID,
			event.Action, event.Amount, event.OccurredAt); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}

		slog.InfoContext(ctx, "Audit entry recorded",
			"transaction_id", event.TransactionID,
			"action", event.Action)
		return nil
	})
}
