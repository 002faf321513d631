package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finledger/internal/amqp"
)

type stubSource struct {
	events []*amqp.TransactionEvent
}

func (s *stubSource) ConsumeTransactionEvents(ctx context.Context, handler func(*amqp.TransactionEvent) error) error {
	for _, e := range s.events {
		if err := handler(e); err != nil {
			return err
		}
	}
	return ctx.Err()
}

type recordingSink struct {
	actions []string
	fail    bool
}

func (s *recordingSink) AppendAudit(_ context.Context, _, _ uuid.UUID, action string, _ decimal.Decimal, _ time.Time) error {
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.actions = append(s.actions, action)
	return nil
}

func event(action string) *amqp.TransactionEvent {
	return &amqp.TransactionEvent{
		TransactionID: uuid.New(),
		UserID:        uuid.New(),
		Action:        action,
		Amount:        decimal.NewFromInt(10),
		OccurredAt:    time.Now(),
		Timestamp:     time.Now(),
	}
}

func TestAuditWorkerRecordsEvents(t *testing.T) {
	sink := &recordingSink{}
	w := NewAuditWorker(&stubSource{events: []*amqp.TransactionEvent{
		event(amqp.ActionPosted),
		event(amqp.ActionUpdated),
		event(amqp.ActionReversed),
	}}, sink)

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.actions) != 3 || sink.actions[0] != "posted" || sink.actions[2] != "reversed" {
		t.Fatalf("unexpected actions %v", sink.actions)
	}
}

func TestAuditWorkerSurfacesSinkFailure(t *testing.T) {
	w := NewAuditWorker(&stubSource{events: []*amqp.TransactionEvent{event(amqp.ActionPosted)}},
		&recordingSink{fail: true})

	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected handler error so the delivery is requeued")
	}
}
