package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

// Transaction event actions.
const (
	ActionPosted   = "posted"
	ActionUpdated  = "updated"
	ActionReversed = "reversed"
)

// TransactionEvent is published after every successful engine mutation.
// It carries enough for the audit trail; consumers needing the full record
// fetch it from the store by id.
type TransactionEvent struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	UserID        uuid.UUID       `json:"user_id"`
	Action        string          `json:"action"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Timestamp     time.Time       `json:"timestamp"`
}

func NewTransactionEvent(action string, tx core.Transaction) *TransactionEvent {
	return &TransactionEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Action:        action,
		Amount:        tx.Amount,
		Type:          string(tx.Type),
		OccurredAt:    tx.OccurredAt,
		Timestamp:     time.Now().UTC(),
	}
}

func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
