package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

// Collaborator contracts the engine is wired against. The SQLite repository
// implements all of them; tests substitute in-memory fakes.

type UserLookup interface {
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type AccountLookup interface {
	GetAccount(ctx context.Context, id uuid.UUID) (core.Account, error)
}

type CategoryLookup interface {
	GetCategory(ctx context.Context, id uuid.UUID) (core.Category, error)
}

// BudgetLookup resolves the zero-or-one budget for a user+category+period.
type BudgetLookup interface {
	FindBudget(ctx context.Context, userID, categoryID uuid.UUID, year, month int) (core.Budget, bool, error)
}

// Ledger owns account balances. AdjustBalance applies a signed delta
// atomically relative to balance reads; callers skip zero deltas.
type Ledger interface {
	AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error
}

// TransactionStore is durable CRUD for transactions plus the period-sum
// aggregation the budget check needs.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, id uuid.UUID, patch core.TransactionPatch) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	SumCategoryPeriod(ctx context.Context, userID, categoryID uuid.UUID, year, month int) (decimal.Decimal, error)
}

// EventPublisher receives a notification after every successful mutation.
// Publish failures are logged, never surfaced to the caller.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, action string, tx core.Transaction) error
}
