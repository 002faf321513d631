// Package engine implements transaction posting: it validates requests
// against ownership and category rules, enforces per-category monthly
// budget ceilings, persists transactions, and applies the compensating
// signed balance adjustments to the account ledger.
//
// The engine is request-scoped and performs no internal parallelism; each
// operation is a sequence of collaborator calls. The "persist then adjust
// ledger" pair is deliberately not wrapped in a unit of work — see the
// consistency notes in DESIGN.md.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

// Engine orchestrates create/update/delete of transactions across the
// lookup, store, and ledger collaborators.
type Engine struct {
	users      UserLookup
	accounts   AccountLookup
	categories CategoryLookup
	budgets    BudgetLookup
	ledger     Ledger
	store      TransactionStore
	events     EventPublisher // optional
}

func New(users UserLookup, accounts AccountLookup, categories CategoryLookup,
	budgets BudgetLookup, ledger Ledger, store TransactionStore, events EventPublisher) *Engine {
	return &Engine{
		users:      users,
		accounts:   accounts,
		categories: categories,
		budgets:    budgets,
		ledger:     ledger,
		store:      store,
		events:     events,
	}
}

// CreateRequest carries the inputs for posting a new transaction.
type CreateRequest struct {
	UserID            uuid.UUID
	AccountID         uuid.UUID
	CategoryID        uuid.UUID
	Amount            decimal.Decimal
	Type              core.TransactionType
	OccurredAt        time.Time
	TransferAccountID *uuid.UUID
	Description       string
}

// Create validates and posts a new transaction, then applies its balance
// delta to the ledger. For transfers two accounts are adjusted.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (core.Transaction, error) {
	exists, err := e.users.UserExists(ctx, req.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return core.Transaction{}, core.NewNotFound("user", req.UserID)
	}

	account, err := e.accounts.GetAccount(ctx, req.AccountID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get account: %w", err)
	}
	category, err := e.categories.GetCategory(ctx, req.CategoryID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get category: %w", err)
	}

	if account.UserID != req.UserID {
		return core.Transaction{}, &core.ValidationError{Reason: "account belongs to a different user"}
	}
	if category.UserID != req.UserID {
		return core.Transaction{}, &core.ValidationError{Reason: "category belongs to a different user"}
	}
	if err := checkCategoryType(req.Type, category); err != nil {
		return core.Transaction{}, err
	}

	if req.Type == core.Transfer {
		if req.TransferAccountID == nil {
			return core.Transaction{}, &core.ValidationError{Reason: "transfer requires a destination account"}
		}
		if *req.TransferAccountID == req.AccountID {
			return core.Transaction{}, &core.ValidationError{Reason: "transfer destination must differ from source account"}
		}
		dest, err := e.accounts.GetAccount(ctx, *req.TransferAccountID)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("get transfer account: %w", err)
		}
		if dest.UserID != req.UserID {
			return core.Transaction{}, &core.ValidationError{Reason: "transfer account belongs to a different user"}
		}
	}

	now := time.Now().UTC()
	tx := core.Transaction{
		ID:                uuid.New(),
		UserID:            req.UserID,
		AccountID:         req.AccountID,
		CategoryID:        req.CategoryID,
		TransferAccountID: req.TransferAccountID,
		Amount:            core.Round2(req.Amount),
		Type:              req.Type,
		OccurredAt:        req.OccurredAt,
		Description:       req.Description,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	// Brand-new transaction: nothing of it is in the stored totals yet.
	if err := e.enforceBudget(ctx, tx, decimal.Zero); err != nil {
		return core.Transaction{}, err
	}

	created, err := e.store.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("persist transaction: %w", err)
	}

	if err := e.applyBalanceDelta(ctx, created, created.Amount); err != nil {
		return core.Transaction{}, fmt.Errorf("adjust balance: %w", err)
	}

	slog.InfoContext(ctx, "Transaction posted",
		"transaction_id", created.ID,
		"user_id", created.UserID,
		"type", created.Type,
		"amount", created.Amount)

	e.publish(ctx, "posted", created)
	return created, nil
}

// Update merges a partial update onto an existing transaction, re-checks
// the budget ceiling against the prospective state, persists the patch,
// and adjusts the ledger by the amount difference only. Changing the
// occurred-at date alone never moves balances.
func (e *Engine) Update(ctx context.Context, id uuid.UUID, patch core.TransactionPatch) (core.Transaction, error) {
	if patch.IsEmpty() {
		return core.Transaction{}, &core.ValidationError{Reason: "empty update"}
	}

	existing, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("load transaction: %w", err)
	}

	prospective := patch.ApplyTo(existing)
	if err := prospective.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if patch.CategoryID != nil && *patch.CategoryID != existing.CategoryID {
		category, err := e.categories.GetCategory(ctx, *patch.CategoryID)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("get category: %w", err)
		}
		if category.UserID != existing.UserID {
			return core.Transaction{}, &core.ValidationError{Reason: "category belongs to a different user"}
		}
		if err := checkCategoryType(existing.Type, category); err != nil {
			return core.Transaction{}, err
		}
	}

	// The existing amount is only excluded from the target bucket's total
	// when the transaction stays in that bucket; moving period or category
	// means the old amount was never part of the target total.
	excludeAmount := decimal.Zero
	if prospective.Period() == existing.Period() && prospective.CategoryID == existing.CategoryID {
		excludeAmount = existing.Amount
	}
	if err := e.enforceBudget(ctx, prospective, excludeAmount); err != nil {
		return core.Transaction{}, err
	}

	amountDelta := decimal.Zero
	if patch.Amount != nil {
		amountDelta = core.Round2(patch.Amount.Sub(existing.Amount))
	}

	updated, err := e.store.UpdateTransaction(ctx, id, patch)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("persist update: %w", err)
	}

	// Type and accounts are immutable, so the existing record is the
	// authority for which balances the delta applies to.
	if !amountDelta.IsZero() {
		if err := e.applyBalanceDelta(ctx, existing, amountDelta); err != nil {
			return core.Transaction{}, fmt.Errorf("adjust balance: %w", err)
		}
	}

	slog.InfoContext(ctx, "Transaction updated",
		"transaction_id", id,
		"amount_delta", amountDelta)

	e.publish(ctx, "updated", updated)
	return updated, nil
}

// Delete removes a transaction and reverses its original balance effect.
func (e *Engine) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}

	if err := e.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	if err := e.applyBalanceDelta(ctx, existing, existing.Amount.Neg()); err != nil {
		return fmt.Errorf("reverse balance: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"transaction_id", id,
		"user_id", existing.UserID,
		"amount", existing.Amount)

	e.publish(ctx, "reversed", existing)
	return nil
}

// Get loads a single transaction.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	return e.store.GetTransaction(ctx, id)
}

// enforceBudget rejects a prospective expense when it would push its
// period's category total over the configured ceiling. excludeAmount is
// subtracted from the stored total first so an edited transaction is not
// counted twice.
func (e *Engine) enforceBudget(ctx context.Context, tx core.Transaction, excludeAmount decimal.Decimal) error {
	if tx.Type != core.Expense {
		return nil
	}

	period := tx.Period()
	budget, ok, err := e.budgets.FindBudget(ctx, tx.UserID, tx.CategoryID, period.Year, period.Month)
	if err != nil {
		return fmt.Errorf("find budget: %w", err)
	}
	if !ok {
		return nil
	}

	current, err := e.store.SumCategoryPeriod(ctx, tx.UserID, tx.CategoryID, period.Year, period.Month)
	if err != nil {
		return fmt.Errorf("sum category period: %w", err)
	}

	adjusted := current.Sub(excludeAmount).Add(tx.Amount)
	if adjusted.GreaterThan(budget.Amount) {
		return &core.BudgetExceededError{
			CategoryID: tx.CategoryID,
			Period:     period,
			Ceiling:    budget.Amount,
			Total:      adjusted,
		}
	}
	return nil
}

// applyBalanceDelta applies a signed delta to the ledger according to the
// transaction's type. delta is the net effect on the stored amount, not
// necessarily the full amount: +amount on create, the amount difference
// on update, -amount on delete.
func (e *Engine) applyBalanceDelta(ctx context.Context, tx core.Transaction, delta decimal.Decimal) error {
	delta = core.Round2(delta)
	if delta.IsZero() {
		return nil
	}

	switch tx.Type {
	case core.Income:
		return e.ledger.AdjustBalance(ctx, tx.AccountID, delta)
	case core.Expense:
		return e.ledger.AdjustBalance(ctx, tx.AccountID, delta.Neg())
	case core.Transfer:
		// create validates the destination; reaching here without one is a
		// programming error, not a user error.
		if tx.TransferAccountID == nil {
			return fmt.Errorf("transfer %s has no destination account", tx.ID)
		}
		if err := e.ledger.AdjustBalance(ctx, tx.AccountID, delta.Neg()); err != nil {
			return err
		}
		return e.ledger.AdjustBalance(ctx, *tx.TransferAccountID, delta)
	default:
		return fmt.Errorf("unsupported transaction type %q", tx.Type)
	}
}

func checkCategoryType(tt core.TransactionType, category core.Category) error {
	switch tt {
	case core.Income:
		if category.Type != core.CategoryIncome {
			return &core.ValidationError{Reason: "income transactions require an income category"}
		}
	case core.Expense:
		if category.Type != core.CategoryExpense {
			return &core.ValidationError{Reason: "expense transactions require an expense category"}
		}
	case core.Transfer:
		// transfers have no category-type constraint
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, action string, tx core.Transaction) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishTransactionEvent(ctx, action, tx); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"action", action,
			"transaction_id", tx.ID,
			"error", err)
	}
}
