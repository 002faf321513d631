package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

// --- in-memory fakes ---

type fakeUsers struct{ ids map[uuid.UUID]bool }

func (f *fakeUsers) UserExists(_ context.Context, id uuid.UUID) (bool, error) {
	return f.ids[id], nil
}

type fakeAccounts struct{ accounts map[uuid.UUID]core.Account }

func (f *fakeAccounts) GetAccount(_ context.Context, id uuid.UUID) (core.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return core.Account{}, core.NewNotFound("account", id)
	}
	return a, nil
}

type fakeCategories struct{ categories map[uuid.UUID]core.Category }

func (f *fakeCategories) GetCategory(_ context.Context, id uuid.UUID) (core.Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return core.Category{}, core.NewNotFound("category", id)
	}
	return c, nil
}

type budgetKey struct {
	userID     uuid.UUID
	categoryID uuid.UUID
	year       int
	month      int
}

type fakeBudgets struct{ budgets map[budgetKey]core.Budget }

func (f *fakeBudgets) FindBudget(_ context.Context, userID, categoryID uuid.UUID, year, month int) (core.Budget, bool, error) {
	b, ok := f.budgets[budgetKey{userID, categoryID, year, month}]
	return b, ok, nil
}

type fakeLedger struct{ balances map[uuid.UUID]decimal.Decimal }

func (f *fakeLedger) AdjustBalance(_ context.Context, accountID uuid.UUID, delta decimal.Decimal) error {
	f.balances[accountID] = f.balances[accountID].Add(delta)
	return nil
}

type fakeStore struct{ transactions map[uuid.UUID]core.Transaction }

func (f *fakeStore) CreateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	f.transactions[tx.ID] = tx
	return tx, nil
}

func (f *fakeStore) GetTransaction(_ context.Context, id uuid.UUID) (core.Transaction, error) {
	tx, ok := f.transactions[id]
	if !ok {
		return core.Transaction{}, core.NewNotFound("transaction", id)
	}
	return tx, nil
}

func (f *fakeStore) UpdateTransaction(_ context.Context, id uuid.UUID, patch core.TransactionPatch) (core.Transaction, error) {
	tx, ok := f.transactions[id]
	if !ok {
		return core.Transaction{}, core.NewNotFound("transaction", id)
	}
	tx = patch.ApplyTo(tx)
	tx.UpdatedAt = time.Now().UTC()
	f.transactions[id] = tx
	return tx, nil
}

func (f *fakeStore) DeleteTransaction(_ context.Context, id uuid.UUID) error {
	if _, ok := f.transactions[id]; !ok {
		return core.NewNotFound("transaction", id)
	}
	delete(f.transactions, id)
	return nil
}

func (f *fakeStore) SumCategoryPeriod(_ context.Context, userID, categoryID uuid.UUID, year, month int) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, tx := range f.transactions {
		if tx.Type != core.Expense || tx.UserID != userID || tx.CategoryID != categoryID {
			continue
		}
		if p := tx.Period(); p.Year == year && p.Month == month {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, nil
}

// --- test harness ---

type env struct {
	engine *Engine
	users  *fakeUsers
	ledger *fakeLedger
	store  *fakeStore

	budgets *fakeBudgets

	userID            uuid.UUID
	accountID         uuid.UUID
	otherAccountID    uuid.UUID
	incomeCategoryID  uuid.UUID
	expenseCategoryID uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		userID:            uuid.New(),
		accountID:         uuid.New(),
		otherAccountID:    uuid.New(),
		incomeCategoryID:  uuid.New(),
		expenseCategoryID: uuid.New(),
	}
	e.users = &fakeUsers{ids: map[uuid.UUID]bool{e.userID: true}}
	accounts := &fakeAccounts{accounts: map[uuid.UUID]core.Account{
		e.accountID:      {ID: e.accountID, UserID: e.userID, Name: "checking"},
		e.otherAccountID: {ID: e.otherAccountID, UserID: e.userID, Name: "savings"},
	}}
	categories := &fakeCategories{categories: map[uuid.UUID]core.Category{
		e.incomeCategoryID:  {ID: e.incomeCategoryID, UserID: e.userID, Name: "Salary", Type: core.CategoryIncome},
		e.expenseCategoryID: {ID: e.expenseCategoryID, UserID: e.userID, Name: "Groceries", Type: core.CategoryExpense},
	}}
	e.budgets = &fakeBudgets{budgets: map[budgetKey]core.Budget{}}
	e.ledger = &fakeLedger{balances: map[uuid.UUID]decimal.Decimal{}}
	e.store = &fakeStore{transactions: map[uuid.UUID]core.Transaction{}}

	e.engine = New(e.users, accounts, categories, e.budgets, e.ledger, e.store, nil)
	return e
}

func (e *env) addAccount(userID uuid.UUID) uuid.UUID {
	id := uuid.New()
	e.engine.accounts.(*fakeAccounts).accounts[id] = core.Account{ID: id, UserID: userID}
	return id
}

func (e *env) addCategory(userID uuid.UUID, ct core.CategoryType) uuid.UUID {
	id := uuid.New()
	e.engine.categories.(*fakeCategories).categories[id] = core.Category{ID: id, UserID: userID, Name: "c", Type: ct}
	return id
}

func (e *env) setBudget(categoryID uuid.UUID, year, month int, amount string) {
	e.budgets.budgets[budgetKey{e.userID, categoryID, year, month}] = core.Budget{
		ID:         uuid.New(),
		UserID:     e.userID,
		CategoryID: categoryID,
		Year:       year,
		Month:      month,
		Amount:     decimal.RequireFromString(amount),
	}
}

func (e *env) create(t *testing.T, req CreateRequest) core.Transaction {
	t.Helper()
	tx, err := e.engine.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return tx
}

func (e *env) balance(accountID uuid.UUID) string {
	return e.ledger.balances[accountID].String()
}

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func june(day int) time.Time {
	return time.Date(2024, 6, day, 12, 0, 0, 0, time.UTC)
}

func expenseReq(e *env, amount string, occurredAt time.Time) CreateRequest {
	return CreateRequest{
		UserID:     e.userID,
		AccountID:  e.accountID,
		CategoryID: e.expenseCategoryID,
		Amount:     amt(amount),
		Type:       core.Expense,
		OccurredAt: occurredAt,
	}
}

// --- create ---

func TestCreateAppliesSignedDeltas(t *testing.T) {
	e := newEnv(t)

	e.create(t, CreateRequest{
		UserID:     e.userID,
		AccountID:  e.accountID,
		CategoryID: e.incomeCategoryID,
		Amount:     amt("1000.00"),
		Type:       core.Income,
		OccurredAt: june(1),
	})
	if got := e.balance(e.accountID); got != "1000" {
		t.Fatalf("after income, balance = %s", got)
	}

	e.create(t, expenseReq(e, "250.50", june(2)))
	if got := e.balance(e.accountID); got != "749.5" {
		t.Fatalf("after expense, balance = %s", got)
	}
}

func TestCreateRejectsUnknownUser(t *testing.T) {
	e := newEnv(t)
	req := expenseReq(e, "10", june(1))
	req.UserID = uuid.New()

	_, err := e.engine.Create(context.Background(), req)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestCreateRejectsForeignOwnership(t *testing.T) {
	e := newEnv(t)
	stranger := uuid.New()

	req := expenseReq(e, "10", june(1))
	req.AccountID = e.addAccount(stranger)
	if _, err := e.engine.Create(context.Background(), req); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("foreign account: expected validation error, got %v", err)
	}

	req = expenseReq(e, "10", june(1))
	req.CategoryID = e.addCategory(stranger, core.CategoryExpense)
	if _, err := e.engine.Create(context.Background(), req); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("foreign category: expected validation error, got %v", err)
	}
}

func TestCreateRejectsCategoryTypeMismatch(t *testing.T) {
	e := newEnv(t)

	req := expenseReq(e, "10", june(1))
	req.CategoryID = e.incomeCategoryID
	if _, err := e.engine.Create(context.Background(), req); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expense with income category: expected validation error, got %v", err)
	}

	req = expenseReq(e, "10", june(1))
	req.Type = core.Income
	if _, err := e.engine.Create(context.Background(), req); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("income with expense category: expected validation error, got %v", err)
	}
}

func TestCreateTransferRules(t *testing.T) {
	e := newEnv(t)

	req := CreateRequest{
		UserID:     e.userID,
		AccountID:  e.accountID,
		CategoryID: e.expenseCategoryID,
		Amount:     amt("10"),
		Type:       core.Transfer,
		OccurredAt: june(1),
	}
	if _, err := e.engine.Create(context.Background(), req); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("missing destination: expected validation error, got %v", err)
	}

	req.TransferAccountID = &e.accountID
	if _, err := e.engine.Create(context.Background(), req); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("self transfer: expected validation error, got %v", err)
	}

	missing := uuid.New()
	req.TransferAccountID = &missing
	if _, err := e.engine.Create(context.Background(), req); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unknown destination: expected not-found, got %v", err)
	}

	foreign := e.addAccount(uuid.New())
	req.TransferAccountID = &foreign
	if _, err := e.engine.Create(context.Background(), req); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("foreign destination: expected validation error, got %v", err)
	}
}

func TestTransferSymmetry(t *testing.T) {
	e := newEnv(t)
	e.ledger.balances[e.accountID] = amt("500.00")
	e.ledger.balances[e.otherAccountID] = amt("150.00")

	tx := e.create(t, CreateRequest{
		UserID:            e.userID,
		AccountID:         e.accountID,
		CategoryID:        e.expenseCategoryID,
		Amount:            amt("75.00"),
		Type:              core.Transfer,
		OccurredAt:        june(1),
		TransferAccountID: &e.otherAccountID,
	})

	if e.balance(e.accountID) != "425" || e.balance(e.otherAccountID) != "225" {
		t.Fatalf("after transfer: %s / %s", e.balance(e.accountID), e.balance(e.otherAccountID))
	}

	if err := e.engine.Delete(context.Background(), tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if e.balance(e.accountID) != "500" || e.balance(e.otherAccountID) != "150" {
		t.Fatalf("after reversal: %s / %s", e.balance(e.accountID), e.balance(e.otherAccountID))
	}
}

// --- budget ceiling ---

func TestBudgetCeilingOnCreate(t *testing.T) {
	e := newEnv(t)
	e.setBudget(e.expenseCategoryID, 2024, 6, "200.00")
	e.create(t, expenseReq(e, "150.00", june(5)))

	// 150 + 60 = 210 > 200
	_, err := e.engine.Create(context.Background(), expenseReq(e, "60.00", june(10)))
	var exceeded *core.BudgetExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected budget exceeded, got %v", err)
	}
	if !errors.Is(err, core.ErrValidation) {
		t.Fatal("budget exceeded must classify as validation")
	}
	if !exceeded.Ceiling.Equal(amt("200.00")) || !exceeded.Total.Equal(amt("210.00")) {
		t.Fatalf("unexpected context: ceiling %s total %s", exceeded.Ceiling, exceeded.Total)
	}

	// 150 + 50 = 200, not exceeding
	e.create(t, expenseReq(e, "50.00", june(10)))
}

func TestBudgetIgnoredForIncomeAndTransfers(t *testing.T) {
	e := newEnv(t)
	e.setBudget(e.expenseCategoryID, 2024, 6, "1.00")

	e.create(t, CreateRequest{
		UserID:            e.userID,
		AccountID:         e.accountID,
		CategoryID:        e.expenseCategoryID,
		Amount:            amt("500.00"),
		Type:              core.Transfer,
		OccurredAt:        june(1),
		TransferAccountID: &e.otherAccountID,
	})

	e.create(t, CreateRequest{
		UserID:     e.userID,
		AccountID:  e.accountID,
		CategoryID: e.incomeCategoryID,
		Amount:     amt("500.00"),
		Type:       core.Income,
		OccurredAt: june(1),
	})
}

func TestBudgetCeilingOnUpdateSameBucket(t *testing.T) {
	e := newEnv(t)
	e.setBudget(e.expenseCategoryID, 2024, 6, "200.00")
	tx := e.create(t, expenseReq(e, "100.00", june(5)))

	// excluding the existing 100, the prospective total is 180
	newAmount := amt("180.00")
	if _, err := e.engine.Update(context.Background(), tx.ID, core.TransactionPatch{Amount: &newAmount}); err != nil {
		t.Fatalf("update to 180: %v", err)
	}

	tooMuch := amt("250.00")
	_, err := e.engine.Update(context.Background(), tx.ID, core.TransactionPatch{Amount: &tooMuch})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("update to 250: expected validation error, got %v", err)
	}
}

func TestUpdateAcrossMonthsChecksTargetBucket(t *testing.T) {
	e := newEnv(t)
	e.setBudget(e.expenseCategoryID, 2024, 7, "50.00")
	tx := e.create(t, expenseReq(e, "100.00", june(5)))

	// moving June -> July re-checks July with nothing excluded;
	// 0 + 100 > 50 must reject even though the amount is unchanged
	july := time.Date(2024, 7, 5, 12, 0, 0, 0, time.UTC)
	_, err := e.engine.Update(context.Background(), tx.ID, core.TransactionPatch{OccurredAt: &july})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected July ceiling to reject, got %v", err)
	}

	// with headroom in July the move succeeds and moves no money
	e.setBudget(e.expenseCategoryID, 2024, 7, "150.00")
	before := e.balance(e.accountID)
	updated, err := e.engine.Update(context.Background(), tx.ID, core.TransactionPatch{OccurredAt: &july})
	if err != nil {
		t.Fatalf("move to July: %v", err)
	}
	if updated.Period() != (core.Period{Year: 2024, Month: 7}) {
		t.Fatalf("expected July period, got %v", updated.Period())
	}
	if e.balance(e.accountID) != before {
		t.Fatal("date-only update must not touch the ledger")
	}
}

// --- update / delete deltas ---

func TestUpdateAppliesAmountDifferenceOnly(t *testing.T) {
	e := newEnv(t)
	tx := e.create(t, expenseReq(e, "100.00", june(5)))
	if got := e.balance(e.accountID); got != "-100" {
		t.Fatalf("after create, balance = %s", got)
	}

	newAmount := amt("130.00")
	if _, err := e.engine.Update(context.Background(), tx.ID, core.TransactionPatch{Amount: &newAmount}); err != nil {
		t.Fatalf("update: %v", err)
	}
	// expense grew by 30, so the balance drops by exactly 30
	if got := e.balance(e.accountID); got != "-130" {
		t.Fatalf("after update, balance = %s", got)
	}

	// same amount again: zero delta, no ledger movement
	same := amt("130.00")
	if _, err := e.engine.Update(context.Background(), tx.ID, core.TransactionPatch{Amount: &same}); err != nil {
		t.Fatalf("no-op update: %v", err)
	}
	if got := e.balance(e.accountID); got != "-130" {
		t.Fatalf("after no-op update, balance = %s", got)
	}
}

func TestUpdateRejectsEmptyPatch(t *testing.T) {
	e := newEnv(t)
	tx := e.create(t, expenseReq(e, "10", june(1)))

	_, err := e.engine.Update(context.Background(), tx.ID, core.TransactionPatch{})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateMissingTransaction(t *testing.T) {
	e := newEnv(t)
	desc := "x"
	_, err := e.engine.Update(context.Background(), uuid.New(), core.TransactionPatch{Description: &desc})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestDeleteRestoresBalance(t *testing.T) {
	e := newEnv(t)
	e.ledger.balances[e.accountID] = amt("300.00")

	tx := e.create(t, expenseReq(e, "42.42", june(5)))
	if err := e.engine.Delete(context.Background(), tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := e.balance(e.accountID); got != "300" {
		t.Fatalf("round-trip balance = %s", got)
	}

	if err := e.engine.Delete(context.Background(), tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("double delete: expected not-found, got %v", err)
	}
}

// Invariant: after any successful sequence, each balance equals its starting
// balance plus the signed deltas of the surviving transactions.
func TestBalanceInvariantAcrossSequence(t *testing.T) {
	e := newEnv(t)
	start := amt("1000.00")
	e.ledger.balances[e.accountID] = start
	ctx := context.Background()

	income := e.create(t, CreateRequest{
		UserID: e.userID, AccountID: e.accountID, CategoryID: e.incomeCategoryID,
		Amount: amt("200.00"), Type: core.Income, OccurredAt: june(1),
	})
	expense := e.create(t, expenseReq(e, "75.25", june(2)))
	transfer := e.create(t, CreateRequest{
		UserID: e.userID, AccountID: e.accountID, CategoryID: e.expenseCategoryID,
		Amount: amt("50.00"), Type: core.Transfer, OccurredAt: june(3),
		TransferAccountID: &e.otherAccountID,
	})

	bigger := amt("100.25")
	if _, err := e.engine.Update(ctx, expense.ID, core.TransactionPatch{Amount: &bigger}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := e.engine.Delete(ctx, income.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// surviving: expense 100.25 (minus), transfer 50 (minus on source)
	want := start.Sub(amt("100.25")).Sub(amt("50.00"))
	if !e.ledger.balances[e.accountID].Equal(want) {
		t.Fatalf("invariant broken: balance %s, want %s", e.ledger.balances[e.accountID], want)
	}
	if !e.ledger.balances[e.otherAccountID].Equal(amt("50.00")) {
		t.Fatalf("transfer destination holds %s, want 50", e.ledger.balances[e.otherAccountID])
	}
	_ = transfer
}

func TestZeroDeltaIsNoOp(t *testing.T) {
	e := newEnv(t)
	tx := core.Transaction{ID: uuid.New(), AccountID: e.accountID, Type: core.Expense}

	if err := e.engine.applyBalanceDelta(context.Background(), tx, amt("0.004")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := e.balance(e.accountID); got != "0" {
		t.Fatalf("sub-cent delta moved the balance to %s", got)
	}
}

func TestApplyBalanceDeltaRejectsBrokenTransactions(t *testing.T) {
	e := newEnv(t)

	broken := core.Transaction{ID: uuid.New(), AccountID: e.accountID, Type: core.Transfer}
	if err := e.engine.applyBalanceDelta(context.Background(), broken, amt("10")); err == nil {
		t.Fatal("transfer without destination must fail")
	}

	unknown := core.Transaction{ID: uuid.New(), AccountID: e.accountID, Type: "REFUND"}
	if err := e.engine.applyBalanceDelta(context.Background(), unknown, amt("10")); err == nil {
		t.Fatal("unknown type must fail")
	}
}
