// Package storage is the durable SQLite layer: entity CRUD, the period
// aggregations the engine and reports read, and the atomic balance
// adjustment primitive of the account ledger.
//
// Monetary amounts live in the database as integer cents and convert to
// decimals at this boundary.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"finledger/internal/core"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- users ---

func (r *Repository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)`,
		u.ID.String(), u.Name, u.Email, u.CreatedAt)
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (core.User, error) {
	var u core.User
	var rawID string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, created_at FROM users WHERE id = ?`, id.String()).
		Scan(&rawID, &u.Name, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.NewNotFound("user", id)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.ID, err = uuid.Parse(rawID)
	if err != nil {
		return core.User{}, fmt.Errorf("parse user id: %w", err)
	}
	return u, nil
}

func (r *Repository) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE id = ?`, id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return true, nil
}

// --- accounts ---

func (r *Repository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.Balance = core.Round2(a.Balance)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, name, balance_cents, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID.String(), a.UserID.String(), a.Name, core.Cents(a.Balance), a.CreatedAt)
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (core.Account, error) {
	var a core.Account
	var rawID, rawUserID string
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, balance_cents, created_at FROM accounts WHERE id = ?`, id.String()).
		Scan(&rawID, &rawUserID, &a.Name, &cents, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.NewNotFound("account", id)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	if a.ID, err = uuid.Parse(rawID); err != nil {
		return core.Account{}, fmt.Errorf("parse account id: %w", err)
	}
	if a.UserID, err = uuid.Parse(rawUserID); err != nil {
		return core.Account{}, fmt.Errorf("parse account user id: %w", err)
	}
	a.Balance = core.FromCents(cents)
	return a, nil
}

func (r *Repository) ListAccounts(ctx context.Context, userID uuid.UUID) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, balance_cents, created_at FROM accounts WHERE user_id = ? ORDER BY created_at`,
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		var a core.Account
		var rawID, rawUserID string
		var cents int64
		if err := rows.Scan(&rawID, &rawUserID, &a.Name, &cents, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		if a.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parse account id: %w", err)
		}
		if a.UserID, err = uuid.Parse(rawUserID); err != nil {
			return nil, fmt.Errorf("parse account user id: %w", err)
		}
		a.Balance = core.FromCents(cents)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// AdjustBalance applies a signed delta to an account balance in a single
// UPDATE, atomic relative to balance reads.
func (r *Repository) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + ? WHERE id = ?`,
		core.Cents(delta), accountID.String())
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust balance rows: %w", err)
	}
	if affected == 0 {
		return core.NewNotFound("account", accountID)
	}

	slog.DebugContext(ctx, "Balance adjusted",
		"account_id", accountID,
		"delta", delta)
	return nil
}

// --- categories ---

func (r *Repository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, user_id, name, type) VALUES (?, ?, ?, ?)`,
		c.ID.String(), c.UserID.String(), c.Name, string(c.Type))
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (r *Repository) GetCategory(ctx context.Context, id uuid.UUID) (core.Category, error) {
	var c core.Category
	var rawID, rawUserID, rawType string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, type FROM categories WHERE id = ?`, id.String()).
		Scan(&rawID, &rawUserID, &c.Name, &rawType)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NewNotFound("category", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	if c.ID, err = uuid.Parse(rawID); err != nil {
		return core.Category{}, fmt.Errorf("parse category id: %w", err)
	}
	if c.UserID, err = uuid.Parse(rawUserID); err != nil {
		return core.Category{}, fmt.Errorf("parse category user id: %w", err)
	}
	c.Type = core.CategoryType(rawType)
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context, userID uuid.UUID) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, type FROM categories WHERE user_id = ? ORDER BY name`,
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		var rawID, rawUserID, rawType string
		if err := rows.Scan(&rawID, &rawUserID, &c.Name, &rawType); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		if c.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parse category id: %w", err)
		}
		if c.UserID, err = uuid.Parse(rawUserID); err != nil {
			return nil, fmt.Errorf("parse category user id: %w", err)
		}
		c.Type = core.CategoryType(rawType)
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// --- budgets ---

func (r *Repository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Amount = core.Round2(b.Amount)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (id, user_id, category_id, year, month, amount_cents) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.UserID.String(), b.CategoryID.String(), b.Year, b.Month, core.Cents(b.Amount))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return core.Budget{}, &core.ValidationError{
				Reason: fmt.Sprintf("budget already exists for category %s in %s",
					b.CategoryID, core.Period{Year: b.Year, Month: b.Month}),
			}
		}
		return core.Budget{}, fmt.Errorf("insert budget: %w", err)
	}
	return b, nil
}

// FindBudget resolves the zero-or-one budget for a user+category+period.
func (r *Repository) FindBudget(ctx context.Context, userID, categoryID uuid.UUID, year, month int) (core.Budget, bool, error) {
	var b core.Budget
	var rawID, rawUserID, rawCategoryID string
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, category_id, year, month, amount_cents
		   FROM budgets
		  WHERE user_id = ? AND category_id = ? AND year = ? AND month = ?`,
		userID.String(), categoryID.String(), year, month).
		Scan(&rawID, &rawUserID, &rawCategoryID, &b.Year, &b.Month, &cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, false, nil
	}
	if err != nil {
		return core.Budget{}, false, fmt.Errorf("find budget: %w", err)
	}
	if b.ID, err = uuid.Parse(rawID); err != nil {
		return core.Budget{}, false, fmt.Errorf("parse budget id: %w", err)
	}
	if b.UserID, err = uuid.Parse(rawUserID); err != nil {
		return core.Budget{}, false, fmt.Errorf("parse budget user id: %w", err)
	}
	if b.CategoryID, err = uuid.Parse(rawCategoryID); err != nil {
		return core.Budget{}, false, fmt.Errorf("parse budget category id: %w", err)
	}
	b.Amount = core.FromCents(cents)
	return b, true, nil
}

// --- transactions ---

func (r *Repository) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	period := tx.Period()
	var transferID any
	if tx.TransferAccountID != nil {
		transferID = tx.TransferAccountID.String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions
		   (id, user_id, account_id, category_id, transfer_account_id,
		    amount_cents, type, occurred_at, year, month, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID.String(), tx.UserID.String(), tx.AccountID.String(), tx.CategoryID.String(), transferID,
		core.Cents(tx.Amount), string(tx.Type), tx.OccurredAt.UTC(),
		period.Year, period.Month, tx.Description, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"transaction_id", tx.ID,
		"type", tx.Type,
		"amount_cents", core.Cents(tx.Amount),
		"period", period.String())
	return tx, nil
}

func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, account_id, category_id, transfer_account_id,
		        amount_cents, type, occurred_at, description, created_at, updated_at
		   FROM transactions WHERE id = ?`, id.String())
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NewNotFound("transaction", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// UpdateTransaction persists the present fields of the patch plus a
// refreshed updated_at. A period change keeps the denormalized year/month
// columns in line with occurred_at.
func (r *Repository) UpdateTransaction(ctx context.Context, id uuid.UUID, patch core.TransactionPatch) (core.Transaction, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if patch.Amount != nil {
		sets = append(sets, "amount_cents = ?")
		args = append(args, core.Cents(*patch.Amount))
	}
	if patch.CategoryID != nil {
		sets = append(sets, "category_id = ?")
		args = append(args, patch.CategoryID.String())
	}
	if patch.OccurredAt != nil {
		period := core.PeriodOf(*patch.OccurredAt)
		sets = append(sets, "occurred_at = ?", "year = ?", "month = ?")
		args = append(args, patch.OccurredAt.UTC(), period.Year, period.Month)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	args = append(args, id.String())

	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction rows: %w", err)
	}
	if affected == 0 {
		// lost a race with a concurrent delete
		return core.Transaction{}, core.NewNotFound("transaction", id)
	}

	return r.GetTransaction(ctx, id)
}

func (r *Repository) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction rows: %w", err)
	}
	if affected == 0 {
		return core.NewNotFound("transaction", id)
	}
	return nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, year, month int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, account_id, category_id, transfer_account_id,
		        amount_cents, type, occurred_at, description, created_at, updated_at
		   FROM transactions
		  WHERE user_id = ? AND year = ? AND month = ?
		  ORDER BY occurred_at`,
		userID.String(), year, month)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// SumCategoryPeriod totals the persisted expense amounts for one budget
// bucket.
func (r *Repository) SumCategoryPeriod(ctx context.Context, userID, categoryID uuid.UUID, year, month int) (decimal.Decimal, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0)
		   FROM transactions
		  WHERE user_id = ? AND category_id = ? AND year = ? AND month = ? AND type = 'EXPENSE'`,
		userID.String(), categoryID.String(), year, month).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum category period: %w", err)
	}
	return core.FromCents(cents), nil
}

// CategoryTotals groups a user's transactions for one period by category
// and type, for monthly reporting.
func (r *Repository) CategoryTotals(ctx context.Context, userID uuid.UUID, year, month int) ([]core.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.category_id, c.name, t.type, SUM(t.amount_cents)
		   FROM transactions t
		   JOIN categories c ON c.id = t.category_id
		  WHERE t.user_id = ? AND t.year = ? AND t.month = ?
		  GROUP BY t.category_id, c.name, t.type
		  ORDER BY c.name`,
		userID.String(), year, month)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	defer rows.Close()

	var totals []core.CategoryTotal
	for rows.Next() {
		var ct core.CategoryTotal
		var rawCategoryID, rawType string
		var cents int64
		if err := rows.Scan(&rawCategoryID, &ct.CategoryName, &rawType, &cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		if ct.CategoryID, err = uuid.Parse(rawCategoryID); err != nil {
			return nil, fmt.Errorf("parse category id: %w", err)
		}
		ct.Type = core.TransactionType(rawType)
		ct.Total = core.FromCents(cents)
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}

// --- audit ---

// AppendAudit records a consumed transaction event; called by the audit
// worker, not the engine.
func (r *Repository) AppendAudit(ctx context.Context, transactionID, userID uuid.UUID, action string, amount decimal.Decimal, occurredAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (transaction_id, user_id, action, amount_cents, occurred_at, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		transactionID.String(), userID.String(), action, core.Cents(amount), occurredAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var tx core.Transaction
	var rawID, rawUserID, rawAccountID, rawCategoryID, rawType string
	var rawTransferID sql.NullString
	var cents int64
	err := row.Scan(&rawID, &rawUserID, &rawAccountID, &rawCategoryID, &rawTransferID,
		&cents, &rawType, &tx.OccurredAt, &tx.Description, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	if tx.ID, err = uuid.Parse(rawID); err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction id: %w", err)
	}
	if tx.UserID, err = uuid.Parse(rawUserID); err != nil {
		return core.Transaction{}, fmt.Errorf("parse user id: %w", err)
	}
	if tx.AccountID, err = uuid.Parse(rawAccountID); err != nil {
		return core.Transaction{}, fmt.Errorf("parse account id: %w", err)
	}
	if tx.CategoryID, err = uuid.Parse(rawCategoryID); err != nil {
		return core.Transaction{}, fmt.Errorf("parse category id: %w", err)
	}
	if rawTransferID.Valid {
		transferID, err := uuid.Parse(rawTransferID.String)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("parse transfer account id: %w", err)
		}
		tx.TransferAccountID = &transferID
	}
	tx.Amount = core.FromCents(cents)
	tx.Type = core.TransactionType(rawType)
	return tx, nil
}
