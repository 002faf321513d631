package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Income   TransactionType = "INCOME"
	Expense  TransactionType = "EXPENSE"
	Transfer TransactionType = "TRANSFER"
)

const (
	CategoryIncome  CategoryType = "INCOME"
	CategoryExpense CategoryType = "EXPENSE"
)

type (
	TransactionType string

	CategoryType string

	// Period is the (year, month) budget bucket a transaction falls into.
	Period struct {
		Year  int
		Month int
	}

	User struct {
		ID        uuid.UUID
		Name      string
		Email     string
		CreatedAt time.Time
	}

	Account struct {
		ID        uuid.UUID
		UserID    uuid.UUID
		Name      string
		Balance   decimal.Decimal
		CreatedAt time.Time
	}

	Category struct {
		ID     uuid.UUID
		UserID uuid.UUID
		Name   string
		Type   CategoryType
	}

	// Budget is the spending ceiling for a user+category+period, unique per tuple.
	Budget struct {
		ID         uuid.UUID
		UserID     uuid.UUID
		CategoryID uuid.UUID
		Year       int
		Month      int
		Amount     decimal.Decimal
	}

	Transaction struct {
		ID                uuid.UUID
		UserID            uuid.UUID
		AccountID         uuid.UUID
		CategoryID        uuid.UUID
		TransferAccountID *uuid.UUID
		Amount            decimal.Decimal
		Type              TransactionType
		OccurredAt        time.Time
		Description       string
		CreatedAt         time.Time
		UpdatedAt         time.Time
	}
)

// PeriodOf derives the budget bucket from a timestamp (UTC).
func PeriodOf(t time.Time) Period {
	u := t.UTC()
	return Period{Year: u.Year(), Month: int(u.Month())}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return &ValidationError{Reason: fmt.Sprintf("invalid month %d", p.Month)}
	}
	if p.Year < 1970 || p.Year > 9999 {
		return &ValidationError{Reason: fmt.Sprintf("invalid year %d", p.Year)}
	}
	return nil
}

// Period returns the budget bucket the transaction counts against.
func (t Transaction) Period() Period {
	return PeriodOf(t.OccurredAt)
}

func (tt TransactionType) Valid() bool {
	switch tt {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

func (ct CategoryType) Valid() bool {
	return ct == CategoryIncome || ct == CategoryExpense
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("invalid transaction type %q", t.Type)}
	}
	if !t.Amount.IsPositive() {
		return &ValidationError{Reason: "amount must be positive"}
	}
	if t.OccurredAt.IsZero() {
		return &ValidationError{Reason: "occurred-at date is required"}
	}
	if len(t.Description) > 200 {
		return &ValidationError{Reason: "description too long (max 200 characters)"}
	}
	if t.Type == Transfer {
		if t.TransferAccountID == nil {
			return &ValidationError{Reason: "transfer requires a destination account"}
		}
		if *t.TransferAccountID == t.AccountID {
			return &ValidationError{Reason: "transfer destination must differ from source account"}
		}
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Reason: "empty category name"}
	}
	if !c.Type.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("invalid category type %q", c.Type)}
	}
	return nil
}

func (b Budget) Validate() error {
	if err := (Period{Year: b.Year, Month: b.Month}).Validate(); err != nil {
		return err
	}
	if !b.Amount.IsPositive() {
		return &ValidationError{Reason: "budget amount must be positive"}
	}
	return nil
}

// TransactionPatch is a partial update with explicit field presence. It has
// no fields for type or accounts: those are fixed at creation.
type TransactionPatch struct {
	Amount      *decimal.Decimal
	CategoryID  *uuid.UUID
	OccurredAt  *time.Time
	Description *string
}

func (p TransactionPatch) IsEmpty() bool {
	return p.Amount == nil && p.CategoryID == nil && p.OccurredAt == nil && p.Description == nil
}

// ApplyTo merges the patch onto a copy of t. The merge is pure; persistence
// and ledger adjustments are the engine's job.
func (p TransactionPatch) ApplyTo(t Transaction) Transaction {
	if p.Amount != nil {
		t.Amount = Round2(*p.Amount)
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.OccurredAt != nil {
		t.OccurredAt = *p.OccurredAt
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	return t
}
