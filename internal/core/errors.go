package core

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Error kinds. Concrete errors below unwrap to one of these so callers can
// classify with errors.Is without knowing the concrete type.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

// NotFoundError reports a missing user, account, category, budget, or
// transaction. It always carries the missing entity's id.
type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFound(entity string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id.String()}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError reports a business-rule violation: ownership mismatch,
// wrong category type, bad transfer account, empty patch, invalid amount.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// BudgetExceededError is the validation failure raised when a prospective
// expense would push a period's total over its budget ceiling. It carries
// enough context for the caller to explain the rejection.
type BudgetExceededError struct {
	CategoryID uuid.UUID
	Period     Period
	Ceiling    decimal.Decimal
	Total      decimal.Decimal
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded for category %s in %s: total %s over ceiling %s",
		e.CategoryID, e.Period, e.Total, e.Ceiling)
}

func (e *BudgetExceededError) Unwrap() error { return ErrValidation }
