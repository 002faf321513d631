package core

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CategoryTotal is one row of a monthly report: the summed amount for a
// category and transaction type within a period.
type CategoryTotal struct {
	CategoryID   uuid.UUID
	CategoryName string
	Type         TransactionType
	Total        decimal.Decimal
}

// MonthlyReport aggregates a user's transactions for one period.
type MonthlyReport struct {
	UserID     uuid.UUID
	Period     Period
	ByCategory []CategoryTotal
	Income     decimal.Decimal
	Expenses   decimal.Decimal
	Net        decimal.Decimal
}
