// Package reports builds monthly summaries from the stored transaction
// aggregations. Pure read path; nothing is cached.
package reports

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

// TotalsReader is the aggregation the report service reads.
type TotalsReader interface {
	CategoryTotals(ctx context.Context, userID uuid.UUID, year, month int) ([]core.CategoryTotal, error)
}

type Service struct {
	totals TotalsReader
}

func New(totals TotalsReader) *Service {
	return &Service{totals: totals}
}

// Monthly returns a user's per-category totals for one period, with income,
// expense, and net rollups. Transfers move money between the user's own
// accounts, so they are excluded from the rollups but still listed.
func (s *Service) Monthly(ctx context.Context, userID uuid.UUID, year, month int) (core.MonthlyReport, error) {
	period := core.Period{Year: year, Month: month}
	if err := period.Validate(); err != nil {
		return core.MonthlyReport{}, err
	}

	totals, err := s.totals.CategoryTotals(ctx, userID, year, month)
	if err != nil {
		return core.MonthlyReport{}, fmt.Errorf("category totals: %w", err)
	}

	report := core.MonthlyReport{
		UserID:     userID,
		Period:     period,
		ByCategory: totals,
		Income:     decimal.Zero,
		Expenses:   decimal.Zero,
	}
	for _, ct := range totals {
		switch ct.Type {
		case core.Income:
			report.Income = report.Income.Add(ct.Total)
		case core.Expense:
			report.Expenses = report.Expenses.Add(ct.Total)
		}
	}
	report.Net = report.Income.Sub(report.Expenses)
	return report, nil
}
