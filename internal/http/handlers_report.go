package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

type categoryTotalResponse struct {
	CategoryID   string          `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Type         string          `json:"type"`
	Total        decimal.Decimal `json:"total"`
}

type monthlyReportResponse struct {
	UserID     string                  `json:"user_id"`
	Period     string                  `json:"period"`
	ByCategory []categoryTotalResponse `json:"by_category"`
	Income     decimal.Decimal         `json:"income"`
	Expenses   decimal.Decimal         `json:"expenses"`
	Net        decimal.Decimal         `json:"net"`
}

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUUID(r, "user")
	if err != nil {
		writeError(w, r, err)
		return
	}
	year, month := parseYearMonth(r)

	report, err := s.reports.Monthly(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toMonthlyReportResponse(report))
}

func toMonthlyReportResponse(report core.MonthlyReport) monthlyReportResponse {
	byCategory := make([]categoryTotalResponse, len(report.ByCategory))
	for i, ct := range report.ByCategory {
		byCategory[i] = categoryTotalResponse{
			CategoryID:   ct.CategoryID.String(),
			CategoryName: ct.CategoryName,
			Type:         string(ct.Type),
			Total:        ct.Total,
		}
	}
	return monthlyReportResponse{
		UserID:     report.UserID.String(),
		Period:     report.Period.String(),
		ByCategory: byCategory,
		Income:     report.Income,
		Expenses:   report.Expenses,
		Net:        report.Net,
	}
}
