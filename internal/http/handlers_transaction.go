package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/engine"
)

type createTransactionRequest struct {
	UserID            string  `json:"user_id"`
	AccountID         string  `json:"account_id"`
	CategoryID        string  `json:"category_id"`
	Amount            string  `json:"amount"`
	Type              string  `json:"type"`
	OccurredAt        string  `json:"occurred_at"`
	TransferAccountID *string `json:"transfer_account_id,omitempty"`
	Description       string  `json:"description,omitempty"`
}

type updateTransactionRequest struct {
	Amount      *string `json:"amount,omitempty"`
	CategoryID  *string `json:"category_id,omitempty"`
	OccurredAt  *string `json:"occurred_at,omitempty"`
	Description *string `json:"description,omitempty"`
}

type transactionResponse struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	AccountID         uuid.UUID       `json:"account_id"`
	CategoryID        uuid.UUID       `json:"category_id"`
	TransferAccountID *uuid.UUID      `json:"transfer_account_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Type              string          `json:"type"`
	OccurredAt        time.Time       `json:"occurred_at"`
	Description       string          `json:"description,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func toTransactionResponse(tx core.Transaction) transactionResponse {
	return transactionResponse{
		ID:                tx.ID,
		UserID:            tx.UserID,
		AccountID:         tx.AccountID,
		CategoryID:        tx.CategoryID,
		TransferAccountID: tx.TransferAccountID,
		Amount:            tx.Amount,
		Type:              string(tx.Type),
		OccurredAt:        tx.OccurredAt,
		Description:       tx.Description,
		CreatedAt:         tx.CreatedAt,
		UpdatedAt:         tx.UpdatedAt,
	}
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	createReq, err := req.toEngineRequest()
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := s.engine.Create(r.Context(), createReq)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := s.engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUUID(r, "user")
	if err != nil {
		writeError(w, r, err)
		return
	}
	year, month := parseYearMonth(r)

	transactions, err := s.store.ListTransactions(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	responses := make([]transactionResponse, len(transactions))
	for i, tx := range transactions {
		responses[i] = toTransactionResponse(tx)
	}
	writeJSON(w, http.StatusOK, responses)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	patch, err := req.toPatch()
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := s.engine.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.engine.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (req createTransactionRequest) toEngineRequest() (engine.CreateRequest, error) {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return engine.CreateRequest{}, &core.ValidationError{Reason: "invalid user_id"}
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		return engine.CreateRequest{}, &core.ValidationError{Reason: "invalid account_id"}
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		return engine.CreateRequest{}, &core.ValidationError{Reason: "invalid category_id"}
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return engine.CreateRequest{}, err
	}
	occurredAt, err := parseTimestamp(req.OccurredAt)
	if err != nil {
		return engine.CreateRequest{}, err
	}

	out := engine.CreateRequest{
		UserID:      userID,
		AccountID:   accountID,
		CategoryID:  categoryID,
		Amount:      amount,
		Type:        core.TransactionType(req.Type),
		OccurredAt:  occurredAt,
		Description: req.Description,
	}
	if req.TransferAccountID != nil {
		transferID, err := uuid.Parse(*req.TransferAccountID)
		if err != nil {
			return engine.CreateRequest{}, &core.ValidationError{Reason: "invalid transfer_account_id"}
		}
		out.TransferAccountID = &transferID
	}
	return out, nil
}

func (req updateTransactionRequest) toPatch() (core.TransactionPatch, error) {
	var patch core.TransactionPatch

	if req.Amount != nil {
		amount, err := core.ParseAmount(*req.Amount)
		if err != nil {
			return core.TransactionPatch{}, err
		}
		patch.Amount = &amount
	}
	if req.CategoryID != nil {
		categoryID, err := uuid.Parse(*req.CategoryID)
		if err != nil {
			return core.TransactionPatch{}, &core.ValidationError{Reason: "invalid category_id"}
		}
		patch.CategoryID = &categoryID
	}
	if req.OccurredAt != nil {
		occurredAt, err := parseTimestamp(*req.OccurredAt)
		if err != nil {
			return core.TransactionPatch{}, err
		}
		patch.OccurredAt = &occurredAt
	}
	patch.Description = req.Description

	return patch, nil
}

// parseTimestamp accepts RFC3339 or plain YYYY-MM-DD.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, &core.ValidationError{Reason: "invalid occurred_at: " + s}
}
