package http

import (
	"net/http"

	"github.com/google/uuid"

	"finledger/internal/core"
)

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Name == "" || req.Email == "" {
		writeError(w, r, &core.ValidationError{Reason: "name and email are required"})
		return
	}

	user, err := s.store.CreateUser(r.Context(), core.User{Name: req.Name, Email: req.Email})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type createAccountRequest struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Balance string `json:"balance,omitempty"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, r, &core.ValidationError{Reason: "invalid user_id"})
		return
	}
	if req.Name == "" {
		writeError(w, r, &core.ValidationError{Reason: "account name is required"})
		return
	}

	account := core.Account{UserID: userID, Name: req.Name}
	if req.Balance != "" {
		balance, err := core.ParseAmount(req.Balance)
		if err != nil {
			writeError(w, r, err)
			return
		}
		account.Balance = balance
	}

	created, err := s.store.CreateAccount(r.Context(), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	account, err := s.store.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUUID(r, "user")
	if err != nil {
		writeError(w, r, err)
		return
	}

	accounts, err := s.store.ListAccounts(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

type createCategoryRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, r, &core.ValidationError{Reason: "invalid user_id"})
		return
	}

	category, err := s.store.CreateCategory(r.Context(), core.Category{
		UserID: userID,
		Name:   req.Name,
		Type:   core.CategoryType(req.Type),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUUID(r, "user")
	if err != nil {
		writeError(w, r, err)
		return
	}

	categories, err := s.store.ListCategories(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

type createBudgetRequest struct {
	UserID     string `json:"user_id"`
	CategoryID string `json:"category_id"`
	Year       int    `json:"year"`
	Month      int    `json:"month"`
	Amount     string `json:"amount"`
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req createBudgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, r, &core.ValidationError{Reason: "invalid user_id"})
		return
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		writeError(w, r, &core.ValidationError{Reason: "invalid category_id"})
		return
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	budget, err := s.store.CreateBudget(r.Context(), core.Budget{
		UserID:     userID,
		CategoryID: categoryID,
		Year:       req.Year,
		Month:      req.Month,
		Amount:     amount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, budget)
}
