package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"movimenti/internal/core"
)

type accountPayload struct {
	ID                   int64  `json:"id"`
	Name                 string `json:"name"`
	Bank                 string `json:"bank,omitempty"`
	InitialBalanceCents  int64  `json:"initial_balance_cents"`
	FinalBalanceCents    *int64 `json:"final_balance_cents,omitempty"`
	ComputedBalanceCents int64  `json:"computed_balance_cents"`
	ComputedBalance      string `json:"computed_balance"`
	Active               bool   `json:"active"`
}

func toAccountPayload(a core.Account) accountPayload {
	p := accountPayload{
		ID:                   a.ID,
		Name:                 a.Name,
		Bank:                 a.Bank,
		InitialBalanceCents:  a.InitialBalance.Cents,
		ComputedBalanceCents: a.ComputedBalance.Cents,
		ComputedBalance:      a.ComputedBalance.String(),
		Active:               a.Active,
	}
	if a.FinalBalance != nil {
		cents := a.FinalBalance.Cents
		p.FinalBalanceCents = &cents
	}
	return p
}

type accountRequest struct {
	Name                string `json:"name"`
	Bank                string `json:"bank"`
	InitialBalanceCents int64  `json:"initial_balance_cents"`
	FinalBalanceCents   *int64 `json:"final_balance_cents"`
	Active              *bool  `json:"active"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		accounts, err := s.repo.ListAccounts(r.Context(), userID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]accountPayload, 0, len(accounts))
		for _, a := range accounts {
			out = append(out, toAccountPayload(a))
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req accountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		account := core.Account{
			UserID:         userID(r),
			Name:           sanitizeInput(req.Name),
			Bank:           sanitizeInput(req.Bank),
			InitialBalance: core.Money{Cents: req.InitialBalanceCents},
			Active:         true,
		}
		if req.FinalBalanceCents != nil {
			account.FinalBalance = &core.Money{Cents: *req.FinalBalanceCents}
		}
		if req.Active != nil {
			account.Active = *req.Active
		}
		if err := account.Validate(); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return
		}

		id, err := s.repo.CreateAccount(r.Context(), account)
		if err != nil {
			writeError(w, r, err)
			return
		}
		account.ID = id
		account.ComputedBalance = account.InitialBalance

		// The initial balance is part of the dashboard total.
		s.dashboards.InvalidateUser(userID(r))

		slog.InfoContext(r.Context(), "Account created",
			"account_id", id, "name", account.Name)
		writeJSON(w, http.StatusCreated, toAccountPayload(account))

	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) handleAccountByID(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid account id"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		a, err := s.repo.GetAccount(r.Context(), userID(r), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAccountPayload(a))

	case http.MethodPut:
		a, err := s.repo.GetAccount(r.Context(), userID(r), id)
		if err != nil {
			writeError(w, r, err)
			return
		}

		var req accountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		// Descriptive fields only; the computed balance is owned by the
		// movement write path.
		if req.Name != "" {
			a.Name = sanitizeInput(req.Name)
		}
		if req.Bank != "" {
			a.Bank = sanitizeInput(req.Bank)
		}
		if req.FinalBalanceCents != nil {
			a.FinalBalance = &core.Money{Cents: *req.FinalBalanceCents}
		}
		if req.Active != nil {
			a.Active = *req.Active
		}
		if err := a.Validate(); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return
		}

		if err := s.repo.UpdateAccountDetails(r.Context(), a); err != nil {
			writeError(w, r, err)
			return
		}
		s.dashboards.InvalidateUser(userID(r))
		writeJSON(w, http.StatusOK, toAccountPayload(a))

	default:
		methodNotAllowed(w, "GET, PUT")
	}
}

type categoryRequest struct {
	Name string `json:"name"`
}

type categoryPayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories, err := s.repo.ListCategories(r.Context(), userID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]categoryPayload, 0, len(categories))
		for _, c := range categories {
			out = append(out, categoryPayload{ID: c.ID, Name: c.Name})
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req categoryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		name := sanitizeInput(req.Name)
		if name == "" {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "empty category name"})
			return
		}

		id, err := s.repo.CreateCategory(r.Context(), core.Category{UserID: userID(r), Name: name})
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.dashboards.InvalidateUser(userID(r))
		writeJSON(w, http.StatusCreated, categoryPayload{ID: id, Name: name})

	default:
		methodNotAllowed(w, "GET, POST")
	}
}

type budgetRequest struct {
	CategoryID int64         `json:"category_id"`
	Month      core.MonthTag `json:"month"`
	LimitCents int64         `json:"limit_cents"`
}

type budgetStatusPayload struct {
	ID         int64         `json:"id"`
	CategoryID int64         `json:"category_id"`
	Month      core.MonthTag `json:"month"`
	LimitCents int64         `json:"limit_cents"`
	SpentCents int64         `json:"spent_cents"`
	Over       bool          `json:"over"`
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		month := core.MonthTag(strings.TrimSpace(r.URL.Query().Get("month")))
		if month == "" {
			month = core.MonthTagOf(time.Now())
		}
		if err := month.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid month"})
			return
		}

		statuses, err := s.budgets.Status(r.Context(), userID(r), month)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]budgetStatusPayload, 0, len(statuses))
		for _, st := range statuses {
			out = append(out, budgetStatusPayload{
				ID:         st.Budget.ID,
				CategoryID: st.Budget.CategoryID,
				Month:      st.Budget.Month,
				LimitCents: st.Budget.Limit.Cents,
				SpentCents: st.Spent.Cents,
				Over:       st.Over,
			})
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req budgetRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		b, err := s.budgets.Create(r.Context(), core.Budget{
			UserID:     userID(r),
			CategoryID: req.CategoryID,
			Month:      req.Month,
			Limit:      core.Money{Cents: req.LimitCents},
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		slog.InfoContext(r.Context(), "Budget created",
			"budget_id", b.ID, "category_id", b.CategoryID, "month", b.Month)
		writeJSON(w, http.StatusCreated, budgetStatusPayload{
			ID:         b.ID,
			CategoryID: b.CategoryID,
			Month:      b.Month,
			LimitCents: b.Limit.Cents,
		})

	default:
		methodNotAllowed(w, "GET, POST")
	}
}
