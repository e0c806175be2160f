package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"movimenti/internal/core"
	"movimenti/internal/storage"
)

type movementPayload struct {
	ID                   int64                    `json:"id"`
	Date                 core.Date                `json:"date"`
	Description          string                   `json:"description"`
	Kind                 core.MovementKind        `json:"kind"`
	CategoryID           int64                    `json:"category_id,omitempty"`
	AmountCents          int64                    `json:"amount_cents"`
	Amount               string                   `json:"amount"`
	PaymentMethod        string                   `json:"payment_method,omitempty"`
	OriginAccountID      *int64                   `json:"origin_account_id,omitempty"`
	DestinationAccountID *int64                   `json:"destination_account_id,omitempty"`
	CreditInstrumentID   *int64                   `json:"credit_instrument_id,omitempty"`
	Installments         *int64                   `json:"installments,omitempty"`
	Reconciled           core.ReconciliationState `json:"reconciled"`
	ReconciliationMonth  core.MonthTag            `json:"reconciliation_month"`
}

func toMovementPayload(m core.Movement) movementPayload {
	return movementPayload{
		ID:                   m.ID,
		Date:                 m.Date,
		Description:          m.Description,
		Kind:                 m.Kind,
		CategoryID:           m.CategoryID,
		AmountCents:          m.Amount.Cents,
		Amount:               m.Amount.String(),
		PaymentMethod:        m.PaymentMethod,
		OriginAccountID:      m.OriginAccountID,
		DestinationAccountID: m.DestinationAccountID,
		CreditInstrumentID:   m.CreditInstrumentID,
		Installments:         m.Installments,
		Reconciled:           m.Reconciled,
		ReconciliationMonth:  m.ReconciliationMonth,
	}
}

func toMovementPayloads(ms []core.Movement) []movementPayload {
	out := make([]movementPayload, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMovementPayload(m))
	}
	return out
}

type createMovementRequest struct {
	Date                 core.Date                `json:"date"`
	Description          string                   `json:"description"`
	Kind                 core.MovementKind        `json:"kind"`
	CategoryID           int64                    `json:"category_id"`
	AmountCents          int64                    `json:"amount_cents"`
	Amount               string                   `json:"amount"`
	PaymentMethod        string                   `json:"payment_method"`
	OriginAccountID      *int64                   `json:"origin_account_id"`
	DestinationAccountID *int64                   `json:"destination_account_id"`
	CreditInstrumentID   *int64                   `json:"credit_instrument_id"`
	Installments         *int64                   `json:"installments"`
	Reconciled           core.ReconciliationState `json:"reconciled"`
	ReconciliationMonth  core.MonthTag            `json:"reconciliation_month"`
}

func (req createMovementRequest) toMovement(user string) (core.Movement, error) {
	cents := req.AmountCents
	if cents == 0 && req.Amount != "" {
		parsed, err := core.ParseDecimalToCents(req.Amount)
		if err != nil {
			return core.Movement{}, err
		}
		cents = parsed
	}
	return core.Movement{
		UserID:               user,
		Date:                 req.Date,
		Description:          sanitizeInput(req.Description),
		Kind:                 req.Kind,
		CategoryID:           req.CategoryID,
		Amount:               core.Money{Cents: cents},
		PaymentMethod:        sanitizeInput(req.PaymentMethod),
		OriginAccountID:      req.OriginAccountID,
		DestinationAccountID: req.DestinationAccountID,
		CreditInstrumentID:   req.CreditInstrumentID,
		Installments:         req.Installments,
		Reconciled:           req.Reconciled,
		ReconciliationMonth:  req.ReconciliationMonth,
	}, nil
}

func (s *Server) handleMovements(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listMovements(w, r)
	case http.MethodPost:
		s.createMovement(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) listMovements(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)
	filter := storage.MovementFilter{
		Year:  year,
		Month: month,
		Kind:  core.MovementKind(strings.TrimSpace(r.URL.Query().Get("kind"))),
	}
	if v := strings.TrimSpace(r.URL.Query().Get("category_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid category_id"})
			return
		}
		filter.CategoryID = id
	}
	if filter.Kind != "" {
		if err := filter.Kind.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid kind"})
			return
		}
	}

	movements, err := s.dashboards.Movements(r.Context(), userID(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementPayloads(movements))
}

func (s *Server) createMovement(w http.ResponseWriter, r *http.Request) {
	var req createMovementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	m, err := req.toMovement(userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.movements.Create(r.Context(), m)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Movement created",
		"movement_id", created.ID,
		"kind", created.Kind,
		"amount_cents", created.Amount.Cents)
	writeJSON(w, http.StatusCreated, toMovementPayload(created))
}

func (s *Server) handleMovementByID(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/movements/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid movement id"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		m, err := s.movements.Get(r.Context(), userID(r), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toMovementPayload(m))

	case http.MethodPatch:
		var patch core.MovementPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		if patch.IsZero() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty patch"})
			return
		}

		updated, err := s.movements.Update(r.Context(), userID(r), id, patch)
		if err != nil {
			writeError(w, r, err)
			return
		}

		slog.InfoContext(r.Context(), "Movement updated",
			"movement_id", id,
			"amount_cents", updated.Amount.Cents)
		writeJSON(w, http.StatusOK, toMovementPayload(updated))

	case http.MethodDelete:
		if err := s.movements.Delete(r.Context(), userID(r), id); err != nil {
			writeError(w, r, err)
			return
		}
		slog.InfoContext(r.Context(), "Movement deleted", "movement_id", id)
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, "GET, PATCH, DELETE")
	}
}

type monthFlowPayload struct {
	Month        core.MonthTag `json:"month"`
	IncomeCents  int64         `json:"income_cents"`
	ExpenseCents int64         `json:"expense_cents"`
}

type categoryAmountPayload struct {
	CategoryID  int64 `json:"category_id"`
	AmountCents int64 `json:"amount_cents"`
}

type dashboardPayload struct {
	TotalBalanceCents int64                   `json:"total_balance_cents"`
	TotalBalance      string                  `json:"total_balance"`
	CurrentMonth      []movementPayload       `json:"current_month"`
	PreviousMonth     []movementPayload       `json:"previous_month"`
	History           []monthFlowPayload      `json:"history"`
	TopCategories     []categoryAmountPayload `json:"top_categories"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	d, err := s.dashboards.Dashboard(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload := dashboardPayload{
		TotalBalanceCents: d.TotalBalance.Cents,
		TotalBalance:      d.TotalBalance.String(),
		CurrentMonth:      toMovementPayloads(d.CurrentMonth),
		PreviousMonth:     toMovementPayloads(d.PreviousMonth),
		History:           make([]monthFlowPayload, 0, len(d.History)),
		TopCategories:     make([]categoryAmountPayload, 0, len(d.TopCategories)),
	}
	for _, f := range d.History {
		payload.History = append(payload.History, monthFlowPayload{
			Month:        f.Month,
			IncomeCents:  f.Income.Cents,
			ExpenseCents: f.Expense.Cents,
		})
	}
	for _, c := range d.TopCategories {
		payload.TopCategories = append(payload.TopCategories, categoryAmountPayload{
			CategoryID:  c.CategoryID,
			AmountCents: c.Amount.Cents,
		})
	}

	writeJSON(w, http.StatusOK, payload)
}

// handleImport bulk-loads movements from a CSV request body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	defer r.Body.Close()

	result, err := s.importer.Import(r.Context(), userID(r), r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	slog.InfoContext(r.Context(), "CSV import finished",
		"imported", result.Imported,
		"failed", len(result.Failed))
	writeJSON(w, http.StatusOK, result)
}
