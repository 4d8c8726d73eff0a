package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"kontor/internal/core"
	applog "kontor/internal/log"
)

type entryRequest struct {
	Kind              string `json:"kind"`
	Amount            string `json:"amount"` // decimal kronor, e.g. "1250,50"
	Description       string `json:"description"`
	Category          string `json:"category"`
	Date              string `json:"date"` // YYYY-MM-DD
	IsRecurring       bool   `json:"is_recurring"`
	RecurringInterval string `json:"recurring_interval,omitempty"`
	IsBudgetEntry     bool   `json:"is_budget_entry"`

	VatAmount   string  `json:"vat_amount,omitempty"`
	AmountExVat string  `json:"amount_ex_vat,omitempty"`
	VatRate     float64 `json:"vat_rate,omitempty"`
}

type entryResponse struct {
	ID                  int64   `json:"id"`
	Owner               string  `json:"owner"`
	Kind                string  `json:"kind"`
	AmountCents         int64   `json:"amount_cents"`
	Amount              float64 `json:"amount"`
	Description         string  `json:"description"`
	Category            string  `json:"category"`
	Date                string  `json:"date"`
	IsRecurring         bool    `json:"is_recurring"`
	RecurringInterval   string  `json:"recurring_interval,omitempty"`
	NextDueDate         string  `json:"next_due_date,omitempty"`
	IsBudgetEntry       bool    `json:"is_budget_entry"`
	IsRecurringInstance bool    `json:"is_recurring_instance"`
	VatAmountCents      int64   `json:"vat_amount_cents,omitempty"`
	AmountExVatCents    int64   `json:"amount_ex_vat_cents,omitempty"`
	VatRate             float64 `json:"vat_rate,omitempty"`
}

func toEntryResponse(e core.LedgerEntry) entryResponse {
	return entryResponse{
		ID:                  e.ID,
		Owner:               e.Owner,
		Kind:                string(e.Kind),
		AmountCents:         e.Amount.Cents,
		Amount:              e.Amount.Kronor(),
		Description:         e.Description,
		Category:            e.Category,
		Date:                formatDate(e.Date),
		IsRecurring:         e.IsRecurring,
		RecurringInterval:   string(e.RecurringInterval),
		NextDueDate:         formatDate(e.NextDueDate),
		IsBudgetEntry:       e.IsBudgetEntry,
		IsRecurringInstance: e.IsRecurringInstance,
		VatAmountCents:      e.VatAmount.Cents,
		AmountExVatCents:    e.AmountExVat.Cents,
		VatRate:             e.VatRate,
	}
}

func (req entryRequest) toDraft(owner string) (core.LedgerEntry, error) {
	amountCents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return core.LedgerEntry{}, err
	}

	date, err := parseDate(req.Date)
	if err != nil {
		return core.LedgerEntry{}, err
	}

	draft := core.LedgerEntry{
		Owner:             owner,
		Kind:              core.EntryKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Amount:            core.Money{Cents: amountCents},
		Description:       strings.TrimSpace(req.Description),
		Category:          strings.TrimSpace(req.Category),
		Date:              date,
		IsRecurring:       req.IsRecurring,
		RecurringInterval: core.Period(strings.ToLower(strings.TrimSpace(req.RecurringInterval))),
		IsBudgetEntry:     req.IsBudgetEntry,
		VatRate:           req.VatRate,
	}

	if req.VatAmount != "" {
		cents, err := core.ParseDecimalToCents(req.VatAmount)
		if err != nil {
			return core.LedgerEntry{}, err
		}
		draft.VatAmount = core.Money{Cents: cents}
	}
	if req.AmountExVat != "" {
		cents, err := core.ParseDecimalToCents(req.AmountExVat)
		if err != nil {
			return core.LedgerEntry{}, err
		}
		draft.AmountExVat = core.Money{Cents: cents}
	}

	return draft, nil
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	draft, err := req.toDraft(o)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := s.ledger.CreateEntry(r.Context(), draft)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to create entry", "owner", o, "error", err)
		writeDomainError(w, err)
		return
	}

	slog.InfoContext(r.Context(), "Entry created",
		applog.NewFields().
			WithOperation(applog.OpCreate).
			WithEntry(entry.Owner, entry.ID, entry.Category, entry.Amount.Cents).
			ToSlice()...)

	s.invalidateOverviews(o)
	writeJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.ledger.ListEntries(r.Context(), o)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list entries", "owner", o, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	entry, err := s.ledger.GetEntry(r.Context(), o, id)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to get entry", "owner", o, "entry_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponse(*entry))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	deleted, err := s.ledger.DeleteEntry(r.Context(), o, id)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to delete entry", "owner", o, "entry_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}

	s.invalidateOverviews(o)
	w.WriteHeader(http.StatusNoContent)
}
