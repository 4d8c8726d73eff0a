package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"kontor/internal/core"
)

type definitionRequest struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	BudgetLimit string `json:"budget_limit"` // decimal kronor
	Period      string `json:"period"`
	StartDate   string `json:"start_date"` // YYYY-MM-DD
	IsActive    *bool  `json:"is_active,omitempty"`
}

type definitionResponse struct {
	ID               int64   `json:"id"`
	Owner            string  `json:"owner"`
	Name             string  `json:"name"`
	Category         string  `json:"category"`
	BudgetLimitCents int64   `json:"budget_limit_cents"`
	BudgetLimit      float64 `json:"budget_limit"`
	Period           string  `json:"period"`
	StartDate        string  `json:"start_date"`
	IsActive         bool    `json:"is_active"`
}

func toDefinitionResponse(d core.BudgetDefinition) definitionResponse {
	return definitionResponse{
		ID:               d.ID,
		Owner:            d.Owner,
		Name:             d.Name,
		Category:         d.Category,
		BudgetLimitCents: d.BudgetLimit.Cents,
		BudgetLimit:      d.BudgetLimit.Kronor(),
		Period:           string(d.Period),
		StartDate:        formatDate(d.StartDate),
		IsActive:         d.IsActive,
	}
}

func (req definitionRequest) toDefinition(owner string) (core.BudgetDefinition, error) {
	limitCents, err := core.ParseDecimalToCents(req.BudgetLimit)
	if err != nil {
		return core.BudgetDefinition{}, err
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		return core.BudgetDefinition{}, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	return core.BudgetDefinition{
		Owner:       owner,
		Name:        strings.TrimSpace(req.Name),
		Category:    strings.TrimSpace(req.Category),
		BudgetLimit: core.Money{Cents: limitCents},
		Period:      core.Period(strings.ToLower(strings.TrimSpace(req.Period))),
		StartDate:   startDate,
		IsActive:    active,
	}, nil
}

func (s *Server) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	defs, err := s.ledger.ListDefinitions(r.Context(), o)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list definitions", "owner", o, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]definitionResponse, 0, len(defs))
	for _, d := range defs {
		out = append(out, toDefinitionResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req definitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	def, err := req.toDefinition(o)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.ledger.CreateDefinition(r.Context(), def)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to create definition", "owner", o, "error", err)
		writeDomainError(w, err)
		return
	}

	s.invalidateOverviews(o)
	writeJSON(w, http.StatusCreated, toDefinitionResponse(created))
}

func (s *Server) handleUpdateDefinition(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid definition id")
		return
	}

	var req definitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	def, err := req.toDefinition(o)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	def.ID = id

	if err := s.ledger.UpdateDefinition(r.Context(), def); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "definition not found")
			return
		}
		slog.ErrorContext(r.Context(), "Failed to update definition", "owner", o, "definition_id", id, "error", err)
		writeDomainError(w, err)
		return
	}

	s.invalidateOverviews(o)
	writeJSON(w, http.StatusOK, toDefinitionResponse(def))
}

func (s *Server) handleDeleteDefinition(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid definition id")
		return
	}

	deleted, err := s.ledger.DeleteDefinition(r.Context(), o, id)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to delete definition", "owner", o, "definition_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "definition not found")
		return
	}

	s.invalidateOverviews(o)
	w.WriteHeader(http.StatusNoContent)
}
