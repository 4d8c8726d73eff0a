package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"kontor/internal/core"
	"kontor/internal/services"
)

type budgetCategoryResponse struct {
	DefinitionID  int64   `json:"definition_id"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	BudgetedCents int64   `json:"budgeted_cents"`
	SpentCents    int64   `json:"spent_cents"`
	Percentage    float64 `json:"percentage"`
}

type annualItemResponse struct {
	DefinitionID  int64   `json:"definition_id"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	BudgetedCents int64   `json:"budgeted_cents"`
	SpentCents    int64   `json:"spent_cents"`
	Percentage    float64 `json:"percentage"`
	TargetDate    string  `json:"target_date"`
	Status        string  `json:"status"`
}

type totalsResponse struct {
	Monthly struct {
		BudgetCents int64   `json:"budget_cents"`
		SpentCents  int64   `json:"spent_cents"`
		Percentage  float64 `json:"percentage"`
	} `json:"monthly"`
	Annual struct {
		BudgetCents    int64 `json:"budget_cents"`
		SpentCents     int64 `json:"spent_cents"`
		CompletedCount int   `json:"completed_count"`
		OverdueCount   int   `json:"overdue_count"`
	} `json:"annual"`
}

type overviewResponse struct {
	Date        string                   `json:"date"`
	Categories  []budgetCategoryResponse `json:"categories"`
	AnnualItems []annualItemResponse     `json:"annual_items"`
	Totals      totalsResponse           `json:"totals"`
}

func toOverviewResponse(ov services.Overview, date core.Date) overviewResponse {
	resp := overviewResponse{
		Date:        formatDate(date),
		Categories:  make([]budgetCategoryResponse, 0, len(ov.Categories)),
		AnnualItems: make([]annualItemResponse, 0, len(ov.AnnualItems)),
	}

	for _, c := range ov.Categories {
		resp.Categories = append(resp.Categories, budgetCategoryResponse{
			DefinitionID:  c.DefinitionID,
			Name:          c.Name,
			Category:      c.Category,
			BudgetedCents: c.Budgeted.Cents,
			SpentCents:    c.Spent.Cents,
			Percentage:    c.Percentage,
		})
	}

	for _, item := range ov.AnnualItems {
		resp.AnnualItems = append(resp.AnnualItems, annualItemResponse{
			DefinitionID:  item.DefinitionID,
			Name:          item.Name,
			Category:      item.Category,
			BudgetedCents: item.Budgeted.Cents,
			SpentCents:    item.Spent.Cents,
			Percentage:    item.Percentage,
			TargetDate:    formatDate(item.TargetDate),
			Status:        string(item.Status),
		})
	}

	resp.Totals.Monthly.BudgetCents = ov.Totals.Monthly.Budget.Cents
	resp.Totals.Monthly.SpentCents = ov.Totals.Monthly.Spent.Cents
	resp.Totals.Monthly.Percentage = ov.Totals.Monthly.Percentage
	resp.Totals.Annual.BudgetCents = ov.Totals.Annual.Budget.Cents
	resp.Totals.Annual.SpentCents = ov.Totals.Annual.Spent.Cents
	resp.Totals.Annual.CompletedCount = ov.Totals.Annual.CompletedCount
	resp.Totals.Annual.OverdueCount = ov.Totals.Annual.OverdueCount

	return resp
}

func overviewCacheKey(owner string, date core.Date) string {
	return fmt.Sprintf("%s:overview:%s", owner, formatDate(date))
}

// invalidateOverviews drops every cached overview for the owner. Called by
// all write handlers; the cache TTL covers writes arriving from the worker.
func (s *Server) invalidateOverviews(owner string) {
	s.overviewCache.DeletePrefix(owner + ":")
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	date := referenceDate(r)
	key := overviewCacheKey(o, date)

	if cached, ok := s.overviewCache.Get(key); ok {
		writeJSON(w, http.StatusOK, toOverviewResponse(cached, date))
		return
	}

	ov, err := s.ledger.Overview(r.Context(), o, date)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to derive overview", "owner", o, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.overviewCache.Set(key, ov)
	writeJSON(w, http.StatusOK, toOverviewResponse(ov, date))
}

// handleAnnualItemEntries lists the ledger entries counted toward one annual
// budget item, so the aggregate and its detail always agree.
func (s *Server) handleAnnualItemEntries(w http.ResponseWriter, r *http.Request) {
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

	defs, err := s.ledger.ListDefinitions(r.Context(), o)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list definitions", "owner", o, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var def *core.BudgetDefinition
	for i := range defs {
		if defs[i].ID == id {
			def = &defs[i]
			break
		}
	}
	if def == nil || def.Period != core.Yearly {
		writeError(w, http.StatusNotFound, "annual budget item not found")
		return
	}

	entries, err := s.ledger.ListEntries(r.Context(), o)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list entries", "owner", o, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	matched := services.EntriesForAnnualItem(entries, *def, referenceDate(r))
	out := make([]entryResponse, 0, len(matched))
	for _, e := range matched {
		out = append(out, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}
