package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	applog "kontor/internal/log"
	"kontor/internal/services"
)

type generationResponse struct {
	RunID   string `json:"run_id"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
	Deleted int    `json:"deleted"`
	Failed  int    `json:"failed"`
}

func toGenerationResponse(r services.GenerationReport) generationResponse {
	return generationResponse{
		RunID:   r.RunID,
		Created: r.Created,
		Skipped: r.Skipped,
		Deleted: r.Deleted,
		Failed:  r.Failed,
	}
}

// runGeneration executes one generator op synchronously and renders its
// report. On-demand runs bypass the AMQP path so the caller sees the result.
func (s *Server) runGeneration(w http.ResponseWriter, r *http.Request, name string,
	run func(ctx context.Context, owner string) (services.GenerationReport, error)) {

	o, err := owner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := run(r.Context(), o)
	if err != nil {
		fields := applog.NewFields().WithOperation(name).WithError(err)
		fields[applog.FieldOwner] = o
		slog.ErrorContext(r.Context(), "Generation run failed", fields.ToSlice()...)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.InfoContext(r.Context(), "Generation run completed",
		applog.FieldOwner, o,
		applog.FieldOperation, name,
		applog.FieldRunID, report.RunID,
		"created", report.Created,
		"skipped", report.Skipped,
		"deleted", report.Deleted,
		"failed", report.Failed)

	s.invalidateOverviews(o)
	writeJSON(w, http.StatusOK, toGenerationResponse(report))
}

func (s *Server) handleGenerateEmployerTax(w http.ResponseWriter, r *http.Request) {
	s.runGeneration(w, r, "employer_tax", s.generator.RunEmployerTaxGeneration)
}

func (s *Server) handleCleanupEmployerTax(w http.ResponseWriter, r *http.Request) {
	s.runGeneration(w, r, "employer_tax_cleanup", s.generator.CleanupEmployerTax)
}

func (s *Server) handleGenerateVat(w http.ResponseWriter, r *http.Request) {
	years, err := parseYears(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.runGeneration(w, r, "yearly_vat", func(ctx context.Context, owner string) (services.GenerationReport, error) {
		resolved := years
		if len(resolved) == 0 {
			entries, err := s.ledger.ListEntries(ctx, owner)
			if err != nil {
				return services.GenerationReport{}, err
			}
			resolved = services.LedgerYears(entries)
		}
		return s.generator.RunYearlyVatGeneration(ctx, owner, resolved)
	})
}

func (s *Server) handleCleanupVat(w http.ResponseWriter, r *http.Request) {
	s.runGeneration(w, r, "yearly_vat_cleanup", s.generator.CleanupYearlyVat)
}

// parseYears reads the optional comma-separated "years" query parameter.
// Empty means every year present in the ledger.
func parseYears(r *http.Request) ([]int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("years"))
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	years := make([]int, 0, len(parts))
	for _, p := range parts {
		y, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, nil
}
