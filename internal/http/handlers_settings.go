package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"kontor/internal/core"
)

type settingsPayload struct {
	AutoGenerateEmployerTax bool    `json:"auto_generate_employer_tax"`
	EmployerTaxPaymentDay   int     `json:"employer_tax_payment_day"`
	AutoGenerateYearlyVat   bool    `json:"auto_generate_yearly_vat"`
	VatRateIncome           float64 `json:"vat_rate_income"`
	VatRateExpenses         float64 `json:"vat_rate_expenses"`
}

func toSettingsPayload(s core.UserSettings) settingsPayload {
	return settingsPayload{
		AutoGenerateEmployerTax: s.AutoGenerateEmployerTax,
		EmployerTaxPaymentDay:   s.EmployerTaxPaymentDay,
		AutoGenerateYearlyVat:   s.AutoGenerateYearlyVat,
		VatRateIncome:           s.VatRateIncome,
		VatRateExpenses:         s.VatRateExpenses,
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings, err := s.ledger.GetSettings(r.Context(), o)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to get settings", "owner", o, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toSettingsPayload(settings))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	o, err := owner(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	applied, err := s.ledger.ApplySettings(r.Context(), core.UserSettings{
		Owner:                   o,
		AutoGenerateEmployerTax: req.AutoGenerateEmployerTax,
		EmployerTaxPaymentDay:   req.EmployerTaxPaymentDay,
		AutoGenerateYearlyVat:   req.AutoGenerateYearlyVat,
		VatRateIncome:           req.VatRateIncome,
		VatRateExpenses:         req.VatRateExpenses,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to apply settings", "owner", o, "error", err)
		writeDomainError(w, err)
		return
	}

	s.invalidateOverviews(o)
	writeJSON(w, http.StatusOK, toSettingsPayload(applied))
}
