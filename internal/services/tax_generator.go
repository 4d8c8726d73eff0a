// This file implements the automated employer-tax and yearly-VAT generators.
//
// Both generators are idempotent by existence-check: every iteration looks
// for an already-created matching entry before inserting, so re-running
// after a partial failure converges to the complete, duplicate-free target
// set. There is no "already ran" flag and no locking; under concurrent
// writers for the same owner the read-then-insert window can race (known
// limitation of the single-writer-per-owner design).
package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	"kontor/internal/core"
)

// EmployerTaxRate is the Swedish employer contribution applied to gross
// salary entries.
const EmployerTaxRate = 0.3142

const (
	CategorySalary      = "Salary"
	CategoryEmployerTax = "Employer Tax"
	CategoryMomsTax     = "MOMS Tax"
)

const employerTaxDescriptionPrefix = "Employer Tax - "

// LedgerStore is the slice of the ledger store the generators need.
type LedgerStore interface {
	InsertEntry(ctx context.Context, e core.LedgerEntry) (core.LedgerEntry, error)
	DeleteEntry(ctx context.Context, owner string, id int64) (bool, error)
	ListEntries(ctx context.Context, owner string) ([]core.LedgerEntry, error)
	ListEntriesByCategory(ctx context.Context, owner, category string) ([]core.LedgerEntry, error)
	ListExpensesByCategory(ctx context.Context, owner, category string) ([]core.LedgerEntry, error)
	DeleteEntriesByCategory(ctx context.Context, owner, category string) (int64, error)
}

// SettingsStore reads the per-owner automation settings.
type SettingsStore interface {
	GetSettings(ctx context.Context, owner string) (core.UserSettings, error)
}

// GenerationReport summarizes one best-effort generator run.
type GenerationReport struct {
	RunID   string
	Created int
	Skipped int
	Deleted int
	Failed  int
}

// TaxGenerator creates and removes the derived employer-tax and MOMS ledger
// entries in reaction to settings toggles and payroll events.
type TaxGenerator struct {
	store    LedgerStore
	settings SettingsStore
}

func NewTaxGenerator(store LedgerStore, settings SettingsStore) *TaxGenerator {
	return &TaxGenerator{store: store, settings: settings}
}

// RunEmployerTaxGeneration converges the set of "Employer Tax" entries to
// one per qualifying salary entry. The batch is best-effort: a failing item
// is logged and counted, the rest of the batch still runs.
func (g *TaxGenerator) RunEmployerTaxGeneration(ctx context.Context, owner string) (GenerationReport, error) {
	report := GenerationReport{RunID: uuid.NewString()}

	settings, err := g.settings.GetSettings(ctx, owner)
	if err != nil {
		return report, fmt.Errorf("get settings: %w", err)
	}

	salaries, err := g.store.ListExpensesByCategory(ctx, owner, CategorySalary)
	if err != nil {
		return report, fmt.Errorf("list salary entries: %w", err)
	}

	existing, err := g.store.ListEntriesByCategory(ctx, owner, CategoryEmployerTax)
	if err != nil {
		return report, fmt.Errorf("list employer tax entries: %w", err)
	}

	slog.InfoContext(ctx, "Running employer tax generation",
		"run_id", report.RunID,
		"owner", owner,
		"salary_entries", len(salaries),
		"payment_day", settings.EmployerTaxPaymentDay)

	for _, salary := range salaries {
		taxDate := EmployerTaxDate(salary.Date, settings.EmployerTaxPaymentDay)
		stripped := stripSalaryPrefix(salary.Description)

		if hasEmployerTaxEntry(existing, taxDate, stripped) {
			report.Skipped++
			continue
		}

		entry := core.LedgerEntry{
			Owner:       owner,
			Kind:        core.Expense,
			Amount:      EmployerTaxAmount(salary.Amount),
			Description: employerTaxDescriptionPrefix + stripped,
			Category:    CategoryEmployerTax,
			Date:        taxDate,
		}

		created, err := g.store.InsertEntry(ctx, entry)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to insert employer tax entry",
				"run_id", report.RunID,
				"salary_id", salary.ID,
				"tax_date", taxDate.Format("2006-01-02"),
				"error", err)
			report.Failed++
			continue
		}

		// Track the insert so identically-dated salaries in the same run
		// still dedup against each other.
		existing = append(existing, created)
		report.Created++
	}

	slog.InfoContext(ctx, "Employer tax generation complete",
		"run_id", report.RunID,
		"owner", owner,
		"created", report.Created,
		"skipped", report.Skipped,
		"failed", report.Failed)

	return report, nil
}

// CleanupEmployerTax bulk-deletes every generated employer-tax entry for the
// owner. Irreversible; runs when the toggle flips off.
func (g *TaxGenerator) CleanupEmployerTax(ctx context.Context, owner string) (GenerationReport, error) {
	report := GenerationReport{RunID: uuid.NewString()}

	n, err := g.store.DeleteEntriesByCategory(ctx, owner, CategoryEmployerTax)
	if err != nil {
		return report, fmt.Errorf("delete employer tax entries: %w", err)
	}
	report.Deleted = int(n)

	slog.InfoContext(ctx, "Employer tax cleanup complete",
		"run_id", report.RunID, "owner", owner, "deleted", report.Deleted)

	return report, nil
}

// RunYearlyVatGeneration converges each target year to at most one
// "MOMS Tax" liability entry dated January 1 of the following year,
// update-by-replace. Non-positive liability means no entry; an existing one
// from a previous run is removed. Best-effort across years.
func (g *TaxGenerator) RunYearlyVatGeneration(ctx context.Context, owner string, years []int) (GenerationReport, error) {
	report := GenerationReport{RunID: uuid.NewString()}

	settings, err := g.settings.GetSettings(ctx, owner)
	if err != nil {
		return report, fmt.Errorf("get settings: %w", err)
	}

	entries, err := g.store.ListEntries(ctx, owner)
	if err != nil {
		return report, fmt.Errorf("list ledger entries: %w", err)
	}

	momsEntries, err := g.store.ListEntriesByCategory(ctx, owner, CategoryMomsTax)
	if err != nil {
		return report, fmt.Errorf("list moms entries: %w", err)
	}

	slog.InfoContext(ctx, "Running yearly VAT generation",
		"run_id", report.RunID,
		"owner", owner,
		"years", years,
		"rate_income", settings.VatRateIncome,
		"rate_expenses", settings.VatRateExpenses)

	for _, year := range years {
		if err := g.generateVatForYear(ctx, owner, year, settings, entries, momsEntries, &report); err != nil {
			slog.ErrorContext(ctx, "Yearly VAT generation failed for year",
				"run_id", report.RunID, "year", year, "error", err)
			report.Failed++
		}
	}

	slog.InfoContext(ctx, "Yearly VAT generation complete",
		"run_id", report.RunID,
		"owner", owner,
		"created", report.Created,
		"skipped", report.Skipped,
		"deleted", report.Deleted,
		"failed", report.Failed)

	return report, nil
}

func (g *TaxGenerator) generateVatForYear(
	ctx context.Context,
	owner string,
	year int,
	settings core.UserSettings,
	entries []core.LedgerEntry,
	momsEntries []core.LedgerEntry,
	report *GenerationReport,
) error {
	liability := VatLiability(entries, year, settings.VatRateIncome, settings.VatRateExpenses)
	existing := findMomsEntry(momsEntries, year)

	if liability <= 0 {
		if existing != nil {
			if _, err := g.store.DeleteEntry(ctx, owner, existing.ID); err != nil {
				return fmt.Errorf("delete stale moms entry %d: %w", existing.ID, err)
			}
			report.Deleted++
		}
		return nil
	}

	if existing != nil {
		if existing.Amount.Cents == liability {
			report.Skipped++
			return nil
		}
		// Update-by-replace: the liability changed since the last run.
		if _, err := g.store.DeleteEntry(ctx, owner, existing.ID); err != nil {
			return fmt.Errorf("replace moms entry %d: %w", existing.ID, err)
		}
		report.Deleted++
	}

	entry := core.LedgerEntry{
		Owner:       owner,
		Kind:        core.Expense,
		Amount:      core.Money{Cents: liability},
		Description: fmt.Sprintf("MOMS Tax %d", year),
		Category:    CategoryMomsTax,
		Date:        core.NewDate(year+1, 1, 1),
	}
	if _, err := g.store.InsertEntry(ctx, entry); err != nil {
		return fmt.Errorf("insert moms entry for %d: %w", year, err)
	}
	report.Created++
	return nil
}

// CleanupYearlyVat bulk-deletes every "MOMS Tax" entry for the owner across
// all years. Runs when the toggle flips off.
func (g *TaxGenerator) CleanupYearlyVat(ctx context.Context, owner string) (GenerationReport, error) {
	report := GenerationReport{RunID: uuid.NewString()}

	n, err := g.store.DeleteEntriesByCategory(ctx, owner, CategoryMomsTax)
	if err != nil {
		return report, fmt.Errorf("delete moms entries: %w", err)
	}
	report.Deleted = int(n)

	slog.InfoContext(ctx, "Yearly VAT cleanup complete",
		"run_id", report.RunID, "owner", owner, "deleted", report.Deleted)

	return report, nil
}

// EmployerTaxAmount is the employer contribution on a gross salary amount,
// rounded half away from zero.
func EmployerTaxAmount(salary core.Money) core.Money {
	return core.Money{Cents: int64(math.Round(float64(salary.Cents) * EmployerTaxRate))}
}

// EmployerTaxDate places the tax payment in the month after the salary,
// rolling the year when the salary is dated in December. The day is the
// configured payment day capped at 28 so it exists in every month.
func EmployerTaxDate(salaryDate core.Date, paymentDay int) core.Date {
	day := paymentDay
	if day > 28 {
		day = 28
	}
	if day < 1 {
		day = 1
	}
	year, month := salaryDate.Year(), salaryDate.Month()+1
	if month > 12 {
		month = 1
		year++
	}
	return core.NewDate(year, month, day)
}

// VatLiability computes the VAT owed for one calendar year in öre:
// income subtotal times the income rate minus expense subtotal times the
// expense rate. Previously generated MOMS entries are excluded from the
// subtotals so the liability never feeds back into itself.
func VatLiability(entries []core.LedgerEntry, year int, rateIncome, rateExpenses float64) int64 {
	var incomeCents, expenseCents int64
	for _, e := range entries {
		if e.Date.Year() != year {
			continue
		}
		if strings.EqualFold(e.Category, CategoryMomsTax) {
			continue
		}
		switch e.Kind {
		case core.Income:
			incomeCents += e.Amount.Cents
		case core.Expense:
			expenseCents += e.Amount.Cents
		}
	}
	return int64(math.Round(float64(incomeCents)*rateIncome - float64(expenseCents)*rateExpenses))
}

// hasEmployerTaxEntry is the dedup key check: same tax date and a
// description containing the stripped source salary description.
func hasEmployerTaxEntry(existing []core.LedgerEntry, taxDate core.Date, strippedDescription string) bool {
	for _, e := range existing {
		if !e.Date.Equal(taxDate.Time) {
			continue
		}
		if strings.Contains(e.Description, strippedDescription) {
			return true
		}
	}
	return false
}

// stripSalaryPrefix removes a leading "Salary" token (plus separators) from
// a salary description, so "Salary March" becomes "March". The token must
// end at a word boundary; "Salaries paid" and descriptions without the
// prefix pass through unchanged.
func stripSalaryPrefix(description string) string {
	trimmed := strings.TrimSpace(description)
	lower := strings.ToLower(trimmed)
	token := strings.ToLower(CategorySalary)
	if !strings.HasPrefix(lower, token) {
		return trimmed
	}
	rest := trimmed[len(token):]
	if rest != "" && !strings.ContainsRune(" -:", rune(rest[0])) {
		return trimmed
	}
	rest = strings.TrimLeft(rest, " -:")
	if rest == "" {
		return trimmed
	}
	return rest
}

func findMomsEntry(momsEntries []core.LedgerEntry, year int) *core.LedgerEntry {
	for i := range momsEntries {
		e := &momsEntries[i]
		if e.Date.Year() == year+1 && e.Date.Month() == 1 {
			return e
		}
	}
	return nil
}
