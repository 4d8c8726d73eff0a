package services

import (
	"context"
	"testing"

	"kontor/internal/core"
)

func seedSalary(t *testing.T, store *fakeStore, cents int64, date core.Date, description string) {
	t.Helper()
	_, err := store.InsertEntry(context.Background(), core.LedgerEntry{
		Owner:       "owner-1",
		Kind:        core.Expense,
		Amount:      core.Money{Cents: cents},
		Description: description,
		Category:    CategorySalary,
		Date:        date,
	})
	if err != nil {
		t.Fatalf("seed salary: %v", err)
	}
}

func enableEmployerTax(t *testing.T, store *fakeStore, paymentDay int) {
	t.Helper()
	s := core.DefaultSettings("owner-1")
	s.AutoGenerateEmployerTax = true
	s.EmployerTaxPaymentDay = paymentDay
	if err := store.UpsertSettings(context.Background(), s); err != nil {
		t.Fatalf("seed settings: %v", err)
	}
}

func TestRunEmployerTaxGeneration_Scenario(t *testing.T) {
	// Salary of 50 000 kr on 2025-03-15 with payment day 25 yields exactly
	// one employer tax entry of 15 710 kr on 2025-04-25.
	store := newFakeStore()
	enableEmployerTax(t, store, 25)
	seedSalary(t, store, 5000000, core.NewDate(2025, 3, 15), "Salary March")

	gen := NewTaxGenerator(store, store)
	report, err := gen.RunEmployerTaxGeneration(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("RunEmployerTaxGeneration() error = %v", err)
	}
	if report.Created != 1 || report.Skipped != 0 || report.Failed != 0 {
		t.Fatalf("report = %+v, want 1 created", report)
	}

	taxes := store.entriesByCategory(CategoryEmployerTax)
	if len(taxes) != 1 {
		t.Fatalf("got %d employer tax entries, want 1", len(taxes))
	}
	tax := taxes[0]
	if tax.Amount.Cents != 1571000 {
		t.Errorf("amount = %d öre, want 1571000", tax.Amount.Cents)
	}
	if !tax.Date.Equal(core.NewDate(2025, 4, 25).Time) {
		t.Errorf("date = %v, want 2025-04-25", tax.Date.Time)
	}
	if tax.Description != "Employer Tax - March" {
		t.Errorf("description = %q, want %q", tax.Description, "Employer Tax - March")
	}
	if tax.Kind != core.Expense {
		t.Errorf("kind = %v, want expense", tax.Kind)
	}
}

func TestRunEmployerTaxGeneration_Idempotent(t *testing.T) {
	store := newFakeStore()
	enableEmployerTax(t, store, 25)
	seedSalary(t, store, 5000000, core.NewDate(2025, 3, 15), "Salary March")
	seedSalary(t, store, 4800000, core.NewDate(2025, 4, 15), "Salary April")

	gen := NewTaxGenerator(store, store)
	ctx := context.Background()

	first, err := gen.RunEmployerTaxGeneration(ctx, "owner-1")
	if err != nil {
		t.Fatalf("first run error = %v", err)
	}
	if first.Created != 2 {
		t.Fatalf("first run created = %d, want 2", first.Created)
	}

	second, err := gen.RunEmployerTaxGeneration(ctx, "owner-1")
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if second.Created != 0 || second.Skipped != 2 {
		t.Errorf("second run = %+v, want 0 created, 2 skipped", second)
	}

	if n := len(store.entriesByCategory(CategoryEmployerTax)); n != 2 {
		t.Errorf("got %d employer tax entries after two runs, want 2", n)
	}
}

func TestRunEmployerTaxGeneration_ConvergesAfterPartialFailure(t *testing.T) {
	store := newFakeStore()
	enableEmployerTax(t, store, 25)
	seedSalary(t, store, 5000000, core.NewDate(2025, 3, 15), "Salary March")
	seedSalary(t, store, 4800000, core.NewDate(2025, 4, 15), "Salary April")

	gen := NewTaxGenerator(store, store)
	ctx := context.Background()

	// First run: the April insert fails, the March one still goes through.
	store.failInsertMarker = "April"
	report, err := gen.RunEmployerTaxGeneration(ctx, "owner-1")
	if err != nil {
		t.Fatalf("partial run error = %v", err)
	}
	if report.Created != 1 || report.Failed != 1 {
		t.Fatalf("partial run = %+v, want 1 created, 1 failed", report)
	}

	// Retry with the store healthy again: only the missing entry is created.
	store.failInsertMarker = ""
	report, err = gen.RunEmployerTaxGeneration(ctx, "owner-1")
	if err != nil {
		t.Fatalf("retry run error = %v", err)
	}
	if report.Created != 1 || report.Skipped != 1 {
		t.Errorf("retry run = %+v, want 1 created, 1 skipped", report)
	}
	if n := len(store.entriesByCategory(CategoryEmployerTax)); n != 2 {
		t.Errorf("got %d employer tax entries after convergence, want 2", n)
	}
}

func TestEmployerTaxDate(t *testing.T) {
	tests := []struct {
		name       string
		salaryDate core.Date
		paymentDay int
		want       core.Date
	}{
		{"mid-year", core.NewDate(2025, 3, 15), 25, core.NewDate(2025, 4, 25)},
		{"december rolls the year", core.NewDate(2025, 12, 20), 10, core.NewDate(2026, 1, 10)},
		{"payment day capped at 28", core.NewDate(2025, 1, 15), 31, core.NewDate(2025, 2, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EmployerTaxDate(tt.salaryDate, tt.paymentDay)
			if !got.Equal(tt.want.Time) {
				t.Errorf("EmployerTaxDate() = %v, want %v", got.Time, tt.want.Time)
			}
		})
	}
}

func TestStripSalaryPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Salary March", "March"},
		{"Salary - March", "March"},
		{"salary: consultant A", "consultant A"},
		{"Consultant fee", "Consultant fee"},
		{"Salary", "Salary"},
		// Token must end at a word boundary, not mid-word.
		{"Salaries paid", "Salaries paid"},
		{"SalaryAdvance", "SalaryAdvance"},
	}
	for _, tt := range tests {
		if got := stripSalaryPrefix(tt.in); got != tt.want {
			t.Errorf("stripSalaryPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanupEmployerTax(t *testing.T) {
	store := newFakeStore()
	enableEmployerTax(t, store, 25)
	seedSalary(t, store, 5000000, core.NewDate(2025, 3, 15), "Salary March")

	gen := NewTaxGenerator(store, store)
	ctx := context.Background()
	if _, err := gen.RunEmployerTaxGeneration(ctx, "owner-1"); err != nil {
		t.Fatalf("generation error = %v", err)
	}

	report, err := gen.CleanupEmployerTax(ctx, "owner-1")
	if err != nil {
		t.Fatalf("CleanupEmployerTax() error = %v", err)
	}
	if report.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", report.Deleted)
	}
	if n := len(store.entriesByCategory(CategoryEmployerTax)); n != 0 {
		t.Errorf("got %d employer tax entries after cleanup, want 0", n)
	}
	// The source salary entries are untouched.
	if n := len(store.entriesByCategory(CategorySalary)); n != 1 {
		t.Errorf("got %d salary entries after cleanup, want 1", n)
	}
}

func seedEntry(t *testing.T, store *fakeStore, kind core.EntryKind, category string, cents int64, date core.Date) {
	t.Helper()
	_, err := store.InsertEntry(context.Background(), core.LedgerEntry{
		Owner:       "owner-1",
		Kind:        kind,
		Amount:      core.Money{Cents: cents},
		Description: category,
		Category:    category,
		Date:        date,
	})
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}
}

func TestRunYearlyVatGeneration(t *testing.T) {
	store := newFakeStore()
	seedEntry(t, store, core.Income, "Consulting", 10000000, core.NewDate(2025, 5, 1))  // 100 000 kr
	seedEntry(t, store, core.Expense, "Office", 4000000, core.NewDate(2025, 8, 1))      // 40 000 kr

	gen := NewTaxGenerator(store, store)
	ctx := context.Background()

	report, err := gen.RunYearlyVatGeneration(ctx, "owner-1", []int{2025})
	if err != nil {
		t.Fatalf("RunYearlyVatGeneration() error = %v", err)
	}
	if report.Created != 1 {
		t.Fatalf("report = %+v, want 1 created", report)
	}

	moms := store.entriesByCategory(CategoryMomsTax)
	if len(moms) != 1 {
		t.Fatalf("got %d moms entries, want 1", len(moms))
	}
	// (100 000 - 40 000) * 0.25 = 15 000 kr.
	if moms[0].Amount.Cents != 1500000 {
		t.Errorf("liability = %d öre, want 1500000", moms[0].Amount.Cents)
	}
	if !moms[0].Date.Equal(core.NewDate(2026, 1, 1).Time) {
		t.Errorf("date = %v, want 2026-01-01", moms[0].Date.Time)
	}

	// Unchanged ledger: the second run skips.
	report, err = gen.RunYearlyVatGeneration(ctx, "owner-1", []int{2025})
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if report.Created != 0 || report.Skipped != 1 {
		t.Errorf("second run = %+v, want 0 created, 1 skipped", report)
	}
}

func TestRunYearlyVatGeneration_UpdateByReplace(t *testing.T) {
	store := newFakeStore()
	seedEntry(t, store, core.Income, "Consulting", 10000000, core.NewDate(2025, 5, 1))

	gen := NewTaxGenerator(store, store)
	ctx := context.Background()
	if _, err := gen.RunYearlyVatGeneration(ctx, "owner-1", []int{2025}); err != nil {
		t.Fatalf("first run error = %v", err)
	}

	// New income changes the liability; the stale entry is replaced, not
	// duplicated.
	seedEntry(t, store, core.Income, "Consulting", 4000000, core.NewDate(2025, 11, 1))
	report, err := gen.RunYearlyVatGeneration(ctx, "owner-1", []int{2025})
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if report.Created != 1 || report.Deleted != 1 {
		t.Errorf("report = %+v, want replace (1 created, 1 deleted)", report)
	}

	moms := store.entriesByCategory(CategoryMomsTax)
	if len(moms) != 1 {
		t.Fatalf("got %d moms entries, want 1", len(moms))
	}
	// (100 000 + 40 000) * 0.25 = 35 000 kr.
	if moms[0].Amount.Cents != 3500000 {
		t.Errorf("liability = %d öre, want 3500000", moms[0].Amount.Cents)
	}
}

func TestRunYearlyVatGeneration_NonPositiveLiability(t *testing.T) {
	store := newFakeStore()
	seedEntry(t, store, core.Income, "Consulting", 1000000, core.NewDate(2025, 5, 1))
	seedEntry(t, store, core.Expense, "Office", 5000000, core.NewDate(2025, 8, 1))

	gen := NewTaxGenerator(store, store)
	ctx := context.Background()

	report, err := gen.RunYearlyVatGeneration(ctx, "owner-1", []int{2025})
	if err != nil {
		t.Fatalf("RunYearlyVatGeneration() error = %v", err)
	}
	if report.Created != 0 {
		t.Errorf("report = %+v, want nothing created for negative liability", report)
	}
	if n := len(store.entriesByCategory(CategoryMomsTax)); n != 0 {
		t.Errorf("got %d moms entries, want 0", n)
	}
}

func TestCleanupYearlyVat_DeletesAcrossYears(t *testing.T) {
	store := newFakeStore()
	seedEntry(t, store, core.Income, "Consulting", 10000000, core.NewDate(2024, 5, 1))
	seedEntry(t, store, core.Income, "Consulting", 12000000, core.NewDate(2025, 5, 1))

	gen := NewTaxGenerator(store, store)
	ctx := context.Background()
	if _, err := gen.RunYearlyVatGeneration(ctx, "owner-1", []int{2024, 2025}); err != nil {
		t.Fatalf("generation error = %v", err)
	}
	if n := len(store.entriesByCategory(CategoryMomsTax)); n != 2 {
		t.Fatalf("got %d moms entries before cleanup, want 2", n)
	}

	report, err := gen.CleanupYearlyVat(ctx, "owner-1")
	if err != nil {
		t.Fatalf("CleanupYearlyVat() error = %v", err)
	}
	if report.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", report.Deleted)
	}
	if n := len(store.entriesByCategory(CategoryMomsTax)); n != 0 {
		t.Errorf("got %d moms entries after cleanup, want 0", n)
	}
}

func TestVatLiability_ExcludesMomsEntries(t *testing.T) {
	entries := []core.LedgerEntry{
		{Kind: core.Income, Amount: core.Money{Cents: 10000000}, Category: "Consulting", Date: core.NewDate(2025, 5, 1)},
		{Kind: core.Expense, Amount: core.Money{Cents: 2000000}, Category: CategoryMomsTax, Date: core.NewDate(2025, 1, 1)},
	}
	// The previously generated liability entry must not reduce this year's
	// computation.
	got := VatLiability(entries, 2025, 0.25, 0.25)
	if got != 2500000 {
		t.Errorf("VatLiability() = %d, want 2500000", got)
	}
}
