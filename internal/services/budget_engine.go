// Package services contains the business logic of the back-office core:
// budget reconciliation, recurring-entry scheduling and the automated
// tax/VAT generators.
//
// This file is the reconciliation engine. Categories, annual items and
// totals are pure functions of (ledger snapshot, definitions, now); nothing
// here is ever persisted, so derived status can never go stale - deleting a
// ledger entry reverts the projection on the next read.
package services

import (
	"strings"

	"kontor/internal/core"
)

// DeriveCategories projects the monthly budget definitions against the
// ledger snapshot for the month containing now.
func DeriveCategories(entries []core.LedgerEntry, definitions []core.BudgetDefinition, now core.Date) []core.BudgetCategory {
	categories := make([]core.BudgetCategory, 0, len(definitions))
	for _, def := range definitions {
		if def.Period != core.Monthly || !def.IsActive {
			continue
		}
		var spent core.Money
		for _, e := range entries {
			if matchesMonthlyBudget(e, def, now) {
				spent = spent.Add(e.Amount)
			}
		}
		categories = append(categories, core.BudgetCategory{
			DefinitionID: def.ID,
			Name:         def.Name,
			Category:     def.Category,
			Budgeted:     def.BudgetLimit,
			Spent:        spent,
			Percentage:   core.Percentage(spent, def.BudgetLimit),
		})
	}
	return categories
}

// DeriveAnnualItems projects the yearly budget definitions against the
// ledger snapshot for the year containing now. StartDate doubles as the
// target date driving the overdue status.
func DeriveAnnualItems(entries []core.LedgerEntry, definitions []core.BudgetDefinition, now core.Date) []core.AnnualBudgetItem {
	items := make([]core.AnnualBudgetItem, 0, len(definitions))
	for _, def := range definitions {
		if def.Period != core.Yearly || !def.IsActive {
			continue
		}
		var spent core.Money
		for _, e := range entries {
			if matchesAnnualItem(e, def, now) {
				spent = spent.Add(e.Amount)
			}
		}
		items = append(items, core.AnnualBudgetItem{
			DefinitionID: def.ID,
			Name:         def.Name,
			Category:     def.Category,
			Budgeted:     def.BudgetLimit,
			Spent:        spent,
			Percentage:   core.Percentage(spent, def.BudgetLimit),
			TargetDate:   def.StartDate,
			Status:       core.DeriveStatus(spent, def.BudgetLimit, def.StartDate, now),
		})
	}
	return items
}

// EntriesForAnnualItem returns the detail list of expenses counted under a
// yearly definition. It applies the exact same predicate as the aggregate in
// DeriveAnnualItems, so the detail list always sums to the item's spent.
func EntriesForAnnualItem(entries []core.LedgerEntry, def core.BudgetDefinition, now core.Date) []core.LedgerEntry {
	var out []core.LedgerEntry
	for _, e := range entries {
		if matchesAnnualItem(e, def, now) {
			out = append(out, e)
		}
	}
	return out
}

// ComputeTotals rolls the derived lists up into the summary used by
// presentation. Pure aggregation; no matching logic of its own.
func ComputeTotals(categories []core.BudgetCategory, items []core.AnnualBudgetItem) core.BudgetTotals {
	var totals core.BudgetTotals
	for _, c := range categories {
		totals.Monthly.Budget = totals.Monthly.Budget.Add(c.Budgeted)
		totals.Monthly.Spent = totals.Monthly.Spent.Add(c.Spent)
	}
	totals.Monthly.Percentage = core.Percentage(totals.Monthly.Spent, totals.Monthly.Budget)

	for _, it := range items {
		totals.Annual.Budget = totals.Annual.Budget.Add(it.Budgeted)
		totals.Annual.Spent = totals.Annual.Spent.Add(it.Spent)
		switch it.Status {
		case core.StatusCompleted:
			totals.Annual.CompletedCount++
		case core.StatusOverdue:
			totals.Annual.OverdueCount++
		}
	}
	return totals
}

// matchesMonthlyBudget reports whether an entry counts toward a monthly
// definition: an expense in the current calendar month whose category equals
// the definition's category case-insensitively, or matches the legacy fuzzy
// fallback.
func matchesMonthlyBudget(e core.LedgerEntry, def core.BudgetDefinition, now core.Date) bool {
	if e.Kind != core.Expense {
		return false
	}
	if !e.Date.SameYearMonth(now) {
		return false
	}
	if strings.EqualFold(e.Category, def.Category) {
		return true
	}
	return legacyFuzzyMatch(e.Category, def.Category)
}

// matchesAnnualItem is the single predicate for "expenses under this annual
// item", shared by the aggregate and the detail list: an expense in the
// current calendar year, exact case-insensitive category match, and not a
// budget-allocation marker.
func matchesAnnualItem(e core.LedgerEntry, def core.BudgetDefinition, now core.Date) bool {
	return e.Kind == core.Expense &&
		e.Date.Year() == now.Year() &&
		!e.IsBudgetEntry &&
		strings.EqualFold(e.Category, def.Category)
}

// legacyFuzzyMatch is the free-text drift shim carried over from the manual
// category entry flow: an entry matches when its category contains the first
// whitespace-delimited token of the budget category, case-insensitively.
// Short tokens produce false positives (a one-letter budget category matches
// nearly everything). Kept deliberately as a named migration shim; the
// long-term fix is linking entries to definitions by identifier.
func legacyFuzzyMatch(entryCategory, budgetCategory string) bool {
	token := firstToken(budgetCategory)
	if token == "" {
		return false
	}
	return strings.Contains(strings.ToLower(entryCategory), strings.ToLower(token))
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
