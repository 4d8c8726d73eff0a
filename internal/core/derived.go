package core

const (
	StatusPending   BudgetStatus = "pending"
	StatusCompleted BudgetStatus = "completed"
	StatusOverdue   BudgetStatus = "overdue"
)

type (
	BudgetStatus string

	// BudgetCategory is the read-time projection of a monthly budget
	// definition against the current month's ledger. Never persisted.
	BudgetCategory struct {
		DefinitionID int64
		Name         string
		Category     string
		Budgeted     Money
		Spent        Money
		Percentage   float64
	}

	// AnnualBudgetItem is the read-time projection of a yearly budget
	// definition against the current year's ledger. Never persisted.
	AnnualBudgetItem struct {
		DefinitionID int64
		Name         string
		Category     string
		Budgeted     Money
		Spent        Money
		Percentage   float64
		TargetDate   Date
		Status       BudgetStatus
	}

	MonthlyTotals struct {
		Budget     Money
		Spent      Money
		Percentage float64
	}

	AnnualTotals struct {
		Budget         Money
		Spent          Money
		CompletedCount int
		OverdueCount   int
	}

	// BudgetTotals is the roll-up of the derived lists used by presentation.
	BudgetTotals struct {
		Monthly MonthlyTotals
		Annual  AnnualTotals
	}
)

// Percentage computes spent/budgeted*100, defined as 0 when budgeted is 0.
func Percentage(spent, budgeted Money) float64 {
	if budgeted.Cents == 0 {
		return 0
	}
	return float64(spent.Cents) / float64(budgeted.Cents) * 100
}

// DeriveStatus is the status state machine, re-evaluated on every read.
// Completion takes priority over the target date; there is no transition
// log, so deleting historical entries moves status backward on the next read.
func DeriveStatus(spent, budgeted Money, targetDate Date, today Date) BudgetStatus {
	if spent.Cents >= budgeted.Cents {
		return StatusCompleted
	}
	if targetDate.Before(today.Time) {
		return StatusOverdue
	}
	return StatusPending
}
