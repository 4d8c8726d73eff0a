package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"kontor/internal/amqp"
	"kontor/internal/core"
)

// Store is the persistence surface the ledger service works against.
// *storage.SQLiteRepository implements it.
type Store interface {
	LedgerStore

	GetEntry(ctx context.Context, owner string, id int64) (*core.LedgerEntry, error)
	DeleteBudgetEntriesByCategory(ctx context.Context, owner, category string) (int64, error)

	InsertDefinition(ctx context.Context, d core.BudgetDefinition) (core.BudgetDefinition, error)
	UpdateDefinition(ctx context.Context, d core.BudgetDefinition) error
	GetDefinition(ctx context.Context, owner string, id int64) (*core.BudgetDefinition, error)
	DeleteDefinition(ctx context.Context, owner string, id int64) (bool, error)
	ListDefinitions(ctx context.Context, owner string) ([]core.BudgetDefinition, error)

	GetSettings(ctx context.Context, owner string) (core.UserSettings, error)
	UpsertSettings(ctx context.Context, s core.UserSettings) error
}

// EventPublisher publishes trigger and mirror events for the worker.
// A nil publisher disables eventing; mutations still succeed.
type EventPublisher interface {
	PublishGenerationTrigger(ctx context.Context, owner, trigger string, years []int) error
	PublishEntryMirror(ctx context.Context, owner string, entryID int64) error
}

// Overview bundles the derived projection handed to presentation.
type Overview struct {
	Categories  []core.BudgetCategory
	AnnualItems []core.AnnualBudgetItem
	Totals      core.BudgetTotals
}

// LedgerService orchestrates store mutations: entry creation with recurring
// scheduling, definition CRUD with the budget-entry cascade, and settings
// changes with their generation triggers.
type LedgerService struct {
	store  Store
	events EventPublisher
}

func NewLedgerService(store Store, events EventPublisher) *LedgerService {
	return &LedgerService{store: store, events: events}
}

// CreateEntry validates and persists a new ledger entry. For recurring
// entries the scheduler computes the next due date before validation, so a
// persisted recurring entry always carries one. Salary expenses additionally
// trigger employer-tax generation when the owner has it enabled.
func (s *LedgerService) CreateEntry(ctx context.Context, draft core.LedgerEntry) (core.LedgerEntry, error) {
	if draft.IsRecurring {
		due, err := NextDueDate(draft.Date, draft.RecurringInterval)
		if err != nil {
			return core.LedgerEntry{}, core.ErrInvalidInterval
		}
		draft.NextDueDate = due
	}

	if err := draft.Validate(); err != nil {
		return core.LedgerEntry{}, err
	}

	entry, err := s.store.InsertEntry(ctx, draft)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("insert entry: %w", err)
	}

	s.publishMirror(ctx, entry)
	s.triggerOnPayroll(ctx, entry)

	return entry, nil
}

// DeleteEntry removes an entry by ID; returns false when nothing matched.
func (s *LedgerService) DeleteEntry(ctx context.Context, owner string, id int64) (bool, error) {
	return s.store.DeleteEntry(ctx, owner, id)
}

// GetEntry fetches one entry scoped to its owner.
func (s *LedgerService) GetEntry(ctx context.Context, owner string, id int64) (*core.LedgerEntry, error) {
	return s.store.GetEntry(ctx, owner, id)
}

// ListEntries returns the owner's full ledger snapshot.
func (s *LedgerService) ListEntries(ctx context.Context, owner string) ([]core.LedgerEntry, error) {
	return s.store.ListEntries(ctx, owner)
}

// CreateDefinition validates and persists a budget definition.
func (s *LedgerService) CreateDefinition(ctx context.Context, d core.BudgetDefinition) (core.BudgetDefinition, error) {
	if err := d.Validate(); err != nil {
		return core.BudgetDefinition{}, err
	}
	return s.store.InsertDefinition(ctx, d)
}

// UpdateDefinition validates and replaces a budget definition.
func (s *LedgerService) UpdateDefinition(ctx context.Context, d core.BudgetDefinition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return s.store.UpdateDefinition(ctx, d)
}

// ListDefinitions returns all of the owner's budget definitions.
func (s *LedgerService) ListDefinitions(ctx context.Context, owner string) ([]core.BudgetDefinition, error) {
	return s.store.ListDefinitions(ctx, owner)
}

// DeleteDefinition removes a definition and cascades deletion of the
// budget-allocation marker entries carrying its category.
func (s *LedgerService) DeleteDefinition(ctx context.Context, owner string, id int64) (bool, error) {
	def, err := s.store.GetDefinition(ctx, owner, id)
	if err != nil {
		return false, fmt.Errorf("get definition: %w", err)
	}
	if def == nil {
		return false, nil
	}

	deleted, err := s.store.DeleteDefinition(ctx, owner, id)
	if err != nil || !deleted {
		return deleted, err
	}

	n, err := s.store.DeleteBudgetEntriesByCategory(ctx, owner, def.Category)
	if err != nil {
		// The definition is already gone; report the partial cascade rather
		// than pretending the delete failed.
		slog.ErrorContext(ctx, "Budget entry cascade failed",
			"owner", owner, "category", def.Category, "error", err)
		return true, nil
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cascaded budget entry deletion",
			"owner", owner, "category", def.Category, "deleted", n)
	}
	return true, nil
}

// GetSettings returns the owner's automation settings.
func (s *LedgerService) GetSettings(ctx context.Context, owner string) (core.UserSettings, error) {
	return s.store.GetSettings(ctx, owner)
}

// ApplySettings persists new settings and publishes the generation or
// cleanup triggers implied by toggle flips. Trigger publication is
// best-effort: the settings write stands even when the bus is down, and the
// on-demand endpoints remain as recovery.
func (s *LedgerService) ApplySettings(ctx context.Context, settings core.UserSettings) (core.UserSettings, error) {
	if err := settings.Validate(); err != nil {
		return core.UserSettings{}, err
	}

	previous, err := s.store.GetSettings(ctx, settings.Owner)
	if err != nil {
		return core.UserSettings{}, fmt.Errorf("get previous settings: %w", err)
	}

	if err := s.store.UpsertSettings(ctx, settings); err != nil {
		return core.UserSettings{}, fmt.Errorf("upsert settings: %w", err)
	}

	if previous.AutoGenerateEmployerTax != settings.AutoGenerateEmployerTax {
		trigger := amqp.TriggerEmployerTaxCleanup
		if settings.AutoGenerateEmployerTax {
			trigger = amqp.TriggerEmployerTax
		}
		s.publishTrigger(ctx, settings.Owner, trigger, nil)
	}

	if previous.AutoGenerateYearlyVat != settings.AutoGenerateYearlyVat {
		trigger := amqp.TriggerYearlyVatCleanup
		if settings.AutoGenerateYearlyVat {
			trigger = amqp.TriggerYearlyVat
		}
		s.publishTrigger(ctx, settings.Owner, trigger, nil)
	}

	return settings, nil
}

// Overview re-derives the full budget projection from a fresh snapshot.
func (s *LedgerService) Overview(ctx context.Context, owner string, now core.Date) (Overview, error) {
	entries, err := s.store.ListEntries(ctx, owner)
	if err != nil {
		return Overview{}, fmt.Errorf("list entries: %w", err)
	}
	definitions, err := s.store.ListDefinitions(ctx, owner)
	if err != nil {
		return Overview{}, fmt.Errorf("list definitions: %w", err)
	}

	categories := DeriveCategories(entries, definitions, now)
	items := DeriveAnnualItems(entries, definitions, now)
	return Overview{
		Categories:  categories,
		AnnualItems: items,
		Totals:      ComputeTotals(categories, items),
	}, nil
}

func (s *LedgerService) publishMirror(ctx context.Context, entry core.LedgerEntry) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEntryMirror(ctx, entry.Owner, entry.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish mirror event",
			"entry_id", entry.ID, "error", err)
		// Entry is saved locally; the mirror stays best-effort.
	}
}

// triggerOnPayroll reacts to a payroll event: a new salary expense while
// employer-tax automation is on re-runs the generator so the matching tax
// entry appears without waiting for a settings change.
func (s *LedgerService) triggerOnPayroll(ctx context.Context, entry core.LedgerEntry) {
	if s.events == nil {
		return
	}
	if entry.Kind != core.Expense || !strings.EqualFold(entry.Category, CategorySalary) {
		return
	}

	settings, err := s.store.GetSettings(ctx, entry.Owner)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to read settings for payroll trigger",
			"owner", entry.Owner, "error", err)
		return
	}
	if !settings.AutoGenerateEmployerTax {
		return
	}

	s.publishTrigger(ctx, entry.Owner, amqp.TriggerEmployerTax, nil)
}

func (s *LedgerService) publishTrigger(ctx context.Context, owner, trigger string, years []int) {
	if s.events == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping trigger",
			"owner", owner, "trigger", trigger)
		return
	}
	if err := s.events.PublishGenerationTrigger(ctx, owner, trigger, years); err != nil {
		slog.ErrorContext(ctx, "Failed to publish generation trigger",
			"owner", owner, "trigger", trigger, "error", err)
	}
}

// LedgerYears returns the distinct calendar years present in a snapshot,
// ascending. The worker uses it to resolve an empty Years trigger field.
func LedgerYears(entries []core.LedgerEntry) []int {
	seen := make(map[int]struct{})
	for _, e := range entries {
		seen[e.Date.Year()] = struct{}{}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
