package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	"kontor/internal/core"
)

// fakeStore is an in-memory Store for service tests. Category matching is
// case-insensitive like the SQLite queries it stands in for.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	entries  []core.LedgerEntry
	defs     []core.BudgetDefinition
	settings map[string]core.UserSettings

	// failInsertCategory makes InsertEntry fail for entries whose
	// description contains this substring, to exercise best-effort batches.
	failInsertMarker string
}

func newFakeStore() *fakeStore {
	return &fakeStore{settings: make(map[string]core.UserSettings)}
}

func (f *fakeStore) InsertEntry(_ context.Context, e core.LedgerEntry) (core.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertMarker != "" && strings.Contains(e.Description, f.failInsertMarker) {
		return core.LedgerEntry{}, errors.New("store unavailable")
	}
	f.nextID++
	e.ID = f.nextID
	f.entries = append(f.entries, e)
	return e, nil
}

func (f *fakeStore) DeleteEntry(_ context.Context, owner string, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.Owner == owner && e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetEntry(_ context.Context, owner string, id int64) (*core.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.Owner == owner && e.ID == id {
			entry := e
			return &entry, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) ListEntries(_ context.Context, owner string) ([]core.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.LedgerEntry
	for _, e := range f.entries {
		if e.Owner == owner {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ListEntriesByCategory(_ context.Context, owner, category string) ([]core.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.LedgerEntry
	for _, e := range f.entries {
		if e.Owner == owner && strings.EqualFold(e.Category, category) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ListExpensesByCategory(_ context.Context, owner, category string) ([]core.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.LedgerEntry
	for _, e := range f.entries {
		if e.Owner == owner && e.Kind == core.Expense &&
			strings.EqualFold(e.Category, category) && e.Amount.Cents > 0 {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteEntriesByCategory(_ context.Context, owner, category string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []core.LedgerEntry
	var deleted int64
	for _, e := range f.entries {
		if e.Owner == owner && strings.EqualFold(e.Category, category) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	return deleted, nil
}

func (f *fakeStore) DeleteBudgetEntriesByCategory(_ context.Context, owner, category string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []core.LedgerEntry
	var deleted int64
	for _, e := range f.entries {
		if e.Owner == owner && e.IsBudgetEntry && strings.EqualFold(e.Category, category) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	return deleted, nil
}

func (f *fakeStore) InsertDefinition(_ context.Context, d core.BudgetDefinition) (core.BudgetDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	d.ID = f.nextID
	f.defs = append(f.defs, d)
	return d, nil
}

func (f *fakeStore) UpdateDefinition(_ context.Context, d core.BudgetDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.defs {
		if existing.Owner == d.Owner && existing.ID == d.ID {
			f.defs[i] = d
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) GetDefinition(_ context.Context, owner string, id int64) (*core.BudgetDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.defs {
		if d.Owner == owner && d.ID == id {
			def := d
			return &def, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) DeleteDefinition(_ context.Context, owner string, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, d := range f.defs {
		if d.Owner == owner && d.ID == id {
			f.defs = append(f.defs[:i], f.defs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListDefinitions(_ context.Context, owner string) ([]core.BudgetDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.BudgetDefinition
	for _, d := range f.defs {
		if d.Owner == owner {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) GetSettings(_ context.Context, owner string) (core.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.settings[owner]; ok {
		return s, nil
	}
	return core.DefaultSettings(owner), nil
}

func (f *fakeStore) UpsertSettings(_ context.Context, s core.UserSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[s.Owner] = s
	return nil
}

func (f *fakeStore) entriesByCategory(category string) []core.LedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.LedgerEntry
	for _, e := range f.entries {
		if strings.EqualFold(e.Category, category) {
			out = append(out, e)
		}
	}
	return out
}

// fakePublisher records published events for assertions.
type fakePublisher struct {
	mu       sync.Mutex
	triggers []string
	mirrors  []int64
}

func (p *fakePublisher) PublishGenerationTrigger(_ context.Context, _, trigger string, _ []int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.triggers = append(p.triggers, trigger)
	return nil
}

func (p *fakePublisher) PublishEntryMirror(_ context.Context, _ string, entryID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mirrors = append(p.mirrors, entryID)
	return nil
}
