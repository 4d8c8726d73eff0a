// Package memory provides an in-memory ledger mirror used in tests and in
// deployments that run without Google Sheets credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	"kontor/internal/core"
	"kontor/internal/mirror"
)

type Store struct {
	mu    sync.Mutex
	items []core.LedgerEntry
}

var _ mirror.EntryWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// Append stores the entry and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, e core.LedgerEntry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, e)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Entries returns a copy of everything appended so far.
func (s *Store) Entries() []core.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.LedgerEntry(nil), s.items...)
}
