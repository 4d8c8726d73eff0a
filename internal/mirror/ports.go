// Package mirror defines the outbound ledger mirror ports. A mirror is an
// external, append-only copy of the ledger (for example a Google Sheet shared
// with an accountant). Mirroring is best effort and never blocks writes to
// the primary store.
package mirror

import (
	"context"

	"kontor/internal/core"
)

// EntryWriter appends a ledger entry to the mirror and returns an
// implementation-specific row reference.
type EntryWriter interface {
	Append(ctx context.Context, e core.LedgerEntry) (string, error)
}
