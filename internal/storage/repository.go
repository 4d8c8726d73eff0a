// Package storage persists ledger entries, budget definitions and per-owner
// settings in SQLite. The reconciliation engine never reads through a cache:
// every projection starts from a fresh snapshot fetched here.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"kontor/internal/core"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// runMigrations applies pending schema migrations on a connection of its
// own, so the repository pool is not disturbed while migrating.
func runMigrations(dbPath string) error {
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

const dateLayout = "2006-01-02"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const entryColumns = `id, owner, kind, amount_cents, description, category, entry_date,
	is_recurring, recurring_interval, next_due_date,
	is_budget_entry, is_recurring_instance,
	vat_amount_cents, amount_ex_vat_cents, vat_rate`

// InsertEntry persists a validated ledger entry and returns it with its
// assigned ID. Entries are immutable afterwards; there is no update path.
func (r *SQLiteRepository) InsertEntry(ctx context.Context, e core.LedgerEntry) (core.LedgerEntry, error) {
	var (
		interval sql.NullString
		dueDate  sql.NullString
		vatCents sql.NullInt64
		exVat    sql.NullInt64
		vatRate  sql.NullFloat64
	)
	if e.IsRecurring {
		interval = sql.NullString{String: string(e.RecurringInterval), Valid: true}
		dueDate = sql.NullString{String: e.NextDueDate.Format(dateLayout), Valid: true}
	}
	if e.VatAmount.Cents > 0 {
		vatCents = sql.NullInt64{Int64: e.VatAmount.Cents, Valid: true}
		exVat = sql.NullInt64{Int64: e.AmountExVat.Cents, Valid: true}
		vatRate = sql.NullFloat64{Float64: e.VatRate, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (
			owner, kind, amount_cents, description, category, entry_date,
			is_recurring, recurring_interval, next_due_date,
			is_budget_entry, is_recurring_instance,
			vat_amount_cents, amount_ex_vat_cents, vat_rate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Owner, string(e.Kind), e.Amount.Cents, e.Description, e.Category,
		e.Date.Format(dateLayout),
		e.IsRecurring, interval, dueDate,
		e.IsBudgetEntry, e.IsRecurringInstance,
		vatCents, exVat, vatRate,
	)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("insert ledger entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("last insert id: %w", err)
	}
	e.ID = id

	slog.InfoContext(ctx, "Ledger entry saved",
		"id", e.ID,
		"owner", e.Owner,
		"kind", e.Kind,
		"category", e.Category,
		"amount_cents", e.Amount.Cents)

	return e, nil
}

// GetEntry fetches a single entry scoped to its owner. A missing or
// foreign-owned entry is (nil, nil), not an error.
func (r *SQLiteRepository) GetEntry(ctx context.Context, owner string, id int64) (*core.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE owner = ? AND id = ?`,
		owner, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry %d: %w", id, err)
	}
	return &e, nil
}

// DeleteEntry removes an entry; returns false when nothing matched.
func (r *SQLiteRepository) DeleteEntry(ctx context.Context, owner string, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM ledger_entries WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return false, fmt.Errorf("delete ledger entry %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListEntries returns the full ledger snapshot for one owner, oldest first.
func (r *SQLiteRepository) ListEntries(ctx context.Context, owner string) ([]core.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE owner = ? ORDER BY entry_date, id`,
		owner)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListOwners returns every owner with at least one ledger entry.
func (r *SQLiteRepository) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT owner FROM ledger_entries ORDER BY owner`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// ListEntriesByCategory returns the owner's entries whose category equals
// the given one case-insensitively, oldest first.
func (r *SQLiteRepository) ListEntriesByCategory(ctx context.Context, owner, category string) ([]core.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE owner = ? AND LOWER(category) = LOWER(?) ORDER BY entry_date, id`,
		owner, category)
	if err != nil {
		return nil, fmt.Errorf("list entries by category %q: %w", category, err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListExpensesByCategory returns positive-amount expense entries in one
// category; this is the salary query feeding employer-tax generation.
func (r *SQLiteRepository) ListExpensesByCategory(ctx context.Context, owner, category string) ([]core.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE owner = ? AND kind = 'expense' AND LOWER(category) = LOWER(?) AND amount_cents > 0
		 ORDER BY entry_date, id`,
		owner, category)
	if err != nil {
		return nil, fmt.Errorf("list expenses by category %q: %w", category, err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// DeleteEntriesByCategory bulk-deletes every entry of the owner in the given
// category. Used by the generator cleanups; irreversible.
func (r *SQLiteRepository) DeleteEntriesByCategory(ctx context.Context, owner, category string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM ledger_entries WHERE owner = ? AND LOWER(category) = LOWER(?)`,
		owner, category)
	if err != nil {
		return 0, fmt.Errorf("delete entries by category %q: %w", category, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// DeleteBudgetEntriesByCategory removes the auto-created budget allocation
// markers for a category; runs when a budget definition is deleted.
func (r *SQLiteRepository) DeleteBudgetEntriesByCategory(ctx context.Context, owner, category string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM ledger_entries
		 WHERE owner = ? AND LOWER(category) = LOWER(?) AND is_budget_entry = 1`,
		owner, category)
	if err != nil {
		return 0, fmt.Errorf("delete budget entries by category %q: %w", category, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func collectEntries(rows *sql.Rows) ([]core.LedgerEntry, error) {
	var entries []core.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (core.LedgerEntry, error) {
	var (
		e        core.LedgerEntry
		kind     string
		date     string
		interval sql.NullString
		dueDate  sql.NullString
		vatCents sql.NullInt64
		exVat    sql.NullInt64
		vatRate  sql.NullFloat64
	)
	err := row.Scan(
		&e.ID, &e.Owner, &kind, &e.Amount.Cents, &e.Description, &e.Category, &date,
		&e.IsRecurring, &interval, &dueDate,
		&e.IsBudgetEntry, &e.IsRecurringInstance,
		&vatCents, &exVat, &vatRate,
	)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	e.Kind = core.EntryKind(kind)
	e.Date, err = parseDate(date)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	if interval.Valid {
		e.RecurringInterval = core.Period(interval.String)
	}
	if dueDate.Valid {
		e.NextDueDate, err = parseDate(dueDate.String)
		if err != nil {
			return core.LedgerEntry{}, err
		}
	}
	if vatCents.Valid {
		e.VatAmount = core.Money{Cents: vatCents.Int64}
	}
	if exVat.Valid {
		e.AmountExVat = core.Money{Cents: exVat.Int64}
	}
	if vatRate.Valid {
		e.VatRate = vatRate.Float64
	}
	return e, nil
}

func parseDate(s string) (core.Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return core.Date{Time: t}, nil
}

// InsertDefinition persists a budget definition and returns it with its ID.
func (r *SQLiteRepository) InsertDefinition(ctx context.Context, d core.BudgetDefinition) (core.BudgetDefinition, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_definitions (owner, name, category, budget_limit_cents, period, start_date, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.Owner, d.Name, d.Category, d.BudgetLimit.Cents, string(d.Period),
		d.StartDate.Format(dateLayout), d.IsActive,
	)
	if err != nil {
		return core.BudgetDefinition{}, fmt.Errorf("insert budget definition: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.BudgetDefinition{}, fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	return d, nil
}

// UpdateDefinition replaces the mutable fields of a definition in place.
func (r *SQLiteRepository) UpdateDefinition(ctx context.Context, d core.BudgetDefinition) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE budget_definitions
		SET name = ?, category = ?, budget_limit_cents = ?, period = ?, start_date = ?, is_active = ?
		WHERE owner = ? AND id = ?`,
		d.Name, d.Category, d.BudgetLimit.Cents, string(d.Period),
		d.StartDate.Format(dateLayout), d.IsActive,
		d.Owner, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update budget definition %d: %w", d.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetDefinition fetches one definition scoped to its owner. A missing or
// foreign-owned definition is (nil, nil), not an error.
func (r *SQLiteRepository) GetDefinition(ctx context.Context, owner string, id int64) (*core.BudgetDefinition, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner, name, category, budget_limit_cents, period, start_date, is_active
		FROM budget_definitions WHERE owner = ? AND id = ?`, owner, id)
	d, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get budget definition %d: %w", id, err)
	}
	return &d, nil
}

// DeleteDefinition removes a definition; returns false when nothing matched.
// Cascading removal of the category's budget-entry markers is the ledger
// service's responsibility.
func (r *SQLiteRepository) DeleteDefinition(ctx context.Context, owner string, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM budget_definitions WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return false, fmt.Errorf("delete budget definition %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListDefinitions returns all of the owner's budget definitions.
func (r *SQLiteRepository) ListDefinitions(ctx context.Context, owner string) ([]core.BudgetDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner, name, category, budget_limit_cents, period, start_date, is_active
		FROM budget_definitions WHERE owner = ? ORDER BY name, id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list budget definitions: %w", err)
	}
	defer rows.Close()

	var defs []core.BudgetDefinition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate definitions: %w", err)
	}
	return defs, nil
}

func scanDefinition(row rowScanner) (core.BudgetDefinition, error) {
	var (
		d      core.BudgetDefinition
		period string
		start  string
	)
	if err := row.Scan(&d.ID, &d.Owner, &d.Name, &d.Category, &d.BudgetLimit.Cents, &period, &start, &d.IsActive); err != nil {
		return core.BudgetDefinition{}, err
	}
	d.Period = core.Period(period)
	var err error
	d.StartDate, err = parseDate(start)
	if err != nil {
		return core.BudgetDefinition{}, err
	}
	return d, nil
}

// GetSettings returns the owner's settings, falling back to defaults when no
// row exists yet.
func (r *SQLiteRepository) GetSettings(ctx context.Context, owner string) (core.UserSettings, error) {
	var s core.UserSettings
	err := r.db.QueryRowContext(ctx, `
		SELECT owner, auto_generate_employer_tax, employer_tax_payment_day,
		       auto_generate_yearly_vat, vat_rate_income, vat_rate_expenses
		FROM user_settings WHERE owner = ?`, owner).Scan(
		&s.Owner, &s.AutoGenerateEmployerTax, &s.EmployerTaxPaymentDay,
		&s.AutoGenerateYearlyVat, &s.VatRateIncome, &s.VatRateExpenses,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultSettings(owner), nil
	}
	if err != nil {
		return core.UserSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// UpsertSettings writes the owner's settings row, creating it on first use.
func (r *SQLiteRepository) UpsertSettings(ctx context.Context, s core.UserSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_settings (owner, auto_generate_employer_tax, employer_tax_payment_day,
		                           auto_generate_yearly_vat, vat_rate_income, vat_rate_expenses, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(owner) DO UPDATE SET
			auto_generate_employer_tax = excluded.auto_generate_employer_tax,
			employer_tax_payment_day = excluded.employer_tax_payment_day,
			auto_generate_yearly_vat = excluded.auto_generate_yearly_vat,
			vat_rate_income = excluded.vat_rate_income,
			vat_rate_expenses = excluded.vat_rate_expenses,
			updated_at = CURRENT_TIMESTAMP`,
		s.Owner, s.AutoGenerateEmployerTax, s.EmployerTaxPaymentDay,
		s.AutoGenerateYearlyVat, s.VatRateIncome, s.VatRateExpenses,
	)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}
