package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  EntryKind = "income"
	Expense EntryKind = "expense"
)

const (
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

type (
	EntryKind string

	Period string

	Date struct {
		time.Time
	}

	// Money is an amount in öre. All arithmetic stays in integer öre;
	// kronor are a display concern.
	Money struct {
		Cents int64
	}

	// LedgerEntry is the atomic financial fact. Entries are immutable once
	// inserted; an edit is a delete followed by a fresh insert.
	LedgerEntry struct {
		ID          int64
		Owner       string
		Kind        EntryKind
		Amount      Money
		Description string
		Category    string
		Date        Date

		IsRecurring       bool
		RecurringInterval Period // set iff IsRecurring
		NextDueDate       Date   // set iff IsRecurring

		IsBudgetEntry       bool // auto-created budget allocation marker
		IsRecurringInstance bool // spawned from a recurring template

		VatAmount   Money // optional, zero when absent
		AmountExVat Money
		VatRate     float64
	}

	// BudgetDefinition is a user-declared target that ledger entries are
	// matched against. For yearly definitions StartDate doubles as the
	// target date used for status derivation.
	BudgetDefinition struct {
		ID          int64
		Owner       string
		Name        string
		Category    string
		BudgetLimit Money
		Period      Period
		StartDate   Date
		IsActive    bool
	}

	// UserSettings holds the per-owner toggles and rates driving automated
	// employer-tax and yearly-VAT generation. One row per owner.
	UserSettings struct {
		Owner                   string
		AutoGenerateEmployerTax bool
		EmployerTaxPaymentDay   int // 1-28
		AutoGenerateYearlyVat   bool
		VatRateIncome           float64
		VatRateExpenses         float64
	}
)

// DefaultVatRate is the Swedish standard MOMS rate.
const DefaultVatRate = 0.25

var (
	ErrEmptyOwner       = errors.New("empty owner")
	ErrInvalidKind      = errors.New("invalid entry kind")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyName        = errors.New("empty name")
	ErrInvalidPeriod    = errors.New("invalid period")
	ErrInvalidInterval  = errors.New("invalid recurring interval")
	ErrMissingDueDate   = errors.New("recurring entry without next due date")
	ErrMissingDate      = errors.New("missing date")
	ErrInvalidDay       = errors.New("invalid payment day")
	ErrInvalidVatRate   = errors.New("invalid vat rate")
)

// NewDate creates a Date from year, month, day at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as an int in 1-12.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the calendar year.
func (d Date) Year() int {
	return d.Time.Year()
}

// SameYearMonth reports whether two dates fall in the same calendar month.
func (d Date) SameYearMonth(other Date) bool {
	return d.Time.Year() == other.Time.Year() && d.Time.Month() == other.Time.Month()
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (k EntryKind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (p Period) Validate() error {
	switch p {
	case Monthly, Yearly:
		return nil
	default:
		return ErrInvalidPeriod
	}
}

// Validate checks a ledger entry before it reaches the store. Recurring
// entries must already carry both an interval and a computed next due date;
// omission is a validation failure, never a silent default.
func (e LedgerEntry) Validate() error {
	if strings.TrimSpace(e.Owner) == "" {
		return ErrEmptyOwner
	}
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if e.IsRecurring {
		if err := e.RecurringInterval.Validate(); err != nil {
			return ErrInvalidInterval
		}
		if e.NextDueDate.IsZero() {
			return ErrMissingDueDate
		}
	}
	if e.VatRate < 0 || e.VatRate > 1 {
		return ErrInvalidVatRate
	}
	return nil
}

func (b BudgetDefinition) Validate() error {
	if strings.TrimSpace(b.Owner) == "" {
		return ErrEmptyOwner
	}
	if len(strings.TrimSpace(b.Name)) == 0 {
		return ErrEmptyName
	}
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if err := b.BudgetLimit.Validate(); err != nil {
		return err
	}
	if err := b.Period.Validate(); err != nil {
		return err
	}
	if err := b.StartDate.Validate(); err != nil {
		return err
	}
	return nil
}

func (s UserSettings) Validate() error {
	if strings.TrimSpace(s.Owner) == "" {
		return ErrEmptyOwner
	}
	if s.EmployerTaxPaymentDay < 1 || s.EmployerTaxPaymentDay > 28 {
		return ErrInvalidDay
	}
	if s.VatRateIncome < 0 || s.VatRateIncome > 1 {
		return ErrInvalidVatRate
	}
	if s.VatRateExpenses < 0 || s.VatRateExpenses > 1 {
		return ErrInvalidVatRate
	}
	return nil
}

// DefaultSettings returns the settings a new owner starts with: automation
// off, payment day 25, standard MOMS rates.
func DefaultSettings(owner string) UserSettings {
	return UserSettings{
		Owner:                 owner,
		EmployerTaxPaymentDay: 25,
		VatRateIncome:         DefaultVatRate,
		VatRateExpenses:       DefaultVatRate,
	}
}
