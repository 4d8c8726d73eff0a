// This file implements the recurring-entry scheduler. Each interval has its
// own advancer encapsulating the calendar arithmetic, looked up through a
// small registry so new intervals can be added without touching callers.
//
// The scheduler only computes due dates at creation time; spawning the next
// instance when a due date arrives is an external cron-style concern.
package services

import (
	"fmt"
	"time"

	"kontor/internal/core"
)

// DueDateAdvancer computes the next due date of a recurring entry from the
// date of the current one.
type DueDateAdvancer interface {
	Next(from core.Date) core.Date
}

// MonthlyAdvancer advances by exactly one calendar month, clamping the day
// to the last valid day when the target month is shorter (Jan 31 -> Feb 28/29).
type MonthlyAdvancer struct{}

func (MonthlyAdvancer) Next(from core.Date) core.Date {
	year, month := from.Year(), from.Month()+1
	if month > 12 {
		month = 1
		year++
	}
	day := clampDay(from.Day(), year, month)
	return core.NewDate(year, month, day)
}

// YearlyAdvancer advances by exactly one year, same month and day; Feb 29
// clamps to Feb 28 in non-leap years.
type YearlyAdvancer struct{}

func (YearlyAdvancer) Next(from core.Date) core.Date {
	year := from.Year() + 1
	day := clampDay(from.Day(), year, from.Month())
	return core.NewDate(year, from.Month(), day)
}

// clampDay limits day to the last valid day of the given month.
func clampDay(day, year, month int) int {
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

var dueDateAdvancers = map[core.Period]DueDateAdvancer{
	core.Monthly: MonthlyAdvancer{},
	core.Yearly:  YearlyAdvancer{},
}

// GetDueDateAdvancer returns the advancer for a recurring interval, or an
// error for unsupported intervals.
func GetDueDateAdvancer(interval core.Period) (DueDateAdvancer, error) {
	adv, ok := dueDateAdvancers[interval]
	if !ok {
		return nil, fmt.Errorf("unknown recurring interval: %s", interval)
	}
	return adv, nil
}

// NextDueDate computes the next due date for a recurring entry created on
// the given date with the given interval.
func NextDueDate(from core.Date, interval core.Period) (core.Date, error) {
	adv, err := GetDueDateAdvancer(interval)
	if err != nil {
		return core.Date{}, err
	}
	return adv.Next(from), nil
}
