/*
Package calendar counts days.

PURPOSE:
  Leave rules use three different counting semantics and mixing them up
  is the classic source of off-by-one bugs:

    1. Consumption counts ALL calendar days inside a range, weekends and
       holidays included (TotalDaysInclusive, CountDaysBreakdown.Total).
    2. Range endpoints must fall on WORKING days for some leave types
       (IsNonWorking).
    3. Notice periods are measured in working days STRICTLY BETWEEN two
       dates (CountWorkingDaysBetween).

  Each semantic gets its own named function so call sites cannot swap one
  rule for another.

WEEKEND:
  Friday and Saturday. Sunday is a working day.

HOLIDAYS:
  Supplied by the caller as a HolidaySet. Optional holidays are still
  non-working days; the flag only matters to reporting.

All functions are pure and take Dates already normalised to a single
local midnight (see DateOf).
*/
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidRange is returned when end precedes start.
var ErrInvalidRange = errors.New("invalid range: end before start")

var weekend = [7]bool{time.Friday: true, time.Saturday: true}

// Holiday is one entry from the holiday calendar.
type Holiday struct {
	Date       Date   `json:"date"`
	Name       string `json:"name"`
	IsOptional bool   `json:"is_optional"`
}

// HolidaySet indexes holidays by calendar day.
type HolidaySet map[Date]Holiday

// NewHolidaySet builds a set. Later duplicates of the same day win.
func NewHolidaySet(holidays ...Holiday) HolidaySet {
	set := make(HolidaySet, len(holidays))
	for _, h := range holidays {
		set[h.Date] = h
	}
	return set
}

// List returns the holidays ordered by date.
func (s HolidaySet) List() []Holiday {
	out := make([]Holiday, 0, len(s))
	for _, h := range s {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Breakdown splits an inclusive range into weekend, holiday and working days.
// Total == WeekendCount + HolidayCount + WorkingCount always holds.
type Breakdown struct {
	Total        int `json:"total"`
	WeekendCount int `json:"weekend_count"`
	HolidayCount int `json:"holiday_count"`
	WorkingCount int `json:"working_count"`
}

// IsWeekend reports whether d is a Friday or Saturday.
func IsWeekend(d Date) bool {
	return weekend[d.Weekday()]
}

// IsHoliday reports whether d is listed in holidays.
func IsHoliday(d Date, holidays HolidaySet) bool {
	_, ok := holidays[d]
	return ok
}

// IsNonWorking is IsWeekend or IsHoliday.
func IsNonWorking(d Date, holidays HolidaySet) bool {
	return IsWeekend(d) || IsHoliday(d, holidays)
}

// TotalDaysInclusive counts calendar days from start to end inclusive.
func TotalDaysInclusive(start, end Date) (int, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("%s..%s: %w", start, end, ErrInvalidRange)
	}
	return DaysBetween(start, end) + 1, nil
}

// CountDaysBreakdown classifies every day of [start, end]. A holiday that
// falls on a weekend counts as weekend only.
func CountDaysBreakdown(start, end Date, holidays HolidaySet) (Breakdown, error) {
	total, err := TotalDaysInclusive(start, end)
	if err != nil {
		return Breakdown{}, err
	}
	b := Breakdown{Total: total}
	for d := start; !d.After(end); d = d.AddDays(1) {
		switch {
		case IsWeekend(d):
			b.WeekendCount++
		case IsHoliday(d, holidays):
			b.HolidayCount++
		}
	}
	b.WorkingCount = b.Total - b.WeekendCount - b.HolidayCount
	return b, nil
}

// CountWorkingDaysBetween counts working days strictly between a and b.
// Argument order does not matter.
func CountWorkingDaysBetween(a, b Date, holidays HolidaySet) int {
	if b.Before(a) {
		a, b = b, a
	}
	n := 0
	for d := a.AddDays(1); d.Before(b); d = d.AddDays(1) {
		if !IsNonWorking(d, holidays) {
			n++
		}
	}
	return n
}

// NextWorkingDay returns the first working day on or after d.
func NextWorkingDay(d Date, holidays HolidaySet) Date {
	for IsNonWorking(d, holidays) {
		d = d.AddDays(1)
	}
	return d
}
