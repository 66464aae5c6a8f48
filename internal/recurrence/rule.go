package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrInvalidRule marks a malformed or contradictory rule. Never coerced.
	ErrInvalidRule = errors.New("invalid recurrence rule")

	// ErrExhausted means the rule can never match again (bounded years in the past).
	ErrExhausted = errors.New("recurrence rule exhausted")

	// ErrHorizonExceeded means no occurrence was found within the search horizon.
	ErrHorizonExceeded = errors.New("no occurrence within search horizon")
)

// Rule is a sparse recurrence specification: each field lists the allowed
// values, nil means "any value" (wildcard).
//
// Semantics:
//   - All restricted fields must match, except days: when BOTH DaysOfMonth
//     and DaysOfWeek are restricted, a day matching either fires (cron's
//     union rule, so specs parsed from cron behave as cron users expect).
//   - An unset Seconds field means second 0, not every second; reminders are
//     minute-granular unless seconds are given explicitly.
//   - A rule with every field unset recurs never (one-shot marker).
type Rule struct {
	Seconds     []int // 0..59
	Minutes     []int // 0..59
	Hours       []int // 0..23
	DaysOfWeek  []int // 0=Sunday .. 6=Saturday
	DaysOfMonth []int // 1..31
	Months      []int // 1=January .. 12
	Years       []int

	// Timezone is the IANA zone the calendar fields are interpreted in.
	// Empty means UTC.
	Timezone string
}

// Daily returns a rule firing every day at hour:minute.
func Daily(hour, minute int) *Rule {
	return &Rule{Hours: []int{hour}, Minutes: []int{minute}}
}

// Weekly returns a rule firing on the given weekday at hour:minute.
func Weekly(weekday time.Weekday, hour, minute int) *Rule {
	return &Rule{DaysOfWeek: []int{int(weekday)}, Hours: []int{hour}, Minutes: []int{minute}}
}

// Monthly returns a rule firing on the given day of month at hour:minute.
func Monthly(day, hour, minute int) *Rule {
	return &Rule{DaysOfMonth: []int{day}, Hours: []int{hour}, Minutes: []int{minute}}
}

// IsZero reports whether no field is restricted (the "never recurs" rule).
func (r *Rule) IsZero() bool {
	if r == nil {
		return true
	}
	return len(r.Seconds) == 0 && len(r.Minutes) == 0 && len(r.Hours) == 0 &&
		len(r.DaysOfWeek) == 0 && len(r.DaysOfMonth) == 0 &&
		len(r.Months) == 0 && len(r.Years) == 0
}

// Validate checks every restricted field against its natural domain and the
// timezone against the IANA database. It does not mutate the rule.
func (r *Rule) Validate() error {
	if r == nil {
		return nil
	}
	checks := []struct {
		name     string
		vals     []int
		min, max int
	}{
		{"seconds", r.Seconds, 0, 59},
		{"minutes", r.Minutes, 0, 59},
		{"hours", r.Hours, 0, 23},
		{"days_of_week", r.DaysOfWeek, 0, 6},
		{"days_of_month", r.DaysOfMonth, 1, 31},
		{"months", r.Months, 1, 12},
		{"years", r.Years, 1970, 9999},
	}
	for _, c := range checks {
		for _, v := range c.vals {
			if v < c.min || v > c.max {
				return fmt.Errorf("%w: %s value %d out of range [%d,%d]", ErrInvalidRule, c.name, v, c.min, c.max)
			}
		}
	}
	if _, err := r.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the rule's timezone. Empty means UTC.
func (r *Rule) Location() (*time.Location, error) {
	if r == nil || r.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidRule, r.Timezone)
	}
	return loc, nil
}

// Normalize sorts and dedupes every field set in place and returns the rule.
func (r *Rule) Normalize() *Rule {
	if r == nil {
		return nil
	}
	r.Seconds = normSet(r.Seconds)
	r.Minutes = normSet(r.Minutes)
	r.Hours = normSet(r.Hours)
	r.DaysOfWeek = normSet(r.DaysOfWeek)
	r.DaysOfMonth = normSet(r.DaysOfMonth)
	r.Months = normSet(r.Months)
	r.Years = normSet(r.Years)
	return r
}

func normSet(vals []int) []int {
	if len(vals) == 0 {
		return nil
	}
	sort.Ints(vals)
	n := 0
	for i, v := range vals {
		if i > 0 && v == vals[n-1] {
			continue
		}
		vals[n] = v
		n++
	}
	return vals[:n]
}
