package recurrence

import "time"

// horizonYears bounds the forward scan so contradictory rules (day 31 of
// February, a weekday/month combination that never aligns, ...) terminate.
const horizonYears = 8

// Next computes the first instant strictly after `after` that satisfies the
// rule. The scan runs in the rule's timezone; the result is returned in UTC.
//
// Pure and deterministic: the same (rule, after) always yields the same
// result. Errors:
//   - ErrExhausted when the rule is all-wildcard or its Years are in the past
//   - ErrHorizonExceeded when nothing matches within horizonYears
//   - ErrInvalidRule when a field is out of domain
func (r *Rule) Next(after time.Time) (time.Time, error) {
	if r.IsZero() {
		return time.Time{}, ErrExhausted
	}
	if err := r.Validate(); err != nil {
		return time.Time{}, err
	}
	loc, err := r.Location()
	if err != nil {
		return time.Time{}, err
	}

	// Unset seconds means second 0 (see Rule doc).
	seconds := r.Seconds
	if len(seconds) == 0 {
		seconds = []int{0}
	}

	t := after.In(loc).Truncate(time.Second).Add(time.Second)
	limit := after.AddDate(horizonYears, 0, 0)

	for {
		if t.After(limit) {
			return time.Time{}, ErrHorizonExceeded
		}
		if !matches(r.Years, t.Year()) {
			if len(r.Years) > 0 && t.Year() > maxOf(r.Years) {
				return time.Time{}, ErrExhausted
			}
			t = time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !matches(r.Months, int(t.Month())) {
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
			continue
		}
		if !r.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
			continue
		}
		if !matches(r.Hours, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc).Add(time.Hour)
			continue
		}
		if !matches(r.Minutes, t.Minute()) {
			t = t.Truncate(time.Minute).Add(time.Minute)
			continue
		}
		if !matches(seconds, t.Second()) {
			t = t.Add(time.Second)
			continue
		}
		return t.UTC(), nil
	}
}

// dayMatches applies the day constraint: union of DOM/DOW when both are
// restricted, plain match otherwise.
func (r *Rule) dayMatches(t time.Time) bool {
	domSet := len(r.DaysOfMonth) > 0
	dowSet := len(r.DaysOfWeek) > 0
	domOK := matches(r.DaysOfMonth, t.Day())
	dowOK := matches(r.DaysOfWeek, int(t.Weekday()))
	if domSet && dowSet {
		return domOK || dowOK
	}
	return domOK && dowOK
}

// matches reports whether v is allowed by the field set (empty = wildcard).
// Sets are tiny, so a linear scan beats anything fancier.
func matches(set []int, v int) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func maxOf(vals []int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
