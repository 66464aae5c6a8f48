package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts both 5-field and 6-field (with seconds) crontab specs
// plus descriptors like @daily. Same parser flags the scheduler UIs expose.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// starBit mirrors robfig/cron's wildcard marker on parsed field bitmasks.
const starBit = 1 << 63

// ParseCron converts a crontab spec ("0 9 * * *", "@daily",
// "CRON_TZ=Asia/Tokyo 30 8 * * 1-5") into a Rule.
//
// Interval descriptors ("@every 5m") have no fixed-field equivalent and are
// rejected; callers wanting relative repeats should use a Rule directly.
func ParseCron(spec string) (*Rule, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	ss, ok := sched.(*cron.SpecSchedule)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a fixed-field cron spec", ErrInvalidRule, spec)
	}

	r := &Rule{
		Seconds:     bitsToSet(ss.Second, 0, 59),
		Minutes:     bitsToSet(ss.Minute, 0, 59),
		Hours:       bitsToSet(ss.Hour, 0, 23),
		DaysOfMonth: bitsToSet(ss.Dom, 1, 31),
		Months:      bitsToSet(ss.Month, 1, 12),
		DaysOfWeek:  bitsToSet(ss.Dow, 0, 6),
	}
	if loc := ss.Location; loc != nil && loc != time.Local && loc != time.UTC {
		r.Timezone = loc.String()
	}
	return r.Normalize(), nil
}

// MustParseCron is ParseCron for static specs; it panics on error.
func MustParseCron(spec string) *Rule {
	r, err := ParseCron(spec)
	if err != nil {
		panic(err)
	}
	return r
}

// CronSpec renders the rule back as a crontab spec where one exists. Years
// have no cron field, so year-restricted rules (and the zero rule) report
// false. The seconds field is emitted only when it says something beyond the
// implicit second 0.
func (r *Rule) CronSpec() (string, bool) {
	if r.IsZero() || len(r.Years) > 0 {
		return "", false
	}
	fields := []string{
		setField(r.Minutes),
		setField(r.Hours),
		setField(r.DaysOfMonth),
		setField(r.Months),
		setField(r.DaysOfWeek),
	}
	if len(r.Seconds) > 0 && !(len(r.Seconds) == 1 && r.Seconds[0] == 0) {
		fields = append([]string{setField(r.Seconds)}, fields...)
	}
	spec := strings.Join(fields, " ")
	if r.Timezone != "" {
		spec = "CRON_TZ=" + r.Timezone + " " + spec
	}
	return spec, true
}

func setField(vals []int) string {
	if len(vals) == 0 {
		return "*"
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func bitsToSet(bits uint64, lo, hi int) []int {
	if bits&starBit != 0 {
		return nil
	}
	var out []int
	for v := lo; v <= hi; v++ {
		if bits&(1<<uint(v)) != 0 {
			out = append(out, v)
		}
	}
	// A mask covering the whole domain is a wildcard in all but spelling.
	if len(out) == hi-lo+1 {
		return nil
	}
	return out
}
