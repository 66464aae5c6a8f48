package recurrence

import (
	"errors"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("bad test time %q: %v", s, err)
	}
	return ts
}

func TestNextBasics(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		rule  *Rule
		after string
		want  string
	}{
		{
			name:  "daily at 9 after 10",
			rule:  Daily(9, 0),
			after: "2024-01-01T10:00:00Z",
			want:  "2024-01-02T09:00:00Z",
		},
		{
			name:  "daily at 9 before 9",
			rule:  Daily(9, 0),
			after: "2024-01-01T08:15:00Z",
			want:  "2024-01-01T09:00:00Z",
		},
		{
			name:  "exactly at occurrence is strictly after",
			rule:  Daily(9, 0),
			after: "2024-01-02T09:00:00Z",
			want:  "2024-01-03T09:00:00Z",
		},
		{
			name:  "weekly monday",
			rule:  Weekly(time.Monday, 8, 30),
			after: "2024-01-04T12:00:00Z", // Thursday
			want:  "2024-01-08T08:30:00Z",
		},
		{
			name:  "monthly day 15",
			rule:  Monthly(15, 12, 0),
			after: "2024-01-16T00:00:00Z",
			want:  "2024-02-15T12:00:00Z",
		},
		{
			name:  "month restricted rolls the year",
			rule:  &Rule{Months: []int{3}, DaysOfMonth: []int{1}, Hours: []int{0}, Minutes: []int{0}},
			after: "2024-03-02T00:00:00Z",
			want:  "2025-03-01T00:00:00Z",
		},
		{
			name:  "dom and dow union picks the earlier",
			rule:  &Rule{DaysOfMonth: []int{15}, DaysOfWeek: []int{1}, Hours: []int{12}, Minutes: []int{0}},
			after: "2024-01-02T00:00:00Z", // Tuesday
			want:  "2024-01-08T12:00:00Z", // Monday beats the 15th
		},
		{
			name:  "explicit seconds",
			rule:  &Rule{Hours: []int{9}, Minutes: []int{0}, Seconds: []int{30}},
			after: "2024-01-01T09:00:00Z",
			want:  "2024-01-01T09:00:30Z",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			after := mustTime(t, tt.after)
			got, err := tt.rule.Next(after)
			if err != nil {
				t.Fatalf("Next error: %v", err)
			}
			want := mustTime(t, tt.want)
			if !got.Equal(want) {
				t.Fatalf("Next = %s, want %s", got, want)
			}
			if !got.After(after) {
				t.Fatalf("Next %s not strictly after %s", got, after)
			}

			// Deterministic: same inputs, same output.
			again, err := tt.rule.Next(after)
			if err != nil {
				t.Fatalf("second Next error: %v", err)
			}
			if !again.Equal(got) {
				t.Fatalf("Next not deterministic: %s then %s", got, again)
			}
		})
	}
}

func TestNextTimezone(t *testing.T) {
	t.Parallel()
	rule := Daily(9, 0)
	rule.Timezone = "Asia/Tokyo"

	// 2024-01-01T00:00Z is 09:00 JST, so the next 09:00 JST is a day later.
	after := mustTime(t, "2024-01-01T00:00:00Z")
	got, err := rule.Next(after)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	want := mustTime(t, "2024-01-02T00:00:00Z")
	if !got.Equal(want) {
		t.Fatalf("Next = %s, want %s", got, want)
	}
	if got.Location() != time.UTC {
		t.Fatalf("result not normalized to UTC: %s", got.Location())
	}
}

func TestNextContradictoryRule(t *testing.T) {
	t.Parallel()
	// February 31st never exists.
	rule := &Rule{Months: []int{2}, DaysOfMonth: []int{31}, Hours: []int{9}, Minutes: []int{0}}
	_, err := rule.Next(mustTime(t, "2024-01-01T00:00:00Z"))
	if !errors.Is(err, ErrHorizonExceeded) {
		t.Fatalf("err = %v, want ErrHorizonExceeded", err)
	}
}

func TestNextExhausted(t *testing.T) {
	t.Parallel()

	t.Run("years in the past", func(t *testing.T) {
		rule := &Rule{Years: []int{2020}, Hours: []int{9}, Minutes: []int{0}}
		_, err := rule.Next(mustTime(t, "2024-01-01T00:00:00Z"))
		if !errors.Is(err, ErrExhausted) {
			t.Fatalf("err = %v, want ErrExhausted", err)
		}
	})

	t.Run("zero rule", func(t *testing.T) {
		_, err := (&Rule{}).Next(mustTime(t, "2024-01-01T00:00:00Z"))
		if !errors.Is(err, ErrExhausted) {
			t.Fatalf("err = %v, want ErrExhausted", err)
		}
	})

	t.Run("nil rule is zero", func(t *testing.T) {
		var r *Rule
		if !r.IsZero() {
			t.Fatal("nil rule should be zero")
		}
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{name: "valid daily", rule: Rule{Hours: []int{9}, Minutes: []int{0}}},
		{name: "minute out of range", rule: Rule{Minutes: []int{60}}, wantErr: true},
		{name: "hour out of range", rule: Rule{Hours: []int{24}}, wantErr: true},
		{name: "weekday out of range", rule: Rule{DaysOfWeek: []int{7}}, wantErr: true},
		{name: "month zero", rule: Rule{Months: []int{0}}, wantErr: true},
		{name: "day of month zero", rule: Rule{DaysOfMonth: []int{0}}, wantErr: true},
		{name: "bad timezone", rule: Rule{Hours: []int{9}, Timezone: "Mars/Olympus"}, wantErr: true},
		{name: "valid timezone", rule: Rule{Hours: []int{9}, Timezone: "Europe/Berlin"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.rule.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRule) {
					t.Fatalf("err = %v, want ErrInvalidRule", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate error: %v", err)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	r := &Rule{Hours: []int{17, 9, 9}, Minutes: []int{30, 0, 30}}
	r.Normalize()
	if len(r.Hours) != 2 || r.Hours[0] != 9 || r.Hours[1] != 17 {
		t.Fatalf("Hours = %v, want [9 17]", r.Hours)
	}
	if len(r.Minutes) != 2 || r.Minutes[0] != 0 || r.Minutes[1] != 30 {
		t.Fatalf("Minutes = %v, want [0 30]", r.Minutes)
	}
}
