package task

import (
	"errors"
	"testing"
	"time"

	"chimed/internal/recurrence"
)

func newPending() *ScheduleTask {
	return New("water plants", recurrence.Daily(9, 0), time.Now().Add(time.Hour), AlertConfig{AllowSnooze: true, SnoozeMax: 2})
}

func TestTransitions(t *testing.T) {
	t.Parallel()

	t.Run("pause resume", func(t *testing.T) {
		t.Parallel()
		tk := newPending()
		if err := tk.Pause(); err != nil {
			t.Fatalf("Pause: %v", err)
		}
		if tk.Status != StatusPaused {
			t.Fatalf("Status = %s, want PAUSED", tk.Status)
		}
		if err := tk.Resume(); err != nil {
			t.Fatalf("Resume: %v", err)
		}
		if tk.Status != StatusPending {
			t.Fatalf("Status = %s, want PENDING", tk.Status)
		}
	})

	t.Run("terminal states reject everything", func(t *testing.T) {
		t.Parallel()
		for _, terminal := range []func(*ScheduleTask) error{(*ScheduleTask).Cancel, (*ScheduleTask).Complete} {
			tk := newPending()
			if err := terminal(tk); err != nil {
				t.Fatalf("terminal transition: %v", err)
			}
			if tk.NextExecutionTime != nil {
				t.Fatal("terminal task kept a next execution time")
			}
			for _, op := range []func() error{
				tk.Pause,
				tk.Resume,
				tk.Cancel,
				tk.MarkFired,
				func() error { return tk.Reschedule(time.Now()) },
			} {
				if err := op(); !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("err = %v, want ErrInvalidTransition", err)
				}
			}
		}
	})

	t.Run("resume only from paused", func(t *testing.T) {
		t.Parallel()
		tk := newPending()
		if err := tk.Resume(); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("err = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("reschedule while paused", func(t *testing.T) {
		t.Parallel()
		tk := newPending()
		_ = tk.Pause()
		at := time.Now().Add(2 * time.Hour)
		if err := tk.Reschedule(at); err != nil {
			t.Fatalf("Reschedule: %v", err)
		}
		if tk.NextExecutionTime == nil || !tk.NextExecutionTime.Equal(at.UTC()) {
			t.Fatalf("NextExecutionTime = %v, want %s", tk.NextExecutionTime, at.UTC())
		}
	})
}

func TestMarkFiredCounts(t *testing.T) {
	t.Parallel()
	tk := newPending()
	for i := 1; i <= 3; i++ {
		if err := tk.MarkFired(); err != nil {
			t.Fatalf("MarkFired #%d: %v", i, err)
		}
		if tk.ExecutionCount != i {
			t.Fatalf("ExecutionCount = %d, want %d", tk.ExecutionCount, i)
		}
	}
}

func TestCapReached(t *testing.T) {
	t.Parallel()
	tk := newPending()
	tk.MaxOccurrences = 1
	if tk.CapReached() {
		t.Fatal("cap reached before firing")
	}
	_ = tk.MarkFired()
	if !tk.CapReached() {
		t.Fatal("cap not reached after firing")
	}
}

func TestDueAt(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	tk := newPending()
	tk.AdvanceTo(now.Add(-time.Minute))
	if !tk.DueAt(now) {
		t.Fatal("past next execution time should be due")
	}

	tk.Enabled = false
	if tk.DueAt(now) {
		t.Fatal("disabled task must never be due")
	}
	tk.Enabled = true

	_ = tk.Pause()
	if tk.DueAt(now) {
		t.Fatal("paused task must never be due")
	}
	_ = tk.Resume()

	// Snooze deadline alone makes the task due.
	tk.AdvanceTo(now.Add(time.Hour))
	_ = tk.MarkFired()
	if err := tk.ApplySnooze(now.Add(-time.Second), 5*time.Minute, ""); err != nil {
		t.Fatalf("ApplySnooze: %v", err)
	}
	if !tk.DueAt(now) {
		t.Fatal("elapsed snooze should be due")
	}
}

func TestApplySnoozePolicy(t *testing.T) {
	t.Parallel()
	until := time.Now().Add(10 * time.Minute)

	t.Run("not allowed", func(t *testing.T) {
		t.Parallel()
		tk := New("n", nil, time.Now(), AlertConfig{})
		_ = tk.MarkFired()
		if err := tk.ApplySnooze(until, 10*time.Minute, ""); !errors.Is(err, ErrSnoozeNotAllowed) {
			t.Fatalf("err = %v, want ErrSnoozeNotAllowed", err)
		}
	})

	t.Run("not fired yet", func(t *testing.T) {
		t.Parallel()
		tk := newPending()
		if err := tk.ApplySnooze(until, 10*time.Minute, ""); !errors.Is(err, ErrNotFired) {
			t.Fatalf("err = %v, want ErrNotFired", err)
		}
	})

	t.Run("limit", func(t *testing.T) {
		t.Parallel()
		tk := newPending() // SnoozeMax: 2
		_ = tk.MarkFired()
		for i := 1; i <= 2; i++ {
			if err := tk.ApplySnooze(until, 10*time.Minute, "busy"); err != nil {
				t.Fatalf("snooze #%d: %v", i, err)
			}
			if tk.Snooze.Count != i {
				t.Fatalf("Count = %d, want %d", tk.Snooze.Count, i)
			}
		}
		if err := tk.ApplySnooze(until, 10*time.Minute, ""); !errors.Is(err, ErrSnoozeLimit) {
			t.Fatalf("err = %v, want ErrSnoozeLimit", err)
		}
	})

	t.Run("offset presets", func(t *testing.T) {
		t.Parallel()
		tk := newPending()
		tk.Alert.SnoozeOffsets = []time.Duration{5 * time.Minute, 15 * time.Minute}
		_ = tk.MarkFired()
		if err := tk.ApplySnooze(until, 10*time.Minute, ""); !errors.Is(err, ErrSnoozeNotAllowed) {
			t.Fatalf("err = %v, want ErrSnoozeNotAllowed", err)
		}
		if err := tk.ApplySnooze(until, 5*time.Minute, ""); err != nil {
			t.Fatalf("preset snooze: %v", err)
		}
	})

	t.Run("fire clears snooze", func(t *testing.T) {
		t.Parallel()
		tk := newPending()
		_ = tk.MarkFired()
		_ = tk.ApplySnooze(until, 10*time.Minute, "")
		_ = tk.MarkFired()
		if tk.Snooze != nil {
			t.Fatal("MarkFired should clear a pending snooze")
		}
	})
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()
	tk := newPending()
	_ = tk.MarkFired()
	_ = tk.ApplySnooze(time.Now().Add(time.Minute), 10*time.Minute, "")

	cp := tk.Clone()
	cp.Rule.Hours[0] = 23
	cp.Snooze.Count = 99
	*cp.NextExecutionTime = time.Time{}

	if tk.Rule.Hours[0] == 23 {
		t.Fatal("clone shares rule storage")
	}
	if tk.Snooze.Count == 99 {
		t.Fatal("clone shares snooze state")
	}
	if tk.NextExecutionTime.IsZero() {
		t.Fatal("clone shares next execution time")
	}
}
