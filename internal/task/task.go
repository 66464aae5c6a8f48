// Package task defines the schedulable unit (ScheduleTask) and its
// lifecycle state machine. The entity is persistence-agnostic; stores keep
// plain copies and the scheduler mutates tasks through the methods here.
package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"chimed/internal/recurrence"
)

// Status is the task lifecycle state.
//
//	PENDING  -> PAUSED (resumable) -> PENDING
//	PENDING  -> CANCELLED (terminal)
//	PENDING  -> COMPLETED (terminal; occurrence cap or rule exhausted)
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaused    Status = "PAUSED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// AlertConfig carries delivery preferences. The scheduler treats it as
// opaque payload; listeners (popup, sound, push) interpret it.
type AlertConfig struct {
	Sound        bool
	PopupSeconds int
	AllowSnooze  bool
	SnoozeMax    int
	// SnoozeOffsets optionally restricts snooze durations to presets.
	SnoozeOffsets []time.Duration
}

// SnoozeState is the transient per-occurrence snooze. It lives on the task
// but is independent of the recurrence rule: it is cleared when the snoozed
// instant fires or when the next natural occurrence supersedes it.
type SnoozeState struct {
	Until  time.Time
	Count  int
	Reason string
}

// ScheduleTask is the aggregate root of the scheduling subsystem.
type ScheduleTask struct {
	ID   uuid.UUID
	Name string

	// Rule is nil for one-shot tasks (fires once at ScheduledTime).
	Rule *recurrence.Rule

	// ScheduledTime is the currently-due fire instant. It advances as
	// occurrences are consumed.
	ScheduledTime time.Time

	// NextExecutionTime mirrors ScheduledTime while the task can still
	// fire; nil once it cannot (one-shot fired, terminal status).
	NextExecutionTime *time.Time

	Status  Status
	Enabled bool

	ExecutionCount int
	// MaxOccurrences caps firings; 0 means unlimited.
	MaxOccurrences int

	Alert  AlertConfig
	Snooze *SnoozeState

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version supports optimistic concurrency at the store boundary.
	Version int64
}

// New creates a PENDING, enabled task due at scheduledTime.
// rule may be nil (one-shot).
func New(name string, rule *recurrence.Rule, scheduledTime time.Time, alert AlertConfig) *ScheduleTask {
	now := time.Now().UTC()
	st := scheduledTime.UTC()
	next := st
	return &ScheduleTask{
		ID:                uuid.New(),
		Name:              name,
		Rule:              rule,
		ScheduledTime:     st,
		NextExecutionTime: &next,
		Status:            StatusPending,
		Enabled:           true,
		Alert:             alert,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// OneShot reports whether the task has no usable recurrence rule.
func (t *ScheduleTask) OneShot() bool {
	return t.Rule.IsZero()
}

// DueAt reports whether the sweep should fire the task at now: it must be
// enabled, PENDING, and either its next execution time or a pending snooze
// must have arrived.
func (t *ScheduleTask) DueAt(now time.Time) bool {
	if !t.Enabled || t.Status != StatusPending {
		return false
	}
	if t.Snooze != nil && !t.Snooze.Until.After(now) {
		return true
	}
	return t.NextExecutionTime != nil && !t.NextExecutionTime.After(now)
}

// Pause excludes the task from the sweep until Resume.
func (t *ScheduleTask) Pause() error {
	if t.Status != StatusPending {
		return fmt.Errorf("%w: %s -> PAUSED", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusPaused
	t.touch()
	return nil
}

// Resume returns a paused task to the sweep.
func (t *ScheduleTask) Resume() error {
	if t.Status != StatusPaused {
		return fmt.Errorf("%w: %s -> PENDING", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusPending
	t.touch()
	return nil
}

// Cancel terminally stops the task.
func (t *ScheduleTask) Cancel() error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s -> CANCELLED", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusCancelled
	t.NextExecutionTime = nil
	t.Snooze = nil
	t.touch()
	return nil
}

// Reschedule overwrites the due instant directly. Distinct from snooze: it
// moves the task's own schedule, not a single occurrence.
func (t *ScheduleTask) Reschedule(newTime time.Time) error {
	if t.Status != StatusPending && t.Status != StatusPaused {
		return fmt.Errorf("%w: reschedule while %s", ErrInvalidTransition, t.Status)
	}
	st := newTime.UTC()
	t.ScheduledTime = st
	next := st
	t.NextExecutionTime = &next
	t.Snooze = nil
	t.touch()
	return nil
}

// MarkFired consumes one occurrence: bumps the execution counter and clears
// any pending snooze. The scheduler decides afterwards whether the task
// advances (AdvanceTo) or completes (Complete).
func (t *ScheduleTask) MarkFired() error {
	if t.Status != StatusPending {
		return fmt.Errorf("%w: fire while %s", ErrInvalidTransition, t.Status)
	}
	t.ExecutionCount++
	t.Snooze = nil
	t.touch()
	return nil
}

// AdvanceTo moves the schedule to the next occurrence after a firing.
func (t *ScheduleTask) AdvanceTo(next time.Time) {
	n := next.UTC()
	t.ScheduledTime = n
	t.NextExecutionTime = &n
	t.touch()
}

// Complete terminally finishes the task (cap reached or rule exhausted).
func (t *ScheduleTask) Complete() error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s -> COMPLETED", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusCompleted
	t.NextExecutionTime = nil
	t.Snooze = nil
	t.touch()
	return nil
}

// CapReached reports whether MaxOccurrences limits further firings.
func (t *ScheduleTask) CapReached() bool {
	return t.MaxOccurrences > 0 && t.ExecutionCount >= t.MaxOccurrences
}

// ApplySnooze records a snooze of the most recent occurrence. Policy checks
// (AllowSnooze, SnoozeMax, offset presets) live here so every caller gets
// the same rules.
func (t *ScheduleTask) ApplySnooze(until time.Time, offset time.Duration, reason string) error {
	if !t.Alert.AllowSnooze {
		return ErrSnoozeNotAllowed
	}
	if t.Status != StatusPending {
		return fmt.Errorf("%w: snooze while %s", ErrSnoozeNotAllowed, t.Status)
	}
	if t.ExecutionCount == 0 {
		return ErrNotFired
	}
	if len(t.Alert.SnoozeOffsets) > 0 && !containsOffset(t.Alert.SnoozeOffsets, offset) {
		return fmt.Errorf("%w: offset %s not in presets", ErrSnoozeNotAllowed, offset)
	}
	count := 1
	if t.Snooze != nil {
		count = t.Snooze.Count + 1
	}
	if t.Alert.SnoozeMax > 0 && count > t.Alert.SnoozeMax {
		return ErrSnoozeLimit
	}
	t.Snooze = &SnoozeState{Until: until.UTC(), Count: count, Reason: reason}
	t.touch()
	return nil
}

// ClearSnooze drops a pending snooze (re-fire delivered, or superseded by
// the natural occurrence).
func (t *ScheduleTask) ClearSnooze() {
	if t.Snooze == nil {
		return
	}
	t.Snooze = nil
	t.touch()
}

// Clone returns a deep copy so stores and snapshots never alias live state.
func (t *ScheduleTask) Clone() *ScheduleTask {
	cp := *t
	if t.Rule != nil {
		r := *t.Rule
		r.Seconds = append([]int(nil), t.Rule.Seconds...)
		r.Minutes = append([]int(nil), t.Rule.Minutes...)
		r.Hours = append([]int(nil), t.Rule.Hours...)
		r.DaysOfWeek = append([]int(nil), t.Rule.DaysOfWeek...)
		r.DaysOfMonth = append([]int(nil), t.Rule.DaysOfMonth...)
		r.Months = append([]int(nil), t.Rule.Months...)
		r.Years = append([]int(nil), t.Rule.Years...)
		cp.Rule = &r
	}
	if t.NextExecutionTime != nil {
		n := *t.NextExecutionTime
		cp.NextExecutionTime = &n
	}
	if t.Snooze != nil {
		s := *t.Snooze
		cp.Snooze = &s
	}
	cp.Alert.SnoozeOffsets = append([]time.Duration(nil), t.Alert.SnoozeOffsets...)
	return &cp
}

func (t *ScheduleTask) touch() { t.UpdatedAt = time.Now().UTC() }

func containsOffset(offsets []time.Duration, d time.Duration) bool {
	for _, o := range offsets {
		if o == d {
			return true
		}
	}
	return false
}
