package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"chimed/internal/dispatch"
	"chimed/internal/recurrence"
	"chimed/internal/store"
	"chimed/internal/task"
	logx "chimed/pkg/logx"
)

// Tick runs one sweep at the given instant and returns how many tasks fired.
//
// Exported so tests (and TriggerNow) can drive the sweep with an explicit
// clock. Re-entrant calls are no-ops: the in-progress flag serializes
// sweeps, and idempotency across consecutive ticks comes from the persisted
// NextExecutionTime advance.
func (s *Service) Tick(ctx context.Context, now time.Time) (int, error) {
	if !s.ticking.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer s.ticking.Store(false)

	now = now.UTC()
	due, err := s.store.FindDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("due query: %w", err)
	}

	fired := 0
	for _, t := range due {
		if err := s.fireOne(ctx, t, now); err != nil {
			// Partial failure isolation: one task's error does not block
			// the rest of the batch.
			s.log.Warn("task fire failed",
				logx.String("task_id", t.ID.String()),
				logx.String("task", t.Name),
				logx.Err(err),
			)
			s.record(FireRecord{TaskID: t.ID, Name: t.Name, Due: t.ScheduledTime, FiredAt: now, Error: err.Error()})
			continue
		}
		fired++
	}
	if fired > 0 {
		s.log.Debug("sweep done", logx.Int("due", len(due)), logx.Int("fired", fired), logx.Time("now", now))
	}
	return fired, nil
}

// fireOne advances and persists one due task, then dispatches the trigger.
//
// Order matters: dispatch happens only after the persist succeeds, otherwise
// a crashed save would re-fire the same occurrence every sweep.
func (s *Service) fireOne(ctx context.Context, t *task.ScheduleTask, now time.Time) error {
	natural := t.NextExecutionTime != nil && !t.NextExecutionTime.After(now)
	snoozed := !natural && t.Snooze != nil && !t.Snooze.Until.After(now)

	var due time.Time
	switch {
	case natural:
		due = *t.NextExecutionTime
		if err := s.advance(t, due, now); err != nil {
			return err
		}
	case snoozed:
		// Re-delivery of an already-counted occurrence: clears the snooze,
		// leaves the recurrence untouched.
		due = t.Snooze.Until
		t.ClearSnooze()
	default:
		// Raced with an external mutation between the due query and now.
		return nil
	}

	if err := s.persist(ctx, t); err != nil {
		return err
	}

	s.disp.Dispatch(dispatch.Event{
		TaskID:    t.ID,
		Name:      t.Name,
		FiredAt:   now,
		Scheduled: due,
		Alert:     t.Alert,
		Snoozed:   snoozed,
	})
	s.record(FireRecord{TaskID: t.ID, Name: t.Name, Due: due, FiredAt: now, Snoozed: snoozed})
	return nil
}

// advance consumes the due occurrence and computes the follow-up state:
// COMPLETED on cap/exhaustion, otherwise PENDING at the next occurrence.
//
// The next occurrence is anchored at the later of the due instant and now.
// Anchoring at the due instant avoids drift from sweep latency; clamping to
// now collapses a backlog of missed occurrences (process downtime) into the
// single firing we just consumed, instead of a catch-up storm.
func (s *Service) advance(t *task.ScheduleTask, due, now time.Time) error {
	if err := t.MarkFired(); err != nil {
		return err
	}
	if t.CapReached() || t.OneShot() {
		return t.Complete()
	}

	anchor := due
	if now.After(anchor) {
		anchor = now
	}
	next, err := t.Rule.Next(anchor)
	switch {
	case err == nil:
		t.AdvanceTo(next)
	case errors.Is(err, recurrence.ErrExhausted), errors.Is(err, recurrence.ErrHorizonExceeded):
		return t.Complete()
	default:
		// A rule that validated at creation but fails now. Complete rather
		// than re-firing forever, and keep the cause in the log.
		s.log.Error("recurrence evaluation failed; completing task",
			logx.String("task_id", t.ID.String()),
			logx.String("task", t.Name),
			logx.Err(err),
		)
		return t.Complete()
	}
	return nil
}

// persist saves the advanced task with bounded retries. A version conflict
// is not retried: it means someone else mutated the task mid-sweep, and the
// fresh state will be picked up (or excluded) by the next tick.
func (s *Service) persist(ctx context.Context, t *task.ScheduleTask) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	var err error
	maxAttempts := 1 + cfg.RetryMax
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.store.Save(ctx, t)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrVersionConflict) {
			s.log.Debug("task changed mid-sweep; skipping fire",
				logx.String("task_id", t.ID.String()),
				logx.String("task", t.Name),
			)
			return err
		}
		if attempt >= maxAttempts {
			break
		}
		delay := backoffDelay(cfg.RetryBase, cfg.RetryMaxDelay, attempt)
		s.log.Debug("persist retry scheduled",
			logx.String("task_id", t.ID.String()),
			logx.Int("attempt", attempt+1),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return ctx.Err()
		case <-tmr.C:
		}
	}
	return fmt.Errorf("persist after %d attempts: %w", maxAttempts, err)
}

func (s *Service) record(r FireRecord) {
	s.mu.Lock()
	historySize := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, r)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
}

func backoffDelay(base, maxDelay time.Duration, retry int) time.Duration {
	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d > maxDelay {
			d = maxDelay
			break
		}
	}
	// jitter [0.8, 1.2]
	r := (rand.Float64()*2 - 1) * 0.2
	d = time.Duration(float64(d) * (1 + r))
	if d < 0 {
		d = 0
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
