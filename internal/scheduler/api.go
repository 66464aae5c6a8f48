package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chimed/internal/recurrence"
	"chimed/internal/task"
	logx "chimed/pkg/logx"
)

// CreateSpec describes a task to create. Exactly one schedule source is
// required: a Rule, a CronSpec, or (for one-shots) an At instant. At may
// also accompany a rule to pin the first firing.
type CreateSpec struct {
	Name     string
	Rule     *recurrence.Rule
	CronSpec string
	At       time.Time

	MaxOccurrences int
	Alert          task.AlertConfig
}

// CreateTask validates the spec, resolves the first due instant, and
// persists a PENDING task.
func (s *Service) CreateTask(ctx context.Context, spec CreateSpec) (*task.ScheduleTask, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, errors.New("task name required")
	}
	if spec.Rule != nil && spec.CronSpec != "" {
		return nil, errors.New("rule and cron spec are mutually exclusive")
	}

	rule := spec.Rule
	if spec.CronSpec != "" {
		parsed, err := recurrence.ParseCron(spec.CronSpec)
		if err != nil {
			return nil, err
		}
		rule = parsed
	}
	if rule != nil {
		rule.Normalize()
		if rule.Timezone == "" {
			s.mu.Lock()
			rule.Timezone = s.cfg.Timezone
			s.mu.Unlock()
		}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
	}

	scheduled := spec.At
	if scheduled.IsZero() {
		if rule.IsZero() {
			return nil, errors.New("one-shot task requires a scheduled time")
		}
		next, err := rule.Next(time.Now())
		if err != nil {
			return nil, fmt.Errorf("no first occurrence: %w", err)
		}
		scheduled = next
	}

	t := task.New(name, rule, scheduled, spec.Alert)
	t.MaxOccurrences = spec.MaxOccurrences
	if err := s.store.Save(ctx, t); err != nil {
		return nil, err
	}
	s.log.Info("task created",
		logx.String("task_id", t.ID.String()),
		logx.String("task", t.Name),
		logx.Time("next", scheduled),
		logx.Bool("recurring", !t.OneShot()),
	)
	return t, nil
}

// Pause excludes the task from the sweep until Resume. Takes effect no later
// than the next tick; a task already selected by an in-flight sweep may
// still fire once (best-effort cancellation).
func (s *Service) Pause(ctx context.Context, id uuid.UUID) error {
	return s.mutate(ctx, id, "paused", (*task.ScheduleTask).Pause)
}

// Resume returns a paused task to the sweep.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) error {
	return s.mutate(ctx, id, "resumed", (*task.ScheduleTask).Resume)
}

// Cancel terminally stops the task. Same best-effort timing as Pause.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.mutate(ctx, id, "cancelled", (*task.ScheduleTask).Cancel)
}

// Reschedule overwrites the due instant of a PENDING or PAUSED task.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newTime time.Time) error {
	return s.mutate(ctx, id, "rescheduled", func(t *task.ScheduleTask) error {
		return t.Reschedule(newTime)
	})
}

// SetEnabled flips the sweep gate without touching the lifecycle status.
func (s *Service) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return s.mutate(ctx, id, fmt.Sprintf("enabled=%v", enabled), func(t *task.ScheduleTask) error {
		t.Enabled = enabled
		return nil
	})
}

// Delete removes the task from the store entirely.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("task deleted", logx.String("task_id", id.String()))
	return nil
}

// TriggerNow fires one occurrence immediately ("test reminder"): the task is
// rescheduled to now and swept through the normal persist-then-dispatch
// path, so the firing counts and recurrences advance as usual.
func (s *Service) TriggerNow(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	if err := s.Reschedule(ctx, id, now); err != nil {
		return err
	}
	_, err := s.Tick(ctx, now)
	return err
}

// Get returns a copy of the task.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*task.ScheduleTask, error) {
	return s.store.FindByID(ctx, id)
}

func (s *Service) mutate(ctx context.Context, id uuid.UUID, action string, fn func(*task.ScheduleTask) error) error {
	t, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	if err := s.store.Save(ctx, t); err != nil {
		return err
	}
	s.log.Info("task "+action, logx.String("task_id", id.String()), logx.String("task", t.Name))
	return nil
}
