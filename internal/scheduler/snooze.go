package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	logx "chimed/pkg/logx"
)

// Snooze pushes the most recent occurrence of a task out by offset, without
// touching the underlying recurrence: the next natural occurrence is
// unaffected, the sweep just also watches the snooze deadline.
//
// Policy (AllowSnooze, SnoozeMax, offset presets) is enforced by the entity;
// violations surface as task.ErrSnoozeNotAllowed / task.ErrSnoozeLimit.
func (s *Service) Snooze(ctx context.Context, id uuid.UUID, offset time.Duration, reason string) error {
	if offset <= 0 {
		return fmt.Errorf("snooze offset must be > 0, got %s", offset)
	}
	t, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	until := time.Now().UTC().Add(offset)
	if err := t.ApplySnooze(until, offset, reason); err != nil {
		return err
	}
	if err := s.store.Save(ctx, t); err != nil {
		return err
	}
	s.log.Info("task snoozed",
		logx.String("task_id", t.ID.String()),
		logx.String("task", t.Name),
		logx.Time("until", until),
		logx.Int("count", t.Snooze.Count),
	)
	return nil
}
