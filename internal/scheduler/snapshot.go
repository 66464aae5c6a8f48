package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// TaskInfo is a read-only summary of one task for status views.
type TaskInfo struct {
	ID             uuid.UUID
	Name           string
	Status         string
	Enabled        bool
	Recurring      bool
	Next           *time.Time
	SnoozedUntil   *time.Time
	ExecutionCount int
	MaxOccurrences int
}

// Snapshot is a point-in-time view of the scheduler (the "upcoming
// reminders" surface).
type Snapshot struct {
	Enabled      bool
	Timezone     string
	PollInterval time.Duration
	Tasks        []TaskInfo
	History      []FireRecord
}

// Snapshot lists all tasks ordered by next due time plus recent firings.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	tasks, err := s.store.List(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	infos := make([]TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		info := TaskInfo{
			ID:             t.ID,
			Name:           t.Name,
			Status:         string(t.Status),
			Enabled:        t.Enabled,
			Recurring:      !t.OneShot(),
			Next:           t.NextExecutionTime,
			ExecutionCount: t.ExecutionCount,
			MaxOccurrences: t.MaxOccurrences,
		}
		if t.Snooze != nil {
			until := t.Snooze.Until
			info.SnoozedUntil = &until
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		a, b := infos[i].Next, infos[j].Next
		switch {
		case a == nil && b == nil:
			return infos[i].Name < infos[j].Name
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})

	s.hmu.Lock()
	history := append([]FireRecord(nil), s.history...)
	s.hmu.Unlock()

	return Snapshot{
		Enabled:      cfg.Enabled,
		Timezone:     cfg.Timezone,
		PollInterval: cfg.PollInterval,
		Tasks:        infos,
		History:      history,
	}, nil
}
