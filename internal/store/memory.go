package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chimed/internal/task"
)

// Memory is the in-process store. Every read returns a deep copy so callers
// never alias the stored state; Save enforces the same version check the
// sqlite backend does, keeping test behavior honest.
type Memory struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*task.ScheduleTask
}

func NewMemory() *Memory {
	return &Memory{tasks: map[uuid.UUID]*task.ScheduleTask{}}
}

func (m *Memory) Save(ctx context.Context, t *task.ScheduleTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.tasks[t.ID]; ok && cur.Version != t.Version {
		return ErrVersionConflict
	}
	t.Version++
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *Memory) FindByID(ctx context.Context, id uuid.UUID) (*task.ScheduleTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *Memory) FindDue(ctx context.Context, now time.Time) ([]*task.ScheduleTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*task.ScheduleTask
	for _, t := range m.tasks {
		if t.DueAt(now) {
			due = append(due, t.Clone())
		}
	}
	return due, nil
}

func (m *Memory) List(ctx context.Context) ([]*task.ScheduleTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*task.ScheduleTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *Memory) Close() error { return nil }
