package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"chimed/internal/recurrence"
	"chimed/internal/task"
	logx "chimed/pkg/logx"
)

func seedTask(t *testing.T, m *Memory, name string, due time.Time) *task.ScheduleTask {
	t.Helper()
	tk := task.New(name, recurrence.Daily(9, 0), due, task.AlertConfig{AllowSnooze: true})
	if err := m.Save(context.Background(), tk); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return tk
}

func TestMemoryRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	tk := seedTask(t, m, "standup", time.Now().Add(time.Hour))
	if tk.Version != 1 {
		t.Fatalf("Version after first save = %d, want 1", tk.Version)
	}

	got, err := m.FindByID(ctx, tk.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Name != "standup" || got.Version != 1 {
		t.Fatalf("got %s v%d, want standup v1", got.Name, got.Version)
	}

	// Mutating the returned copy must not leak into the store.
	got.Name = "changed"
	again, err := m.FindByID(ctx, tk.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if again.Name != "standup" {
		t.Fatal("store returned aliased state")
	}

	if err := m.Delete(ctx, tk.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.FindByID(ctx, tk.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := m.Delete(ctx, tk.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete err = %v, want ErrNotFound", err)
	}
}

func TestMemoryVersionConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	tk := seedTask(t, m, "conflict", time.Now().Add(time.Hour))

	a, _ := m.FindByID(ctx, tk.ID)
	b, _ := m.FindByID(ctx, tk.ID)

	if err := m.Save(ctx, a); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	if err := m.Save(ctx, b); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale writer err = %v, want ErrVersionConflict", err)
	}

	// Re-read and retry succeeds.
	fresh, _ := m.FindByID(ctx, tk.ID)
	if err := m.Save(ctx, fresh); err != nil {
		t.Fatalf("retry after re-read: %v", err)
	}
}

func TestMemoryFindDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now().UTC()
	m := NewMemory()

	due := seedTask(t, m, "due", now.Add(-time.Minute))
	seedTask(t, m, "future", now.Add(time.Hour))

	paused, _ := m.FindByID(ctx, seedTask(t, m, "paused", now.Add(-time.Minute)).ID)
	_ = paused.Pause()
	if err := m.Save(ctx, paused); err != nil {
		t.Fatalf("save paused: %v", err)
	}

	disabled, _ := m.FindByID(ctx, seedTask(t, m, "disabled", now.Add(-time.Minute)).ID)
	disabled.Enabled = false
	if err := m.Save(ctx, disabled); err != nil {
		t.Fatalf("save disabled: %v", err)
	}

	// Snoozed task with a future next execution but an elapsed snooze deadline.
	snoozed, _ := m.FindByID(ctx, seedTask(t, m, "snoozed", now.Add(time.Hour)).ID)
	_ = snoozed.MarkFired()
	if err := snoozed.ApplySnooze(now.Add(-time.Second), 5*time.Minute, ""); err != nil {
		t.Fatalf("ApplySnooze: %v", err)
	}
	if err := m.Save(ctx, snoozed); err != nil {
		t.Fatalf("save snoozed: %v", err)
	}

	got, err := m.FindDue(ctx, now)
	if err != nil {
		t.Fatalf("FindDue: %v", err)
	}
	want := map[uuid.UUID]bool{due.ID: true, snoozed.ID: true}
	if len(got) != len(want) {
		t.Fatalf("FindDue returned %d tasks, want %d", len(got), len(want))
	}
	for _, tk := range got {
		if !want[tk.ID] {
			t.Fatalf("unexpected due task %s", tk.Name)
		}
	}
}

func TestMemoryContextCancelled(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Save(ctx, task.New("n", nil, time.Now(), task.AlertConfig{})); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, err := m.FindDue(ctx, time.Now()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "memory", "MEM"} {
		s, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if _, ok := s.(*Memory); !ok {
			t.Fatalf("Open(%q) = %T, want *Memory", driver, s)
		}
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
}
