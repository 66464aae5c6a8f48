//go:build sqlite
// +build sqlite

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"chimed/internal/recurrence"
	"chimed/internal/task"
	logx "chimed/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Save(ctx context.Context, t *task.ScheduleTask) error {
	ruleJSON, err := marshalRule(t.Rule)
	if err != nil {
		return err
	}
	alertJSON, err := json.Marshal(t.Alert)
	if err != nil {
		return err
	}

	var nextMS any
	if t.NextExecutionTime != nil {
		nextMS = t.NextExecutionTime.UnixMilli()
	}
	var snoozeMS, snoozeReason any
	snoozeCount := 0
	if t.Snooze != nil {
		snoozeMS = t.Snooze.Until.UnixMilli()
		snoozeCount = t.Snooze.Count
		snoozeReason = nullStr(t.Snooze.Reason)
	}

	newVersion := t.Version + 1
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(id, name, rule_json, scheduled_at_ms, next_at_ms, status, enabled,
		                   execution_count, max_occurrences, alert_json,
		                   snooze_until_ms, snooze_count, snooze_reason,
		                   created_at, updated_at, version)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, rule_json=excluded.rule_json,
		   scheduled_at_ms=excluded.scheduled_at_ms, next_at_ms=excluded.next_at_ms,
		   status=excluded.status, enabled=excluded.enabled,
		   execution_count=excluded.execution_count, max_occurrences=excluded.max_occurrences,
		   alert_json=excluded.alert_json,
		   snooze_until_ms=excluded.snooze_until_ms, snooze_count=excluded.snooze_count,
		   snooze_reason=excluded.snooze_reason,
		   updated_at=excluded.updated_at, version=excluded.version
		 WHERE tasks.version=?`,
		t.ID.String(), t.Name, ruleJSON, t.ScheduledTime.UnixMilli(), nextMS,
		string(t.Status), boolInt(t.Enabled),
		t.ExecutionCount, t.MaxOccurrences, string(alertJSON),
		snoozeMS, snoozeCount, snoozeReason,
		t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano),
		newVersion, t.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	t.Version = newVersion
	return nil
}

func (s *sqliteStore) FindByID(ctx context.Context, id uuid.UUID) (*task.ScheduleTask, error) {
	row := s.db.QueryRowContext(ctx, selectCols+` FROM tasks WHERE id = ?`, id.String())
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) FindDue(ctx context.Context, now time.Time) ([]*task.ScheduleTask, error) {
	ms := now.UnixMilli()
	rows, err := s.db.QueryContext(ctx,
		selectCols+` FROM tasks
		 WHERE enabled = 1 AND status = ?
		   AND ((next_at_ms IS NOT NULL AND next_at_ms <= ?)
		     OR (snooze_until_ms IS NOT NULL AND snooze_until_ms <= ?))
		 ORDER BY next_at_ms`,
		string(task.StatusPending), ms, ms,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *sqliteStore) List(ctx context.Context) ([]*task.ScheduleTask, error) {
	rows, err := s.db.QueryContext(ctx, selectCols+` FROM tasks ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *sqliteStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectCols = `SELECT id, name, rule_json, scheduled_at_ms, next_at_ms, status, enabled,
       execution_count, max_occurrences, alert_json,
       snooze_until_ms, snooze_count, snooze_reason,
       created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.ScheduleTask, error) {
	var (
		idStr, name, status    string
		ruleJSON, snoozeRsn    sql.NullString
		schedMS                int64
		nextMS, snoozeMS       sql.NullInt64
		enabled                int
		execCount, maxOcc      int
		alertJSON              string
		snoozeCount            int
		createdStr, updatedStr string
		version                int64
	)
	if err := row.Scan(&idStr, &name, &ruleJSON, &schedMS, &nextMS, &status, &enabled,
		&execCount, &maxOcc, &alertJSON,
		&snoozeMS, &snoozeCount, &snoozeRsn,
		&createdStr, &updatedStr, &version); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt task id %q: %w", idStr, err)
	}
	t := &task.ScheduleTask{
		ID:             id,
		Name:           name,
		ScheduledTime:  time.UnixMilli(schedMS).UTC(),
		Status:         task.Status(status),
		Enabled:        enabled != 0,
		ExecutionCount: execCount,
		MaxOccurrences: maxOcc,
		Version:        version,
	}
	if ruleJSON.Valid && ruleJSON.String != "" {
		var r recurrence.Rule
		if err := json.Unmarshal([]byte(ruleJSON.String), &r); err != nil {
			return nil, fmt.Errorf("corrupt rule for task %s: %w", idStr, err)
		}
		t.Rule = &r
	}
	if nextMS.Valid {
		n := time.UnixMilli(nextMS.Int64).UTC()
		t.NextExecutionTime = &n
	}
	if err := json.Unmarshal([]byte(alertJSON), &t.Alert); err != nil {
		return nil, fmt.Errorf("corrupt alert config for task %s: %w", idStr, err)
	}
	if snoozeMS.Valid {
		t.Snooze = &task.SnoozeState{
			Until:  time.UnixMilli(snoozeMS.Int64).UTC(),
			Count:  snoozeCount,
			Reason: snoozeRsn.String,
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdStr); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedStr); err == nil {
		t.UpdatedAt = ts
	}
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]*task.ScheduleTask, error) {
	var out []*task.ScheduleTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func marshalRule(r *recurrence.Rule) (any, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
