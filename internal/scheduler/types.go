package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// Config controls the sweep loop.
type Config struct {
	Enabled bool

	// PollInterval is the sweep period (default 30s). A task is never late
	// by more than one interval.
	PollInterval time.Duration

	// Timezone is the default IANA zone applied to rules created without
	// one. Empty means UTC.
	Timezone string

	// Persist retry knobs (per task, per sweep).
	RetryMax      int           // default 3
	RetryBase     time.Duration // default 100ms
	RetryMaxDelay time.Duration // default 2s

	// HistorySize bounds the in-memory fire history ring (default 200).
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 100 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 2 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// FireRecord is one history entry for a sweep firing (or its failure).
type FireRecord struct {
	TaskID  uuid.UUID
	Name    string
	Due     time.Time
	FiredAt time.Time
	Snoozed bool
	Error   string
}
