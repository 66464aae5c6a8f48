package app

import (
	"time"

	"chimed/internal/config"
	"chimed/internal/dispatch"
	"chimed/internal/scheduler"
	"chimed/internal/store"
	logx "chimed/pkg/logx"
)

// Config-to-service mapping lives here so the config package stays plain
// serializable types.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	poll, err := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	retryBase, err := config.ParseDurationField("scheduler.retry_base", cfg.Scheduler.RetryBase)
	if err != nil {
		return scheduler.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("scheduler.retry_max_delay", cfg.Scheduler.RetryMaxDelay)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:       cfg.Scheduler.Enabled,
		PollInterval:  poll,
		Timezone:      cfg.Scheduler.Timezone,
		RetryMax:      cfg.Scheduler.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
		HistorySize:   cfg.Scheduler.HistorySize,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) dispatch.Config {
	return dispatch.Config{
		QueueSize:  cfg.Dispatch.QueueSize,
		RatePerSec: cfg.Dispatch.RatePerSec,
	}
}

func mapStorageConfig(cfg *config.Config) (store.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}
