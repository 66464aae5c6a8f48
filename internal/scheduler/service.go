package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"chimed/internal/dispatch"
	"chimed/internal/store"
	logx "chimed/pkg/logx"
)

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	store store.Store
	disp  *dispatch.Dispatcher

	stopCh    chan struct{}
	runCancel context.CancelFunc
	loopWG    sync.WaitGroup

	// ticking serializes sweeps: a re-entrant Tick is a no-op, so two timers
	// (or a timer racing a manual tick) can never double-fire a task.
	ticking atomic.Bool

	hmu     sync.Mutex
	history []FireRecord
}

func New(cfg Config, st store.Store, disp *dispatch.Dispatcher, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg.withDefaults(),
		log:   log,
		store: st,
		disp:  disp,
	}
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply updates runtime knobs. The poll interval is re-read every cycle, so
// a change takes effect on the next wake.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Service) pollInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.PollInterval
}

// Start launches the sweep loop. The first sweep runs immediately so
// occurrences that came due while the process was down are caught up (once
// each; see the collapse policy in fireOne).
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	stopCh := s.stopCh
	interval := s.cfg.PollInterval
	s.mu.Unlock()

	s.loopWG.Add(1)
	go func() {
		defer s.loopWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduler loop", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.loop(runCtx, stopCh)
	}()
	s.log.Info("scheduler started", logx.Duration("poll_interval", interval))
}

// Stop signals the loop and waits for the in-flight sweep, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.runCancel
	s.stopCh = nil
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.loopWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		// loop finishes in background
	}
}

func (s *Service) loop(ctx context.Context, stopCh <-chan struct{}) {
	// Startup recovery sweep.
	if _, err := s.Tick(ctx, time.Now()); err != nil {
		s.log.Error("startup sweep failed", logx.Err(err))
	}

	timer := time.NewTimer(s.pollInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-timer.C:
			if _, err := s.Tick(ctx, time.Now()); err != nil {
				// Fatal for this cycle only; the next tick still runs.
				s.log.Error("sweep cycle failed", logx.Err(err))
			}
			timer.Reset(s.pollInterval())
		}
	}
}
