// Package dispatch fans out TaskTriggered events to registered listeners
// (notification popup, sound, SSE push, ...).
//
// Contract:
//   - Dispatch MUST be non-blocking: a slow listener may drop events, it can
//     never stall the scheduler sweep.
//   - Delivery to one listener preserves firing order (FIFO per listener);
//     no ordering is guaranteed between listeners.
//   - A listener's panic or failure is logged and contained.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"chimed/internal/task"
	logx "chimed/pkg/logx"
)

// Event is the immutable trigger record handed to listeners.
type Event struct {
	TaskID    uuid.UUID
	Name      string
	FiredAt   time.Time
	Scheduled time.Time
	Alert     task.AlertConfig
	// Snoozed marks a re-fire of a snoozed occurrence.
	Snoozed bool
}

// Handler consumes one trigger event.
type Handler func(Event)

// Unsubscribe removes a listener. Safe to call more than once.
type Unsubscribe func()

type Config struct {
	// QueueSize is the per-listener buffer (default 16).
	QueueSize int
	// RatePerSec smooths bursts of triggers before listener fan-out
	// (alert-flood guard). 0 disables the limiter.
	RatePerSec int
}

type subscriber struct {
	ch chan Event
}

type Dispatcher struct {
	cfg Config
	log logx.Logger

	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	seq    atomic.Uint64
	closed bool

	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg Config, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:    cfg,
		log:    log,
		subs:   map[uint64]*subscriber{},
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.RatePerSec > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return d
}

// OnTriggered registers a listener. Each listener gets its own buffered
// queue and goroutine, which is what makes per-listener FIFO hold while
// Dispatch stays non-blocking.
func (d *Dispatcher) OnTriggered(handler Handler) Unsubscribe {
	buffer := d.cfg.QueueSize
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	id := d.seq.Add(1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return func() {}
	}
	d.subs[id] = sub
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for ev := range sub.ch {
			if d.limiter != nil {
				if err := d.limiter.Wait(d.ctx); err != nil {
					return
				}
			}
			d.safeCall(handler, ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			_, live := d.subs[id]
			delete(d.subs, id)
			d.mu.Unlock()
			// Closing is safe because Dispatch recovers from send panics;
			// skip it when Close already closed the channel.
			if live {
				close(sub.ch)
			}
		})
	}
}

// Subscribe returns a raw event channel for consumers that prefer ranging
// over a channel to registering a handler. Same drop-on-full contract; the
// channel is closed on unsubscribe or Close. The flood limiter does not
// apply here: channel consumers pace themselves.
func (d *Dispatcher) Subscribe(buffer int) (<-chan Event, Unsubscribe) {
	if buffer <= 0 {
		buffer = d.cfg.QueueSize
	}
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	id := d.seq.Add(1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	d.subs[id] = sub
	d.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			d.mu.Lock()
			_, live := d.subs[id]
			delete(d.subs, id)
			d.mu.Unlock()
			// Close may have removed (and closed) the channel already.
			if live {
				close(sub.ch)
			}
		})
	}
}

// Dispatch delivers the event to every listener queue without blocking.
func (d *Dispatcher) Dispatch(ev Event) {
	if ev.FiredAt.IsZero() {
		ev.FiredAt = time.Now().UTC()
	}
	// Snapshot subscribers so Dispatch doesn't hold locks while sending.
	d.mu.RLock()
	chs := make([]chan Event, 0, len(d.subs))
	for _, sub := range d.subs {
		chs = append(chs, sub.ch)
	}
	d.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If the listener is slow, we drop.
		// If a listener unsubscribes concurrently and the channel closes,
		// recover from a possible panic (send on closed channel).
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- ev:
			default:
				d.log.Warn("listener queue full; dropping trigger",
					logx.String("task_id", ev.TaskID.String()),
					logx.String("task", ev.Name),
				)
			}
		}()
	}
}

// Close drops all listeners and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	subs := d.subs
	d.subs = map[uint64]*subscriber{}
	d.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) safeCall(handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("trigger listener panicked",
				logx.String("task_id", ev.TaskID.String()),
				logx.String("task", ev.Name),
				logx.Any("panic", r),
			)
		}
	}()
	handler(ev)
}
