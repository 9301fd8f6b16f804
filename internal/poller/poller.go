// Package poller drives a single job to a terminal state by querying its
// status on a fixed interval.
//
// A Poller moves through Idle → Polling → {Succeeded, Failed, Cancelled}.
// Each Start opens a fresh update stream that is closed when the loop ends.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultInterval               = 5 * time.Second
	DefaultMaxConsecutiveFailures = 5

	updateBuffer = 16
)

// ErrEmptyHandle is returned by Start when no job handle is given.
var ErrEmptyHandle = errors.New("job handle is required")

// ErrTooManyFailures is attached to the final update when the loop gives up.
var ErrTooManyFailures = errors.New("too many consecutive poll failures")

// State is the lifecycle state of a polling loop.
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether s ends a loop.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Observation is what a single status query learned about the job.
type Observation int

const (
	ObservationPending Observation = iota
	ObservationSucceeded
	ObservationFailed
)

// Querier reports the current status of the job identified by handle.
type Querier interface {
	Query(ctx context.Context, handle string) (Observation, error)
}

// QueryFunc adapts a function to Querier.
type QueryFunc func(ctx context.Context, handle string) (Observation, error)

func (f QueryFunc) Query(ctx context.Context, handle string) (Observation, error) {
	return f(ctx, handle)
}

// Update is emitted after every poll and once more when the loop ends.
// Attempt counts queries issued so far. Err holds the last poll failure.
type Update struct {
	Handle  string
	State   State
	Attempt int
	Err     error
}

// Config holds poller settings. Zero values fall back to the defaults.
type Config struct {
	Interval               time.Duration
	MaxConsecutiveFailures int
	Logger                 *slog.Logger
}

// Poller runs at most one polling loop at a time.
type Poller struct {
	querier     Querier
	interval    time.Duration
	maxFailures int
	logger      *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle Poller.
func New(q Querier, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Poller{
		querier:     q,
		interval:    cfg.Interval,
		maxFailures: cfg.MaxConsecutiveFailures,
		logger:      cfg.Logger,
		state:       StateIdle,
	}
}

// State returns the current loop state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start begins polling handle and returns the update stream. An active loop
// is cancelled, and Start waits for it to exit before the new one begins.
func (p *Poller) Start(ctx context.Context, handle string) (<-chan Update, error) {
	if handle == "" {
		return nil, ErrEmptyHandle
	}

	p.Cancel()

	loopCtx, cancel := context.WithCancel(ctx)
	updates := make(chan Update, updateBuffer)
	done := make(chan struct{})

	p.mu.Lock()
	p.state = StatePolling
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	p.logger.Info("Polling started",
		slog.String("handle", handle),
		slog.Duration("interval", p.interval),
	)

	go p.run(loopCtx, handle, updates, done)
	return updates, nil
}

// Cancel stops the active loop, if any, and returns once it has exited.
// No query is issued after Cancel returns.
func (p *Poller) Cancel() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, handle string, updates chan<- Update, done chan<- struct{}) {
	defer close(done)
	defer close(updates)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	attempt := 0
	failures := 0
	var lastErr error

	for {
		select {
		case <-ctx.Done():
			p.cancelled(handle, attempt, updates)
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			p.cancelled(handle, attempt, updates)
			return
		}

		attempt++
		obs, err := p.querier.Query(ctx, handle)
		if ctx.Err() != nil {
			p.cancelled(handle, attempt, updates)
			return
		}

		if err != nil {
			failures++
			lastErr = err
			p.logger.Warn("Status poll failed",
				slog.String("handle", handle),
				slog.Int("attempt", attempt),
				slog.Int("consecutive_failures", failures),
				slog.Any("error", err),
			)
			if failures >= p.maxFailures {
				p.finish(ctx, Update{
					Handle:  handle,
					State:   StateFailed,
					Attempt: attempt,
					Err:     errors.Join(ErrTooManyFailures, lastErr),
				}, updates)
				return
			}
			if !p.send(ctx, Update{Handle: handle, State: StatePolling, Attempt: attempt, Err: err}, updates) {
				p.cancelled(handle, attempt, updates)
				return
			}
			continue
		}
		failures = 0

		switch obs {
		case ObservationSucceeded:
			p.finish(ctx, Update{Handle: handle, State: StateSucceeded, Attempt: attempt}, updates)
			return
		case ObservationFailed:
			p.finish(ctx, Update{Handle: handle, State: StateFailed, Attempt: attempt}, updates)
			return
		}

		if !p.send(ctx, Update{Handle: handle, State: StatePolling, Attempt: attempt}, updates) {
			p.cancelled(handle, attempt, updates)
			return
		}
	}
}

// send delivers u unless the loop is cancelled first.
func (p *Poller) send(ctx context.Context, u Update, updates chan<- Update) bool {
	select {
	case updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Poller) finish(ctx context.Context, u Update, updates chan<- Update) {
	p.setState(u.State)
	p.logger.Info("Polling finished",
		slog.String("handle", u.Handle),
		slog.String("state", string(u.State)),
		slog.Int("attempts", u.Attempt),
	)
	p.send(ctx, u, updates)
}

// cancelled records the Cancelled state. The final update is dropped when
// the reader has stopped draining the stream.
func (p *Poller) cancelled(handle string, attempt int, updates chan<- Update) {
	p.setState(StateCancelled)
	p.logger.Info("Polling cancelled",
		slog.String("handle", handle),
		slog.Int("attempts", attempt),
	)
	select {
	case updates <- Update{Handle: handle, State: StateCancelled, Attempt: attempt}:
	default:
	}
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}
