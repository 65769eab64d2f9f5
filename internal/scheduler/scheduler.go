// Package scheduler provides the self-rescheduling timer chain used to run
// effects repeatedly until a deadline.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

// ErrInvalidInterval is returned for non-positive repeat intervals
var ErrInvalidInterval = errors.New("repeat interval must be positive")

// Action is one tick of a repeated effect
type Action func(ctx context.Context) error

// Option configures a Repeater
type Option func(*Repeater)

// WithClock replaces the system clock
func WithClock(clock Clock) Option {
	return func(r *Repeater) {
		r.clock = clock
	}
}

// WithMessage sets the message logged before every tick
func WithMessage(msg string) Option {
	return func(r *Repeater) {
		r.message = msg
	}
}

// Repeater invokes an action at a fixed interval until a deadline.
//
// Each tick runs on the goroutine of the timer that armed it. The next tick is
// armed only after the current one returned, so ticks of one Repeater never
// overlap. A tick that returns an error ends the chain: Wait reports that error
// and nothing is rescheduled.
type Repeater struct {
	id       string
	name     string
	message  string
	interval time.Duration
	deadline Deadline
	action   Action
	clock    Clock

	mu      sync.Mutex
	timer   Timer
	started bool
	stopErr error

	stopped atomic.Bool
	ticks   atomic.Int64

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

// NewRepeater creates a repeater that is not running yet
func NewRepeater(name string, interval time.Duration, deadline Deadline, action Action, opts ...Option) (*Repeater, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidInterval, interval)
	}
	if action == nil {
		return nil, errors.New("repeater action is nil")
	}

	r := &Repeater{
		id:       uuid.NewString(),
		name:     name,
		message:  "Running " + name,
		interval: interval,
		deadline: deadline,
		action:   action,
		clock:    SystemClock,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ID returns the run identifier of this chain
func (r *Repeater) ID() string {
	return r.id
}

// Name returns the repeater name
func (r *Repeater) Name() string {
	return r.name
}

// Ticks returns how many times the action has been invoked
func (r *Repeater) Ticks() int64 {
	return r.ticks.Load()
}

// Deadline returns the deadline bounding this chain
func (r *Repeater) Deadline() Deadline {
	return r.deadline
}

// Start runs the first tick synchronously and arms the chain.
// Cancelling ctx stops the chain like Stop does. Calling Start twice is a no-op.
func (r *Repeater) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	log.Debug().
		Str("repeater", r.name).
		Str("run_id", r.id).
		Dur("interval", r.interval).
		Str("deadline", r.deadline.String()).
		Msg("Repeater started")

	go r.watch(ctx)
	r.step(ctx)
}

// Stop cancels the pending tick. A tick already running completes, but no further tick is armed.
func (r *Repeater) Stop() {
	r.cancel(nil)
}

// Done is closed when the chain has terminated
func (r *Repeater) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the chain terminates and returns the error that ended it:
// nil after the deadline or Stop, the context error after cancellation,
// or the error of the failing tick.
func (r *Repeater) Wait() error {
	<-r.done
	return r.err
}

func (r *Repeater) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		r.cancel(ctx.Err())
	case <-r.done:
	}
}

func (r *Repeater) cancel(err error) {
	if !r.stopped.CompareAndSwap(false, true) {
		return
	}

	r.mu.Lock()
	r.stopErr = err
	timer := r.timer
	r.timer = nil
	r.mu.Unlock()

	// If the timer was still pending nobody else will finish the chain.
	// Otherwise a running tick observes the stopped flag.
	if timer != nil && timer.Stop() {
		r.finish(err)
	}
}

func (r *Repeater) stopError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopErr
}

func (r *Repeater) step(ctx context.Context) {
	if r.stopped.Load() {
		r.finish(r.stopError())
		return
	}

	now := r.clock.Now()
	if r.deadline.Allows(now) {
		tick := r.ticks.Inc()
		log.Info().
			Str("repeater", r.name).
			Str("run_id", r.id).
			Int64("tick", tick).
			Time("at", now).
			Str("deadline", r.deadline.String()).
			Msg(r.message)

		if err := r.action(ctx); err != nil {
			r.finish(fmt.Errorf("%s tick %d: %w", r.name, tick, err))
			return
		}
	}

	// Only re-arm if the next tick would still happen before the deadline
	if !r.deadline.Allows(r.clock.Now().Add(r.interval)) {
		r.finish(nil)
		return
	}

	r.mu.Lock()
	if r.stopped.Load() {
		err := r.stopErr
		r.mu.Unlock()
		r.finish(err)
		return
	}
	r.timer = r.clock.AfterFunc(r.interval, func() {
		r.step(ctx)
	})
	r.mu.Unlock()
}

func (r *Repeater) finish(err error) {
	r.doneOnce.Do(func() {
		r.err = err
		r.stopped.Store(true)

		event := log.Info()
		if err != nil {
			event = log.Warn().Err(err)
		}
		event.
			Str("repeater", r.name).
			Str("run_id", r.id).
			Int64("ticks", r.ticks.Load()).
			Msg("Repeater finished")

		close(r.done)
	})
}
