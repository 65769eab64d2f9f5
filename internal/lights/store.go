package lights

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfx/internal/eventbus"
	"github.com/dokzlo13/lightfx/internal/gateway"
)

// entry guards the state of a single light
type entry struct {
	mu    sync.Mutex
	state State
}

// Store holds the desired state of every light known to the gateway.
//
// Each light has its own lock, so effects running on different chains may
// alter and push concurrently. When two chains write the same light, the last
// write before a push wins.
type Store struct {
	gw  gateway.Client
	pub eventbus.Publisher

	mu     sync.RWMutex
	names  []string
	lights map[string]*entry
}

// Option configures a Store
type Option func(*Store)

// WithPublisher publishes a push event for every command sent to the gateway
func WithPublisher(pub eventbus.Publisher) Option {
	return func(s *Store) {
		s.pub = pub
	}
}

// NewStore creates an empty store. Call PullLightNames and PullState to seed it.
func NewStore(gw gateway.Client, opts ...Option) *Store {
	s := &Store{
		gw:     gw,
		lights: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PullLightNames replaces the list of known lights with the gateway's
func (s *Store) PullLightNames(ctx context.Context) ([]string, error) {
	names, err := s.gw.LightNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("pull light names: %w", err)
	}

	s.mu.Lock()
	s.names = append([]string(nil), names...)
	s.mu.Unlock()

	log.Debug().Strs("lights", names).Msg("Pulled light names")
	return names, nil
}

// PullState replaces every entry with the gateway snapshot. Pulled lights are
// clean and have no transition.
func (s *Store) PullState(ctx context.Context) (map[string]State, error) {
	readings, err := s.gw.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("pull state: %w", err)
	}

	lights := make(map[string]*entry, len(readings))
	out := make(map[string]State, len(readings))
	for name, r := range readings {
		st := fromReading(r)
		lights[name] = &entry{state: st}
		out[name] = st
	}

	s.mu.Lock()
	s.lights = lights
	s.mu.Unlock()

	log.Debug().Int("lights", len(out)).Msg("Pulled light state")
	return out, nil
}

// Names returns the light names in gateway order
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.names...)
}

// Get returns the state of one light
func (s *Store) Get(name string) (State, error) {
	s.mu.RLock()
	e, ok := s.lights[name]
	s.mu.RUnlock()
	if !ok {
		return State{}, fmt.Errorf("%w: %q", ErrUnknownLight, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}

// Snapshot returns a copy of every light state
func (s *Store) Snapshot() map[string]State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]State, len(s.lights))
	for name, e := range s.lights {
		e.mu.Lock()
		out[name] = e.state
		e.mu.Unlock()
	}
	return out
}

// AlterState writes the attributes of p that differ from the stored values of
// every named light and marks those lights dirty. All names are checked before
// anything is written, so an unknown name leaves the store untouched.
func (s *Store) AlterState(names []string, p Patch) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*entry, 0, len(names))
	for _, name := range names {
		e, ok := s.lights[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownLight, name)
		}
		entries = append(entries, e)
	}
	if p.IsEmpty() {
		return nil
	}

	for i, e := range entries {
		e.mu.Lock()
		changed := e.state.apply(p)
		e.mu.Unlock()

		if changed {
			log.Debug().Str("light", names[i]).Msg("Light state altered")
		}
	}
	return nil
}

// PushState sends every dirty light to the gateway, in name order.
// A light is marked clean only when its push succeeded and it was not written
// again while the command was in flight. A failing light does not stop the
// others; failures are reported together as a *PushError.
func (s *Store) PushState(ctx context.Context) error {
	s.mu.RLock()
	names := make([]string, 0, len(s.lights))
	entries := make(map[string]*entry, len(s.lights))
	for name, e := range s.lights {
		names = append(names, name)
		entries[name] = e
	}
	s.mu.RUnlock()
	sort.Strings(names)

	var failed []LightError
	pushed := 0

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return errors.Join(newPushError(failed, pushed), fmt.Errorf("push state: %w", err))
		}

		e := entries[name]
		e.mu.Lock()
		st := e.state
		e.mu.Unlock()
		if !st.Dirty {
			continue
		}

		cmd := st.Command()
		err := s.gw.SetLight(ctx, name, cmd)
		s.publish(name, cmd, err)
		if err != nil {
			log.Warn().Err(err).Str("light", name).Stringer("command", cmd).Msg("Failed to push light state")
			failed = append(failed, LightError{Light: name, Err: err})
			continue
		}

		e.mu.Lock()
		if e.state.Version == st.Version {
			e.state.Dirty = false
		}
		e.mu.Unlock()
		pushed++

		log.Debug().Str("light", name).Stringer("command", cmd).Msg("Pushed light state")
	}

	if err := newPushError(failed, pushed); err != nil {
		return err
	}
	return nil
}

func newPushError(failed []LightError, pushed int) error {
	if len(failed) == 0 {
		return nil
	}
	return &PushError{Failed: failed, Pushed: pushed}
}

func (s *Store) publish(name string, cmd gateway.Command, err error) {
	if s.pub == nil {
		return
	}

	data := map[string]interface{}{
		"light":   name,
		"command": cmd.String(),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	s.pub.Publish(eventbus.Event{Type: eventbus.EventTypePush, Data: data})
}
