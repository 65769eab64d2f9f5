package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Call is one SetLight invocation recorded by Memory
type Call struct {
	Name    string
	Command Command
}

// Memory is an in-process Client. It applies commands to its own readings and
// records every call, which makes it usable both as a dry-run target and as a
// test double.
type Memory struct {
	mu       sync.Mutex
	names    []string
	readings map[string]Reading
	calls    []Call
	failures map[string]error
	down     error
}

var _ Client = (*Memory)(nil)

// NewMemory creates an empty in-memory gateway
func NewMemory() *Memory {
	return &Memory{
		readings: make(map[string]Reading),
		failures: make(map[string]error),
	}
}

// AddLight registers a light. Lights are listed in the order they were added.
func (m *Memory) AddLight(name string, r Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.readings[name]; !ok {
		m.names = append(m.names, name)
	}
	m.readings[name] = r
}

// FailLight makes every following SetLight for name return err. A nil err clears it.
func (m *Memory) FailLight(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failures, name)
		return
	}
	m.failures[name] = err
}

// SetDown makes every call return err wrapped in ErrUnavailable. A nil err clears it.
func (m *Memory) SetDown(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = err
}

// Calls returns a copy of the recorded SetLight calls
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// ResetCalls forgets the recorded calls
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Reading returns the current reading of a light
func (m *Memory) Reading(name string) (Reading, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.readings[name]
	return r, ok
}

func (m *Memory) LightNames(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.down != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, m.down)
	}
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out, nil
}

func (m *Memory) Snapshot(ctx context.Context) (map[string]Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.down != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, m.down)
	}
	out := make(map[string]Reading, len(m.readings))
	for name, r := range m.readings {
		out[name] = r
	}
	return out, nil
}

func (m *Memory) SetLight(ctx context.Context, name string, cmd Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.down != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, m.down)
	}
	r, ok := m.readings[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLight, name)
	}

	m.calls = append(m.calls, Call{Name: name, Command: cmd})

	if err, ok := m.failures[name]; ok {
		return fmt.Errorf("%w: set light %q: %w", ErrUnavailable, name, err)
	}

	if cmd.On != nil {
		r.On = *cmd.On
	}
	if cmd.Hue != nil {
		r.Hue = *cmd.Hue
	}
	if cmd.Sat != nil {
		r.Sat = *cmd.Sat
	}
	if cmd.Bri != nil {
		r.Bri = *cmd.Bri
	}
	m.readings[name] = r

	log.Debug().
		Str("light", name).
		Stringer("command", cmd).
		Msg("Applied command to in-memory light")

	return nil
}
