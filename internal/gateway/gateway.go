// Package gateway defines the contract between the light store and the bridge
// relaying commands to physical lights, and provides its implementations.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable wraps every failure to reach or get an answer from the bridge
	ErrUnavailable = errors.New("gateway unavailable")
	// ErrUnknownLight is returned for names the bridge does not know
	ErrUnknownLight = errors.New("unknown light")
)

// Reading is the state of one light as reported by the bridge
type Reading struct {
	On  bool
	Hue uint16
	Sat uint8
	Bri uint8
}

// Command is a minimal light state change. Nil fields are not sent.
type Command struct {
	On             *bool   `json:"on,omitempty"`
	Hue            *uint16 `json:"hue,omitempty"`
	Sat            *uint8  `json:"sat,omitempty"`
	Bri            *uint8  `json:"bri,omitempty"`
	TransitionTime *uint16 `json:"transitiontime,omitempty"` // tenths of a second
}

// String renders the command the way it is logged and journaled
func (c Command) String() string {
	var parts []string
	if c.On != nil {
		parts = append(parts, fmt.Sprintf("on=%t", *c.On))
	}
	if c.Hue != nil {
		parts = append(parts, fmt.Sprintf("hue=%d", *c.Hue))
	}
	if c.Sat != nil {
		parts = append(parts, fmt.Sprintf("sat=%d", *c.Sat))
	}
	if c.Bri != nil {
		parts = append(parts, fmt.Sprintf("bri=%d", *c.Bri))
	}
	if c.TransitionTime != nil {
		parts = append(parts, fmt.Sprintf("transitiontime=%d", *c.TransitionTime))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Client is the light gateway as seen by the light store
type Client interface {
	// LightNames returns the names of every light known to the bridge, in bridge order.
	LightNames(ctx context.Context) ([]string, error)

	// Snapshot returns the current state of every light keyed by name.
	Snapshot(ctx context.Context) (map[string]Reading, error)

	// SetLight sends a state change to a single light.
	SetLight(ctx context.Context, name string, cmd Command) error
}
