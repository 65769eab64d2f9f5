// Package lights keeps the desired state of every light, tracks which lights
// changed since they were last sent, and pushes only those to the gateway.
package lights

import (
	"math"
	"time"

	"github.com/dokzlo13/lightfx/internal/gateway"
)

// HueRange is the number of distinct hue values; hues wrap modulo HueRange.
const HueRange = 65536

// MaxLevel is the largest brightness or saturation the store accepts
const MaxLevel = 255

// MaxWireLevel is the largest brightness or saturation the bridge accepts.
// Commands clamp to it; the store keeps the written value.
const MaxWireLevel = 254

// State is the tracked state of one light
type State struct {
	On         bool
	Hue        uint16
	Sat        uint8
	Bri        uint8
	Transition time.Duration

	// Dirty is set when an attribute changed since the last successful push
	Dirty bool
	// Version increases on every write that sets Dirty
	Version int64
}

// TransitionTime returns the transition in tenths of a second, as sent on the wire
func (s State) TransitionTime() uint16 {
	tenths := math.Round(s.Transition.Seconds() * 10)
	if tenths < 0 {
		return 0
	}
	if tenths > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(tenths)
}

// Command builds the gateway command for this state.
// Turning a light off never carries a transition time.
func (s State) Command() gateway.Command {
	on, hue := s.On, s.Hue
	sat, bri := min(s.Sat, MaxWireLevel), min(s.Bri, MaxWireLevel)
	cmd := gateway.Command{On: &on, Hue: &hue, Sat: &sat, Bri: &bri}
	if s.On {
		tt := s.TransitionTime()
		cmd.TransitionTime = &tt
	}
	return cmd
}

// apply writes every attribute of p that differs from s and reports whether anything changed
func (s *State) apply(p Patch) bool {
	changed := false

	if p.On != nil && *p.On != s.On {
		s.On = *p.On
		changed = true
	}
	if p.Hue != nil {
		if hue := NormalizeHue(*p.Hue); hue != s.Hue {
			s.Hue = hue
			changed = true
		}
	}
	if p.Sat != nil {
		if sat := ClampLevel(*p.Sat); sat != s.Sat {
			s.Sat = sat
			changed = true
		}
	}
	if p.Bri != nil {
		if bri := ClampLevel(*p.Bri); bri != s.Bri {
			s.Bri = bri
			changed = true
		}
	}
	if p.Transition != nil {
		t := *p.Transition
		if t < 0 {
			t = 0
		}
		if t != s.Transition {
			s.Transition = t
			changed = true
		}
	}

	if changed {
		s.Dirty = true
		s.Version++
	}
	return changed
}

// Patch is a partial State. Nil fields are left untouched.
type Patch struct {
	On         *bool
	Hue        *int
	Sat        *int
	Bri        *int
	Transition *time.Duration
}

// IsEmpty reports whether the patch sets nothing
func (p Patch) IsEmpty() bool {
	return p.On == nil && p.Hue == nil && p.Sat == nil && p.Bri == nil && p.Transition == nil
}

// ColorPatch returns a patch restoring the on, hue, sat and bri of s
func ColorPatch(s State) Patch {
	return Patch{
		On:  Ptr(s.On),
		Hue: Ptr(int(s.Hue)),
		Sat: Ptr(int(s.Sat)),
		Bri: Ptr(int(s.Bri)),
	}
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}

// NormalizeHue wraps v into [0, 65535]. Negative values wrap from the top.
func NormalizeHue(v int) uint16 {
	m := v % HueRange
	if m < 0 {
		m += HueRange
	}
	return uint16(m)
}

// ClampLevel clamps a brightness or saturation into [0, 255]
func ClampLevel(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > MaxLevel {
		return MaxLevel
	}
	return uint8(v)
}

func fromReading(r gateway.Reading) State {
	return State{On: r.On, Hue: r.Hue, Sat: r.Sat, Bri: r.Bri}
}
