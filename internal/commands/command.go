// Package commands maps the closed set of CLI commands onto effects, running
// the repeatable ones under a scheduler until their deadline.
package commands

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrUnknownCommand is returned by Parse for names outside the command set
var ErrUnknownCommand = errors.New("unknown command")

// Command is one of the supported commands
type Command int

const (
	Off Command = iota + 1
	On
	RandomCol
	Register
	BlinkAlert
	State
	Breathe
	Dim
	Slide
	Swap
	RandomHue
)

var commandNames = map[Command]string{
	Off:        "off",
	On:         "on",
	RandomCol:  "random_col",
	Register:   "register",
	BlinkAlert: "blink_alert",
	State:      "state",
	Breathe:    "breathe",
	Dim:        "dim",
	Slide:      "slide",
	Swap:       "swap",
	RandomHue:  "random_hue",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// Repeated reports whether the command runs under a repeater
func (c Command) Repeated() bool {
	switch c {
	case Breathe, Slide, Swap, RandomHue:
		return true
	default:
		return false
	}
}

// NeedsLights reports whether the command needs the light store seeded from the bridge
func (c Command) NeedsLights() bool {
	return c != Register
}

// Parse returns the command with the given name
func Parse(name string) (Command, error) {
	for c, n := range commandNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q (choose from: %s)", ErrUnknownCommand, name, strings.Join(Names(), ", "))
}

// Names returns every command name, sorted
func Names() []string {
	names := make([]string, 0, len(commandNames))
	for _, n := range commandNames {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Option flags accepted with -o
const (
	OptionState    = "state"
	OptionIgnoreOn = "ignore_on"
)

// Request is one command invocation
type Request struct {
	Command    Command
	Lights     []string      // Target lights; all lights when empty
	Transition time.Duration // Transition of every change, and the default repeat interval
	Duration   int           // Minutes a repeated command runs; unbounded when <= 0
	Wait       time.Duration // Pause before the command starts
	Options    []string
	Params     Params
}

// HasOption reports whether the option flag was given
func (r Request) HasOption(name string) bool {
	return slices.Contains(r.Options, name)
}

// Interval returns the repeat interval: the interval parameter when set, else the transition
func (r Request) Interval() time.Duration {
	if r.Params.Interval != nil {
		return time.Duration(*r.Params.Interval * float64(time.Second))
	}
	return r.Transition
}
