// Package effects implements single-tick light transformations. Each effect
// reads the current state of its lights, writes the new desired state to the
// store and pushes it once. Repetition is left to the scheduler.
package effects

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfx/internal/lights"
)

// Store is the part of the light store effects operate on
type Store interface {
	Names() []string
	Get(name string) (lights.State, error)
	AlterState(names []string, p lights.Patch) error
	PushState(ctx context.Context) error
}

// Rand is a source of uniform integers. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// Range is an inclusive [low, high] interval
type Range [2]int

func (r Range) Low() int  { return r[0] }
func (r Range) High() int { return r[1] }

// Validate checks that low <= high and both ends are within [min, max]
func (r Range) Validate(name string, min, max int) error {
	if r[0] > r[1] {
		return fmt.Errorf("%w: %s range [%d, %d] is reversed", lights.ErrInvalidArgument, name, r[0], r[1])
	}
	if r[0] < min || r[1] > max {
		return fmt.Errorf("%w: %s range [%d, %d] outside [%d, %d]", lights.ErrInvalidArgument, name, r[0], r[1], min, max)
	}
	return nil
}

func (r Range) pick(rng Rand) int {
	return r[0] + rng.IntN(r[1]-r[0]+1)
}

// Level and hue bounds for ranges
var (
	LevelBounds = Range{0, lights.MaxLevel}
	HueBounds   = Range{0, lights.HueRange - 1}
)

// read returns the state of every named light, failing before anything is written
func read(s Store, names []string) ([]lights.State, error) {
	states := make([]lights.State, 0, len(names))
	for _, name := range names {
		st, err := s.Get(name)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

// Breathe toggles brightness between the ends of bri: lights brighter than the
// midpoint go to the low end, the rest to the high end.
func Breathe(ctx context.Context, s Store, names []string, transition time.Duration, bri Range) error {
	if err := bri.Validate("brightness", LevelBounds.Low(), LevelBounds.High()); err != nil {
		return err
	}
	states, err := read(s, names)
	if err != nil {
		return err
	}

	mid := float64(bri.Low()+bri.High()) / 2
	for i, name := range names {
		next := bri.High()
		if float64(states[i].Bri) > mid {
			next = bri.Low()
		}
		if err := s.AlterState([]string{name}, lights.Patch{
			Bri:        lights.Ptr(next),
			Transition: lights.Ptr(transition),
		}); err != nil {
			return err
		}
	}
	return s.PushState(ctx)
}

// HueSlide advances the hue of every light by speed, wrapping around the color wheel
func HueSlide(ctx context.Context, s Store, names []string, transition time.Duration, speed int) error {
	states, err := read(s, names)
	if err != nil {
		return err
	}

	for i, name := range names {
		if err := s.AlterState([]string{name}, lights.Patch{
			Hue:        lights.Ptr(int(states[i].Hue) + speed),
			Transition: lights.Ptr(transition),
		}); err != nil {
			return err
		}
	}
	return s.PushState(ctx)
}

// RandomHue sets one light to a uniformly random hue within hue
func RandomHue(ctx context.Context, s Store, rng Rand, name string, transition time.Duration, hue Range) error {
	if err := hue.Validate("hue", HueBounds.Low(), HueBounds.High()); err != nil {
		return err
	}

	next := hue.pick(rng)
	if err := s.AlterState([]string{name}, lights.Patch{
		Hue:        lights.Ptr(next),
		Transition: lights.Ptr(transition),
	}); err != nil {
		return err
	}

	log.Debug().Str("light", name).Int("hue", next).Msg("Random hue")
	return s.PushState(ctx)
}

// Swap exchanges on, hue, sat and bri between exactly two lights
func Swap(ctx context.Context, s Store, names []string, transition time.Duration) error {
	if len(names) != 2 {
		return fmt.Errorf("%w: swap needs exactly two lights, got %d", lights.ErrInvalidArgument, len(names))
	}
	if names[0] == names[1] {
		return fmt.Errorf("%w: swap needs two distinct lights, got %q twice", lights.ErrInvalidArgument, names[0])
	}

	// Both states are read before either is written
	states, err := read(s, names)
	if err != nil {
		return err
	}

	for i, name := range names {
		p := lights.ColorPatch(states[1-i])
		p.Transition = lights.Ptr(transition)
		if err := s.AlterState([]string{name}, p); err != nil {
			return err
		}
	}
	return s.PushState(ctx)
}

// DefaultDimFactor is applied by Dim when no factor is configured
const DefaultDimFactor = 0.8

// Dim scales the brightness of every light by factor, rounding down
func Dim(ctx context.Context, s Store, names []string, transition time.Duration, factor float64) error {
	if factor < 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return fmt.Errorf("%w: dim factor must be a non-negative number, got %v", lights.ErrInvalidArgument, factor)
	}
	states, err := read(s, names)
	if err != nil {
		return err
	}

	for i, name := range names {
		next := int(math.Floor(float64(states[i].Bri) * factor))
		log.Info().Str("light", name).Int("from", int(states[i].Bri)).Int("to", next).Msg("Dimming light")
		if err := s.AlterState([]string{name}, lights.Patch{
			Bri:        lights.Ptr(next),
			Transition: lights.Ptr(transition),
		}); err != nil {
			return err
		}
	}
	return s.PushState(ctx)
}

// TurnOn switches lights on with the given transition
func TurnOn(ctx context.Context, s Store, names []string, transition time.Duration) error {
	if err := s.AlterState(names, lights.Patch{
		On:         lights.Ptr(true),
		Transition: lights.Ptr(transition),
	}); err != nil {
		return err
	}
	return s.PushState(ctx)
}

// TurnOff switches lights off. Turning off never uses a transition.
func TurnOff(ctx context.Context, s Store, names []string) error {
	if err := s.AlterState(names, lights.Patch{On: lights.Ptr(false)}); err != nil {
		return err
	}
	return s.PushState(ctx)
}

// RandomOptions tunes TurnOnRandom
type RandomOptions struct {
	Hue      Range
	Sat      Range
	Bri      Range
	IgnoreOn bool // Also recolor lights that are already on
}

func (o RandomOptions) validate() error {
	return errors.Join(
		o.Hue.Validate("hue", HueBounds.Low(), HueBounds.High()),
		o.Sat.Validate("saturation", LevelBounds.Low(), LevelBounds.High()),
		o.Bri.Validate("brightness", LevelBounds.Low(), LevelBounds.High()),
	)
}

// TurnOnRandom turns lights on with a random color. Lights that are already on
// are left alone unless opts.IgnoreOn is set. It returns the lights it changed.
func TurnOnRandom(ctx context.Context, s Store, rng Rand, names []string, transition time.Duration, opts RandomOptions) ([]string, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	states, err := read(s, names)
	if err != nil {
		return nil, err
	}

	var changed []string
	for i, name := range names {
		if states[i].On && !opts.IgnoreOn {
			log.Info().Str("light", name).Msg("Light was already on")
			continue
		}

		p := lights.Patch{
			On:         lights.Ptr(true),
			Bri:        lights.Ptr(opts.Bri.pick(rng)),
			Sat:        lights.Ptr(opts.Sat.pick(rng)),
			Hue:        lights.Ptr(opts.Hue.pick(rng)),
			Transition: lights.Ptr(transition),
		}
		if err := s.AlterState([]string{name}, p); err != nil {
			return changed, err
		}
		changed = append(changed, name)

		log.Info().
			Str("light", name).
			Int("hue", *p.Hue).
			Int("sat", *p.Sat).
			Int("bri", *p.Bri).
			Msg("Light set to random color")
	}
	return changed, s.PushState(ctx)
}

// DefaultAlertHue is the color BlinkAlert uses when none is configured
const DefaultAlertHue = 50142

// Alert tunes BlinkAlert
type Alert struct {
	Hue  int
	Hold time.Duration // Time to keep the alert color before restoring
}

// BlinkAlert switches every light to the alert color at full brightness and
// saturation, pushes, waits for the hold time and restores the previous state.
// The restore is attempted even when the alert push failed or ctx was cancelled.
func BlinkAlert(ctx context.Context, s Store, alert Alert) error {
	names := s.Names()
	saved, err := read(s, names)
	if err != nil {
		return err
	}

	if err := s.AlterState(names, lights.Patch{
		On:  lights.Ptr(true),
		Bri: lights.Ptr(lights.MaxLevel),
		Sat: lights.Ptr(lights.MaxLevel),
		Hue: lights.Ptr(alert.Hue),
	}); err != nil {
		return err
	}
	alertErr := s.PushState(ctx)

	if alert.Hold > 0 && alertErr == nil {
		select {
		case <-ctx.Done():
		case <-time.After(alert.Hold):
		}
	}

	for i, name := range names {
		p := lights.ColorPatch(saved[i])
		p.Transition = lights.Ptr(saved[i].Transition)
		if err := s.AlterState([]string{name}, p); err != nil {
			return errors.Join(alertErr, err)
		}
	}

	// Restore even if the caller gave up waiting
	return errors.Join(alertErr, s.PushState(context.WithoutCancel(ctx)))
}
