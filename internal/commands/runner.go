package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfx/internal/config"
	"github.com/dokzlo13/lightfx/internal/effects"
	"github.com/dokzlo13/lightfx/internal/eventbus"
	"github.com/dokzlo13/lightfx/internal/gateway"
	"github.com/dokzlo13/lightfx/internal/ledger"
	"github.com/dokzlo13/lightfx/internal/scheduler"
)

// Store is the light store as used by the runner
type Store interface {
	effects.Store
	RenderTable() string
}

// Journal lists recent activity for the state command
type Journal interface {
	Recent(limit int) ([]*ledger.Entry, error)
}

// PairFunc runs the bridge pairing flow
type PairFunc func(ctx context.Context) (gateway.Credentials, error)

// Deps are the collaborators of a Runner. Journal, Publisher and Clock are optional.
type Deps struct {
	Store     Store
	Effects   config.EffectsConfig
	Rand      effects.Rand
	Pair      PairFunc
	Journal   Journal
	Publisher eventbus.Publisher
	Clock     scheduler.Clock
	Out       io.Writer

	RecentLimit int
}

// Runner executes one command request
type Runner struct {
	deps Deps
}

// NewRunner creates a runner
func NewRunner(deps Deps) *Runner {
	if deps.Clock == nil {
		deps.Clock = scheduler.SystemClock
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.RecentLimit <= 0 {
		deps.RecentLimit = 10
	}
	return &Runner{deps: deps}
}

// Run executes the request. Repeated commands block until their deadline, a
// failing tick, or ctx cancellation; cancellation is a normal way to stop them.
func (r *Runner) Run(ctx context.Context, req Request) error {
	if req.Command == Register {
		return r.register(ctx)
	}

	if len(req.Lights) == 0 {
		req.Lights = r.deps.Store.Names()
	}

	if req.Wait > 0 {
		log.Info().Dur("wait", req.Wait).Msg("Waiting before start")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(req.Wait):
		}
	}

	if req.Command == State || req.HasOption(OptionState) {
		r.printState()
	}

	if req.Command.Repeated() {
		return r.repeat(ctx, req)
	}
	return r.once(ctx, req)
}

func (r *Runner) once(ctx context.Context, req Request) error {
	s := r.deps.Store
	fx := r.deps.Effects

	switch req.Command {
	case Off:
		return effects.TurnOff(ctx, s, req.Lights)
	case On:
		return effects.TurnOn(ctx, s, req.Lights, req.Transition)
	case Dim:
		factor := fx.Dim.Factor
		if req.Params.Factor != nil {
			factor = *req.Params.Factor
		}
		return effects.Dim(ctx, s, req.Lights, req.Transition, factor)
	case RandomCol:
		_, err := effects.TurnOnRandom(ctx, s, r.deps.Rand, req.Lights, req.Transition, effects.RandomOptions{
			Hue:      rangeOr(req.Params.HueRange, fx.Random.HueRange),
			Sat:      rangeOr(req.Params.SatRange, fx.Random.SatRange),
			Bri:      rangeOr(req.Params.BriRange, fx.Random.BriRange),
			IgnoreOn: req.HasOption(OptionIgnoreOn) || req.Params.IgnoreOn,
		})
		return err
	case BlinkAlert:
		return effects.BlinkAlert(ctx, s, effects.Alert{
			Hue:  alertHue(fx.Alert),
			Hold: fx.Alert.Hold.Duration(),
		})
	case State:
		return nil
	case Register, Breathe, Slide, Swap, RandomHue:
		return fmt.Errorf("command %s is not a one-shot command", req.Command)
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, req.Command)
}

func alertHue(a config.AlertConfig) int {
	if a.Hue == nil {
		return effects.DefaultAlertHue
	}
	return *a.Hue
}

// tick returns the effect applied on every tick of a repeated command
func (r *Runner) tick(req Request) (scheduler.Action, error) {
	s := r.deps.Store
	fx := r.deps.Effects

	switch req.Command {
	case Breathe:
		bri := rangeOr(req.Params.BriRange, fx.Breathe.BriRange)
		if err := bri.Validate("brightness", effects.LevelBounds.Low(), effects.LevelBounds.High()); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return effects.Breathe(ctx, s, req.Lights, req.Transition, bri)
		}, nil
	case Slide:
		speed := fx.Slide.Speed
		if req.Params.Speed != nil {
			speed = *req.Params.Speed
		}
		return func(ctx context.Context) error {
			return effects.HueSlide(ctx, s, req.Lights, req.Transition, speed)
		}, nil
	case Swap:
		if len(req.Lights) != 2 {
			return nil, fmt.Errorf("swap needs exactly two lights, got %d", len(req.Lights))
		}
		return func(ctx context.Context) error {
			return effects.Swap(ctx, s, req.Lights, req.Transition)
		}, nil
	case RandomHue:
		hue := rangeOr(req.Params.HueRange, fx.Random.HueRange)
		if err := hue.Validate("hue", effects.HueBounds.Low(), effects.HueBounds.High()); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			for _, name := range req.Lights {
				if err := effects.RandomHue(ctx, s, r.deps.Rand, name, req.Transition, hue); err != nil {
					return err
				}
			}
			return nil
		}, nil
	case Off, On, RandomCol, Register, BlinkAlert, State, Dim:
		return nil, fmt.Errorf("command %s is not a repeated command", req.Command)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, req.Command)
}

func (r *Runner) repeat(ctx context.Context, req Request) error {
	action, err := r.tick(req)
	if err != nil {
		return err
	}

	var rep *scheduler.Repeater
	publishing := func(ctx context.Context) error {
		r.publish(eventbus.EventTypeTick, map[string]interface{}{
			"run_id":   rep.ID(),
			"repeater": rep.Name(),
			"tick":     rep.Ticks(),
		})
		return action(ctx)
	}

	deadline := scheduler.DeadlineFor(r.deps.Clock, req.Duration)
	rep, err = scheduler.NewRepeater(req.Command.String(), req.Interval(), deadline, publishing,
		scheduler.WithClock(r.deps.Clock),
		scheduler.WithMessage(req.Command.String()+" "+strings.Join(req.Lights, ", ")),
	)
	if err != nil {
		return err
	}

	log.Info().
		Str("command", req.Command.String()).
		Strs("lights", req.Lights).
		Dur("interval", req.Interval()).
		Str("deadline", rep.Deadline().String()).
		Msg("Starting repeated effect")

	rep.Start(ctx)
	err = rep.Wait()

	data := map[string]interface{}{
		"run_id":   rep.ID(),
		"repeater": rep.Name(),
		"ticks":    rep.Ticks(),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	r.publish(eventbus.EventTypeChainStopped, data)

	if err != nil && errors.Is(err, ctx.Err()) {
		log.Info().Str("command", req.Command.String()).Msg("Repeated effect stopped")
		return nil
	}
	return err
}

func (r *Runner) register(ctx context.Context) error {
	if r.deps.Pair == nil {
		return errors.New("pairing is not available")
	}
	creds, err := r.deps.Pair(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.deps.Out, "address:  %s\nusername: %s\n", creds.Address, creds.Username)
	return nil
}

func (r *Runner) printState() {
	fmt.Fprintln(r.deps.Out, "Start state:")
	fmt.Fprintln(r.deps.Out, r.deps.Store.RenderTable())

	if r.deps.Journal == nil {
		return
	}
	entries, err := r.deps.Journal.Recent(r.deps.RecentLimit)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read recent activity")
		return
	}
	if len(entries) == 0 {
		return
	}

	fmt.Fprintln(r.deps.Out, "Recent activity:")
	for _, e := range entries {
		line := fmt.Sprintf("  %s %-13s", e.Timestamp.Local().Format(time.DateTime), e.EventType)
		if e.Light != "" {
			line += " " + e.Light
		}
		if cmd, ok := e.Payload["command"].(string); ok {
			line += " " + cmd
		}
		fmt.Fprintln(r.deps.Out, line)
	}
	fmt.Fprintln(r.deps.Out)
}

func (r *Runner) publish(t eventbus.EventType, data map[string]interface{}) {
	if r.deps.Publisher == nil {
		return
	}
	r.deps.Publisher.Publish(eventbus.Event{Type: t, Data: data})
}
