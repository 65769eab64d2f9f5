package commands

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dokzlo13/lightfx/internal/config"
	"github.com/dokzlo13/lightfx/internal/eventbus"
	"github.com/dokzlo13/lightfx/internal/gateway"
	"github.com/dokzlo13/lightfx/internal/ledger"
	"github.com/dokzlo13/lightfx/internal/lights"
	"github.com/dokzlo13/lightfx/internal/scheduler"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	m.Run()
}

func TestParse(t *testing.T) {
	for _, name := range Names() {
		c, err := Parse(name)
		if err != nil {
			t.Errorf("Parse(%q): %v", name, err)
			continue
		}
		if c.String() != name {
			t.Errorf("Parse(%q).String() = %q", name, c.String())
		}
	}

	if _, err := Parse("default"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Parse(default) = %v, want ErrUnknownCommand", err)
	}
	if len(Names()) != 11 {
		t.Errorf("Names() = %v", Names())
	}
}

func TestCommand_Repeated(t *testing.T) {
	repeated := map[Command]bool{Breathe: true, Slide: true, Swap: true, RandomHue: true}
	for c := range commandNames {
		if c.Repeated() != repeated[c] {
			t.Errorf("%s.Repeated() = %v", c, c.Repeated())
		}
	}
	if Register.NeedsLights() || !Off.NeedsLights() {
		t.Error("only register runs without the light store")
	}
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, p Params)
	}{
		{
			name: "empty",
			raw:  "  ",
			check: func(t *testing.T, p Params) {
				if p.BriRange != nil || p.Speed != nil || p.IgnoreOn {
					t.Errorf("params = %+v, want zero", p)
				}
			},
		},
		{
			name: "single quotes",
			raw:  "{'bri_range':[120,200], 'interval':15}",
			check: func(t *testing.T, p Params) {
				if len(p.BriRange) != 2 || p.BriRange[0] != 120 || p.BriRange[1] != 200 {
					t.Errorf("bri_range = %v", p.BriRange)
				}
				if p.Interval == nil || *p.Interval != 15 {
					t.Errorf("interval = %v", p.Interval)
				}
			},
		},
		{
			name: "unknown keys ignored",
			raw:  `{"speed": 10000, "colour": "red"}`,
			check: func(t *testing.T, p Params) {
				if p.Speed == nil || *p.Speed != 10000 {
					t.Errorf("speed = %v", p.Speed)
				}
			},
		},
		{
			name: "ignore_on",
			raw:  `{"ignore_on": true, "factor": 0.5}`,
			check: func(t *testing.T, p Params) {
				if !p.IgnoreOn || p.Factor == nil || *p.Factor != 0.5 {
					t.Errorf("params = %+v", p)
				}
			},
		},
		{name: "malformed", raw: "{bri_range:", wantErr: true},
		{name: "short range", raw: `{"hue_range": [1]}`, wantErr: true},
		{name: "zero interval", raw: `{"interval": 0}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseParams(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, lights.ErrInvalidArgument) {
					t.Errorf("ParseParams = %v, want ErrInvalidArgument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseParams: %v", err)
			}
			tt.check(t, p)
		})
	}
}

func TestRequest_Interval(t *testing.T) {
	r := Request{Transition: 2 * time.Second}
	if r.Interval() != 2*time.Second {
		t.Errorf("Interval() = %s, want transition", r.Interval())
	}
	half := 0.5
	r.Params.Interval = &half
	if r.Interval() != 500*time.Millisecond {
		t.Errorf("Interval() = %s, want 500ms", r.Interval())
	}
}

// instantClock fires every timer right away, advancing time by its delay
type instantClock struct {
	mu  sync.Mutex
	now time.Time
}

type noopTimer struct{}

func (noopTimer) Stop() bool { return false }

func (c *instantClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *instantClock) AfterFunc(d time.Duration, f func()) scheduler.Timer {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	go f()
	return noopTimer{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(e eventbus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) count(t eventbus.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type stubRand struct{}

func (stubRand) IntN(n int) int { return n - 1 }

type fixture struct {
	gw     *gateway.Memory
	store  *lights.Store
	pub    *recordingPublisher
	out    *bytes.Buffer
	runner *Runner
}

func newFixture(t *testing.T, readings map[string]gateway.Reading, journal Journal) *fixture {
	t.Helper()

	gw := gateway.NewMemory()
	for _, name := range []string{"Desk", "Lamp"} {
		if r, ok := readings[name]; ok {
			gw.AddLight(name, r)
		}
	}
	store := lights.NewStore(gw)
	ctx := context.Background()
	if _, err := store.PullLightNames(ctx); err != nil {
		t.Fatalf("PullLightNames: %v", err)
	}
	if _, err := store.PullState(ctx); err != nil {
		t.Fatalf("PullState: %v", err)
	}

	f := &fixture{gw: gw, store: store, pub: &recordingPublisher{}, out: &bytes.Buffer{}}
	f.runner = NewRunner(Deps{
		Store:     store,
		Effects:   config.Default().Effects,
		Rand:      stubRand{},
		Journal:   journal,
		Publisher: f.pub,
		Clock:     &instantClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		Out:       f.out,
		Pair: func(context.Context) (gateway.Credentials, error) {
			return gateway.Credentials{Address: "10.0.0.2", Username: "secret"}, nil
		},
	})
	return f
}

func TestRunner_OneShot(t *testing.T) {
	both := map[string]gateway.Reading{
		"Desk": {On: true, Bri: 200},
		"Lamp": {On: false, Bri: 100},
	}

	tests := []struct {
		name  string
		req   Request
		check func(t *testing.T, f *fixture)
	}{
		{
			name: "off defaults to all lights",
			req:  Request{Command: Off},
			check: func(t *testing.T, f *fixture) {
				calls := f.gw.Calls()
				if len(calls) != 1 || calls[0].Name != "Desk" {
					t.Errorf("calls = %+v, want only Desk (Lamp already off)", calls)
				}
			},
		},
		{
			name: "on with transition",
			req:  Request{Command: On, Lights: []string{"Lamp"}, Transition: 3 * time.Second},
			check: func(t *testing.T, f *fixture) {
				calls := f.gw.Calls()
				if len(calls) != 1 || *calls[0].Command.TransitionTime != 30 {
					t.Errorf("calls = %+v", calls)
				}
			},
		},
		{
			name: "dim uses configured factor",
			req:  Request{Command: Dim, Lights: []string{"Desk"}, Transition: time.Second},
			check: func(t *testing.T, f *fixture) {
				if r, _ := f.gw.Reading("Desk"); r.Bri != 160 {
					t.Errorf("bri = %d, want 160", r.Bri)
				}
			},
		},
		{
			name: "dim factor from params",
			req:  Request{Command: Dim, Lights: []string{"Desk"}, Params: Params{Factor: lights.Ptr(0.5)}},
			check: func(t *testing.T, f *fixture) {
				if r, _ := f.gw.Reading("Desk"); r.Bri != 100 {
					t.Errorf("bri = %d, want 100", r.Bri)
				}
			},
		},
		{
			name: "random_col skips lights already on",
			req:  Request{Command: RandomCol, Transition: time.Second},
			check: func(t *testing.T, f *fixture) {
				calls := f.gw.Calls()
				if len(calls) != 1 || calls[0].Name != "Lamp" {
					t.Fatalf("calls = %+v, want only Lamp", calls)
				}
				if r, _ := f.gw.Reading("Lamp"); !r.On || r.Bri != 254 || r.Sat != 240 {
					t.Errorf("Lamp = %+v", r)
				}
			},
		},
		{
			name: "random_col ignore_on option",
			req:  Request{Command: RandomCol, Options: []string{OptionIgnoreOn}},
			check: func(t *testing.T, f *fixture) {
				if n := len(f.gw.Calls()); n != 2 {
					t.Errorf("calls = %d, want 2", n)
				}
			},
		},
		{
			name: "blink_alert restores",
			req:  Request{Command: BlinkAlert},
			check: func(t *testing.T, f *fixture) {
				if n := len(f.gw.Calls()); n != 4 {
					t.Errorf("calls = %d, want 4", n)
				}
				if r, _ := f.gw.Reading("Desk"); r.Bri != 200 {
					t.Errorf("Desk bri after alert = %d, want 200", r.Bri)
				}
			},
		},
		{
			name: "state prints the table only",
			req:  Request{Command: State},
			check: func(t *testing.T, f *fixture) {
				if len(f.gw.Calls()) != 0 {
					t.Error("state must not send commands")
				}
				if !strings.Contains(f.out.String(), "Start state:") || !strings.Contains(f.out.String(), "Desk") {
					t.Errorf("output = %q", f.out.String())
				}
			},
		},
		{
			name: "state option before a command",
			req:  Request{Command: Off, Options: []string{OptionState}},
			check: func(t *testing.T, f *fixture) {
				if !strings.Contains(f.out.String(), "Start state:") {
					t.Error("state option should print the table")
				}
			},
		},
		{
			name: "register prints credentials",
			req:  Request{Command: Register},
			check: func(t *testing.T, f *fixture) {
				if !strings.Contains(f.out.String(), "10.0.0.2") || !strings.Contains(f.out.String(), "secret") {
					t.Errorf("output = %q", f.out.String())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, both, nil)
			if err := f.runner.Run(context.Background(), tt.req); err != nil {
				t.Fatalf("Run: %v", err)
			}
			tt.check(t, f)
		})
	}
}

func TestRunner_UnknownLight(t *testing.T) {
	f := newFixture(t, map[string]gateway.Reading{"Desk": {}}, nil)

	err := f.runner.Run(context.Background(), Request{Command: On, Lights: []string{"Garage"}})
	if !errors.Is(err, lights.ErrUnknownLight) {
		t.Errorf("Run = %v, want ErrUnknownLight", err)
	}
}

func TestRunner_BlinkAlertConfiguredRed(t *testing.T) {
	f := newFixture(t, map[string]gateway.Reading{"Desk": {On: true, Hue: 9000, Bri: 200}}, nil)
	f.runner.deps.Effects.Alert.Hue = lights.Ptr(0)

	if err := f.runner.Run(context.Background(), Request{Command: BlinkAlert}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := f.gw.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if hue := calls[0].Command.Hue; hue == nil || *hue != 0 {
		t.Errorf("alert hue = %v, want 0", hue)
	}
	if r, _ := f.gw.Reading("Desk"); r.Hue != 9000 {
		t.Errorf("Desk hue after alert = %d, want 9000", r.Hue)
	}
}

func TestRunner_BreatheUntilDeadline(t *testing.T) {
	f := newFixture(t, map[string]gateway.Reading{"Desk": {On: true, Bri: 255}}, nil)

	req := Request{
		Command:    Breathe,
		Transition: 10 * time.Second,
		Duration:   1,
		Params:     Params{BriRange: []int{180, 255}},
	}
	if err := f.runner.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Ticks at 0s, 10s, ... 50s fit before the one minute deadline
	calls := f.gw.Calls()
	if len(calls) != 6 {
		t.Fatalf("calls = %d, want 6", len(calls))
	}
	for i, c := range calls {
		want := uint8(180)
		if i%2 == 1 {
			want = lights.MaxWireLevel
		}
		if *c.Command.Bri != want {
			t.Errorf("tick %d: bri = %d, want %d", i, *c.Command.Bri, want)
		}
	}

	if n := f.pub.count(eventbus.EventTypeTick); n != 6 {
		t.Errorf("tick events = %d, want 6", n)
	}
	if n := f.pub.count(eventbus.EventTypeChainStopped); n != 1 {
		t.Errorf("chain_stopped events = %d, want 1", n)
	}
}

func TestRunner_SlideWithInterval(t *testing.T) {
	f := newFixture(t, map[string]gateway.Reading{"Desk": {On: true, Hue: 65000}}, nil)

	req := Request{
		Command:    Slide,
		Transition: time.Second,
		Duration:   1,
		Params:     Params{Speed: lights.Ptr(1000), Interval: lights.Ptr(30.0)},
	}
	if err := f.runner.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := f.gw.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2 (at 0s and 30s)", len(calls))
	}
	if *calls[0].Command.Hue != 464 || *calls[1].Command.Hue != 1464 {
		t.Errorf("hues = %d, %d, want 464, 1464", *calls[0].Command.Hue, *calls[1].Command.Hue)
	}
}

func TestRunner_RepeatedValidation(t *testing.T) {
	f := newFixture(t, map[string]gateway.Reading{"Desk": {}, "Lamp": {}}, nil)
	ctx := context.Background()

	if err := f.runner.Run(ctx, Request{Command: Swap, Lights: []string{"Desk"}, Transition: time.Second}); err == nil {
		t.Error("swap with one light should fail")
	}
	if err := f.runner.Run(ctx, Request{Command: Slide}); !errors.Is(err, scheduler.ErrInvalidInterval) {
		t.Errorf("slide without interval = %v, want ErrInvalidInterval", err)
	}
	err := f.runner.Run(ctx, Request{Command: Breathe, Transition: time.Second, Params: Params{BriRange: []int{200, 100}}})
	if !errors.Is(err, lights.ErrInvalidArgument) {
		t.Errorf("breathe with reversed range = %v, want ErrInvalidArgument", err)
	}
	if len(f.gw.Calls()) != 0 {
		t.Error("invalid requests must not send commands")
	}
}

func TestRunner_CancelStopsRepeatedCommand(t *testing.T) {
	f := newFixture(t, map[string]gateway.Reading{"Desk": {}}, nil)
	f.runner.deps.Clock = scheduler.SystemClock

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.runner.Run(ctx, Request{
			Command:    RandomHue,
			Transition: 5 * time.Millisecond,
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after cancel = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("repeated command did not stop on cancel")
	}
}

type stubJournal struct{}

func (stubJournal) Recent(limit int) ([]*ledger.Entry, error) {
	return []*ledger.Entry{{
		EventType: ledger.EventPush,
		Timestamp: time.Now(),
		Light:     "Desk",
		Payload:   map[string]any{"command": "{on=false}"},
	}}, nil
}

func TestRunner_StateShowsRecentActivity(t *testing.T) {
	f := newFixture(t, map[string]gateway.Reading{"Desk": {}}, stubJournal{})

	if err := f.runner.Run(context.Background(), Request{Command: State}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := f.out.String()
	if !strings.Contains(out, "Recent activity:") || !strings.Contains(out, "{on=false}") {
		t.Errorf("output = %q", out)
	}
}
