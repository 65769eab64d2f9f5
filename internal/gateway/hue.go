package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/amimof/huego"
	"github.com/bluele/gcache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// HueConfig configures the Hue bridge gateway
type HueConfig struct {
	Address      string
	Username     string
	Timeout      time.Duration // Per-request timeout
	RateLimitRPS float64       // Max SetLight calls per second
	NameCacheTTL time.Duration // Lifetime of a cached name -> id lookup
}

// Bridge API error types the gateway reacts to
const (
	apiErrLinkButton = 101 // link button not pressed
	apiErrDeviceOff  = 201 // parameter not modifiable, device is off
)

// Hue is a Client backed by a Philips Hue bridge (v1 API).
// Lights are listed through huego; state changes are sent as raw JSON so
// zero values reach the bridge. Names are resolved to bridge ids through a
// small expiring cache that is refilled from the light list on a miss.
type Hue struct {
	bridge  *huego.Bridge
	client  *http.Client
	apiURL  string // http://<address>/api/<username>
	timeout time.Duration
	limiter *rate.Limiter
	ids     gcache.Cache
	sf      singleflight.Group
}

var _ Client = (*Hue)(nil)

// NewHue creates a gateway for the bridge at cfg.Address
func NewHue(cfg HueConfig) *Hue {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 10.0
	}
	if cfg.NameCacheTTL == 0 {
		cfg.NameCacheTTL = 5 * time.Minute
	}

	burst := int(cfg.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	address := strings.TrimRight(cfg.Address, "/")
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}

	return &Hue{
		bridge:  huego.New(cfg.Address, cfg.Username),
		client:  &http.Client{Timeout: cfg.Timeout},
		apiURL:  fmt.Sprintf("%s/api/%s", address, cfg.Username),
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst),
		ids:     gcache.New(256).
			LRU().
			Expiration(cfg.NameCacheTTL).
			Build(),
	}
}

// LightNames returns light names ordered by bridge id
func (h *Hue) LightNames(ctx context.Context) ([]string, error) {
	lights, err := h.lights(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(lights))
	for _, l := range lights {
		names = append(names, l.Name)
	}
	return names, nil
}

// Snapshot returns the on/hue/sat/bri state of every light
func (h *Hue) Snapshot(ctx context.Context) (map[string]Reading, error) {
	lights, err := h.lights(ctx)
	if err != nil {
		return nil, err
	}

	readings := make(map[string]Reading, len(lights))
	for _, l := range lights {
		var r Reading
		if l.State != nil {
			r = Reading{
				On:  l.State.On,
				Hue: l.State.Hue,
				Sat: l.State.Sat,
				Bri: l.State.Bri,
			}
		}
		readings[l.Name] = r
	}
	return readings, nil
}

// SetLight sends a command to the light with the given name.
// Every set field is sent, including zero values.
func (h *Hue) SetLight(ctx context.Context, name string, cmd Command) error {
	id, err := h.resolveID(ctx, name)
	if err != nil {
		return err
	}

	// Wait for rate limiter
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}

	log.Debug().
		Str("light", name).
		Int("id", id).
		Stringer("command", cmd).
		Msg("Setting light state")

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.putState(ctx, id, cmd); err != nil {
		return fmt.Errorf("%w: set light %q: %w", ErrUnavailable, name, err)
	}
	return nil
}

// putState PUTs cmd to the light's state resource and checks every result entry
func (h *Hue) putState(ctx context.Context, id int, cmd Command) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/lights/%d/state", h.apiURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, data)
	}

	var results []huego.APIResponse
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	for _, r := range results {
		if r.Error == nil {
			continue
		}
		// Color attributes sent along with on=false are rejected but harmless
		if r.Error.Type == apiErrDeviceOff {
			log.Debug().Int("id", id).Str("address", r.Error.Address).Msg("Attribute ignored while light is off")
			continue
		}
		return r.Error
	}
	return nil
}

// lights fetches the light list; concurrent callers share one request
func (h *Hue) lights(ctx context.Context) ([]huego.Light, error) {
	v, err, _ := h.sf.Do("lights", func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()

		lights, err := h.bridge.GetLightsContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list lights: %w", ErrUnavailable, err)
		}

		sort.Slice(lights, func(i, j int) bool {
			return lights[i].ID < lights[j].ID
		})

		for _, l := range lights {
			if err := h.ids.Set(l.Name, l.ID); err != nil {
				log.Warn().Err(err).Str("light", l.Name).Msg("Failed to cache light id")
			}
		}

		log.Debug().Int("lights", len(lights)).Msg("Fetched lights from bridge")
		return lights, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]huego.Light), nil
}

// resolveID returns the bridge id of a light, listing the lights on a cache miss
func (h *Hue) resolveID(ctx context.Context, name string) (int, error) {
	if v, err := h.ids.GetIFPresent(name); err == nil {
		return v.(int), nil
	} else if !errors.Is(err, gcache.KeyNotFoundError) {
		return 0, err
	}

	lights, err := h.lights(ctx)
	if err != nil {
		return 0, err
	}
	for _, l := range lights {
		if l.Name == name {
			return l.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLight, name)
}
