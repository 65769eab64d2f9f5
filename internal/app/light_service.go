package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfx/internal/config"
	"github.com/dokzlo13/lightfx/internal/eventbus"
	"github.com/dokzlo13/lightfx/internal/gateway"
	"github.com/dokzlo13/lightfx/internal/lights"
)

// DefaultDryRunLights are the lights of the in-memory gateway when none are named
var DefaultDryRunLights = []string{"Light 1", "Light 2", "Light 3"}

// LightService wraps the gateway and the light store seeded from it.
type LightService struct {
	cfg    *config.Config
	bridge config.BridgeConfig
	dryRun bool

	Gateway gateway.Client
	Store   *lights.Store
}

// NewLightService creates the gateway for the resolved bridge and an empty store.
func NewLightService(cfg *config.Config, opts Options, bus eventbus.Publisher) (*LightService, error) {
	bridge, err := cfg.ResolveBridge(opts.BridgeName, opts.Address, opts.Username)
	if err != nil {
		return nil, err
	}

	var gw gateway.Client
	if opts.DryRun {
		names := opts.DryRunLights
		if len(names) == 0 {
			names = DefaultDryRunLights
		}
		mem := gateway.NewMemory()
		for _, name := range names {
			mem.AddLight(name, gateway.Reading{})
		}
		gw = mem
		log.Warn().Strs("lights", names).Msg("Dry run: commands go to an in-memory gateway")
	} else {
		gw = gateway.NewHue(gateway.HueConfig{
			Address:      bridge.Address,
			Username:     bridge.Username,
			Timeout:      cfg.Gateway.Timeout.Duration(),
			RateLimitRPS: cfg.Gateway.RateLimitRPS,
			NameCacheTTL: cfg.Gateway.NameCacheTTL.Duration(),
		})
	}

	return &LightService{
		cfg:     cfg,
		bridge:  bridge,
		dryRun:  opts.DryRun,
		Gateway: gw,
		Store:   lights.NewStore(gw, lights.WithPublisher(bus)),
	}, nil
}

// Start seeds the store with the lights and state of the bridge.
func (s *LightService) Start(ctx context.Context) error {
	if !s.dryRun && (s.bridge.Address == "" || s.bridge.Username == "") {
		return errors.New("bridge address and username are required: configure a bridge, pass -i/-u, or run register")
	}

	names, err := s.Store.PullLightNames(ctx)
	if err != nil {
		return err
	}
	if _, err := s.Store.PullState(ctx); err != nil {
		return err
	}

	log.Info().
		Str("bridge", s.bridge.Address).
		Int("lights", len(names)).
		Msg("Connected to bridge")
	return nil
}

// Pair registers this application with the bridge (the register command).
func (s *LightService) Pair(ctx context.Context) (gateway.Credentials, error) {
	if s.dryRun {
		return gateway.Credentials{}, fmt.Errorf("register is not available in dry run")
	}
	return gateway.Pair(ctx, s.bridge.Address, s.cfg.Gateway.AppName,
		s.cfg.Gateway.PairAttempts, s.cfg.Gateway.PairInterval.Duration())
}
