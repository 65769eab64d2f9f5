package app

import (
	"context"
	"io"
	"math/rand"
	"os"

	"github.com/dokzlo13/lightfx/internal/commands"
	"github.com/dokzlo13/lightfx/internal/config"
	"github.com/dokzlo13/lightfx/internal/db"
	"github.com/dokzlo13/lightfx/internal/eventbus"
	"github.com/dokzlo13/lightfx/internal/ledger"
)

// Options are the per-run settings given on the command line
type Options struct {
	BridgeName string // Registry entry; the configured default when empty
	Address    string // Overrides the registry address
	Username   string // Overrides the registry username

	DryRun       bool     // Drive an in-memory gateway instead of the bridge
	DryRunLights []string // Lights of the in-memory gateway

	Out io.Writer // Where state tables and credentials are printed
}

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// High-level services
	Journal *JournalService
	Lights  *LightService
	Runner  *commands.Runner
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, opts Options) (*Services, error) {
	s := &Services{cfg: cfg}

	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize ledger
	s.Ledger = ledger.New(database.DB)

	// Initialize event bus
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Journal records bus traffic into the ledger
	s.Journal = NewJournalService(cfg, s.Ledger, s.Bus)

	// Initialize gateway and light store
	s.Lights, err = NewLightService(cfg, opts, s.Bus)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Runner = commands.NewRunner(commands.Deps{
		Store:       s.Lights.Store,
		Effects:     cfg.Effects,
		Rand:        globalRand{},
		Pair:        s.Lights.Pair,
		Journal:     s.Ledger,
		Publisher:   s.Bus,
		Out:         opts.Out,
		RecentLimit: cfg.Journal.RecentLimit,
	})

	return s, nil
}

// Start prepares the services a command needs. Register needs no light state.
func (s *Services) Start(ctx context.Context, cmd commands.Command) error {
	s.Journal.Start()

	if !cmd.NeedsLights() {
		return nil
	}
	return s.Lights.Start(ctx)
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		s.Bus.Close(ctx)
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

// globalRand draws from the auto-seeded math/rand global source
type globalRand struct{}

func (globalRand) IntN(n int) int {
	return rand.Intn(n)
}
