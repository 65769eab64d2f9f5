package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dokzlo13/lightfx/internal/commands"
	"github.com/dokzlo13/lightfx/internal/config"
)

// App is the main application container that manages all services and their lifecycle.
type App struct {
	cfg      *config.Config
	services *Services
}

// New creates a new App instance with all services initialized but not started.
func New(cfg *config.Config, opts Options) (*App, error) {
	services, err := NewServices(cfg, opts)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Services returns the service container
func (a *App) Services() *Services {
	return a.services
}

// Run seeds the light store and executes one command. Journal cleanup runs
// alongside the command and stops with it.
func (a *App) Run(ctx context.Context, req commands.Request) error {
	if err := a.services.Start(ctx, req.Command); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.services.Journal.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return a.services.Runner.Run(gctx, req)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Debug().Str("command", req.Command.String()).Msg("Command finished")
	return nil
}

// Close gracefully shuts down all services.
func (a *App) Close() {
	if a.services != nil {
		a.services.Close()
	}
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
