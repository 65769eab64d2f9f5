package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sanity-io/litter"

	"github.com/dokzlo13/lightfx/internal/app"
	"github.com/dokzlo13/lightfx/internal/commands"
	"github.com/dokzlo13/lightfx/internal/config"
)

// listFlag collects a repeatable, comma-separated flag
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

func main() {
	fs := flag.NewFlagSet("lightfx", flag.ExitOnError)

	// Support both -c and --config for config path
	var configPath string
	fs.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")

	var lightNames, options listFlag
	fs.Var(&lightNames, "l", "Target light (repeatable or comma-separated; default: all lights)")
	fs.Var(&options, "o", "Option flag: state, ignore_on (repeatable or comma-separated)")
	transition := fs.Float64("t", 1, "Transition time in seconds")
	duration := fs.Int("d", 0, "Duration in minutes for repeated commands (default: until interrupted)")
	wait := fs.Int("w", 0, "Wait time before starting in seconds")
	jsonParams := fs.String("j", "", "JSON parameters for tuning commands, e.g. \"{'bri_range':[120,200],'interval':15}\"")
	address := fs.String("i", "", "Bridge address (overrides the registry)")
	username := fs.String("u", "", "Bridge username (overrides the registry)")
	bridgeName := fs.String("b", "", "Bridge registry entry (default: the configured bridge)")
	dryRun := fs.Bool("dry-run", false, "Send commands to an in-memory gateway instead of the bridge")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: lightfx <command> [flags] [light...]\n\nCommands: %s\n\nFlags:\n",
			strings.Join(commands.Names(), ", "))
		fs.PrintDefaults()
	}

	// The command comes first so flags can follow it
	args := os.Args[1:]
	var cmdName string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmdName, args = args[0], args[1:]
	}
	_ = fs.Parse(args)

	// Trailing arguments are more lights: "lightfx off -l Piano Couch"
	lightNames = append(lightNames, fs.Args()...)

	// Load configuration
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logging
	setupLogging(cfg.Log.GetLevel(), cfg.Log.UseJSON, cfg.Log.Colors)

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		log.Debug().Msg("Effects configuration:\n" + litter.Sdump(cfg.Effects))
	}

	if cmdName == "" {
		log.Info().Msg("No command given, nothing to do")
		fs.Usage()
		return
	}

	cmd, err := commands.Parse(cmdName)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid command")
	}
	params, err := commands.ParseParams(*jsonParams)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid JSON parameters")
	}

	req := commands.Request{
		Command:    cmd,
		Lights:     lightNames,
		Transition: time.Duration(*transition * float64(time.Second)),
		Duration:   *duration,
		Wait:       time.Duration(*wait) * time.Second,
		Options:    options,
		Params:     params,
	}

	log.Info().
		Str("config", configPath).
		Str("command", cmd.String()).
		Strs("lights", req.Lights).
		Msg("Starting lightfx")

	// Create application
	application, err := app.New(cfg, app.Options{
		BridgeName:   *bridgeName,
		Address:      *address,
		Username:     *username,
		DryRun:       *dryRun,
		DryRunLights: lightNames,
		Out:          os.Stdout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	err = application.Run(ctx, req)
	application.Close()
	if err != nil {
		log.Error().Err(err).Str("command", cmd.String()).Msg("Command failed")
		os.Exit(1)
	}
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		// JSON output for production
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		// Text output (with optional colors)
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
