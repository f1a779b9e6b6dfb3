// Meri - voice-driven OS assistant on Gemini Live
// Streams the microphone to the agent, plays its audio reply gaplessly and
// runs the desktop tools it calls.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-meri/internal/config"
	"github.com/teslashibe/go-meri/internal/log"
	"github.com/teslashibe/go-meri/pkg/audioio"
	"github.com/teslashibe/go-meri/pkg/meri"
)

func main() {
	if err := run(); err != nil {
		log.Error("meri exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	env := config.Load()
	cfg := parseFlags(meri.FromEnv(env))

	level := env.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	log.Init(log.Options{
		Level:      level,
		File:       env.LogFile,
		MaxSizeMB:  env.LogMaxSizeMB,
		MaxBackups: env.LogMaxBackups,
	})

	app, err := meri.New(cfg, meri.WithLogger(log.L()))
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer app.Shutdown()

	log.Info("meri is listening", "dashboard", "http://localhost"+cfg.Addr)
	if err := app.Run(ctx); err != nil {
		return fmt.Errorf("runtime error: %w", err)
	}
	return nil
}

// parseFlags applies command line flags over the environment config.
func parseFlags(cfg meri.Config) meri.Config {
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	transport := flag.String("transport", cfg.Transport, "Agent transport: gemini (websocket) or genai (SDK)")
	audio := flag.String("audio", string(cfg.Audio), fmt.Sprintf("Audio backend, one of %v", audioio.AvailableBackends()))
	port := flag.String("port", "", "Dashboard port (overrides PORT env var)")
	voice := flag.String("voice", cfg.Voice, "Prebuilt voice name")
	noStart := flag.Bool("no-start", false, "Wait for POST /api/session instead of opening a session at start")
	flag.Parse()

	cfg.Debug = *debug
	cfg.Transport = *transport
	cfg.Audio = audioio.Backend(*audio)
	cfg.Voice = *voice
	cfg.AutoStart = !*noStart
	if *port != "" {
		cfg.Addr = ":" + *port
	}
	return cfg
}
