package main

import (
	"context"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hailam/kestrel/internal/config"
	"github.com/hailam/kestrel/internal/engine"
	"github.com/hailam/kestrel/internal/storage"
	"github.com/hailam/kestrel/internal/uci"
)

var GitVersion string

func main() {
	cfg := &config.Config{}
	if err := cfg.Load(os.Args[1:]); err != nil {
		// stdout belongs to the protocol.
		os.Stderr.WriteString("kestrel: " + err.Error() + "\n")
		os.Exit(2)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	log.Debug().Str("version", GitVersion).Str("config", cfg.ConfigFile).
		Int("hash", cfg.Hash).Int("threads", cfg.Threads).Msg("starting")

	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("could-not-create-cpu-profile")
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("could-not-start-cpu-profile")
		}
		defer pprof.StopCPUProfile()
	}

	eng := engine.NewEngine(cfg.EngineOptions())
	protocol := uci.New(eng, os.Stdout)

	store, err := storage.Open(cfg.AnalysisDir)
	if err != nil {
		log.Warn().Err(err).Msg("analysis-store-disabled")
	} else {
		defer store.Close()
		protocol.SetAnalysisStore(store, cfg.UseAnalysis)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := protocol.Run(ctx, os.Stdin); err != nil {
		log.Error().Err(err).Msg("uci-loop")
	}
	log.Debug().Msg("bye")
}
