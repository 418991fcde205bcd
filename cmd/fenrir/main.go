// Command fenrir runs the core trading-data plane: it loads
// configuration, wires the write-ahead log, aggregator, risk gate,
// matching engine, market-event dispatcher and order lifecycle manager
// together, and serves the TCP order-entry gateway until interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fenrir/internal/aggregate"
	"fenrir/internal/bus"
	"fenrir/internal/config"
	"fenrir/internal/coreerr"
	"fenrir/internal/fxpt"
	"fenrir/internal/ingress"
	"fenrir/internal/lifecycle"
	"fenrir/internal/match"
	"fenrir/internal/model"
	fenrirNet "fenrir/internal/net"
	"fenrir/internal/risk"
	"fenrir/internal/wal"
)

// logOnlySnapshotRequester satisfies ingress.SnapshotRequester until a
// real venue adapter is wired in; a sequence gap is logged rather than
// silently dropped, per spec.md §6.
type logOnlySnapshotRequester struct{}

func (logOnlySnapshotRequester) RequestSnapshot(symbol fxpt.Symbol) {
	log.Warn().Uint32("symbol", uint32(symbol)).Msg("snapshot requested; no market-data adapter wired")
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	address := flag.String("address", "0.0.0.0", "gateway listen address")
	port := flag.Int("port", 9090, "gateway listen port")
	flag.Parse()

	configureLogging()

	cfg, err := config.Load(*configPath)
	if err != nil {
		exitWith(coreerr.ExitConfigError, "unable to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		exitWith(coreerr.ExitConfigError, "invalid config", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	marketWAL, err := wal.Open(ctx, cfg.WAL.WAL())
	if err != nil {
		exitWith(coreerr.ExitFatalRuntime, "unable to open market WAL", err)
	}
	defer marketWAL.Close()

	auditCfg := cfg.WAL.WAL()
	auditCfg.Dir = filepath.Join(cfg.WAL.Dir, "audit")
	auditWAL, err := wal.Open(ctx, auditCfg)
	if err != nil {
		exitWith(coreerr.ExitFatalRuntime, "unable to open audit WAL", err)
	}
	defer auditWAL.Close()

	candles := bus.NewTopic[model.Candle](cfg.Bus.CapacityPerTopic)
	fills := bus.NewTopic[model.Fill](cfg.Bus.CapacityPerTopic)
	riskEvents := bus.NewTopic[risk.Event](cfg.Bus.CapacityPerTopic)
	trades := bus.NewTopic[model.Trade](cfg.Bus.CapacityPerTopic)

	aggregator := aggregate.New(cfg.Aggregator.Aggregator(), marketWAL, candles)

	gate := risk.NewGate(cfg.Risk.Limits(), riskEvents)
	matcher := match.New()

	manager := lifecycle.New(lifecycle.Config{
		BookConfig:        cfg.Book.Book(),
		IdempotencyWindow: cfg.Lifecycle.IdempotencyWindow,
	}, gate, matcher, auditWAL, fills)

	dispatcher := ingress.NewDispatcher(manager, aggregator, logOnlySnapshotRequester{}, ingress.Topics{
		Trades: trades,
	})
	marketEvents := make(chan ingress.MarketEvent, 1024)
	go func() {
		if err := dispatcher.Run(ctx, marketEvents); err != nil {
			log.Error().Err(err).Msg("market event dispatcher exited")
		}
	}()

	gateway := fenrirNet.New(*address, *port, manager, fills)

	log.Info().Str("address", *address).Int("port", *port).Msg("starting fenrir gateway")
	gateway.Run(ctx)
	log.Info().Msg("fenrir gateway stopped")
}

func configureLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(os.Stderr)
}

// exitWith logs a fatal startup error and exits with the matching
// coreerr.ExitCode, per spec.md §6's enumerated exit codes for CLIs
// embedding the core.
func exitWith(code coreerr.ExitCode, msg string, err error) {
	log.Error().Err(err).Msg(msg)
	os.Exit(int(code))
}
