package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/lido-go/registry-reconciler/api/keysapi"
	"github.com/lido-go/registry-reconciler/internal/chain"
	"github.com/lido-go/registry-reconciler/internal/config"
	"github.com/lido-go/registry-reconciler/internal/logger"
	"github.com/lido-go/registry-reconciler/internal/metrics"
	"github.com/lido-go/registry-reconciler/internal/registry"
	"github.com/lido-go/registry-reconciler/internal/store"
)

// Version information (injected at build time)
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion = flag.Bool("version", false, "Show version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("registry-indexer version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := initLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting registry reconciler",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.Int("modules", len(cfg.Modules)),
	)

	sqlStore, err := store.Open(store.Config{
		DSN:    cfg.Database.Path,
		Logger: log,
	})
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer func() {
		if err := sqlStore.Close(); err != nil {
			log.Error("failed to close store", zap.Error(err))
		}
	}()

	met := metrics.New("registry", "reconciler")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	readers, loops, err := startModules(cfg, sqlStore, met, log)
	if err != nil {
		log.Fatal("failed to start modules", zap.Error(err))
	}
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	for _, l := range loops {
		l.Start(ctx)
	}

	var apiServer *keysapi.Server
	if cfg.API.Enabled {
		apiServer = keysapi.NewServer(keysapi.Config{
			Host: cfg.API.Host,
			Port: cfg.API.Port,
		}, sqlStore, log)

		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error("read-surface server failed", zap.Error(err))
			}
		}()
		log.Info("read-surface server started",
			zap.String("host", cfg.API.Host),
			zap.Int("port", cfg.API.Port),
		)
	}

	fatal := fanInFatal(loops)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case f := <-fatal:
		log.Error("stall watchdog fired, terminating", zap.Uint64("last_block", f.LastBlockNumber), zap.Error(f.Err))
		cancel()
		stopLoops(loops)
		if apiServer != nil {
			stopAPIServer(apiServer, log)
		}
		os.Exit(1)
	}

	stopLoops(loops)
	if apiServer != nil {
		stopAPIServer(apiServer, log)
	}

	log.Info("registry reconciler stopped")
}

// initLogger builds the application logger from the log section of cfg,
// mirroring the teacher's production/development split: console output
// goes through NewWithConfig for the development encoder, JSON output at
// the default info level gets the sampled production logger, and JSON
// output at any other level goes through NewWithConfig without sampling.
func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Format == "console" {
		return logger.NewWithConfig(&logger.Config{
			Level:       cfg.Level,
			Encoding:    "console",
			Development: true,
		})
	}
	if cfg.Level == "" || cfg.Level == "info" {
		return logger.NewProduction()
	}
	return logger.NewWithConfig(&logger.Config{
		Level:    cfg.Level,
		Encoding: "json",
	})
}

// startModules builds one Chain Reader, Reconciler, and Loop per enabled
// module entry (§3, §4.8: one tracked staking-module registry per module
// address, all sharing one store).
func startModules(cfg *config.Config, sqlStore *store.Store, met *metrics.Metrics, log *zap.Logger) ([]*chain.Reader, []*registry.Loop, error) {
	var readers []*chain.Reader
	var loops []*registry.Loop

	for _, m := range cfg.Modules {
		if !m.Enabled {
			continue
		}
		if !common.IsHexAddress(m.Address) {
			return readers, loops, fmt.Errorf("module %q: invalid address", m.Address)
		}
		address := common.HexToAddress(m.Address)
		moduleLogger := log.Named(address.Hex())

		reader, err := chain.NewReader(chain.Config{
			Endpoint:       cfg.RPC.Endpoint,
			Timeout:        cfg.RPC.Timeout,
			ModuleAddress:  address,
			RateLimitPerS:  cfg.Update.RateLimitPerSecond,
			RateLimitBurst: cfg.Update.RateLimitBurst,
			Logger:         moduleLogger,
		})
		if err != nil {
			return readers, loops, fmt.Errorf("module %s: %w", address.Hex(), err)
		}
		readers = append(readers, reader)

		reconciler := registry.NewReconciler(registry.ReconcilerConfig{
			ModuleAddress:     address,
			Variant:           m.Variant,
			OperatorBatchSize: cfg.Update.OperatorBatchSize,
			KeyBatchSize:      cfg.Update.KeyBatchSize,
		}, reader, sqlStore, moduleLogger)

		loop := registry.NewLoop(registry.LoopConfig{
			ModuleAddress: address.Hex(),
			Interval:      time.Duration(cfg.Update.IntervalMs) * time.Millisecond,
			StallTimeout:  time.Duration(cfg.Update.TimeoutMs) * time.Millisecond,
			Observer:      met,
		}, reconciler, moduleLogger)
		loops = append(loops, loop)
	}

	if len(loops) == 0 {
		return readers, loops, fmt.Errorf("no enabled modules configured")
	}
	return readers, loops, nil
}

// fanInFatal merges every Loop's Fatal channel into one, so the caller can
// select on a single terminal-failure signal regardless of module count.
func fanInFatal(loops []*registry.Loop) <-chan *registry.Fatal {
	out := make(chan *registry.Fatal, len(loops))
	for _, l := range loops {
		go func(l *registry.Loop) {
			if f, ok := <-l.Fatal(); ok {
				out <- f
			}
		}(l)
	}
	return out
}

func stopLoops(loops []*registry.Loop) {
	var wg sync.WaitGroup
	for _, l := range loops {
		wg.Add(1)
		go func(l *registry.Loop) {
			defer wg.Done()
			l.Stop()
		}(l)
	}
	wg.Wait()
}

func stopAPIServer(s *keysapi.Server, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		log.Error("failed to stop read-surface server", zap.Error(err))
	}
}
