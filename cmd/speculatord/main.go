// Copyright 2025 Certen Protocol
//
// Command speculatord wires a Chain, its KV Store, and the ambient
// observability stack into a long-running process: it loads a
// NetworkCapability configuration, opens the configured storage
// backend, and serves Prometheus metrics, in the structural style of
// the teacher's validator main.go (CLI flags, fatal-on-misconfiguration
// startup, no embedded HTTP business logic).
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/speculator-chain/pkg/chain"
	"github.com/certen/speculator-chain/pkg/config"
	"github.com/certen/speculator-chain/pkg/kvstore"
	"github.com/certen/speculator-chain/pkg/metrics"
	"github.com/certen/speculator-chain/pkg/obslog"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a YAML configuration file (defaults built in if omitted)")
		metricsAddr = flag.String("metrics-addr", ":9464", "Address to serve Prometheus metrics on")
		showHelp    = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("speculatord: load config: %v", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("speculatord: invalid config: %v", err)
	}

	level, err := obslog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("speculatord: %v", err)
	}
	logger, err := obslog.New(&obslog.Config{Level: level, Format: cfg.Logging.Format, Output: cfg.Logging.Output})
	if err != nil {
		log.Fatalf("speculatord: build logger: %v", err)
	}
	obslog.SetGlobal(logger)

	kvStore, chainStore, programs, err := openStorage(cfg)
	if err != nil {
		log.Fatalf("speculatord: open storage: %v", err)
	}

	c, err := chain.New(kvStore, chainStore, programs)
	if err != nil {
		log.Fatalf("speculatord: initialize chain: %v", err)
	}

	reg := prometheus.NewRegistry()
	c.SetLogger(logger)
	c.SetMetrics(metrics.NewChain(reg))
	c.SetSpeculatorMetrics(metrics.NewSpeculator(reg))

	logger.Info("speculatord started",
		"network_id", cfg.Capability.NetworkID,
		"storage_backend", cfg.Storage.Backend,
		"latest_height", c.LatestHeight(),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: *metricsAddr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "error", err.Error())
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("speculatord shutting down", "latest_height", c.LatestHeight())
}

// openStorage opens the KV Store, Chain store, and program registry
// backends named by cfg.Storage, defaulting to in-process memdb.
func openStorage(cfg *config.Config) (kvstore.Store, chain.ChainStore, *chain.ProgramRegistry, error) {
	open := func(name string) (dbm.DB, error) {
		switch cfg.Storage.Backend {
		case "goleveldb":
			return dbm.NewGoLevelDB(name, cfg.Storage.Path)
		default:
			return dbm.NewMemDB(), nil
		}
	}

	kvDB, err := open("speculator_kv")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open kv store: %w", err)
	}
	chainDB, err := open("speculator_chain")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open chain store: %w", err)
	}
	programDB, err := open("speculator_programs")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open program registry: %w", err)
	}

	store, err := kvstore.NewMemoryStore(kvDB)
	if err != nil {
		return nil, nil, nil, err
	}
	return store, chain.NewMemoryChainStore(chainDB), chain.NewProgramRegistry(programDB), nil
}
