package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atelierlabs/atelier/api/config"
	"github.com/atelierlabs/atelier/indexer/pkg/chain"
	"github.com/atelierlabs/atelier/indexer/pkg/metrics"
	"github.com/atelierlabs/atelier/indexer/pkg/server"
	"github.com/atelierlabs/atelier/indexer/pkg/works"
	"github.com/atelierlabs/atelier/royalty/pgstore"
	"github.com/atelierlabs/atelier/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr      = "0.0.0.0:8081"
	defaultMetricsAddr     = "0.0.0.0:0"
	defaultRefreshInterval = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "Enable verbose (debug) logging")
	enablePprofFlag := flag.Bool("enable-pprof", false, "Enable pprof server")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "Address to listen on for health endpoints")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")
	gatewayURLFlag := flag.String("gateway-url", "", "Chain gateway base URL (defaults to CHAIN_GATEWAY_URL)")
	refreshIntervalFlag := flag.Duration("refresh-interval", defaultRefreshInterval, "Registry refresh interval")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 30*time.Second, "Maximum time to wait during graceful shutdown")

	flag.Parse()

	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	gatewayURL := *gatewayURLFlag
	if gatewayURL == "" {
		gatewayURL = os.Getenv("CHAIN_GATEWAY_URL")
	}
	if gatewayURL == "" {
		return fmt.Errorf("gateway URL is required (set -gateway-url or CHAIN_GATEWAY_URL)")
	}

	if err := config.LoadPostgres(); err != nil {
		return fmt.Errorf("failed to load postgres: %w", err)
	}
	defer config.ClosePostgres()

	store, err := pgstore.New(pgstore.Config{
		Logger: log,
		Pool:   config.PgPool,
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	chainClient, err := chain.NewHTTPClient(chain.HTTPClientConfig{
		Logger:  log,
		BaseURL: gatewayURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create chain client: %w", err)
	}

	// Start pprof server if enabled
	if *enablePprofFlag {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	// Start metrics server
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv, err := server.New(ctx, server.Config{
		ListenAddr:        *listenAddrFlag,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   *shutdownTimeoutFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
		ViewConfig: works.ViewConfig{
			Logger:          log,
			Chain:           chainClient,
			Sink:            store,
			RefreshInterval: *refreshIntervalFlag,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Run(ctx)
}
