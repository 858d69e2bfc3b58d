package main

import (
	"context"
	"errors"
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
	"golang.org/x/sync/errgroup"

	"github.com/atelierlabs/atelier/api/config"
	"github.com/atelierlabs/atelier/api/handlers"
	"github.com/atelierlabs/atelier/api/metrics"
	"github.com/atelierlabs/atelier/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = "0.0.0.0:8080"
	defaultMetricsAddr = "0.0.0.0:0"
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
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "Address to listen on for the API")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 30*time.Second, "Maximum time to wait for in-flight requests during graceful shutdown")

	flag.Parse()

	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	if err := config.LoadPostgres(); err != nil {
		return fmt.Errorf("failed to load postgres: %w", err)
	}
	defer config.ClosePostgres()

	if err := handlers.Setup(log); err != nil {
		return err
	}
	handlers.SetVersion(version, commit, date)

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

	httpSrv := &http.Server{
		Addr:              *listenAddrFlag,
		Handler:           handlers.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("api: http listening", "address", *listenAddrFlag)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to listen and serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("api: stopping", "reason", gctx.Err())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTimeoutFlag)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		log.Info("api: http server shutdown complete")
		return nil
	})

	return g.Wait()
}
