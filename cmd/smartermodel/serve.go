package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/adrianmcphee/smartermodel"
	"github.com/adrianmcphee/smartermodel/internal/executor"
	"github.com/adrianmcphee/smartermodel/internal/protocol"
	"github.com/adrianmcphee/smartermodel/memdb"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr        string
	DataDir     string
	MetricsAddr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an in-memory SQL database over the PostgreSQL wire protocol",
		Long: `Serve an in-memory SQL database over the PostgreSQL wire protocol.

Tables are saved to the data directory as JSON lines after every change
and loaded again on start. Connect with psql or any client that can use
the simple query protocol:

  psql -h localhost -p 5433`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			override(cmd, "addr", opts.Addr, &opts.Config.Addr)
			override(cmd, "data", opts.DataDir, &opts.Config.DataDir)
			override(cmd, "metrics-addr", opts.MetricsAddr, &opts.Config.MetricsAddr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "address to listen on (default :5433)")
	cmd.Flags().StringVar(&opts.DataDir, "data", "", "data directory (default ./data)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint; empty disables it")

	return cmd
}

func newLogger(verbose bool) (*smartermodel.ZapLogger, error) {
	if verbose {
		return smartermodel.NewDevelopmentZapLogger()
	}
	return smartermodel.NewProductionZapLogger()
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	logger, err := newLogger(opts.Verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	cfg := opts.Config
	if err := os.MkdirAll(cfg.DataDir, smartermodel.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	exec := executor.NewExecutor(memdb.New(),
		executor.WithLogger(logger),
		executor.WithSnapshotDir(cfg.DataDir),
	)
	if err := exec.Load(cfg.DataDir); err != nil {
		return fmt.Errorf("load %s: %w", cfg.DataDir, err)
	}
	logger.Info("data loaded", "dir", cfg.DataDir, "tables", len(exec.DB().Names()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := smartermodel.NewPrometheusMetrics(registry)

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsHandler(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
	}

	server := protocol.NewServer(exec, protocol.WithLogger(logger), protocol.WithMetrics(metrics))
	err = server.ListenAndServe(ctx, cfg.Addr)
	if errors.Is(err, protocol.ErrServerClosed) {
		err = nil
	}

	if saveErr := exec.Save(cfg.DataDir); saveErr != nil {
		logger.Error("final save failed", "dir", cfg.DataDir, "error", saveErr)
		if err == nil {
			err = saveErr
		}
	}
	logger.Info("server stopped")
	return err
}

func metricsHandler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return mux
}
