// Package decentium is the command line entry point: read-only queries of the
// Decentium blog contract and block range scans into an output sink.
package decentium

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/decentium/decentium-go/internal/abi"
	"github.com/decentium/decentium-go/internal/client"
	"github.com/decentium/decentium-go/internal/config"
	api "github.com/decentium/decentium-go/internal/decentium"
	"github.com/decentium/decentium-go/internal/metrics"
	"github.com/decentium/decentium-go/internal/provider"
)

// app holds the wired data access layer shared by every subcommand.
type app struct {
	cfg      config.Config
	out      io.Writer
	registry *prometheus.Registry
	node     *client.Client
	provider *provider.Provider
	api      *api.APIClient
	metrics  *http.Server
}

// Execute runs the root command until it returns or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree. Results are printed to out as JSON.
func NewRootCmd(out io.Writer) *cobra.Command {
	v := config.NewViper()
	a := &app{out: out}
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "decentium",
		Short:         "Read Decentium blogs from an EOSIO node",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configFile != "" {
				if err := config.ReadFile(v, configFile); err != nil {
					return err
				}
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			level, err := config.ParseLogLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return a.init(cfg)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.shutdown()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	cobra.CheckErr(config.RegisterFlags(rootCmd.PersistentFlags(), v))

	rootCmd.AddCommand(
		newInfoCmd(a),
		newBlockCmd(a),
		newTxCmd(a),
		newBlogCmd(a),
		newProfileCmd(a),
		newPostsCmd(a),
		newPostCmd(a),
		newTrendingCmd(a),
		newScanCmd(a),
	)
	return rootCmd
}

func (a *app) init(cfg config.Config) error {
	a.cfg = cfg
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	node, err := client.New(cfg.ClientConfig(), m, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create node client: %w", err)
	}
	decoder := abi.NewDecoder(node, nil, m, slog.Default())
	p, err := provider.New(node, decoder, cfg.CacheConfig(), m, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create data provider: %w", err)
	}
	a.node = node
	a.provider = p
	a.api = api.New(p, cfg.Contract)

	if cfg.MetricsAddr != "" {
		a.serveMetrics(cfg.MetricsAddr)
	}
	return nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	a.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	slog.Info("Serving metrics", "addr", addr)
}

func (a *app) shutdown() error {
	if a.metrics == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.metrics.Shutdown(ctx)
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
