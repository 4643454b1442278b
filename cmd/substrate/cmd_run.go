package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/substrate/internal/config"
	"github.com/nvandessel/substrate/internal/engine"
	"github.com/nvandessel/substrate/internal/events"
	"github.com/nvandessel/substrate/internal/graph"
	"github.com/nvandessel/substrate/internal/logging"
	"github.com/nvandessel/substrate/internal/metrics"
)

// shutdownTimeout bounds the metrics server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tick engine until interrupted",
		Long: `Run the tick engine on a seed graph until SIGINT or SIGTERM.

Tick summaries, criticality samples and safe-mode transitions are exported
as Prometheus metrics when --metrics-addr is set and appended to
events.jsonl when --events-dir is set. Changes to the config file are
picked up at the next tick boundary.

Examples:
  substrate run --graph seed.yaml
  substrate run --graph seed.yaml --metrics-addr :9090 --events-dir ./events
  substrate run --graph seed.yaml --inject n0=0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("graph"); v != "" {
				cfg.GraphFile = v
			}
			if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
				cfg.Metrics.Addr = v
			}
			if v, _ := cmd.Flags().GetString("events-dir"); v != "" {
				cfg.Logging.EventsDir = v
			}
			if cfg.GraphFile == "" {
				return fmt.Errorf("no graph: set --graph or graph_file in the config")
			}
			specs, _ := cmd.Flags().GetStringArray("inject")
			injections, err := parseInjections(specs)
			if err != nil {
				return err
			}
			watch, _ := cmd.Flags().GetBool("watch")
			return runEngine(cmd, cfg, injections, watch)
		},
	}

	cmd.Flags().String("graph", "", "Seed graph file (YAML)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().String("events-dir", "", "Append events to events.jsonl in this directory")
	cmd.Flags().StringArray("inject", nil, "Stimulus to inject before the first tick, as id=energy")
	cmd.Flags().Bool("watch", true, "Reload the config file when it changes")

	return cmd
}

func runEngine(cmd *cobra.Command, cfg *config.Config, injections []injection, watch bool) error {
	logger := newLogger(cmd, cfg.Logging.Level)

	g, err := graph.LoadFile(cfg.GraphFile)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	sinks := []events.Sink{reg}
	if cfg.Logging.EventsDir != "" {
		el, err := logging.NewEventLog(cfg.Logging.EventsDir)
		if err != nil {
			return fmt.Errorf("opening event log: %w", err)
		}
		defer el.Close()
		sinks = append(sinks, el)
		logger.Info("writing events", "path", el.Path())
	}

	e, err := engine.New(g, cfg.Engine,
		engine.WithLogger(logger),
		engine.WithSink(events.Multi(sinks...)),
	)
	if err != nil {
		return err
	}
	for _, inj := range injections {
		if err := e.Inject(engine.Stimulus{NodeID: inj.ID, Energy: inj.Energy}); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return e.Run(egCtx)
	})

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		eg.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if path := configPath(cmd); watch && path != "" {
		w := newConfigWatcher(path, logger, func(next *config.Config) {
			e.Update(func(p *engine.Params) { *p = next.Engine })
		})
		eg.Go(func() error {
			return w.Run(egCtx)
		})
	}

	return eg.Wait()
}
