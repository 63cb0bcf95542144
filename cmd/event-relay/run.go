package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/devblac/event-relay/internal/dispatch"
	"github.com/devblac/event-relay/internal/engine"
	"github.com/devblac/event-relay/internal/health"
	"github.com/devblac/event-relay/internal/metrics"
	"github.com/devblac/event-relay/internal/scanner"
	"github.com/devblac/event-relay/internal/settings"
	"github.com/devblac/event-relay/internal/sink"
	"github.com/devblac/event-relay/internal/source/evm"
	"github.com/devblac/event-relay/internal/tracing"
	"github.com/spf13/cobra"
)

var (
	flagOnce    bool
	flagHealth  string
	flagMetrics string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Run one cycle and exit")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the poll orchestrator",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, store, err := loadStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if n, err := seedEndpoints(ctx, store, cfg.Endpoints); err != nil {
			return err
		} else if n > 0 {
			log.Info("seeded endpoints from config", "count", n)
		}

		shutdownTracing, err := tracing.Init(ctx, cfg.Global.TracingEndpoint, cfg.Global.TracingInsecure, cfg.Global.TracingSample)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				log.Warn("tracing shutdown", "error", err)
			}
		}()

		var mtr *metrics.Metrics
		if flagMetrics != "" || flagHealth != "" {
			mtr = metrics.Init()
		}

		dialer := evm.NewDialer(nil, cfg.Global.RPCRateLimit, cfg.Global.RPCBurst, mtr)
		defer dialer.Close()

		refresh, err := cfg.Global.RefreshInterval()
		if err != nil {
			return err
		}
		mgr := settings.New(store, defaultSettings(cfg), refresh, log)
		sc := scanner.New(store, dialer, sink.NewHTTPSender(cfg.Global.APIKey, nil), log, mtr)
		orch := engine.NewOrchestrator(store, dispatch.Default(), sc, mgr, engine.Options{
			Parallelism: cfg.Global.Parallelism,
			Logger:      log,
			Metrics:     mtr,
		})

		if flagHealth != "" {
			rpcChecker := health.NewRPCChecker(dialer, store)
			healthSrv := health.Serve(flagHealth, health.Checker{
				DBPing:  store.Ping,
				RPCPing: rpcChecker.Ping,
			}, sharedMetrics(flagHealth, flagMetrics))
			log.Info("health check enabled", "addr", flagHealth)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, healthSrv)
			}()
		}

		if flagMetrics != "" && flagMetrics == flagHealth {
			log.Info("metrics enabled", "addr", flagMetrics, "shared_with", "health")
		} else if flagMetrics != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: flagMetrics, Handler: mux, ReadHeaderTimeout: 3 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server error", "error", err)
				}
			}()
			log.Info("metrics enabled", "addr", flagMetrics)
			defer srv.Close()
		}

		if flagOnce {
			report, err := orch.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("run cycle: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cycle: selected=%d scanned=%d skipped=%d failed=%d\n",
				report.Selected, report.Scanned, report.Skipped, len(report.Failures))
			return report.Err()
		}

		if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// sharedMetrics returns the metrics handler when it is to be served by the
// health server, i.e. both flags name the same address.
func sharedMetrics(healthAddr, metricsAddr string) http.Handler {
	if metricsAddr == "" || metricsAddr != healthAddr {
		return nil
	}
	return metrics.Handler()
}
