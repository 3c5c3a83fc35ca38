package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/rooksync/internal/config"
	"github.com/nextlevelbuilder/rooksync/internal/scheduler"
	"github.com/nextlevelbuilder/rooksync/internal/server"
	"github.com/nextlevelbuilder/rooksync/internal/store"
	"github.com/nextlevelbuilder/rooksync/internal/tracing"
)

func serveCmd() *cobra.Command {
	var simulate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job server (REST API + WebSocket event channel)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe(simulate)
		},
	}
	cmd.Flags().BoolVar(&simulate, "simulate", false, "register simulated runners for every job kind (for exercising clients)")
	return cmd
}

func runServe(simulate bool) {
	cfg, err := loadConfig()
	if err != nil {
		fatalf("loading config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fatalf("creating data dir: %v", err)
	}

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		fatalf("opening database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing.Endpoint)
	if err != nil {
		fatalf("initializing tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	bus := server.NewBus()
	svc := server.NewJobService(store.NewJobStore(db), bus)
	hub := server.NewHub(bus)

	registry := server.NewRegistry()
	if simulate {
		registerSimulatedRunners(registry)
	}
	executor := server.NewExecutor(svc, registry)

	api := server.NewAPI(svc, hub)
	api.DefaultSource = cfg.Import.Source
	api.DefaultMaxGames = cfg.Import.MaxGames

	autoSync := scheduler.NewAutoSync(func(ctx context.Context) error {
		_, err := svc.Request(ctx, "sync", cfg.Import.Username, cfg.Import.Source)
		return err
	})
	if err := autoSync.Configure(cfg.AutoSync.Enabled, cfg.AutoSync.Cron); err != nil {
		slog.Warn("auto-sync disabled", "error", err)
	}

	watcher, err := config.NewWatcher(resolveConfigPath())
	if err != nil {
		slog.Warn("config watch unavailable", "error", err)
	} else {
		watcher.OnChange(func(next *config.Config) {
			if err := autoSync.Configure(next.AutoSync.Enabled, next.AutoSync.Cron); err != nil {
				slog.Warn("ignoring auto-sync config change", "error", err)
			}
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config watch unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	httpSrv := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.Routes(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return executor.Run(ctx) })
	g.Go(func() error { return autoSync.Run(ctx) })
	g.Go(func() error {
		slog.Info("server listening", "addr", cfg.Listen)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fatalf("server: %v", err)
	}
	slog.Info("server stopped")
}

// registerSimulatedRunners installs a runner for every known job kind
// that walks progress from 0 to a fixed total. Useful for exercising
// the watcher and the WebSocket surface without real pipelines.
func registerSimulatedRunners(registry *server.Registry) {
	kinds := []string{"import", "analysis", "sync", "backfill_eco", "backfill_phases", "backfill_tactics", "delete_all_data"}
	for _, kind := range kinds {
		registry.Register(kind, simulatedRunner(20, 250*time.Millisecond))
	}
	slog.Info("simulated runners registered", "kinds", len(kinds))
}

func simulatedRunner(total int, step time.Duration) server.RunnerFunc {
	return func(ctx context.Context, job *store.Job, progress func(current, total int)) error {
		for i := 0; i <= total; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(step):
			}
			progress(i, total)
		}
		return nil
	}
}
