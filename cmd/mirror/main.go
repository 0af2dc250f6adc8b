package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/workmesh/marketmirror/internal/cache"
	"github.com/workmesh/marketmirror/internal/common"
	"github.com/workmesh/marketmirror/internal/config"
	"github.com/workmesh/marketmirror/internal/db"
	"github.com/workmesh/marketmirror/internal/ledger"
	"github.com/workmesh/marketmirror/internal/logger"
	"github.com/workmesh/marketmirror/internal/metrics"
	"github.com/workmesh/marketmirror/internal/migrations"
	"github.com/workmesh/marketmirror/internal/reconciler"
	"github.com/workmesh/marketmirror/internal/reputation"
	"github.com/workmesh/marketmirror/internal/scheduler"
	"github.com/workmesh/marketmirror/internal/store"
	"github.com/workmesh/marketmirror/internal/types"
	"github.com/workmesh/marketmirror/pkg/api"
)

const version = "1.0.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mirror",
	Short: "MarketMirror - job marketplace ledger mirror",
	Long: `MarketMirror keeps an off-chain, queryable mirror of an on-chain job
marketplace. It polls the ledger for marketplace transactions, reconciles them
into a local state store, aggregates reputation, and serves read queries.`,
	Version: version,
	RunE:    runMirror,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
}

func runMirror(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	logFor := func(component string) *logger.Logger {
		if cfg.Logging == nil {
			return logger.NewComponentLoggerFromConfig(component, nil)
		}
		return logger.NewComponentLoggerFromConfig(component, cfg.Logging)
	}
	log := logFor(common.ComponentPoller)

	// Metrics server
	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics, logFor(common.ComponentPoller))
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(ctx); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
	}

	// State store
	log.Info("Running database migrations...")
	if err := migrations.RunMigrations(cfg.DB.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewSQLiteDBFromConfig(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	stateStore := store.New(database, logFor(common.ComponentStore))
	readCache := cache.New(&cfg.Cache, logFor(common.ComponentCache))
	aggregator := reputation.New(stateStore, logFor(common.ComponentReputation))

	engine, err := reconciler.New(stateStore, readCache, aggregator, reconciler.Config{
		MaxDeferralCycles: cfg.Poller.MaxDeferralCycles,
		PlatformFeeBps:    cfg.Poller.PlatformFeeBps,
	}, logFor(common.ComponentReconciler))
	if err != nil {
		return fmt.Errorf("failed to create reconciler: %w", err)
	}

	// Ledger client
	ledgerClient, err := ledger.NewHTTPClient(&cfg.Ledger, logFor(common.ComponentLedger))
	if err != nil {
		return fmt.Errorf("failed to create ledger client: %w", err)
	}
	defer ledgerClient.Close()
	log.Infof("Using ledger endpoint %s", cfg.Ledger.Endpoint)

	// Poller
	poller, err := scheduler.New(&cfg.Poller, cfg.Contracts, ledgerClient, stateStore, engine, logFor(common.ComponentPoller))
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	// Domain event sink. Downstream consumers subscribe here; without one we
	// still drain the channel so reconciliation never stalls.
	go drainEvents(ctx, engine.Events(), logFor(common.ComponentReconciler))

	// Query API
	if cfg.API != nil && cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, stateStore, readCache, logFor(common.ComponentAPI))
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				log.Errorf("API server error: %v", err)
			}
		}()
	}

	log.Infof("Starting MarketMirror for %d contract(s)...", len(cfg.Contracts))
	if err := poller.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("poller failed: %w", err)
	}

	log.Info("MarketMirror stopped successfully")
	return nil
}

// drainEvents logs every domain event until the context is cancelled.
func drainEvents(ctx context.Context, events <-chan types.DomainEvent, log *logger.Logger) {
	for {
		select {
		case event := <-events:
			log.Infow("domain event",
				"id", event.ID,
				"kind", event.Kind,
				"job_id", event.JobID,
				"escrow_id", event.EscrowID,
				"details", event.Details,
			)
		case <-ctx.Done():
			return
		}
	}
}
