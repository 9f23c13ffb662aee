package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/costdex/internal/config"
	"github.com/kailas-cloud/costdex/internal/db"
	dbValkey "github.com/kailas-cloud/costdex/internal/db/valkey"
	"github.com/kailas-cloud/costdex/internal/domain"
	logpkg "github.com/kailas-cloud/costdex/internal/logger"
	"github.com/kailas-cloud/costdex/internal/metrics"
	"github.com/kailas-cloud/costdex/internal/provider"
	checkpointrepo "github.com/kailas-cloud/costdex/internal/repository/checkpoint"
	"github.com/kailas-cloud/costdex/internal/repository/costindex"
	"github.com/kailas-cloud/costdex/internal/usecase/adjust"
	"github.com/kailas-cloud/costdex/internal/usecase/forecast"
	syncuc "github.com/kailas-cloud/costdex/internal/usecase/sync"
	"github.com/kailas-cloud/costdex/internal/version"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to YAML config file")
		reset      = flag.Bool("reset", false, "drop the index and checkpoint, then resync from scratch")
		debug      = flag.Bool("debug", false, "verbose console logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(2)
	}

	logger, err := logpkg.New(cfg.Logging.Level, *debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting costdex sync",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("index", cfg.Index.Name),
		zap.Bool("reset", *reset),
	)
	if cfg.Sync.LookbackDays >= 60 {
		logger.Warn("Lookback window is large; the first sync may take a while",
			zap.Int("lookback_days", cfg.Sync.LookbackDays))
	}

	// Both drivers speak the same protocol; one client covers them.
	var store db.Store
	switch cfg.Database.Driver {
	case "valkey", "redis":
		store, err = dbValkey.NewStore(dbValkey.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
		})
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	reg := prometheus.NewRegistry()
	syncMetrics := metrics.NewSync(reg)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.Serve(cfg.Metrics.Port, reg, logger)
	}

	api := provider.New(provider.Config{
		BaseURL:        cfg.Provider.BaseURL,
		APIKey:         cfg.Provider.APIKey,
		OrganizationID: cfg.Provider.OrganizationID,
		RequestTimeout: time.Duration(cfg.Provider.RequestTimeoutSec) * time.Second,
		Backoff: provider.BackoffPolicy{
			MaxRetries:     cfg.Provider.Retry.MaxRetries,
			InitialBackoff: time.Duration(cfg.Provider.Retry.InitialBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Provider.Retry.MaxBackoffMS) * time.Millisecond,
		},
		Logger:  logger,
		Metrics: syncMetrics,
	})

	indexRepo := costindex.New(store, cfg.Index.KeyPrefix, cfg.Index.Name)
	checkpoints := checkpointrepo.New(store, indexRepo.CheckpointKey(), cfg.Sync.LookbackDays)

	syncSvc := syncuc.New(api, indexRepo, checkpoints, syncuc.Options{
		ChunkSize:      time.Duration(cfg.Sync.ChunkHours) * time.Hour,
		FinalityMargin: time.Duration(cfg.Sync.FinalityMarginMin) * time.Minute,
		BatchSize:      cfg.Index.BatchSize,
		Reset:          *reset,
	}, logger, syncMetrics)

	summary, runErr := syncSvc.Run(ctx)

	exitCode := 0
	if runErr != nil {
		logger.Error("Sync run failed", zap.Error(runErr))
		exitCode = 1
	} else {
		// Adjustments and the forecast ride on a successful usage sync.
		org := lookupOrg(ctx, api, cfg.Provider.OrganizationID, logger)

		if err := applyAdjustments(ctx, cfg, indexRepo, org, summary.RunID, logger); err != nil {
			logger.Error("Adjustments failed", zap.Error(err))
			exitCode = 1
		}
		if cfg.Forecast.Enabled {
			fcSvc := forecast.New(api, indexRepo, forecast.Options{
				LookbackDays: cfg.Forecast.LookbackDays,
				HorizonDays:  cfg.Forecast.HorizonDays,
			}, logger)
			if _, err := fcSvc.Recompute(ctx, org, summary.RunID); err != nil {
				logger.Error("Forecast failed", zap.Error(err))
				exitCode = 1
			}
		}
	}

	if total, err := indexRepo.Count(ctx); err == nil {
		logger.Info("Index document count", zap.Int("total", total))
	}
	logger.Info("Run finished",
		zap.String("run_id", summary.RunID),
		zap.String("state", string(summary.State)),
		zap.Int("fetched", summary.Fetched),
		zap.Int("indexed", summary.Indexed),
		zap.Int("failed", summary.Failed),
		zap.Time("synced_through", summary.SyncedThru),
	)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown", zap.Error(err))
		}
	}

	if exitCode != 0 {
		_ = logger.Sync()
		os.Exit(exitCode)
	}
}

// lookupOrg fetches the org name for labelling; a failure degrades to the
// bare configured id rather than aborting the run.
func lookupOrg(ctx context.Context, api *provider.Client, orgID string, logger *zap.Logger) domain.Organization {
	org, err := api.GetOrganization(ctx)
	if err != nil {
		logger.Warn("Organization lookup failed; documents carry the raw id", zap.Error(err))
		return domain.Organization{ID: orgID}
	}
	return org
}

func applyAdjustments(
	ctx context.Context,
	cfg config.Config,
	indexRepo *costindex.Repo,
	org domain.Organization,
	runID string,
	logger *zap.Logger,
) error {
	purchases, err := adjustEntries(cfg.Adjustments.Purchases)
	if err != nil {
		return err
	}
	overages, err := adjustEntries(cfg.Adjustments.Overages)
	if err != nil {
		return err
	}
	if len(purchases) == 0 && len(overages) == 0 {
		return nil
	}
	_, err = adjust.New(indexRepo, logger).Apply(ctx, org, purchases, overages, runID)
	return err
}

func adjustEntries(in []config.Adjustment) ([]adjust.Entry, error) {
	out := make([]adjust.Entry, 0, len(in))
	for _, a := range in {
		day, err := a.Day()
		if err != nil {
			return nil, err
		}
		out = append(out, adjust.Entry{Day: day, Credits: a.Credits})
	}
	return out, nil
}
