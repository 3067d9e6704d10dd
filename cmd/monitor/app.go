package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"golang.org/x/time/rate"

	"github.com/lilletrafic/subway-monitor/internal/app"
	"github.com/lilletrafic/subway-monitor/internal/appconf"
	"github.com/lilletrafic/subway-monitor/internal/clock"
	"github.com/lilletrafic/subway-monitor/internal/logging"
	"github.com/lilletrafic/subway-monitor/internal/metrics"
	"github.com/lilletrafic/subway-monitor/internal/monitor"
	"github.com/lilletrafic/subway-monitor/internal/navitia"
	"github.com/lilletrafic/subway-monitor/internal/snapshot"
	"github.com/lilletrafic/subway-monitor/snapshotdb"
)

type BuildOptions struct {
	// DataPath selects a local SQLite store instead of DynamoDB.
	DataPath string
}

// BuildApplication creates the logger, the Navitia client, the snapshot store and the
// invocation handler. Returns an error if the store cannot be initialized.
func BuildApplication(cfg appconf.Config, opts BuildOptions) (*app.Application, error) {
	logger := logging.NewStructuredLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	client := navitia.NewClient(cfg.NavitiaURL, cfg.TrafficReportsPath(), cfg.NavitiaToken,
		navitia.WithRateLimiter(limiter))

	coreApp := &app.Application{
		Config:  cfg,
		Logger:  logger,
		Clock:   clock.RealClock{},
		Metrics: metrics.New(),
		Navitia: client,
	}

	if opts.DataPath != "" {
		db, err := snapshotdb.NewClient(snapshotdb.NewConfig(opts.DataPath, cfg.Env, cfg.Verbose))
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot database: %w", err)
		}
		coreApp.Store = db
		coreApp.AddCloser(db)
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		coreApp.Store = snapshot.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.TableName)
	}

	coreApp.Handler = monitor.NewHandler(client, coreApp.Store, coreApp.Clock, logger, coreApp.Metrics)
	coreApp.Handler.Verbose = cfg.Verbose

	logging.LogOperation(logger, "application_built",
		slog.String("env", cfg.Env.String()),
		slog.String("navitia_endpoint", client.Endpoint()),
		slog.Bool("local_store", opts.DataPath != ""))

	return coreApp, nil
}

// RunLocal invokes the handler once, or on every interval tick until SIGINT or SIGTERM.
func RunLocal(coreApp *app.Application, interval time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runLocal(ctx, coreApp, interval)
}

func runLocal(ctx context.Context, coreApp *app.Application, interval time.Duration) error {
	if err := invokeOnce(ctx, coreApp); err != nil || interval <= 0 {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := invokeOnce(ctx, coreApp); err != nil {
				return err
			}
		case <-ctx.Done():
			logging.LogOperation(coreApp.Logger, "shutting_down_local_polling")
			return nil
		}
	}
}

type expiringStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

func invokeOnce(ctx context.Context, coreApp *app.Application) error {
	if ctx.Err() != nil {
		return nil
	}

	if local, ok := coreApp.Store.(expiringStore); ok {
		deleted, err := local.DeleteExpired(ctx, coreApp.Clock.Now())
		if err != nil {
			return ignoreShutdown(ctx, err)
		}
		if deleted > 0 {
			logging.LogOperation(coreApp.Logger, "expired_snapshots_deleted", slog.Int64("count", deleted))
		}
	}

	_, err := coreApp.Handler.Handle(ctx, nil)
	return ignoreShutdown(ctx, err)
}

// ignoreShutdown drops errors caused by the polling context ending.
func ignoreShutdown(ctx context.Context, err error) error {
	if err == nil || (ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))) {
		return nil
	}
	return err
}
