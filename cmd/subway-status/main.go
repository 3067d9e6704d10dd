package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/lilletrafic/subway-monitor/internal/appconf"
	"github.com/lilletrafic/subway-monitor/internal/snapshot"
	"github.com/lilletrafic/subway-monitor/internal/summary"
	"github.com/lilletrafic/subway-monitor/snapshotdb"
)

func main() {
	var dataPath, tableName, line string

	flag.StringVar(&dataPath, "data-path", "", "Path to a local SQLite snapshot database (empty: use DynamoDB)")
	flag.StringVar(&tableName, "table", os.Getenv("DYNAMODB_TABLE_NAME"), "DynamoDB table holding the snapshots")
	flag.StringVar(&line, "line", "", "Subway line number (1 or 2); empty for both lines")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, closeStore, err := openStore(ctx, dataPath, tableName)
	if err != nil {
		logger.Error("failed to open snapshot store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	out, err := status(ctx, store, line)
	if err != nil {
		logger.Error("failed to read subway status", "error", err)
		closeStore()
		os.Exit(1)
	}
	fmt.Println(out)
}

func openStore(ctx context.Context, dataPath, tableName string) (snapshot.Store, func(), error) {
	if dataPath != "" {
		db, err := snapshotdb.NewClient(snapshotdb.NewConfig(dataPath, appconf.Development, false))
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	}

	if tableName == "" {
		return nil, nil, fmt.Errorf("either -data-path or -table (DYNAMODB_TABLE_NAME) is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return snapshot.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), tableName), func() {}, nil
}

// status renders the latest snapshot for one line, or for both when line is empty.
func status(ctx context.Context, store snapshot.Store, line string) (string, error) {
	latest, err := store.Latest(ctx)
	if err != nil {
		return "", err
	}
	if line == "" {
		return summary.Render(latest), nil
	}
	return summary.RenderLine(latest, line)
}
