package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/lilletrafic/subway-monitor/internal/appconf"
)

func main() {
	var opts BuildOptions
	var interval time.Duration

	// Flags only matter outside Lambda
	flag.StringVar(&opts.DataPath, "data-path", "", "Path to a local SQLite snapshot database (empty: use DynamoDB)")
	flag.DurationVar(&interval, "interval", 0, "Poll Navitia on this interval instead of running once (local mode only)")
	flag.Parse()

	cfg, err := appconf.LoadFromEnv()
	if err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	coreApp, err := BuildApplication(*cfg, opts)
	if err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	if runningInLambda() {
		lambda.Start(coreApp.Handler.Handle)
		return
	}

	err = RunLocal(coreApp, interval)
	coreApp.Close()
	if err != nil {
		coreApp.Logger.Error("local run failed", "error", err)
		os.Exit(1)
	}
}

func runningInLambda() bool {
	return os.Getenv("AWS_LAMBDA_RUNTIME_API") != ""
}
