package snapshotdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"github.com/lilletrafic/subway-monitor/internal/appconf"
	"github.com/lilletrafic/subway-monitor/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    request_id       TEXT PRIMARY KEY,
    request_datetime TEXT NOT NULL,
    disruptions      TEXT NOT NULL,
    expiration_time  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_request_datetime ON snapshots (request_datetime);
`

// Client is a local snapshot store backed by SQLite.
type Client struct {
	config  Config
	DB      *sql.DB
	Queries *Queries
}

func NewClient(config Config) (*Client, error) {
	if config.Env == appconf.Test && config.DBPath != ":memory:" {
		return nil, fmt.Errorf("test database must use in-memory storage, got %q", config.DBPath)
	}
	if config.DBPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if config.verbose {
		logging.LogOperation(slog.Default().With(slog.String("component", "snapshotdb")),
			"snapshot_database_ready",
			slog.String("path", config.DBPath))
	}

	return &Client{
		config:  config,
		DB:      db,
		Queries: &Queries{db: db},
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// Queries holds the hand-written statements over the snapshots table.
type Queries struct {
	db *sql.DB
}
