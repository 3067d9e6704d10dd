package snapshotdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/lilletrafic/subway-monitor/internal/snapshot"
)

var _ snapshot.Store = (*Client)(nil)

// SnapshotRow is a row of the snapshots table.
type SnapshotRow struct {
	RequestID       string
	RequestDatetime string
	Disruptions     string
	ExpirationTime  int64
}

const upsertSnapshot = `
INSERT OR REPLACE INTO snapshots (
    request_id, request_datetime, disruptions, expiration_time
) VALUES (?, ?, ?, ?)
`

// UpsertSnapshot inserts a row, replacing any row with the same request id.
func (q *Queries) UpsertSnapshot(ctx context.Context, arg SnapshotRow) error {
	_, err := q.db.ExecContext(ctx, upsertSnapshot,
		arg.RequestID,
		arg.RequestDatetime,
		arg.Disruptions,
		arg.ExpirationTime,
	)
	return err
}

const getSnapshot = `
SELECT request_id, request_datetime, disruptions, expiration_time
FROM snapshots
WHERE request_id = ?
`

func (q *Queries) GetSnapshot(ctx context.Context, requestID string) (SnapshotRow, error) {
	row := q.db.QueryRowContext(ctx, getSnapshot, requestID)
	var i SnapshotRow
	err := row.Scan(
		&i.RequestID,
		&i.RequestDatetime,
		&i.Disruptions,
		&i.ExpirationTime,
	)
	return i, err
}

const getLatestSnapshot = `
SELECT request_id, request_datetime, disruptions, expiration_time
FROM snapshots
ORDER BY request_datetime DESC, expiration_time DESC
LIMIT 1
`

func (q *Queries) GetLatestSnapshot(ctx context.Context) (SnapshotRow, error) {
	row := q.db.QueryRowContext(ctx, getLatestSnapshot)
	var i SnapshotRow
	err := row.Scan(
		&i.RequestID,
		&i.RequestDatetime,
		&i.Disruptions,
		&i.ExpirationTime,
	)
	return i, err
}

const deleteExpiredSnapshots = `
DELETE FROM snapshots
WHERE expiration_time <= ?
`

// DeleteExpiredSnapshots removes rows whose expiration time has passed and returns how many.
func (q *Queries) DeleteExpiredSnapshots(ctx context.Context, now int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteExpiredSnapshots, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countSnapshots = `SELECT COUNT(*) FROM snapshots`

func (q *Queries) CountSnapshots(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countSnapshots).Scan(&n)
	return n, err
}

// Put implements snapshot.Store.
func (c *Client) Put(ctx context.Context, rec snapshot.Record) error {
	encoded, err := json.Marshal(rec.Disruptions)
	if err != nil {
		return fmt.Errorf("failed to encode disruptions: %w", err)
	}
	err = c.Queries.UpsertSnapshot(ctx, SnapshotRow{
		RequestID:       rec.RequestID,
		RequestDatetime: rec.RequestDatetime,
		Disruptions:     string(encoded),
		ExpirationTime:  rec.ExpirationTime,
	})
	if err != nil {
		return fmt.Errorf("failed to store snapshot %s: %w", rec.RequestID, err)
	}
	return nil
}

// Get returns the record stored under requestID, or nil if there is none.
func (c *Client) Get(ctx context.Context, requestID string) (*snapshot.Record, error) {
	row, err := c.Queries.GetSnapshot(ctx, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", requestID, err)
	}
	return row.record()
}

// Latest implements snapshot.Store.
func (c *Client) Latest(ctx context.Context) (*snapshot.Record, error) {
	row, err := c.Queries.GetLatestSnapshot(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	return row.record()
}

// DeleteExpired stands in for the key-value store's own TTL on local databases.
func (c *Client) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := c.Queries.DeleteExpiredSnapshots(ctx, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired snapshots: %w", err)
	}
	return n, nil
}

func (r SnapshotRow) record() (*snapshot.Record, error) {
	var perLine map[string][]string
	if err := json.Unmarshal([]byte(r.Disruptions), &perLine); err != nil {
		return nil, fmt.Errorf("failed to decode disruptions of %s: %w", r.RequestID, err)
	}
	return &snapshot.Record{
		RequestID:       r.RequestID,
		RequestDatetime: r.RequestDatetime,
		Disruptions:     perLine,
		ExpirationTime:  r.ExpirationTime,
	}, nil
}
