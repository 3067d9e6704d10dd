package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lilletrafic/subway-monitor/internal/disruptions"
)

// TimeToLive is how long a record is kept before the store expires it.
const TimeToLive = 365 * 24 * time.Hour

var ErrInvalidRecord = errors.New("invalid snapshot record")

// Record is the item persisted once per invocation, keyed by RequestID.
type Record struct {
	RequestID       string              `dynamodbav:"RequestId" json:"RequestId"`
	RequestDatetime string              `dynamodbav:"RequestDatetime" json:"RequestDatetime"`
	Disruptions     map[string][]string `dynamodbav:"Disruptions" json:"Disruptions"`
	ExpirationTime  int64               `dynamodbav:"ExpirationTime" json:"ExpirationTime"`
}

// Store persists snapshot records. Put is an unconditional insert-or-replace.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Latest(ctx context.Context) (*Record, error)
}

// NewRecord builds the record for one invocation. Monitored lines missing from lines
// are stored with an empty list; any other line id is rejected.
func NewRecord(requestID, requestDatetime string, lines disruptions.LineMessages, now time.Time) (Record, error) {
	if requestID == "" {
		return Record{}, fmt.Errorf("%w: empty request id", ErrInvalidRecord)
	}
	if requestDatetime == "" {
		return Record{}, fmt.Errorf("%w: empty request datetime", ErrInvalidRecord)
	}

	perLine := make(map[string][]string, len(disruptions.MonitoredLines))
	for lineID, messages := range lines {
		if !disruptions.IsMonitored(lineID) {
			return Record{}, fmt.Errorf("%w: unexpected line %q", ErrInvalidRecord, lineID)
		}
		perLine[lineID] = append([]string{}, messages...)
	}
	for _, lineID := range disruptions.MonitoredLines {
		if _, ok := perLine[lineID]; !ok {
			perLine[lineID] = []string{}
		}
	}

	return Record{
		RequestID:       requestID,
		RequestDatetime: requestDatetime,
		Disruptions:     perLine,
		ExpirationTime:  now.Add(TimeToLive).Unix(),
	}, nil
}

// Messages returns the messages recorded for lineID.
func (r Record) Messages(lineID string) []string {
	return r.Disruptions[lineID]
}

// HasDisruptions reports whether any monitored line has at least one message.
func (r Record) HasDisruptions() bool {
	for _, lineID := range disruptions.MonitoredLines {
		if len(r.Disruptions[lineID]) > 0 {
			return true
		}
	}
	return false
}

// newer orders records by RequestDatetime, then ExpirationTime.
func newer(a, b Record) bool {
	if a.RequestDatetime != b.RequestDatetime {
		return a.RequestDatetime > b.RequestDatetime
	}
	return a.ExpirationTime > b.ExpirationTime
}
