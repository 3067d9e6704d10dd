package monitor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lilletrafic/subway-monitor/internal/appconf"
	"github.com/lilletrafic/subway-monitor/internal/clock"
	"github.com/lilletrafic/subway-monitor/internal/disruptions"
	"github.com/lilletrafic/subway-monitor/internal/logging"
	"github.com/lilletrafic/subway-monitor/internal/metrics"
	"github.com/lilletrafic/subway-monitor/internal/navitia"
	"github.com/lilletrafic/subway-monitor/internal/snapshot"
	"github.com/lilletrafic/subway-monitor/snapshotdb"
)

var invocationTime = time.Date(2023, 8, 1, 12, 34, 56, 0, time.UTC)

type fakeFetcher struct {
	reports *navitia.TrafficReports
	err     error
	calls   int
}

func (f *fakeFetcher) TrafficReports(context.Context) (*navitia.TrafficReports, error) {
	f.calls++
	return f.reports, f.err
}

type memoryStore struct {
	records []snapshot.Record
	err     error
}

func (s *memoryStore) Put(_ context.Context, rec snapshot.Record) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memoryStore) Latest(context.Context) (*snapshot.Record, error) {
	if len(s.records) == 0 {
		return nil, nil
	}
	rec := s.records[len(s.records)-1]
	return &rec, nil
}

func lambdaContext(requestID string) context.Context {
	return lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: requestID})
}

func newTestHandler(fetcher TrafficReportsFetcher, store snapshot.Store) (*Handler, *bytes.Buffer, *metrics.Metrics) {
	var buf bytes.Buffer
	m := metrics.New()
	h := NewHandler(fetcher, store, clock.NewMockClock(invocationTime), logging.NewStructuredLogger(&buf, slog.LevelDebug), m)
	return h, &buf, m
}

func noServiceOnME1(texts ...string) navitia.Disruption {
	d := navitia.Disruption{
		ID:              "d1",
		Severity:        navitia.Severity{Effect: disruptions.NoService},
		ImpactedObjects: []navitia.ImpactedObject{{PtObject: navitia.PtObject{ID: disruptions.LineME1}}},
	}
	for _, text := range texts {
		d.Messages = append(d.Messages, navitia.Message{Text: text})
	}
	return d
}

func TestHandle_WritesSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{reports: &navitia.TrafficReports{
		Disruptions: []navitia.Disruption{noServiceOnME1("court", "Ligne 1 interrompue", "moyen")},
		Context:     navitia.Context{CurrentDatetime: "2023-08-01T12:34:56"},
	}}
	store := &memoryStore{}
	h, logs, m := newTestHandler(fetcher, store)

	rec, err := h.Handle(lambdaContext("req-1"), nil)
	require.NoError(t, err)
	require.NotNil(t, rec)

	require.Len(t, store.records, 1)
	assert.Equal(t, *rec, store.records[0])

	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, "2023-08-01T12:34:00", rec.RequestDatetime)
	assert.Equal(t, invocationTime.Unix()+31536000, rec.ExpirationTime)
	assert.Equal(t, []string{"Ligne 1 interrompue"}, rec.Messages(disruptions.LineME1))
	assert.Equal(t, []string{}, rec.Messages(disruptions.LineME2))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Invocations.WithLabelValues(metrics.OutcomeWritten)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesSelected.WithLabelValues(disruptions.LineME1)))
	assert.Contains(t, logs.String(), `"msg":"disruption_on_line"`)
	assert.Contains(t, logs.String(), `"request_id":"req-1"`)
}

func TestHandle_EmptyDisruptions(t *testing.T) {
	fetcher := &fakeFetcher{reports: &navitia.TrafficReports{
		Context: navitia.Context{CurrentDatetime: "20230801T120059"},
	}}
	store := &memoryStore{}
	h, _, _ := newTestHandler(fetcher, store)

	rec, err := h.Handle(lambdaContext("req-2"), nil)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, map[string][]string{
		disruptions.LineME1: {},
		disruptions.LineME2: {},
	}, rec.Disruptions)
	assert.Equal(t, "20230801T120000", rec.RequestDatetime)
}

func TestHandle_UpstreamUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		rep  *navitia.TrafficReports
	}{
		{"non-200 status", &navitia.StatusError{StatusCode: http.StatusServiceUnavailable, RequestHeaders: http.Header{"Authorization": {"secret"}}}, nil},
		{"transport error", errors.New("dial tcp: connection refused"), nil},
		{"malformed body", navitia.ErrMalformedResponse, nil},
		{"missing datetime", navitia.ErrMissingDatetime, nil},
		{"unusable datetime", nil, &navitia.TrafficReports{Context: navitia.Context{CurrentDatetime: "5"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memoryStore{}
			h, logs, m := newTestHandler(&fakeFetcher{reports: tt.rep, err: tt.err}, store)

			rec, err := h.Handle(lambdaContext("req-3"), nil)
			assert.NoError(t, err)
			assert.Nil(t, rec)
			assert.Empty(t, store.records)

			assert.Equal(t, 1.0, testutil.ToFloat64(m.Invocations.WithLabelValues(metrics.OutcomeUpstreamUnavailable)))
			assert.Contains(t, logs.String(), "Error occurred with request")
			assert.NotContains(t, logs.String(), "secret")
		})
	}
}

func TestHandle_StoreFailurePropagates(t *testing.T) {
	fetcher := &fakeFetcher{reports: &navitia.TrafficReports{Context: navitia.Context{CurrentDatetime: "20230801T120000"}}}
	storeErr := errors.New("ResourceNotFoundException")
	h, _, m := newTestHandler(fetcher, &memoryStore{err: storeErr})

	rec, err := h.Handle(lambdaContext("req-4"), nil)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Invocations.WithLabelValues(metrics.OutcomeStoreFailed)))
}

func TestHandle_VerboseDumpsRecord(t *testing.T) {
	fetcher := &fakeFetcher{reports: &navitia.TrafficReports{Context: navitia.Context{CurrentDatetime: "20230801T120000"}}}
	h, logs, _ := newTestHandler(fetcher, &memoryStore{})
	h.Verbose = true

	_, err := h.Handle(lambdaContext("req-5"), nil)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), `"msg":"snapshot_record"`)
	assert.Contains(t, logs.String(), "RequestDatetime")
}

func TestRequestID(t *testing.T) {
	assert.Equal(t, "req-6", RequestID(lambdaContext("req-6")))

	generated := RequestID(context.Background())
	assert.Len(t, generated, 36)
	assert.NotEqual(t, generated, RequestID(context.Background()))
}

func TestHandle_EndToEndWithNavitiaAndSQLite(t *testing.T) {
	const body = `{
	  "disruptions": [
	    {
	      "id": "d1",
	      "severity": {"effect": "NO_SERVICE"},
	      "impacted_objects": [{"pt_object": {"id": "line:TRA:ME2"}}, {"pt_object": {"id": "line:TRA:T"}}],
	      "messages": [
	        {"text": "12345", "channel": {"name": "web et mobile"}},
	        {"text": "123456789012", "channel": {"name": "email"}},
	        {"text": "12345678", "channel": {"name": "web et mobile"}}
	      ]
	    },
	    {
	      "id": "d2",
	      "severity": {"effect": "REDUCED_SERVICE"},
	      "impacted_objects": [{"pt_object": {"id": "line:TRA:ME1"}}],
	      "messages": [{"text": "Ralentissements", "channel": {"name": "web et mobile"}}]
	    }
	  ],
	  "context": {"current_datetime": "20230801T123456"}
	}`

	cfg := appconf.Config{NavitiaURL: "unused", Coverage: appconf.DefaultCoverage}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != cfg.TrafficReportsPath() || r.Header.Get("Authorization") != "token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	db, err := snapshotdb.NewClient(snapshotdb.NewConfig(":memory:", appconf.Test, false))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	client := navitia.NewClient(srv.URL, cfg.TrafficReportsPath(), "token")
	h, _, _ := newTestHandler(client, db)

	rec, err := h.Handle(lambdaContext("req-7"), nil)
	require.NoError(t, err)
	require.NotNil(t, rec)

	latest, err := db.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, *rec, *latest)
	assert.Equal(t, []string{"123456789012"}, latest.Messages(disruptions.LineME2))
	assert.Equal(t, []string{}, latest.Messages(disruptions.LineME1))
	assert.Equal(t, "20230801T123400", latest.RequestDatetime)

	badClient := navitia.NewClient(srv.URL, cfg.TrafficReportsPath(), "wrong")
	h2, logs, _ := newTestHandler(badClient, db)
	rec, err = h2.Handle(lambdaContext("req-8"), nil)
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.True(t, strings.Contains(logs.String(), `"status":403`))

	n, err := db.Queries.CountSnapshots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
