package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/davecgh/go-spew/spew"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/lilletrafic/subway-monitor/internal/clock"
	"github.com/lilletrafic/subway-monitor/internal/disruptions"
	"github.com/lilletrafic/subway-monitor/internal/logging"
	"github.com/lilletrafic/subway-monitor/internal/metrics"
	"github.com/lilletrafic/subway-monitor/internal/navitia"
	"github.com/lilletrafic/subway-monitor/internal/snapshot"
)

// ErrUpstreamUnavailable groups every problem with the Navitia response: transport
// failures, non-200 statuses, undecodable bodies and unusable datetimes.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// TrafficReportsFetcher is implemented by navitia.Client.
type TrafficReportsFetcher interface {
	TrafficReports(ctx context.Context) (*navitia.TrafficReports, error)
}

// Handler runs one fetch → transform → write cycle per invocation.
type Handler struct {
	fetcher TrafficReportsFetcher
	store   snapshot.Store
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Verbose dumps every written record at debug level.
	Verbose bool
}

func NewHandler(fetcher TrafficReportsFetcher, store snapshot.Store, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics) *Handler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Handler{
		fetcher: fetcher,
		store:   store,
		clock:   clk,
		logger:  logger,
		metrics: m,
	}
}

// Handle is the Lambda entry point. The event payload is ignored.
//
// Upstream problems are logged and end the invocation without a write and without an
// error. A failed write is returned so the invocation is marked failed.
func (h *Handler) Handle(ctx context.Context, _ json.RawMessage) (*snapshot.Record, error) {
	now := h.clock.Now()
	requestID := RequestID(ctx)

	logger := h.logger.With(
		slog.String("component", "subway_monitor"),
		slog.String("request_id", requestID))
	ctx = logging.WithLogger(ctx, logger)

	started := time.Now()
	reports, err := h.fetcher.TrafficReports(ctx)
	h.metrics.ObserveUpstream(time.Since(started))
	if err != nil {
		h.upstreamUnavailable(logger, err)
		return nil, nil
	}

	result, err := disruptions.Transform(ctx, reports)
	if err != nil {
		h.upstreamUnavailable(logger, err)
		return nil, nil
	}

	rec, err := snapshot.NewRecord(requestID, result.RequestDatetime, result.Lines, now)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot: %w", err)
	}

	if h.Verbose {
		logger.Debug("snapshot_record", slog.String("dump", spew.Sdump(rec)))
	}

	if err := h.store.Put(ctx, rec); err != nil {
		h.metrics.ObserveInvocation(metrics.OutcomeStoreFailed)
		logging.LogError(logger, "failed to write snapshot", err)
		return nil, err
	}

	h.metrics.ObserveInvocation(metrics.OutcomeWritten)
	attrs := []slog.Attr{slog.String("request_datetime", rec.RequestDatetime)}
	for _, lineID := range disruptions.MonitoredLines {
		count := len(rec.Messages(lineID))
		for i := 0; i < count; i++ {
			h.metrics.ObserveMessage(lineID)
		}
		attrs = append(attrs, slog.Int(lineID, count))
	}
	logging.LogOperation(logger, "snapshot_written", attrs...)
	logging.LogOperation(logger, "invocation_metrics", h.metrics.Attrs()...)

	return &rec, nil
}

func (h *Handler) upstreamUnavailable(logger *slog.Logger, err error) {
	h.metrics.ObserveInvocation(metrics.OutcomeUpstreamUnavailable)

	err = fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	var statusErr *navitia.StatusError
	if errors.As(err, &statusErr) {
		logging.LogError(logger, "Error occurred with request", err,
			slog.Int("status", statusErr.StatusCode),
			slog.Any("request_headers", statusErr.RedactedHeaders()))
	} else {
		logging.LogError(logger, "Error occurred with request", err)
	}
	logging.LogOperation(logger, "invocation_metrics", h.metrics.Attrs()...)
}

// RequestID returns the Lambda request id of the invocation, or a random id when the
// handler runs outside Lambda.
func RequestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.NewString()
}
