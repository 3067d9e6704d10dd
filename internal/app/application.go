package app

import (
	"io"
	"log/slog"

	"github.com/lilletrafic/subway-monitor/internal/appconf"
	"github.com/lilletrafic/subway-monitor/internal/clock"
	"github.com/lilletrafic/subway-monitor/internal/logging"
	"github.com/lilletrafic/subway-monitor/internal/metrics"
	"github.com/lilletrafic/subway-monitor/internal/monitor"
	"github.com/lilletrafic/subway-monitor/internal/navitia"
	"github.com/lilletrafic/subway-monitor/internal/snapshot"
)

// Application holds the dependencies built once at cold start and shared by every
// invocation of the process.
type Application struct {
	Config  appconf.Config
	Logger  *slog.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Navitia *navitia.Client
	Store   snapshot.Store
	Handler *monitor.Handler

	closers []io.Closer
}

// AddCloser registers a resource released by Close.
func (a *Application) AddCloser(c io.Closer) {
	a.closers = append(a.closers, c)
}

// Close releases every registered resource, last registered first.
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		logging.SafeCloseWithLogging(a.closers[i], a.Logger, "application_resource")
	}
	a.closers = nil
}
