// Package api serves the averaging state over HTTP: the latest snapshot,
// stored history, a chart, configuration and ADCP commands.
package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/watercolumn/internal/config"
	"github.com/banshee-data/watercolumn/internal/db"
	"github.com/banshee-data/watercolumn/internal/monitoring"
	"github.com/banshee-data/watercolumn/internal/serialmux"
	"github.com/banshee-data/watercolumn/internal/timeutil"
	"github.com/banshee-data/watercolumn/internal/units"
	"github.com/banshee-data/watercolumn/internal/watercolumn"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

var logf = monitoring.Tagged("api")

// Server holds the handlers' dependencies. The database is optional; history
// endpoints answer 503 without one.
type Server struct {
	proc  *watercolumn.Processor
	adcp  serialmux.SerialMuxInterface
	db    *db.DB
	units string
	clock timeutil.Clock
	ws    http.Handler
	save  func(*config.AveragingConfig) error

	// cfg is the full settings document; the processor only sees its
	// averaging part.
	mu  sync.Mutex
	cfg *config.AveragingConfig
}

// Option configures a Server.
type Option func(*Server)

// WithDB enables the history endpoints and the command log.
func WithDB(d *db.DB) Option {
	return func(s *Server) { s.db = d }
}

// WithUnits sets the default speed units for responses.
func WithUnits(u string) Option {
	return func(s *Server) { s.units = u }
}

// WithConfig seeds the settings returned by GET /api/config. Without it the
// processor's active configuration is used.
func WithConfig(c *config.AveragingConfig) Option {
	return func(s *Server) { s.cfg = c }
}

// WithClock sets the clock used to timestamp logged commands.
func WithClock(c timeutil.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithConfigSaver persists settings accepted by PUT /api/config.
func WithConfigSaver(save func(*config.AveragingConfig) error) Option {
	return func(s *Server) { s.save = save }
}

// WithLiveHandler mounts the live snapshot feed at /ws.
func WithLiveHandler(h http.Handler) Option {
	return func(s *Server) { s.ws = h }
}

func NewServer(proc *watercolumn.Processor, adcp serialmux.SerialMuxInterface, opts ...Option) *Server {
	s := &Server{
		proc:  proc,
		adcp:  adcp,
		units: units.MPS,
		clock: timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg == nil {
		s.cfg = config.FromWatercolumn(proc.Config())
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer, which the
// websocket upgrade needs for Hijack.
func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	code := strconv.Itoa(statusCode)
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + code + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + code + colorReset
	case statusCode >= 400:
		return colorBoldRed + code + colorReset
	default:
		return code
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/snapshot", s.showSnapshot)
	mux.HandleFunc("/api/bins", s.showBins)
	mux.HandleFunc("/api/reports", s.listReports)
	mux.HandleFunc("/api/chart", s.showChart)
	mux.HandleFunc("/api/ship/reset", s.resetShipMax)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/pinging/start", s.startPinging)
	mux.HandleFunc("/api/pinging/stop", s.stopPinging)
	mux.HandleFunc("/api/commands", s.listCommands)
	mux.HandleFunc("/command", s.sendCommandHandler)
	if s.ws != nil {
		mux.Handle("/ws", s.ws)
	}
	return mux
}

// requestUnits returns the units query parameter or the server default.
func (s *Server) requestUnits(r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, true
	}
	return u, units.IsValid(u)
}
