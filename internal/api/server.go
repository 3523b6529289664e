// Package api serves the feature store over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/banshee-data/mchgeo/internal/db"
	"github.com/banshee-data/mchgeo/internal/featurestore"
	"github.com/banshee-data/mchgeo/internal/httputil"
	"github.com/banshee-data/mchgeo/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// RunLister is the part of the snapshot database the API reads.
type RunLister interface {
	Runs(ctx context.Context, limit int) ([]db.Run, error)
}

type Server struct {
	store   atomic.Pointer[featurestore.Store]
	runs    RunLister
	degrees bool
}

// NewServer serves store. runs may be nil when no snapshot database is
// configured. degrees selects the default unit of the stored angles.
func NewServer(store *featurestore.Store, runs RunLister, degrees bool) *Server {
	s := &Server{runs: runs, degrees: degrees}
	s.store.Store(store)
	return s
}

// angleUnit is the unit the stored angles are expressed in.
func (s *Server) angleUnit() string {
	if s.degrees {
		return units.Degrees
	}
	return units.Radians
}

// Store returns the store currently served.
func (s *Server) Store() *featurestore.Store {
	return s.store.Load()
}

// SetStore swaps the served store. In-flight requests finish against the
// store they started with.
func (s *Server) SetStore(store *featurestore.Store) {
	s.store.Store(store)
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

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux registers the API routes on a new mux.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/deids", s.listIDs)
	mux.HandleFunc("GET /api/features", s.listFeatures)
	mux.HandleFunc("GET /api/de/{deid}", s.showFeature)
	mux.HandleFunc("GET /api/de/{deid}/polygon", s.showPolygon)
	mux.HandleFunc("GET /api/de/{deid}/transformation", s.showTransformation)
	mux.HandleFunc("GET /api/de/{deid}/offset", s.showOffset)
	mux.HandleFunc("GET /api/de/{deid}/matrix", s.showMatrix)
	mux.HandleFunc("GET /api/chambers/{chamber}/plot", s.plotChamber)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /charts/offsets", s.offsetsChart)
}

// writeLookupError maps store errors onto HTTP statuses.
func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, featurestore.ErrInvalidIdentifier):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, featurestore.ErrFeatureNotFound):
		httputil.NotFound(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

// pathID parses the {deid} path value. Non-numeric ids are reported the
// same way as unknown ones.
func pathID(r *http.Request) (int, error) {
	raw := r.PathValue("deid")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is %w", raw, featurestore.ErrInvalidIdentifier)
	}
	return id, nil
}

// boolParam reads a boolean query parameter; absent means def.
func boolParam(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid '%s' parameter", name)
	}
	return v, nil
}
