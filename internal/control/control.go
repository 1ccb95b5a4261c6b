// Package control serves the agent's local HTTP API: on-demand log
// retrieval, manual cycle triggers, status and self metrics.
package control

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	agenterrors "github.com/Schera-ole/fleetagent/internal/errors"
	"github.com/Schera-ole/fleetagent/internal/logs"
	middlewareinternal "github.com/Schera-ole/fleetagent/internal/middleware"
	models "github.com/Schera-ole/fleetagent/internal/model"
	"github.com/Schera-ole/fleetagent/internal/scheduler"
)

// Cycles is the part of the scheduler the API drives.
type Cycles interface {
	Trigger() bool
	Status() scheduler.Status
}

// LogReader serves log tails.
type LogReader interface {
	GetLogs(lines int) (models.LogResult, error)
	DefaultLines() int
}

// SensorReader exposes the latest log sensor reading.
type SensorReader interface {
	State() logs.SensorState
}

type Deps struct {
	Cycles   Cycles
	Logs     LogReader
	Sensor   SensorReader
	Gatherer prometheus.Gatherer
	Logger   *zap.SugaredLogger
	// Limit bounds POST requests per second; zero means 5.
	Limit rate.Limit
}

type getLogsRequest struct {
	Lines *int `json:"lines"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Scheduler scheduler.Status  `json:"scheduler"`
	LogSensor *logs.SensorState `json:"log_sensor,omitempty"`
}

func Router(deps Deps) chi.Router {
	limit := deps.Limit
	if limit == 0 {
		limit = 5
	}
	limiter := rate.NewLimiter(limit, int(limit)+1)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middlewareinternal.LoggingMiddleware(deps.Logger))
	router.Use(middlewareinternal.GzipMiddleware)
	router.Use(middleware.StripSlashes)
	router.Use(middleware.Timeout(15 * time.Second))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		StatusHandler(w, r, deps)
	})
	if deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	router.Group(func(r chi.Router) {
		r.Use(middlewareinternal.RateLimit(limiter))
		r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
			TriggerHandler(w, r, deps.Cycles)
		})
		r.Post("/services/get_logs", func(w http.ResponseWriter, r *http.Request) {
			GetLogsHandler(w, r, deps.Logs, deps.Logger)
		})
	})
	return router
}

func StatusHandler(w http.ResponseWriter, r *http.Request, deps Deps) {
	resp := statusResponse{Scheduler: deps.Cycles.Status()}
	if deps.Sensor != nil {
		st := deps.Sensor.State()
		resp.LogSensor = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func TriggerHandler(w http.ResponseWriter, r *http.Request, cycles Cycles) {
	started := cycles.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": started})
}

func GetLogsHandler(w http.ResponseWriter, r *http.Request, reader LogReader, logger *zap.SugaredLogger) {
	var req getLogsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	lines := reader.DefaultLines()
	if req.Lines != nil {
		lines = *req.Lines
	}

	result, err := reader.GetLogs(lines)
	if err != nil {
		var accessErr *agenterrors.LogAccessError
		if errors.As(err, &accessErr) {
			logger.Warnw("log file not readable", "path", accessErr.Path, "error", accessErr.Err)
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewServer returns the HTTP server for addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
