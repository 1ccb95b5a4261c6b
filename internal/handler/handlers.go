// Package handler serves the reference collector's HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Schera-ole/fleetagent/internal/config"
	"github.com/Schera-ole/fleetagent/internal/delivery"
	agenterrors "github.com/Schera-ole/fleetagent/internal/errors"
	middlewareinternal "github.com/Schera-ole/fleetagent/internal/middleware"
	models "github.com/Schera-ole/fleetagent/internal/model"
	"github.com/Schera-ole/fleetagent/internal/payload"
	"github.com/Schera-ole/fleetagent/internal/service"
)

type ackResponse struct {
	Ack string `json:"ack"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type latestResponse struct {
	Key        string         `json:"key"`
	ReceivedAt time.Time      `json:"received_at"`
	Payload    models.Payload `json:"payload"`
}

func Router(
	payloadService *service.PayloadService,
	logger *zap.SugaredLogger,
	config *config.ServerConfig,
) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middlewareinternal.LoggingMiddleware(logger))
	router.Use(middlewareinternal.GzipMiddleware)
	router.Use(middleware.StripSlashes)
	router.Use(middleware.Timeout(15 * time.Second))

	router.Get(delivery.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		PingHandler(w, r, payloadService, logger)
	})
	router.Group(func(r chi.Router) {
		r.Use(middlewareinternal.BearerAuth(config.APIToken))
		r.Post(delivery.MetricsPath, func(w http.ResponseWriter, r *http.Request) {
			MetricsHandler(w, r, payloadService, logger, config)
		})
		r.Get("/api/instances", func(w http.ResponseWriter, r *http.Request) {
			InstancesHandler(w, r, payloadService, logger)
		})
		r.Get("/api/instances/{id}/latest", func(w http.ResponseWriter, r *http.Request) {
			LatestHandler(w, r, payloadService, logger)
		})
	})
	return router
}

// MetricsHandler accepts one payload. The signature covers the body as
// sent, before decompression.
func MetricsHandler(
	w http.ResponseWriter,
	r *http.Request,
	payloadService *service.PayloadService,
	logger *zap.SugaredLogger,
	config *config.ServerConfig,
) {
	body, err := ReadRequestBody(w, r)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	if err := VerifyRequestHash(body, r.Header.Get(delivery.HeaderSignature), config.SigningKey); err != nil {
		logger.Warnw("payload signature rejected", "error", err, "remote", remoteIP(r))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
		body, err = DecompressBody(body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}

	codec, err := payload.CodecForContentType(r.Header.Get("Content-Type"))
	if err != nil {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: err.Error()})
		return
	}
	var p models.Payload
	if err := codec.Unmarshal(body, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "decode payload: " + err.Error()})
		return
	}

	ack, err := payloadService.Accept(r.Context(), r.Header.Get(delivery.HeaderIdempotency), p, remoteIP(r))
	switch {
	case errors.Is(err, agenterrors.ErrUnsupportedSchema), errors.Is(err, agenterrors.ErrInvalidPayload):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case err != nil:
		logger.Errorw("payload not stored", "error", err, "instance_id", p.InstanceID)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage error"})
		return
	}

	logger.Infow("payload accepted",
		"instance_id", p.InstanceID,
		"sets", len(p.MetricSets),
		"key", ack,
	)
	writeJSON(w, http.StatusOK, ackResponse{Ack: ack})
}

func InstancesHandler(w http.ResponseWriter, r *http.Request, payloadService *service.PayloadService, logger *zap.SugaredLogger) {
	instances, err := payloadService.Instances(r.Context())
	if err != nil {
		logger.Errorw("listing instances failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage error"})
		return
	}
	writeJSON(w, http.StatusOK, instances)
}

func LatestHandler(w http.ResponseWriter, r *http.Request, payloadService *service.PayloadService, logger *zap.SugaredLogger) {
	rec, err := payloadService.Latest(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, agenterrors.ErrPayloadNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		logger.Errorw("loading latest payload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage error"})
		return
	}
	writeJSON(w, http.StatusOK, latestResponse{Key: rec.Key, ReceivedAt: rec.ReceivedAt, Payload: rec.Payload})
}

func PingHandler(w http.ResponseWriter, r *http.Request, payloadService *service.PayloadService, logger *zap.SugaredLogger) {
	if err := payloadService.Ping(r.Context()); err != nil {
		logger.Errorw("storage ping failed", "error", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
