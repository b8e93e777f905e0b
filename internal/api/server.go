// Package api serves valuations over HTTP next to the Zeebe workers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "house-price-workers/internal/common/errors"
	"house-price-workers/internal/common/logger"
	"house-price-workers/internal/history"
	"house-price-workers/internal/pricing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// Valuer is the part of *pricing.Predictor the API needs.
type Valuer interface {
	Predict(ctx context.Context, f pricing.HouseFeatures) (*pricing.Valuation, error)
	Schema() (pricing.ExpectedSchema, error)
	Models() ([]pricing.LoadedModel, error)
}

type Options struct {
	Address  string
	Valuer   Valuer
	Recorder history.Recorder // optional
	Reader   history.Reader   // optional; GET by id answers 404 without it
	Limiter  *RateLimiter     // optional
	Ready    func() bool      // optional; /ready is always 200 without it
	Logger   logger.Logger

	// TrustForwardedFor keys the rate limiter on X-Forwarded-For instead of the peer address.
	TrustForwardedFor bool
}

type Server struct {
	valuer   Valuer
	recorder history.Recorder
	reader   history.Reader
	limiter  *RateLimiter
	ready    func() bool
	logger   logger.Logger
	http     *http.Server

	trustForwardedFor bool
}

func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = history.Nop{}
	}

	s := &Server{
		valuer:   opts.Valuer,
		recorder: recorder,
		reader:   opts.Reader,
		limiter:  opts.Limiter,
		ready:    opts.Ready,
		logger:   log.WithFields(map[string]interface{}{"component": "api"}),

		trustForwardedFor: opts.TrustForwardedFor,
	}
	s.http = &http.Server{
		Addr:              opts.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Handler returns the routed handler with metrics and rate limiting applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	var create http.Handler = http.HandlerFunc(s.createValuation)
	if s.limiter != nil {
		create = rateLimit(s.limiter, s.trustForwardedFor, s.logger, create)
	}
	mux.Handle("POST /api/v1/valuations", create)
	mux.HandleFunc("GET /api/v1/valuations/{id}", s.getValuation)
	mux.HandleFunc("GET /api/v1/schema", s.getSchema)
	mux.HandleFunc("GET /api/v1/models", s.listModels)

	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /ready", s.readiness)
	mux.Handle("GET /metrics", promhttp.Handler())

	return instrument(mux)
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("API listening", map[string]interface{}{"address": s.http.Addr})
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) createValuation(w http.ResponseWriter, r *http.Request) {
	var vars map[string]interface{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&vars); err != nil {
		writeError(w, apperrors.NewParseError(fmt.Errorf("decode request body: %w", err)))
		return
	}

	features, err := pricing.DecodeFeatures(vars)
	if err != nil {
		writeError(w, err)
		return
	}

	v, err := s.valuer.Predict(r.Context(), features)
	if err != nil {
		s.logger.Warn("valuation failed", map[string]interface{}{
			"outcome": pricing.Outcome(err),
			"error":   err.Error(),
		})
		writeError(w, err)
		return
	}

	if err := s.recorder.Record(r.Context(), v); err != nil {
		s.logger.Warn("valuation history not written", map[string]interface{}{
			"valuationId": v.ID,
			"error":       err.Error(),
		})
	}

	w.Header().Set("Location", "/api/v1/valuations/"+v.ID)
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) getValuation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.reader == nil {
		writeError(w, apperrors.NewValuationNotFoundError(id))
		return
	}

	entry, err := s.reader.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.valuer.Schema()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"columns": schema})
}

type modelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Kind        string `json:"kind"`
	Version     string `json:"version,omitempty"`
	Note        string `json:"note,omitempty"`
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.valuer.Models()
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]modelInfo, 0, len(models))
	for _, m := range models {
		out = append(out, modelInfo{
			ID:          m.Entry.ID,
			DisplayName: m.Entry.Label(),
			Kind:        m.Entry.Kind,
			Version:     m.Entry.Version,
			Note:        m.Entry.Note,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": out})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "models not loaded",
			"time":   time.Now().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}
