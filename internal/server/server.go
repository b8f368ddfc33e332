// Package server exposes the HTTP and WebSocket surface: health and stats
// endpoints, the Prometheus scrape target, generated audio files, and the
// client WebSocket feed.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tankman61/VibeTrade/internal/broadcast"
	"github.com/Tankman61/VibeTrade/internal/config"
	"github.com/Tankman61/VibeTrade/internal/ingest"
	"github.com/Tankman61/VibeTrade/internal/logger"
	"github.com/Tankman61/VibeTrade/internal/models"
	"github.com/Tankman61/VibeTrade/internal/router"
)

// Pipeline is the router surface the HTTP layer needs.
type Pipeline interface {
	Statistics() router.Statistics
	ForceInterrupt() bool
	CurrentScore() models.CompositeRiskScore
	History() []models.CompositeRiskScore
}

// InterruptReader reads back persisted interrupts for the stats endpoint.
type InterruptReader interface {
	RecentInterrupts(limit int) ([]models.InterruptEvent, error)
}

// Server hosts the HTTP API and WebSocket endpoint.
type Server struct {
	cfg       *config.Config
	pipeline  Pipeline
	hub       *broadcast.Hub
	listeners []ingest.Listener
	store     InterruptReader
	gatherer  prometheus.Gatherer
	httpSrv   *http.Server
}

// New creates the server. store may be nil; /stats then omits interrupt
// history.
func New(cfg *config.Config, pipeline Pipeline, hub *broadcast.Hub, listeners []ingest.Listener, store InterruptReader, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		cfg:       cfg,
		pipeline:  pipeline,
		hub:       hub,
		listeners: listeners,
		store:     store,
		gatherer:  gatherer,
	}

	r := mux.NewRouter()
	r.Use(s.logMiddleware, corsMiddleware)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/test-interrupt", s.handleTestInterrupt).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWebSocket)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.PathPrefix("/audio/").Handler(http.StripPrefix("/audio/",
		http.FileServer(http.Dir(cfg.Generation.AudioDir))))

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logger.Info("HTTP server listening on %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes all client connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "risk-console",
		"endpoints": []string{
			"/healthz", "/stats", "/config", "/test-interrupt", "/metrics", "/ws", "/audio/",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	feeds := make([]models.ListenerStatus, 0, len(s.listeners))
	for _, l := range s.listeners {
		feeds = append(feeds, l.Status())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"feeds":  feeds,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"statistics":  s.pipeline.Statistics(),
		"connections": s.hub.Count(),
		"history":     s.pipeline.History(),
	}
	if s.store != nil {
		events, err := s.store.RecentInterrupts(20)
		if err != nil {
			logger.Warn("Failed to read interrupt history: %v", err)
		} else {
			resp["recent_interrupts"] = events
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleConfig reports tunables only; credentials never leave the process.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"interrupt_threshold": s.cfg.Interrupt.Threshold,
		"cooldown_seconds":    s.cfg.Interrupt.Cooldown.Seconds(),
		"window_size":         s.cfg.Risk.WindowSize,
		"weights": map[string]float64{
			string(models.SourceExchange):         s.cfg.Risk.ExchangeWeight,
			string(models.SourcePredictionMarket): s.cfg.Risk.PredictionMarketWeight,
			string(models.SourceSentiment):        s.cfg.Risk.SentimentWeight,
		},
		"roast_enabled": s.cfg.Generation.OpenAIAPIKey != "",
		"voice_enabled": s.cfg.Generation.ElevenLabsAPIKey != "",
	})
}

func (s *Server) handleTestInterrupt(w http.ResponseWriter, _ *http.Request) {
	fired := s.pipeline.ForceInterrupt()
	status := http.StatusOK
	if !fired {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, map[string]any{
		"fired": fired,
		"score": s.pipeline.CurrentScore().Value,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			// The recorder wrapper breaks http.Hijacker.
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		logger.Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
