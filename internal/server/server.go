// Package server hosts the ModelZoo HTTP daemon: the REST API, streaming
// chat transports and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/018kpmanoj/ModelZoo/internal/chat"
	"github.com/018kpmanoj/ModelZoo/internal/config"
	"github.com/018kpmanoj/ModelZoo/internal/llm/configbuilder"
	"github.com/018kpmanoj/ModelZoo/internal/observability"
	"github.com/018kpmanoj/ModelZoo/internal/orchestrator"
	"github.com/018kpmanoj/ModelZoo/internal/store"
)

// Server wires the store, orchestrator, providers and chat service behind
// the HTTP API.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	svc      *chat.Service
	metrics  *observability.Metrics
	mockMode bool
}

// NewServer constructs a daemon instance, opening the database and building
// the provider set.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry, err := BuildRegistry(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build registry: %w", err)
	}

	providers, err := configbuilder.Build(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build providers: %w", err)
	}
	if providers.MockMode {
		logger.Warn("running in mock mode, provider credentials missing")
	}

	orch := orchestrator.New(registry, orchestrator.Lexicon{
		High:   cfg.Keywords.High,
		Medium: cfg.Keywords.Medium,
		Low:    cfg.Keywords.Low,
	})

	metrics := observability.NewMetrics()
	svc := chat.NewService(st, orch, providers.Providers, cfg.Chat, logger, metrics)

	return &Server{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		svc:      svc,
		metrics:  metrics,
		mockMode: providers.MockMode,
	}, nil
}

// BuildRegistry converts the configured model map into an orchestrator
// registry, high tier first so listing order is stable.
func BuildRegistry(cfg *config.Config) (*orchestrator.Registry, error) {
	byTier := map[orchestrator.Tier][]orchestrator.ModelDescriptor{}
	for id, m := range cfg.Models {
		byTier[orchestrator.Tier(m.Tier)] = append(byTier[orchestrator.Tier(m.Tier)], orchestrator.ModelDescriptor{
			ID:                  id,
			Provider:            m.Provider,
			Deployment:          m.Deployment,
			DisplayName:         m.DisplayName,
			Description:         m.Description,
			MaxTokens:           m.MaxTokens,
			Capabilities:        m.Capabilities,
			ComplexityThreshold: m.ComplexityThreshold,
			CostPer1KTokens:     m.CostPer1KTokens,
			Tier:                orchestrator.Tier(m.Tier),
		})
	}

	ordered := append(byTier[orchestrator.TierHigh], byTier[orchestrator.TierLow]...)
	return orchestrator.NewRegistry(ordered)
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// error.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting modelzoo daemon",
			zap.String("addr", s.cfg.Server.Addr),
			zap.String("transport", s.transport()),
			zap.Bool("mock_mode", s.mockMode))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down modelzoo daemon")
	case err := <-errCh:
		s.store.Close()
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.store.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return s.store.Close()
}

// Handler builds the full route table wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/models", s.handleListModels)
	mux.HandleFunc("GET /api/models/{id}", s.handleGetModel)

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PATCH /api/sessions/{id}", s.handleRenameSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)

	mux.HandleFunc("POST /api/feedback", s.handleCreateFeedback)
	mux.HandleFunc("GET /api/feedback/stats", s.handleFeedbackStats)
	mux.HandleFunc("GET /api/sessions/{id}/feedback", s.handleSessionFeedback)
	mux.HandleFunc("GET /api/messages/{id}/suggestions", s.handleMessageSuggestions)

	return s.withCORS(s.withRequestLog(mux))
}

func (s *Server) transport() string {
	if strings.EqualFold(strings.TrimSpace(s.cfg.Server.Transport), "ndjson") {
		return "ndjson"
	}
	return "sse"
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}
	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
