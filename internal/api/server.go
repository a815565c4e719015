// Package api exposes the HTTP surface: document upload and management,
// the chat endpoint, health probes and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/corpus/internal/agent"
	"github.com/haasonsaas/corpus/internal/config"
	"github.com/haasonsaas/corpus/internal/observability"
	"github.com/haasonsaas/corpus/internal/rag/store"
	"github.com/haasonsaas/corpus/pkg/models"
)

// DocumentStore is the slice of the document store the handlers need.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, opts *store.ListOptions) (*models.DocumentPage, error)
	DeleteDocument(ctx context.Context, id string) error
}

// ObjectStore is the slice of the object store the handlers need.
type ObjectStore interface {
	ObjectKey(filename string) string
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// AgentRunner runs the chat graph for one user message.
type AgentRunner interface {
	Run(ctx context.Context, in agent.Input) agent.State
}

// AssistantStore persists assistant replies into chat sessions.
type AssistantStore interface {
	AppendAssistant(ctx context.Context, sessionID, text string) (*models.Message, error)
}

// Pinger reports database liveness. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps carries the server's collaborators.
type Deps struct {
	Documents DocumentStore
	Objects   ObjectStore
	Agent     AgentRunner
	Chat      AssistantStore
	DB        Pinger
}

// Server serves the HTTP API.
type Server struct {
	config  config.ServerConfig
	deps    Deps
	logger  *observability.Logger
	metrics *observability.Metrics
}

// New builds a Server. Documents, Objects, Agent and Chat are required;
// DB may be nil, in which case readyz skips the database probe.
func New(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Documents == nil {
		return nil, errors.New("api: document store is required")
	}
	if deps.Objects == nil {
		return nil, errors.New("api: object store is required")
	}
	if deps.Agent == nil {
		return nil, errors.New("api: agent is required")
	}
	if deps.Chat == nil {
		return nil, errors.New("api: chat store is required")
	}
	return &Server{
		config: cfg,
		deps:   deps,
		logger: observability.NewLogger(observability.LogConfig{}),
	}, nil
}

// WithLogger sets the logger.
func (s *Server) WithLogger(logger *observability.Logger) *Server {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithMetrics sets the metrics sink.
func (s *Server) WithMetrics(m *observability.Metrics) *Server {
	s.metrics = m
	return s
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware(), s.requestIDMiddleware(), s.requestLogMiddleware())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/readyz", s.handleReadyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	docs := r.Group("/api/documents")
	docs.POST("/upload", s.handleUploadDocument)
	docs.GET("", s.handleListDocuments)
	docs.GET("/:id", s.handleGetDocument)
	docs.DELETE("/:id", s.handleDeleteDocument)

	r.POST("/chat/messages", s.handleChatMessage)

	return r
}

// Run serves HTTP until ctx is cancelled, then drains within the
// configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.logger.Info(ctx, "starting http server", "addr", addr)

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info(context.Background(), "http server stopped")
	return nil
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.config.ShutdownTimeout > 0 {
		return s.config.ShutdownTimeout
	}
	return 30 * time.Second
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReadyz reports readiness: database reachable and bucket present.
func (s *Server) handleReadyz(c *gin.Context) {
	ctx := c.Request.Context()
	if s.deps.DB != nil {
		if err := s.deps.DB.PingContext(ctx); err != nil {
			s.logger.Warn(ctx, "readiness probe failed", "check", "database", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "check": "database"})
			return
		}
	}
	if err := s.deps.Objects.Ping(ctx); err != nil {
		s.logger.Warn(ctx, "readiness probe failed", "check", "object_store", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "check": "object_store"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
