// Package agent runs the retrieval-augmented chat flow as a directed graph
// of state-transforming nodes.
//
// The graph is linear with short-circuit edges to Fallback:
//
//	Host -> InputGuard -> Paraphrase -> Retriever -> ContextBuilder -> OutputGuard -> END
//
// InputGuard routes to Fallback when the prompt is malicious, OutputGuard
// when the answer is risky, and every node routes to Fallback when it
// records an error or leaves a required field empty. Fallback is the only
// node that writes FinalResponse.
package agent

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/corpus/internal/guard"
	"github.com/haasonsaas/corpus/internal/llm"
	"github.com/haasonsaas/corpus/internal/observability"
	"github.com/haasonsaas/corpus/pkg/models"
)

// ChatStore persists conversation sessions and messages.
type ChatStore interface {
	// CreateOrAppend stores a user message, creating the session when
	// sessionID is empty. Foreign or unknown sessions are rejected.
	CreateOrAppend(ctx context.Context, userID, sessionID, text string) (string, *models.Message, error)

	// History returns up to limit messages in chronological order.
	History(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
}

// ContextRetriever resolves search statements to relevant document chunks.
type ContextRetriever interface {
	Retrieve(ctx context.Context, statements []string) []string
}

// Config holds the agent graph configuration.
type Config struct {
	// HistoryLimit caps how many messages Host loads into state.
	// Default: 50
	HistoryLimit int `yaml:"history_limit"`
}

// DefaultConfig returns the default graph configuration.
func DefaultConfig() *Config {
	return &Config{HistoryLimit: 50}
}

// Graph wires the chat nodes to their dependencies. All dependencies are
// injected at construction; the graph itself is stateless and safe for
// concurrent runs.
type Graph struct {
	chat        ChatStore
	inputGuard  guard.Checker
	outputGuard guard.Checker
	retriever   ContextRetriever
	llm         llm.Provider

	config  *Config
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// New creates an agent graph. A nil cfg uses defaults.
func New(chatStore ChatStore, inputGuard, outputGuard guard.Checker, ret ContextRetriever, provider llm.Provider, cfg *Config) *Graph {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	return &Graph{
		chat:        chatStore,
		inputGuard:  inputGuard,
		outputGuard: outputGuard,
		retriever:   ret,
		llm:         provider,
		config:      cfg,
		logger:      observability.NewLogger(observability.LogConfig{}),
	}
}

// WithLogger sets the logger.
func (g *Graph) WithLogger(logger *observability.Logger) *Graph {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithMetrics sets the metrics recorder.
func (g *Graph) WithMetrics(m *observability.Metrics) *Graph {
	g.metrics = m
	return g
}

// WithTracer enables per-node spans.
func (g *Graph) WithTracer(t *observability.Tracer) *Graph {
	g.tracer = t
	return g
}

// Run executes the graph for one user message and returns the final state.
// It never returns an error: every failure mode ends in a Fallback state
// whose Response is safe to show the user.
func (g *Graph) Run(ctx context.Context, in Input) State {
	if g.tracer != nil {
		var span trace.Span
		ctx, span = g.tracer.Start(ctx, "agent.run")
		defer span.End()
	}
	if in.UserID != "" {
		ctx = observability.AddUserID(ctx, in.UserID)
	}
	if in.SessionID != "" {
		ctx = observability.AddSessionID(ctx, in.SessionID)
	}

	s := State{Prompt: in.Message, SessionID: in.SessionID, UserID: in.UserID}

	s = g.step(ctx, NodeHost, g.host, s)
	if s.ErrorMessage != "" {
		return g.step(ctx, NodeFallback, g.fallbackNode, s)
	}

	s = g.step(ctx, NodeInputGuard, g.checkInput, s)
	if s.IsMalicious || s.ErrorMessage != "" {
		return g.step(ctx, NodeFallback, g.fallbackNode, s)
	}

	s = g.step(ctx, NodeParaphrase, g.paraphrase, s)
	if s.SessionID != "" && s.SessionID != in.SessionID {
		ctx = observability.AddSessionID(ctx, s.SessionID)
	}
	if s.ErrorMessage == "" && len(s.ParaphrasedStatements) == 0 {
		s.ErrorMessage = "paraphrase produced no statements"
	}
	if s.ErrorMessage != "" {
		return g.step(ctx, NodeFallback, g.fallbackNode, s)
	}

	s = g.step(ctx, NodeRetriever, g.retrieve, s)

	s = g.step(ctx, NodeContextBuilder, g.buildContext, s)
	if s.ErrorMessage == "" && s.GeneratedResponse == "" {
		s.ErrorMessage = "model returned an empty response"
	}
	if s.ErrorMessage != "" {
		return g.step(ctx, NodeFallback, g.fallbackNode, s)
	}

	s = g.step(ctx, NodeOutputGuard, g.checkOutput, s)
	if s.IsRisky || s.ErrorMessage != "" {
		return g.step(ctx, NodeFallback, g.fallbackNode, s)
	}

	g.logger.Debug(ctx, "agent run completed",
		"chunks", len(s.RetrievedChunks),
		"response_length", len(s.GeneratedResponse),
	)
	return s
}

type nodeFunc func(context.Context, State) State

func (g *Graph) step(ctx context.Context, node string, fn nodeFunc, s State) State {
	if g.tracer != nil {
		var span trace.Span
		ctx, span = g.tracer.TraceNode(ctx, node)
		defer span.End()
	}

	start := time.Now()
	out := fn(ctx, s)
	if g.metrics != nil {
		g.metrics.RecordNode(node, time.Since(start).Seconds())
	}
	return out
}
