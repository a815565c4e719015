package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/corpus/internal/config"
	"github.com/haasonsaas/corpus/internal/llm"
	"github.com/haasonsaas/corpus/internal/observability"
)

const defaultJailbreakThreshold = 0.9

// Reasons surfaced on flagged verdicts. They describe the category, never
// the content.
const (
	ReasonJailbreak  = "jailbreak attempt detected"
	ReasonModeration = "content flagged by moderation"
)

// InputGuard screens prompts for jailbreak attempts and, when a moderator
// is configured, policy-violating content.
type InputGuard struct {
	threshold float64
	moderator llm.Moderator
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewInputGuard creates the input guard. moderator may be nil, in which
// case only the pattern detector runs.
func NewInputGuard(cfg config.GuardsConfig, moderator llm.Moderator) *InputGuard {
	threshold := cfg.JailbreakThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = defaultJailbreakThreshold
	}
	if !cfg.Moderation {
		moderator = nil
	}

	return &InputGuard{
		threshold: threshold,
		moderator: moderator,
		logger:    observability.NewLogger(observability.LogConfig{}),
	}
}

// WithLogger sets the logger.
func (g *InputGuard) WithLogger(logger *observability.Logger) *InputGuard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithMetrics sets the metrics recorder.
func (g *InputGuard) WithMetrics(m *observability.Metrics) *InputGuard {
	g.metrics = m
	return g
}

// Check screens a prompt. An empty prompt is safe; a moderation failure is
// returned as an error for the caller's fail-closed handling.
func (g *InputGuard) Check(ctx context.Context, text string) (Verdict, error) {
	if strings.TrimSpace(text) == "" {
		g.record("passed")
		return Verdict{}, nil
	}

	score, pattern := jailbreakScore(text)
	if score >= g.threshold {
		g.record("flagged")
		g.logger.Warn(ctx, "prompt flagged by input guard",
			"pattern", pattern,
			"score", score,
			"prompt_length", len(text))
		return Verdict{Flagged: true, Reason: ReasonJailbreak}, nil
	}

	if g.moderator != nil {
		result, err := g.moderator.Moderate(ctx, text)
		if err != nil {
			g.record("error")
			return Verdict{}, fmt.Errorf("moderation: %w", err)
		}
		if result.Flagged {
			g.record("flagged")
			g.logger.Warn(ctx, "prompt flagged by moderation",
				"categories", strings.Join(result.Categories, ","),
				"max_score", result.MaxScore,
				"prompt_length", len(text))
			return Verdict{Flagged: true, Reason: ReasonModeration}, nil
		}
	}

	g.record("passed")
	g.logger.Debug(ctx, "prompt passed input guard",
		"score", score,
		"prompt_length", len(text))
	return Verdict{}, nil
}

func (g *InputGuard) record(decision string) {
	if g.metrics != nil {
		g.metrics.RecordGuardDecision("input", decision)
	}
}
