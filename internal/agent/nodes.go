package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/corpus/internal/llm"
)

// Refusals are fixed strings rather than model output so a refusal never
// depends on a second model round trip.
const (
	refusalPolicy   = "Lo siento, no puedo procesar esta solicitud porque incumple las políticas de uso."
	refusalWithheld = "Lo siento, no puedo mostrar la respuesta porque podría contener información personal o sensible."
	refusalNoAnswer = "Lo siento, la base de conocimiento no tiene información para responder a tu pregunta."
)

const answerSystemPrompt = "You answer questions about a private document collection. " +
	"Use only the facts in the provided context. If the context does not answer the question, " +
	"say the knowledge base has no information about it. Answer in the same language as the question."

// host validates the request and loads bounded history for an existing
// session. It never writes: persistence waits until the prompt has passed
// the input guard.
func (g *Graph) host(ctx context.Context, s State) State {
	if strings.TrimSpace(s.UserID) == "" {
		s.ErrorMessage = "user id is required"
		g.logger.Warn(ctx, "run rejected, missing user id")
		return s
	}
	if s.SessionID == "" {
		return s
	}

	history, err := g.chat.History(ctx, s.SessionID, g.config.HistoryLimit)
	if err != nil {
		s.ErrorMessage = err.Error()
		g.logger.Warn(ctx, "history load failed", "error", err)
		return s
	}
	s.History = history
	g.logger.Debug(ctx, "loaded session history", "messages", len(history))
	return s
}

// checkInput screens the prompt. Validator errors count as flagged.
func (g *Graph) checkInput(ctx context.Context, s State) State {
	verdict, err := g.inputGuard.Check(ctx, s.Prompt)
	if err != nil {
		s.IsMalicious = true
		s.ErrorMessage = fmt.Sprintf("input guard: %v", err)
		g.logger.Error(ctx, "input guard unavailable, treating prompt as malicious", "error", err)
		return s
	}
	if verdict.Flagged {
		s.IsMalicious = true
		s.ErrorMessage = verdict.Reason
	}
	return s
}

// retrieve resolves the paraphrased statements to document chunks.
func (g *Graph) retrieve(ctx context.Context, s State) State {
	start := time.Now()
	s.RetrievedChunks = g.retriever.Retrieve(ctx, s.ParaphrasedStatements)
	if g.metrics != nil {
		g.metrics.RecordRetrieval(time.Since(start).Seconds())
	}
	return s
}

// buildContext composes the enriched query and calls the primary model.
func (g *Graph) buildContext(ctx context.Context, s State) State {
	s.EnrichedQuery = enrichedQuery(s.ParaphrasedText, s.RetrievedChunks)

	resp, err := g.llm.Complete(ctx, &llm.Request{
		System:   answerSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: s.EnrichedQuery}},
	})
	if err != nil {
		s.ErrorMessage = fmt.Sprintf("primary completion: %v", err)
		g.logger.Error(ctx, "primary completion failed", "error", err)
		return s
	}

	s.PrimaryResponse = strings.TrimSpace(resp.Text)
	s.GeneratedResponse = s.PrimaryResponse
	g.logger.Debug(ctx, "built response from context",
		"chunks", len(s.RetrievedChunks),
		"response_length", len(s.GeneratedResponse),
	)
	return s
}

// enrichedQuery concatenates the paraphrased intent and the numbered chunks
// into one labelled prompt.
func enrichedQuery(intent string, chunks []string) string {
	var b strings.Builder
	b.WriteString("Question:\n")
	b.WriteString(intent)
	b.WriteString("\n\nContext:\n")
	if len(chunks) == 0 {
		b.WriteString("(no matching documents)")
		return b.String()
	}
	for i, chunk := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, chunk)
	}
	return b.String()
}

// checkOutput screens the generated answer. Validator errors count as
// flagged.
func (g *Graph) checkOutput(ctx context.Context, s State) State {
	verdict, err := g.outputGuard.Check(ctx, s.GeneratedResponse)
	if err != nil {
		s.IsRisky = true
		s.ErrorMessage = fmt.Sprintf("output guard: %v", err)
		g.logger.Error(ctx, "output guard unavailable, withholding response", "error", err)
		return s
	}
	if verdict.Flagged {
		s.IsRisky = true
		s.ErrorMessage = verdict.Reason
	}
	return s
}

// fallbackNode issues the refusal matching the failure: risky output,
// malicious input, or anything else.
func (g *Graph) fallbackNode(ctx context.Context, s State) State {
	switch {
	case s.IsRisky:
		s.FinalResponse = refusalWithheld
	case s.IsMalicious:
		s.FinalResponse = refusalPolicy
	default:
		s.FinalResponse = refusalNoAnswer
	}

	g.logger.Info(ctx, "fallback response issued",
		"malicious", s.IsMalicious,
		"risky", s.IsRisky,
		"persisted", s.Persisted,
	)
	if g.metrics != nil {
		g.metrics.RecordError("agent", "fallback")
	}
	return s
}
