package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/corpus/internal/chat"
	"github.com/haasonsaas/corpus/internal/llm"
	"github.com/haasonsaas/corpus/pkg/models"
)

const (
	// statementCount is how many reformulations Paraphrase always yields.
	statementCount = 3

	// paraphraseWindow is how many history messages the paraphrase prompt
	// includes ahead of the newest message.
	paraphraseWindow = 9

	paraphraseMaxTokens = 512
)

const paraphraseSystemPrompt = "You rewrite the newest user message as standalone search statements. " +
	"Each statement must be understandable without the conversation, resolving pronouns and references from it, " +
	"and must keep the user's language. Respond with a JSON array of exactly three strings and nothing else."

// paraphrase persists the user message and rewrites it into exactly three
// standalone statements for retrieval.
//
// Persistence happens here rather than in Host so messages rejected by the
// input guard are never stored. The session ownership check lives inside
// CreateOrAppend: a foreign or unknown session records an access error and
// nothing is written.
func (g *Graph) paraphrase(ctx context.Context, s State) State {
	sessionID, _, err := g.chat.CreateOrAppend(ctx, s.UserID, s.SessionID, s.Prompt)
	if err != nil {
		if errors.Is(err, chat.ErrSessionAccess) {
			s.ErrorMessage = err.Error()
			g.logger.Warn(ctx, "session rejected", "error", err)
		} else {
			s.ErrorMessage = fmt.Sprintf("persist message: %v", err)
			g.logger.Error(ctx, "user message not persisted", "error", err)
		}
		return s
	}
	s.SessionID = sessionID
	s.Persisted = true

	resp, err := g.llm.Complete(ctx, &llm.Request{
		System:    paraphraseSystemPrompt,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: paraphrasePrompt(s.History, s.Prompt)}},
		MaxTokens: paraphraseMaxTokens,
	})
	if err != nil {
		s.ErrorMessage = fmt.Sprintf("paraphrase completion: %v", err)
		g.logger.Error(ctx, "paraphrase completion failed", "error", err)
		return s
	}

	s.ParaphrasedStatements = parseStatements(resp.Text, s.Prompt)
	if len(s.ParaphrasedStatements) > 0 {
		s.ParaphrasedText = s.ParaphrasedStatements[0]
	}
	g.logger.Debug(ctx, "paraphrased user intent", "statements", len(s.ParaphrasedStatements))
	return s
}

// paraphrasePrompt renders the recent conversation and the newest message,
// each line labelled by sender.
func paraphrasePrompt(history []models.Message, prompt string) string {
	recent := history
	if len(recent) > paraphraseWindow {
		recent = recent[len(recent)-paraphraseWindow:]
	}

	var b strings.Builder
	if len(recent) > 0 {
		b.WriteString("Conversation:\n")
		for _, m := range recent {
			b.WriteString(m.Sender.Label())
			b.WriteString(": ")
			b.WriteString(m.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Intention:\n")
	b.WriteString(models.SenderUser.Label())
	b.WriteString(": ")
	b.WriteString(prompt)
	return b.String()
}

// parseStatements normalizes a model response to exactly statementCount
// statements: strict JSON array first, then line splitting, padding by
// repetition when fewer remain. An unusable response degrades to the
// original prompt.
func parseStatements(raw, prompt string) []string {
	entries := statementCandidates(raw)
	if len(entries) == 0 {
		if p := strings.TrimSpace(prompt); p != "" {
			entries = []string{p}
		} else {
			return make([]string, statementCount)
		}
	}

	if len(entries) > statementCount {
		entries = entries[:statementCount]
	}
	for i := 0; len(entries) < statementCount; i++ {
		entries = append(entries, entries[i])
	}
	return entries
}

func statementCandidates(raw string) []string {
	raw = strings.TrimSpace(raw)
	if after, ok := strings.CutPrefix(raw, "```json"); ok {
		raw = after
	} else {
		raw = strings.TrimPrefix(raw, "```")
	}
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "```"))

	var arr []string
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		return cleanStatements(arr)
	}
	return cleanStatements(strings.Split(raw, "\n"))
}

func cleanStatements(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = trimListMarker(strings.TrimSpace(s))
		s = strings.Trim(strings.TrimSuffix(s, ","), `"`)
		s = strings.TrimSpace(s)
		if s == "" || s == "[" || s == "]" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// trimListMarker strips leading bullets and "1." / "2)" style numbering.
func trimListMarker(s string) string {
	s = strings.TrimLeft(s, "-*• \t")
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return strings.TrimSpace(s[i+1:])
	}
	return strings.TrimSpace(s)
}
