package agent

import (
	"strings"

	"github.com/haasonsaas/corpus/pkg/models"
)

// Node names double as metric and span labels.
const (
	NodeHost           = "host"
	NodeInputGuard     = "input_guard"
	NodeParaphrase     = "paraphrase"
	NodeRetriever      = "retriever"
	NodeContextBuilder = "context_builder"
	NodeOutputGuard    = "output_guard"
	NodeFallback       = "fallback"
)

// Input starts one run of the graph.
type Input struct {
	// Message is the newest user message.
	Message string

	// SessionID resumes an existing conversation. Empty starts a new one.
	SessionID string

	// UserID is the requesting user. Required.
	UserID string
}

// State is the value threaded through the graph. Nodes receive it by value
// and return the updated copy; they never mutate shared data and never
// return errors. Failures land in ErrorMessage and the edge predicates in
// Run decide where to go next.
//
// State may hold user content and retrieved documents. It is never logged
// in full; nodes log lengths, counts and flags only.
type State struct {
	// Prompt is the newest user message.
	Prompt string

	// SessionID is the conversation id. Set by Paraphrase when a new
	// session is created.
	SessionID string

	// UserID is the requesting user.
	UserID string

	// History is the bounded conversation history loaded by Host,
	// oldest first.
	History []models.Message

	// IsMalicious is set by InputGuard.
	IsMalicious bool

	// IsRisky is set by OutputGuard.
	IsRisky bool

	// ErrorMessage records why a node gave up. Routing treats any
	// non-empty value as a reason to fall back.
	ErrorMessage string

	// Persisted is true once the user message has been stored.
	Persisted bool

	// ParaphrasedStatements are the standalone reformulations of the
	// user's intent, always exactly three after Paraphrase.
	ParaphrasedStatements []string

	// ParaphrasedText is the first reformulation.
	ParaphrasedText string

	// RetrievedChunks is the merged retrieval result, best match first.
	RetrievedChunks []string

	// EnrichedQuery is the prompt presented to the primary model.
	EnrichedQuery string

	// PrimaryResponse is the raw primary model answer.
	PrimaryResponse string

	// GeneratedResponse is the answer candidate checked by OutputGuard.
	GeneratedResponse string

	// FinalResponse is set by Fallback. Empty on the success path.
	FinalResponse string
}

// Response returns the text to show the user: the fallback refusal when one
// was issued, otherwise the generated answer.
func (s State) Response() string {
	if s.FinalResponse != "" {
		return s.FinalResponse
	}
	if s.GeneratedResponse != "" {
		return s.GeneratedResponse
	}
	return "Lo siento, no pude generar una respuesta."
}

// AccessDenied reports whether the run failed because the session does not
// exist or belongs to another user.
func (s State) AccessDenied() bool {
	return strings.Contains(s.ErrorMessage, "not found or access denied")
}
