package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/corpus/internal/rag/extract"
)

// ErrorKind classifies a pipeline failure for routing decisions: bad input
// is quarantined, external failures are replayable, invariant violations
// need operator attention.
type ErrorKind string

const (
	KindBadInput  ErrorKind = "bad_input"
	KindExternal  ErrorKind = "external"
	KindInvariant ErrorKind = "invariant"
)

// Pipeline stages, used in errors and as metric labels.
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageChunk   = "chunk"
	StageStore   = "store"
	StageIndex   = "index"
)

// ErrNoContent reports a document that parsed but yielded no chunks.
var ErrNoContent = errors.New("no content extracted from document")

// PipelineError wraps a stage failure with its classification.
type PipelineError struct {
	Kind   ErrorKind
	Stage  string
	Object string
	Err    error
}

func (e *PipelineError) Error() string {
	if e.Object != "" {
		return fmt.Sprintf("%s %q: %v", e.Stage, e.Object, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of an error. Unclassified errors count
// as external: the safe default is "replayable", never "discard".
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindExternal
}

// IsBadInput reports whether the error stems from an unprocessable document
// rather than a failing dependency.
func IsBadInput(err error) bool {
	return KindOf(err) == KindBadInput
}

// IsInvariant reports whether the error is an invariant violation.
func IsInvariant(err error) bool {
	return KindOf(err) == KindInvariant
}

// classify wraps err in a PipelineError, keeping an existing classification
// when one is already attached.
func classify(stage, object string, err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}

	kind := KindExternal
	switch {
	case extract.IsBadInput(err):
		kind = KindBadInput
	case errors.Is(err, ErrNoContent) || isInvariantMessage(err):
		kind = KindInvariant
	}
	return &PipelineError{Kind: kind, Stage: stage, Object: object, Err: err}
}

// isInvariantMessage matches failure modes that no retry can fix: the
// embedding dimension disagrees with the schema, or a provider returned a
// result set misaligned with its input.
func isInvariantMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "dimension") ||
		strings.Contains(msg, "embeddings for")
}
