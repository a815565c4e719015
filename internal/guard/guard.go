// Package guard screens conversation text before and after generation.
//
// Both guards share one contract: Check returns a Verdict, and a non-nil
// error means the check could not complete. Callers treat that error as a
// flag (fail-closed); the guards themselves never swallow their failures.
// Neither guard logs the text it inspects; only lengths, scores and entity
// names reach the logs.
package guard

import "context"

// Verdict is the outcome of a safety check.
type Verdict struct {
	Flagged bool
	Reason  string
}

// Checker screens a piece of text.
type Checker interface {
	Check(ctx context.Context, text string) (Verdict, error)
}
