package contract

import "context"

// Directory looks up a caller record by phone key. Lookup returns
// ErrNotFound when no record matches, ErrTransient when retries were
// exhausted and ErrMalformedResponse when the payload cannot be coerced.
type Directory interface {
	Lookup(ctx context.Context, phoneKey string) (*CallerRecord, error)
}

// TextGenerator is the stage-rendering side of the generation capability.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// FieldExtractor is the field-scoped side of the generation capability.
// The raw reply is returned verbatim; validation belongs to the caller.
type FieldExtractor interface {
	ExtractField(ctx context.Context, req ExtractFieldRequest) (string, error)
}

// ActionDispatcher executes follow-up actions (email, callback). The system
// only records the outcome; delivery is out of scope.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, req ActionRequest) (ActionOutcome, error)
}
