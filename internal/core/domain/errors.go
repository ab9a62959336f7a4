package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest rejects a request before any stage runs.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRetrievalUnavailable means the candidate store could not serve the
	// request at all; there is no degraded path.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrGenerationUnavailable means evidence existed but the answerer failed.
	// Distinct from a grounding refusal, which is a successful response.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrRecordNotFound is returned by the source read path.
	ErrRecordNotFound = errors.New("record not found")
	// ErrCancelled marks caller-initiated cancellation; never a data error.
	ErrCancelled = errors.New("request cancelled")
	// ErrTemporary marks transient infrastructure failures.
	ErrTemporary = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
