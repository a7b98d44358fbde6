package generate

import "fmt"

// FailureKind classifies why a generation attempt failed, so callers can
// distinguish a retryable outage from an exhausted quota.
type FailureKind string

const (
	FailureNetwork   FailureKind = "network"
	FailureQuota     FailureKind = "quota"
	FailureService   FailureKind = "service"
	FailureMalformed FailureKind = "malformed"
)

// GenerationError wraps a provider failure. The workspace is never modified
// when one of these is returned.
type GenerationError struct {
	Kind FailureKind
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func generationErr(kind FailureKind, err error) *GenerationError {
	return &GenerationError{Kind: kind, Err: err}
}
