package engine

import "errors"

// FailureKind is the fixed classification every provider adapter and internal
// component must normalize its errors into. The dispatcher depends only on
// this classification, never on provider-specific error text.
type FailureKind string

const (
	// Provider-reported failures.
	RateLimited    FailureKind = "rate_limited"
	QuotaExceeded  FailureKind = "quota_exceeded"
	Overloaded     FailureKind = "overloaded"
	AuthFailed     FailureKind = "auth_failed"
	InvalidRequest FailureKind = "invalid_request"
	NotFound       FailureKind = "not_found"
	Timeout        FailureKind = "timeout"

	// Internal failures that participate in fallback the same way.
	CapacityExceeded FailureKind = "capacity_exceeded"
	QueueFull        FailureKind = "queue_full"
	LoadFailed       FailureKind = "load_failed"
)

// Failure is a classified engine error.
type Failure struct {
	Kind   FailureKind
	Engine string
	Msg    string
	Err    error
}

func (f *Failure) Error() string {
	s := string(f.Kind)
	if f.Engine != "" {
		s += ": " + f.Engine
	}
	if f.Msg != "" {
		s += ": " + f.Msg
	}
	return s
}

func (f *Failure) Unwrap() error { return f.Err }

// Fail constructs a classified failure.
func Fail(kind FailureKind, engineID, msg string) *Failure {
	return &Failure{Kind: kind, Engine: engineID, Msg: msg}
}

// Wrap classifies an underlying error.
func Wrap(kind FailureKind, engineID string, err error) *Failure {
	f := &Failure{Kind: kind, Engine: engineID, Err: err}
	if err != nil {
		f.Msg = err.Error()
	}
	return f
}

// AsFailure extracts a classified failure from err, if present.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Retryable reports whether a failure kind qualifies for routing fallback.
// Client mistakes (invalid request, not found, auth) never do: retrying would
// not change the outcome and silently switching engines would mask them.
func Retryable(kind FailureKind) bool {
	switch kind {
	case RateLimited, QuotaExceeded, Overloaded, Timeout,
		CapacityExceeded, QueueFull, LoadFailed:
		return true
	}
	return false
}

// IsKind reports whether err is a classified failure of the given kind.
func IsKind(err error, kind FailureKind) bool {
	f, ok := AsFailure(err)
	return ok && f.Kind == kind
}
