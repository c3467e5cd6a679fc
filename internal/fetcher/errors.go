package fetcher

import (
    "errors"
    "fmt"
)

// ErrRateLimited is returned when the request quota is exhausted. The request
// never reached the provider; callers should retry after the window turns.
var ErrRateLimited = errors.New("rate limit exceeded")

// UpstreamError wraps a failure talking to the provider for one operation.
type UpstreamError struct {
    Op     string
    Symbol string
    Err    error
}

func (e *UpstreamError) Error() string {
    return fmt.Sprintf("%s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
