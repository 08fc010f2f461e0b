package types

import (
	"errors"
	"fmt"

	"lotusgift/pkg/address"
)

// Error taxonomy shared by every stage of a trade. Callers match with errors.Is.
var (
	ErrInvalidAddress    = address.ErrInvalidAddress
	ErrInvalidRequest    = errors.New("invalid quote request")
	ErrMissingCredential = errors.New("missing credential")
	ErrUpstream          = errors.New("upstream error")
	ErrMalformedResponse = errors.New("malformed engine response")
	ErrNetwork           = errors.New("network error")
	ErrChainMismatch     = errors.New("unsupported chain")
	ErrSigningRejected   = errors.New("signing rejected")
	ErrNoIdentity        = errors.New("no signing identity")
	ErrSubmissionFailed  = errors.New("submission failed")
	ErrPollingFailed     = errors.New("polling failed")
	ErrCancelled         = errors.New("cancelled")

	// ErrNoGaslessRoute is an abort reason, not a failure.
	ErrNoGaslessRoute = errors.New("gasless execution not available for this route")
)

// UpstreamError is a non-2xx answer from the trading engine.
type UpstreamError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("engine API error (status %d): %s", e.StatusCode, e.Message)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}
