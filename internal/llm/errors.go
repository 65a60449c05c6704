package llm

import (
	"errors"
	"fmt"
)

// Sentinel errors for classifier call failures.
var (
	ErrNoCandidates    = errors.New("no candidates in response")
	ErrMissingLogprobs = errors.New("no log probabilities available")
	ErrBlocked         = errors.New("content blocked by safety filters")
)

// ErrorCode classifies a classifier failure.
type ErrorCode string

const (
	ErrorCodeTransport ErrorCode = "transport"
	ErrorCodeMalformed ErrorCode = "malformed_response"
	ErrorCodeBlocked   ErrorCode = "content_blocked"
	ErrorCodeEmpty     ErrorCode = "empty_response"
)

// ClientError wraps classifier failures with enough context to produce a
// user-facing error reply. RawContent echoes the model output when the
// failure was a malformed response.
type ClientError struct {
	Code       ErrorCode
	Message    string
	RawContent string
	Underlying error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ClientError) Unwrap() error {
	return e.Underlying
}
