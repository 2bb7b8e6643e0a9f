// Package llm defines the text-generation delegate used for statement
// extraction and batch categorization, and the typed errors it surfaces.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Request is a single prompt submitted to a generative text service.
type Request struct {
	Prompt      string
	Model       string
	Temperature float32
}

// Generator returns the raw text payload for a prompt. Implementations report
// HTTP-level failures as *StatusError so callers can tell rate limiting apart
// from other failures.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// StatusError is a non-success response from the delegate service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("delegate returned status %d: %s", e.Code, e.Message)
}

// ErrorKind classifies delegate failures.
type ErrorKind string

const (
	KindNotConfigured     ErrorKind = "not_configured"
	KindRateLimited       ErrorKind = "rate_limited"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindTimeout           ErrorKind = "timeout"
	KindOther             ErrorKind = "other"
)

// Sentinels matched by errors.Is against a *DelegateError of the same kind.
var (
	ErrNotConfigured     = errors.New("delegate not configured")
	ErrRateLimited       = errors.New("delegate rate limited")
	ErrMalformedResponse = errors.New("delegate returned a malformed response")
	ErrTimeout           = errors.New("delegate timed out")
	ErrOther             = errors.New("delegate failed")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotConfigured:
		return ErrNotConfigured
	case KindRateLimited:
		return ErrRateLimited
	case KindMalformedResponse:
		return ErrMalformedResponse
	case KindTimeout:
		return ErrTimeout
	default:
		return ErrOther
	}
}

// DelegateError is the typed failure of a delegate operation.
type DelegateError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *DelegateError) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DelegateError) Unwrap() error { return e.Err }

func (e *DelegateError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// NotConfigured builds the error returned when no generator is available.
func NotConfigured(op string) *DelegateError {
	return &DelegateError{Kind: KindNotConfigured, Op: op}
}

// Malformed wraps a response that could not be decoded.
func Malformed(op string, err error) *DelegateError {
	return &DelegateError{Kind: KindMalformedResponse, Op: op, Err: err}
}

// Classify converts an arbitrary delegate failure into a *DelegateError.
func Classify(op string, err error) *DelegateError {
	if err == nil {
		return nil
	}

	var de *DelegateError
	if errors.As(err, &de) {
		return de
	}

	kind := KindOther
	var se *StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &se):
		switch se.Code {
		case http.StatusTooManyRequests:
			kind = KindRateLimited
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			kind = KindTimeout
		}
	}
	return &DelegateError{Kind: kind, Op: op, Err: err}
}
