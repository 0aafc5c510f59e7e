package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced inline to the user.
var (
	ErrNotConfigured     = errors.New("ai api key is not configured")
	ErrAlreadyBookmarked = errors.New("policy is already bookmarked")
	ErrNotBookmarked     = errors.New("policy is not bookmarked")
	ErrInvalidFormat     = errors.New("invalid import format")
)

// SourceFetchError means an upstream data source returned a non-2xx status
// or could not be reached. Any fetch failure aborts the whole load.
type SourceFetchError struct {
	Source string
	Status int
	Err    error
}

func (e *SourceFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.Source, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// ParseError means a fetched source body was structurally malformed.
// Individually bad rows inside a well-formed file are dropped, not fatal.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UpstreamError means the AI provider failed at the network or HTTP level.
// The UI stays retryable; nothing is retried automatically.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("ai provider: status %d", e.Status)
	}
	return fmt.Sprintf("ai provider: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
