// Package services implements the conversation, message, and LLM orchestration
// business logic. This file centralizes the sentinel error values shared across
// the service layer so that callers can branch with errors.Is instead of
// inspecting error strings.
//
// Translation into HTTP status codes happens at the handler layer, never here.
package services

import "errors"

// Conversation/message domain errors.
var (
	// ErrNotFound indicates that the requested conversation or message does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied indicates that the caller user id does not match the
	// owning user id of the named conversation. On the read path this is
	// deliberately indistinguishable from ErrNotFound; write-path callers may
	// branch on it directly.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidTransition indicates a conversation state transition that the
	// state machine does not allow (e.g. archived -> active).
	ErrInvalidTransition = errors.New("invalid conversation state transition")
)

// LLM error kinds, surfaced to callers as semantic classifications rather
// than transport codes (HTTP status, network error strings).
var (
	// ErrRateLimited is returned when the LLM provider responds 429 on the
	// final retry attempt.
	ErrRateLimited = errors.New("rate_limited")

	// ErrBadRequest is returned when the LLM provider rejects the request
	// shape (HTTP 400) or the local message-list validation fails.
	ErrBadRequest = errors.New("bad_request")

	// ErrUnauthenticated is returned when the LLM provider rejects the
	// configured credentials (HTTP 401/403).
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUpstreamUnavailable is returned when the LLM provider is unreachable
	// or returns 5xx on the final retry attempt.
	ErrUpstreamUnavailable = errors.New("upstream_unavailable")

	// ErrUpstreamError is the catch-all classification for any other
	// post-retry LLM failure.
	ErrUpstreamError = errors.New("upstream_error")
)
