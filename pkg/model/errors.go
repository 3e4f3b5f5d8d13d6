package model

import "errors"

var (
	// ErrNotFound is returned when a document is not found
	ErrNotFound = errors.New("document not found")
	// ErrInvalidQuery is returned when a query is malformed
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidPath is returned when a document path is malformed
	ErrInvalidPath = errors.New("invalid document path")
	// ErrPermissionDenied is returned when the server denies access
	ErrPermissionDenied = errors.New("permission denied")
	// ErrProtocolViolation is returned when the server or transport breaks an
	// ordering guarantee, e.g. an out-of-order or duplicate batch acknowledgement.
	// Fatal: callers must not retry.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrStaleVersion is returned when a remote event carries a version at or
	// below the cached one. Recovered silently as an idempotent replay.
	ErrStaleVersion = errors.New("stale document version")
	// ErrTargetRejected is returned when the server denies a listen.
	// The target is removed and its listeners are notified.
	ErrTargetRejected = errors.New("target rejected by server")
)
