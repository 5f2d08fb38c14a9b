package domain

import "errors"

var (
	// ErrQuotaExceeded is returned when the global connection cap is reached.
	ErrQuotaExceeded = errors.New("connection quota exceeded")
	// ErrUserQuotaExceeded is returned when a user already holds the
	// maximum number of authenticated connections.
	ErrUserQuotaExceeded = errors.New("per-user connection quota exceeded")
	// ErrAuthRejected is returned when the credential verifier rejects
	// the handshake credential.
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrAuthTimeout is returned when no auth envelope arrives within
	// the handshake timeout.
	ErrAuthTimeout = errors.New("authentication timed out")
	// ErrConnectionNotFound is returned for operations on unknown or
	// already-closed connection ids.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrNotAuthenticated is returned for operations that require a
	// completed handshake, such as subscribe.
	ErrNotAuthenticated = errors.New("connection not authenticated")
	// ErrSendFailure is recorded on a connection when a send exhausts
	// its retries.
	ErrSendFailure = errors.New("send failure")
)
