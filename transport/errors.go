package transport

import (
	"errors"
	"net/http"

	"github.com/felixgeelhaar/mcp-bridge/session"
)

var (
	// ErrSessionNotFound is returned when a submit names no live session.
	ErrSessionNotFound = session.ErrSessionNotFound

	// ErrPayloadTooLarge is returned when a submitted body exceeds the ceiling.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrBadRequest is returned for malformed submits and unreadable bodies.
	ErrBadRequest = errors.New("bad request")

	// ErrInternalWrite is returned when the session's inbound pipe rejects a write.
	ErrInternalWrite = errors.New("failed to forward message")

	// ErrDecode is returned when the engine's outbound stream cannot be framed.
	ErrDecode = errors.New("malformed outbound frame")

	// ErrEngineFailure wraps errors returned by a session's engine. These are
	// logged and never reach the client.
	ErrEngineFailure = errors.New("engine failed")

	// ErrRateLimited is returned when a session submits faster than allowed.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrDraining is returned for new connections during shutdown.
	ErrDraining = errors.New("server is shutting down")
)

// statusFor maps a bridge error to the HTTP status reported to the client.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, session.ErrSessionClosed):
		return http.StatusNotFound
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrDraining):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err's status with a short plain-text body.
func writeError(w http.ResponseWriter, err error) int {
	code := statusFor(err)
	msg := http.StatusText(code)
	if code != http.StatusInternalServerError {
		msg = err.Error()
	}
	http.Error(w, msg, code)
	return code
}
