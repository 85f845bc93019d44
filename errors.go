package slate

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the connection layer.
// Use errors.Is(err, slate.ErrAuthentication) to check.
var (
	// ErrConfiguration means the server address or credential is missing or
	// unusable. Raised by the default connection accessor before any network
	// traffic happens.
	ErrConfiguration = errors.New("slate: configuration missing or invalid")

	// ErrAuthentication means the server rejected the credential (401/403).
	// Never retried.
	ErrAuthentication = errors.New("slate: authentication rejected")

	// ErrServerUnreachable means a request never produced an HTTP response
	// (DNS failure, refused connection, timeout at the transport level).
	ErrServerUnreachable = errors.New("slate: server unreachable")

	// ErrConnectionFailed means the retry ceiling was exhausted. It wraps the
	// last underlying cause (a network error or a retryable HTTP status).
	ErrConnectionFailed = errors.New("slate: connection failed after retries")

	// ErrIncompatibleServer means the server version is below the minimum
	// this client supports.
	ErrIncompatibleServer = errors.New("slate: incompatible server version")
)

// Sentinel errors for HTTP status code classification.
var (
	ErrBadRequest = errors.New("slate: bad request")
	ErrForbidden  = errors.New("slate: forbidden")
	ErrNotFound   = errors.New("slate: not found")
	ErrConflict   = errors.New("slate: conflict")
	ErrThrottled  = errors.New("slate: throttled")
	ErrInternal   = errors.New("slate: internal server error")
)

// ServerError wraps a sentinel error with the HTTP status code and the
// server-supplied detail message for debugging. Application-level 4xx
// rejections surface as *ServerError; exhausted retries on 5xx do too,
// with Err set to ErrConnectionFailed.
type ServerError struct {
	StatusCode int
	Detail     string
	Err        error // sentinel, for errors.Is()
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("slate: HTTP %d: %s", e.StatusCode, e.Detail)
	}

	return fmt.Sprintf("slate: HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrAuthentication
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrInternal
		}

		if code >= http.StatusBadRequest {
			return ErrBadRequest
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// extractDetail pulls the human-readable reason out of an error response
// body. The server wraps rejections as {"detail": "..."}; anything else is
// returned verbatim so no context is lost.
func extractDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var payload struct {
		Detail string `json:"detail"`
	}

	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}

	return string(body)
}
