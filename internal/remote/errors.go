package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/lox/rizz/internal/models"
)

// Named client errors. A *StatusError for one of these statuses unwraps to
// the matching sentinel, so callers use errors.Is(err, ErrNotFound).
var (
	ErrBadRequest            = errors.New("bad request")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrPaymentRequired       = errors.New("payment required")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrRequestEntityTooLarge = errors.New("request entity too large")
	ErrUnprocessableEntity   = errors.New("unprocessable entity")
)

var namedStatus = map[int]error{
	http.StatusBadRequest:            ErrBadRequest,
	http.StatusUnauthorized:          ErrUnauthorized,
	http.StatusPaymentRequired:       ErrPaymentRequired,
	http.StatusForbidden:             ErrForbidden,
	http.StatusNotFound:              ErrNotFound,
	http.StatusRequestEntityTooLarge: ErrRequestEntityTooLarge,
	http.StatusUnprocessableEntity:   ErrUnprocessableEntity,
}

// StatusError is a named client error (400, 401, 402, 403, 404, 413, 422).
type StatusError struct {
	StatusCode int
	Kind       error
	Body       []byte
}

func (e *StatusError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("%v (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%v (status %d)", e.Kind, e.StatusCode)
}

// Message is the message of a document store error body, if Body is one.
func (e *StatusError) Message() string {
	var body models.UpdateError
	if len(e.Body) == 0 || json.Unmarshal(e.Body, &body) != nil {
		return ""
	}
	return body.Message
}

func (e *StatusError) Unwrap() error { return e.Kind }

// HTTPError is any other non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// NetworkError is a transport failure: the request never produced a
// response, or the body could not be read.
type NetworkError struct {
	Operation Operation
	Err       error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network: %v", e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError is a 2xx response whose body could not be decoded.
type DecodeError struct {
	Operation Operation
	Err       error
	Body      []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode: %v", e.Operation, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PreconditionError is raised before a request is built, typically for a
// missing API key. No request exists when it is returned.
type PreconditionError struct {
	Operation Operation
	Field     string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: missing %s", e.Operation, e.Field)
}

// MapStatus maps an HTTP status to nil for 2xx, a *StatusError for the named
// client errors and an *HTTPError otherwise.
func MapStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	if kind, ok := namedStatus[code]; ok {
		return &StatusError{StatusCode: code, Kind: kind, Body: body}
	}
	return &HTTPError{StatusCode: code, Body: body}
}

// Retryable reports whether err is transient: transport failures, 429 and
// 5xx responses.
func Retryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return false
}

// StatusLabel returns a short outcome label for metrics and the journal.
func StatusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		statusErr *StatusError
		httpErr   *HTTPError
		netErr    *NetworkError
		decErr    *DecodeError
		preErr    *PreconditionError
	)
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("%d", statusErr.StatusCode)
	case errors.As(err, &httpErr):
		return fmt.Sprintf("%d", httpErr.StatusCode)
	case errors.As(err, &netErr):
		return "network_error"
	case errors.As(err, &decErr):
		return "decode_error"
	case errors.As(err, &preErr):
		return "precondition"
	default:
		return "error"
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
