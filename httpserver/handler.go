package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/signing"
)

// MaxBodySize bounds JSON request bodies.
const MaxBodySize = 1024 * 1024

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// StatusCode maps domain errors to HTTP status codes.
func StatusCode(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, interfaces.ErrAuthentication),
		errors.Is(err, signing.ErrValidityPeriod),
		errors.Is(err, interfaces.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, interfaces.ErrEnrollmentDenied),
		errors.Is(err, interfaces.ErrTicketDenied),
		errors.Is(err, interfaces.ErrTicketExpired),
		errors.Is(err, interfaces.ErrTokenBlocked):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrContentNotFound),
		errors.Is(err, interfaces.ErrBlocklistEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrLocked),
		errors.Is(err, interfaces.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, interfaces.ErrPageIntegrity),
		errors.Is(err, interfaces.ErrPageOutOfOrder),
		errors.Is(err, interfaces.ErrFileOutOfOrder),
		errors.Is(err, interfaces.ErrInvalidRecipient):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err with the status it maps to. Enrollment denials
// never reveal why, and internal errors are not echoed to the client.
func WriteError(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	switch {
	case errors.Is(err, interfaces.ErrEnrollmentDenied):
		http.Error(w, interfaces.ErrEnrollmentDenied.Error(), code)
	case code == http.StatusInternalServerError:
		http.Error(w, http.StatusText(code), code)
	default:
		http.Error(w, err.Error(), code)
	}
}

// DecodeJSON reads a bounded JSON body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}
	return nil
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
