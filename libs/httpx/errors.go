package httpx

import (
	"context"
	"errors"
	"net/http"
)

// ErrorMapping pairs a sentinel error with the status and client message it maps to.
type ErrorMapping struct {
	Err     error
	Status  int
	Message string
}

// ErrorMapper turns domain errors into HTTP responses. The first matching
// mapping (errors.Is) wins; unmatched errors become a generic 500.
type ErrorMapper struct {
	mappings []ErrorMapping
}

func NewErrorMapper() *ErrorMapper {
	return &ErrorMapper{}
}

func (m *ErrorMapper) WithMapping(err error, status int, message string) *ErrorMapper {
	m.mappings = append(m.mappings, ErrorMapping{Err: err, Status: status, Message: message})
	return m
}

// Map returns status and message. An empty mapping message means the error text is shown.
func (m *ErrorMapper) Map(err error) (int, string, bool) {
	switch {
	case err == nil:
		return http.StatusOK, "", true
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timeout", true
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request cancelled", true
	}
	for _, mp := range m.mappings {
		if errors.Is(err, mp.Err) {
			msg := mp.Message
			if msg == "" {
				msg = err.Error()
			}
			return mp.Status, msg, true
		}
	}
	return http.StatusInternalServerError, "internal server error", false
}
