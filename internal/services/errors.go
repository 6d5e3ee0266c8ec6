package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnsupportedConversion marks requests with no plan between the two
	// format tags. Surfaced verbatim, never retried.
	ErrUnsupportedConversion = errors.New("unsupported conversion")
	// ErrInvalidInput marks empty or unreadable input artifacts.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEngineFailure marks an external engine exiting non-zero.
	ErrEngineFailure = errors.New("engine failure")
	// ErrEngineTimeout marks an external engine killed after exceeding its
	// stage timeout. Kept distinct from ErrEngineFailure so operators can
	// tell hangs from crashes.
	ErrEngineTimeout = errors.New("engine timeout")
	// ErrResource marks scoped-storage or process-spawn failures. Fatal for
	// the request, not for the service.
	ErrResource = errors.New("resource error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrResource
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// HTTPStatus maps a pipeline error to the response status the request handler
// should emit.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnsupportedConversion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrEngineTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrEngineFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns the stable taxonomy name for an error, used in API payloads
// and structured logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedConversion):
		return "unsupported_conversion"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrEngineTimeout):
		return "engine_timeout"
	case errors.Is(err, ErrEngineFailure):
		return "engine_failure"
	default:
		return "resource_error"
	}
}

// ErrorDetails holds the user-facing portion of a wrapped error.
type ErrorDetails struct {
	Message string
}

// Details strips sentinel prefixes from a wrapped error so callers can show
// the contextual message without the marker text.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	message := err.Error()
	for _, marker := range []error{ErrUnsupportedConversion, ErrInvalidInput, ErrEngineFailure, ErrEngineTimeout, ErrResource} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(message, prefix) {
			message = strings.TrimPrefix(message, prefix)
			break
		}
	}
	return ErrorDetails{Message: strings.TrimSpace(message)}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
