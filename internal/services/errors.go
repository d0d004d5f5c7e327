package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrConfiguration      = errors.New("configuration error")
	ErrNotFound           = errors.New("not found")
	ErrTransport          = errors.New("transport error")
	ErrDimensionMismatch  = errors.New("image dimension mismatch")
	ErrShapeMismatch      = errors.New("template shape mismatch")
	ErrTemplateStoreEmpty = errors.New("template store empty")
	ErrDetectionCount     = errors.New("unexpected detection count")
	ErrCaptchaRejected    = errors.New("captcha rejected")
	ErrPoolUninitialized  = errors.New("credential pool not initialized")
	ErrRemote             = errors.New("remote request failed")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrRemote
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// HTTPStatus maps an error to the response code the API should return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPoolUninitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTransport), errors.Is(err, ErrCaptchaRejected), errors.Is(err, ErrRemote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retriable reports whether a failed challenge attempt should be retried by a
// fresh attempt. Configuration problems such as a missing template library are
// terminal; everything else the solve pipeline raises is treated as transient.
func Retriable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrTemplateStoreEmpty), errors.Is(err, ErrConfiguration), errors.Is(err, ErrPoolUninitialized):
		return false
	default:
		return true
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{component, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
