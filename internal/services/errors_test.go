package services_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"icpquery/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransport, "miit", "verify", "post failed", base)
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"miit", "verify", "post failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarkerAndDetail(t *testing.T) {
	err := services.Wrap(nil, "", " ", "", nil)
	if !errors.Is(err, services.ErrRemote) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[error]int{
		nil: http.StatusOK,
		services.Wrap(services.ErrNotFound, "query", "lookup", "no records", nil):      http.StatusNotFound,
		services.Wrap(services.ErrValidation, "api", "query", "missing name", nil):     http.StatusBadRequest,
		services.Wrap(services.ErrPoolUninitialized, "pool", "acquire", "", nil):       http.StatusServiceUnavailable,
		services.Wrap(services.ErrCaptchaRejected, "solver", "verify", "", nil):        http.StatusBadGateway,
		services.Wrap(services.ErrTransport, "miit", "query", "", errors.New("reset")): http.StatusBadGateway,
		errors.New("unclassified"): http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := services.HTTPStatus(err); got != want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestRetriable(t *testing.T) {
	if services.Retriable(nil) {
		t.Fatal("nil error should not be retriable")
	}
	for _, marker := range []error{services.ErrDetectionCount, services.ErrCaptchaRejected, services.ErrTransport, services.ErrDimensionMismatch} {
		if !services.Retriable(services.Wrap(marker, "solver", "attempt", "", nil)) {
			t.Fatalf("expected %v to be retriable", marker)
		}
	}
	if services.Retriable(services.Wrap(services.ErrTemplateStoreEmpty, "background", "load", "", nil)) {
		t.Fatal("empty template store must be terminal")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("expected no request id")
	}
	ctx = services.WithRequestID(ctx, "")
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("empty id must not be stored")
	}
	ctx = services.WithDomain(services.WithRequestID(ctx, "abc"), "example.cn")
	if id, _ := services.RequestIDFromContext(ctx); id != "abc" {
		t.Fatalf("unexpected request id %q", id)
	}
	if d, _ := services.DomainFromContext(ctx); d != "example.cn" {
		t.Fatalf("unexpected domain %q", d)
	}
}
