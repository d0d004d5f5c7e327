package services

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	domainKey    contextKey = "domain"
)

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithDomain annotates context with the domain being looked up.
func WithDomain(ctx context.Context, domain string) context.Context {
	if domain == "" {
		return ctx
	}
	return context.WithValue(ctx, domainKey, domain)
}

// DomainFromContext returns the looked-up domain if present.
func DomainFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(domainKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
