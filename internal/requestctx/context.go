package requestctx

import (
	"context"
)

type contextKey string

// Key is the typed context key used for storing the caller Context.
var Key contextKey = "seat_billing/requestctx"

// Context identifies the admin caller of a request.
type Context struct {
	Subject   string
	Email     string
	Roles     []string
	RequestID string
}

// WithContext embeds the request context into the parent context.
func WithContext(parent context.Context, rc *Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, Key, rc)
}

// FromContext retrieves the request context if present.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(Key).(*Context)
	return rc, ok && rc != nil
}

// Subject returns the caller subject or "" for anonymous contexts.
func Subject(ctx context.Context) string {
	if rc, ok := FromContext(ctx); ok {
		return rc.Subject
	}
	return ""
}
