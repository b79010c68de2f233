package requestctx

import (
	"context"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	ctx := WithContext(context.Background(), &Context{Subject: "ops", Roles: []string{"admin"}})
	rc, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected request context")
	}
	if rc.Subject != "ops" || Subject(ctx) != "ops" {
		t.Fatalf("unexpected subject %q", rc.Subject)
	}
}

func TestMissing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("expected no request context")
	}
	if Subject(context.Background()) != "" {
		t.Fatal("expected empty subject")
	}
	var nilCtx *Context
	if _, ok := FromContext(WithContext(nil, nilCtx)); ok {
		t.Fatal("nil context value should not be reported")
	}
}
