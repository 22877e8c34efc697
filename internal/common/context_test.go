package common

import (
	"context"
	"testing"
)

func TestCorrelationIDFromContext(t *testing.T) {
	if id := CorrelationIDFromContext(context.Background()); id != "" {
		t.Errorf("expected empty id, got %q", id)
	}

	ctx := WithCorrelationID(context.Background(), "req-42")
	if id := CorrelationIDFromContext(ctx); id != "req-42" {
		t.Errorf("expected req-42, got %q", id)
	}
}
