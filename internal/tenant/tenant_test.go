package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	if got := FromContext(ctx); got != uuid.Nil {
		t.Fatalf("expected uuid.Nil without context value, got %v", got)
	}

	orgID := uuid.New()
	ctx = NewContext(ctx, orgID)

	if got := FromContext(ctx); got != orgID {
		t.Errorf("FromContext() = %v, want %v", got, orgID)
	}
}
