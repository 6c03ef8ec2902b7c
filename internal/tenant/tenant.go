// Package tenant carries the authenticated organization_id through a
// request's context. Every persistence query downstream must be scoped by
// it; there is no schema-per-tenant indirection here, only a column filter.
package tenant

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const orgKey contextKey = "organization_id"

// NewContext stores the organization id in the context.
func NewContext(ctx context.Context, orgID uuid.UUID) context.Context {
	return context.WithValue(ctx, orgKey, orgID)
}

// FromContext extracts the organization id from the context.
// Returns uuid.Nil if none is set.
func FromContext(ctx context.Context) uuid.UUID {
	v, _ := ctx.Value(orgKey).(uuid.UUID)
	return v
}
