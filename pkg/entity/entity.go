// Package entity computes the canonical hybrid entity id shared by the
// feature builder, violation detector, and profile builder (spec §4.5).
package entity

import (
	"strings"

	"github.com/cloudsentinel/riskguard/internal/domain"
)

// invalidIdentityValues are actor_identity values treated as absent.
var invalidIdentityValues = map[string]struct{}{
	"":          {},
	"nan":       {},
	"none":      {},
	"anonymous": {},
	"unknown":   {},
}

// HybridID returns the entity id for an event: the actor identity if it is
// present and not one of the placeholder values, else the actor ip address
// (which may itself be empty).
func HybridID(e domain.AuditEvent) string {
	lowered := strings.ToLower(strings.TrimSpace(e.ActorIdentity))
	if _, invalid := invalidIdentityValues[lowered]; e.ActorIdentity != "" && !invalid {
		return e.ActorIdentity
	}
	return e.ActorIPAddress
}
