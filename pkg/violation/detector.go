// Package violation implements the per-event policy fusion engine: the
// hardest subsystem in the analyzer (spec §4.5), grounded line-for-line on
// event_analyzer.py's analyze_events.
package violation

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/cloudsentinel/riskguard/internal/domain"
	"github.com/cloudsentinel/riskguard/pkg/anomaly"
	"github.com/cloudsentinel/riskguard/pkg/entity"
	"github.com/cloudsentinel/riskguard/pkg/feature"
)

// Rule codes a single violation can carry.
const (
	RuleShadowIdentity     = "SHADOW_IDENTITY"
	RuleIPViolation        = "IP_VIOLATION"
	RuleCriticalTampering  = "CRITICAL_RESOURCE_TAMPERING"
	RuleForbiddenAction    = "FORBIDDEN_ACTION"
	RuleMLAnomalyDetected  = "ML_ANOMALY_DETECTED"
	RuleMultipleViolations = "MULTIPLE_VIOLATIONS"
)

var ruleSeverity = map[string]domain.Severity{
	RuleShadowIdentity:    domain.SeverityMedium,
	RuleIPViolation:       domain.SeverityCritical,
	RuleCriticalTampering: domain.SeverityHigh,
	RuleForbiddenAction:   domain.SeverityMedium,
	RuleMLAnomalyDetected: domain.SeverityHigh,
}

// destructiveActionPrefixes drives Layer C's critical-resource tampering
// check — deliberately broader than the feature builder's critical-action
// prefix set, matching the source's own inconsistency (spec §4.4 note).
var destructiveActionPrefixes = []string{
	"delete", "terminate", "destroy", "drop", "purge", "revoke", "shutdown", "kill",
}

// Preload holds the three tenant-scoped lookups the detector needs loaded
// once per batch (spec §4.5 step 1).
type Preload struct {
	Profiles   map[string]domain.EntityProfile
	Identities map[string]domain.CloudIdentity
	Resources  map[string]domain.CloudResource
}

// LinkageUpdate records Layer A's observed cloud_identity_id change for an
// entity profile; the caller applies it via profile.Store.EnsureSeen. That
// write runs on the connection pool, outside the flush transaction, so a
// rolled-back flush does not undo a linkage update already applied.
type LinkageUpdate struct {
	EntityID        string
	CloudIdentityID uuid.UUID
}

// Detector applies the layered policy fusion to a tenant's event batch.
type Detector struct {
	scorer *anomaly.Scorer
}

// NewDetector builds a Detector backed by scorer (may be a degraded,
// not-Ready Scorer — Layer F then always no-signal).
func NewDetector(scorer *anomaly.Scorer) *Detector {
	return &Detector{scorer: scorer}
}

// Detect runs the layered checks over events for one organization, given the
// batch's Preload and precomputed feature table. It returns one alert per
// event with at least one violation, and the linkage updates Layer A
// discovered.
func (d *Detector) Detect(orgID uuid.UUID, events []domain.AuditEvent, pre Preload, features map[feature.Key]feature.Row) ([]domain.SecurityAlert, []LinkageUpdate) {
	var alerts []domain.SecurityAlert
	var linkage []LinkageUpdate

	for _, e := range events {
		entityID := entity.HybridID(e)
		profile, hasProfile := pre.Profiles[entityID]

		var tags []string
		var cloudIdentityID *uuid.UUID
		skipML := false

		// Layer A — shadow identity.
		if e.ActorIdentity != "" {
			if ident, found := pre.Identities[e.ActorIdentity]; found {
				id := ident.ID
				cloudIdentityID = &id
				if !hasProfile || profile.CloudIdentityID == nil || *profile.CloudIdentityID != ident.ID {
					linkage = append(linkage, LinkageUpdate{EntityID: entityID, CloudIdentityID: ident.ID})
				}
			} else {
				tags = append(tags, RuleShadowIdentity)
			}
		}

		// Layer B — IP whitelist.
		if hasProfile && len(profile.WhitelistedCIDRs) > 0 {
			if !ipWhitelisted(e.ActorIPAddress, profile.WhitelistedCIDRs) {
				tags = append(tags, RuleIPViolation)
			}
		}

		// Layer C — critical-resource tampering.
		if res, found := pre.Resources[e.TargetResource]; found &&
			res.Criticality == domain.CriticalityCritical && isDestructiveAction(e.ActionName) {
			tags = append(tags, RuleCriticalTampering)
		}

		// Layer D — manual policy.
		if hasProfile {
			if containsAction(profile.ManualForbiddenActions, e.ActionName) {
				tags = append(tags, RuleForbiddenAction)
			}
			if containsAction(profile.ManualAllowedActions, e.ActionName) {
				skipML = true
			}
		}

		// Layer E — auto-profile match gates Layer F.
		runML := !skipML && !(hasProfile && autoAllows(e, profile))

		// Layer F — anomaly scoring.
		if runML && d.scorer != nil && d.scorer.Ready() {
			key := feature.Key{EntityID: entityID, HourWindow: feature.TruncateToHour(e.EventTime)}
			if row, ok := features[key]; ok {
				if anomalous, hasSignal := d.scorer.Score(row); hasSignal && anomalous {
					tags = append(tags, RuleMLAnomalyDetected)
				}
			}
		}

		if len(tags) == 0 {
			continue
		}

		ruleCode := tags[0]
		if len(tags) > 1 {
			ruleCode = RuleMultipleViolations
		}

		severity := domain.SeverityLow
		for _, tag := range tags {
			severity = domain.MaxSeverity(severity, ruleSeverity[tag])
		}

		alerts = append(alerts, domain.SecurityAlert{
			EventID:         e.EventID,
			OrganizationID:  orgID,
			CloudIdentityID: cloudIdentityID,
			CloudAccountID:  e.CloudAccountID,
			RuleCode:        ruleCode,
			Severity:        severity,
			Description:     describe(tags, e),
		})
	}

	return alerts, linkage
}

func describe(tags []string, e domain.AuditEvent) string {
	return fmt.Sprintf("violations=%s action=%q resource=%q actor=%q ip=%q",
		strings.Join(tags, ","), e.ActionName, e.TargetResource, e.ActorIdentity, e.ActorIPAddress)
}

func isDestructiveAction(action string) bool {
	lower := strings.ToLower(action)
	for _, prefix := range destructiveActionPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func containsAction(actions []string, action string) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// ipWhitelisted reports whether ip is contained in any of cidrs. Invalid
// CIDRs are silently skipped; an invalid ip is treated as not contained
// (spec §4.5 Layer B).
func ipWhitelisted(ip string, cidrs []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, c := range cidrs {
		_, network, err := net.ParseCIDR(c)
		if err != nil {
			continue
		}
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// autoAllows implements spec §4.5 Layer E: at least one auto dimension is
// non-empty, and every non-empty dimension matches the event.
func autoAllows(e domain.AuditEvent, p domain.EntityProfile) bool {
	anyNonEmpty := len(p.AutoCommonHours) > 0 || len(p.AutoCommonIPs) > 0 || len(p.AutoCommonActions) > 0
	if !anyNonEmpty {
		return false
	}

	if len(p.AutoCommonHours) > 0 && !containsHour(p.AutoCommonHours, e.EventTime.UTC().Hour()) {
		return false
	}
	if len(p.AutoCommonIPs) > 0 && !containsString(p.AutoCommonIPs, e.ActorIPAddress) {
		return false
	}
	if len(p.AutoCommonActions) > 0 && !containsString(p.AutoCommonActions, e.ActionName) {
		return false
	}
	return true
}

func containsHour(hours []int, h int) bool {
	for _, v := range hours {
		if v == h {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
