// Package domain holds the entities of the risk analysis engine, carried
// over tenant boundaries by organization_id.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// CloudProvider identifies the cloud platform an account or event belongs to.
type CloudProvider string

const (
	ProviderAWS   CloudProvider = "AWS"
	ProviderAzure CloudProvider = "AZURE"
	ProviderGCP   CloudProvider = "GCP"
)

// UserRole is a member's privilege level within an organization.
type UserRole string

const (
	RoleAdmin  UserRole = "ADMIN"
	RoleViewer UserRole = "VIEWER"
)

// IdentityType classifies a CloudIdentity.
type IdentityType string

const (
	IdentityIAMUser IdentityType = "IAM_USER"
	IdentityIAMRole IdentityType = "IAM_ROLE"
	IdentityRoot    IdentityType = "ROOT"
)

// Criticality tags a CloudResource's sensitivity.
type Criticality string

const (
	CriticalityLow      Criticality = "LOW"
	CriticalityStandard Criticality = "STANDARD"
	CriticalityCritical Criticality = "CRITICAL"
)

// EventStatus is the outcome of an audited action.
type EventStatus string

const (
	StatusSuccess EventStatus = "SUCCESS"
	StatusFailure EventStatus = "FAILURE"
)

// Severity ranks a SecurityAlert. Order matters: it is the total order used
// to pick the max severity across an event's violations.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank maps a Severity to its place in the LOW < MEDIUM < HIGH <
// CRITICAL total order.
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns this severity's position in the total order, or 0 if unknown.
func (s Severity) Rank() int { return severityRank[s] }

// MaxSeverity returns whichever of a, b ranks higher.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ProfileMode controls which policy layers an EntityProfile participates in.
type ProfileMode string

const (
	ProfileModeAuto   ProfileMode = "AUTO"
	ProfileModeManual ProfileMode = "MANUAL"
	ProfileModeHybrid ProfileMode = "HYBRID"
)

// InvitationStatus tracks a UserInvitation's lifecycle.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationExpired  InvitationStatus = "EXPIRED"
)

// Organization is the tenant boundary: every other entity is scoped to one.
type Organization struct {
	ID   uuid.UUID
	Name string
}

// User is a member of exactly one Organization.
type User struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Email          string
	Role           UserRole
	Active         bool
}

// CloudAccount is a credentialed connection to a cloud provider, owned by an
// Organization.
type CloudAccount struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Provider       CloudProvider
	Region         string
	Credentials    []byte // opaque, at-rest-encrypted blob; never logged
	Active         bool
	CreatedAt      time.Time
}

// CloudIdentity is a principal (user, role, root) observed acting within an
// organization. (OrganizationID, IdentityARN) is unique.
type CloudIdentity struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	CloudAccountID *uuid.UUID
	IdentityARN    string
	Name           string
	Type           IdentityType
	MFAEnabled     bool
	DiscoveredAt   *time.Time
	LastUpdatedAt  time.Time
}

// CloudResource is a provider-namespaced resource; ResourceID is globally
// unique within its provider and is the primary key.
type CloudResource struct {
	ResourceID     string
	OrganizationID uuid.UUID
	Type           string
	DisplayName    string
	Criticality    Criticality
	CustomRules    map[string]any
}

// AuditEvent is one normalized, persisted action observation. EventID is
// the canonical identifier normalization resolves (spec §4.1's
// event_id -> raw.event_id -> raw.eventID -> generated-UUID precedence
// chain), distinct from ID, the storage layer's auto-increment sequence.
type AuditEvent struct {
	ID             int64
	EventID        string
	OrganizationID uuid.UUID
	CloudAccountID *uuid.UUID
	EventTime      time.Time
	ActorIdentity  string
	ActorIPAddress string
	ActionName     string
	TargetResource string
	EventStatus    EventStatus
	RawLog         map[string]any
}

// EntityProfile is the behavioral baseline for one entity (identity or bare
// IP) within one organization. EntityID is the canonical hybrid id (§4.5).
type EntityProfile struct {
	EntityID                string
	OrganizationID          uuid.UUID
	CloudIdentityID         *uuid.UUID
	ProfileMode             ProfileMode
	WhitelistedCIDRs        []string
	ManualAllowedActions    []string
	ManualForbiddenActions  []string
	AutoCommonHours         []int
	AutoCommonIPs           []string
	AutoCommonActions       []string
	UpdatedAt               time.Time
}

// SecurityAlert is an append-only emission of the violation detector.
type SecurityAlert struct {
	ID              int64
	EventID         string
	OrganizationID  uuid.UUID
	CloudIdentityID *uuid.UUID
	CloudAccountID  *uuid.UUID
	RuleCode        string
	Severity        Severity
	Description     string
	CreatedAt       time.Time
}

// UserInvitation is a pending org-membership offer.
type UserInvitation struct {
	ID             uuid.UUID
	Email          string
	OrganizationID uuid.UUID
	Token          string
	Status         InvitationStatus
	ExpiresAt      time.Time
}
