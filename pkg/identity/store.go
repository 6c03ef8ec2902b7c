// Package identity persists CloudIdentity rows and reconciles them from the
// identities bus topic.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudsentinel/riskguard/internal/domain"
)

// Store provides tenant-scoped CloudIdentity persistence.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds an identity Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListByOrg returns every CloudIdentity for orgID, keyed by identity_arn, for
// the violation detector's one-round-trip preload (spec §4.5 step 1).
func (s *Store) ListByOrg(ctx context.Context, orgID uuid.UUID) (map[string]domain.CloudIdentity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, cloud_account_id, identity_arn, name, type,
		       mfa_enabled, discovered_at, last_updated_at
		FROM cloud_identities
		WHERE organization_id = $1`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing cloud identities for org %s: %w", orgID, err)
	}
	defer rows.Close()

	out := make(map[string]domain.CloudIdentity)
	for rows.Next() {
		var id domain.CloudIdentity
		if err := rows.Scan(&id.ID, &id.OrganizationID, &id.CloudAccountID, &id.IdentityARN,
			&id.Name, &id.Type, &id.MFAEnabled, &id.DiscoveredAt, &id.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning cloud identity row: %w", err)
		}
		out[id.IdentityARN] = id
	}
	return out, rows.Err()
}

// UpsertParams carries the fields an identity-topic message can set.
// Name, Type and MFAEnabled are always applied on update; DiscoveredAt (the
// message's created_at) is only applied if the existing row's discovered_at
// is currently null, matching kafka_consumer.py's _upsert_cloud_identity
// semantics.
type UpsertParams struct {
	OrganizationID uuid.UUID
	IdentityARN    string
	Name           string
	Type           domain.IdentityType
	MFAEnabled     bool
	DiscoveredAt   *time.Time
}

// Upsert reconciles one identity-topic message, keyed on
// (organization_id, identity_arn). Defaults Type to IAM_USER and
// MFAEnabled to false when unparseable — callers pass the zero value for
// Type/MFAEnabled in that case and Upsert fills the default.
func (s *Store) Upsert(ctx context.Context, p UpsertParams) error {
	if p.Type == "" {
		p.Type = domain.IdentityIAMUser
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO cloud_identities (organization_id, identity_arn, name, type, mfa_enabled, discovered_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (organization_id, identity_arn) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			mfa_enabled = EXCLUDED.mfa_enabled,
			discovered_at = COALESCE(cloud_identities.discovered_at, EXCLUDED.discovered_at),
			last_updated_at = now()`,
		p.OrganizationID, p.IdentityARN, p.Name, p.Type, p.MFAEnabled, discoveredAtValue(p.DiscoveredAt),
	)
	if err != nil {
		return fmt.Errorf("upserting cloud identity %s for org %s: %w", p.IdentityARN, p.OrganizationID, err)
	}
	return nil
}

func discoveredAtValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
