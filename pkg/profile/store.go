package profile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudsentinel/riskguard/internal/domain"
)

// Store provides tenant-scoped EntityProfile persistence.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds a profile Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListByOrg returns every EntityProfile for orgID, keyed by entity_id, for
// the violation detector's one-round-trip preload (spec §4.5 step 1).
func (s *Store) ListByOrg(ctx context.Context, orgID uuid.UUID) (map[string]domain.EntityProfile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_id, organization_id, cloud_identity_id, profile_mode,
		       whitelisted_cidrs, manual_allowed_actions, manual_forbidden_actions,
		       auto_common_hours, auto_common_ips, auto_common_actions, updated_at
		FROM entity_profiles
		WHERE organization_id = $1`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing entity profiles for org %s: %w", orgID, err)
	}
	defer rows.Close()

	out := make(map[string]domain.EntityProfile)
	for rows.Next() {
		var p domain.EntityProfile
		if err := rows.Scan(&p.EntityID, &p.OrganizationID, &p.CloudIdentityID, &p.ProfileMode,
			&p.WhitelistedCIDRs, &p.ManualAllowedActions, &p.ManualForbiddenActions,
			&p.AutoCommonHours, &p.AutoCommonIPs, &p.AutoCommonActions, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning entity profile row: %w", err)
		}
		out[p.EntityID] = p
	}
	return out, rows.Err()
}

// EnsureSeen materializes a default profile on first-seen identity (spec §3
// lifecycle: "profiles are first materialized on first-seen identity") and
// updates cloud_identity_id if it has changed — Layer A's observed-linkage
// update.
func (s *Store) EnsureSeen(ctx context.Context, orgID uuid.UUID, entityID string, cloudIdentityID *uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO entity_profiles (entity_id, organization_id, cloud_identity_id, profile_mode, updated_at)
		VALUES ($1, $2, $3, 'HYBRID', now())
		ON CONFLICT (organization_id, entity_id) DO UPDATE SET
			cloud_identity_id = COALESCE(EXCLUDED.cloud_identity_id, entity_profiles.cloud_identity_id),
			updated_at = CASE
				WHEN entity_profiles.cloud_identity_id IS DISTINCT FROM EXCLUDED.cloud_identity_id
				THEN now() ELSE entity_profiles.updated_at END`,
		entityID, orgID, cloudIdentityID,
	)
	if err != nil {
		return fmt.Errorf("ensuring entity profile %s for org %s: %w", entityID, orgID, err)
	}
	return nil
}

// UpsertAuto sets the auto-learned dimensions for (organization_id,
// entity_id) — the tenant-scoped key resolved for the upsert-key Open
// Question (SPEC_FULL.md §9); the source keys this bare on entity_id.
func (s *Store) UpsertAuto(ctx context.Context, orgID uuid.UUID, entityID string, hours []int, ips, actions []string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO entity_profiles (entity_id, organization_id, profile_mode, auto_common_hours, auto_common_ips, auto_common_actions, updated_at)
		VALUES ($1, $2, 'HYBRID', $3, $4, $5, now())
		ON CONFLICT (organization_id, entity_id) DO UPDATE SET
			auto_common_hours = EXCLUDED.auto_common_hours,
			auto_common_ips = EXCLUDED.auto_common_ips,
			auto_common_actions = EXCLUDED.auto_common_actions,
			updated_at = now()`,
		entityID, orgID, hours, ips, actions,
	)
	if err != nil {
		return fmt.Errorf("upserting auto profile %s for org %s: %w", entityID, orgID, err)
	}
	return nil
}
