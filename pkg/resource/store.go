// Package resource persists CloudResource rows, primary-keyed on the
// provider-namespaced resource_id.
package resource

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudsentinel/riskguard/internal/domain"
)

// Store provides tenant-scoped CloudResource persistence.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds a resource Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListByOrg returns every CloudResource for orgID, keyed by resource_id, for
// the violation detector's one-round-trip preload (spec §4.5 step 1).
func (s *Store) ListByOrg(ctx context.Context, orgID uuid.UUID) (map[string]domain.CloudResource, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT resource_id, organization_id, type, display_name, criticality, custom_rules
		FROM cloud_resources
		WHERE organization_id = $1`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing cloud resources for org %s: %w", orgID, err)
	}
	defer rows.Close()

	out := make(map[string]domain.CloudResource)
	for rows.Next() {
		var r domain.CloudResource
		var rulesRaw []byte
		if err := rows.Scan(&r.ResourceID, &r.OrganizationID, &r.Type, &r.DisplayName, &r.Criticality, &rulesRaw); err != nil {
			return nil, fmt.Errorf("scanning cloud resource row: %w", err)
		}
		if len(rulesRaw) > 0 {
			if err := json.Unmarshal(rulesRaw, &r.CustomRules); err != nil {
				return nil, fmt.Errorf("decoding custom_rules for resource %s: %w", r.ResourceID, err)
			}
		}
		out[r.ResourceID] = r
	}
	return out, rows.Err()
}

// Upsert inserts or replaces a CloudResource's policy fields. Not invoked by
// the streaming path — this is the entry point for admin-managed resource
// policy, an external collaborator surface kept minimal here.
func (s *Store) Upsert(ctx context.Context, r domain.CloudResource) error {
	rulesRaw, err := json.Marshal(r.CustomRules)
	if err != nil {
		return fmt.Errorf("encoding custom_rules for resource %s: %w", r.ResourceID, err)
	}

	criticality := r.Criticality
	if criticality == "" {
		criticality = domain.CriticalityStandard
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO cloud_resources (resource_id, organization_id, type, display_name, criticality, custom_rules)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (resource_id) DO UPDATE SET
			type = EXCLUDED.type,
			display_name = EXCLUDED.display_name,
			criticality = EXCLUDED.criticality,
			custom_rules = EXCLUDED.custom_rules`,
		r.ResourceID, r.OrganizationID, r.Type, r.DisplayName, criticality, rulesRaw,
	)
	if err != nil {
		return fmt.Errorf("upserting cloud resource %s: %w", r.ResourceID, err)
	}
	return nil
}
