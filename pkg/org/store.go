// Package org provides read access to Organization, CloudAccount, and
// UserInvitation rows. Their HTTP CRUD surface (registration, invitations,
// token issuance) is an external collaborator and is not implemented here —
// only the lookups the analyzer and profile builder need as FK targets.
package org

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudsentinel/riskguard/internal/domain"
)

// Store reads Organization and CloudAccount rows.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds an org Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get returns the organization with the given id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.Organization, error) {
	var o domain.Organization
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM organizations WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Organization{}, fmt.Errorf("organization %s: %w", id, err)
		}
		return domain.Organization{}, fmt.Errorf("getting organization %s: %w", id, err)
	}
	return o, nil
}

// ListIDs returns every organization id, for the profile builder's
// run-once-then-ticker loop over all tenants (spec §4.6).
func (s *Store) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM organizations`)
	if err != nil {
		return nil, fmt.Errorf("listing organization ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning organization id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetCloudAccount returns a cloud account scoped to orgID. Every lookup is
// filtered by organization_id; there is no unscoped accessor.
func (s *Store) GetCloudAccount(ctx context.Context, orgID, accountID uuid.UUID) (domain.CloudAccount, error) {
	var a domain.CloudAccount
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, provider, region, credentials, active, created_at
		FROM cloud_accounts
		WHERE organization_id = $1 AND id = $2`,
		orgID, accountID,
	).Scan(&a.ID, &a.OrganizationID, &a.Provider, &a.Region, &a.Credentials, &a.Active, &a.CreatedAt)
	if err != nil {
		return domain.CloudAccount{}, fmt.Errorf("getting cloud account %s for org %s: %w", accountID, orgID, err)
	}
	return a, nil
}

// ListCloudAccounts returns every active cloud account for orgID.
func (s *Store) ListCloudAccounts(ctx context.Context, orgID uuid.UUID) ([]domain.CloudAccount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, provider, region, credentials, active, created_at
		FROM cloud_accounts
		WHERE organization_id = $1 AND active = true`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing cloud accounts for org %s: %w", orgID, err)
	}
	defer rows.Close()

	var accounts []domain.CloudAccount
	for rows.Next() {
		var a domain.CloudAccount
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.Provider, &a.Region, &a.Credentials, &a.Active, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning cloud account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetInvitation looks up a pending invitation by its opaque token.
func (s *Store) GetInvitation(ctx context.Context, token string) (domain.UserInvitation, error) {
	var inv domain.UserInvitation
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, organization_id, token, status, expires_at
		FROM user_invitations
		WHERE token = $1`,
		token,
	).Scan(&inv.ID, &inv.Email, &inv.OrganizationID, &inv.Token, &inv.Status, &inv.ExpiresAt)
	if err != nil {
		return domain.UserInvitation{}, fmt.Errorf("getting invitation: %w", err)
	}
	return inv, nil
}
