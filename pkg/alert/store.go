// Package alert persists SecurityAlert rows — the append-only output of the
// violation detector — and lists the most recent ones per organization.
package alert

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudsentinel/riskguard/internal/domain"
)

// Store provides tenant-scoped SecurityAlert persistence.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds an alert Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// BulkInsert inserts every alert in alerts within tx and returns them with
// assigned ids and created_at timestamps, in the same order, for the
// broadcaster's live-push frame (spec §4.7).
func BulkInsert(ctx context.Context, tx pgx.Tx, alerts []domain.SecurityAlert) ([]domain.SecurityAlert, error) {
	if len(alerts) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, a := range alerts {
		batch.Queue(`
			INSERT INTO security_alerts
				(event_id, organization_id, cloud_identity_id, cloud_account_id, rule_code, severity, description, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			RETURNING id, created_at`,
			a.EventID, a.OrganizationID, a.CloudIdentityID, a.CloudAccountID, a.RuleCode, a.Severity, a.Description,
		)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	out := make([]domain.SecurityAlert, len(alerts))
	for i, a := range alerts {
		if err := br.QueryRow().Scan(&a.ID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("inserting security alert %d: %w", i, err)
		}
		out[i] = a
	}
	return out, nil
}

// ListRecent returns the newest limit alerts for orgID, ordered by
// created_at descending, for the broadcaster's initial-snapshot frame
// (spec §4.7).
func (s *Store) ListRecent(ctx context.Context, orgID uuid.UUID, limit int) ([]domain.SecurityAlert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, organization_id, cloud_identity_id, cloud_account_id, rule_code, severity, description, created_at
		FROM security_alerts
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		orgID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent alerts for org %s: %w", orgID, err)
	}
	defer rows.Close()

	var alerts []domain.SecurityAlert
	for rows.Next() {
		var a domain.SecurityAlert
		if err := rows.Scan(&a.ID, &a.EventID, &a.OrganizationID, &a.CloudIdentityID, &a.CloudAccountID,
			&a.RuleCode, &a.Severity, &a.Description, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning security alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
