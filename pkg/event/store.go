// Package event persists AuditEvent rows.
package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudsentinel/riskguard/internal/domain"
)

// Store provides tenant-scoped AuditEvent persistence.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds an event Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// BulkInsert inserts every event in events within tx, sending one INSERT per
// event in a single pgx.Batch round trip, and returns the assigned ids in
// the same order. The flusher copies them onto the buffered events; alerts
// reference their event by EventID, not by this storage id.
func BulkInsert(ctx context.Context, tx pgx.Tx, events []domain.AuditEvent) ([]int64, error) {
	if len(events) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(events))
	batch := &pgx.Batch{}
	for _, e := range events {
		rawLog, err := json.Marshal(e.RawLog)
		if err != nil {
			return nil, fmt.Errorf("encoding raw_log: %w", err)
		}
		batch.Queue(`
			INSERT INTO audit_events
				(organization_id, cloud_account_id, event_time, actor_identity, actor_ip_address,
				 action_name, target_resource, event_status, raw_log)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			e.OrganizationID, e.CloudAccountID, e.EventTime, e.ActorIdentity, e.ActorIPAddress,
			e.ActionName, e.TargetResource, e.EventStatus, rawLog,
		)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for i := range events {
		if err := br.QueryRow().Scan(&ids[i]); err != nil {
			return nil, fmt.Errorf("inserting audit event %d: %w", i, err)
		}
	}
	return ids, nil
}

// ListRecent returns events for orgID in [since, now], ordered oldest-first,
// for the profile builder's lookback window (spec §4.6 step 1).
func (s *Store) ListRecent(ctx context.Context, orgID uuid.UUID, cloudAccountID *uuid.UUID, sinceHours int) ([]domain.AuditEvent, error) {
	query := `
		SELECT id, organization_id, cloud_account_id, event_time, actor_identity, actor_ip_address,
		       action_name, target_resource, event_status, raw_log
		FROM audit_events
		WHERE organization_id = $1
		  AND event_time >= now() - ($2 || ' hours')::interval
		  AND ($3::uuid IS NULL OR cloud_account_id = $3)
		ORDER BY event_time ASC`

	rows, err := s.pool.Query(ctx, query, orgID, sinceHours, cloudAccountID)
	if err != nil {
		return nil, fmt.Errorf("listing recent audit events for org %s: %w", orgID, err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var rawLog []byte
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.CloudAccountID, &e.EventTime, &e.ActorIdentity,
			&e.ActorIPAddress, &e.ActionName, &e.TargetResource, &e.EventStatus, &rawLog); err != nil {
			return nil, fmt.Errorf("scanning audit event row: %w", err)
		}
		if len(rawLog) > 0 {
			_ = json.Unmarshal(rawLog, &e.RawLog)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
