//go:build integration

package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cloudsentinel/riskguard/internal/domain"
	"github.com/cloudsentinel/riskguard/internal/testutil/containers"
	"github.com/cloudsentinel/riskguard/pkg/event"
	"github.com/cloudsentinel/riskguard/pkg/org"
)

func TestBulkInsertAndListRecentAgainstRealPostgres(t *testing.T) {
	pg := containers.NewPostgresContainer(t, "../../migrations")
	ctx := context.Background()

	orgID := uuid.New()
	if _, err := pg.Pool.Exec(ctx, `INSERT INTO organizations (id, name) VALUES ($1, 'acme')`, orgID); err != nil {
		t.Fatalf("seeding organization: %v", err)
	}

	events := []domain.AuditEvent{
		{
			OrganizationID: orgID,
			EventTime:      time.Now().Add(-time.Hour),
			ActorIdentity:  "arn:aws:iam::1:user/alice",
			ActorIPAddress: "10.0.0.1",
			ActionName:     "GetObject",
			TargetResource: "bucket/key",
			EventStatus:    domain.StatusSuccess,
			RawLog:         map[string]any{"source": "integration-test"},
		},
		{
			OrganizationID: orgID,
			EventTime:      time.Now().Add(-2 * time.Hour),
			ActorIdentity:  "arn:aws:iam::1:user/alice",
			ActorIPAddress: "10.0.0.1",
			ActionName:     "PutObject",
			TargetResource: "bucket/key2",
			EventStatus:    domain.StatusSuccess,
			RawLog:         map[string]any{"source": "integration-test"},
		},
	}

	tx, err := pg.Pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	ids, err := event.BulkInsert(ctx, tx, events)
	if err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
	if len(ids) != len(events) {
		t.Fatalf("got %d ids, want %d", len(ids), len(events))
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit transaction: %v", err)
	}

	store := event.NewStore(pg.Pool)
	got, err := store.ListRecent(ctx, orgID, nil, 24)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListRecent returned %d events, want 2", len(got))
	}
	if got[0].ActionName != "PutObject" || got[1].ActionName != "GetObject" {
		t.Errorf("ListRecent order = [%s, %s], want oldest-first [PutObject, GetObject]", got[0].ActionName, got[1].ActionName)
	}

	orgStore := org.NewStore(pg.Pool)
	gotOrg, err := orgStore.Get(ctx, orgID)
	if err != nil {
		t.Fatalf("org.Get: %v", err)
	}
	if gotOrg.Name != "acme" {
		t.Errorf("organization name = %q, want acme", gotOrg.Name)
	}
}
