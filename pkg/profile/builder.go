// Package profile builds and persists per-entity behavior profiles: the
// manual/auto-learned allow lists the violation detector consults, and the
// offline cumulative-top job that learns the auto fields (spec §4.6),
// grounded on build_profiles.py.
package profile

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cloudsentinel/riskguard/internal/domain"
	"github.com/cloudsentinel/riskguard/internal/telemetry"
	"github.com/cloudsentinel/riskguard/pkg/entity"
	"github.com/cloudsentinel/riskguard/pkg/event"
)

// EventLister is the subset of event.Store the builder needs, so tests can
// fake it without a database.
type EventLister interface {
	ListRecent(ctx context.Context, orgID uuid.UUID, cloudAccountID *uuid.UUID, sinceHours int) ([]domain.AuditEvent, error)
}

var _ EventLister = (*event.Store)(nil)

// BuildParams configures one profile-builder run.
type BuildParams struct {
	OrganizationID uuid.UUID
	CloudAccountID *uuid.UUID // optional, scopes the run to one account
	LookbackDays   int        // N >= 1
	Threshold      float64    // τ in (0, 1]
}

type entityDimensions struct {
	hours   []string
	ips     []string
	actions []string
}

// BuildProfiles runs one idempotent batch over the lookback window,
// computing and upserting the auto_* fields for every entity observed.
// Calling it twice with the same inputs yields the same lists (spec §8).
func BuildProfiles(ctx context.Context, events EventLister, store *Store, p BuildParams) (int, error) {
	if p.LookbackDays < 1 {
		p.LookbackDays = 30
	}
	if p.Threshold <= 0 || p.Threshold > 1 {
		p.Threshold = 0.8
	}

	rows, err := events.ListRecent(ctx, p.OrganizationID, p.CloudAccountID, p.LookbackDays*24)
	if err != nil {
		telemetry.ProfileBuildsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("profile builder: loading events for org %s: %w", p.OrganizationID, err)
	}

	grouped := make(map[string]*entityDimensions)
	for _, e := range rows {
		id := entity.HybridID(e)
		if id == "" {
			continue
		}
		d, ok := grouped[id]
		if !ok {
			d = &entityDimensions{}
			grouped[id] = d
		}
		d.hours = append(d.hours, strconv.Itoa(e.EventTime.UTC().Hour()))
		if e.ActorIPAddress != "" {
			d.ips = append(d.ips, e.ActorIPAddress)
		}
		if e.ActionName != "" {
			d.actions = append(d.actions, e.ActionName)
		}
	}

	for id, d := range grouped {
		hours := cumulativeTop(d.hours, p.Threshold)
		ips := cumulativeTop(d.ips, p.Threshold)
		actions := cumulativeTop(d.actions, p.Threshold)

		if err := store.UpsertAuto(ctx, p.OrganizationID, id, toInts(hours), ips, actions); err != nil {
			telemetry.ProfileBuildsTotal.WithLabelValues("error").Inc()
			return 0, fmt.Errorf("profile builder: upserting entity %s: %w", id, err)
		}
	}

	telemetry.ProfileBuildsTotal.WithLabelValues("success").Inc()
	return len(grouped), nil
}

func toInts(strs []string) []int {
	out := make([]int, 0, len(strs))
	for _, s := range strs {
		n, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// RunPeriodic runs BuildProfiles for every organization returned by orgs on
// a ticker: run once at start, then on each tick, until ctx is cancelled.
func RunPeriodic(ctx context.Context, interval time.Duration, orgs func(context.Context) ([]uuid.UUID, error), run func(context.Context, uuid.UUID) error, onErr func(uuid.UUID, error)) {
	tick := func() {
		ids, err := orgs(ctx)
		if err != nil {
			onErr(uuid.Nil, err)
			return
		}
		for _, id := range ids {
			if err := run(ctx, id); err != nil {
				onErr(id, err)
			}
		}
	}

	tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}
