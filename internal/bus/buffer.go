package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudsentinel/riskguard/internal/domain"
	"github.com/cloudsentinel/riskguard/internal/telemetry"
	"github.com/cloudsentinel/riskguard/pkg/alert"
	"github.com/cloudsentinel/riskguard/pkg/broadcast"
	"github.com/cloudsentinel/riskguard/pkg/cache"
	"github.com/cloudsentinel/riskguard/pkg/entity"
	"github.com/cloudsentinel/riskguard/pkg/event"
	"github.com/cloudsentinel/riskguard/pkg/feature"
	"github.com/cloudsentinel/riskguard/pkg/identity"
	"github.com/cloudsentinel/riskguard/pkg/profile"
	"github.com/cloudsentinel/riskguard/pkg/resource"
	"github.com/cloudsentinel/riskguard/pkg/violation"
)

// item is one buffered (organization_id, event) pair, grounded on
// kafka_consumer.py's _process_payload, which buffers the tuple without
// immediate persistence.
type item struct {
	orgID uuid.UUID
	event domain.AuditEvent
}

// Buffer accumulates events and triggers a size/time flush (spec §4.2),
// modeled on internal/audit.Writer: a bounded channel, a background
// goroutine, a ticker, and a context-cancellation drain-then-flush path.
//
// Offset-commit/flush-boundary note (SPEC_FULL.md §9, Open Question): the
// bus client auto-commits offsets independently of flush success. If a
// flush's transaction rolls back, the events in that batch are lost even
// though their offsets were already committed — this is the source's
// behavior, preserved here rather than guessed at.
type Buffer struct {
	pool       *pgxpool.Pool
	detector   *violation.Detector
	profiles   *profile.Store
	identities *identity.Store
	resources  *resource.Store
	bcast      *broadcast.Broadcaster
	cache      *cache.Cache
	logger     *slog.Logger

	batchSize     int
	flushInterval time.Duration

	items chan item
	wg    sync.WaitGroup
}

// NewBuffer builds a Buffer with the given flush thresholds. cache may be
// nil: GetOrLoad falls through to the store directly in that case.
func NewBuffer(
	pool *pgxpool.Pool,
	detector *violation.Detector,
	profiles *profile.Store,
	identities *identity.Store,
	resources *resource.Store,
	bcast *broadcast.Broadcaster,
	preloadCache *cache.Cache,
	logger *slog.Logger,
	batchSize int,
	flushInterval time.Duration,
) *Buffer {
	if batchSize < 1 {
		batchSize = 50
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	return &Buffer{
		pool: pool, detector: detector, profiles: profiles, identities: identities,
		resources: resources, bcast: bcast, cache: preloadCache, logger: logger,
		batchSize: batchSize, flushInterval: flushInterval,
		items: make(chan item, batchSize*4),
	}
}

// Add enqueues one event for orgID. Non-blocking: if the channel is full the
// event is dropped, a warning logged, and the drop counted under the
// "buffer_full" reason. The consumer is not held back: it keeps fetching,
// and every event that arrives while the channel is full is lost.
func (b *Buffer) Add(orgID uuid.UUID, e domain.AuditEvent) {
	select {
	case b.items <- item{orgID: orgID, event: e}:
	default:
		b.logger.Warn("bus: buffer full, dropping event", "organization_id", orgID)
		telemetry.EventsDroppedTotal.WithLabelValues("buffer_full").Inc()
	}
}

// Start runs the flush loop until ctx is cancelled, performing a best-effort
// final flush before returning.
func (b *Buffer) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.run(ctx)
}

// Close waits for the flush loop to exit.
func (b *Buffer) Close() {
	b.wg.Wait()
}

func (b *Buffer) run(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	pending := make([]item, 0, b.batchSize)
	flushCtx := ctx

	flushIfNeeded := func(force bool) {
		if len(pending) == 0 {
			return
		}
		if force || len(pending) >= b.batchSize {
			b.flush(flushCtx, pending)
			pending = pending[:0]
		}
	}

	for {
		select {
		case <-ctx.Done():
			// The final flush must not inherit the cancellation, or its
			// transaction could never begin.
			flushCtx = context.WithoutCancel(ctx)
			flushIfNeeded(true)
			// Drain whatever arrived between the cancellation signal and
			// this select firing, then do one final best-effort flush
			// (spec §4.2: "on cancellation ... a final flush is attempted").
			for {
				select {
				case it := <-b.items:
					pending = append(pending, it)
				default:
					flushIfNeeded(true)
					return
				}
			}

		case it := <-b.items:
			pending = append(pending, it)
			flushIfNeeded(false)

		case <-ticker.C:
			flushIfNeeded(true)
		}
	}
}

// flush runs one transactional flush: bulk-insert events, run the analyzer
// per organization group, bulk-insert alerts, commit — or roll back all of
// it on any error (spec §4.2).
func (b *Buffer) flush(ctx context.Context, items []item) {
	if len(items) == 0 {
		return
	}

	fail := func(msg string, args ...any) {
		b.logger.Error(msg, args...)
		telemetry.FlushesTotal.WithLabelValues("error").Inc()
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		fail("bus: flush failed to begin transaction", "error", err)
		return
	}
	defer tx.Rollback(ctx)

	order, byOrg := groupByOrg(items)

	var allAlerts []domain.SecurityAlert
	for _, orgID := range order {
		events := byOrg[orgID]

		ids, err := event.BulkInsert(ctx, tx, events)
		if err != nil {
			fail("bus: flush bulk insert failed, rolling back batch", "organization_id", orgID, "error", err)
			return
		}
		for i := range events {
			events[i].ID = ids[i]
		}

		alerts, linkage, err := b.analyze(ctx, orgID, events)
		if err != nil {
			fail("bus: flush analyzer failed, rolling back batch", "organization_id", orgID, "error", err)
			return
		}
		for _, lu := range linkage {
			id := lu.CloudIdentityID
			if err := b.profiles.EnsureSeen(ctx, orgID, lu.EntityID, &id); err != nil {
				b.logger.Warn("bus: linkage update failed", "organization_id", orgID, "entity_id", lu.EntityID, "error", err)
			}
		}
		if len(linkage) > 0 {
			b.cache.Invalidate(ctx, "profiles", orgID)
		}

		allAlerts = append(allAlerts, alerts...)
	}

	persisted, err := alert.BulkInsert(ctx, tx, allAlerts)
	if err != nil {
		fail("bus: flush alert insert failed, rolling back batch", "error", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		fail("bus: flush commit failed, batch lost", "error", err)
		return
	}

	telemetry.FlushesTotal.WithLabelValues("success").Inc()
	telemetry.FlushBatchSize.Observe(float64(len(items)))

	for _, a := range persisted {
		telemetry.AlertsEmittedTotal.WithLabelValues(string(a.Severity)).Inc()
		telemetry.ViolationsDetectedTotal.WithLabelValues(a.RuleCode).Inc()
		b.bcast.Publish(a)
	}
}

// groupByOrg partitions a flushed batch by organization_id, preserving the
// order each organization was first seen so flushes stay deterministic for
// a given input ordering.
func groupByOrg(items []item) ([]uuid.UUID, map[uuid.UUID][]domain.AuditEvent) {
	byOrg := make(map[uuid.UUID][]domain.AuditEvent)
	order := make([]uuid.UUID, 0)
	for _, it := range items {
		if _, seen := byOrg[it.orgID]; !seen {
			order = append(order, it.orgID)
		}
		byOrg[it.orgID] = append(byOrg[it.orgID], it.event)
	}
	return order, byOrg
}

func (b *Buffer) analyze(ctx context.Context, orgID uuid.UUID, events []domain.AuditEvent) ([]domain.SecurityAlert, []violation.LinkageUpdate, error) {
	profiles, err := cache.GetOrLoad(ctx, b.cache, "profiles", orgID, func(ctx context.Context) (map[string]domain.EntityProfile, error) {
		return b.profiles.ListByOrg(ctx, orgID)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("preloading profiles: %w", err)
	}
	identities, err := cache.GetOrLoad(ctx, b.cache, "identities", orgID, func(ctx context.Context) (map[string]domain.CloudIdentity, error) {
		return b.identities.ListByOrg(ctx, orgID)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("preloading identities: %w", err)
	}
	resources, err := cache.GetOrLoad(ctx, b.cache, "resources", orgID, func(ctx context.Context) (map[string]domain.CloudResource, error) {
		return b.resources.ListByOrg(ctx, orgID)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("preloading resources: %w", err)
	}

	features := feature.Build(events, entity.HybridID)

	pre := violation.Preload{Profiles: profiles, Identities: identities, Resources: resources}
	alerts, linkage := b.detector.Detect(orgID, events, pre, features)
	return alerts, linkage, nil
}
