// Package broadcast fans newly created SecurityAlerts out to per-tenant
// subscribers, grounded on socket_manager.py's ConnectionManager: an
// in-memory registry, best-effort send, silent removal of dead peers. It
// never persists state (spec §4.7).
package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"github.com/cloudsentinel/riskguard/internal/domain"
	"github.com/cloudsentinel/riskguard/internal/telemetry"
)

// defaultQueueSize bounds each subscriber's outbound channel. A slow or dead
// peer that fills its queue is dropped rather than allowed to block the
// broadcaster (spec §9: owning task per subscriber, detection of a dead
// subscriber is the owning task returning).
const defaultQueueSize = 32

// Subscriber is a live connection registered under one organization.
type Subscriber struct {
	ch     chan domain.SecurityAlert
	closed chan struct{}
	once   sync.Once
}

// Alerts returns the channel new alerts for this subscriber's organization
// arrive on. The channel closes when Unsubscribe is called.
func (s *Subscriber) Alerts() <-chan domain.SecurityAlert {
	return s.ch
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Broadcaster maintains the org_id -> subscriber-set registry.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[*Subscriber]struct{}
}

// New builds an empty Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{subs: make(map[uuid.UUID]map[*Subscriber]struct{})}
}

// Subscribe registers a new subscriber under orgID and returns it. Callers
// must call Unsubscribe when the connection ends.
func (b *Broadcaster) Subscribe(orgID uuid.UUID) *Subscriber {
	sub := &Subscriber{ch: make(chan domain.SecurityAlert, defaultQueueSize), closed: make(chan struct{})}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[orgID] == nil {
		b.subs[orgID] = make(map[*Subscriber]struct{})
	}
	b.subs[orgID][sub] = struct{}{}
	telemetry.BroadcastSubscribers.WithLabelValues(orgID.String()).Set(float64(len(b.subs[orgID])))
	return sub
}

// Unsubscribe removes sub from orgID's set, closing its channel. If the
// org's set becomes empty, the key is dropped (spec §4.7).
func (b *Broadcaster) Unsubscribe(orgID uuid.UUID, sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[orgID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, orgID)
		telemetry.BroadcastSubscribers.DeleteLabelValues(orgID.String())
	} else {
		telemetry.BroadcastSubscribers.WithLabelValues(orgID.String()).Set(float64(len(set)))
	}
	sub.close()
}

// Publish pushes alert to every live subscriber for its organization.
// Subscribers whose queue is full are dropped silently — they are
// considered dead, matching socket_manager.py's best-effort broadcast.
func (b *Broadcaster) Publish(alert domain.SecurityAlert) {
	b.mu.Lock()
	set := b.subs[alert.OrganizationID]
	var dead []*Subscriber
	for sub := range set {
		select {
		case sub.ch <- alert:
		default:
			dead = append(dead, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range dead {
		b.Unsubscribe(alert.OrganizationID, sub)
	}
}

// SubscriberCount returns the number of live subscribers for orgID.
func (b *Broadcaster) SubscriberCount(orgID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[orgID])
}

// Shutdown closes every subscriber's channel and drains the registry, for
// cancellation of the owning server (spec §5).
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for orgID, set := range b.subs {
		for sub := range set {
			sub.close()
		}
		delete(b.subs, orgID)
		telemetry.BroadcastSubscribers.DeleteLabelValues(orgID.String())
	}
}
