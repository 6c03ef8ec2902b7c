package broadcast

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cloudsentinel/riskguard/internal/domain"
)

func TestSubscribePublishUnsubscribe(t *testing.T) {
	orgID := uuid.New()
	b := New()
	sub := b.Subscribe(orgID)

	if got := b.SubscriberCount(orgID); got != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", got)
	}

	alert := domain.SecurityAlert{OrganizationID: orgID, RuleCode: "SHADOW_IDENTITY"}
	b.Publish(alert)

	select {
	case got := <-sub.Alerts():
		if got.RuleCode != "SHADOW_IDENTITY" {
			t.Errorf("RuleCode = %q, want SHADOW_IDENTITY", got.RuleCode)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published alert")
	}

	b.Unsubscribe(orgID, sub)
	if got := b.SubscriberCount(orgID); got != 0 {
		t.Errorf("SubscriberCount() after unsubscribe = %d, want 0", got)
	}

	if _, ok := <-sub.Alerts(); ok {
		t.Error("expected subscriber channel to be closed after unsubscribe")
	}
}

func TestPublishIgnoresOtherOrgs(t *testing.T) {
	orgA, orgB := uuid.New(), uuid.New()
	b := New()
	subA := b.Subscribe(orgA)
	_ = b.Subscribe(orgB)

	b.Publish(domain.SecurityAlert{OrganizationID: orgB})

	select {
	case <-subA.Alerts():
		t.Fatal("org A subscriber should not receive org B's alert")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFullQueueDropsSubscriberSilently(t *testing.T) {
	orgID := uuid.New()
	b := New()
	sub := b.Subscribe(orgID)

	for i := 0; i < defaultQueueSize+5; i++ {
		b.Publish(domain.SecurityAlert{OrganizationID: orgID})
	}

	if got := b.SubscriberCount(orgID); got != 0 {
		t.Errorf("SubscriberCount() after overflow = %d, want 0 (dead subscriber dropped)", got)
	}
}

func TestShutdownClosesAllSubscribers(t *testing.T) {
	orgID := uuid.New()
	b := New()
	sub := b.Subscribe(orgID)

	b.Shutdown()

	if _, ok := <-sub.Alerts(); ok {
		t.Error("expected subscriber channel closed after Shutdown")
	}
	if got := b.SubscriberCount(orgID); got != 0 {
		t.Errorf("SubscriberCount() after Shutdown = %d, want 0", got)
	}
}
