package feature

import (
	"testing"
	"time"

	"github.com/cloudsentinel/riskguard/internal/domain"
)

func entityByActor(e domain.AuditEvent) string { return e.ActorIdentity }

func TestBuild(t *testing.T) {
	base := time.Date(2026, 1, 1, 14, 30, 0, 0, time.UTC)

	events := []domain.AuditEvent{
		{ActorIdentity: "alice", EventTime: base, EventStatus: domain.StatusSuccess, ActorIPAddress: "10.0.0.1", ActionName: "ListBuckets"},
		{ActorIdentity: "alice", EventTime: base.Add(10 * time.Minute), EventStatus: domain.StatusFailure, ActorIPAddress: "10.0.0.2", ActionName: "DeleteBucket"},
		{ActorIdentity: "alice", EventTime: base.Add(20 * time.Minute), EventStatus: domain.StatusSuccess, ActorIPAddress: "10.0.0.1", ActionName: "TerminateInstance"},
	}

	rows := Build(events, entityByActor)
	key := Key{EntityID: "alice", HourWindow: time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)}

	row, ok := rows[key]
	if !ok {
		t.Fatalf("missing row for key %+v", key)
	}
	if row.EventCount != 3 {
		t.Errorf("EventCount = %d, want 3", row.EventCount)
	}
	if got, want := row.FailureRatio, 1.0/3.0; got != want {
		t.Errorf("FailureRatio = %v, want %v", got, want)
	}
	if row.UniqueIPs != 2 {
		t.Errorf("UniqueIPs = %d, want 2", row.UniqueIPs)
	}
	if row.CriticalActionsCount != 2 {
		t.Errorf("CriticalActionsCount = %d, want 2", row.CriticalActionsCount)
	}
	if row.IsNight {
		t.Errorf("IsNight = true for hour 14, want false")
	}
}

func TestBuildDropsUnparseableTime(t *testing.T) {
	events := []domain.AuditEvent{
		{ActorIdentity: "bob", ActionName: "ListBuckets"}, // zero EventTime
	}
	rows := Build(events, entityByActor)
	if len(rows) != 0 {
		t.Errorf("expected no rows for unparseable event_time, got %d", len(rows))
	}
}

func TestIsNightBoundaries(t *testing.T) {
	tests := []struct {
		hour int
		want bool
	}{
		{0, true}, {6, true}, {7, false}, {20, false}, {21, true}, {23, true},
	}
	for _, tt := range tests {
		if got := isNight(tt.hour); got != tt.want {
			t.Errorf("isNight(%d) = %v, want %v", tt.hour, got, tt.want)
		}
	}
}

func TestTruncateToHour(t *testing.T) {
	in := time.Date(2026, 3, 4, 15, 59, 59, 0, time.UTC)
	want := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	if got := TruncateToHour(in); !got.Equal(want) {
		t.Errorf("TruncateToHour() = %v, want %v", got, want)
	}
}
