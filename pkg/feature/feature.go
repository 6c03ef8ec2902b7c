// Package feature aggregates audit events into hourly per-entity feature
// rows, the input to the anomaly scorer (spec §4.4).
package feature

import (
	"strings"
	"time"

	"github.com/cloudsentinel/riskguard/internal/domain"
)

// criticalActionPrefixes is intentionally narrower than the destructive-
// action set used by the violation detector's Layer C (critical resource
// tampering) — the two checks serve different purposes in the source and
// were never unified there.
var criticalActionPrefixes = []string{"delete", "terminate"}

// Key identifies one feature row: an entity observed within one UTC hour.
type Key struct {
	EntityID   string
	HourWindow time.Time
}

// Row is the fixed feature vector for one (entity, hour) pair.
type Row struct {
	EventCount           int
	FailureRatio         float64
	UniqueIPs            int
	CriticalActionsCount int
	IsNight              bool
}

type accumulator struct {
	count           int
	failures        int
	ips             map[string]struct{}
	criticalActions int
}

// Build aggregates events into per-(entity,hour) rows. entityID computes the
// hybrid entity id for one event (spec §4.5); events with an unparseable
// event_time are dropped, per spec §4.4.
func Build(events []domain.AuditEvent, entityID func(domain.AuditEvent) string) map[Key]Row {
	acc := make(map[Key]*accumulator)

	for _, e := range events {
		if e.EventTime.IsZero() {
			continue
		}
		key := Key{
			EntityID:   entityID(e),
			HourWindow: TruncateToHour(e.EventTime),
		}

		a, ok := acc[key]
		if !ok {
			a = &accumulator{ips: make(map[string]struct{})}
			acc[key] = a
		}

		a.count++
		if e.EventStatus == domain.StatusFailure {
			a.failures++
		}
		if e.ActorIPAddress != "" {
			a.ips[e.ActorIPAddress] = struct{}{}
		}
		if isCriticalAction(e.ActionName) {
			a.criticalActions++
		}
	}

	out := make(map[Key]Row, len(acc))
	for key, a := range acc {
		var failureRatio float64
		if a.count > 0 {
			failureRatio = float64(a.failures) / float64(a.count)
		}
		out[key] = Row{
			EventCount:           a.count,
			FailureRatio:         failureRatio,
			UniqueIPs:            len(a.ips),
			CriticalActionsCount: a.criticalActions,
			IsNight:              isNight(key.HourWindow.Hour()),
		}
	}
	return out
}

// TruncateToHour floors t to the start of its UTC hour.
func TruncateToHour(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), 0, 0, 0, time.UTC)
}

// isNight reports whether hour (0-23, UTC) falls in [0,6] or [21,23].
func isNight(hour int) bool {
	return hour <= 6 || hour >= 21
}

func isCriticalAction(action string) bool {
	lower := strings.ToLower(action)
	for _, prefix := range criticalActionPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
