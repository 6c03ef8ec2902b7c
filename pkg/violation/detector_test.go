package violation

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cloudsentinel/riskguard/internal/domain"
	"github.com/cloudsentinel/riskguard/pkg/anomaly"
	"github.com/cloudsentinel/riskguard/pkg/feature"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noopScorer() *anomaly.Scorer {
	return anomaly.Load("", discardLogger())
}

// Scenario 1: shadow identity.
func TestDetect_ShadowIdentity(t *testing.T) {
	orgID := uuid.New()
	e := domain.AuditEvent{
		EventID:        "evt-shadow-1",
		ActorIdentity:  "arn:aws:iam::1:user/alice",
		ActionName:     "GetObject",
		ActorIPAddress: "10.0.0.1",
		EventStatus:    domain.StatusSuccess,
		TargetResource: "s3://b/k",
		EventTime:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	d := NewDetector(noopScorer())
	alerts, _ := d.Detect(orgID, []domain.AuditEvent{e}, Preload{}, nil)

	if len(alerts) != 1 {
		t.Fatalf("len(alerts) = %d, want 1", len(alerts))
	}
	if alerts[0].RuleCode != RuleShadowIdentity {
		t.Errorf("RuleCode = %q, want %q", alerts[0].RuleCode, RuleShadowIdentity)
	}
	if alerts[0].Severity != domain.SeverityMedium {
		t.Errorf("Severity = %q, want MEDIUM", alerts[0].Severity)
	}
	if alerts[0].EventID != e.EventID {
		t.Errorf("EventID = %q, want %q (traced from the source event, not the storage id)", alerts[0].EventID, e.EventID)
	}
}

// Scenario 2: IP violation + critical tampering combine to CRITICAL.
func TestDetect_IPViolationAndCriticalTampering(t *testing.T) {
	orgID := uuid.New()
	e := domain.AuditEvent{
		ActionName:     "DeleteBucket",
		ActorIPAddress: "8.8.8.8",
		TargetResource: "arn:aws:s3:::prod",
		EventTime:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	pre := Preload{
		Profiles: map[string]domain.EntityProfile{
			"8.8.8.8": {EntityID: "8.8.8.8", WhitelistedCIDRs: []string{"10.0.0.0/24"}},
		},
		Resources: map[string]domain.CloudResource{
			"arn:aws:s3:::prod": {ResourceID: "arn:aws:s3:::prod", Criticality: domain.CriticalityCritical},
		},
	}

	d := NewDetector(noopScorer())
	alerts, _ := d.Detect(orgID, []domain.AuditEvent{e}, pre, nil)

	if len(alerts) != 1 {
		t.Fatalf("len(alerts) = %d, want 1", len(alerts))
	}
	if alerts[0].RuleCode != RuleMultipleViolations {
		t.Errorf("RuleCode = %q, want %q", alerts[0].RuleCode, RuleMultipleViolations)
	}
	if alerts[0].Severity != domain.SeverityCritical {
		t.Errorf("Severity = %q, want CRITICAL", alerts[0].Severity)
	}
}

// Scenario 3: manual allow suppresses ML — no alert.
func TestDetect_ManualAllowSuppressesML(t *testing.T) {
	orgID := uuid.New()
	e := domain.AuditEvent{
		ActionName:     "AssumeRole",
		ActorIPAddress: "1.2.3.4",
		EventTime:      time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC),
	}
	pre := Preload{
		Profiles: map[string]domain.EntityProfile{
			"1.2.3.4": {
				EntityID:             "1.2.3.4",
				ManualAllowedActions: []string{"AssumeRole"},
				AutoCommonActions:    []string{"ListBuckets"},
			},
		},
	}

	d := NewDetector(noopScorer())
	alerts, _ := d.Detect(orgID, []domain.AuditEvent{e}, pre, nil)

	if len(alerts) != 0 {
		t.Fatalf("len(alerts) = %d, want 0, got %+v", len(alerts), alerts)
	}
}

// Scenario 4: auto-profile match — ML not consulted, no alert.
func TestDetect_AutoProfileMatchSuppressesML(t *testing.T) {
	orgID := uuid.New()
	e := domain.AuditEvent{
		ActionName:     "ListBuckets",
		ActorIPAddress: "10.0.0.1",
		EventTime:      time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC),
	}
	pre := Preload{
		Profiles: map[string]domain.EntityProfile{
			"10.0.0.1": {
				EntityID:          "10.0.0.1",
				AutoCommonHours:   []int{14},
				AutoCommonIPs:     []string{"10.0.0.1"},
				AutoCommonActions: []string{"ListBuckets"},
			},
		},
	}

	d := NewDetector(noopScorer())
	alerts, _ := d.Detect(orgID, []domain.AuditEvent{e}, pre, nil)

	if len(alerts) != 0 {
		t.Fatalf("len(alerts) = %d, want 0, got %+v", len(alerts), alerts)
	}
}

func TestDetect_MLAnomalyRunsWhenNoProfileMatch(t *testing.T) {
	orgID := uuid.New()
	hour := time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)
	e := domain.AuditEvent{
		ActorIdentity:  "",
		ActorIPAddress: "9.9.9.9",
		ActionName:     "ListBuckets",
		EventTime:      hour,
	}

	artifact := anomaly.Artifact{
		Mean:      [5]float64{0, 0, 0, 0, 0},
		StdDev:    [5]float64{1, 1, 1, 1, 1},
		Weights:   [5]float64{1, 1, 1, 1, 1},
		Bias:      0,
		Threshold: 0.5,
	}
	scorer := loadArtifactForTest(t, artifact)

	features := map[feature.Key]feature.Row{
		{EntityID: "9.9.9.9", HourWindow: feature.TruncateToHour(hour)}: {
			EventCount: 100, FailureRatio: 0.9, UniqueIPs: 20, CriticalActionsCount: 10,
		},
	}

	d := NewDetector(scorer)
	alerts, _ := d.Detect(orgID, []domain.AuditEvent{e}, Preload{}, features)

	if len(alerts) != 1 {
		t.Fatalf("len(alerts) = %d, want 1", len(alerts))
	}
	if alerts[0].RuleCode != RuleMLAnomalyDetected {
		t.Errorf("RuleCode = %q, want %q", alerts[0].RuleCode, RuleMLAnomalyDetected)
	}
}

func loadArtifactForTest(t *testing.T, a anomaly.Artifact) *anomaly.Scorer {
	t.Helper()
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return anomaly.Load(path, discardLogger())
}
