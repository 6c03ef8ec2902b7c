// Package anomaly wraps an external scaler+model pair that maps a feature
// row to a binary anomaly label. The real training pipeline is out of
// scope (spec §1); this package only implements the artifact contract and
// inference call, with mandatory graceful degradation when the artifact is
// missing or inference fails (grounded on predictor.py's load-or-warn
// pattern — the scikit-learn IsolationForest itself is not portable to Go,
// so the artifact format here is a small JSON-encoded standardize+threshold
// model rather than a pickle).
package anomaly

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudsentinel/riskguard/internal/telemetry"
	"github.com/cloudsentinel/riskguard/pkg/feature"
)

// Artifact is the on-disk JSON representation of a scaler+model pair: a
// per-feature z-score scaler feeding a linear decision boundary. The five
// slots match feature.Row's contract in order: EventCount, FailureRatio,
// UniqueIPs, CriticalActionsCount, IsNight.
type Artifact struct {
	Mean      [5]float64 `json:"mean"`
	StdDev    [5]float64 `json:"std_dev"`
	Weights   [5]float64 `json:"weights"`
	Bias      float64    `json:"bias"`
	Threshold float64    `json:"threshold"`
}

// Scorer evaluates feature rows against a loaded Artifact. A nil Artifact
// means the model could not be loaded; Score then always returns
// (false, false) — no signal — exactly as the source's predictor does when
// model/scaler are None.
type Scorer struct {
	artifact *Artifact
	logger   *slog.Logger
}

// Load reads an Artifact from path. A missing file is not an error to the
// caller's control flow — Load logs a warning and returns a degraded
// Scorer whose Score calls always report no signal, matching predictor.py.
func Load(path string, logger *slog.Logger) *Scorer {
	if path == "" {
		logger.Warn("anomaly: no model path configured, ML layer disabled")
		return &Scorer{logger: logger}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("anomaly: failed to read model artifact, ML layer disabled", "path", path, "error", err)
		return &Scorer{logger: logger}
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		logger.Warn("anomaly: failed to decode model artifact, ML layer disabled", "path", path, "error", err)
		return &Scorer{logger: logger}
	}

	return &Scorer{artifact: &a, logger: logger}
}

// Ready reports whether a usable artifact is loaded.
func (s *Scorer) Ready() bool {
	return s.artifact != nil
}

// Score applies the scaler then the model to row. The second return value
// reports whether inference produced a signal at all (false when the
// artifact isn't loaded or inference panics-equivalent-fails); the first
// reports whether the row was flagged anomalous. Inference failures are
// logged and treated as no-signal, per spec §4.5 Layer F.
func (s *Scorer) Score(row feature.Row) (anomalous bool, hasSignal bool) {
	if s.artifact == nil {
		return false, false
	}

	ok, err := s.infer(row)
	if err != nil {
		s.logger.Warn("anomaly: inference failed, treating as no-signal", "error", err)
		telemetry.AnomalyInferenceErrorsTotal.Inc()
		return false, false
	}
	return ok, true
}

func (s *Scorer) infer(row feature.Row) (bool, error) {
	a := s.artifact
	x := [5]float64{
		float64(row.EventCount),
		row.FailureRatio,
		float64(row.UniqueIPs),
		float64(row.CriticalActionsCount),
		boolToFloat(row.IsNight),
	}

	var score float64
	for i := 0; i < len(x); i++ {
		if a.StdDev[i] == 0 {
			return false, fmt.Errorf("anomaly: zero stddev for feature %d", i)
		}
		z := (x[i] - a.Mean[i]) / a.StdDev[i]
		score += z * a.Weights[i]
	}
	score += a.Bias

	return score >= a.Threshold, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
