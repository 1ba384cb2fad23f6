package anomaly

import (
	"math/rand/v2"
	"testing"
)

func TestIsolationForestContaminationCalibration(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	X := make([][]float64, 200)
	for i := range X {
		X[i] = []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
	}

	f := NewIsolationForest(0.1, 42)
	if err := f.Fit(X); err != nil {
		t.Fatalf("fit: %v", err)
	}

	outliers := 0
	for _, x := range X {
		_, out, err := f.Decision(x)
		if err != nil {
			t.Fatalf("decision: %v", err)
		}
		if out {
			outliers++
		}
	}
	if outliers < 15 || outliers > 25 {
		t.Fatalf("expected ~10%% of training points flagged, got %d/200", outliers)
	}
}

func TestIsolationForestUnfitted(t *testing.T) {
	f := NewIsolationForest(0.1, 42)
	if _, _, err := f.Decision([]float64{0}); err == nil {
		t.Fatalf("expected error scoring an unfitted forest")
	}
}

func TestIsolationForestRejectsBadContamination(t *testing.T) {
	f := NewIsolationForest(0.7, 42)
	if err := f.Fit([][]float64{{1}, {2}, {3}}); err == nil {
		t.Fatalf("expected contamination 0.7 to be rejected")
	}
}

func TestIsolationForestConstantData(t *testing.T) {
	X := make([][]float64, 60)
	for i := range X {
		X[i] = []float64{0, 0}
	}
	f := NewIsolationForest(0.1, 42)
	if err := f.Fit(X); err != nil {
		t.Fatalf("fit constant data: %v", err)
	}
	if _, out, err := f.Decision([]float64{0, 0}); err != nil || out {
		t.Fatalf("expected constant point to be an inlier, got out=%v err=%v", out, err)
	}
}

func TestAveragePathLength(t *testing.T) {
	if averagePathLength(1) != 0 || averagePathLength(2) != 1 {
		t.Fatalf("unexpected base cases")
	}
	if c := averagePathLength(256); c < 10 || c > 11 {
		t.Fatalf("expected c(256) close to 10.24, got %f", c)
	}
}
