package sim

import (
	"math/rand"
	"testing"
)

func TestMonitorFirstCheckpointNeverConverges(t *testing.T) {
	m := newMonitor(0.5)
	metrics := m.observe([]float64{1, 2, 3, 4, 5}, 5)
	if metrics.Converged {
		t.Error("baseline checkpoint reported convergence")
	}
}

func TestMonitorConvergesOnStableSample(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	sample := make([]float64, 0, 20000)
	for i := 0; i < 10000; i++ {
		sample = append(sample, 100+rng.NormFloat64()*10)
	}

	m := newMonitor(0.95)
	m.observe(sample, len(sample))

	for i := 0; i < 10000; i++ {
		sample = append(sample, 100+rng.NormFloat64()*10)
	}
	metrics := m.observe(sample, len(sample))
	if !metrics.Converged {
		t.Fatalf("large stable sample did not converge: %+v", metrics)
	}
	if metrics.IterationsToConvergence != len(sample) {
		t.Errorf("iterations_to_convergence = %d, want %d", metrics.IterationsToConvergence, len(sample))
	}
	for _, key := range []string{"P50", "P90"} {
		if _, ok := metrics.PercentileStability[key]; !ok {
			t.Errorf("missing tracked percentile %s", key)
		}
	}
}

func TestMonitorDetectsShift(t *testing.T) {
	m := newMonitor(0.95)
	first := []float64{10, 10, 10, 10}
	m.observe(first, 4)

	shifted := append(append([]float64{}, first...), 100, 100, 100, 100)
	metrics := m.observe(shifted, 8)
	if metrics.Converged {
		t.Error("shifted statistics reported as converged")
	}
	if metrics.MeanStability >= 0.95 {
		t.Errorf("mean stability = %v for a 5x mean shift", metrics.MeanStability)
	}
}

func TestStabilityBounds(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		previous float64
		want     float64
	}{
		{"Identical", 5, 5, 1},
		{"Doubled", 10, 5, 0},
		{"SmallMove", 100.5, 100, 0.995},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stability(tt.current, tt.previous)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("stability(%v, %v) = %v, want %v", tt.current, tt.previous, got, tt.want)
			}
		})
	}

	if s := stability(-10, 5); s != 0 {
		t.Errorf("huge move stability = %v, want clamped 0", s)
	}
}

func TestQuantileSortedMonotone(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	prev := quantileSorted(sorted, 0)
	for p := 0.0; p <= 1.0; p += 0.05 {
		q := quantileSorted(sorted, p)
		if q < prev {
			t.Fatalf("quantile decreased at p=%v", p)
		}
		prev = q
	}
	if quantileSorted(sorted, 1.0) != 10 {
		t.Errorf("p=1 quantile = %v, want the maximum", quantileSorted(sorted, 1.0))
	}
	if quantileSorted(nil, 0.5) != 0 {
		t.Error("empty sample should yield 0")
	}
}
