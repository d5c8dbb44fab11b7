package visuals

import (
	"math/rand"
	"strings"
	"testing"

	"riskmc/internal/output"
	"riskmc/internal/sim"
)

func sample(n int) []float64 {
	rng := rand.New(rand.NewSource(9))
	out := make([]float64, n)
	for i := range out {
		out[i] = 10000 + rng.NormFloat64()*2000
	}
	return out
}

func TestGenerateOutcomeHistogram(t *testing.T) {
	chart := GenerateOutcomeHistogram(sample(5000), "Total Cost Outcomes", "cost")
	if !strings.HasPrefix(chart, "```mermaid\nxychart-beta\n") {
		t.Fatalf("not an xychart block:\n%s", chart)
	}
	if !strings.HasSuffix(chart, "```") {
		t.Error("chart fence not closed")
	}
	for _, want := range []string{"Total Cost Outcomes", "x-axis [", "bar ["} {
		if !strings.Contains(chart, want) {
			t.Errorf("chart missing %q", want)
		}
	}

	if GenerateOutcomeHistogram(nil, "t", "u") != "" {
		t.Error("empty sample should yield no chart")
	}
	// A constant sample collapses to a single bin instead of dividing by zero.
	if chart := GenerateOutcomeHistogram([]float64{5, 5, 5}, "t", "u"); chart == "" {
		t.Error("constant sample should still render")
	}
}

func TestGenerateComplianceCurve(t *testing.T) {
	chart := GenerateComplianceCurve(sample(5000), 12000)
	if !strings.Contains(chart, "Budget Compliance Curve") || !strings.Contains(chart, "line [") {
		t.Fatalf("unexpected chart:\n%s", chart)
	}

	if GenerateComplianceCurve(nil, 12000) != "" {
		t.Error("empty sample should yield no chart")
	}
	if GenerateComplianceCurve([]float64{7, 7, 7}, 7) != "" {
		t.Error("degenerate range should yield no chart")
	}
}

func TestGenerateContributionChart(t *testing.T) {
	results := &sim.Results{
		RiskContributions: map[string][]float64{
			"vendor_delay": {400, 600},
			"api_breakage": {100, 100},
		},
	}
	chart := GenerateContributionChart(results)
	if chart == "" {
		t.Fatal("no chart rendered")
	}
	// Largest mean contribution is listed first.
	if strings.Index(chart, "vendor_delay") > strings.Index(chart, "api_breakage") {
		t.Error("contributions not sorted largest-first")
	}

	if GenerateContributionChart(nil) != "" {
		t.Error("nil results should yield no chart")
	}
}

func TestGeneratePercentileChart(t *testing.T) {
	summary, err := output.Summarize(sample(5000))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	chart := GeneratePercentileChart(summary, "Cost Percentiles")
	if chart == "" {
		t.Fatal("no chart rendered")
	}
	// The ladder must be ordered numerically, not lexically: P95 before P99
	// but after P9-less keys like P10.
	if strings.Index(chart, "\"P10\"") > strings.Index(chart, "\"P95\"") {
		t.Error("percentile keys not in ascending order")
	}

	if GeneratePercentileChart(nil, "t") != "" {
		t.Error("nil summary should yield no chart")
	}
}
