package improve

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"riskmc/internal/calibrate"
	"riskmc/internal/dist"
	"riskmc/internal/risk"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    map[string]any
		b    map[string]any
		want float64
	}{
		{"BothEmpty", nil, nil, 1},
		{"OneEmpty", map[string]any{"k": "v"}, nil, 0},
		{"Identical", map[string]any{"domain": "payments", "team_size": 5.0}, map[string]any{"domain": "payments", "team_size": 5.0}, 1},
		{"Disjoint", map[string]any{"a": 1.0}, map[string]any{"b": 1.0}, 0},
		{"StringMismatch", map[string]any{"domain": "payments"}, map[string]any{"domain": "lending"}, 0},
		{"NumericClose", map[string]any{"team_size": 10.0}, map[string]any{"team_size": 9.0}, 0.9},
		{"IntAndFloatMatch", map[string]any{"team_size": 5}, map[string]any{"team_size": 5.0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Similarity = %v, want %v", got, tt.want)
			}
			if back := Similarity(tt.b, tt.a); math.Abs(back-got) > 1e-9 {
				t.Errorf("not symmetric: %v vs %v", got, back)
			}
		})
	}
}

func TestSimilarityBounded(t *testing.T) {
	a := map[string]any{"x": 1.0, "y": "a", "z": 3}
	b := map[string]any{"x": 1.0, "y": "a"}
	s := Similarity(a, b)
	if s < 0 || s > 1 {
		t.Fatalf("similarity %v out of [0,1]", s)
	}
	// Partial overlap scores strictly between the extremes.
	if s == 0 || s == 1 {
		t.Errorf("partial overlap scored %v", s)
	}
}

func testEngine(t *testing.T) (*Engine, *calibrate.Store) {
	t.Helper()
	s, err := calibrate.NewStore(t.TempDir() + "/history.db")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewEngine(s), s
}

func putOutcome(t *testing.T, s *calibrate.Store, o calibrate.ProjectOutcome) {
	t.Helper()
	if o.CompletionDate.IsZero() {
		o.CompletionDate = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	}
	if err := s.PutOutcome(context.Background(), o); err != nil {
		t.Fatalf("PutOutcome %q: %v", o.ProjectID, err)
	}
}

func targetRisk(t *testing.T, id string, mean float64) risk.Risk {
	t.Helper()
	d, err := dist.NewNormal(mean, mean/5, nil)
	if err != nil {
		t.Fatalf("NewNormal: %v", err)
	}
	return risk.Risk{
		ID:           id,
		Name:         id,
		Category:     risk.CategoryCost,
		Impact:       risk.ImpactCost,
		Distribution: d,
	}
}

func TestSuggestParameters(t *testing.T) {
	e, s := testEngine(t)
	ctx := context.Background()

	similar := map[string]any{"domain": "payments", "team_size": 5.0}
	for i := 0; i < 5; i++ {
		putOutcome(t, s, calibrate.ProjectOutcome{
			ProjectID:       fmt.Sprintf("sim-%d", i),
			ProjectType:     "software",
			BaselineCost:    10000,
			ActualCost:      12000,
			RiskOutcomes:    map[string]float64{"r-hot": 8000, "r-thin": 100},
			Characteristics: similar,
		})
	}
	// A dissimilar project whose impacts must not leak into suggestions.
	putOutcome(t, s, calibrate.ProjectOutcome{
		ProjectID:       "other-1",
		ProjectType:     "hardware",
		BaselineCost:    10000,
		ActualCost:      90000,
		RiskOutcomes:    map[string]float64{"r-hot": 1e6},
		Characteristics: map[string]any{"domain": "avionics", "team_size": 200.0},
	})

	risks := []risk.Risk{targetRisk(t, "r-hot", 5000), targetRisk(t, "r-missing", 5000)}
	suggestions, err := e.SuggestParameters(ctx, similar, risks, 0.5)
	if err != nil {
		t.Fatalf("SuggestParameters: %v", err)
	}

	if len(suggestions) != 1 {
		t.Fatalf("got %d suggestions, want 1 (only r-hot has enough observations)", len(suggestions))
	}
	sg := suggestions[0]
	if sg.RiskID != "r-hot" || sg.Parameter != "expected_impact" {
		t.Errorf("suggestion targets %s/%s", sg.RiskID, sg.Parameter)
	}
	if math.Abs(sg.SuggestedValue-8000) > 1e-9 {
		t.Errorf("suggested value = %v, want the similar projects' 8000", sg.SuggestedValue)
	}
	if sg.Confidence <= 0 || sg.Confidence > 1 {
		t.Errorf("confidence = %v", sg.Confidence)
	}
	if len(sg.SupportingProjects) != 5 {
		t.Errorf("supporting projects = %v", sg.SupportingProjects)
	}
	for _, p := range sg.SupportingProjects {
		if p == "other-1" {
			t.Error("dissimilar project cited as support")
		}
	}

	if _, err := e.SuggestParameters(ctx, similar, risks, 1.5); err == nil {
		t.Error("min_similarity 1.5 accepted")
	}
}

func TestSuggestParametersOrdering(t *testing.T) {
	e, s := testEngine(t)
	chars := map[string]any{"domain": "payments"}

	// r-strong gets 10 observations, r-weak only 3; more evidence means
	// higher confidence at equal similarity.
	for i := 0; i < 10; i++ {
		out := calibrate.ProjectOutcome{
			ProjectID:       fmt.Sprintf("p-%d", i),
			BaselineCost:    1000,
			ActualCost:      1100,
			RiskOutcomes:    map[string]float64{"r-strong": 500},
			Characteristics: chars,
		}
		if i < 3 {
			out.RiskOutcomes["r-weak"] = 200
		}
		putOutcome(t, s, out)
	}

	risks := []risk.Risk{targetRisk(t, "r-weak", 100), targetRisk(t, "r-strong", 100)}
	suggestions, err := e.SuggestParameters(context.Background(), chars, risks, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(suggestions))
	}
	if suggestions[0].RiskID != "r-strong" {
		t.Errorf("first suggestion is %s, want the higher-confidence r-strong", suggestions[0].RiskID)
	}
	if suggestions[0].Confidence <= suggestions[1].Confidence {
		t.Errorf("confidence not descending: %v then %v", suggestions[0].Confidence, suggestions[1].Confidence)
	}
}

func TestRecommendAssumptionUpdates(t *testing.T) {
	e, s := testEngine(t)

	// Software projects run 40% over on cost, consistently: a high-priority
	// update. Hardware projects land within 2% and must not be flagged.
	for i := 0; i < 6; i++ {
		putOutcome(t, s, calibrate.ProjectOutcome{
			ProjectID:        fmt.Sprintf("sw-%d", i),
			ProjectType:      "software",
			BaselineCost:     10000,
			ActualCost:       14000,
			BaselineDuration: 100,
			ActualDuration:   101,
		})
		putOutcome(t, s, calibrate.ProjectOutcome{
			ProjectID:        fmt.Sprintf("hw-%d", i),
			ProjectType:      "hardware",
			BaselineCost:     10000,
			ActualCost:       10100,
			BaselineDuration: 100,
			ActualDuration:   100,
		})
	}

	updates, err := e.RecommendAssumptionUpdates(context.Background(), 0.3, 2)
	if err != nil {
		t.Fatalf("RecommendAssumptionUpdates: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1: %+v", len(updates), updates)
	}
	u := updates[0]
	if u.Assumption != "cost_factor:software" {
		t.Errorf("assumption = %q", u.Assumption)
	}
	if u.Priority != PriorityHigh {
		t.Errorf("priority = %v, want high for a 40%% overrun", u.Priority)
	}
	if math.Abs(u.RecommendedValue-1.4) > 1e-9 {
		t.Errorf("recommended value = %v, want 1.4", u.RecommendedValue)
	}
	if u.ProjectCount != 6 {
		t.Errorf("project count = %d", u.ProjectCount)
	}
	if u.EvidenceStrength < 0.3 {
		t.Errorf("evidence = %v below the requested floor", u.EvidenceStrength)
	}
}

func TestRecommendAssumptionUpdatesOrdering(t *testing.T) {
	e, s := testEngine(t)

	// Duration runs 12% over (medium), cost 40% over (high); high sorts first.
	for i := 0; i < 4; i++ {
		putOutcome(t, s, calibrate.ProjectOutcome{
			ProjectID:        fmt.Sprintf("p-%d", i),
			ProjectType:      "software",
			BaselineCost:     10000,
			ActualCost:       14000,
			BaselineDuration: 100,
			ActualDuration:   112,
		})
	}

	updates, err := e.RecommendAssumptionUpdates(context.Background(), 0.3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	if updates[0].Priority != PriorityHigh || updates[1].Priority != PriorityMedium {
		t.Errorf("priorities = %v, %v; want high then medium", updates[0].Priority, updates[1].Priority)
	}
}

func TestTrackImprovementMetrics(t *testing.T) {
	e, _ := testEngine(t)

	baseline := 40.0
	first := e.TrackImprovementMetrics("cost_mape", 30, &baseline)
	if math.Abs(first.ImprovementPercentage-25) > 1e-9 {
		t.Errorf("improvement = %v%%, want 25", first.ImprovementPercentage)
	}
	if first.Trend != string(calibrate.TrendStable) {
		t.Errorf("first observation trend = %v, want stable", first.Trend)
	}

	second := e.TrackImprovementMetrics("cost_mape", 20, &baseline)
	if second.Trend != string(calibrate.TrendImproving) {
		t.Errorf("falling error trend = %v, want improving", second.Trend)
	}

	third := e.TrackImprovementMetrics("cost_mape", 35, &baseline)
	if third.Trend != string(calibrate.TrendDegrading) {
		t.Errorf("rising error trend = %v, want degrading", third.Trend)
	}

	noBaseline := e.TrackImprovementMetrics("schedule_mape", 10, nil)
	if noBaseline.ImprovementPercentage != 0 || noBaseline.BaselineValue != nil {
		t.Errorf("baseline-free observation: %+v", noBaseline)
	}
}

func TestGetImprovementSummary(t *testing.T) {
	e, _ := testEngine(t)

	e.TrackImprovementMetrics("a", 10, nil)
	e.TrackImprovementMetrics("a", 5, nil) // improving
	e.TrackImprovementMetrics("b", 10, nil)
	e.TrackImprovementMetrics("b", 20, nil) // degrading
	e.TrackImprovementMetrics("c", 7, nil)  // stable (single observation)

	s := e.GetImprovementSummary()
	if s.TrackedMetrics != 3 {
		t.Errorf("tracked = %d, want 3", s.TrackedMetrics)
	}
	if s.Improving != 1 || s.Degrading != 1 || s.Stable != 1 {
		t.Errorf("buckets = %d/%d/%d, want 1/1/1", s.Improving, s.Stable, s.Degrading)
	}
	if s.Improving+s.Stable+s.Degrading != s.TrackedMetrics {
		t.Error("buckets do not sum to the tracked count")
	}
	if s.Observations != 5 {
		t.Errorf("observations = %d, want 5", s.Observations)
	}
}
