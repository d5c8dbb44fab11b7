// Package improve mines the accumulated outcome history for cross-project
// signals: parameter suggestions for similar projects, standard-assumption
// updates, and improvement metrics over time. Everything it produces is a
// read-only recommendation; live risks are never mutated here.
package improve

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"riskmc/internal/calibrate"
	"riskmc/internal/risk"
)

// Similarity scores how alike two characteristic sets are, in [0,1].
// The score is symmetric: Similarity(a, b) == Similarity(b, a). Matching is
// Dice-style over shared keys: string values must match exactly, numeric
// values score by relative closeness, and both-empty sets count as identical.
func Similarity(a, b map[string]any) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchSum := 0.0
	for key, va := range a {
		vb, ok := b[key]
		if !ok {
			continue
		}
		matchSum += 2 * valueCloseness(va, vb)
	}
	return matchSum / float64(len(a)+len(b))
}

// valueCloseness compares two characteristic values in [0,1]. Numeric pairs
// score by relative distance; everything else by string equality.
func valueCloseness(a, b any) float64 {
	fa, aNum := asFloat(a)
	fb, bNum := asFloat(b)
	if aNum && bNum {
		denom := math.Max(math.Max(math.Abs(fa), math.Abs(fb)), 1)
		c := 1 - math.Abs(fa-fb)/denom
		if c < 0 {
			return 0
		}
		return c
	}
	if fmt.Sprint(a) == fmt.Sprint(b) {
		return 1
	}
	return 0
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ParameterSuggestion proposes a recalibrated parameter for one risk, backed
// by similar historical projects.
type ParameterSuggestion struct {
	RiskID             string   `json:"risk_id"`
	Parameter          string   `json:"parameter"`
	CurrentValue       float64  `json:"current_value"`
	SuggestedValue     float64  `json:"suggested_value"`
	Confidence         float64  `json:"confidence"`
	SupportingProjects []string `json:"supporting_projects"`
	Reasoning          string   `json:"reasoning"`
}

// UpdatePriority ranks a standard-assumption update.
type UpdatePriority string

const (
	PriorityHigh   UpdatePriority = "high"
	PriorityMedium UpdatePriority = "medium"
	PriorityLow    UpdatePriority = "low"
)

func (p UpdatePriority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// StandardAssumptionUpdate recommends adjusting a planning assumption based
// on systematic deviation across the outcome history.
type StandardAssumptionUpdate struct {
	Assumption       string         `json:"assumption"`
	CurrentValue     float64        `json:"current_value"`
	RecommendedValue float64        `json:"recommended_value"`
	Priority         UpdatePriority `json:"priority"`
	EvidenceStrength float64        `json:"evidence_strength"`
	ProjectCount     int            `json:"project_count"`
	Rationale        string         `json:"rationale"`
}

// ImprovementMetrics is one tracked observation of a named metric. Lower
// values are treated as better (the tracked metrics are error measures).
type ImprovementMetrics struct {
	Name                  string    `json:"name"`
	CurrentValue          float64   `json:"current_value"`
	BaselineValue         *float64  `json:"baseline_value,omitempty"`
	ImprovementPercentage float64   `json:"improvement_percentage"`
	Trend                 string    `json:"trend"`
	RecordedAt            time.Time `json:"recorded_at"`
}

// Summary aggregates the tracked improvement history. Trend-bucket counts
// always sum to TrackedMetrics.
type Summary struct {
	TrackedMetrics int `json:"tracked_metrics"`
	Improving      int `json:"improving"`
	Stable         int `json:"stable"`
	Degrading      int `json:"degrading"`
	Observations   int `json:"observations"`
}

// Engine performs cross-project improvement analysis over the outcome store.
// Its metrics history is the only mutable state it owns.
type Engine struct {
	store *calibrate.Store

	mu      sync.Mutex
	metrics map[string][]ImprovementMetrics
}

// NewEngine wraps an outcome store.
func NewEngine(store *calibrate.Store) *Engine {
	return &Engine{store: store, metrics: make(map[string][]ImprovementMetrics)}
}

// SuggestParameters proposes distribution-mean adjustments for the target
// risks based on projects whose characteristics are at least minSimilarity
// close to the target. Suggestions are sorted by descending confidence and
// each cites its supporting projects.
func (e *Engine) SuggestParameters(ctx context.Context, target map[string]any, targetRisks []risk.Risk, minSimilarity float64) ([]ParameterSuggestion, error) {
	if minSimilarity < 0 || minSimilarity > 1 {
		return nil, fmt.Errorf("suggest parameters: min_similarity must be within [0,1], got %.3f", minSimilarity)
	}

	outcomes, err := e.store.Outcomes(ctx)
	if err != nil {
		return nil, err
	}

	type observation struct {
		projectID  string
		similarity float64
		impact     float64
	}
	byRisk := make(map[string][]observation)
	for _, o := range outcomes {
		sim := Similarity(target, o.Characteristics)
		if sim < minSimilarity {
			continue
		}
		for riskID, impact := range o.RiskOutcomes {
			byRisk[riskID] = append(byRisk[riskID], observation{projectID: o.ProjectID, similarity: sim, impact: impact})
		}
	}

	var suggestions []ParameterSuggestion
	for _, r := range targetRisks {
		obs := byRisk[r.ID]
		if len(obs) < 3 {
			continue
		}

		weightedSum, weight := 0.0, 0.0
		simSum := 0.0
		projects := make([]string, 0, len(obs))
		for _, ob := range obs {
			weightedSum += ob.impact * ob.similarity
			weight += ob.similarity
			simSum += ob.similarity
			projects = append(projects, ob.projectID)
		}
		if weight == 0 {
			continue
		}
		suggested := weightedSum / weight
		avgSim := simSum / float64(len(obs))
		current := r.BaselineImpact + r.Distribution.Mean()
		n := float64(len(obs))
		confidence := clamp01(avgSim * n / (n + 5))

		suggestions = append(suggestions, ParameterSuggestion{
			RiskID:             r.ID,
			Parameter:          "expected_impact",
			CurrentValue:       current,
			SuggestedValue:     suggested,
			Confidence:         confidence,
			SupportingProjects: projects,
			Reasoning: fmt.Sprintf(
				"%d similar projects (average similarity %.2f) realized a similarity-weighted mean impact of %.2f for risk %q, versus the model's expected %.2f.",
				len(obs), avgSim, suggested, r.ID, current),
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].RiskID < suggestions[j].RiskID
	})
	return suggestions, nil
}

// RecommendAssumptionUpdates looks for systematic cost and duration bias per
// project type. Updates are sorted by priority, then by descending evidence
// strength within a tier.
func (e *Engine) RecommendAssumptionUpdates(ctx context.Context, minEvidence float64, minProjects int) ([]StandardAssumptionUpdate, error) {
	if minProjects < 2 {
		minProjects = 2
	}
	outcomes, err := e.store.Outcomes(ctx)
	if err != nil {
		return nil, err
	}

	costRatios := make(map[string][]float64)
	durationRatios := make(map[string][]float64)
	for _, o := range outcomes {
		if o.BaselineCost > 0 {
			costRatios[o.ProjectType] = append(costRatios[o.ProjectType], o.ActualCost/o.BaselineCost)
		}
		if o.BaselineDuration > 0 {
			durationRatios[o.ProjectType] = append(durationRatios[o.ProjectType], o.ActualDuration/o.BaselineDuration)
		}
	}

	var updates []StandardAssumptionUpdate
	appendUpdates := func(kind string, ratios map[string][]float64) {
		for projectType, rs := range ratios {
			if len(rs) < minProjects {
				continue
			}
			mean, stdDev := meanStd(rs)
			deviation := math.Abs(mean - 1)
			if deviation < 0.02 {
				continue
			}
			// Consistent ratios are strong evidence; noisy ones are weak.
			evidence := clamp01(1 - stdDev/math.Max(mean, 1e-9))
			if evidence < minEvidence {
				continue
			}

			priority := PriorityLow
			if deviation >= 0.25 {
				priority = PriorityHigh
			} else if deviation >= 0.10 {
				priority = PriorityMedium
			}

			updates = append(updates, StandardAssumptionUpdate{
				Assumption:       fmt.Sprintf("%s_factor:%s", kind, nonEmpty(projectType, "all")),
				CurrentValue:     1.0,
				RecommendedValue: mean,
				Priority:         priority,
				EvidenceStrength: evidence,
				ProjectCount:     len(rs),
				Rationale: fmt.Sprintf(
					"%d %s projects realized a mean actual/baseline %s ratio of %.2f; baselines should carry a %+.0f%% adjustment.",
					len(rs), nonEmpty(projectType, "untyped"), kind, mean, (mean-1)*100),
			})
		}
	}
	appendUpdates("cost", costRatios)
	appendUpdates("duration", durationRatios)

	sort.SliceStable(updates, func(i, j int) bool {
		if updates[i].Priority != updates[j].Priority {
			return updates[i].Priority.rank() < updates[j].Priority.rank()
		}
		if updates[i].EvidenceStrength != updates[j].EvidenceStrength {
			return updates[i].EvidenceStrength > updates[j].EvidenceStrength
		}
		return updates[i].Assumption < updates[j].Assumption
	})
	return updates, nil
}

// TrackImprovementMetrics appends one observation of a named metric. When a
// non-zero baseline is given, the improvement percentage is
// (baseline - current) / |baseline| * 100. The trend compares against the
// previous observation of the same metric.
func (e *Engine) TrackImprovementMetrics(name string, current float64, baseline *float64) ImprovementMetrics {
	m := ImprovementMetrics{
		Name:         name,
		CurrentValue: current,
		Trend:        string(calibrate.TrendStable),
		RecordedAt:   time.Now(),
	}
	if baseline != nil {
		b := *baseline
		m.BaselineValue = &b
		if b != 0 {
			m.ImprovementPercentage = (b - current) / math.Abs(b) * 100
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	history := e.metrics[name]
	if len(history) > 0 {
		prev := history[len(history)-1].CurrentValue
		if current < prev {
			m.Trend = string(calibrate.TrendImproving)
		} else if current > prev {
			m.Trend = string(calibrate.TrendDegrading)
		}
	}
	e.metrics[name] = append(history, m)
	return m
}

// GetImprovementSummary aggregates the tracked history. Each metric is
// bucketed by its latest trend, so the buckets always sum to TrackedMetrics.
func (e *Engine) GetImprovementSummary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Summary{}
	for _, history := range e.metrics {
		if len(history) == 0 {
			continue
		}
		s.TrackedMetrics++
		s.Observations += len(history)
		switch history[len(history)-1].Trend {
		case string(calibrate.TrendImproving):
			s.Improving++
		case string(calibrate.TrendDegrading):
			s.Degrading++
		default:
			s.Stable++
		}
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func meanStd(values []float64) (mean, stdDev float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / n
	if len(values) < 2 {
		return mean, 0
	}
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
