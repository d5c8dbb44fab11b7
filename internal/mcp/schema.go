// Package mcp exposes the risk simulation engine as an MCP (Model Context
// Protocol) server over stdio.
package mcp

import (
	"riskmc/internal/model"
)

// ValidateModelInput defines the input for the validate_model tool.
type ValidateModelInput struct {
	Model model.File `json:"model" jsonschema:"description=Risk model to validate (risks, correlations, cross impacts),required"`
}

// ValidateModelOutput defines the output for the validate_model tool.
type ValidateModelOutput struct {
	IsValid     bool     `json:"is_valid" jsonschema:"description=Whether the model passed validation"`
	Errors      []string `json:"errors,omitempty" jsonschema:"description=Blocking validation errors"`
	Warnings    []string `json:"warnings,omitempty" jsonschema:"description=Non-blocking validation warnings"`
	Suggestions []string `json:"suggestions,omitempty" jsonschema:"description=Suggested correlation matrix fixes when the matrix is invalid"`
}

// RunSimulationInput defines the input for the run_simulation tool.
type RunSimulationInput struct {
	Model model.File `json:"model" jsonschema:"description=Risk model to simulate,required"`
}

// RunSimulationOutput defines the output for the run_simulation tool.
type RunSimulationOutput struct {
	SimulationID    string             `json:"simulation_id" jsonschema:"description=Unique id of this run"`
	State           string             `json:"state" jsonschema:"description=Terminal run state: CONVERGED, EXHAUSTED, TIMED_OUT or FAILED"`
	Iterations      int                `json:"iterations" jsonschema:"description=Iterations actually executed"`
	ExecutionTimeMS int64              `json:"execution_time_ms" jsonschema:"description=Wall-clock execution time in milliseconds"`
	Converged       bool               `json:"converged" jsonschema:"description=Whether adaptive convergence was reached"`
	CostSummary     *SummaryOutput     `json:"cost_summary,omitempty" jsonschema:"description=Distribution summary of total cost outcomes"`
	ScheduleSummary *SummaryOutput     `json:"schedule_summary,omitempty" jsonschema:"description=Distribution summary of total schedule outcomes"`
	Contributions   map[string]float64 `json:"contributions,omitempty" jsonschema:"description=Mean realized impact per risk id"`
	Charts          []string           `json:"charts,omitempty" jsonschema:"description=Mermaid charts of the outcome distributions"`
}

// SummaryOutput is the serialized distribution summary shared by tools.
type SummaryOutput struct {
	Mean        float64            `json:"mean"`
	Median      float64            `json:"median"`
	StdDev      float64            `json:"std_dev"`
	Min         float64            `json:"min"`
	Max         float64            `json:"max"`
	Percentiles map[string]float64 `json:"percentiles"`
}

// AnalyzeBudgetInput defines the input for the analyze_budget tool.
type AnalyzeBudgetInput struct {
	Model            model.File `json:"model" jsonschema:"description=Risk model to simulate,required"`
	TargetBudget     float64    `json:"target_budget" jsonschema:"description=Budget to test cost outcomes against,required"`
	ConfidenceLevels []float64  `json:"confidence_levels,omitempty" jsonschema:"description=Confidence levels for intervals and VaR (default 0.80 0.90 0.95)"`
}

// AnalyzeBudgetOutput defines the output for the analyze_budget tool.
type AnalyzeBudgetOutput struct {
	ComplianceProbability float64            `json:"compliance_probability" jsonschema:"description=P(total cost <= target budget)"`
	ComplianceLevel       string             `json:"compliance_level" jsonschema:"description=VERY_HIGH, HIGH, MEDIUM or LOW"`
	CostAtRisk            float64            `json:"cost_at_risk" jsonschema:"description=Expected overrun beyond the budget"`
	ValueAtRisk           map[string]float64 `json:"value_at_risk" jsonschema:"description=Cost quantile per confidence level"`
	ConditionalVaR        map[string]float64 `json:"conditional_var" jsonschema:"description=Expected cost beyond the VaR cut per confidence level"`
	PercentileAnalysis    map[string]float64 `json:"percentile_analysis" jsonschema:"description=Cost outcome percentile ladder"`
	Charts                []string           `json:"charts,omitempty" jsonschema:"description=Mermaid compliance-curve chart"`
}

// RecordOutcomeInput defines the input for the record_outcome tool.
type RecordOutcomeInput struct {
	ProjectID        string             `json:"project_id" jsonschema:"description=Unique project id; re-recording replaces the earlier entry,required"`
	ProjectType      string             `json:"project_type,omitempty" jsonschema:"description=Project type label used for calibration filtering"`
	CompletionDate   string             `json:"completion_date,omitempty" jsonschema:"description=RFC3339 completion date (default: now)"`
	ActualCost       float64            `json:"actual_cost" jsonschema:"description=Realized total cost,required"`
	BaselineCost     float64            `json:"baseline_cost,omitempty" jsonschema:"description=Planned total cost"`
	ActualDuration   float64            `json:"actual_duration,omitempty" jsonschema:"description=Realized duration in days"`
	BaselineDuration float64            `json:"baseline_duration,omitempty" jsonschema:"description=Planned duration in days"`
	RiskOutcomes     map[string]float64 `json:"risk_outcomes,omitempty" jsonschema:"description=Realized impact per risk id"`
	Characteristics  map[string]any     `json:"characteristics,omitempty" jsonschema:"description=Project characteristics used for similarity matching"`
}

// RecordOutcomeOutput defines the output for the record_outcome tool.
type RecordOutcomeOutput struct {
	ProjectID string `json:"project_id"`
	Message   string `json:"message" jsonschema:"description=Human-readable result message"`
}

// CalibrateRiskInput defines the input for the calibrate_risk tool.
type CalibrateRiskInput struct {
	Risk        model.RiskSpec `json:"risk" jsonschema:"description=Risk whose distribution should be refitted,required"`
	ProjectType string         `json:"project_type,omitempty" jsonschema:"description=Restrict calibration to outcomes of this project type"`
}

// CalibrateRiskOutput defines the output for the calibrate_risk tool.
type CalibrateRiskOutput struct {
	RiskID           string             `json:"risk_id"`
	DistributionType string             `json:"distribution_type" jsonschema:"description=Family of the refitted distribution (unchanged from the input)"`
	Parameters       map[string]float64 `json:"parameters" jsonschema:"description=Refitted distribution parameters"`
	SampleSize       int                `json:"sample_size" jsonschema:"description=Matching historical impacts used"`
	GoodnessOfFit    float64            `json:"goodness_of_fit" jsonschema:"description=1 - KS statistic, in [0,1]"`
	ConfidenceLevel  float64            `json:"confidence_level" jsonschema:"description=Confidence in the refit, grows with sample size"`
}

// SuggestParametersInput defines the input for the suggest_parameters tool.
type SuggestParametersInput struct {
	Model           model.File     `json:"model" jsonschema:"description=Risk model whose parameters should be reviewed,required"`
	Characteristics map[string]any `json:"characteristics,omitempty" jsonschema:"description=Characteristics of the target project"`
	MinSimilarity   float64        `json:"min_similarity,omitempty" jsonschema:"description=Minimum project similarity in [0,1] (default 0.3)"`
}

// SuggestParametersOutput defines the output for the suggest_parameters tool.
type SuggestParametersOutput struct {
	Suggestions []SuggestionOutput       `json:"suggestions" jsonschema:"description=Parameter suggestions sorted by descending confidence"`
	Updates     []AssumptionUpdateOutput `json:"assumption_updates,omitempty" jsonschema:"description=Standard-assumption updates sorted by priority"`
	Count       int                      `json:"count"`
}

// SuggestionOutput is one serialized parameter suggestion.
type SuggestionOutput struct {
	RiskID             string   `json:"risk_id"`
	Parameter          string   `json:"parameter"`
	CurrentValue       float64  `json:"current_value"`
	SuggestedValue     float64  `json:"suggested_value"`
	Confidence         float64  `json:"confidence"`
	SupportingProjects []string `json:"supporting_projects"`
	Reasoning          string   `json:"reasoning"`
}

// AssumptionUpdateOutput is one serialized standard-assumption update.
type AssumptionUpdateOutput struct {
	Assumption       string  `json:"assumption"`
	CurrentValue     float64 `json:"current_value"`
	RecommendedValue float64 `json:"recommended_value"`
	Priority         string  `json:"priority"`
	EvidenceStrength float64 `json:"evidence_strength"`
	ProjectCount     int     `json:"project_count"`
	Rationale        string  `json:"rationale"`
}

// ImprovementSummaryInput defines the input for the improvement_summary tool.
type ImprovementSummaryInput struct {
	ModelID string `json:"model_id,omitempty" jsonschema:"description=Model whose accuracy trend should be included"`
}

// ImprovementSummaryOutput defines the output for the improvement_summary tool.
type ImprovementSummaryOutput struct {
	TrackedMetrics int    `json:"tracked_metrics"`
	Improving      int    `json:"improving"`
	Stable         int    `json:"stable"`
	Degrading      int    `json:"degrading"`
	Observations   int    `json:"observations"`
	AccuracyTrend  string `json:"accuracy_trend,omitempty" jsonschema:"description=improving, stable or degrading for the given model id"`
}
