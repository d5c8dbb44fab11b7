package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"riskmc/internal/calibrate"
	"riskmc/internal/model"
	"riskmc/internal/output"
	"riskmc/internal/sim"
	"riskmc/internal/validate"
	"riskmc/internal/visuals"
)

// handleValidateModel implements the validate_model tool. Build errors are
// reported as validation errors, not tool failures, so clients always get a
// structured result for a well-formed request.
func (s *Server) handleValidateModel(ctx context.Context, req *sdk.CallToolRequest, args ValidateModelInput) (*sdk.CallToolResult, ValidateModelOutput, error) {
	built, err := args.Model.Build()
	if err != nil {
		return nil, ValidateModelOutput{
			IsValid: false,
			Errors:  []string{err.Error()},
		}, nil
	}

	result := validate.ValidateModel(built.Risks, built.Matrix)
	out := ValidateModelOutput{
		IsValid:  result.IsValid,
		Errors:   result.Errors,
		Warnings: result.Warnings,
	}
	if built.Matrix != nil {
		if ok, _ := built.Matrix.IsPositiveSemiDefinite(); !ok {
			out.Suggestions = validate.SuggestCorrelationMatrixFixes(built.Matrix)
		}
	}
	return nil, out, nil
}

// withDefaultPreset fills in the server's configured preset for model files
// that do not pick one themselves.
func (s *Server) withDefaultPreset(f model.File) model.File {
	if f.Preset == "" {
		f.Preset = s.appConfig.DefaultPreset
	}
	return f
}

// handleRunSimulation implements the run_simulation tool.
func (s *Server) handleRunSimulation(ctx context.Context, req *sdk.CallToolRequest, args RunSimulationInput) (*sdk.CallToolResult, RunSimulationOutput, error) {
	built, err := s.withDefaultPreset(args.Model).Build()
	if err != nil {
		return nil, RunSimulationOutput{}, err
	}

	engine, err := sim.NewEngine(built.Config)
	if err != nil {
		return nil, RunSimulationOutput{}, err
	}
	results, err := engine.Run(built.Risks, built.Matrix, built.CrossImpacts)
	if err != nil {
		return nil, RunSimulationOutput{}, err
	}

	out := RunSimulationOutput{
		SimulationID:    results.SimulationID,
		State:           string(results.State),
		Iterations:      results.IterationCount,
		ExecutionTimeMS: results.ExecutionTime.Milliseconds(),
		Converged:       results.Convergence.Converged,
		Contributions:   meanContributions(results),
	}
	if summary, err := output.Summarize(results.CostOutcomes); err == nil {
		out.CostSummary = toSummaryOutput(summary)
	}
	if summary, err := output.Summarize(results.ScheduleOutcomes); err == nil {
		out.ScheduleSummary = toSummaryOutput(summary)
	}

	if s.appConfig.EnableMermaidCharts {
		if chart := visuals.GenerateOutcomeHistogram(results.CostOutcomes, "Total Cost Outcomes", "cost"); chart != "" {
			out.Charts = append(out.Charts, chart)
		}
		if chart := visuals.GenerateContributionChart(results); chart != "" {
			out.Charts = append(out.Charts, chart)
		}
	}
	return nil, out, nil
}

// handleAnalyzeBudget implements the analyze_budget tool.
func (s *Server) handleAnalyzeBudget(ctx context.Context, req *sdk.CallToolRequest, args AnalyzeBudgetInput) (*sdk.CallToolResult, AnalyzeBudgetOutput, error) {
	if args.TargetBudget <= 0 {
		return nil, AnalyzeBudgetOutput{}, fmt.Errorf("target_budget must be > 0, got %.2f", args.TargetBudget)
	}

	built, err := s.withDefaultPreset(args.Model).Build()
	if err != nil {
		return nil, AnalyzeBudgetOutput{}, err
	}

	engine, err := sim.NewEngine(built.Config)
	if err != nil {
		return nil, AnalyzeBudgetOutput{}, err
	}
	results, err := engine.Run(built.Risks, built.Matrix, built.CrossImpacts)
	if err != nil {
		return nil, AnalyzeBudgetOutput{}, err
	}

	compliance, err := output.BudgetCompliance(results, args.TargetBudget, args.ConfidenceLevels)
	if err != nil {
		return nil, AnalyzeBudgetOutput{}, err
	}
	vaR, err := output.ValueAtRisk(results.CostOutcomes, args.ConfidenceLevels)
	if err != nil {
		return nil, AnalyzeBudgetOutput{}, err
	}
	cvaR, err := output.ConditionalValueAtRisk(results.CostOutcomes, args.ConfidenceLevels)
	if err != nil {
		return nil, AnalyzeBudgetOutput{}, err
	}

	out := AnalyzeBudgetOutput{
		ComplianceProbability: compliance.ComplianceProbability,
		ComplianceLevel:       string(compliance.ComplianceLevel),
		CostAtRisk:            compliance.CostAtRisk,
		ValueAtRisk:           vaR,
		ConditionalVaR:        cvaR,
		PercentileAnalysis:    compliance.PercentileAnalysis,
	}
	if s.appConfig.EnableMermaidCharts {
		if chart := visuals.GenerateComplianceCurve(results.CostOutcomes, args.TargetBudget); chart != "" {
			out.Charts = append(out.Charts, chart)
		}
	}
	return nil, out, nil
}

// handleRecordOutcome implements the record_outcome tool.
func (s *Server) handleRecordOutcome(ctx context.Context, req *sdk.CallToolRequest, args RecordOutcomeInput) (*sdk.CallToolResult, RecordOutcomeOutput, error) {
	completion := time.Now()
	if args.CompletionDate != "" {
		parsed, err := time.Parse(time.RFC3339, args.CompletionDate)
		if err != nil {
			return nil, RecordOutcomeOutput{}, fmt.Errorf("completion_date must be RFC3339: %w", err)
		}
		completion = parsed
	}

	outcome := calibrate.ProjectOutcome{
		ProjectID:        args.ProjectID,
		ProjectType:      args.ProjectType,
		CompletionDate:   completion,
		ActualCost:       args.ActualCost,
		BaselineCost:     args.BaselineCost,
		ActualDuration:   args.ActualDuration,
		BaselineDuration: args.BaselineDuration,
		RiskOutcomes:     args.RiskOutcomes,
		Characteristics:  args.Characteristics,
	}
	if err := s.calibrator.AddProjectOutcome(ctx, outcome); err != nil {
		return nil, RecordOutcomeOutput{}, err
	}

	return nil, RecordOutcomeOutput{
		ProjectID: args.ProjectID,
		Message:   fmt.Sprintf("Recorded outcome for project %q (%d risk impacts)", args.ProjectID, len(args.RiskOutcomes)),
	}, nil
}

// handleCalibrateRisk implements the calibrate_risk tool.
func (s *Server) handleCalibrateRisk(ctx context.Context, req *sdk.CallToolRequest, args CalibrateRiskInput) (*sdk.CallToolResult, CalibrateRiskOutput, error) {
	built, err := (model.File{Risks: []model.RiskSpec{args.Risk}}).Build()
	if err != nil {
		return nil, CalibrateRiskOutput{}, err
	}

	result, err := s.calibrator.CalibrateDistribution(ctx, built.Risks[0], args.ProjectType)
	if err != nil {
		return nil, CalibrateRiskOutput{}, err
	}

	return nil, CalibrateRiskOutput{
		RiskID:           result.RiskID,
		DistributionType: string(result.DistributionType),
		Parameters:       result.Parameters,
		SampleSize:       result.SampleSize,
		GoodnessOfFit:    result.GoodnessOfFit,
		ConfidenceLevel:  result.ConfidenceLevel,
	}, nil
}

// handleSuggestParameters implements the suggest_parameters tool.
func (s *Server) handleSuggestParameters(ctx context.Context, req *sdk.CallToolRequest, args SuggestParametersInput) (*sdk.CallToolResult, SuggestParametersOutput, error) {
	built, err := args.Model.Build()
	if err != nil {
		return nil, SuggestParametersOutput{}, err
	}

	minSimilarity := args.MinSimilarity
	if minSimilarity == 0 {
		minSimilarity = 0.3
	}

	suggestions, err := s.improver.SuggestParameters(ctx, args.Characteristics, built.Risks, minSimilarity)
	if err != nil {
		return nil, SuggestParametersOutput{}, err
	}
	updates, err := s.improver.RecommendAssumptionUpdates(ctx, 0.3, 2)
	if err != nil {
		return nil, SuggestParametersOutput{}, err
	}

	out := SuggestParametersOutput{Count: len(suggestions)}
	for _, sg := range suggestions {
		out.Suggestions = append(out.Suggestions, SuggestionOutput{
			RiskID:             sg.RiskID,
			Parameter:          sg.Parameter,
			CurrentValue:       sg.CurrentValue,
			SuggestedValue:     sg.SuggestedValue,
			Confidence:         sg.Confidence,
			SupportingProjects: sg.SupportingProjects,
			Reasoning:          sg.Reasoning,
		})
	}
	for _, u := range updates {
		out.Updates = append(out.Updates, AssumptionUpdateOutput{
			Assumption:       u.Assumption,
			CurrentValue:     u.CurrentValue,
			RecommendedValue: u.RecommendedValue,
			Priority:         string(u.Priority),
			EvidenceStrength: u.EvidenceStrength,
			ProjectCount:     u.ProjectCount,
			Rationale:        u.Rationale,
		})
	}
	return nil, out, nil
}

// handleImprovementSummary implements the improvement_summary tool.
func (s *Server) handleImprovementSummary(ctx context.Context, req *sdk.CallToolRequest, args ImprovementSummaryInput) (*sdk.CallToolResult, ImprovementSummaryOutput, error) {
	summary := s.improver.GetImprovementSummary()
	out := ImprovementSummaryOutput{
		TrackedMetrics: summary.TrackedMetrics,
		Improving:      summary.Improving,
		Stable:         summary.Stable,
		Degrading:      summary.Degrading,
		Observations:   summary.Observations,
	}

	if args.ModelID != "" {
		trend, err := s.calibrator.PerformanceTrend(ctx, args.ModelID)
		if err != nil {
			return nil, ImprovementSummaryOutput{}, err
		}
		out.AccuracyTrend = string(trend)
	}
	return nil, out, nil
}

func meanContributions(results *sim.Results) map[string]float64 {
	out := make(map[string]float64, len(results.RiskContributions))
	for id, sample := range results.RiskContributions {
		if len(sample) == 0 {
			continue
		}
		sum := 0.0
		for _, v := range sample {
			sum += v
		}
		out[id] = sum / float64(len(sample))
	}
	return out
}

func toSummaryOutput(s *output.DistributionSummary) *SummaryOutput {
	return &SummaryOutput{
		Mean:        s.Mean,
		Median:      s.Median,
		StdDev:      s.StdDev,
		Min:         s.Min,
		Max:         s.Max,
		Percentiles: s.Percentiles,
	}
}
