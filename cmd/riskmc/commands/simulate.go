package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"riskmc/internal/model"
	"riskmc/internal/output"
	"riskmc/internal/sim"
	"riskmc/internal/visuals"
)

var (
	simulateBudget float64
	simulateSeed   int64
	simulateCharts bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <model-file>",
	Short: "Run a Monte Carlo simulation of a risk model file (YAML or JSON)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := model.LoadFile(args[0])
		if err != nil {
			return err
		}

		simCfg := m.Config
		if cmd.Flags().Changed("seed") {
			simCfg = simCfg.WithSeed(simulateSeed)
		}

		engine, err := sim.NewEngine(simCfg)
		if err != nil {
			return err
		}
		results, err := engine.Run(m.Risks, m.Matrix, m.CrossImpacts)
		if err != nil {
			return err
		}

		report := map[string]any{
			"simulation_id": results.SimulationID,
			"state":         string(results.State),
			"iterations":    results.IterationCount,
		}
		var costSummary *output.DistributionSummary
		if summary, err := output.Summarize(results.CostOutcomes); err == nil {
			costSummary = summary
			report["cost"] = summary
		}
		if summary, err := output.Summarize(results.ScheduleOutcomes); err == nil {
			report["schedule"] = summary
		}
		if simulateBudget > 0 {
			compliance, err := output.BudgetCompliance(results, simulateBudget, nil)
			if err != nil {
				return err
			}
			report["budget_compliance"] = compliance
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}

		if simulateCharts {
			fmt.Println(visuals.GenerateOutcomeHistogram(results.CostOutcomes, "Total Cost Outcomes", "cost"))
			fmt.Println(visuals.GeneratePercentileChart(costSummary, "Cost Percentiles"))
			if simulateBudget > 0 {
				fmt.Println(visuals.GenerateComplianceCurve(results.CostOutcomes, simulateBudget))
			}
		}
		return nil
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateBudget, "budget", 0, "target budget for compliance analysis")
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 0, "explicit random seed for reproducible runs")
	simulateCmd.Flags().BoolVar(&simulateCharts, "charts", false, "print Mermaid charts of the outcome distributions")
	rootCmd.AddCommand(simulateCmd)
}
