package commands

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"riskmc/internal/calibrate"
	"riskmc/internal/model"
)

var calibrateProjectType string

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <model-file>",
	Short: "Recalibrate a model's risk distributions against the outcome history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := model.LoadFile(args[0])
		if err != nil {
			return err
		}

		store, err := calibrate.NewStore(cfg.HistoryDBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		calibrator := calibrate.NewCalibrator(store)

		report := make(map[string]any, len(m.Risks))
		for _, r := range m.Risks {
			result, err := calibrator.CalibrateDistribution(cmd.Context(), r, calibrateProjectType)
			if err != nil {
				var ide *calibrate.InsufficientDataError
				if errors.As(err, &ide) {
					report[r.ID] = map[string]any{"skipped": ide.Error()}
					continue
				}
				return err
			}
			report[r.ID] = result
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	calibrateCmd.Flags().StringVar(&calibrateProjectType, "project-type", "", "only match outcomes of this project type")
	rootCmd.AddCommand(calibrateCmd)
}
