package commands

import (
	"riskmc/internal/config"
	"riskmc/internal/logging"
	"riskmc/internal/mcp"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "riskmc",
	Short: "riskmc is a Monte Carlo risk simulation MCP server",
	Long: `An MCP server that quantifies project risk through Monte Carlo simulation:
correlated risk sampling, budget compliance analysis, and calibration of risk
models against realized project outcomes.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		cfg, err = config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
		if err := logging.Init(cfg.LogDir, verbose); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize logging")
		}

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("riskmc starting")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Info().Msg("MCP Server starting Stdio loop")
		server, err := mcp.NewServer("riskmc", Version, cfg)
		if err != nil {
			return err
		}
		return server.Run(cmd.Context())
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}
