package mcp

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"riskmc/internal/calibrate"
	"riskmc/internal/config"
	"riskmc/internal/improve"
)

// Server wraps the MCP SDK server around the simulation, calibration and
// improvement engines.
type Server struct {
	server     *sdk.Server
	appConfig  *config.AppConfig
	store      *calibrate.Store
	calibrator *calibrate.Calibrator
	improver   *improve.Engine
}

// NewServer opens the outcome store and registers all tools.
func NewServer(name, version string, appConfig *config.AppConfig) (*Server, error) {
	store, err := calibrate.NewStore(appConfig.HistoryDBPath)
	if err != nil {
		return nil, fmt.Errorf("open outcome store: %w", err)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	s := &Server{
		server:     mcpServer,
		appConfig:  appConfig,
		store:      store,
		calibrator: calibrate.NewCalibrator(store),
		improver:   improve.NewEngine(store),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "validate_model",
		Description: "Validate a risk model: distribution parameters, goodness of fit, correlation matrix definiteness. Returns errors, warnings and suggested matrix fixes.",
	}, s.handleValidateModel)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "run_simulation",
		Description: "Run a Monte Carlo simulation of a risk model and return outcome distribution summaries and per-risk contributions.",
	}, s.handleRunSimulation)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "analyze_budget",
		Description: "Simulate a risk model and analyze cost outcomes against a target budget: compliance probability, cost at risk, VaR and CVaR.",
	}, s.handleAnalyzeBudget)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "record_outcome",
		Description: "Record a realized project outcome for calibration. Re-recording the same project id replaces the earlier entry.",
	}, s.handleRecordOutcome)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "calibrate_risk",
		Description: "Refit a risk's distribution (preserving its family) against recorded historical impacts.",
	}, s.handleCalibrateRisk)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "suggest_parameters",
		Description: "Suggest parameter adjustments and standard-assumption updates from outcomes of similar historical projects.",
	}, s.handleSuggestParameters)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "improvement_summary",
		Description: "Summarize tracked improvement metrics and, optionally, a model's prediction-accuracy trend.",
	}, s.handleImprovementSummary)
}

// Run serves the MCP protocol over stdio until the client disconnects or the
// process receives an interrupt.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.store.Close()
	return err
}

// Close releases the outcome store.
func (s *Server) Close() error {
	return s.store.Close()
}
