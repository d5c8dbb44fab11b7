package sim

import (
	"fmt"
	"time"
)

// Hard bounds on simulation parameters. Presets and scenario-derived configs
// always land inside these.
const (
	MinIterations = 100
	MaxIterations = 1_000_000
	MaxSeed       = 1<<31 - 1

	MinConvergenceThreshold = 0.5
	MaxConvergenceThreshold = 1.0

	MinCheckInterval = 50
)

// ConvergenceMode selects when a run stops.
type ConvergenceMode string

const (
	// ConvergenceFixed runs exactly the configured iteration count.
	ConvergenceFixed ConvergenceMode = "fixed_iterations"
	// ConvergenceAdaptive stops early once running statistics stabilize.
	ConvergenceAdaptive ConvergenceMode = "adaptive"
)

// ConfigurationError reports an out-of-bounds simulation parameter.
type ConfigurationError struct {
	Field      string
	Constraint string
	Value      any
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s must satisfy %s, got %v", e.Field, e.Constraint, e.Value)
}

// Config is the value-object configuration of a simulation run. Copies are
// independent; the With* helpers return modified copies and never share
// mutable state.
type Config struct {
	Iterations           int             `json:"iterations"`
	Seed                 *int64          `json:"random_seed,omitempty"`
	Convergence          ConvergenceMode `json:"convergence_criteria"`
	ConvergenceThreshold float64         `json:"convergence_threshold"`
	CheckInterval        int             `json:"convergence_check_interval"`
	MaxExecutionTime     time.Duration   `json:"max_execution_time,omitempty"`
	Workers              int             `json:"workers"`

	EnableCaching               bool `json:"enable_caching"`
	EnableProgress              bool `json:"enable_progress"`
	EnableConvergenceMonitoring bool `json:"enable_convergence_monitoring"`
}

// DefaultConfig returns the balanced preset.
func DefaultConfig() Config {
	cfg, _ := Preset("balanced")
	return cfg
}

// Preset returns a named, valid configuration: "fast", "balanced" or
// "accurate".
func Preset(name string) (Config, error) {
	base := Config{
		Convergence:                 ConvergenceAdaptive,
		ConvergenceThreshold:        0.95,
		CheckInterval:               500,
		Workers:                     4,
		EnableConvergenceMonitoring: true,
	}
	switch name {
	case "fast":
		base.Iterations = 2_000
		base.ConvergenceThreshold = 0.90
		base.CheckInterval = 250
	case "balanced":
		base.Iterations = 10_000
	case "accurate":
		base.Iterations = 50_000
		base.ConvergenceThreshold = 0.99
		base.CheckInterval = 1_000
	default:
		return Config{}, &ConfigurationError{Field: "preset", Constraint: "be one of fast, balanced, accurate", Value: name}
	}
	return base, nil
}

// ForScenario derives a configuration from the shape of the model: iteration
// count grows with the risk count and the requested accuracy preset, and
// shrinks under a tight time constraint, always staying within the hard
// bounds. Pass timeConstraint 0 for no constraint.
func ForScenario(riskCount int, accuracy string, timeConstraint time.Duration) (Config, error) {
	if riskCount <= 0 {
		return Config{}, &ConfigurationError{Field: "risk_count", Constraint: "be > 0", Value: riskCount}
	}
	cfg, err := Preset(accuracy)
	if err != nil {
		return Config{}, &ConfigurationError{Field: "accuracy_requirement", Constraint: "be one of fast, balanced, accurate", Value: accuracy}
	}

	// More risks widen the joint outcome space; scale iterations with a
	// gentle linear factor.
	iterations := cfg.Iterations + cfg.Iterations*riskCount/20

	if timeConstraint > 0 {
		cfg.MaxExecutionTime = timeConstraint
		// Budget heuristic: ~2us per risk per iteration.
		perIteration := time.Duration(riskCount) * 2 * time.Microsecond
		affordable := int(timeConstraint / perIteration)
		if affordable < iterations {
			iterations = affordable
		}
	}

	if iterations < MinIterations {
		iterations = MinIterations
	}
	if iterations > MaxIterations {
		iterations = MaxIterations
	}
	cfg.Iterations = iterations
	return cfg, cfg.Validate()
}

// Validate checks all parameter bounds, returning a ConfigurationError naming
// the first violated field.
func (c Config) Validate() error {
	if c.Iterations < MinIterations || c.Iterations > MaxIterations {
		return &ConfigurationError{
			Field:      "iterations",
			Constraint: fmt.Sprintf("be within [%d, %d]", MinIterations, MaxIterations),
			Value:      c.Iterations,
		}
	}
	if c.Seed != nil && (*c.Seed < 0 || *c.Seed > MaxSeed) {
		return &ConfigurationError{
			Field:      "random_seed",
			Constraint: fmt.Sprintf("be within [0, %d]", int64(MaxSeed)),
			Value:      *c.Seed,
		}
	}
	if c.Convergence != ConvergenceFixed && c.Convergence != ConvergenceAdaptive {
		return &ConfigurationError{
			Field:      "convergence_criteria",
			Constraint: fmt.Sprintf("be %q or %q", ConvergenceFixed, ConvergenceAdaptive),
			Value:      string(c.Convergence),
		}
	}
	if c.ConvergenceThreshold < MinConvergenceThreshold || c.ConvergenceThreshold > MaxConvergenceThreshold {
		return &ConfigurationError{
			Field:      "convergence_threshold",
			Constraint: fmt.Sprintf("be within [%.1f, %.1f]", MinConvergenceThreshold, MaxConvergenceThreshold),
			Value:      c.ConvergenceThreshold,
		}
	}
	if c.CheckInterval < MinCheckInterval {
		return &ConfigurationError{
			Field:      "convergence_check_interval",
			Constraint: fmt.Sprintf("be >= %d", MinCheckInterval),
			Value:      c.CheckInterval,
		}
	}
	if c.MaxExecutionTime < 0 {
		return &ConfigurationError{Field: "max_execution_time", Constraint: "be >= 0", Value: c.MaxExecutionTime}
	}
	if c.Workers < 1 {
		return &ConfigurationError{Field: "workers", Constraint: "be >= 1", Value: c.Workers}
	}
	return nil
}

// WithSeed returns a copy with the random seed pinned.
func (c Config) WithSeed(seed int64) Config {
	out := c.clone()
	out.Seed = &seed
	return out
}

// WithoutSeed returns a copy with no seed; runs become non-reproducible.
func (c Config) WithoutSeed() Config {
	out := c.clone()
	out.Seed = nil
	return out
}

// WithIterations returns a copy with the iteration count replaced.
func (c Config) WithIterations(n int) Config {
	out := c.clone()
	out.Iterations = n
	return out
}

// WithMaxExecutionTime returns a copy with the time budget replaced.
func (c Config) WithMaxExecutionTime(d time.Duration) Config {
	out := c.clone()
	out.MaxExecutionTime = d
	return out
}

// WithWorkers returns a copy with the worker count replaced.
func (c Config) WithWorkers(n int) Config {
	out := c.clone()
	out.Workers = n
	return out
}

// WithConvergence returns a copy with the convergence policy replaced.
func (c Config) WithConvergence(mode ConvergenceMode, threshold float64, interval int) Config {
	out := c.clone()
	out.Convergence = mode
	out.ConvergenceThreshold = threshold
	out.CheckInterval = interval
	return out
}

func (c Config) clone() Config {
	out := c
	if c.Seed != nil {
		seed := *c.Seed
		out.Seed = &seed
	}
	return out
}

// ToMap serializes the config losslessly to a plain map.
func (c Config) ToMap() map[string]any {
	m := map[string]any{
		"iterations":                    c.Iterations,
		"convergence_criteria":          string(c.Convergence),
		"convergence_threshold":         c.ConvergenceThreshold,
		"convergence_check_interval":    c.CheckInterval,
		"max_execution_time_ms":         c.MaxExecutionTime.Milliseconds(),
		"workers":                       c.Workers,
		"enable_caching":                c.EnableCaching,
		"enable_progress":               c.EnableProgress,
		"enable_convergence_monitoring": c.EnableConvergenceMonitoring,
	}
	if c.Seed != nil {
		m["random_seed"] = *c.Seed
	}
	return m
}

// FromMap rebuilds a config from ToMap output (or equivalent JSON-decoded
// data, where numbers arrive as float64), then validates it.
func FromMap(m map[string]any) (Config, error) {
	cfg := Config{}

	getInt := func(key string) (int, bool, error) {
		v, ok := m[key]
		if !ok {
			return 0, false, nil
		}
		switch n := v.(type) {
		case int:
			return n, true, nil
		case int64:
			return int(n), true, nil
		case float64:
			return int(n), true, nil
		default:
			return 0, false, &ConfigurationError{Field: key, Constraint: "be numeric", Value: v}
		}
	}

	iterations, ok, err := getInt("iterations")
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Config{}, &ConfigurationError{Field: "iterations", Constraint: "be present", Value: nil}
	}
	cfg.Iterations = iterations

	if seed, ok, err := getInt("random_seed"); err != nil {
		return Config{}, err
	} else if ok {
		s := int64(seed)
		cfg.Seed = &s
	}

	if mode, ok := m["convergence_criteria"].(string); ok {
		cfg.Convergence = ConvergenceMode(mode)
	}
	if threshold, ok := m["convergence_threshold"].(float64); ok {
		cfg.ConvergenceThreshold = threshold
	}
	if interval, ok, err := getInt("convergence_check_interval"); err != nil {
		return Config{}, err
	} else if ok {
		cfg.CheckInterval = interval
	}
	if ms, ok, err := getInt("max_execution_time_ms"); err != nil {
		return Config{}, err
	} else if ok {
		cfg.MaxExecutionTime = time.Duration(ms) * time.Millisecond
	}
	if workers, ok, err := getInt("workers"); err != nil {
		return Config{}, err
	} else if ok {
		cfg.Workers = workers
	}

	if v, ok := m["enable_caching"].(bool); ok {
		cfg.EnableCaching = v
	}
	if v, ok := m["enable_progress"].(bool); ok {
		cfg.EnableProgress = v
	}
	if v, ok := m["enable_convergence_monitoring"].(bool); ok {
		cfg.EnableConvergenceMonitoring = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
