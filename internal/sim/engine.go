// Package sim runs the Monte Carlo simulation itself: it samples correlated
// risk impacts in deterministic batches, accumulates outcome distributions,
// monitors convergence, and enforces time and iteration budgets.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"riskmc/internal/dist"
	"riskmc/internal/risk"
	"riskmc/internal/validate"
)

// State is the engine's run state machine:
// CONFIGURED -> RUNNING -> {CONVERGED | EXHAUSTED | TIMED_OUT | FAILED}.
type State string

const (
	StateConfigured State = "CONFIGURED"
	StateRunning    State = "RUNNING"
	StateConverged  State = "CONVERGED"
	StateExhausted  State = "EXHAUSTED"
	StateTimedOut   State = "TIMED_OUT"
	StateFailed     State = "FAILED"
)

// chunkSize is the fixed width of one deterministically seeded slice of the
// iteration space. It is independent of the worker count, which is what makes
// results bit-identical regardless of parallelism.
const chunkSize = 512

// Results is the immutable outcome of one simulation run.
type Results struct {
	SimulationID      string               `json:"simulation_id"`
	Timestamp         time.Time            `json:"timestamp"`
	State             State                `json:"state"`
	IterationCount    int                  `json:"iteration_count"`
	CostOutcomes      []float64            `json:"cost_outcomes"`
	ScheduleOutcomes  []float64            `json:"schedule_outcomes"`
	RiskContributions map[string][]float64 `json:"risk_contributions"`
	Convergence       ConvergenceMetrics   `json:"convergence"`
	ExecutionTime     time.Duration        `json:"execution_time"`
}

// Engine orchestrates simulation runs for one configuration. It is a
// synchronous, CPU-bound batch computation owned by a single caller; the only
// mutable state across runs is its private result cache.
type Engine struct {
	cfg   Config
	state State
	cache *resultCache
	now   func() time.Time
}

// NewEngine validates the configuration and returns a CONFIGURED engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, state: StateConfigured, now: time.Now}
	if cfg.EnableCaching {
		e.cache = newResultCache()
	}
	return e, nil
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() Config { return e.cfg.clone() }

// State returns the state of the most recent run (CONFIGURED before any run).
func (e *Engine) State() State { return e.state }

// runPlan is the precomputed, read-only execution plan shared by all chunks.
type runPlan struct {
	risks     []risk.Risk
	baselines []float64
	residuals []float64
	isCost    []bool

	sampler     *risk.CopulaSampler // nil when no matrix given
	corrRiskIdx []int               // matrix column -> risk index
	indepIdx    []int               // risks sampled independently, in input order

	cross []crossEffect
}

// crossEffect is a resolved cross-impact annotation: when the primary risk
// realizes above its typical value, the secondary's realized impact is scaled
// by 1 + coefficient * multiplier * excess, where excess is the primary's
// deviation normalized to [-1, 1].
type crossEffect struct {
	primary    int
	secondary  int
	coeff      float64
	multiplier float64
	typical    float64
	scale      float64
}

func newRunPlan(risks []risk.Risk, matrix *risk.CorrelationMatrix, crossImpacts []risk.CrossImpactModel) (*runPlan, error) {
	p := &runPlan{
		risks:     risks,
		baselines: make([]float64, len(risks)),
		residuals: make([]float64, len(risks)),
		isCost:    make([]bool, len(risks)),
	}

	index := make(map[string]int, len(risks))
	for i, r := range risks {
		index[r.ID] = i
		p.baselines[i] = r.BaselineImpact
		p.residuals[i] = r.MitigationResidual()
		p.isCost[i] = r.Impact == risk.ImpactCost
	}

	inMatrix := make(map[int]bool)
	if matrix != nil {
		ids := matrix.RiskIDs()
		dists := make([]dist.Distribution, len(ids))
		p.corrRiskIdx = make([]int, len(ids))
		for col, id := range ids {
			ri, ok := index[id]
			if !ok {
				return nil, fmt.Errorf("correlation matrix references unknown risk %q", id)
			}
			dists[col] = risks[ri].Distribution
			p.corrRiskIdx[col] = ri
			inMatrix[ri] = true
		}
		sampler, err := risk.NewCopulaSampler(dists, matrix)
		if err != nil {
			return nil, err
		}
		p.sampler = sampler
	}
	for i := range risks {
		if !inMatrix[i] {
			p.indepIdx = append(p.indepIdx, i)
		}
	}

	for _, ci := range crossImpacts {
		pi, ok := index[ci.PrimaryRiskID]
		if !ok {
			return nil, fmt.Errorf("cross impact references unknown primary risk %q", ci.PrimaryRiskID)
		}
		si, ok := index[ci.SecondaryRiskID]
		if !ok {
			return nil, fmt.Errorf("cross impact references unknown secondary risk %q", ci.SecondaryRiskID)
		}
		typical := (risks[pi].BaselineImpact + risks[pi].Distribution.Mean()) * p.residuals[pi]
		p.cross = append(p.cross, crossEffect{
			primary:    pi,
			secondary:  si,
			coeff:      ci.CorrelationCoefficient,
			multiplier: ci.ImpactMultiplier,
			typical:    typical,
			scale:      math.Max(math.Abs(typical), 1),
		})
	}
	return p, nil
}

// Run executes one simulation. The model is validated first; invalid input
// transitions the engine to FAILED and never silently proceeds. With an
// explicit seed, two runs over identical input produce bit-identical results.
func (e *Engine) Run(risks []risk.Risk, matrix *risk.CorrelationMatrix, crossImpacts []risk.CrossImpactModel) (*Results, error) {
	preflight := validate.ValidateModel(risks, matrix)
	if !preflight.IsValid {
		e.state = StateFailed
		return nil, fmt.Errorf("model validation failed: %s", strings.Join(preflight.Errors, "; "))
	}

	plan, err := newRunPlan(risks, matrix, crossImpacts)
	if err != nil {
		e.state = StateFailed
		return nil, fmt.Errorf("model validation failed: %w", err)
	}

	seeded := e.cfg.Seed != nil
	key := ""
	if e.cache != nil && seeded {
		key = cacheKey(risks, matrix, crossImpacts, e.cfg)
		if cached, ok := e.cache.get(key); ok {
			log.Debug().Str("simulation_id", cached.SimulationID).Msg("Returning cached simulation results")
			e.state = cached.State
			return cached, nil
		}
	}

	e.state = StateRunning
	start := e.now()

	baseSeed := e.now().UnixNano()
	if seeded {
		baseSeed = *e.cfg.Seed
	}

	total := e.cfg.Iterations
	costs := make([]float64, total)
	schedules := make([]float64, total)
	contributions := make(map[string][]float64, len(risks))
	for _, r := range risks {
		contributions[r.ID] = make([]float64, total)
	}

	mon := newMonitor(e.cfg.ConvergenceThreshold)
	adaptive := e.cfg.Convergence == ConvergenceAdaptive && e.cfg.EnableConvergenceMonitoring

	var metrics ConvergenceMetrics
	finalState := StateExhausted
	done := 0
	chunkOrdinal := int64(0)

	for done < total {
		batchEnd := done + e.cfg.CheckInterval
		if batchEnd > total {
			batchEnd = total
		}

		// Partition the batch into fixed-width, deterministically seeded
		// chunks and fan them out. Chunk seeds depend only on the base seed
		// and the chunk ordinal, and every chunk writes its own disjoint
		// index range, so the merge order is fixed and the worker count
		// cannot influence the outcome arrays.
		var g errgroup.Group
		g.SetLimit(e.cfg.Workers)
		for chunkStart := done; chunkStart < batchEnd; chunkStart += chunkSize {
			chunkEnd := chunkStart + chunkSize
			if chunkEnd > batchEnd {
				chunkEnd = batchEnd
			}
			seed := baseSeed + chunkOrdinal
			chunkOrdinal++

			g.Go(func() error {
				e.runChunk(plan, seed, chunkStart, chunkEnd, costs, schedules, contributions)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			e.state = StateFailed
			return nil, err
		}
		done = batchEnd

		if e.cfg.MaxExecutionTime > 0 && e.now().Sub(start) > e.cfg.MaxExecutionTime {
			finalState = StateTimedOut
			metrics.Converged = false
			log.Warn().
				Int("iterations_done", done).
				Dur("budget", e.cfg.MaxExecutionTime).
				Msg("Simulation exceeded its time budget, returning partial results")
			break
		}

		if adaptive {
			metrics = mon.observe(costs[:done], done)
			if metrics.Converged {
				finalState = StateConverged
				break
			}
		}

		if e.cfg.EnableProgress {
			log.Debug().
				Int("iterations_done", done).
				Int("iterations_total", total).
				Msg("Simulation progress")
		}
	}

	if done < total {
		costs = costs[:done]
		schedules = schedules[:done]
		for id := range contributions {
			contributions[id] = contributions[id][:done]
		}
	}

	results := &Results{
		SimulationID:      uuid.NewString(),
		Timestamp:         start,
		State:             finalState,
		IterationCount:    done,
		CostOutcomes:      costs,
		ScheduleOutcomes:  schedules,
		RiskContributions: contributions,
		Convergence:       metrics,
		ExecutionTime:     e.now().Sub(start),
	}
	e.state = finalState

	if e.cache != nil && seeded && finalState != StateTimedOut {
		e.cache.put(key, results)
	}

	log.Info().
		Str("simulation_id", results.SimulationID).
		Str("state", string(finalState)).
		Int("iterations", done).
		Dur("execution_time", results.ExecutionTime).
		Msg("Simulation finished")

	return results, nil
}

// runChunk computes iterations [start, end) with its own seeded rng. The
// draw order per iteration is fixed: the correlated block first (in matrix
// order), then independent risks in input order.
func (e *Engine) runChunk(plan *runPlan, seed int64, start, end int, costs, schedules []float64, contributions map[string][]float64) {
	rng := rand.New(rand.NewSource(seed))

	k := 0
	if plan.sampler != nil {
		k = plan.sampler.Dim()
	}
	z := make([]float64, k)
	corrOut := make([]float64, k)
	realized := make([]float64, len(plan.risks))

	for i := start; i < end; i++ {
		if plan.sampler != nil {
			plan.sampler.Draw(rng, z, corrOut)
			for col, ri := range plan.corrRiskIdx {
				realized[ri] = corrOut[col]
			}
		}
		for _, ri := range plan.indepIdx {
			realized[ri] = plan.risks[ri].Distribution.Quantile(rng.Float64())
		}

		for ri := range realized {
			realized[ri] = (plan.baselines[ri] + realized[ri]) * plan.residuals[ri]
		}

		for _, ce := range plan.cross {
			excess := (realized[ce.primary] - ce.typical) / ce.scale
			if excess > 1 {
				excess = 1
			} else if excess < -1 {
				excess = -1
			}
			effect := 1 + ce.coeff*ce.multiplier*excess
			if effect < 0 {
				effect = 0
			}
			realized[ce.secondary] *= effect
		}

		cost, schedule := 0.0, 0.0
		for ri, r := range plan.risks {
			if plan.isCost[ri] {
				cost += realized[ri]
			} else {
				schedule += realized[ri]
			}
			contributions[r.ID][i] = realized[ri]
		}
		costs[i] = cost
		schedules[i] = schedule
	}
}
