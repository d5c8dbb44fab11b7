package calibrate

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"riskmc/internal/dist"
	"riskmc/internal/risk"
	"riskmc/internal/sim"
	"riskmc/internal/validate"
)

// MinSampleSize is the minimum number of matching historical impacts needed
// to recalibrate a distribution.
const MinSampleSize = 10

// InsufficientDataError reports that calibration lacked historical samples,
// naming both the required and the actual count.
type InsufficientDataError struct {
	RiskID   string
	Required int
	Actual   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("calibration for risk %q requires at least %d matching historical impacts, found %d", e.RiskID, e.Required, e.Actual)
}

// CalibrationResult carries a recalibrated distribution together with its fit
// quality. The original risk is never mutated; consumers decide whether to
// adopt the new distribution.
type CalibrationResult struct {
	RiskID           string             `json:"risk_id"`
	DistributionType dist.Type          `json:"distribution_type"`
	Parameters       map[string]float64 `json:"parameters"`
	Distribution     dist.Distribution  `json:"-"`
	SampleSize       int                `json:"sample_size"`
	GoodnessOfFit    float64            `json:"goodness_of_fit"`
	ConfidenceLevel  float64            `json:"confidence_level"`
}

// AccuracyMetrics scores a simulation's cost prediction against a realized
// outcome. RMSE is always >= MAE; coverage values live in [0,1].
type AccuracyMetrics struct {
	CostMAE          float64 `json:"cost_mae"`
	CostRMSE         float64 `json:"cost_rmse"`
	CostMAPE         float64 `json:"cost_mape"`
	ScheduleMAE      float64 `json:"schedule_mae"`
	ScheduleRMSE     float64 `json:"schedule_rmse"`
	ScheduleMAPE     float64 `json:"schedule_mape"`
	IntervalCoverage float64 `json:"interval_coverage"` // share of central P10-P90 intervals containing the actual
}

// Trend classifies the direction of a model's recent accuracy history.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// Calibrator refits risk distributions from accumulated project outcomes.
type Calibrator struct {
	store      *Store
	minSamples int
}

// NewCalibrator wraps an outcome store.
func NewCalibrator(store *Store) *Calibrator {
	return &Calibrator{store: store, minSamples: MinSampleSize}
}

// AddProjectOutcome records (or supersedes) a realized project outcome.
func (c *Calibrator) AddProjectOutcome(ctx context.Context, o ProjectOutcome) error {
	return c.store.PutOutcome(ctx, o)
}

// CalibrateDistribution refits the risk's distribution family against the
// historical impacts recorded for its id, optionally filtered by project
// type. Scarce data yields InsufficientDataError; a poor refit is reported
// through GoodnessOfFit, not an error.
func (c *Calibrator) CalibrateDistribution(ctx context.Context, r risk.Risk, projectType string) (*CalibrationResult, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	outcomes, err := c.store.Outcomes(ctx)
	if err != nil {
		return nil, err
	}

	var impacts []float64
	for _, o := range outcomes {
		if projectType != "" && o.ProjectType != projectType {
			continue
		}
		if impact, ok := o.RiskOutcomes[r.ID]; ok {
			impacts = append(impacts, impact)
		}
	}

	if len(impacts) < c.minSamples {
		return nil, &InsufficientDataError{RiskID: r.ID, Required: c.minSamples, Actual: len(impacts)}
	}

	fitted, err := fitDistribution(r.Distribution.Type(), impacts)
	if err != nil {
		return nil, fmt.Errorf("calibration for risk %q: %w", r.ID, err)
	}

	stat, _ := validate.KolmogorovSmirnov(impacts, fitted.CDF)
	gof := 1 - stat
	if gof < 0 {
		gof = 0
	}

	n := float64(len(impacts))
	confidence := math.Min(0.99, n/(n+float64(c.minSamples)))

	log.Debug().
		Str("risk_id", r.ID).
		Int("sample_size", len(impacts)).
		Float64("goodness_of_fit", gof).
		Msg("Recalibrated distribution from historical outcomes")

	return &CalibrationResult{
		RiskID:           r.ID,
		DistributionType: fitted.Type(),
		Parameters:       fitted.Params(),
		Distribution:     fitted,
		SampleSize:       len(impacts),
		GoodnessOfFit:    gof,
		ConfidenceLevel:  confidence,
	}, nil
}

// fitDistribution estimates parameters for the given family from a sample,
// preserving the family of the original distribution.
func fitDistribution(t dist.Type, sample []float64) (dist.Distribution, error) {
	mean, stdDev := sampleMeanStd(sample)

	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)
	minV, maxV := sorted[0], sorted[len(sorted)-1]

	switch t {
	case dist.TypeNormal:
		if stdDev <= 0 {
			return nil, fmt.Errorf("historical impacts are constant; cannot fit a normal distribution")
		}
		return dist.NewNormal(mean, stdDev, nil)

	case dist.TypeUniform:
		if minV >= maxV {
			return nil, fmt.Errorf("historical impacts are constant; cannot fit a uniform distribution")
		}
		return dist.NewUniform(minV, maxV, nil)

	case dist.TypeTriangular:
		if minV >= maxV {
			return nil, fmt.Errorf("historical impacts are constant; cannot fit a triangular distribution")
		}
		// Method of moments: mean = (min + mode + max) / 3.
		mode := 3*mean - minV - maxV
		mode = math.Max(minV, math.Min(maxV, mode))
		return dist.NewTriangular(minV, mode, maxV, nil)

	case dist.TypeLogNormal:
		var logs []float64
		for _, v := range sample {
			if v > 0 {
				logs = append(logs, math.Log(v))
			}
		}
		if len(logs) < MinSampleSize {
			return nil, fmt.Errorf("only %d positive impacts; a log-normal fit needs at least %d", len(logs), MinSampleSize)
		}
		mu, sigma := sampleMeanStd(logs)
		if sigma <= 0 {
			return nil, fmt.Errorf("positive impacts are constant; cannot fit a log-normal distribution")
		}
		return dist.NewLogNormal(mu, sigma, nil)

	case dist.TypeBeta:
		// Method of moments on impacts rescaled to (0,1).
		span := maxV - minV
		if span <= 0 {
			return nil, fmt.Errorf("historical impacts are constant; cannot fit a beta distribution")
		}
		m := (mean - minV) / span
		v := (stdDev / span) * (stdDev / span)
		if v <= 0 || v >= m*(1-m) {
			return nil, fmt.Errorf("sample variance incompatible with a beta fit")
		}
		common := m*(1-m)/v - 1
		return dist.NewBeta(m*common, (1-m)*common, &dist.Bounds{Low: 0, High: 1})

	default:
		return nil, fmt.Errorf("unknown distribution type %q", t)
	}
}

// sampleMeanStd returns the sample mean and the sample standard deviation
// (n-1 denominator) of the values. Fewer than two values yield a zero std.
func sampleMeanStd(values []float64) (mean, stdDev float64) {
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

// PredictionAccuracy scores how well a simulation's outcome distributions
// predicted a realized project outcome.
func PredictionAccuracy(results *sim.Results, actual ProjectOutcome) (*AccuracyMetrics, error) {
	if results == nil || results.IterationCount == 0 {
		return nil, fmt.Errorf("prediction accuracy: no simulation outcomes")
	}
	if err := actual.Validate(); err != nil {
		return nil, err
	}

	costMAE, costRMSE, costMAPE := pointErrors(results.CostOutcomes, actual.ActualCost)
	schedMAE, schedRMSE, schedMAPE := pointErrors(results.ScheduleOutcomes, actual.ActualDuration)

	covered := 0.0
	if within(results.CostOutcomes, actual.ActualCost) {
		covered += 0.5
	}
	if within(results.ScheduleOutcomes, actual.ActualDuration) {
		covered += 0.5
	}

	return &AccuracyMetrics{
		CostMAE:          costMAE,
		CostRMSE:         costRMSE,
		CostMAPE:         costMAPE,
		ScheduleMAE:      schedMAE,
		ScheduleRMSE:     schedRMSE,
		ScheduleMAPE:     schedMAPE,
		IntervalCoverage: covered,
	}, nil
}

// pointErrors computes MAE, RMSE and MAPE of a predicted sample against a
// realized scalar. RMSE >= MAE holds by Jensen's inequality.
func pointErrors(predicted []float64, actual float64) (mae, rmse, mape float64) {
	if len(predicted) == 0 {
		return 0, 0, 0
	}
	n := float64(len(predicted))
	sumAbs, sumSq := 0.0, 0.0
	for _, x := range predicted {
		d := x - actual
		sumAbs += math.Abs(d)
		sumSq += d * d
	}
	mae = sumAbs / n
	rmse = math.Sqrt(sumSq / n)
	if actual != 0 {
		mape = mae / math.Abs(actual) * 100
	}
	return mae, rmse, mape
}

// within reports whether the actual value falls inside the sample's central
// P10-P90 interval.
func within(sample []float64, actual float64) bool {
	if len(sample) == 0 {
		return false
	}
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)

	lo := sorted[quantileIndex(len(sorted), 0.10)]
	hi := sorted[quantileIndex(len(sorted), 0.90)]
	return actual >= lo && actual <= hi
}

func quantileIndex(n int, p float64) int {
	idx := int(p * float64(n))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// TrackModelPerformance appends one accuracy observation to the model's
// chronological history.
func (c *Calibrator) TrackModelPerformance(ctx context.Context, modelID, category string, m AccuracyMetrics) error {
	return c.store.AppendPerformance(ctx, modelID, category, m)
}

// PerformanceTrend derives the model's accuracy direction from its recent
// history: the average cost MAPE of the newer half is compared against the
// older half. Fewer than 4 records is always stable.
func (c *Calibrator) PerformanceTrend(ctx context.Context, modelID string) (Trend, error) {
	history, err := c.store.PerformanceHistory(ctx, modelID)
	if err != nil {
		return TrendStable, err
	}
	if len(history) < 4 {
		return TrendStable, nil
	}

	mid := len(history) / 2
	older := avgMAPE(history[:mid])
	newer := avgMAPE(history[mid:])

	switch {
	case older > 0 && newer < older*0.95:
		return TrendImproving, nil
	case older > 0 && newer > older*1.05:
		return TrendDegrading, nil
	default:
		return TrendStable, nil
	}
}

func avgMAPE(records []PerformanceRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range records {
		sum += r.Metrics.CostMAPE
	}
	return sum / float64(len(records))
}
