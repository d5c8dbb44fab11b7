package sim

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"riskmc/internal/risk"
)

// Cache policy for seeded runs. The cache is owned by a single engine
// instance; there is no process-wide registry.
const (
	cacheMaxEntries = 32
	cacheTTL        = 15 * time.Minute
)

type cacheEntry struct {
	results  *Results
	storedAt time.Time
}

// resultCache memoizes seeded runs. Unseeded runs are contractually
// non-reproducible and are never cached.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func newResultCache() *resultCache {
	return &resultCache{entries: make(map[string]cacheEntry), now: time.Now}
}

func (c *resultCache) get(key string) (*Results, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > cacheTTL {
		delete(c.entries, key)
		return nil, false
	}
	// Hand out a copy so a caller mutating the outcome slices cannot corrupt
	// the cached results for later hits.
	return entry.results.clone(), true
}

func (r *Results) clone() *Results {
	out := *r
	out.CostOutcomes = append([]float64(nil), r.CostOutcomes...)
	out.ScheduleOutcomes = append([]float64(nil), r.ScheduleOutcomes...)
	out.RiskContributions = make(map[string][]float64, len(r.RiskContributions))
	for id, sample := range r.RiskContributions {
		out.RiskContributions[id] = append([]float64(nil), sample...)
	}
	return &out
}

func (c *resultCache) put(key string, results *Results) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= cacheMaxEntries {
		// Evict expired entries first, then the oldest.
		oldestKey := ""
		oldestAt := c.now()
		for k, e := range c.entries {
			if c.now().Sub(e.storedAt) > cacheTTL {
				delete(c.entries, k)
				continue
			}
			if e.storedAt.Before(oldestAt) {
				oldestAt = e.storedAt
				oldestKey = k
			}
		}
		if len(c.entries) >= cacheMaxEntries && oldestKey != "" {
			delete(c.entries, oldestKey)
		}
	}
	// Store a copy for the same reason get returns one: the populating run's
	// caller also holds the original slices.
	c.entries[key] = cacheEntry{results: results.clone(), storedAt: c.now()}
}

// cacheKey fingerprints the full run input: risks (in order), correlation
// structure, cross impacts, and the effective configuration.
func cacheKey(risks []risk.Risk, matrix *risk.CorrelationMatrix, crossImpacts []risk.CrossImpactModel, cfg Config) string {
	h := sha256.New()

	for _, r := range risks {
		fmt.Fprintf(h, "risk|%s|%s|%s|%.12g|%.12g", r.ID, r.Impact, r.Distribution.Type(), r.BaselineImpact, r.MitigationResidual())
		writeSortedParams(h, r.Distribution.Params())
		if b := r.Distribution.Bounds(); b != nil {
			fmt.Fprintf(h, "|bounds=%.12g,%.12g", b.Low, b.High)
		}
		fmt.Fprint(h, "\n")
	}

	if matrix != nil {
		ids := matrix.RiskIDs()
		fmt.Fprintf(h, "matrix|%v\n", ids)
		for i, a := range ids {
			for _, b := range ids[i+1:] {
				coeff, _ := matrix.Correlation(a, b)
				fmt.Fprintf(h, "corr|%s|%s|%.12g\n", a, b, coeff)
			}
		}
	}

	for _, ci := range crossImpacts {
		fmt.Fprintf(h, "cross|%s|%s|%.12g|%.12g\n", ci.PrimaryRiskID, ci.SecondaryRiskID, ci.CorrelationCoefficient, ci.ImpactMultiplier)
	}

	cfgMap := cfg.ToMap()
	keys := make([]string, 0, len(cfgMap))
	for k := range cfgMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "cfg|%s|%v\n", k, cfgMap[k])
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeSortedParams(w io.Writer, params map[string]float64) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "|%s=%.12g", k, params[k])
	}
}
