// Package visuals renders simulation analytics as Mermaid charts for
// markdown-capable consumers.
package visuals

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"riskmc/internal/output"
	"riskmc/internal/sim"
)

// histogramBins is tuned to what Mermaid's xychart lays out without
// overlapping labels.
const histogramBins = 20

// GenerateOutcomeHistogram creates a Mermaid bar chart of the outcome sample
// binned into equal-width buckets.
func GenerateOutcomeHistogram(outcomes []float64, title, unit string) string {
	if len(outcomes) == 0 {
		return ""
	}

	minV, maxV := outcomes[0], outcomes[0]
	for _, v := range outcomes {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	bins := histogramBins
	width := (maxV - minV) / float64(bins)
	if width <= 0 {
		bins = 1
		width = 1
	}

	counts := make([]int, bins)
	for _, v := range outcomes {
		idx := int((v - minV) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}

	var labels []string
	var values []string
	maxCount := 0
	for i, c := range counts {
		labels = append(labels, fmt.Sprintf("\"%.0f\"", minV+(float64(i)+0.5)*width))
		values = append(values, fmt.Sprintf("%d", c))
		if c > maxCount {
			maxCount = c
		}
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString(fmt.Sprintf("    title \"%s\"\n", title))
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Iterations (%s)\" 0 --> %d\n", unit, maxCount+int(math.Max(1, float64(maxCount)*0.2))))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GenerateComplianceCurve creates a Mermaid line chart of the compliance
// probability as a function of the budget, swept across the outcome range
// around the target budget.
func GenerateComplianceCurve(outcomes []float64, targetBudget float64) string {
	if len(outcomes) == 0 {
		return ""
	}

	sorted := make([]float64, len(outcomes))
	copy(sorted, outcomes)
	sort.Float64s(sorted)

	lo := math.Min(sorted[0], targetBudget)
	hi := math.Max(sorted[len(sorted)-1], targetBudget)
	if hi <= lo {
		return ""
	}

	const points = 15
	step := (hi - lo) / points

	var labels []string
	var values []string
	for i := 0; i <= points; i++ {
		budget := lo + float64(i)*step
		within := sort.SearchFloat64s(sorted, budget+1e-12)
		labels = append(labels, fmt.Sprintf("\"%.0f\"", budget))
		values = append(values, fmt.Sprintf("%.3f", float64(within)/float64(len(sorted))))
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Budget Compliance Curve\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString("    y-axis \"P(cost <= budget)\" 0 --> 1\n")
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GenerateContributionChart creates a Mermaid bar chart of mean realized
// impact per risk, largest first. Limited to the top 15 risks to keep the
// chart readable.
func GenerateContributionChart(results *sim.Results) string {
	if results == nil || len(results.RiskContributions) == 0 {
		return ""
	}

	type contribution struct {
		id   string
		mean float64
	}
	var contribs []contribution
	for id, sample := range results.RiskContributions {
		if len(sample) == 0 {
			continue
		}
		sum := 0.0
		for _, v := range sample {
			sum += v
		}
		contribs = append(contribs, contribution{id: id, mean: sum / float64(len(sample))})
	}
	if len(contribs) == 0 {
		return ""
	}
	sort.Slice(contribs, func(i, j int) bool {
		if contribs[i].mean != contribs[j].mean {
			return contribs[i].mean > contribs[j].mean
		}
		return contribs[i].id < contribs[j].id
	})
	if len(contribs) > 15 {
		contribs = contribs[:15]
	}

	var labels []string
	var values []string
	maxVal := 0.0
	for _, c := range contribs {
		labels = append(labels, fmt.Sprintf("\"%s\"", strings.ReplaceAll(c.id, " ", "_")))
		values = append(values, fmt.Sprintf("%.1f", c.mean))
		if c.mean > maxVal {
			maxVal = c.mean
		}
	}
	if maxVal <= 0 {
		maxVal = 1
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Mean Risk Contributions\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Mean Impact\" 0 --> %d\n", int(math.Ceil(maxVal*1.2))))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GeneratePercentileChart creates a Mermaid bar chart of the summary's
// percentile ladder, ascending.
func GeneratePercentileChart(summary *output.DistributionSummary, title string) string {
	if summary == nil || len(summary.Percentiles) == 0 {
		return ""
	}

	keys := make([]string, 0, len(summary.Percentiles))
	for k := range summary.Percentiles {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return percentileRank(keys[i]) < percentileRank(keys[j])
	})

	var labels []string
	var values []string
	maxVal := 0.0
	for _, k := range keys {
		v := summary.Percentiles[k]
		labels = append(labels, fmt.Sprintf("\"%s\"", k))
		values = append(values, fmt.Sprintf("%.0f", v))
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal <= 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString(fmt.Sprintf("    title \"%s\"\n", title))
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Outcome\" 0 --> %d\n", int(math.Ceil(maxVal*1.1))))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

func percentileRank(key string) int {
	n := 0
	fmt.Sscanf(key, "P%d", &n)
	return n
}
