package validate

import (
	"math/rand"
	"strings"
	"testing"

	"riskmc/internal/dist"
	"riskmc/internal/risk"
)

func normal(t *testing.T, mean, std float64) dist.Distribution {
	t.Helper()
	d, err := dist.NewNormal(mean, std, nil)
	if err != nil {
		t.Fatalf("NewNormal: %v", err)
	}
	return d
}

func validRisk(t *testing.T, id string) risk.Risk {
	t.Helper()
	return risk.Risk{
		ID:           id,
		Name:         "Risk " + id,
		Category:     risk.CategoryTechnical,
		Impact:       risk.ImpactCost,
		Distribution: normal(t, 1000, 200),
	}
}

func TestValidateDistributionGoodFit(t *testing.T) {
	d := normal(t, 100, 10)
	rng := rand.New(rand.NewSource(21))
	sample := d.Sample(500, rng)

	res := ValidateDistribution(d, sample, DefaultSignificanceLevel)
	if !res.IsValid {
		t.Errorf("matching sample rejected: %v", res.Errors)
	}
}

func TestValidateDistributionPoorFit(t *testing.T) {
	model := normal(t, 100, 10)
	other := normal(t, 200, 10)
	rng := rand.New(rand.NewSource(22))
	sample := other.Sample(500, rng)

	res := ValidateDistribution(model, sample, DefaultSignificanceLevel)
	if res.IsValid {
		t.Fatal("sample from a shifted distribution accepted")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "Kolmogorov-Smirnov") {
		t.Errorf("error should name the test: %v", res.Errors)
	}
}

func TestValidateDistributionSparseHistoryWarns(t *testing.T) {
	d := normal(t, 100, 10)
	res := ValidateDistribution(d, []float64{99, 101, 100}, DefaultSignificanceLevel)
	if !res.IsValid {
		t.Errorf("sparse history should not invalidate: %v", res.Errors)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning about the sample count")
	}
}

func TestValidateDistributionNil(t *testing.T) {
	res := ValidateDistribution(nil, nil, DefaultSignificanceLevel)
	if res.IsValid {
		t.Error("nil distribution accepted")
	}
}

func TestValidateCorrelationMatrix(t *testing.T) {
	if res := ValidateCorrelationMatrix(nil); !res.IsValid {
		t.Errorf("nil matrix should be valid: %v", res.Errors)
	}

	valid, err := risk.NewCorrelationMatrix(
		[]risk.CorrelationPair{{A: "a", B: "b", Coefficient: 0.4}},
		[]string{"a", "b"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if res := ValidateCorrelationMatrix(valid); !res.IsValid {
		t.Errorf("valid matrix rejected: %v", res.Errors)
	}

	indefinite, err := risk.NewCorrelationMatrix([]risk.CorrelationPair{
		{A: "a", B: "b", Coefficient: 0.9},
		{A: "a", B: "c", Coefficient: 0.9},
		{A: "b", B: "c", Coefficient: -0.9},
	}, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	res := ValidateCorrelationMatrix(indefinite)
	if res.IsValid {
		t.Fatal("indefinite matrix accepted")
	}
	if !strings.Contains(strings.Join(res.Errors, "; "), "smallest eigenvalue") {
		t.Errorf("error should report the smallest eigenvalue: %v", res.Errors)
	}
}

func TestValidateModel(t *testing.T) {
	t.Run("EmptyRiskList", func(t *testing.T) {
		res := ValidateModel(nil, nil)
		if res.IsValid {
			t.Error("empty risk list accepted")
		}
	})

	t.Run("DuplicateIDs", func(t *testing.T) {
		res := ValidateModel([]risk.Risk{validRisk(t, "r1"), validRisk(t, "r1")}, nil)
		if res.IsValid {
			t.Fatal("duplicate ids accepted")
		}
		if !strings.Contains(strings.Join(res.Errors, "; "), "duplicate risk id") {
			t.Errorf("errors: %v", res.Errors)
		}
	})

	t.Run("DanglingDependencyWarns", func(t *testing.T) {
		r := validRisk(t, "r1")
		r.CorrelationDependencies = []string{"ghost"}
		res := ValidateModel([]risk.Risk{r}, nil)
		if !res.IsValid {
			t.Fatalf("dangling dependency must be a warning, got errors: %v", res.Errors)
		}
		if len(res.Warnings) == 0 {
			t.Error("expected a dangling-dependency warning")
		}
	})

	t.Run("MatrixReferencesUnknownRisk", func(t *testing.T) {
		m, err := risk.NewCorrelationMatrix(
			[]risk.CorrelationPair{{A: "r1", B: "ghost", Coefficient: 0.2}},
			[]string{"r1", "ghost"},
		)
		if err != nil {
			t.Fatal(err)
		}
		res := ValidateModel([]risk.Risk{validRisk(t, "r1")}, m)
		if res.IsValid {
			t.Error("matrix with unknown risk id accepted")
		}
	})

	t.Run("Valid", func(t *testing.T) {
		m, err := risk.NewCorrelationMatrix(
			[]risk.CorrelationPair{{A: "r1", B: "r2", Coefficient: 0.3}},
			[]string{"r1", "r2"},
		)
		if err != nil {
			t.Fatal(err)
		}
		res := ValidateModel([]risk.Risk{validRisk(t, "r1"), validRisk(t, "r2")}, m)
		if !res.IsValid {
			t.Errorf("valid model rejected: %v", res.Errors)
		}
	})
}

func TestSuggestCorrelationMatrixFixes(t *testing.T) {
	valid, err := risk.NewCorrelationMatrix(
		[]risk.CorrelationPair{{A: "a", B: "b", Coefficient: 0.4}},
		[]string{"a", "b"},
	)
	if err != nil {
		t.Fatal(err)
	}
	fixes := SuggestCorrelationMatrixFixes(valid)
	if len(fixes) != 1 || !strings.Contains(fixes[0], "no fixes needed") {
		t.Errorf("fixes for a valid matrix: %v", fixes)
	}

	invalid, err := risk.NewCorrelationMatrix([]risk.CorrelationPair{
		{A: "a", B: "b", Coefficient: 0.9},
		{A: "a", B: "c", Coefficient: 0.9},
		{A: "b", B: "c", Coefficient: -0.9},
	}, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	fixes = SuggestCorrelationMatrixFixes(invalid)
	if len(fixes) < 2 {
		t.Fatalf("expected concrete pair suggestions, got %v", fixes)
	}
	found := false
	for _, f := range fixes[1:] {
		if strings.Contains(f, "set correlation (") {
			found = true
		}
	}
	if !found {
		t.Errorf("no per-pair suggestion in %v", fixes)
	}
}

func TestKolmogorovSmirnov(t *testing.T) {
	d := normal(t, 0, 1)
	rng := rand.New(rand.NewSource(5))
	sample := d.Sample(1000, rng)

	stat, p := KolmogorovSmirnov(sample, d.CDF)
	if stat < 0 || stat > 1 {
		t.Errorf("statistic %v outside [0,1]", stat)
	}
	if p < 0.05 {
		t.Errorf("matching sample got p=%v, expected the null to stand", p)
	}

	if stat, p := KolmogorovSmirnov(nil, d.CDF); stat != 0 || p != 1 {
		t.Errorf("empty sample: stat=%v p=%v, want 0 and 1", stat, p)
	}

	// A uniform sample against a standard normal CDF must be firmly rejected.
	uniform := make([]float64, 500)
	for i := range uniform {
		uniform[i] = rng.Float64() * 10
	}
	_, p = KolmogorovSmirnov(uniform, d.CDF)
	if p > 0.001 {
		t.Errorf("grossly mismatched sample got p=%v", p)
	}
}
