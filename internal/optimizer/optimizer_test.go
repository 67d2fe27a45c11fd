// internal/optimizer/optimizer_test.go
package optimizer

import (
	"testing"

	"github.com/apparelworks/demandplan/internal/config"
	"github.com/apparelworks/demandplan/internal/domain"
)

func sixPatternSet() domain.PatternSet {
	return domain.PatternSet{
		ID:        "ps1",
		Name:      "two-up markers",
		SizeNames: []string{"XS", "S", "M", "L", "XL"},
		Patterns: []domain.Pattern{
			{ID: "p1", Name: "p1", Sizes: map[string]int{"XL": 1, "L": 1}},
			{ID: "p2", Name: "p2", Sizes: map[string]int{"M": 1, "S": 1}},
			{ID: "p3", Name: "p3", Sizes: map[string]int{"M": 2}},
			{ID: "p4", Name: "p4", Sizes: map[string]int{"S": 1, "L": 1}},
			{ID: "p5", Name: "p5", Sizes: map[string]int{"XS": 1, "XL": 1}},
			{ID: "p6", Name: "p6", Sizes: map[string]int{"M": 1, "L": 1}},
		},
	}
}

func TestSolveCoversDemandWithinExcessBound(t *testing.T) {
	opt := New(config.OptimizerConfig{AlgorithmMode: "search", MinOrderPerPattern: 5, PriorityWeight: 5})

	res, err := opt.Solve(Input{
		Demand:   map[string]int{"XL": 6, "L": 6, "M": 4, "S": 4, "XS": 0},
		Patterns: sixPatternSet(),
	})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	if !res.AllCovered {
		t.Fatalf("not covered: %+v", res)
	}
	if len(res.MinOrderViolations) != 0 {
		t.Errorf("min-order violations: %v", res.MinOrderViolations)
	}
	if res.TotalExcess > 8 {
		t.Errorf("total excess = %d, want <= 8", res.TotalExcess)
	}
	for _, count := range res.Allocation {
		if count > 0 && count < 5 {
			t.Errorf("allocation below minimum order: %+v", res.Allocation)
		}
	}
	for size, q := range map[string]int{"XL": 6, "L": 6, "M": 4, "S": 4} {
		if res.Produced[size] < q {
			t.Errorf("size %s produced %d, want >= %d", size, res.Produced[size], q)
		}
	}
}

func TestSolveExcludesThinSizes(t *testing.T) {
	opt := New(config.DefaultPlanning().Optimizer)

	res, err := opt.Solve(Input{
		Demand:      map[string]int{"XL": 6, "L": 6, "XS": 8},
		SalesCounts: map[string]int{"XL": 40, "L": 35, "XS": 2},
		Patterns:    sixPatternSet(),
	})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	if len(res.ExcludedSizes) != 1 || res.ExcludedSizes[0] != "XS" {
		t.Fatalf("excluded = %v, want [XS]", res.ExcludedSizes)
	}
	// XS demand must not force production.
	if res.Produced["XL"] < 6 || res.Produced["L"] < 6 {
		t.Errorf("produced = %v", res.Produced)
	}
}

func TestSolveZeroDemand(t *testing.T) {
	opt := New(config.DefaultPlanning().Optimizer)

	res, err := opt.Solve(Input{
		Demand:   map[string]int{"M": 0, "L": 0},
		Patterns: sixPatternSet(),
	})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !res.AllCovered || res.TotalProduced != 0 {
		t.Errorf("result = %+v, want empty covering allocation", res)
	}
}

func TestGreedyOvershootCovers(t *testing.T) {
	opt := New(config.OptimizerConfig{AlgorithmMode: "greedy", MinOrderPerPattern: 5, PriorityWeight: 5})

	res, err := opt.Solve(Input{
		Demand:   map[string]int{"XL": 6, "L": 6, "M": 4, "S": 4},
		Patterns: sixPatternSet(),
	})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Algorithm != "greedy" {
		t.Fatalf("algorithm = %v, want greedy", res.Algorithm)
	}
	if !res.AllCovered {
		t.Fatalf("not covered: %+v", res)
	}
	if len(res.MinOrderViolations) != 0 {
		t.Errorf("violations: %v", res.MinOrderViolations)
	}
}

func TestSolveRejectsUnknownSize(t *testing.T) {
	opt := New(config.DefaultPlanning().Optimizer)

	ps := sixPatternSet()
	ps.Patterns = append(ps.Patterns, domain.Pattern{ID: "bad", Name: "bad", Sizes: map[string]int{"XXL": 1}})
	if _, err := opt.Solve(Input{Demand: map[string]int{"M": 2}, Patterns: ps}); err == nil {
		t.Fatal("expected validation error for unknown size")
	}
}
