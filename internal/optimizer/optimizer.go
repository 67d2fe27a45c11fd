// internal/optimizer/optimizer.go

// Package optimizer solves the size-mix packing problem: pick integer pattern
// allocations that cover size-level demand with minimal excess production.
package optimizer

import (
	"sort"

	"github.com/apparelworks/demandplan/internal/config"
	"github.com/apparelworks/demandplan/internal/domain"
	"github.com/apparelworks/demandplan/pkg/logger"
)

// minSalesHistory is the sales-count floor below which a size is dropped from
// the demand vector.
const minSalesHistory = 3

const (
	searchExtraIterations = 50
	greedyMaxIterations   = 200
)

// Input is one optimization request. SalesCounts drives the size pre-filter;
// sizes absent from it are kept.
type Input struct {
	Demand      map[string]int
	SalesCounts map[string]int
	Patterns    domain.PatternSet
}

// Result is the outcome of one optimization run.
type Result struct {
	Allocation         map[string]int `json:"allocation"` // pattern name -> count
	Produced           map[string]int `json:"produced"`   // size -> units
	Excess             map[string]int `json:"excess"`     // size -> overproduction
	TotalProduced      int            `json:"total_produced"`
	TotalExcess        int            `json:"total_excess"`
	AllCovered         bool           `json:"all_covered"`
	ExcludedSizes      []string       `json:"excluded_sizes"`
	MinOrderViolations []string       `json:"min_order_violations"`
	Algorithm          string         `json:"algorithm"`
}

// Optimizer allocates production patterns against size demand.
type Optimizer struct {
	cfg config.OptimizerConfig
}

func New(cfg config.OptimizerConfig) *Optimizer {
	return &Optimizer{cfg: cfg}
}

// Solve runs the configured algorithm. The search mode falls back to greedy
// overshoot when no candidate total yields full coverage.
func (o *Optimizer) Solve(in Input) (Result, error) {
	if err := in.Patterns.Validate(); err != nil {
		return Result{}, err
	}

	demand, excluded := filterSizes(in.Demand, in.SalesCounts)
	priority := sizePriority(demand)

	if o.cfg.AlgorithmMode != "greedy" {
		if res, ok := o.search(demand, priority, in.Patterns.Patterns); ok {
			res.ExcludedSizes = excluded
			return res, nil
		}
		logger.Log.Debug().Msg("pattern search found no covering allocation, switching to greedy overshoot")
	}

	res := o.greedy(demand, in.Patterns.Patterns)
	res.ExcludedSizes = excluded
	return res, nil
}

// filterSizes drops sizes with under three recorded sales and returns them
// sorted for reporting.
func filterSizes(demand, salesCounts map[string]int) (map[string]int, []string) {
	kept := make(map[string]int, len(demand))
	var excluded []string
	for size, qty := range demand {
		if count, ok := salesCounts[size]; ok && count < minSalesHistory {
			excluded = append(excluded, size)
			continue
		}
		kept[size] = qty
	}
	sort.Strings(excluded)
	return kept, excluded
}

// sizePriority is each retained size's share of total demand. It tie-breaks
// between size-equivalent patterns during the search.
func sizePriority(demand map[string]int) map[string]float64 {
	total := 0
	for _, q := range demand {
		total += q
	}
	out := make(map[string]float64, len(demand))
	if total == 0 {
		return out
	}
	for size, q := range demand {
		out[size] = float64(q) / float64(total)
	}
	return out
}

// search sweeps candidate production totals, greedily filling each budget and
// keeping the covering allocation with the lowest excess. It stops on a
// zero-excess solution or after a bounded number of totals past the first
// feasible one.
func (o *Optimizer) search(demand map[string]int, priority map[string]float64, patterns []domain.Pattern) (Result, bool) {
	maxQ, sumQ := 0, 0
	for _, q := range demand {
		if q > maxQ {
			maxQ = q
		}
		sumQ += q
	}
	if sumQ == 0 {
		return Result{Algorithm: "search", Allocation: map[string]int{}, Produced: map[string]int{}, Excess: map[string]int{}, AllCovered: true}, true
	}

	lo := maxQ / 2
	hi := lo + 100
	if upper := 2 * sumQ; upper < hi {
		hi = upper
	}

	var best Result
	found := false
	extra := 0
	for total := lo; total <= hi; total++ {
		res, covered := o.fillBudget(demand, priority, patterns, total)
		if covered {
			if !found || res.TotalExcess < best.TotalExcess {
				best = res
				found = true
			}
			if best.TotalExcess == 0 {
				break
			}
		}
		if found {
			extra++
			if extra > searchExtraIterations {
				break
			}
		}
	}
	return best, found
}

// fillBudget greedily spends one production budget. A pattern's first pick
// jumps straight to the minimum order, so partial orders cannot occur.
func (o *Optimizer) fillBudget(demand map[string]int, priority map[string]float64, patterns []domain.Pattern, budget int) (Result, bool) {
	remaining := make(map[string]int, len(demand))
	for size, q := range demand {
		remaining[size] = q
	}
	alloc := make(map[string]int, len(patterns))

	for budget > 0 {
		bestIdx := -1
		bestScore := 0.0
		for i, p := range patterns {
			units := p.TotalUnits()
			if units == 0 {
				continue
			}
			firstUse := alloc[p.Name] == 0
			need := units
			if firstUse {
				need = units * o.cfg.MinOrderPerPattern
			}
			if need > budget {
				continue
			}

			score := 0.0
			for size, n := range p.Sizes {
				r := remaining[size]
				covered := n
				if r < covered {
					covered = r
				}
				if covered < 0 {
					covered = 0
				}
				score += float64(covered)*10 + priority[size]*float64(n)*o.cfg.PriorityWeight
				if r <= 0 {
					score--
				}
			}
			if bestIdx < 0 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx < 0 {
			break
		}

		p := patterns[bestIdx]
		count := 1
		if alloc[p.Name] == 0 {
			count = o.cfg.MinOrderPerPattern
			if count < 1 {
				count = 1
			}
		}
		alloc[p.Name] += count
		budget -= count * p.TotalUnits()
		for size, n := range p.Sizes {
			remaining[size] -= n * count
		}
	}

	res := buildResult(demand, alloc, patterns, o.cfg.MinOrderPerPattern, "search")
	return res, res.AllCovered
}

// greedy overshoots demand until every size is covered or the iteration cap
// is reached. It is both the fallback for the search and a standalone mode.
func (o *Optimizer) greedy(demand map[string]int, patterns []domain.Pattern) Result {
	remaining := make(map[string]int, len(demand))
	uncovered := 0
	for size, q := range demand {
		remaining[size] = q
		if q > 0 {
			uncovered++
		}
	}
	alloc := make(map[string]int, len(patterns))

	for iter := 0; iter < greedyMaxIterations && uncovered > 0; iter++ {
		bestIdx := -1
		bestScore := 0.0
		for i, p := range patterns {
			if p.TotalUnits() == 0 {
				continue
			}
			score := 0.0
			for size, n := range p.Sizes {
				r := remaining[size]
				covered := n
				if r < covered {
					covered = r
				}
				if covered < 0 {
					covered = 0
				}
				score += float64(covered) * 100
				if r > 0 {
					score += float64(r) * 10
				} else {
					score -= float64(n)
				}
			}
			if bestIdx < 0 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx < 0 {
			break
		}

		p := patterns[bestIdx]
		count := 1
		if alloc[p.Name] == 0 {
			count = o.cfg.MinOrderPerPattern
			if count < 1 {
				count = 1
			}
		}
		alloc[p.Name] += count
		for size, n := range p.Sizes {
			before := remaining[size]
			remaining[size] -= n * count
			if before > 0 && remaining[size] <= 0 {
				uncovered--
			}
		}
	}

	return buildResult(demand, alloc, patterns, o.cfg.MinOrderPerPattern, "greedy")
}

func buildResult(demand, alloc map[string]int, patterns []domain.Pattern, minOrder int, algorithm string) Result {
	produced := make(map[string]int, len(demand))
	for size := range demand {
		produced[size] = 0
	}
	for _, p := range patterns {
		count := alloc[p.Name]
		if count == 0 {
			continue
		}
		for size, n := range p.Sizes {
			produced[size] += n * count
		}
	}

	excess := make(map[string]int, len(demand))
	totalProduced, totalExcess := 0, 0
	allCovered := true
	for size, q := range demand {
		if produced[size] < q {
			allCovered = false
		}
		over := produced[size] - q
		if over < 0 {
			over = 0
		}
		excess[size] = over
		totalExcess += over
	}
	// Production into sizes outside the demand vector is pure excess.
	for size, n := range produced {
		if _, ok := demand[size]; !ok && n > 0 {
			excess[size] = n
			totalExcess += n
		}
	}
	for _, n := range produced {
		totalProduced += n
	}

	var violations []string
	for name, count := range alloc {
		if count > 0 && count < minOrder {
			violations = append(violations, name)
		}
	}
	sort.Strings(violations)

	// Patterns with zero allocation are omitted from the result.
	cleaned := make(map[string]int, len(alloc))
	for name, count := range alloc {
		if count > 0 {
			cleaned[name] = count
		}
	}

	return Result{
		Allocation:         cleaned,
		Produced:           produced,
		Excess:             excess,
		TotalProduced:      totalProduced,
		TotalExcess:        totalExcess,
		AllCovered:         allCovered,
		MinOrderViolations: violations,
		Algorithm:          algorithm,
	}
}
