// internal/domain/pattern.go
package domain

// Pattern is a cutting recipe: how many units of each size one batch of the
// pattern produces.
type Pattern struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Sizes map[string]int `json:"sizes"`
}

// TotalUnits returns the number of garments one unit of the pattern yields.
func (p Pattern) TotalUnits() int {
	total := 0
	for _, n := range p.Sizes {
		total += n
	}
	return total
}

// PatternSet is a named group of patterns sharing a size vocabulary. Every size
// referenced by a member pattern appears in SizeNames.
type PatternSet struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SizeNames []string  `json:"size_names"`
	Patterns  []Pattern `json:"patterns"`
}

// Validate checks that every pattern only references sizes declared in SizeNames.
func (ps PatternSet) Validate() error {
	known := make(map[string]struct{}, len(ps.SizeNames))
	for _, s := range ps.SizeNames {
		known[s] = struct{}{}
	}
	for _, p := range ps.Patterns {
		for size := range p.Sizes {
			if _, ok := known[size]; !ok {
				return &ValidationError{
					Field:  "patterns",
					Reason: "pattern " + p.Name + " references unknown size " + size,
				}
			}
		}
	}
	return nil
}
