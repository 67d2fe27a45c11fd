// internal/classify/classifier.go
package classify

import (
	"time"

	"github.com/apparelworks/demandplan/internal/config"
	"github.com/apparelworks/demandplan/internal/domain"
)

// Classifier assigns every entity exactly one demand-behavior type.
type Classifier struct {
	cvBasic            float64
	cvSeasonal         float64
	newThresholdMonths int
	now                func() time.Time
}

// New builds a classifier from the planning settings.
func New(cfg config.PlanningConfig) *Classifier {
	return &Classifier{
		cvBasic:            cfg.CVThresholds.Basic,
		cvSeasonal:         cfg.CVThresholds.Seasonal,
		newThresholdMonths: cfg.NewProductThresholdMonths,
		now:                time.Now,
	}
}

// WithClock fixes the reference time, used by tests and replayed computations.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.now = now
	return c
}

// Classify applies the ordered rules: new first, then basic, then seasonal,
// then regular. Earlier rules win.
func (c *Classifier) Classify(summary domain.SkuSummary) domain.ProductType {
	cutoff := c.now().AddDate(0, -c.newThresholdMonths, 0)
	if !summary.FirstSaleDate.IsZero() && summary.FirstSaleDate.After(cutoff) {
		return domain.TypeNew
	}
	if summary.CV < c.cvBasic {
		return domain.TypeBasic
	}
	if summary.CV > c.cvSeasonal {
		return domain.TypeSeasonal
	}
	return domain.TypeRegular
}

// ClassifyAll stamps the type onto each summary row in place and returns the slice.
func (c *Classifier) ClassifyAll(summaries []domain.SkuSummary) []domain.SkuSummary {
	for i := range summaries {
		summaries[i].Type = c.Classify(summaries[i])
	}
	return summaries
}
