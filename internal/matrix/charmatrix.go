package matrix

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/lcatools/ecomatrix/internal/charact"
)

// BuildC pivots the observation-to-factor links into the characterisation
// matrix C, impacts by observations. Each link occupies one cell; the cascade
// guarantees at most one link per (observation, impact) pair.
func BuildC(log *zap.SugaredLogger, labels *Labels, links []*charact.Link) *mat.Dense {
	rows := len(labels.Impacts)
	cols := len(labels.Observations)
	c := mat.NewDense(rows, cols, nil)

	placed, dropped := 0, 0
	for _, link := range links {
		i, ok := labels.impIndex[link.ImpactID]
		if !ok {
			dropped++
			continue
		}
		j, ok := labels.obsIndex[link.ObsID]
		if !ok {
			dropped++
			continue
		}
		c.Set(i, j, link.Factor.Value)
		placed++
	}
	if dropped > 0 {
		log.Warnf("%d characterisation links referenced labels outside the"+
			" final ordering and were dropped", dropped)
	}
	log.Infof("Assembled C (%d x %d) from %d links", rows, cols, placed)
	return c
}
