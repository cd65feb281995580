package matrix

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/lcatools/ecomatrix/internal/recon"
)

// System is the assembled traceable Leontief representation: normalized
// technology and stressor intensity matrices, plus the absolute flows when
// scale-up is requested.
type System struct {
	Labels *Labels

	A *mat.Dense // technology coefficients, processes x processes
	F *mat.Dense // stressor intensities, observations x processes

	// Filled by ScaleUp.
	Z    *mat.Dense
	GPro *mat.Dense
	Q    []float64 // production volumes, one per process
}

// Assemble pivots the reconciled flow tables into A and F and normalizes both
// by each process's production amount.
//
// With positiveWaste, waste treatment flows are re-signed so that the
// treatment service appears as an ordinary positive output: technology rows
// are multiplied by the sign of the producer's outflow and columns normalized
// by its magnitude. Otherwise columns are normalized by the signed outflow.
//
// A zero production amount makes a column undefined; nan2null forces those
// coefficients to zero, without it assembly fails.
func Assemble(log *zap.SugaredLogger, c *recon.Context, labels *Labels, positiveWaste, nan2null bool) (*System, error) {
	n := len(labels.Processes)
	m := len(labels.Observations)

	a := mat.NewDense(n, n, nil)
	for _, flow := range c.InFlows {
		if flow.SourceActivityID == "" {
			continue
		}
		col, ok := labels.proIndex[flow.FileID]
		if !ok {
			return nil, fmt.Errorf("inflow of %s: unknown process %s",
				flow.ProductID, flow.FileID)
		}
		row, ok := labels.proIndex[flow.SourceActivityID+"_"+flow.ProductID]
		if !ok {
			return nil, fmt.Errorf("inflow of %s into %s: no producing process"+
				" %s_%s", flow.ProductID, flow.FileID, flow.SourceActivityID,
				flow.ProductID)
		}
		a.Set(row, col, a.At(row, col)+flow.Amount)
	}

	f := mat.NewDense(m, n, nil)
	droppedElem := 0
	for _, flow := range c.ElemFlows {
		col, ok := labels.proIndex[flow.FileID]
		if !ok {
			return nil, fmt.Errorf("elementary flow %s: unknown process %s",
				flow.ExchangeID, flow.FileID)
		}
		row, ok := labels.dsIndex[flow.ExchangeID]
		if !ok {
			droppedElem++
			continue
		}
		f.Set(row, col, f.At(row, col)+flow.Amount)
	}
	if droppedElem > 0 {
		log.Warnf("%d elementary flows had no stressor label row and were"+
			" dropped", droppedElem)
	}

	// Per-process production amounts, in column order.
	out := make([]float64, n)
	for i, p := range labels.Processes {
		flow, ok := c.OutFlows[p.Key]
		if !ok {
			return nil, fmt.Errorf("process %s has no production outflow", p.Key)
		}
		out[i] = flow.Amount
	}

	if positiveWaste {
		for i := range out {
			if out[i] < 0 {
				for j := 0; j < n; j++ {
					a.Set(i, j, -a.At(i, j))
				}
			}
		}
	}
	for j := 0; j < n; j++ {
		norm := out[j]
		if positiveWaste {
			norm = math.Abs(norm)
		}
		for i := 0; i < n; i++ {
			a.Set(i, j, a.At(i, j)/norm)
		}
		for i := 0; i < m; i++ {
			f.Set(i, j, f.At(i, j)/norm)
		}
	}

	nans := nanToNull(a) + nanToNull(f)
	if nans > 0 {
		if !nan2null {
			return nil, fmt.Errorf("%d undefined coefficients from zero"+
				" production amounts; set nan2null to force them to zero", nans)
		}
		log.Warnf("Replaced %d undefined coefficients by zero", nans)
	}

	log.Infof("Assembled A (%d x %d) and F (%d x %d)", n, n, m, n)
	return &System{Labels: labels, A: a, F: f}, nil
}

// nanToNull zeroes NaN and infinite entries in place, returning how many it
// touched.
func nanToNull(m *mat.Dense) int {
	rows, cols := m.Dims()
	n := 0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				m.Set(i, j, 0)
				n++
			}
		}
	}
	return n
}

// ScaleUp recovers absolute flows from the normalized system using each
// process's production volume: Z and GPro are A and F scaled column-wise by
// the volume vector.
func (s *System) ScaleUp(log *zap.SugaredLogger, c *recon.Context) error {
	n := len(s.Labels.Processes)
	q := make([]float64, n)
	for i, p := range s.Labels.Processes {
		flow, ok := c.OutFlows[p.Key]
		if !ok {
			return fmt.Errorf("process %s has no production outflow", p.Key)
		}
		q[i] = flow.ProductionVolume
	}

	s.Q = q
	s.Z = scaleCols(s.A, q)
	s.GPro = scaleCols(s.F, q)
	log.Info("Scaled up normalized matrices to absolute flows")
	return nil
}

func scaleCols(m *mat.Dense, q []float64) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			out.Set(i, j, m.At(i, j)*q[j])
		}
	}
	return out
}
