package matrix

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/lcatools/ecomatrix/internal/recon"
)

// UseRow labels one row of the use table: a product, traced to a supplying
// activity unless the tables were made untraceable.
type UseRow struct {
	SourceActivityID string
	ProductID        string
}

// SUT is the supply-and-use representation: absolute flows organized by
// activity rather than by process.
type SUT struct {
	Labels     *Labels
	Activities []string  // column order, shared by all four tables
	UseRows    []*UseRow // row order of U
	Products   []string  // row order of V and VProdVol

	U        *mat.Dense // product use by activity
	V        *mat.Dense // product supply by activity
	VProdVol *mat.Dense // production volumes, same shape as V
	GAct     *mat.Dense // stressor flows by activity

	Untraceable bool
}

// BuildSUT pivots the flow tables by activity. With untraceable, the source
// attribution of use flows is discarded before pivoting, so flows of the same
// product from different suppliers collapse into one row; this matches the
// official aggregated publication of the tables.
func BuildSUT(log *zap.SugaredLogger, c *recon.Context, labels *Labels, untraceable bool) (*SUT, error) {
	s := &SUT{Labels: labels, Untraceable: untraceable}

	// Column order follows the process label; activities repeat once per
	// product they make.
	actIndex := map[string]int{}
	for _, p := range labels.Processes {
		if _, ok := actIndex[p.ActivityID]; !ok {
			actIndex[p.ActivityID] = len(s.Activities)
			s.Activities = append(s.Activities, p.ActivityID)
		}
	}
	prodIndex := map[string]int{}
	for _, p := range labels.Processes {
		if _, ok := prodIndex[p.ProductID]; !ok {
			prodIndex[p.ProductID] = len(s.Products)
			s.Products = append(s.Products, p.ProductID)
		}
	}

	// Use rows, in first-seen flow order over the ordered process label.
	useIndex := map[UseRow]int{}
	rowOf := func(f *recon.InFlow) int {
		key := UseRow{ProductID: f.ProductID}
		if !untraceable {
			key.SourceActivityID = f.SourceActivityID
		}
		i, ok := useIndex[key]
		if !ok {
			i = len(s.UseRows)
			useIndex[key] = i
			k := key
			s.UseRows = append(s.UseRows, &k)
		}
		return i
	}

	type cell struct{ row, col int }
	uCells := map[cell]float64{}
	for _, f := range c.InFlows {
		p := c.ProcessByKey(f.FileID)
		if p == nil {
			return nil, fmt.Errorf("inflow of %s: unknown process %s",
				f.ProductID, f.FileID)
		}
		uCells[cell{rowOf(f), actIndex[p.ActivityID]}] += f.Amount
	}

	nAct := len(s.Activities)
	s.U = mat.NewDense(max(len(s.UseRows), 1), nAct, nil)
	for at, v := range uCells {
		s.U.Set(at.row, at.col, v)
	}

	s.V = mat.NewDense(len(s.Products), nAct, nil)
	s.VProdVol = mat.NewDense(len(s.Products), nAct, nil)
	for _, p := range labels.Processes {
		flow, ok := c.OutFlows[p.Key]
		if !ok {
			return nil, fmt.Errorf("process %s has no production outflow", p.Key)
		}
		i, j := prodIndex[p.ProductID], actIndex[p.ActivityID]
		s.V.Set(i, j, s.V.At(i, j)+flow.Amount)
		s.VProdVol.Set(i, j, s.VProdVol.At(i, j)+flow.ProductionVolume)
	}

	s.GAct = mat.NewDense(len(labels.Observations), nAct, nil)
	for _, f := range c.ElemFlows {
		p := c.ProcessByKey(f.FileID)
		if p == nil {
			return nil, fmt.Errorf("elementary flow %s: unknown process %s",
				f.ExchangeID, f.FileID)
		}
		i, ok := labels.dsIndex[f.ExchangeID]
		if !ok {
			continue
		}
		j := actIndex[p.ActivityID]
		s.GAct.Set(i, j, s.GAct.At(i, j)+f.Amount)
	}

	mode := "traceable"
	if untraceable {
		mode = "untraceable"
	}
	log.Infof("Assembled %s SUT: U (%d x %d), V (%d x %d), G_act (%d x %d)",
		mode, len(s.UseRows), nAct, len(s.Products), nAct,
		len(labels.Observations), nAct)
	return s, nil
}
