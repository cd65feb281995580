package matrix

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/lcatools/ecomatrix/internal/audit"
)

// CheckCumulativeLCI compares published cumulative inventories E against the
// ones implied by the assembled system, F (I - A)^-1, and audits the worst
// disagreements. A failed solve is an error; disagreement is not, the
// published inventories are themselves approximate.
func (s *System) CheckCumulativeLCI(log *zap.SugaredLogger, rep *audit.Reporter, e *mat.Dense, tolerance float64) error {
	n := len(s.Labels.Processes)
	m := len(s.Labels.Observations)
	if er, ec := e.Dims(); er != m || ec != n {
		return fmt.Errorf("cumulative inventory is %d x %d, want %d x %d",
			er, ec, m, n)
	}

	// I - A
	ima := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := -s.A.At(i, j)
			if i == j {
				v++
			}
			ima.Set(i, j, v)
		}
	}

	var x mat.Dense
	if err := x.Solve(ima, eye(n)); err != nil {
		return fmt.Errorf("solve (I - A) x = I: %w", err)
	}
	var implied mat.Dense
	implied.Mul(s.F, &x)

	var worst [][]string
	bad := 0
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			want := e.At(i, j)
			got := implied.At(i, j)
			diff := math.Abs(want - got)
			scale := math.Max(math.Abs(want), math.Abs(got))
			if scale > 0 && diff/scale > tolerance {
				bad++
				if len(worst) < 1000 {
					worst = append(worst, []string{
						s.Labels.Observations[i].ID,
						s.Labels.Processes[j].Key,
						fmt.Sprint(want), fmt.Sprint(got),
						fmt.Sprint(diff / scale),
					})
				}
			}
		}
	}

	if bad == 0 {
		log.Infof("Cumulative LCI check passed within relative tolerance %g",
			tolerance)
		return nil
	}
	path, err := rep.WriteTable("lci_check_disagreements.csv",
		[]string{"stressorId", "processKey", "published", "implied",
			"relative_diff"}, worst)
	if err != nil {
		return err
	}
	rep.Count("lci_check_disagreements", bad)
	log.Warnf("Cumulative LCI check: %d entries disagree beyond relative"+
		" tolerance %g, see %s", bad, tolerance, path)
	return nil
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
