// Package export writes the assembled matrices and their labels to disk in
// the configured formats.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/lcatools/ecomatrix/internal/matrix"
)

// Formats.
const (
	FormatCSV    = "csv"    // dense, one file per matrix
	FormatSparse = "sparse" // coordinate triplets, nonzero entries only
)

// Exporter writes one run's outputs under a version-named directory.
type Exporter struct {
	dir string
	log *zap.SugaredLogger
}

// NewExporter creates the output directory <outDir>/<version>.
func NewExporter(log *zap.SugaredLogger, outDir, version string) (*Exporter, error) {
	dir := filepath.Join(outDir, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return &Exporter{dir: dir, log: log}, nil
}

// Dir returns the run's output directory.
func (e *Exporter) Dir() string { return e.dir }

// WriteLabels writes the process, stressor and impact label files. Row order
// matches the matrix row and column order exactly.
func (e *Exporter) WriteLabels(labels *matrix.Labels) error {
	var pro [][]string
	for _, p := range labels.Processes {
		pro = append(pro, []string{p.Key, p.ActivityID, p.ProductID,
			p.ActivityName, p.ProductName, p.ISIC, p.Geography, p.Unit,
			fmt.Sprint(p.ActivityType), p.TechnologyLevel, p.Comment})
	}
	if err := e.writeCSV("PRO.csv", []string{"key", "activityId", "productId",
		"activityName", "productName", "ISIC", "geography", "unit",
		"activityType", "technologyLevel", "comment"}, pro); err != nil {
		return err
	}

	var str [][]string
	for _, o := range labels.Observations {
		legacy := ""
		if o.LegacyID != 0 {
			legacy = fmt.Sprint(o.LegacyID)
		}
		str = append(str, []string{o.ID, o.DSID, fmt.Sprint(o.SubstID),
			o.Name, o.CAS, o.Tag, o.Comp, o.Subcomp, o.Unit, legacy})
	}
	if err := e.writeCSV("STR.csv", []string{"id", "dsid", "substId", "name",
		"cas", "tag", "comp", "subcomp", "unit", "oldId"}, str); err != nil {
		return err
	}

	var imp [][]string
	for _, i := range labels.Impacts {
		imp = append(imp, []string{i.ID, i.Perspective, i.Unit})
	}
	if err := e.writeCSV("IMP.csv", []string{"id", "perspective", "unit"},
		imp); err != nil {
		return err
	}

	e.log.Infof("Wrote label files: %d processes, %d stressors, %d impacts",
		len(pro), len(str), len(imp))
	return nil
}

// WriteMatrix writes one named matrix in every requested format.
func (e *Exporter) WriteMatrix(name string, m *mat.Dense, formats []string) error {
	for _, format := range formats {
		switch format {
		case FormatCSV:
			if err := e.writeDense(name+".csv", m); err != nil {
				return err
			}
		case FormatSparse:
			if err := e.writeTriplets(name+"_triplets.csv", m); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown export format %q", format)
		}
	}
	return nil
}

// WriteSystem writes the Leontief system's matrices: A and F always, the
// scaled-up Z and G_pro when present.
func (e *Exporter) WriteSystem(s *matrix.System, formats []string) error {
	if err := e.WriteMatrix("A", s.A, formats); err != nil {
		return err
	}
	if err := e.WriteMatrix("F", s.F, formats); err != nil {
		return err
	}
	if s.Z != nil {
		if err := e.WriteMatrix("Z", s.Z, formats); err != nil {
			return err
		}
		if err := e.WriteMatrix("G_pro", s.GPro, formats); err != nil {
			return err
		}
	}
	e.log.Infof("Matrices exported to %s", e.dir)
	return nil
}

// WriteSUT writes the supply-and-use tables and their row label files.
func (e *Exporter) WriteSUT(s *matrix.SUT, formats []string) error {
	var useRows [][]string
	for _, r := range s.UseRows {
		useRows = append(useRows, []string{r.SourceActivityID, r.ProductID})
	}
	if err := e.writeCSV("U_rows.csv",
		[]string{"sourceActivityId", "productId"}, useRows); err != nil {
		return err
	}
	var prodRows [][]string
	for _, id := range s.Products {
		prodRows = append(prodRows, []string{id})
	}
	if err := e.writeCSV("V_rows.csv", []string{"productId"}, prodRows); err != nil {
		return err
	}
	var actCols [][]string
	for _, id := range s.Activities {
		actCols = append(actCols, []string{id})
	}
	if err := e.writeCSV("SUT_columns.csv", []string{"activityId"}, actCols); err != nil {
		return err
	}

	for _, t := range []struct {
		name string
		m    *mat.Dense
	}{
		{"U", s.U}, {"V", s.V}, {"V_prodVol", s.VProdVol}, {"G_act", s.GAct},
	} {
		if err := e.WriteMatrix(t.name, t.m, formats); err != nil {
			return err
		}
	}
	e.log.Infof("Supply and use tables exported to %s", e.dir)
	return nil
}

// writeDense writes a matrix as pipe-delimited rows of numbers.
func (e *Exporter) writeDense(name string, m *mat.Dense) error {
	rows, cols := m.Dims()
	records := make([][]string, rows)
	for i := 0; i < rows; i++ {
		record := make([]string, cols)
		for j := 0; j < cols; j++ {
			record[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		records[i] = record
	}
	return e.writeCSV(name, nil, records)
}

// writeTriplets writes the nonzero entries as row|col|value triplets.
func (e *Exporter) writeTriplets(name string, m *mat.Dense) error {
	rows, cols := m.Dims()
	records := [][]string{}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := m.At(i, j); v != 0 {
				records = append(records, []string{
					strconv.Itoa(i), strconv.Itoa(j),
					strconv.FormatFloat(v, 'g', -1, 64),
				})
			}
		}
	}
	return e.writeCSV(name, []string{"row", "col", "value"}, records)
}

func (e *Exporter) writeCSV(name string, header []string, rows [][]string) error {
	path := filepath.Join(e.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '|'
	if header != nil {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
