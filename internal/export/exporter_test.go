package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/lcatools/ecomatrix/internal/logger"
)

func readPipeCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = '|'
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestWriteMatrixDense(t *testing.T) {
	dir := t.TempDir()
	e, err := NewExporter(logger.Nop(), dir, "v1")
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}

	m := mat.NewDense(2, 3, []float64{1, 0, 2.5, 0, -3, 0})
	if err := e.WriteMatrix("A", m, []string{FormatCSV}); err != nil {
		t.Fatalf("WriteMatrix: %v", err)
	}

	rows := readPipeCSV(t, filepath.Join(dir, "v1", "A.csv"))
	if len(rows) != 2 || len(rows[0]) != 3 {
		t.Fatalf("dense shape = %dx%d, want 2x3", len(rows), len(rows[0]))
	}
	if rows[0][2] != "2.5" || rows[1][1] != "-3" {
		t.Errorf("dense values = %v", rows)
	}
}

func TestWriteMatrixSparse(t *testing.T) {
	dir := t.TempDir()
	e, err := NewExporter(logger.Nop(), dir, "v1")
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}

	m := mat.NewDense(2, 2, []float64{0, 4, 0, 0})
	if err := e.WriteMatrix("F", m, []string{FormatSparse}); err != nil {
		t.Fatalf("WriteMatrix: %v", err)
	}

	rows := readPipeCSV(t, filepath.Join(dir, "v1", "F_triplets.csv"))
	// header plus the single nonzero entry
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header plus one triplet", len(rows))
	}
	if rows[1][0] != "0" || rows[1][1] != "1" || rows[1][2] != "4" {
		t.Errorf("triplet = %v, want [0 1 4]", rows[1])
	}
}

func TestUnknownFormat(t *testing.T) {
	e, err := NewExporter(logger.Nop(), t.TempDir(), "v1")
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}
	m := mat.NewDense(1, 1, []float64{1})
	if err := e.WriteMatrix("A", m, []string{"parquet"}); err == nil {
		t.Error("WriteMatrix accepted an unknown format")
	}
}
