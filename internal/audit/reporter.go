// Package audit writes the human-auditable side reports of a conversion run:
// unresolved flow-source candidate sets, synthesized placeholder productions,
// uncharacterized flows and substances, factor conflicts and near-miss
// diagnostics. Expected ambiguity is reported here and never aborts the run.
package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Reporter writes pipe-delimited audit artifacts into a run's log directory.
type Reporter struct {
	dir string
	log *zap.SugaredLogger

	counts map[string]int
}

// NewReporter creates the artifact directory if needed.
func NewReporter(dir string, log *zap.SugaredLogger) (*Reporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir %s: %w", dir, err)
	}
	return &Reporter{dir: dir, log: log, counts: map[string]int{}}, nil
}

// Dir returns the artifact directory.
func (r *Reporter) Dir() string { return r.dir }

// WriteTable writes one artifact and returns its path. The row count is
// remembered for the run summary.
func (r *Reporter) WriteTable(name string, header []string, rows [][]string) (string, error) {
	path := filepath.Join(r.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create audit file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '|'
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write audit header %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write audit rows %s: %w", path, err)
	}
	r.counts[name] = len(rows)
	return path, nil
}

// Count records a stage statistic for the run summary without writing a file.
func (r *Reporter) Count(name string, n int) {
	r.counts[name] = n
}

// WriteSummary writes the per-stage counts collected during the run.
func (r *Reporter) WriteSummary() error {
	names := make([]string, 0, len(r.counts))
	for name := range r.counts {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, fmt.Sprint(r.counts[name])})
	}
	rows = append(rows, []string{"completed_at", time.Now().Format(time.RFC3339)})

	_, err := r.WriteTable("run_summary.csv", []string{"artifact", "rows"}, rows)
	return err
}
