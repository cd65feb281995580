// Package charact reads a characterization method and matches resolved
// inventory observations to its factors through the subcompartment cascade.
package charact

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/lcatools/ecomatrix/internal/recon"
)

// sheetSpec describes one impact sheet of the ReCiPe workbook. Layouts are
// not uniform across sheets, so each carries its own column ranges: the first
// six columns of Range are the label block (comp, subcomp, name, alternate
// name, cas, unit), the rest are one column per impact category. Meta is the
// three-row metadata block (perspective, unit, impact identifier) above the
// impact columns.
type sheetSpec struct {
	Name     string
	SkipRows int
	Range    string
	Meta     string
}

// recipeSheets is the fixed named-sheet-per-impact layout of ReCiPe 1.11.
var recipeSheets = []sheetSpec{
	{"FEP", 5, "B:M", "H4:M6"},
	{"MEP", 5, "B:J", "H4:J6"},
	{"GWP", 5, "B:P", "H4:P6"},
	{"ODP", 5, "B:J", "H4:J6"},
	{"ODP", 5, "B:G,N:P", "N4:P6"},
	{"AP", 5, "B:M", "H4:M6"},
	{"POFP", 5, "B:M", "H4:M6"},
	{"PMFP", 5, "B:M", "H4:M6"},
	{"IRP", 5, "B:M", "H4:M6"},
	{"LOP", 5, "B:M", "H4:M6"},
	{"LOP", 5, "B:G,Q:V", "Q4:V6"},
	{"LTP", 5, "B:J", "H4:J6"},
	{"LTP", 5, "B:G,N:P", "N4:P6"},
	{"WDP", 5, "B:J", "H4:J6"},
	{"MDP", 5, "B:M", "H4:M6"},
	{"FDP", 5, "B:M", "H4:M6"},
	{"TP", 5, "B:AE", "H4:AE6"},
}

// ReadMethod reads a characterization workbook into raw factor rows and the
// impact category list. Only the ReCiPe layout is supported; anything else is
// a structural failure.
func ReadMethod(log *zap.SugaredLogger, path string) (string, []*recon.CharRow, []*recon.Impact, error) {
	if !strings.Contains(path, "ReCiPe") {
		return "", nil, nil, fmt.Errorf(
			"no method defined to read characterisation factors from %s", path)
	}
	method := "ReCiPe111"

	wb, err := excelize.OpenFile(path)
	if err != nil {
		return "", nil, nil, fmt.Errorf("open characterisation file %s: %w", path, err)
	}
	defer wb.Close()

	var rows []*recon.CharRow
	var impacts []*recon.Impact
	seenImpact := map[string]bool{}

	for _, sheet := range recipeSheets {
		cells, err := wb.GetRows(sheet.Name)
		if err != nil {
			return "", nil, nil, fmt.Errorf("read sheet %s: %w", sheet.Name, err)
		}

		cols, err := expandRanges(sheet.Range)
		if err != nil {
			return "", nil, nil, fmt.Errorf("sheet %s: %w", sheet.Name, err)
		}
		if len(cols) < 7 {
			return "", nil, nil, fmt.Errorf("sheet %s: range %s too narrow",
				sheet.Name, sheet.Range)
		}
		labelCols, impactCols := cols[:6], cols[6:]

		sheetImpacts, err := readImpactMeta(cells, sheet.Meta)
		if err != nil {
			return "", nil, nil, fmt.Errorf("sheet %s: %w", sheet.Name, err)
		}
		if len(sheetImpacts) != len(impactCols) {
			return "", nil, nil, fmt.Errorf(
				"sheet %s: %d impact columns but %d metadata entries",
				sheet.Name, len(impactCols), len(sheetImpacts))
		}
		for _, imp := range sheetImpacts {
			if !seenImpact[imp.ID] {
				seenImpact[imp.ID] = true
				impacts = append(impacts, imp)
			}
		}

		// Data starts after the skipped header block plus the header row.
		for r := sheet.SkipRows + 1; r < len(cells); r++ {
			comp := cell(cells, r, labelCols[0])
			name := cell(cells, r, labelCols[2])
			name2 := cell(cells, r, labelCols[3])
			if comp == "" && name == "" && name2 == "" {
				continue
			}
			rec := recon.Record{
				ID:      fmt.Sprintf("%s_r%d", sheet.Name, r+1),
				Comp:    comp,
				Subcomp: cell(cells, r, labelCols[1]),
				Name:    name,
				Name2:   name2,
				CAS:     strings.TrimLeft(cell(cells, r, labelCols[4]), "0"),
				Unit:    cell(cells, r, labelCols[5]),
			}
			for i, col := range impactCols {
				raw := cell(cells, r, col)
				if raw == "" {
					continue
				}
				value, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					log.Warnf("Sheet %s row %d: factor %q is not a number,"+
						" skipped", sheet.Name, r+1, raw)
					continue
				}
				rows = append(rows, &recon.CharRow{
					Record:      rec,
					ImpactID:    sheetImpacts[i].ID,
					FactorValue: value,
				})
			}
		}
	}

	log.Infof("Read %d factor rows over %d impact categories from %s",
		len(rows), len(impacts), path)
	return method, rows, impacts, nil
}

// readImpactMeta reads a metadata block like "H4:M6": rows perspective, unit,
// impact identifier over the impact columns.
func readImpactMeta(cells [][]string, ref string) ([]*recon.Impact, error) {
	parts := strings.Split(ref, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("bad metadata range %q", ref)
	}
	c0, r0, err := splitCellRef(parts[0])
	if err != nil {
		return nil, err
	}
	c1, _, err := splitCellRef(parts[1])
	if err != nil {
		return nil, err
	}

	var impacts []*recon.Impact
	for col := c0; col <= c1; col++ {
		id := recon.CleanImpactID(cell(cells, r0+2, col))
		if id == "" {
			continue
		}
		impacts = append(impacts, &recon.Impact{
			ID:          id,
			Perspective: cell(cells, r0, col),
			Unit:        cell(cells, r0+1, col),
		})
	}
	return impacts, nil
}

// expandRanges turns "B:G,N:P" into zero-based column indexes.
func expandRanges(ranges string) ([]int, error) {
	var cols []int
	for _, r := range strings.Split(ranges, ",") {
		parts := strings.Split(r, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad column range %q", r)
		}
		from, err := columnIndex(parts[0])
		if err != nil {
			return nil, err
		}
		to, err := columnIndex(parts[1])
		if err != nil {
			return nil, err
		}
		for c := from; c <= to; c++ {
			cols = append(cols, c)
		}
	}
	return cols, nil
}

// columnIndex converts a column letter like "AE" to a zero-based index.
func columnIndex(letters string) (int, error) {
	n, err := excelize.ColumnNameToNumber(strings.TrimSpace(letters))
	if err != nil {
		return 0, fmt.Errorf("bad column %q: %w", letters, err)
	}
	return n - 1, nil
}

// splitCellRef splits "H4" into zero-based column and row indexes.
func splitCellRef(ref string) (col, row int, err error) {
	c, r, err := excelize.CellNameToCoordinates(strings.TrimSpace(ref))
	if err != nil {
		return 0, 0, fmt.Errorf("bad cell ref %q: %w", ref, err)
	}
	return c - 1, r - 1, nil
}

// cell returns a trimmed cell value, tolerating the ragged row lengths
// excelize produces.
func cell(cells [][]string, row, col int) string {
	if row < 0 || row >= len(cells) {
		return ""
	}
	if col < 0 || col >= len(cells[row]) {
		return ""
	}
	return strings.TrimSpace(cells[row][col])
}

// ApplyMethodFixes patches known defects of the ReCiPe workbook before and
// after cleaning: Chromium VI rows that fail to read (a spreadsheet error),
// neutral copper in water, ambiguous chromium naming and the missing neutral
// nickel in groundwater. Returns the amended row set.
func ApplyMethodFixes(log *zap.SugaredLogger, rows []*recon.CharRow) []*recon.CharRow {
	// Chromium VI did not survive the spreadsheet (Error512); re-add it with
	// the same toxicity impacts as chromium III.
	var crVI []*recon.CharRow
	for _, row := range rows {
		if row.CAS == "7440-47-3" {
			dup := *row
			dup.ID = row.ID + "_crVI"
			dup.Name = "Chromium VI"
			dup.Name2 = "Chromium VI"
			dup.CAS = "18540-29-9"
			crVI = append(crVI, &dup)
		}
	}
	if len(crVI) > 0 {
		rows = append(rows, crVI...)
		log.Infof("Re-added %d Chromium VI factor rows assumed to match"+
			" chromium III toxicity", len(crVI))
	}
	return rows
}

// ApplyPostCleanFixes runs the compartment-specific repairs that depend on
// cleaned names: ions out of water in the method, neutral metals elsewhere.
func ApplyPostCleanFixes(log *zap.SugaredLogger, rows []*recon.CharRow) []*recon.CharRow {
	changed := 0
	for _, row := range rows {
		if row.CAS == "7440-47-3" && row.Comp == "water" &&
			(strings.EqualFold(row.Name, "chromium iii") ||
				strings.EqualFold(row.Name2, "chromium iii")) {
			row.CAS = "16065-83-1"
			row.Name = "Chromium III"
			row.Name2 = "Chromium III"
			changed++
		}
		if row.CAS == "7440-47-3" && row.Comp != "water" &&
			(strings.EqualFold(row.Name, "chromium") ||
				strings.EqualFold(row.Name2, "chromium")) {
			row.Name = "Chromium"
			row.Name2 = "Chromium"
		}
	}
	if changed > 0 {
		log.Infof("Re-cased %d chromium III emissions to water; removes"+
			" internal ambiguity and resolves conflict with the inventory",
			changed)
	}

	// Neutral Ni in river water exists in the inventory but not the method.
	var nickel []*recon.CharRow
	for _, row := range rows {
		if row.CAS == "14701-22-5" && row.Subcomp == "river" {
			dup := *row
			dup.ID = row.ID + "_ni"
			dup.Name = "Nickel"
			dup.Name2 = "Nickel"
			dup.CAS = "7440-02-0"
			nickel = append(nickel, &dup)
		}
	}
	if len(nickel) > 0 {
		rows = append(rows, nickel...)
		log.Infof("Added %d neutral nickel rows for groundwater", len(nickel))
	}
	return rows
}
