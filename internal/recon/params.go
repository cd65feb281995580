package recon

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Reference tables are pipe-delimited text with '#' comment lines, so the
// same files can be shared with implementations in other languages.

// readTable reads a pipe-delimited file, skipping blanks and comments. Every
// row is padded to want columns; extra columns are folded into the last one.
func readTable(path string, want int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][]string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "|")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if len(fields) > want {
			fields[want-1] = strings.Join(fields[want-1:], "|")
			fields = fields[:want]
		}
		for len(fields) < want {
			fields = append(fields, "")
		}
		rows = append(rows, fields)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// LoadCASFixes reads the CAS-conflict correction table:
// bad_cas|correct_cas|name_pattern|justification. An empty path loads the
// built-in defaults.
func (c *Context) LoadCASFixes(path string) error {
	if path == "" {
		c.CASFixes = defaultCASFixes()
		return nil
	}
	rows, err := readTable(path, 4)
	if err != nil {
		return fmt.Errorf("read cas conflicts %s: %w", path, err)
	}
	for _, row := range rows {
		c.CASFixes = append(c.CASFixes, CASFix{
			BadCAS:  row[0],
			CAS:     row[1],
			Name:    row[2],
			Comment: row[3],
		})
	}
	return nil
}

// LoadSynonyms reads the synonym table: nameA|nameB|approximationLevel.
// An empty path loads the built-in defaults.
func (c *Context) LoadSynonyms(path string) error {
	if path == "" {
		c.Synonyms = defaultSynonyms()
		return nil
	}
	rows, err := readTable(path, 3)
	if err != nil {
		return fmt.Errorf("read synonyms %s: %w", path, err)
	}
	for _, row := range rows {
		level, err := strconv.Atoi(row[2])
		if err != nil {
			return fmt.Errorf("synonyms %s: bad approximationLevel %q: %w",
				path, row[2], err)
		}
		c.Synonyms = append(c.Synonyms, Synonym{
			Name:      row[0],
			OtherName: row[1],
			Level:     level,
		})
	}
	return nil
}

// CustomFactor is one explicit factor override:
// impactId|name_pattern|comp|subcomp|unit|value.
type CustomFactor struct {
	ImpactID string
	Name     string
	Comp     string
	Subcomp  string
	Unit     string
	Value    float64
}

// LoadCustomFactors reads the factor override table. An empty path means no
// overrides.
func LoadCustomFactors(path string) ([]CustomFactor, error) {
	if path == "" {
		return nil, nil
	}
	rows, err := readTable(path, 6)
	if err != nil {
		return nil, fmt.Errorf("read custom factors %s: %w", path, err)
	}
	var out []CustomFactor
	for _, row := range rows {
		value, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			return nil, fmt.Errorf("custom factors %s: bad value %q: %w",
				path, row[5], err)
		}
		out = append(out, CustomFactor{
			ImpactID: row[0],
			Name:     row[1],
			Comp:     row[2],
			Subcomp:  row[3],
			Unit:     row[4],
			Value:    value,
		})
	}
	return out, nil
}

// SubcompMapping maps an observed subcompartment to the characterization
// method's subcompartment, scoped by compartment.
type SubcompMapping struct {
	Comp     string
	Observed string
	Char     string
}

// ObsToCharSubcomps is the static observed→characterization subcompartment
// mapping used by the approximate stage of the matching cascade.
func ObsToCharSubcomps() []SubcompMapping {
	return []SubcompMapping{
		{"soil", "agricultural", "agricultural"},
		{"soil", "forestry", "forestry"},
		{"air", "high population density", "high population density"},
		{"soil", "industrial", "industrial"},
		{"air", "low population density", "low population density"},
		{"water", "ocean", "ocean"},
		{"water", "river", "river"},
		{"water", "river, long-term", "river"},
		{"air", "lower stratosphere + upper troposphere", "low population density"},
		{"air", "low population density, long-term", "low population density"},
	}
}

// FallbackSubcomps is the per-compartment default subcompartment used when
// even "unspecified" is absent from the characterization method.
func FallbackSubcomps() map[string]string {
	return map[string]string{
		"water": "river",
		"soil":  "industrial",
		"air":   "low population density",
	}
}

// defaultCASFixes carries the documented corrections shipped with the tool.
func defaultCASFixes() []CASFix {
	return []CASFix{
		{"93-65-2", "94-74-6", "mcpa", "93-65-2 is mecoprop, not MCPA"},
		{"107-73-3", "107-15-3", "ethylenediamine", "typo, 107-73-3 is not assigned"},
		{"7440-47-3", "16065-83-1", "chromium iii", "neutral CAS on an emission recorded as trivalent"},
		{"11104-93-1", "", "nitrogen oxides", "mixture of gases, no single registry number"},
		{"", "7439-92-1", "lead%", "ensure all lead spellings share the elemental CAS"},
	}
}

// defaultSynonyms carries a minimal cross-vocabulary synonym list, ranked by
// ascending distrust.
func defaultSynonyms() []Synonym {
	return []Synonym{
		{"PM10", "Particulates, < 10 um", 1},
		{"PM2.5", "Particulates, < 2.5 um", 1},
		{"Carbon dioxide", "CO2", 1},
		{"Methane", "CH4", 1},
		{"Dinitrogen monoxide", "Nitrous oxide", 1},
		{"VOC, volatile organic compounds", "NMVOC", 2},
		{"Chromium VI", "Chromium, hexavalent", 2},
	}
}
