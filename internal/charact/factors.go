package charact

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lcatools/ecomatrix/internal/audit"
	"github.com/lcatools/ecomatrix/internal/recon"
)

// Factor is one resolved characterization factor: a substance in a
// compartment context, valued for one impact category.
type Factor struct {
	SubstID  recon.SubstID
	Comp     string
	Subcomp  string
	Unit     string
	ImpactID string
	Value    float64
}

type factorKey struct {
	substID  recon.SubstID
	comp     string
	subcomp  string
	unit     string
	impactID string
}

type contextKey struct {
	substID recon.SubstID
	comp    string
	subcomp string
	unit    string
}

// Table is the projected factor table of one method, indexed for the matching
// cascade.
type Table struct {
	Method  string
	Factors []*Factor

	byKey     map[factorKey]*Factor
	byContext map[contextKey][]*Factor
}

// BuildTable projects resolved characterization rows onto substance identity.
// Two rows that land on the same (substance, comp, subcomp, unit, impact) key
// with different values are a conflict: the first value is kept and the pair
// goes to factor_conflicts.csv. Rows whose label never resolved to a
// substance are skipped; they are already in the unresolved audit.
func BuildTable(log *zap.SugaredLogger, rep *audit.Reporter, method string, rows []*recon.CharRow) (*Table, error) {
	t := &Table{
		Method:    method,
		byKey:     map[factorKey]*Factor{},
		byContext: map[contextKey][]*Factor{},
	}

	var conflicts [][]string
	skipped := 0
	for _, row := range rows {
		if row.SubstID == 0 {
			skipped++
			continue
		}
		key := factorKey{row.SubstID, row.Comp, row.Subcomp, row.Unit, row.ImpactID}
		if prev, ok := t.byKey[key]; ok {
			if prev.Value != row.FactorValue {
				conflicts = append(conflicts, []string{
					fmt.Sprint(row.SubstID), row.Name, row.Comp, row.Subcomp,
					row.Unit, row.ImpactID,
					fmt.Sprint(prev.Value), fmt.Sprint(row.FactorValue),
				})
			}
			continue
		}
		f := &Factor{
			SubstID:  row.SubstID,
			Comp:     row.Comp,
			Subcomp:  row.Subcomp,
			Unit:     row.Unit,
			ImpactID: row.ImpactID,
			Value:    row.FactorValue,
		}
		t.Factors = append(t.Factors, f)
		t.byKey[key] = f
		ck := contextKey{row.SubstID, row.Comp, row.Subcomp, row.Unit}
		t.byContext[ck] = append(t.byContext[ck], f)
	}

	if len(conflicts) > 0 {
		path, err := rep.WriteTable("factor_conflicts.csv",
			[]string{"substId", "name", "comp", "subcomp", "unit", "impactId",
				"kept", "dropped"}, conflicts)
		if err != nil {
			return nil, err
		}
		log.Warnf("Different characterisation factors for the same feature on"+
			" %d keys; kept the first value of each, see %s",
			len(conflicts), path)
	}
	if skipped > 0 {
		log.Warnf("%d factor rows skipped: label not resolved to a substance",
			skipped)
	}
	log.Infof("Factor table for %s: %d factors", method, len(t.Factors))
	return t, nil
}

// ApplyCustomFactors overwrites values of factors that already exist. An
// override never creates a factor: a name that matches no substance, or a
// context key absent from the table, is logged and ignored.
func (t *Table) ApplyCustomFactors(log *zap.SugaredLogger, c *recon.Context, overrides []recon.CustomFactor) {
	for _, o := range overrides {
		ids := c.SubstancesByNamePattern(o.Name)
		if len(ids) == 0 {
			log.Warnf("Custom factor for %q (%s): no such substance, ignored",
				o.Name, o.ImpactID)
			continue
		}
		updated := 0
		for _, id := range ids {
			key := factorKey{id, o.Comp, o.Subcomp, o.Unit, o.ImpactID}
			if f, ok := t.byKey[key]; ok {
				log.Infof("Custom factor: %s %q in %s/%s changed from %v to %v",
					o.ImpactID, o.Name, o.Comp, o.Subcomp, f.Value, o.Value)
				f.Value = o.Value
				updated++
			}
		}
		if updated == 0 {
			log.Warnf("Custom factor for %q (%s, %s/%s, %s) matched no existing"+
				" factor, ignored", o.Name, o.ImpactID, o.Comp, o.Subcomp, o.Unit)
		}
	}
}

// at returns all factors of a substance in one compartment context, across
// impact categories.
func (t *Table) at(substID recon.SubstID, comp, subcomp, unit string) []*Factor {
	return t.byContext[contextKey{substID, comp, subcomp, unit}]
}
