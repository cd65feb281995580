package recon

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/lcatools/ecomatrix/internal/audit"
)

// OldLabel is a prior-run stressor label whose id is re-used on the new
// labels so inventories built against the previous dataset stay valid.
type OldLabel struct {
	Record
	OldID int64
}

// LoadOldLabels reads a prior run's stressor label file:
// id|name|name2|name3|cas|comp|subcomp|unit.
func LoadOldLabels(path string) ([]*OldLabel, error) {
	rows, err := readTable(path, 8)
	if err != nil {
		return nil, fmt.Errorf("read old labels %s: %w", path, err)
	}
	var out []*OldLabel
	for _, row := range rows {
		id, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("old labels %s: bad id %q: %w", path, row[0], err)
		}
		out = append(out, &OldLabel{
			OldID: id,
			Record: Record{
				Name:    row[1],
				Name2:   row[2],
				Name3:   row[3],
				CAS:     row[4],
				Comp:    row[5],
				Subcomp: row[6],
				Unit:    row[7],
			},
		})
	}
	return out, nil
}

// IntegrateOldLabels matches prior-run labels onto resolved substances so
// their ids can be re-used. The old labels are cleaned exactly like the live
// vocabularies, then matched in decreasing strictness: (cas, tag), then
// (name, tag), then cas alone, then name alone. Unmatched rows are audited.
func (c *Context) IntegrateOldLabels(log *zap.SugaredLogger, rep *audit.Reporter, old []*OldLabel) error {
	recs := make([]*Record, len(old))
	for i, o := range old {
		recs[i] = &o.Record
	}
	c.CleanRecords(log, recs)

	matchStage(log, recs, "CAS and tag", func(r *Record) (SubstID, bool) {
		if r.CAS == "" {
			return 0, false
		}
		if s, ok := c.byCASTag[tagKey{Key: r.CAS, Tag: r.Tag}]; ok {
			return s.ID, true
		}
		return 0, false
	})
	matchStage(log, recs, "name and tag", func(r *Record) (SubstID, bool) {
		for _, name := range []string{r.Name, r.Name2, r.Name3} {
			if id, ok := c.lookupName(name, r.Tag); ok {
				return id, true
			}
		}
		return 0, false
	})
	matchStage(log, recs, "CAS only", func(r *Record) (SubstID, bool) {
		if r.CAS == "" {
			return 0, false
		}
		for _, s := range c.Substances {
			if s.CAS == r.CAS {
				return s.ID, true
			}
		}
		return 0, false
	})
	matchStage(log, recs, "name only", func(r *Record) (SubstID, bool) {
		for _, name := range []string{r.Name, r.Name2, r.Name3} {
			if name == "" {
				continue
			}
			for _, k := range c.nameOrder {
				if k.Key == foldName(name) {
					return c.names[k], true
				}
			}
		}
		return 0, false
	})

	var unmatched [][]string
	for _, o := range old {
		if o.SubstID == 0 {
			unmatched = append(unmatched, []string{
				fmt.Sprint(o.OldID), o.Name, o.CAS, o.Comp, o.Subcomp, o.Unit,
			})
		}
	}
	if len(unmatched) > 0 {
		path, err := rep.WriteTable("unmatched_oldLabel_subst.csv",
			[]string{"oldId", "name", "cas", "comp", "subcomp", "unit"},
			unmatched)
		if err != nil {
			return err
		}
		log.Warnf("%d old label entries not matched to a substance; see %s",
			len(unmatched), path)
	}
	return nil
}

// matchStage applies one matching rule to all still-unmatched old labels and
// logs how many it resolved.
func matchStage(log *zap.SugaredLogger, recs []*Record, what string, match func(*Record) (SubstID, bool)) {
	before, matched := 0, 0
	for _, r := range recs {
		if r.SubstID != 0 {
			continue
		}
		before++
		if id, ok := match(r); ok {
			r.SubstID = id
			matched++
		}
	}
	log.Infof("Matched %d old labels by %s, out of %d unmatched rows",
		matched, what, before)
}

// LegacyIDFor finds the prior-run id for a final label row by substance,
// compartment, subcompartment and unit. Returns 0 when none applies.
func LegacyIDFor(old []*OldLabel, substID SubstID, comp, subcomp, unit string) int64 {
	for _, o := range old {
		if o.SubstID == substID && o.Comp == comp && o.Subcomp == subcomp &&
			o.Unit == unit {
			return o.OldID
		}
	}
	return 0
}
