package charact

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lcatools/ecomatrix/internal/audit"
	"github.com/lcatools/ecomatrix/internal/recon"
)

// Observation is one row of the final stressor label: an inventory stressor,
// or a characterization-only context added so the method's full coverage
// appears in the label.
type Observation struct {
	ID       string // stressor exchange id, or a minted id for method-only rows
	DSID     string // raw inventory exchange id, "" for method-only rows
	SubstID  recon.SubstID
	Name     string
	Name2    string
	CAS      string
	Tag      string
	Comp     string
	Subcomp  string
	Unit     string
	LegacyID int64
}

// Link ties one observation to one impact category through a factor. Scheme
// names the subcompartment-matching stage that produced it.
type Link struct {
	ObsID    string
	ImpactID string
	Factor   *Factor
	Scheme   string
}

type linkKey struct {
	obsID    string
	impactID string
}

// BuildObservations assembles the final stressor label rows: every inventory
// stressor record, then one row per characterized context that the inventory
// never observed. Prior-run ids are attached where IntegrateOldLabels matched.
func BuildObservations(c *recon.Context, old []*recon.OldLabel) []*Observation {
	var obs []*Observation
	seen := map[contextKey]bool{}

	for _, r := range c.STR {
		obs = append(obs, &Observation{
			ID:       r.ID,
			DSID:     r.ID,
			SubstID:  r.SubstID,
			Name:     r.Name,
			Name2:    r.Name2,
			CAS:      r.CAS,
			Tag:      r.Tag,
			Comp:     r.Comp,
			Subcomp:  r.Subcomp,
			Unit:     r.Unit,
			LegacyID: recon.LegacyIDFor(old, r.SubstID, r.Comp, r.Subcomp, r.Unit),
		})
		if r.SubstID != 0 {
			seen[contextKey{r.SubstID, r.Comp, r.Subcomp, r.Unit}] = true
		}
	}

	// Method-only contexts, deterministically ordered.
	var extra []contextKey
	dedup := map[contextKey]bool{}
	for _, row := range c.CharRows {
		if row.SubstID == 0 {
			continue
		}
		k := contextKey{row.SubstID, row.Comp, row.Subcomp, row.Unit}
		if !seen[k] && !dedup[k] {
			dedup[k] = true
			extra = append(extra, k)
		}
	}
	sort.Slice(extra, func(i, j int) bool {
		a, b := extra[i], extra[j]
		if a.substID != b.substID {
			return a.substID < b.substID
		}
		if a.comp != b.comp {
			return a.comp < b.comp
		}
		if a.subcomp != b.subcomp {
			return a.subcomp < b.subcomp
		}
		return a.unit < b.unit
	})
	for i, k := range extra {
		o := &Observation{
			ID:       fmt.Sprintf("char_%04d", i+1),
			SubstID:  k.substID,
			Comp:     k.comp,
			Subcomp:  k.subcomp,
			Unit:     k.unit,
			LegacyID: recon.LegacyIDFor(old, k.substID, k.comp, k.subcomp, k.unit),
		}
		if s := c.SubstanceByID(k.substID); s != nil {
			o.Name = s.Name
			o.CAS = s.CAS
			o.Tag = s.Tag
		}
		obs = append(obs, o)
	}
	return obs
}

// MatchObservations links observations to factors through the
// subcompartment-matching cascade. Stages run in decreasing strictness and an
// (observation, impact) pair links at most once, on the earliest stage that
// covers it:
//
//	exact         observed subcompartment equals the method's
//	approx        the static observed-to-method subcompartment mapping
//	unspecified   the method's catch-all subcompartment
//	fallback      a per-compartment default subcompartment
//
// Uncharacterized observations and substances are written to audit files;
// land occupation and transformation flows are tallied separately since most
// methods only characterize a small subset of them.
func MatchObservations(log *zap.SugaredLogger, rep *audit.Reporter, t *Table, c *recon.Context, obs []*Observation) ([]*Link, error) {
	approx := map[contextKey]string{}
	for _, m := range recon.ObsToCharSubcomps() {
		approx[contextKey{comp: m.Comp, subcomp: m.Observed}] = m.Char
	}
	fallback := recon.FallbackSubcomps()

	stages := []struct {
		name    string
		subcomp func(o *Observation) (string, bool)
	}{
		{"exact", func(o *Observation) (string, bool) {
			return o.Subcomp, true
		}},
		{"approx", func(o *Observation) (string, bool) {
			sc, ok := approx[contextKey{comp: o.Comp, subcomp: o.Subcomp}]
			return sc, ok
		}},
		{"unspecified", func(o *Observation) (string, bool) {
			return "unspecified", true
		}},
		{"fallback", func(o *Observation) (string, bool) {
			sc, ok := fallback[o.Comp]
			return sc, ok
		}},
	}

	var links []*Link
	linked := map[linkKey]bool{}
	for _, stage := range stages {
		added := 0
		for _, o := range obs {
			if o.SubstID == 0 {
				continue
			}
			sc, ok := stage.subcomp(o)
			if !ok {
				continue
			}
			for _, f := range t.at(o.SubstID, o.Comp, sc, o.Unit) {
				k := linkKey{o.ID, f.ImpactID}
				if linked[k] {
					continue
				}
				linked[k] = true
				links = append(links, &Link{
					ObsID:    o.ID,
					ImpactID: f.ImpactID,
					Factor:   f,
					Scheme:   stage.name,
				})
				added++
			}
		}
		log.Infof("Matched %d factors by %s subcompartment matching", added,
			stage.name)
		rep.Count("matched_"+stage.name, added)
	}

	if err := reportUncharacterized(log, rep, c, obs, linked); err != nil {
		return nil, err
	}
	return links, nil
}

// landUse reports whether an observation is a land occupation or
// transformation flow.
func landUse(o *Observation) bool {
	name := strings.ToLower(o.Name)
	return strings.HasPrefix(name, "occupation") ||
		strings.HasPrefix(name, "transformation")
}

func reportUncharacterized(log *zap.SugaredLogger, rep *audit.Reporter, c *recon.Context, obs []*Observation, linked map[linkKey]bool) error {
	characterized := map[string]bool{}
	for k := range linked {
		characterized[k.obsID] = true
	}

	var flowRows [][]string
	landFlows := 0
	coveredSubst := map[recon.SubstID]bool{}
	uncovered := map[recon.SubstID]*Observation{}
	for _, o := range obs {
		if characterized[o.ID] {
			coveredSubst[o.SubstID] = true
			continue
		}
		if landUse(o) {
			landFlows++
			continue
		}
		flowRows = append(flowRows, []string{
			o.ID, fmt.Sprint(o.SubstID), o.Name, o.CAS, o.Tag,
			o.Comp, o.Subcomp, o.Unit,
		})
		if o.SubstID != 0 {
			if _, ok := uncovered[o.SubstID]; !ok {
				uncovered[o.SubstID] = o
			}
		}
	}

	if landFlows > 0 {
		log.Infof("%d land occupation or transformation flows not"+
			" characterized by this method", landFlows)
		rep.Count("uncharacterized_landuse_flows", landFlows)
	}

	if len(flowRows) > 0 {
		path, err := rep.WriteTable("uncharacterized_flows.csv",
			[]string{"id", "substId", "name", "cas", "tag", "comp", "subcomp",
				"unit"}, flowRows)
		if err != nil {
			return err
		}
		log.Warnf("%d flows got no characterisation factor at all, see %s",
			len(flowRows), path)
	}

	var substRows [][]string
	for _, s := range c.Substances {
		o, ok := uncovered[s.ID]
		if !ok || coveredSubst[s.ID] {
			continue
		}
		substRows = append(substRows, []string{
			fmt.Sprint(s.ID), s.Name, s.CAS, s.Tag, o.Comp, o.Subcomp, o.Unit,
		})
	}
	if len(substRows) > 0 {
		path, err := rep.WriteTable("uncharacterized_subst.csv",
			[]string{"substId", "name", "cas", "tag", "comp", "subcomp", "unit"},
			substRows)
		if err != nil {
			return err
		}
		log.Warnf("%d substances not characterized in any of their observed"+
			" contexts, see %s", len(substRows), path)
	}
	return nil
}
