package charact

import (
	"testing"

	"github.com/lcatools/ecomatrix/internal/audit"
	"github.com/lcatools/ecomatrix/internal/logger"
	"github.com/lcatools/ecomatrix/internal/recon"
)

func testReporter(t *testing.T) *audit.Reporter {
	t.Helper()
	rep, err := audit.NewReporter(t.TempDir(), logger.Nop())
	if err != nil {
		t.Fatalf("NewReporter: %v", err)
	}
	return rep
}

// buildTestTable projects a factor table from pre-resolved rows.
func buildTestTable(t *testing.T, rows []*recon.CharRow) *Table {
	t.Helper()
	table, err := BuildTable(logger.Nop(), testReporter(t), "test", rows)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	return table
}

func charRow(substID recon.SubstID, comp, subcomp, unit, impactID string, value float64) *recon.CharRow {
	return &recon.CharRow{
		Record: recon.Record{
			SubstID: substID, Comp: comp, Subcomp: subcomp, Unit: unit,
		},
		ImpactID:    impactID,
		FactorValue: value,
	}
}

func matchOne(t *testing.T, table *Table, o *Observation) []*Link {
	t.Helper()
	links, err := MatchObservations(logger.Nop(), testReporter(t), table,
		recon.NewContext(), []*Observation{o})
	if err != nil {
		t.Fatalf("MatchObservations: %v", err)
	}
	return links
}

func TestMatchObservationsCascadeStages(t *testing.T) {
	table := buildTestTable(t, []*recon.CharRow{
		charRow(1, "water", "river", "kg", "FEP", 2.0),
		charRow(1, "water", "unspecified", "kg", "FEP", 3.0),
		charRow(2, "air", "unspecified", "kg", "GWP100", 4.0),
		charRow(3, "soil", "industrial", "kg", "TP", 5.0),
	})

	tests := []struct {
		name       string
		obs        *Observation
		wantScheme string
		wantValue  float64
	}{
		{
			name: "exact subcompartment",
			obs: &Observation{ID: "o1", SubstID: 1, Comp: "water",
				Subcomp: "river", Unit: "kg"},
			wantScheme: "exact",
			wantValue:  2.0,
		},
		{
			name: "approximate mapping",
			obs: &Observation{ID: "o2", SubstID: 1, Comp: "water",
				Subcomp: "river, long-term", Unit: "kg"},
			wantScheme: "approx",
			wantValue:  2.0,
		},
		{
			name: "unspecified catch-all",
			obs: &Observation{ID: "o3", SubstID: 2, Comp: "air",
				Subcomp: "lake", Unit: "kg"},
			wantScheme: "unspecified",
			wantValue:  4.0,
		},
		{
			name: "per-compartment fallback",
			obs: &Observation{ID: "o4", SubstID: 3, Comp: "soil",
				Subcomp: "forestry", Unit: "kg"},
			wantScheme: "fallback",
			wantValue:  5.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := matchOne(t, table, tt.obs)
			if len(links) != 1 {
				t.Fatalf("got %d links, want 1", len(links))
			}
			if links[0].Scheme != tt.wantScheme {
				t.Errorf("scheme = %q, want %q", links[0].Scheme, tt.wantScheme)
			}
			if links[0].Factor.Value != tt.wantValue {
				t.Errorf("value = %v, want %v", links[0].Factor.Value,
					tt.wantValue)
			}
		})
	}
}

func TestMatchObservationsEarlierStageWins(t *testing.T) {
	// Both an exact and an unspecified factor exist; the pair must link
	// exactly once, on the exact stage.
	table := buildTestTable(t, []*recon.CharRow{
		charRow(1, "water", "river", "kg", "FEP", 2.0),
		charRow(1, "water", "unspecified", "kg", "FEP", 9.0),
	})
	o := &Observation{ID: "o1", SubstID: 1, Comp: "water", Subcomp: "river",
		Unit: "kg"}
	links := matchOne(t, table, o)
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	if links[0].Scheme != "exact" || links[0].Factor.Value != 2.0 {
		t.Errorf("link = %s/%v, want exact/2.0", links[0].Scheme,
			links[0].Factor.Value)
	}
}

func TestMatchObservationsSeparateImpacts(t *testing.T) {
	// Different impacts link independently, possibly on different stages.
	table := buildTestTable(t, []*recon.CharRow{
		charRow(1, "water", "river", "kg", "FEP", 2.0),
		charRow(1, "water", "unspecified", "kg", "MEP", 7.0),
	})
	o := &Observation{ID: "o1", SubstID: 1, Comp: "water", Subcomp: "river",
		Unit: "kg"}
	links := matchOne(t, table, o)
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2", len(links))
	}
	schemes := map[string]string{}
	for _, l := range links {
		schemes[l.ImpactID] = l.Scheme
	}
	if schemes["FEP"] != "exact" || schemes["MEP"] != "unspecified" {
		t.Errorf("schemes = %v, want FEP:exact MEP:unspecified", schemes)
	}
}

func TestMatchObservationsUnresolvedSkipped(t *testing.T) {
	table := buildTestTable(t, []*recon.CharRow{
		charRow(1, "water", "river", "kg", "FEP", 2.0),
	})
	o := &Observation{ID: "o1", SubstID: 0, Comp: "water", Subcomp: "river",
		Unit: "kg", Name: "unresolvable"}
	links := matchOne(t, table, o)
	if len(links) != 0 {
		t.Errorf("got %d links for an unresolved observation, want 0",
			len(links))
	}
}

func TestBuildTableConflictKeepsFirst(t *testing.T) {
	table := buildTestTable(t, []*recon.CharRow{
		charRow(1, "water", "river", "kg", "FEP", 2.0),
		charRow(1, "water", "river", "kg", "FEP", 8.0),
	})
	if len(table.Factors) != 1 {
		t.Fatalf("got %d factors, want 1", len(table.Factors))
	}
	if table.Factors[0].Value != 2.0 {
		t.Errorf("value = %v, want the first (2.0)", table.Factors[0].Value)
	}
}

func TestApplyCustomFactorsOnlyUpdatesExisting(t *testing.T) {
	table := buildTestTable(t, []*recon.CharRow{
		charRow(1, "water", "river", "kg", "FEP", 2.0),
	})

	// A name table with substance 1 known as "phosphate".
	ctx := recon.NewContext()
	ctx.STR = []*recon.Record{
		{ID: "s1", Name: "Phosphate", CAS: "14265-44-2"},
	}
	if err := ctx.ResolveSubstances(logger.Nop(), testReporter(t)); err != nil {
		t.Fatalf("ResolveSubstances: %v", err)
	}

	table.ApplyCustomFactors(logger.Nop(), ctx, []recon.CustomFactor{
		{ImpactID: "FEP", Name: "phosphate", Comp: "water", Subcomp: "river",
			Unit: "kg", Value: 3.5},
		{ImpactID: "FEP", Name: "phosphate", Comp: "soil", Subcomp: "river",
			Unit: "kg", Value: 9.9}, // no such factor: must not create one
	})

	if len(table.Factors) != 1 {
		t.Fatalf("got %d factors, want 1 (overrides never create)",
			len(table.Factors))
	}
	if table.Factors[0].Value != 3.5 {
		t.Errorf("value = %v, want 3.5 after override", table.Factors[0].Value)
	}
}

func TestBuildObservationsAddsMethodOnlyContexts(t *testing.T) {
	ctx := recon.NewContext()
	ctx.STR = []*recon.Record{
		{ID: "s1", Name: "Lead", CAS: "7439-92-1", Comp: "water",
			Subcomp: "river", Unit: "kg"},
	}
	ctx.CharRows = []*recon.CharRow{
		{Record: recon.Record{Name: "Lead", CAS: "7439-92-1", Comp: "soil",
			Subcomp: "industrial", Unit: "kg"}},
	}
	if err := ctx.ResolveSubstances(logger.Nop(), testReporter(t)); err != nil {
		t.Fatalf("ResolveSubstances: %v", err)
	}

	obs := BuildObservations(ctx, nil)
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want inventory row plus method-only"+
			" context", len(obs))
	}
	if obs[0].DSID != "s1" {
		t.Errorf("first observation DSID = %q, want the inventory row", obs[0].DSID)
	}
	if obs[1].DSID != "" || obs[1].Comp != "soil" {
		t.Errorf("second observation = %+v, want the method-only soil context",
			obs[1])
	}
}
