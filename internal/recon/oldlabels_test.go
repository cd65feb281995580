package recon

import (
	"testing"

	"github.com/lcatools/ecomatrix/internal/logger"
)

func TestIntegrateOldLabels(t *testing.T) {
	inv := []*Record{
		{ID: "s1", Name: "Lead", CAS: "7439-92-1", Comp: "water",
			Subcomp: "river", Unit: "kg"},
		{ID: "s2", Name: "Mystery flow", Comp: "air",
			Subcomp: "unspecified", Unit: "kg"},
	}
	c := resolve(t, nil, inv)

	old := []*OldLabel{
		{OldID: 101, Record: Record{Name: "Lead", CAS: "007439-92-1",
			Comp: "water", Subcomp: "river", Unit: "kg"}},
		{OldID: 102, Record: Record{Name: "Mystery flow", Comp: "air",
			Subcomp: "unspecified", Unit: "kg"}},
		{OldID: 103, Record: Record{Name: "Never seen before", Comp: "air",
			Subcomp: "unspecified", Unit: "kg"}},
	}
	if err := c.IntegrateOldLabels(logger.Nop(), testReporter(t), old); err != nil {
		t.Fatalf("IntegrateOldLabels: %v", err)
	}

	if old[0].SubstID != inv[0].SubstID {
		t.Errorf("CAS-bearing old label resolved to %d, want %d",
			old[0].SubstID, inv[0].SubstID)
	}
	if old[1].SubstID != inv[1].SubstID {
		t.Errorf("name-only old label resolved to %d, want %d",
			old[1].SubstID, inv[1].SubstID)
	}
	if old[2].SubstID != 0 {
		t.Errorf("unknown old label resolved to %d, want unmatched",
			old[2].SubstID)
	}

	if got := LegacyIDFor(old, inv[0].SubstID, "water", "river", "kg"); got != 101 {
		t.Errorf("LegacyIDFor = %d, want 101", got)
	}
	if got := LegacyIDFor(old, inv[0].SubstID, "soil", "river", "kg"); got != 0 {
		t.Errorf("LegacyIDFor wrong context = %d, want 0", got)
	}
}
