package recon

import (
	"testing"

	"github.com/lcatools/ecomatrix/internal/logger"
)

// resolve runs substance resolution over a characterization and an inventory
// vocabulary built from the given records.
func resolve(t *testing.T, char []*Record, inv []*Record) *Context {
	t.Helper()
	c := NewContext()
	if err := c.LoadSynonyms(""); err != nil {
		t.Fatalf("LoadSynonyms: %v", err)
	}
	for _, r := range char {
		c.CharRows = append(c.CharRows, &CharRow{Record: *r})
	}
	// CharRows embed copies; resolve against the embedded records.
	c.STR = inv
	if err := c.ResolveSubstances(logger.Nop(), testReporter(t)); err != nil {
		t.Fatalf("ResolveSubstances: %v", err)
	}
	return c
}

func TestResolveSubstancesCASAnchoring(t *testing.T) {
	inv := []*Record{
		{ID: "s1", Name: "Carbon dioxide, fossil", CAS: "124-38-9", Tag: "fossil"},
		{ID: "s2", Name: "CO2, fossil", CAS: "124-38-9", Tag: "fossil"},
	}
	resolve(t, nil, inv)

	if inv[0].SubstID == 0 || inv[0].SubstID != inv[1].SubstID {
		t.Errorf("same (cas, tag) resolved to %d and %d, want one substance",
			inv[0].SubstID, inv[1].SubstID)
	}
}

func TestResolveSubstancesTagScoping(t *testing.T) {
	inv := []*Record{
		{ID: "s1", Name: "Carbon dioxide", CAS: "124-38-9", Tag: "fossil"},
		{ID: "s2", Name: "Carbon dioxide", CAS: "124-38-9", Tag: "non-fossil"},
	}
	resolve(t, nil, inv)

	if inv[0].SubstID == 0 || inv[1].SubstID == 0 {
		t.Fatal("records did not resolve")
	}
	if inv[0].SubstID == inv[1].SubstID {
		t.Error("different tags must not share a substance identity")
	}
}

func TestResolveSubstancesNameMatchAgainstCharVocabulary(t *testing.T) {
	char := []*Record{
		{ID: "c1", Name: "Lead", CAS: "7439-92-1"},
	}
	inv := []*Record{
		{ID: "s1", Name: "Lead"}, // no CAS in the inventory
	}
	c := resolve(t, char, inv)

	if inv[0].SubstID == 0 {
		t.Fatal("inventory record did not resolve by name")
	}
	s := c.SubstanceByID(inv[0].SubstID)
	if s == nil || s.CAS != "7439-92-1" {
		t.Errorf("resolved to %+v, want the CAS-anchored substance", s)
	}
}

func TestResolveSubstancesSynonymMatch(t *testing.T) {
	char := []*Record{
		{ID: "c1", Name: "Carbon dioxide", CAS: "124-38-9"},
	}
	inv := []*Record{
		{ID: "s1", Name: "CO2"}, // resolves only through the synonym table
	}
	c := resolve(t, char, inv)

	if inv[0].SubstID == 0 {
		t.Fatal("synonym CO2 did not resolve to Carbon dioxide")
	}
	if inv[0].SubstID != c.CharRows[0].SubstID {
		t.Errorf("synonym resolved to %d, want %d",
			inv[0].SubstID, c.CharRows[0].SubstID)
	}
}

func TestResolveSubstancesCASNeverOverriddenByName(t *testing.T) {
	char := []*Record{
		{ID: "c1", Name: "Chromium", CAS: "7440-47-3"},
	}
	inv := []*Record{
		{ID: "s1", Name: "Chromium", CAS: "18540-29-9"}, // same name, other CAS
	}
	c := resolve(t, char, inv)

	if inv[0].SubstID == c.CharRows[0].SubstID {
		t.Error("records with different registry numbers must not merge by name")
	}
	s := c.SubstanceByID(inv[0].SubstID)
	if s == nil || s.CAS != "18540-29-9" {
		t.Errorf("inventory substance = %+v, want its own CAS kept", s)
	}
}

func TestResolveSubstancesMinting(t *testing.T) {
	inv := []*Record{
		{ID: "s1", Name: "Mystery flow alpha"},
		{ID: "s2", Name: "Mystery flow alpha"},
		{ID: "s3", Name: "Mystery flow beta"},
	}
	c := resolve(t, nil, inv)

	for _, r := range inv {
		if r.SubstID == 0 {
			t.Fatalf("record %s not resolved; every named record must end up"+
				" with an identity", r.ID)
		}
	}
	if inv[0].SubstID != inv[1].SubstID {
		t.Error("identical minted names must share one substance")
	}
	if inv[0].SubstID == inv[2].SubstID {
		t.Error("distinct minted names must not share a substance")
	}
	if len(c.Substances) != 2 {
		t.Errorf("minted %d substances, want 2", len(c.Substances))
	}
}

func TestResolveSubstancesNamelessStaysUnresolved(t *testing.T) {
	inv := []*Record{
		{ID: "s1"},
	}
	resolve(t, nil, inv)
	if inv[0].SubstID != 0 {
		t.Errorf("nameless record resolved to %d, want 0", inv[0].SubstID)
	}
}
