package charact

import (
	"testing"

	"github.com/lcatools/ecomatrix/internal/logger"
	"github.com/lcatools/ecomatrix/internal/recon"
)

func TestReadMethodRejectsUnknownLayout(t *testing.T) {
	if _, _, _, err := ReadMethod(logger.Nop(), "some_other_method.xlsx"); err == nil {
		t.Error("ReadMethod accepted a workbook with no known layout")
	}
}

func TestExpandRanges(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"B:G", []int{1, 2, 3, 4, 5, 6}},
		{"B:G,N:P", []int{1, 2, 3, 4, 5, 6, 13, 14, 15}},
		{"AA:AB", []int{26, 27}},
	}
	for _, tt := range tests {
		got, err := expandRanges(tt.in)
		if err != nil {
			t.Fatalf("expandRanges(%q): %v", tt.in, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("expandRanges(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("expandRanges(%q)[%d] = %d, want %d", tt.in, i,
					got[i], tt.want[i])
			}
		}
	}
}

func TestSplitCellRef(t *testing.T) {
	col, row, err := splitCellRef("H4")
	if err != nil {
		t.Fatalf("splitCellRef: %v", err)
	}
	if col != 7 || row != 3 {
		t.Errorf("splitCellRef(H4) = %d, %d; want 7, 3", col, row)
	}
	if _, _, err := splitCellRef("4H"); err == nil {
		t.Error("splitCellRef accepted a malformed reference")
	}
}

func TestApplyMethodFixesChromiumVI(t *testing.T) {
	rows := []*recon.CharRow{
		{Record: recon.Record{ID: "r1", Name: "Chromium III",
			CAS: "7440-47-3", Comp: "water"}, ImpactID: "TP", FactorValue: 2},
		{Record: recon.Record{ID: "r2", Name: "Lead", CAS: "7439-92-1"},
			ImpactID: "TP", FactorValue: 1},
	}
	out := ApplyMethodFixes(logger.Nop(), rows)

	if len(out) != 3 {
		t.Fatalf("got %d rows, want chromium VI appended", len(out))
	}
	dup := out[2]
	if dup.CAS != "18540-29-9" || dup.Name != "Chromium VI" {
		t.Errorf("duplicated row = %+v", dup)
	}
	if dup.FactorValue != 2 || dup.ImpactID != "TP" {
		t.Errorf("chromium VI must inherit chromium III factors, got %+v", dup)
	}
	if out[0].Name != "Chromium III" {
		t.Errorf("source row mutated: %+v", out[0])
	}
}

func TestApplyPostCleanFixes(t *testing.T) {
	rows := []*recon.CharRow{
		{Record: recon.Record{ID: "r1", Name: "chromium iii",
			CAS: "7440-47-3", Comp: "water", Subcomp: "river"}},
		{Record: recon.Record{ID: "r2", Name: "chromium",
			CAS: "7440-47-3", Comp: "soil", Subcomp: "industrial"}},
		{Record: recon.Record{ID: "r3", Name: "Nickel, ion",
			CAS: "14701-22-5", Comp: "water", Subcomp: "river"}},
	}
	out := ApplyPostCleanFixes(logger.Nop(), rows)

	if rows[0].CAS != "16065-83-1" || rows[0].Name != "Chromium III" {
		t.Errorf("water chromium iii = %+v, want trivalent CAS", rows[0].Record)
	}
	if rows[1].Name != "Chromium" || rows[1].CAS != "7440-47-3" {
		t.Errorf("soil chromium = %+v, want neutral name and CAS kept",
			rows[1].Record)
	}

	if len(out) != 4 {
		t.Fatalf("got %d rows, want neutral nickel appended", len(out))
	}
	ni := out[3]
	if ni.CAS != "7440-02-0" || ni.Name != "Nickel" || ni.Subcomp != "river" {
		t.Errorf("nickel row = %+v", ni)
	}
}
