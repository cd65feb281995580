package matrix

import (
	"math"
	"testing"

	"github.com/lcatools/ecomatrix/internal/charact"
	"github.com/lcatools/ecomatrix/internal/logger"
	"github.com/lcatools/ecomatrix/internal/recon"
)

const eps = 1e-12

// testContext builds a three-process system: an ordinary producer, an
// ordinary consumer and a waste treatment with a negative reference product.
func testContext() (*recon.Context, *Labels) {
	c := recon.NewContext()

	add := func(activityID, productID string, out, volume float64) {
		key := activityID + "_" + productID
		c.AddProcess(&recon.Process{
			Key: key, ActivityID: activityID, ProductID: productID,
		})
		c.OutFlows[key] = &recon.OutFlow{
			FileID: key, ProductID: productID, Amount: out,
			ProductionVolume: volume,
		}
	}
	add("a1", "prodA", 2.0, 10.0)
	add("a2", "prodB", 1.0, 4.0)
	add("a3", "waste", -0.5, -1.0)

	c.InFlows = append(c.InFlows,
		// a2 consumes 1.0 of prodA from a1
		&recon.InFlow{FileID: "a2_prodB", SourceActivityID: "a1",
			ProductID: "prodA", Amount: 1.0},
		// a3 consumes 0.2 of prodA from a1
		&recon.InFlow{FileID: "a3_waste", SourceActivityID: "a1",
			ProductID: "prodA", Amount: 0.2},
		// a2 sends waste to treatment, negative by the default convention
		&recon.InFlow{FileID: "a2_prodB", SourceActivityID: "a3",
			ProductID: "waste", Amount: -0.1},
	)
	c.ElemFlows = append(c.ElemFlows,
		&recon.ElemFlow{FileID: "a1_prodA", ExchangeID: "e1", Amount: 4.0},
	)

	obs := []*charact.Observation{
		{ID: "e1", DSID: "e1", SubstID: 1, Comp: "air", Subcomp: "unspecified",
			Unit: "kg"},
	}
	return c, NewLabels(c, obs)
}

func TestAssembleDefaultConvention(t *testing.T) {
	c, labels := testContext()
	sys, err := Assemble(logger.Nop(), c, labels, false, false)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	p1, _ := labels.ProcessIndex("a1_prodA")
	p2, _ := labels.ProcessIndex("a2_prodB")
	p3, _ := labels.ProcessIndex("a3_waste")

	tests := []struct {
		name     string
		row, col int
		want     float64
	}{
		{"prodA into a2", p1, p2, 1.0 / 1.0},
		{"prodA into a3, negative normalizer", p1, p3, 0.2 / -0.5},
		{"waste from a2, negative flow", p3, p2, -0.1 / 1.0},
		{"no self input", p1, p1, 0},
	}
	for _, tt := range tests {
		if got := sys.A.At(tt.row, tt.col); math.Abs(got-tt.want) > eps {
			t.Errorf("%s: A[%d,%d] = %v, want %v", tt.name, tt.row, tt.col,
				got, tt.want)
		}
	}

	if got := sys.F.At(0, p1); math.Abs(got-2.0) > eps {
		t.Errorf("F[e1,a1] = %v, want 2.0 (4.0 emitted per 2.0 produced)", got)
	}
}

func TestAssemblePositiveWaste(t *testing.T) {
	c, labels := testContext()
	sys, err := Assemble(logger.Nop(), c, labels, true, false)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	p1, _ := labels.ProcessIndex("a1_prodA")
	p2, _ := labels.ProcessIndex("a2_prodB")
	p3, _ := labels.ProcessIndex("a3_waste")

	// The treatment's row is re-signed, its column normalized by magnitude.
	if got := sys.A.At(p3, p2); math.Abs(got-0.1) > eps {
		t.Errorf("A[waste,a2] = %v, want +0.1 under positive waste", got)
	}
	if got := sys.A.At(p1, p3); math.Abs(got-0.4) > eps {
		t.Errorf("A[prodA,a3] = %v, want +0.4 under positive waste", got)
	}
	// Ordinary flows are untouched.
	if got := sys.A.At(p1, p2); math.Abs(got-1.0) > eps {
		t.Errorf("A[prodA,a2] = %v, want 1.0", got)
	}
}

func TestAssembleZeroProduction(t *testing.T) {
	c, labels := testContext()
	c.OutFlows["a2_prodB"].Amount = 0

	if _, err := Assemble(logger.Nop(), c, labels, false, false); err == nil {
		t.Fatal("Assemble accepted a zero production amount without nan2null")
	}

	sys, err := Assemble(logger.Nop(), c, labels, false, true)
	if err != nil {
		t.Fatalf("Assemble with nan2null: %v", err)
	}
	p1, _ := labels.ProcessIndex("a1_prodA")
	p2, _ := labels.ProcessIndex("a2_prodB")
	if got := sys.A.At(p1, p2); got != 0 {
		t.Errorf("A[prodA,a2] = %v, want 0 after nan2null", got)
	}
}

func TestScaleUp(t *testing.T) {
	c, labels := testContext()
	sys, err := Assemble(logger.Nop(), c, labels, false, false)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if err := sys.ScaleUp(logger.Nop(), c); err != nil {
		t.Fatalf("ScaleUp: %v", err)
	}

	p1, _ := labels.ProcessIndex("a1_prodA")
	p2, _ := labels.ProcessIndex("a2_prodB")
	// a2's volume is 4.0: absolute input of prodA is 1.0 * 4.0.
	if got := sys.Z.At(p1, p2); math.Abs(got-4.0) > eps {
		t.Errorf("Z[prodA,a2] = %v, want 4.0", got)
	}
	if got := sys.GPro.At(0, p1); math.Abs(got-20.0) > eps {
		t.Errorf("G_pro[e1,a1] = %v, want 20.0 (2.0 per unit, volume 10)", got)
	}
}

func TestBuildCPlacesFactors(t *testing.T) {
	c, labels := testContext()
	c.Impacts = []*recon.Impact{{ID: "GWP100"}, {ID: "FEP"}}
	labels = NewLabels(c, labels.Observations)

	links := []*charact.Link{
		{ObsID: "e1", ImpactID: "GWP100",
			Factor: &charact.Factor{Value: 25.0}, Scheme: "exact"},
	}
	m := BuildC(logger.Nop(), labels, links)
	if got := m.At(0, 0); got != 25.0 {
		t.Errorf("C[GWP100,e1] = %v, want 25.0", got)
	}
	if got := m.At(1, 0); got != 0 {
		t.Errorf("C[FEP,e1] = %v, want 0", got)
	}
}
