package strangeness

import (
	"math"
	"testing"

	"github.com/banshee-data/strangeness.report/internal/kinematics"
	"github.com/banshee-data/strangeness.report/internal/vertexer"
)

func newTestSelector(legacy bool) (*Selector, *Counters) {
	cfg := testBuilderConfig()
	fitter := vertexer.NewTwoProngFitter(cfg.Fitter)
	fitter.SetBz(testBz)
	counters := &Counters{}
	sel := NewSelector(cfg.V0Selection, cfg.CascadeSelection, legacy, fitter, counters)
	return sel, counters
}

func testCollision() Collision {
	return Collision{ID: 7, RunNumber: 529662, Vertex: kinematics.Vec3{0, 0, 0}}
}

func TestBuildV0Accepts(t *testing.T) {
	sel, counters := newTestSelector(false)
	pos, neg := lambdaDaughters()

	cand, ok := sel.BuildV0(testCollision(), V0Input{ID: 10, PosID: 1, NegID: 2}, pos, neg)
	if !ok {
		t.Fatal("expected candidate to pass all gates")
	}

	if math.Abs(cand.MassLambda-kinematics.MassLambda) > 1e-3 {
		t.Errorf("Lambda mass: got %.6f want %.6f within 1 MeV", cand.MassLambda, kinematics.MassLambda)
	}
	if cand.CosPA < 0.995 {
		t.Errorf("accepted V0 must satisfy the pointing cut, cosPA=%v", cand.CosPA)
	}
	if math.Abs(cand.Radius-1.0) > 1e-3 {
		t.Errorf("decay radius: got %v want ~1.0", cand.Radius)
	}
	if cand.DCADaughters > 1e-3 {
		t.Errorf("true crossing should give near-zero daughter DCA, got %v", cand.DCADaughters)
	}
	if cand.Parent.Charge() != 0 {
		t.Errorf("V0 parent must be neutral, got %d", cand.Parent.Charge())
	}

	// Every gate counted exactly once.
	for c := V0Considered; c < numV0Criteria; c++ {
		if got := counters.V0Count(c); got != 1 {
			t.Errorf("counter %v: got %d want 1", c, got)
		}
	}
}

func TestBuildV0RejectsBeforeFitOnDCA(t *testing.T) {
	sel, counters := newTestSelector(false)
	pos, neg := lambdaDaughters()
	pos.DCAXY = 0.01 // prompt-looking daughter

	if _, ok := sel.BuildV0(testCollision(), V0Input{ID: 10}, pos, neg); ok {
		t.Fatal("expected rejection on the daughter DCA gate")
	}

	// Gate ordering: the fitter must never have been invoked.
	if got := counters.V0FitAttempts(); got != 0 {
		t.Errorf("fitter invoked %d times before the DCA gate rejection", got)
	}
	if counters.V0Count(V0CrossedRowsOK) != 1 {
		t.Errorf("crossed-rows gate should have passed before the rejection")
	}
	if counters.V0Count(V0DCAToPVOK) != 0 {
		t.Errorf("DCA gate counter must not advance on rejection")
	}
}

func TestBuildV0RejectsOnCrossedRows(t *testing.T) {
	sel, counters := newTestSelector(false)
	pos, neg := lambdaDaughters()
	neg.CrossedRows = 10

	if _, ok := sel.BuildV0(testCollision(), V0Input{ID: 10}, pos, neg); ok {
		t.Fatal("expected rejection on the crossed-rows gate")
	}
	if counters.V0Count(V0CrossedRowsOK) != 0 {
		t.Errorf("crossed-rows counter must not advance on rejection")
	}
}

func TestBuildV0RefitGateLegacyOnly(t *testing.T) {
	col := testCollision()
	v0 := V0Input{ID: 10, PosID: 1, NegID: 2}

	// Default mode: the refit gate is skipped entirely.
	sel, _ := newTestSelector(false)
	pos, neg := lambdaDaughters()
	pos.Flags = 0
	if _, ok := sel.BuildV0(col, v0, pos, neg); !ok {
		t.Error("refit gate must be inactive outside legacy mode")
	}

	// Legacy mode: both daughters need the refit flag.
	selLegacy, counters := newTestSelector(true)
	if _, ok := selLegacy.BuildV0(col, v0, pos, neg); ok {
		t.Error("legacy mode must reject daughters without the refit flag")
	}
	if counters.V0Count(V0RefitOK) != 0 {
		t.Errorf("refit counter must not advance on rejection")
	}
}

func TestBuildV0RejectsOnPointingAngle(t *testing.T) {
	sel, counters := newTestSelector(false)

	// Move the primary vertex sideways so the candidate no longer points
	// back to it.
	col := testCollision()
	col.Vertex = kinematics.Vec3{0, 5, 0}
	pos, neg := lambdaDaughters()

	if _, ok := sel.BuildV0(col, V0Input{ID: 10}, pos, neg); ok {
		t.Fatal("expected rejection on the pointing-angle gate")
	}
	if counters.V0Count(V0DCADaughtersOK) != 1 {
		t.Errorf("daughter-DCA gate should have passed before the pointing rejection")
	}
	if counters.V0Count(V0CosPAOK) != 0 {
		t.Errorf("cosPA counter must not advance on rejection")
	}
}

func TestBuildV0RejectsOnRadius(t *testing.T) {
	cfg := testBuilderConfig()
	cfg.V0Selection.MinRadius = 50.0 // tighter than the 1 cm test vertex
	fitter := vertexer.NewTwoProngFitter(cfg.Fitter)
	fitter.SetBz(testBz)
	counters := &Counters{}
	sel := NewSelector(cfg.V0Selection, cfg.CascadeSelection, false, fitter, counters)

	pos, neg := lambdaDaughters()
	if _, ok := sel.BuildV0(testCollision(), V0Input{ID: 10}, pos, neg); ok {
		t.Fatal("expected rejection on the radius gate")
	}
	if counters.V0Count(V0CosPAOK) != 1 {
		t.Errorf("cosPA gate should have passed before the radius rejection")
	}
	if counters.V0Count(V0RadiusOK) != 0 {
		t.Errorf("radius counter must not advance on rejection")
	}
}

func acceptedLambda(t *testing.T, sel *Selector) V0Candidate {
	t.Helper()
	pos, neg := lambdaDaughters()
	cand, ok := sel.BuildV0(testCollision(), V0Input{ID: 10, PosID: 1, NegID: 2}, pos, neg)
	if !ok {
		t.Fatal("fixture V0 should pass all gates")
	}
	return cand
}

func TestBuildCascadeAccepts(t *testing.T) {
	sel, counters := newTestSelector(false)
	v0 := acceptedLambda(t, sel)
	bach := xiBachelor()

	cand, ok := sel.BuildCascade(testCollision(), v0, CascadeInput{ID: 20, V0ID: 10, BachelorID: 3}, bach)
	if !ok {
		t.Fatal("expected cascade to pass all gates")
	}

	if cand.Charge != -1 {
		t.Errorf("net charge must follow the bachelor sign, got %d", cand.Charge)
	}
	if math.Abs(cand.Radius-0.95) > 1e-2 {
		t.Errorf("cascade radius: got %v want ~0.95", cand.Radius)
	}
	if cand.DCADaughters > 1e-2 {
		t.Errorf("true crossing should give near-zero cascade DCA, got %v", cand.DCADaughters)
	}
	if cand.Parent.Charge() != -1 {
		t.Errorf("cascade parent charge: got %d want -1", cand.Parent.Charge())
	}
	for c := CascConsidered; c < numCascCriteria; c++ {
		if got := counters.CascadeCount(c); got != 1 {
			t.Errorf("counter %v: got %d want 1", c, got)
		}
	}
}

func TestBuildCascadeMassWindowRejectsSwappedHypothesis(t *testing.T) {
	sel, counters := newTestSelector(false)
	v0 := acceptedLambda(t, sel)

	// A positive bachelor selects the anti-Lambda hypothesis, whose mass
	// for this decay is ~1.458: far outside any 10 MeV window.
	bach := xiBachelor()
	bach.State = bach.State.SetCharge(1)

	if _, ok := sel.BuildCascade(testCollision(), v0, CascadeInput{ID: 20}, bach); ok {
		t.Fatal("expected rejection on the mass-window gate")
	}
	if counters.CascadeCount(CascBachelorDCAOK) != 1 {
		t.Errorf("bachelor DCA gate should have passed before the mass rejection")
	}
	if counters.CascadeCount(CascMassWindowOK) != 0 {
		t.Errorf("mass-window counter must not advance on rejection")
	}
	if counters.CascadeFitAttempts() != 0 {
		t.Errorf("mass window must prune before the fit")
	}
}

func TestBuildCascadeRejectsOnBachelorDCA(t *testing.T) {
	sel, counters := newTestSelector(false)
	v0 := acceptedLambda(t, sel)
	bach := xiBachelor()
	bach.DCAXY = 0.01

	if _, ok := sel.BuildCascade(testCollision(), v0, CascadeInput{ID: 20}, bach); ok {
		t.Fatal("expected rejection on the bachelor DCA gate")
	}
	if counters.CascadeCount(CascBachelorDCAOK) != 0 {
		t.Errorf("bachelor DCA counter must not advance on rejection")
	}
	if counters.CascadeFitAttempts() != 0 {
		t.Errorf("fitter must not run for a rejected bachelor")
	}
}

func TestBuildCascadeDCAGateUsesDCA(t *testing.T) {
	// Regression for the historical radius-vs-threshold comparison: a
	// cascade whose daughters miss each other by more than the threshold
	// must be rejected even when the radius passes.
	cfg := testBuilderConfig()
	cfg.CascadeSelection.MaxDCADaughters = 1e-4
	fitter := vertexer.NewTwoProngFitter(cfg.Fitter)
	fitter.SetBz(testBz)
	counters := &Counters{}
	sel := NewSelector(cfg.V0Selection, cfg.CascadeSelection, false, fitter, counters)

	v0 := acceptedLambda(t, sel)
	bach := xiBachelor()
	// Shift the bachelor off the crossing by 1 mm in z.
	shifted := bach.State.XYZ()
	shifted[2] += 0.1
	bach.State = trackAt(shifted, bach.State.PxPyPz(), bach.State.Charge())

	if _, ok := sel.BuildCascade(testCollision(), v0, CascadeInput{ID: 20}, bach); ok {
		t.Fatal("expected rejection on the daughter-DCA gate")
	}
	if counters.CascadeCount(CascRadiusOK) != 1 {
		t.Errorf("radius gate should have passed before the DCA rejection")
	}
	if counters.CascadeCount(CascDCADaughtersOK) != 0 {
		t.Errorf("DCA counter must not advance on rejection")
	}
}
