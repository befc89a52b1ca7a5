package strangeness

import (
	"math"

	"github.com/banshee-data/strangeness.report/internal/kinematics"
	"github.com/banshee-data/strangeness.report/internal/monitoring"
	"github.com/banshee-data/strangeness.report/internal/vertexer"
)

// lambdaMassNominal is the window centre of the pre-fit cascade mass gate.
// The gate intentionally uses the rounded nominal value, not the PDG mass.
const lambdaMassNominal = 1.116

// V0SelectorConfig holds the topological V0 selection thresholds.
type V0SelectorConfig struct {
	RequireRefit    bool // legacy-data mode only
	MinCrossedRows  int
	MinDCAPosToPV   float64 // cm
	MinDCANegToPV   float64 // cm
	MaxDCADaughters float64 // cm, sqrt of fit chi2
	MinCosPA        float64
	MinRadius       float64 // cm
}

// DefaultV0SelectorConfig returns the standard V0 selection.
func DefaultV0SelectorConfig() V0SelectorConfig {
	return V0SelectorConfig{
		RequireRefit:    true,
		MinCrossedRows:  70,
		MinDCAPosToPV:   0.1,
		MinDCANegToPV:   0.1,
		MaxDCADaughters: 1.0,
		MinCosPA:        0.995,
		MinRadius:       5.0,
	}
}

// CascadeSelectorConfig holds the cascade selection thresholds.
type CascadeSelectorConfig struct {
	MinDCABachelorToPV float64 // cm
	LambdaMassWindow   float64 // GeV/c², symmetric around the nominal mass
	MinRadius          float64 // cm
	MaxDCADaughters    float64 // cm
}

// DefaultCascadeSelectorConfig returns the standard cascade selection.
func DefaultCascadeSelectorConfig() CascadeSelectorConfig {
	return CascadeSelectorConfig{
		MinDCABachelorToPV: 0.05,
		LambdaMassWindow:   0.01,
		MinRadius:          0.9,
		MaxDCADaughters:    1.0,
	}
}

// Selector runs the ordered acceptance gates for V0s and cascades. Each
// gate increments its counter when passed and short-circuits the pipeline
// on failure; a rejection is final for that candidate.
type Selector struct {
	v0Cfg      V0SelectorConfig
	cascCfg    CascadeSelectorConfig
	legacyMode bool
	fitter     *vertexer.TwoProngFitter
	counters   *Counters
}

// NewSelector wires the gate configuration over a shared fitter and counter
// set. legacyMode enables the refit-quality gate.
func NewSelector(v0Cfg V0SelectorConfig, cascCfg CascadeSelectorConfig, legacyMode bool, fitter *vertexer.TwoProngFitter, counters *Counters) *Selector {
	return &Selector{
		v0Cfg:      v0Cfg,
		cascCfg:    cascCfg,
		legacyMode: legacyMode,
		fitter:     fitter,
		counters:   counters,
	}
}

// BuildV0 runs the V0 gate pipeline for one daughter pair. The returned
// candidate is fully populated only when ok is true.
func (s *Selector) BuildV0(col Collision, v0 V0Input, pos, neg TrackInput) (V0Candidate, bool) {
	s.counters.CountV0(V0Considered)

	// Refit-quality gate, legacy-data mode only.
	if s.legacyMode && s.v0Cfg.RequireRefit {
		if pos.Flags&TrackFlagRefit == 0 || neg.Flags&TrackFlagRefit == 0 {
			return V0Candidate{}, false
		}
	}
	s.counters.CountV0(V0RefitOK)

	if pos.CrossedRows < s.v0Cfg.MinCrossedRows || neg.CrossedRows < s.v0Cfg.MinCrossedRows {
		return V0Candidate{}, false
	}
	s.counters.CountV0(V0CrossedRowsOK)

	// A true V0 daughter should not point back to the primary vertex.
	if math.Abs(pos.DCAXY) < s.v0Cfg.MinDCAPosToPV || math.Abs(neg.DCAXY) < s.v0Cfg.MinDCANegToPV {
		return V0Candidate{}, false
	}
	s.counters.CountV0(V0DCAToPVOK)

	s.counters.CountV0FitAttempt()
	res := s.fitter.Fit(pos.State, neg.State)
	if res.Status == vertexer.NumericallyUnstable {
		s.counters.CountUnstableFit()
		monitoring.Logf("strangeness: unstable V0 fit, pos=%d neg=%d", pos.ID, neg.ID)
	}
	if res.NCandidates == 0 {
		return V0Candidate{}, false
	}
	s.counters.CountV0(V0FitOK)

	cand := V0Candidate{
		V0ID:        v0.ID,
		PosID:       pos.ID,
		NegID:       neg.ID,
		CollisionID: col.ID,
		Vertex:      res.Vertex,
		MomPos:      res.PropA.PxPyPz(),
		MomNeg:      res.PropB.PxPyPz(),
		DCAPosToPV:  pos.DCAXY,
		DCANegToPV:  neg.DCAXY,
	}

	cand.DCADaughters = res.DCA()
	if cand.DCADaughters > s.v0Cfg.MaxDCADaughters {
		return V0Candidate{}, false
	}
	s.counters.CountV0(V0DCADaughtersOK)

	cand.CosPA = kinematics.CosPointingAngle(col.Vertex, cand.Vertex, cand.MomPos.Add(cand.MomNeg))
	if cand.CosPA < s.v0Cfg.MinCosPA {
		return V0Candidate{}, false
	}
	s.counters.CountV0(V0CosPAOK)

	cand.Radius = kinematics.TransverseRadius(cand.Vertex[0], cand.Vertex[1])
	if cand.Radius < s.v0Cfg.MinRadius {
		return V0Candidate{}, false
	}
	s.counters.CountV0(V0RadiusOK)

	// Mass hypotheses for downstream cascade gating, and the parent track
	// for cascade minimization and decay-chain export.
	momenta := []kinematics.Vec3{cand.MomPos, cand.MomNeg}
	cand.MassLambda = kinematics.InvariantMass(momenta,
		[]float64{kinematics.MassProton, kinematics.MassPionCharged})
	cand.MassAntiLambda = kinematics.InvariantMass(momenta,
		[]float64{kinematics.MassPionCharged, kinematics.MassProton})
	cand.Parent = res.ParentTrack(0)

	return cand, true
}

// BuildCascade runs the cascade gate pipeline for one bachelor associated
// with an accepted V0. The V0's parent trajectory enters the fit unmodified.
func (s *Selector) BuildCascade(col Collision, v0 V0Candidate, casc CascadeInput, bach TrackInput) (CascadeCandidate, bool) {
	s.counters.CountCascade(CascConsidered)

	if math.Abs(bach.DCAXY) < s.cascCfg.MinDCABachelorToPV {
		return CascadeCandidate{}, false
	}
	s.counters.CountCascade(CascBachelorDCAOK)

	// The bachelor charge selects the hypothesis: a negative bachelor
	// pairs with a Lambda, a positive one with an anti-Lambda. Cheap
	// pre-fit cut pruning combinations before the expensive minimization.
	charge := 1
	if bach.State.Charge() < 0 {
		charge = -1
	}
	if charge < 0 && math.Abs(v0.MassLambda-lambdaMassNominal) > s.cascCfg.LambdaMassWindow {
		return CascadeCandidate{}, false
	}
	if charge > 0 && math.Abs(v0.MassAntiLambda-lambdaMassNominal) > s.cascCfg.LambdaMassWindow {
		return CascadeCandidate{}, false
	}
	s.counters.CountCascade(CascMassWindowOK)

	s.counters.CountCascadeFitAttempt()
	res := s.fitter.Fit(v0.Parent, bach.State)
	if res.Status == vertexer.NumericallyUnstable {
		s.counters.CountUnstableFit()
		monitoring.Logf("strangeness: unstable cascade fit, v0=%d bach=%d", v0.V0ID, bach.ID)
	}
	if res.NCandidates == 0 {
		return CascadeCandidate{}, false
	}
	s.counters.CountCascade(CascFitOK)

	cand := CascadeCandidate{
		CascadeID:       casc.ID,
		V0ID:            v0.V0ID,
		BachelorID:      bach.ID,
		CollisionID:     col.ID,
		Charge:          charge,
		Vertex:          res.Vertex,
		MomBachelor:     res.PropB.PxPyPz(),
		DCABachelorToPV: bach.DCAXY,
	}

	cand.Radius = kinematics.TransverseRadius(cand.Vertex[0], cand.Vertex[1])
	if cand.Radius < s.cascCfg.MinRadius {
		return CascadeCandidate{}, false
	}
	s.counters.CountCascade(CascRadiusOK)

	// Gate on the daughter DCA itself. The historical implementation
	// compared the cascade radius against this threshold, which for
	// typical values never rejects; that was a defect, not a selection.
	cand.DCADaughters = res.DCA()
	if cand.DCADaughters > s.cascCfg.MaxDCADaughters {
		return CascadeCandidate{}, false
	}
	s.counters.CountCascade(CascDCADaughtersOK)

	cand.Parent = res.ParentTrack(charge)
	return cand, true
}
