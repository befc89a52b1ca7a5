// Package vertexer implements the two-trajectory closest-approach fit used
// for V0 and cascade candidate building: a bounded Newton minimization of
// the mutual distance of two track states, with optional covariance
// weighting for the final vertex and chi-square.
package vertexer

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/strangeness.report/internal/kinematics"
	"github.com/banshee-data/strangeness.report/internal/track"
)

// FitStatus classifies the outcome of a Fit call. Anything other than
// Converged is a normal rejection for the candidate, never an error to
// propagate: NoSolution covers degenerate or out-of-bounds geometry,
// NumericallyUnstable covers singular matrices and non-finite intermediate
// values and is counted separately by the caller for visibility.
type FitStatus int

const (
	Converged FitStatus = iota
	NoSolution
	NumericallyUnstable
)

func (s FitStatus) String() string {
	switch s {
	case Converged:
		return "converged"
	case NoSolution:
		return "no-solution"
	case NumericallyUnstable:
		return "numerically-unstable"
	}
	return "unknown"
}

// Constants bounding the minimization loop.
const (
	// maxArcLength rejects runaway iterations: no physical candidate sits
	// further than this along either trajectory (cm).
	maxArcLength = 1e4
	// maxStepPerIteration damps Newton overshoot on strongly curved
	// geometry (cm).
	maxStepPerIteration = 50.0
	// minHessianDet is the determinant below which the 2x2 Newton system
	// is treated as degenerate (parallel trajectories).
	minHessianDet = 1e-12
)

// Config holds the fitter configuration, set once and reused across calls.
type Config struct {
	PropagateToPCA   bool    // propagate the daughters to the fitted vertex
	MaxR             float64 // maximum transverse vertex radius (cm)
	MaxIterations    int
	MinParamChange   float64 // arc-length change below which iteration stops
	MinRelChi2Change float64 // stop when chi2New > chi2Old * this
	MaxDZIni         float64 // maximum initial |dz| between the tracks (cm)
	MaxChi2          float64
	UseAbsDCA        bool // chi2 is the squared distance, not cov-weighted
	WeightedFinalPCA bool // vertex is the covariance-weighted mean
	MatCorrType      track.MatCorrType
}

// DefaultConfig returns the standard candidate-building configuration.
func DefaultConfig() Config {
	return Config{
		PropagateToPCA:   true,
		MaxR:             200.0,
		MaxIterations:    60,
		MinParamChange:   1e-3,
		MinRelChi2Change: 0.9,
		MaxDZIni:         1e9,
		MaxChi2:          1e9,
		UseAbsDCA:        true,
		WeightedFinalPCA: false,
	}
}

// FitResult is the value-returning replacement for reusable fitter scratch
// state: every Fit call produces a fresh result owned by the caller.
type FitResult struct {
	Status      FitStatus
	NCandidates int
	Vertex      kinematics.Vec3
	Chi2        float64

	// PropA and PropB are the input states propagated to the fitted
	// vertex when PropagateToPCA is set, otherwise the unmodified inputs.
	PropA track.TrackState
	PropB track.TrackState
}

// DCA returns sqrt(Chi2), the chi-square-derived distance of closest
// approach used by the selector gates.
func (r FitResult) DCA() float64 {
	return math.Sqrt(r.Chi2)
}

// ParentTrack builds the combined two-body trajectory at the fitted vertex
// with the given signed charge: zero for a V0, the bachelor sign for a
// cascade. Valid only for a converged result.
func (r FitResult) ParentTrack(charge int) track.TrackState {
	mom := r.PropA.PxPyPz().Add(r.PropB.PxPyPz())
	parent := track.New(r.Vertex, mom, charge)

	covA, okA := r.PropA.CovXYZPxPyPz()
	covB, okB := r.PropB.CovXYZPxPyPz()
	if okA && okB {
		var sum [track.CovSize]float64
		for i := range sum {
			sum[i] = covA[i] + covB[i]
		}
		parent = parent.WithCovariance(sum)
	}
	return parent
}

// TwoProngFitter minimizes the mutual distance of exactly two track states.
// Configure once; SetBz and SetMaterial are called at run boundaries when
// conditions change. Fit itself is pure: identical inputs and configuration
// give identical results.
type TwoProngFitter struct {
	cfg      Config
	bz       float64
	material track.Material
}

// NewTwoProngFitter returns a fitter with the given configuration.
func NewTwoProngFitter(cfg Config) *TwoProngFitter {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	return &TwoProngFitter{cfg: cfg}
}

// SetBz sets the working magnetic field (kG).
func (f *TwoProngFitter) SetBz(bz float64) { f.bz = bz }

// Bz returns the working magnetic field.
func (f *TwoProngFitter) Bz() float64 { return f.bz }

// SetMaterial sets the material model used when MatCorrType is not
// MatCorrNone.
func (f *TwoProngFitter) SetMaterial(m track.Material) { f.material = m }

// Fit finds the point of closest approach of a and b. The result's
// NCandidates is 0 unless Status is Converged; the fitter never panics
// outward.
func (f *TwoProngFitter) Fit(a, b track.TrackState) FitResult {
	bz := f.bz

	// Initial longitudinal separation bound.
	dzIni := a.XYZ()[2] - b.XYZ()[2]
	if math.Abs(dzIni) > f.cfg.MaxDZIni {
		return FitResult{Status: NoSolution}
	}

	tA, tB := seedArcLengths(a, b, bz)
	if !isFinite(tA) || !isFinite(tB) {
		return FitResult{Status: NumericallyUnstable}
	}

	prevChi2 := math.Inf(1)
	for iter := 0; iter < f.cfg.MaxIterations; iter++ {
		pA := a.PositionAt(tA, bz)
		pB := b.PositionAt(tB, bz)
		d := pA.Sub(pB)

		uA := a.DirectionAt(tA, bz)
		uB := b.DirectionAt(tB, bz)
		cA := a.CurvatureVectorAt(tA, bz)
		cB := b.CurvatureVectorAt(tB, bz)

		// Gradient and Hessian of |d|^2 in (tA, tB), common factor 2
		// dropped.
		g0 := d.Dot(uA)
		g1 := -d.Dot(uB)
		h00 := uA.Dot(uA) + d.Dot(cA)
		h11 := uB.Dot(uB) - d.Dot(cB)
		h01 := -uA.Dot(uB)

		det := h00*h11 - h01*h01
		if !isFinite(det) || !isFinite(g0) || !isFinite(g1) {
			return FitResult{Status: NumericallyUnstable}
		}
		if math.Abs(det) < minHessianDet {
			// Parallel trajectories share no isolated closest approach.
			return FitResult{Status: NoSolution}
		}

		dA := (-g0*h11 + g1*h01) / det
		dB := (-h00*g1 + h01*g0) / det
		dA = clamp(dA, maxStepPerIteration)
		dB = clamp(dB, maxStepPerIteration)

		tA += dA
		tB += dB
		if math.Abs(tA) > maxArcLength || math.Abs(tB) > maxArcLength {
			return FitResult{Status: NoSolution}
		}

		if math.Abs(dA) < f.cfg.MinParamChange && math.Abs(dB) < f.cfg.MinParamChange {
			break
		}

		chi2 := d.Dot(d)
		if chi2 > prevChi2*f.cfg.MinRelChi2Change {
			// Improvement has flattened out.
			break
		}
		prevChi2 = chi2
	}

	return f.finish(a, b, tA, tB, bz)
}

// finish evaluates the vertex, chi-square, and propagated daughters at the
// converged arc lengths, applying the configured bounds.
func (f *TwoProngFitter) finish(a, b track.TrackState, tA, tB, bz float64) FitResult {
	pA := a.PositionAt(tA, bz)
	pB := b.PositionAt(tB, bz)
	d := pA.Sub(pB)

	var vertex kinematics.Vec3
	var chi2 float64
	weighted := !f.cfg.UseAbsDCA || f.cfg.WeightedFinalPCA
	if weighted {
		wv, wchi2, ok := weightedVertex(a, b, pA, pB, d, f.cfg)
		if !ok {
			return FitResult{Status: NumericallyUnstable}
		}
		vertex, chi2 = wv, wchi2
		if f.cfg.UseAbsDCA {
			chi2 = d.Dot(d)
		}
	} else {
		vertex = kinematics.Vec3{
			0.5 * (pA[0] + pB[0]),
			0.5 * (pA[1] + pB[1]),
			0.5 * (pA[2] + pB[2]),
		}
		chi2 = d.Dot(d)
	}

	if !isFinite(chi2) || !isFinite(vertex[0]) || !isFinite(vertex[1]) || !isFinite(vertex[2]) {
		return FitResult{Status: NumericallyUnstable}
	}
	if kinematics.TransverseRadius(vertex[0], vertex[1]) > f.cfg.MaxR {
		return FitResult{Status: NoSolution}
	}
	if chi2 > f.cfg.MaxChi2 {
		return FitResult{Status: NoSolution}
	}

	res := FitResult{
		Status:      Converged,
		NCandidates: 1,
		Vertex:      vertex,
		Chi2:        chi2,
		PropA:       a,
		PropB:       b,
	}
	if f.cfg.PropagateToPCA {
		res.PropA = a.PropagatedWithMaterial(tA, bz, f.cfg.MatCorrType, f.material)
		res.PropB = b.PropagatedWithMaterial(tB, bz, f.cfg.MatCorrType, f.material)
	}
	return res
}

// weightedVertex computes the covariance-weighted vertex and chi-square:
// v = (Wa + Wb)^-1 (Wa pA + Wb pB), chi2 = d^T (Ca + Cb)^-1 d, with W the
// inverse position covariance. Both tracks must carry covariances; singular
// matrices report !ok.
func weightedVertex(a, b track.TrackState, pA, pB, d kinematics.Vec3, cfg Config) (kinematics.Vec3, float64, bool) {
	covA, okA := a.PositionCovariance()
	covB, okB := b.PositionCovariance()
	if !okA || !okB {
		return kinematics.Vec3{}, 0, false
	}

	// chi2 = d^T (Ca + Cb)^-1 d via Cholesky.
	sum := mat.NewSymDense(3, nil)
	sum.AddSym(covA, covB)
	var chol mat.Cholesky
	if !chol.Factorize(sum) {
		return kinematics.Vec3{}, 0, false
	}
	dv := mat.NewVecDense(3, []float64{d[0], d[1], d[2]})
	var solved mat.VecDense
	if err := chol.SolveVecTo(&solved, dv); err != nil {
		return kinematics.Vec3{}, 0, false
	}
	chi2 := mat.Dot(dv, &solved)

	// Weighted mean position.
	var wa, wb mat.Dense
	if err := wa.Inverse(covA); err != nil {
		return kinematics.Vec3{}, 0, false
	}
	if err := wb.Inverse(covB); err != nil {
		return kinematics.Vec3{}, 0, false
	}
	var wsum mat.Dense
	wsum.Add(&wa, &wb)

	va := mat.NewVecDense(3, []float64{pA[0], pA[1], pA[2]})
	vb := mat.NewVecDense(3, []float64{pB[0], pB[1], pB[2]})
	var rhsA, rhsB mat.VecDense
	rhsA.MulVec(&wa, va)
	rhsB.MulVec(&wb, vb)
	var rhs mat.VecDense
	rhs.AddVec(&rhsA, &rhsB)

	var vtx mat.VecDense
	if err := vtx.SolveVec(&wsum, &rhs); err != nil {
		return kinematics.Vec3{}, 0, false
	}
	return kinematics.Vec3{vtx.AtVec(0), vtx.AtVec(1), vtx.AtVec(2)}, chi2, true
}

// seedArcLengths solves the straight-line closest approach of the two
// initial directions as the Newton starting point. Degenerate (parallel)
// seeds start at zero and are resolved or rejected by the iteration.
func seedArcLengths(a, b track.TrackState, bz float64) (float64, float64) {
	d0 := a.XYZ().Sub(b.XYZ())
	uA := a.DirectionAt(0, bz)
	uB := b.DirectionAt(0, bz)

	m00 := uA.Dot(uA)
	m01 := -uA.Dot(uB)
	m11 := uB.Dot(uB)
	det := m00*m11 - m01*m01
	if math.Abs(det) < minHessianDet {
		return 0, 0
	}
	r0 := -d0.Dot(uA)
	r1 := d0.Dot(uB)
	tA := (r0*m11 - m01*r1) / det
	tB := (m00*r1 - m01*r0) / det
	return clamp(tA, maxArcLength), clamp(tB, maxArcLength)
}

func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
