// Package track provides the trajectory state used by the vertex fitter: a
// charged-particle helix (or straight line for neutral tracks) sampled at a
// reference point, with an optional packed covariance matrix.
//
// Units: positions in cm, momenta in GeV/c, magnetic field in kilogauss,
// so that pT = B2C * |Bz| * R for a helix of radius R.
package track

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/strangeness.report/internal/kinematics"
)

// B2C converts field times radius to transverse momentum:
// pT [GeV/c] = B2C * Bz [kG] * R [cm].
const B2C = 0.299792458e-3

// minCurvature is the signed curvature below which a track is treated as a
// straight line during propagation.
const minCurvature = 1e-12

// CovSize is the length of the packed symmetric 6x6 covariance of
// (x, y, z, px, py, pz): lower triangle, row-major.
const CovSize = 21

// MatCorrType selects how material effects are applied during propagation.
type MatCorrType int

const (
	// MatCorrNone disables material corrections.
	MatCorrNone MatCorrType = iota
	// MatCorrGeo uses a geometry-derived constant energy-loss model.
	MatCorrGeo
	// MatCorrLUT uses a radial lookup table of energy-loss values.
	MatCorrLUT
)

// Material supplies the momentum loss per cm of path at a given transverse
// radius. Implementations live in the conditions package.
type Material interface {
	EnergyLossPerCm(radius float64) float64
}

// TrackState is a value type: methods that move the state return a new one.
// A state is valid only at its current reference point until propagated.
type TrackState struct {
	pos    kinematics.Vec3
	mom    kinematics.Vec3
	charge int
	cov    [CovSize]float64
	hasCov bool
}

// New returns a TrackState at the given reference position with the given
// momentum and signed charge (in units of e; 0 for neutral).
func New(pos, mom kinematics.Vec3, charge int) TrackState {
	return TrackState{pos: pos, mom: mom, charge: charge}
}

// WithCovariance returns a copy of s carrying the packed 21-element
// covariance of (x, y, z, px, py, pz).
func (s TrackState) WithCovariance(cov [CovSize]float64) TrackState {
	s.cov = cov
	s.hasCov = true
	return s
}

// XYZ returns the reference position.
func (s TrackState) XYZ() kinematics.Vec3 { return s.pos }

// PxPyPz returns the momentum at the reference position.
func (s TrackState) PxPyPz() kinematics.Vec3 { return s.mom }

// Charge returns the signed charge.
func (s TrackState) Charge() int { return s.charge }

// SetCharge returns a copy of s with the signed charge replaced. Used when
// exporting fitted parent tracks (zero for a V0, bachelor sign for a
// cascade).
func (s TrackState) SetCharge(charge int) TrackState {
	s.charge = charge
	return s
}

// Pt returns the transverse momentum.
func (s TrackState) Pt() float64 { return s.mom.Pt() }

// TanLambda returns pz/pT, the longitudinal slope of the helix.
func (s TrackState) TanLambda() float64 {
	pt := s.Pt()
	if pt == 0 {
		return 0
	}
	return s.mom[2] / pt
}

// Curvature returns the signed curvature omega (1/cm) in field bz. Zero for
// neutral tracks or zero field: the track is then a straight line.
func (s TrackState) Curvature(bz float64) float64 {
	pt := s.Pt()
	if s.charge == 0 || pt == 0 {
		return 0
	}
	return float64(s.charge) * B2C * bz / pt
}

// PositionAt returns the position after transverse arc length t (cm) along
// the trajectory in field bz, without modifying the state.
func (s TrackState) PositionAt(t, bz float64) kinematics.Vec3 {
	pos, _ := s.advance(t, bz)
	return pos
}

// DirectionAt returns dr/dt at transverse arc length t: the unit transverse
// direction plus the longitudinal slope, (cos phi, sin phi, tanLambda).
func (s TrackState) DirectionAt(t, bz float64) kinematics.Vec3 {
	omega := s.Curvature(bz)
	phi := math.Atan2(s.mom[1], s.mom[0]) + omega*t
	return kinematics.Vec3{math.Cos(phi), math.Sin(phi), s.TanLambda()}
}

// CurvatureVectorAt returns d²r/dt² at transverse arc length t.
func (s TrackState) CurvatureVectorAt(t, bz float64) kinematics.Vec3 {
	omega := s.Curvature(bz)
	phi := math.Atan2(s.mom[1], s.mom[0]) + omega*t
	return kinematics.Vec3{-omega * math.Sin(phi), omega * math.Cos(phi), 0}
}

// advance computes position and rotated momentum after arc length t.
func (s TrackState) advance(t, bz float64) (kinematics.Vec3, kinematics.Vec3) {
	pt := s.Pt()
	omega := s.Curvature(bz)
	phi0 := math.Atan2(s.mom[1], s.mom[0])

	if math.Abs(omega) < minCurvature {
		// Straight line: move along the initial direction.
		dir := kinematics.Vec3{math.Cos(phi0), math.Sin(phi0), s.TanLambda()}
		return kinematics.Vec3{
			s.pos[0] + dir[0]*t,
			s.pos[1] + dir[1]*t,
			s.pos[2] + dir[2]*t,
		}, s.mom
	}

	phi := phi0 + omega*t
	pos := kinematics.Vec3{
		s.pos[0] + (math.Sin(phi)-math.Sin(phi0))/omega,
		s.pos[1] - (math.Cos(phi)-math.Cos(phi0))/omega,
		s.pos[2] + s.TanLambda()*t,
	}
	mom := kinematics.Vec3{pt * math.Cos(phi), pt * math.Sin(phi), s.mom[2]}
	return pos, mom
}

// Propagated returns the state moved by transverse arc length t in field bz.
// The covariance, when present, is rotated with the transverse direction.
func (s TrackState) Propagated(t, bz float64) TrackState {
	pos, mom := s.advance(t, bz)
	out := s
	out.pos = pos
	out.mom = mom
	if s.hasCov {
		dphi := s.Curvature(bz) * t
		out.cov = rotateCovZ(s.cov, dphi)
	}
	return out
}

// PropagatedWithMaterial is Propagated plus an energy-loss correction: the
// momentum magnitude is reduced by the integrated loss along the path while
// the direction is kept. The loss is evaluated at the destination radius.
func (s TrackState) PropagatedWithMaterial(t, bz float64, mode MatCorrType, m Material) TrackState {
	out := s.Propagated(t, bz)
	if mode == MatCorrNone || m == nil {
		return out
	}
	radius := kinematics.TransverseRadius(out.pos[0], out.pos[1])
	// Path length in 3D: transverse arc scaled by the dip.
	path := math.Abs(t) * math.Sqrt(1+s.TanLambda()*s.TanLambda())
	loss := m.EnergyLossPerCm(radius) * path
	p := out.mom.Norm()
	if loss <= 0 || p <= loss {
		return out
	}
	scale := (p - loss) / p
	out.mom = kinematics.Vec3{out.mom[0] * scale, out.mom[1] * scale, out.mom[2] * scale}
	return out
}

// CovXYZPxPyPz returns the packed covariance and whether one is carried.
func (s TrackState) CovXYZPxPyPz() ([CovSize]float64, bool) {
	return s.cov, s.hasCov
}

// PositionCovariance returns the 3x3 position block of the covariance as a
// symmetric matrix, or false when the state carries none.
func (s TrackState) PositionCovariance() (*mat.SymDense, bool) {
	if !s.hasCov {
		return nil, false
	}
	c := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j <= i; j++ {
			c.SetSym(i, j, s.cov[packedIndex(i, j)])
		}
	}
	return c, true
}

// packedIndex maps (row, col) with row >= col into the packed lower
// triangle.
func packedIndex(i, j int) int {
	if j > i {
		i, j = j, i
	}
	return i*(i+1)/2 + j
}

// PackedIndex exposes the covariance packing used throughout the pipeline.
func PackedIndex(i, j int) int { return packedIndex(i, j) }

// rotateCovZ rotates the packed 6x6 covariance by dphi around the z axis,
// applied to both the position and momentum blocks: C' = R C R^T with
// R = diag(Rz, Rz).
func rotateCovZ(cov [CovSize]float64, dphi float64) [CovSize]float64 {
	if dphi == 0 {
		return cov
	}
	c, s := math.Cos(dphi), math.Sin(dphi)

	r := mat.NewDense(6, 6, nil)
	for _, off := range []int{0, 3} {
		r.Set(off, off, c)
		r.Set(off, off+1, -s)
		r.Set(off+1, off, s)
		r.Set(off+1, off+1, c)
		r.Set(off+2, off+2, 1)
	}

	full := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			full.Set(i, j, cov[packedIndex(i, j)])
		}
	}

	var rotated mat.Dense
	rotated.Product(r, full, r.T())

	var out [CovSize]float64
	for i := 0; i < 6; i++ {
		for j := 0; j <= i; j++ {
			// Average the off-diagonal pair to keep the result symmetric
			// against rounding.
			out[packedIndex(i, j)] = 0.5 * (rotated.At(i, j) + rotated.At(j, i))
		}
	}
	return out
}
