// Package kinematics provides shared decay-kinematics helpers and particle
// mass constants for candidate building.
//
// Units follow the rest of the pipeline: lengths in cm, momenta in GeV/c,
// masses in GeV/c².
package kinematics

import "math"

// PDG mass constants (GeV/c²).
const (
	MassProton      = 0.93827208816
	MassPionCharged = 0.13957039
	MassLambda      = 1.115683
)

// Vec3 is a fixed-size 3-vector used for positions and momenta.
type Vec3 [3]float64

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v[0] + w[0], v[1] + w[1], v[2] + w[2]}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v[0] - w[0], v[1] - w[1], v[2] - w[2]}
}

// Dot returns the scalar product of v and w.
func (v Vec3) Dot(w Vec3) float64 {
	return v[0]*w[0] + v[1]*w[1] + v[2]*w[2]
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Pt returns the transverse component of v.
func (v Vec3) Pt() float64 {
	return math.Hypot(v[0], v[1])
}

// TransverseRadius returns sqrt(x² + y²), the transverse distance of a point
// from the beam axis.
func TransverseRadius(x, y float64) float64 {
	return math.Hypot(x, y)
}

// CosPointingAngle returns the cosine of the angle between the line from the
// primary vertex to the decay vertex and the candidate's total momentum.
// Returns -1 when either vector has zero length, so degenerate candidates
// fail any sensible pointing cut instead of passing it.
func CosPointingAngle(primary, decay, momentum Vec3) float64 {
	line := decay.Sub(primary)
	denom := line.Norm() * momentum.Norm()
	if denom <= 0 {
		return -1
	}
	cos := line.Dot(momentum) / denom
	// Clamp against rounding: |cos| may exceed 1 by a few ulps.
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return cos
}

// InvariantMass returns the invariant mass of a set of daughters given their
// momenta at the decay vertex and the mass hypothesis assigned to each.
// Momenta and masses must have equal length.
func InvariantMass(momenta []Vec3, masses []float64) float64 {
	var energy float64
	var total Vec3
	for i, p := range momenta {
		energy += math.Sqrt(p.Dot(p) + masses[i]*masses[i])
		total = total.Add(p)
	}
	m2 := energy*energy - total.Dot(total)
	if m2 < 0 {
		// Below threshold only through rounding; report zero rather than NaN.
		return 0
	}
	return math.Sqrt(m2)
}
