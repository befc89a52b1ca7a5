package strangeness

// Truth-association label builder: given accepted records plus a
// truth-particle graph, emit one label per record in record order. A label
// is the truth-particle identity of the common ancestor, or NoLabel when
// the daughters do not share one.

// NoLabel marks a record whose daughters have no common truth parent.
const NoLabel int64 = -1

// TruthSource exposes the simulated-truth graph: the truth particle matched
// to a reconstructed track, and each particle's mother links.
type TruthSource interface {
	// ParticleFor returns the truth particle matched to the track, or
	// false when the track has no truth match.
	ParticleFor(trackID int64) (int64, bool)
	// Mothers returns the mother particles of a truth particle. Empty for
	// primaries.
	Mothers(particleID int64) []int64
}

// commonMother returns the shared mother of two truth particles, or false.
func commonMother(truth TruthSource, a, b int64) (int64, bool) {
	for _, ma := range truth.Mothers(a) {
		for _, mb := range truth.Mothers(b) {
			if ma == mb {
				return ma, true
			}
		}
	}
	return NoLabel, false
}

// BuildV0Labels returns one label per V0 record, in input order: the common
// truth mother of the two daughters when both are matched and share one.
func BuildV0Labels(records []V0Record, truth TruthSource) []int64 {
	labels := make([]int64, len(records))
	for i, rec := range records {
		labels[i] = NoLabel
		posP, okPos := truth.ParticleFor(rec.PosID)
		negP, okNeg := truth.ParticleFor(rec.NegID)
		if !okPos || !okNeg {
			continue
		}
		if mother, ok := commonMother(truth, posP, negP); ok {
			labels[i] = mother
		}
	}
	return labels
}

// BuildCascadeLabels returns one label per cascade record, in input order.
// The daughters must share a truth mother (the V0), and that mother's own
// mother must match the bachelor's mother (the cascade).
func BuildCascadeLabels(records []CascadeRecord, truth TruthSource) []int64 {
	labels := make([]int64, len(records))
	for i, rec := range records {
		labels[i] = NoLabel
		posP, okPos := truth.ParticleFor(rec.PosID)
		negP, okNeg := truth.ParticleFor(rec.NegID)
		bachP, okBach := truth.ParticleFor(rec.BachelorID)
		if !okPos || !okNeg || !okBach {
			continue
		}
		v0Mother, ok := commonMother(truth, posP, negP)
		if !ok {
			continue
		}
		// One level up: the V0's mother against the bachelor's mother.
		if cascMother, ok := commonMother(truth, v0Mother, bachP); ok {
			labels[i] = cascMother
		}
	}
	return labels
}
