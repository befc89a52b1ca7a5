// Package strangeness builds composite decay-vertex candidates (V0s and
// cascades) from input trajectory collections: gate pipelines over the
// two-prong vertex fit, the V0-to-cascade association index, and the
// per-event orchestrator that emits persisted records.
package strangeness

import (
	"github.com/banshee-data/strangeness.report/internal/kinematics"
	"github.com/banshee-data/strangeness.report/internal/track"
)

// TrackFlagRefit marks a daughter that passed the detector refit, required
// by the legacy-data quality gate.
const TrackFlagRefit uint8 = 0x1

// TrackInput is one input trajectory: a stable identity, the quality fields
// read by the selector gates, and a propagation-capable state.
type TrackInput struct {
	ID          int64
	CrossedRows int     // detector hit-count metric
	DCAXY       float64 // signed transverse DCA to the primary vertex (cm)
	Flags       uint8
	State       track.TrackState
}

// Collision is the per-event reference: the primary vertex plus the run
// identity used to resolve conditions.
type Collision struct {
	ID          int64
	RunNumber   int
	TimestampNS int64
	Vertex      kinematics.Vec3
}

// V0Input declares a daughter pair to attempt as a V0.
type V0Input struct {
	ID    int64
	PosID int64
	NegID int64
}

// CascadeInput declares a V0 plus bachelor combination to attempt as a
// cascade. V0ID names the parent V0Input.
type CascadeInput struct {
	ID         int64
	V0ID       int64
	BachelorID int64
}

// Event is one processing unit: a collision with its trajectory and
// candidate-declaration collections.
type Event struct {
	Collision Collision
	Tracks    []TrackInput
	V0s       []V0Input
	Cascades  []CascadeInput
}

// V0Candidate is the transient result of one daughter-pair attempt,
// populated incrementally as gates pass and discarded on any failure.
type V0Candidate struct {
	V0ID        int64
	PosID       int64
	NegID       int64
	CollisionID int64

	Vertex kinematics.Vec3
	MomPos kinematics.Vec3
	MomNeg kinematics.Vec3

	DCAPosToPV   float64
	DCANegToPV   float64
	DCADaughters float64
	CosPA        float64
	Radius       float64

	MassLambda     float64
	MassAntiLambda float64

	// Parent is the fitted two-body trajectory, reused unmodified as the
	// V0 input of cascade fits.
	Parent track.TrackState
}

// CascadeCandidate is the transient result of one V0+bachelor attempt.
type CascadeCandidate struct {
	CascadeID   int64
	V0ID        int64
	BachelorID  int64
	CollisionID int64
	Charge      int // sign of the bachelor curvature

	Vertex      kinematics.Vec3
	MomBachelor kinematics.Vec3

	DCADaughters    float64
	DCABachelorToPV float64
	Radius          float64

	// Parent is exported for further decay-chain use.
	Parent track.TrackState
}

// V0Record is the persisted row for an accepted V0, immutable once emitted.
type V0Record struct {
	V0ID        int64
	PosID       int64
	NegID       int64
	CollisionID int64

	X, Y, Z                float64
	PxPos, PyPos, PzPos    float64
	PxNeg, PyNeg, PzNeg    float64
	DCADaughters           float64
	DCAPosToPV, DCANegToPV float64
	CosPA                  float64
	Radius                 float64
	MassLambda             float64
	MassAntiLambda         float64
}

// CascadeRecord is the persisted row for an accepted cascade.
type CascadeRecord struct {
	CascadeID   int64
	V0ID        int64
	PosID       int64 // V0 daughters, carried for truth association
	NegID       int64
	BachelorID  int64
	CollisionID int64
	Charge      int

	X, Y, Z                float64
	V0X, V0Y, V0Z          float64
	PxPos, PyPos, PzPos    float64
	PxNeg, PyNeg, PzNeg    float64
	PxBach, PyBach, PzBach float64

	DCAV0Daughters   float64
	DCACascDaughters float64
	DCAPosToPV       float64
	DCANegToPV       float64
	DCABachelorToPV  float64
	Radius           float64
}

// CovarianceRecord carries the packed parent-track covariance of an
// accepted candidate. Covariance rows are emitted at the same position as
// their primary record: a positional join, not a key join.
type CovarianceRecord struct {
	Elements [track.CovSize]float64
}

// RecordSink receives accepted candidates in acceptance order. Sink errors
// are I/O failures and abort the run; rejections never reach the sink.
type RecordSink interface {
	EmitV0(rec V0Record) error
	EmitV0Covariance(rec CovarianceRecord) error
	EmitCascade(rec CascadeRecord) error
	EmitCascadeCovariance(rec CovarianceRecord) error
}

// MemorySink accumulates records in slices. Used by tests and small replay
// runs that post-process candidates in memory.
type MemorySink struct {
	V0s         []V0Record
	V0Covs      []CovarianceRecord
	Cascades    []CascadeRecord
	CascadeCovs []CovarianceRecord
}

func (s *MemorySink) EmitV0(rec V0Record) error {
	s.V0s = append(s.V0s, rec)
	return nil
}

func (s *MemorySink) EmitV0Covariance(rec CovarianceRecord) error {
	s.V0Covs = append(s.V0Covs, rec)
	return nil
}

func (s *MemorySink) EmitCascade(rec CascadeRecord) error {
	s.Cascades = append(s.Cascades, rec)
	return nil
}

func (s *MemorySink) EmitCascadeCovariance(rec CovarianceRecord) error {
	s.CascadeCovs = append(s.CascadeCovs, rec)
	return nil
}
