package strangeness

import (
	"errors"
	"fmt"

	"github.com/banshee-data/strangeness.report/internal/conditions"
	"github.com/banshee-data/strangeness.report/internal/monitoring"
	"github.com/banshee-data/strangeness.report/internal/track"
	"github.com/banshee-data/strangeness.report/internal/vertexer"
)

// Fatal configuration errors, raised at startup before any event is
// processed.
var (
	ErrNoProcessingMode = errors.New("strangeness: no processing mode selected")
	ErrConflictingModes = errors.New("strangeness: legacy and current processing modes are mutually exclusive")
)

// BuilderConfig selects the processing mode, the output streams, and the
// fit/selection parameters. Output enables are independent switches set by
// the orchestration layer; disabling cascades skips the whole cascade stage.
type BuilderConfig struct {
	// Exactly one of the two processing modes must be set.
	ProcessLegacy  bool // legacy data: daughters must pass the refit gate
	ProcessCurrent bool

	ProduceCascades           bool
	ProduceV0Covariances      bool
	ProduceCascadeCovariances bool

	// BzOverride replaces the resolved field unless it is at or below
	// conditions.BzAuto.
	BzOverride float64

	Fitter           vertexer.Config
	V0Selection      V0SelectorConfig
	CascadeSelection CascadeSelectorConfig
}

// DefaultBuilderConfig returns the standard configuration: current-data
// mode, cascades enabled, covariance streams disabled.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		ProcessCurrent:   true,
		ProduceCascades:  true,
		BzOverride:       conditions.BzAuto,
		Fitter:           vertexer.DefaultConfig(),
		V0Selection:      DefaultV0SelectorConfig(),
		CascadeSelection: DefaultCascadeSelectorConfig(),
	}
}

// Builder drives the per-event loop: resolve conditions, build V0s, then
// build the cascades associated with each accepted V0. Single-threaded; one
// event is fully processed before the next begins.
type Builder struct {
	cfg        BuilderConfig
	fitter     *vertexer.TwoProngFitter
	selector   *Selector
	conditions *conditions.Cache
	sink       RecordSink
	counters   Counters
}

// NewBuilder validates the configuration and wires the pipeline. Resolver
// failures and misconfiguration are fatal; see the package error variables.
func NewBuilder(cfg BuilderConfig, resolver conditions.Resolver, sink RecordSink) (*Builder, error) {
	if !cfg.ProcessLegacy && !cfg.ProcessCurrent {
		return nil, ErrNoProcessingMode
	}
	if cfg.ProcessLegacy && cfg.ProcessCurrent {
		return nil, ErrConflictingModes
	}

	b := &Builder{
		cfg:        cfg,
		fitter:     vertexer.NewTwoProngFitter(cfg.Fitter),
		conditions: conditions.NewCache(resolver, cfg.BzOverride),
		sink:       sink,
	}
	b.selector = NewSelector(cfg.V0Selection, cfg.CascadeSelection, cfg.ProcessLegacy, b.fitter, &b.counters)

	monitoring.Logf("strangeness: builder configured, legacy=%v cascades=%v v0Covs=%v cascCovs=%v",
		cfg.ProcessLegacy, cfg.ProduceCascades, cfg.ProduceV0Covariances, cfg.ProduceCascadeCovariances)
	return b, nil
}

// Counters returns the builder's diagnostic counters.
func (b *Builder) Counters() *Counters { return &b.counters }

// ProcessEvent runs the full candidate-building state machine for one
// event. Gate failures and failed fits are normal rejections; the returned
// error is reserved for unresolvable conditions and sink failures, both of
// which abort the run.
func (b *Builder) ProcessEvent(ev *Event) error {
	params, err := b.conditions.ResolveFor(ev.Collision.RunNumber, ev.Collision.TimestampNS)
	if err != nil {
		return fmt.Errorf("strangeness: resolving conditions for run %d: %w", ev.Collision.RunNumber, err)
	}
	if b.cfg.Fitter.MatCorrType != track.MatCorrNone && params.Material == nil {
		return fmt.Errorf("strangeness: material correction enabled but run %d resolved no material model", ev.Collision.RunNumber)
	}
	b.fitter.SetBz(params.Bz)
	b.fitter.SetMaterial(params.Material)

	b.counters.CountEvent()

	trackByID := make(map[int64]TrackInput, len(ev.Tracks))
	for _, t := range ev.Tracks {
		trackByID[t.ID] = t
	}

	var index *V0CascadeIndex
	if b.cfg.ProduceCascades {
		index = BuildV0CascadeIndex(ev.Cascades)
	}

	for _, v0in := range ev.V0s {
		pos, okPos := trackByID[v0in.PosID]
		neg, okNeg := trackByID[v0in.NegID]
		if !okPos || !okNeg {
			monitoring.Logf("strangeness: V0 %d references missing track (pos=%d neg=%d), skipped",
				v0in.ID, v0in.PosID, v0in.NegID)
			continue
		}

		cand, ok := b.selector.BuildV0(ev.Collision, v0in, pos, neg)
		if !ok {
			continue
		}

		if err := b.sink.EmitV0(v0RecordFrom(cand)); err != nil {
			return fmt.Errorf("strangeness: emitting V0 record: %w", err)
		}
		if b.cfg.ProduceV0Covariances {
			cov, _ := cand.Parent.CovXYZPxPyPz()
			if err := b.sink.EmitV0Covariance(CovarianceRecord{Elements: cov}); err != nil {
				return fmt.Errorf("strangeness: emitting V0 covariance: %w", err)
			}
		}

		if !b.cfg.ProduceCascades {
			continue
		}
		for _, cascIn := range index.CandidatesFor(v0in.ID) {
			bach, okBach := trackByID[cascIn.BachelorID]
			if !okBach {
				monitoring.Logf("strangeness: cascade %d references missing bachelor %d, skipped",
					cascIn.ID, cascIn.BachelorID)
				continue
			}

			cascCand, ok := b.selector.BuildCascade(ev.Collision, cand, cascIn, bach)
			if !ok {
				continue
			}

			if err := b.sink.EmitCascade(cascadeRecordFrom(cascCand, cand)); err != nil {
				return fmt.Errorf("strangeness: emitting cascade record: %w", err)
			}
			if b.cfg.ProduceCascadeCovariances {
				cov, _ := cascCand.Parent.CovXYZPxPyPz()
				if err := b.sink.EmitCascadeCovariance(CovarianceRecord{Elements: cov}); err != nil {
					return fmt.Errorf("strangeness: emitting cascade covariance: %w", err)
				}
			}
		}
	}
	return nil
}

func v0RecordFrom(c V0Candidate) V0Record {
	return V0Record{
		V0ID:           c.V0ID,
		PosID:          c.PosID,
		NegID:          c.NegID,
		CollisionID:    c.CollisionID,
		X:              c.Vertex[0],
		Y:              c.Vertex[1],
		Z:              c.Vertex[2],
		PxPos:          c.MomPos[0],
		PyPos:          c.MomPos[1],
		PzPos:          c.MomPos[2],
		PxNeg:          c.MomNeg[0],
		PyNeg:          c.MomNeg[1],
		PzNeg:          c.MomNeg[2],
		DCADaughters:   c.DCADaughters,
		DCAPosToPV:     c.DCAPosToPV,
		DCANegToPV:     c.DCANegToPV,
		CosPA:          c.CosPA,
		Radius:         c.Radius,
		MassLambda:     c.MassLambda,
		MassAntiLambda: c.MassAntiLambda,
	}
}

func cascadeRecordFrom(c CascadeCandidate, v0 V0Candidate) CascadeRecord {
	return CascadeRecord{
		CascadeID:        c.CascadeID,
		V0ID:             c.V0ID,
		PosID:            v0.PosID,
		NegID:            v0.NegID,
		BachelorID:       c.BachelorID,
		CollisionID:      c.CollisionID,
		Charge:           c.Charge,
		X:                c.Vertex[0],
		Y:                c.Vertex[1],
		Z:                c.Vertex[2],
		V0X:              v0.Vertex[0],
		V0Y:              v0.Vertex[1],
		V0Z:              v0.Vertex[2],
		PxPos:            v0.MomPos[0],
		PyPos:            v0.MomPos[1],
		PzPos:            v0.MomPos[2],
		PxNeg:            v0.MomNeg[0],
		PyNeg:            v0.MomNeg[1],
		PzNeg:            v0.MomNeg[2],
		PxBach:           c.MomBachelor[0],
		PyBach:           c.MomBachelor[1],
		PzBach:           c.MomBachelor[2],
		DCAV0Daughters:   v0.DCADaughters,
		DCACascDaughters: c.DCADaughters,
		DCAPosToPV:       v0.DCAPosToPV,
		DCANegToPV:       v0.DCANegToPV,
		DCABachelorToPV:  c.DCABachelorToPV,
		Radius:           c.Radius,
	}
}
