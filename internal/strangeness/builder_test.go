package strangeness

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/strangeness.report/internal/conditions"
	"github.com/banshee-data/strangeness.report/internal/kinematics"
)

func TestNewBuilderModeValidation(t *testing.T) {
	sink := &MemorySink{}

	cfg := DefaultBuilderConfig()
	cfg.ProcessCurrent = false
	if _, err := NewBuilder(cfg, testResolver(), sink); !errors.Is(err, ErrNoProcessingMode) {
		t.Errorf("no mode: expected ErrNoProcessingMode, got %v", err)
	}

	cfg = DefaultBuilderConfig()
	cfg.ProcessLegacy = true
	if _, err := NewBuilder(cfg, testResolver(), sink); !errors.Is(err, ErrConflictingModes) {
		t.Errorf("both modes: expected ErrConflictingModes, got %v", err)
	}

	if _, err := NewBuilder(DefaultBuilderConfig(), testResolver(), sink); err != nil {
		t.Errorf("default config must validate, got %v", err)
	}
}

func TestProcessEventEmitsLambdaAndCascade(t *testing.T) {
	sink := &MemorySink{}
	b := mustBuilder(t, testBuilderConfig(), sink)

	if err := b.ProcessEvent(lambdaEvent()); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	if len(sink.V0s) != 1 {
		t.Fatalf("expected 1 V0 record, got %d", len(sink.V0s))
	}
	v0 := sink.V0s[0]
	if v0.V0ID != 10 || v0.PosID != 1 || v0.NegID != 2 || v0.CollisionID != 7 {
		t.Errorf("V0 identities wrong: %+v", v0)
	}
	if math.Abs(v0.MassLambda-kinematics.MassLambda) > 1e-3 {
		t.Errorf("emitted Lambda mass %.6f not within 1 MeV of %.6f", v0.MassLambda, kinematics.MassLambda)
	}

	// Invariants on emitted records.
	if v0.CosPA < 0.995 {
		t.Errorf("emitted V0 violates the pointing invariant: cosPA=%v", v0.CosPA)
	}
	if v0.Radius < 0.5 {
		t.Errorf("emitted V0 violates the radius invariant: radius=%v", v0.Radius)
	}

	if len(sink.Cascades) != 1 {
		t.Fatalf("expected 1 cascade record, got %d", len(sink.Cascades))
	}
	casc := sink.Cascades[0]
	if casc.CascadeID != 20 || casc.V0ID != 10 || casc.BachelorID != 3 {
		t.Errorf("cascade identities wrong: %+v", casc)
	}
	if casc.Charge != -1 {
		t.Errorf("cascade charge: got %d want -1", casc.Charge)
	}
	if casc.PosID != 1 || casc.NegID != 2 {
		t.Errorf("cascade must carry the V0 daughter identities: %+v", casc)
	}
	// The V0 leg of the cascade record repeats the accepted V0 geometry.
	if casc.V0X != v0.X || casc.V0Y != v0.Y || casc.V0Z != v0.Z {
		t.Errorf("cascade V0 vertex differs from the emitted V0 record")
	}
}

func TestProcessEventIdempotent(t *testing.T) {
	run := func() *MemorySink {
		sink := &MemorySink{}
		b := mustBuilder(t, testBuilderConfig(), sink)
		if err := b.ProcessEvent(lambdaEvent()); err != nil {
			t.Fatalf("ProcessEvent: %v", err)
		}
		return sink
	}

	first := run()
	second := run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("identical inputs must give identical candidates (-first +second):\n%s", diff)
	}
}

func TestProcessEventCascadesDisabled(t *testing.T) {
	cfg := testBuilderConfig()
	cfg.ProduceCascades = false
	sink := &MemorySink{}
	b := mustBuilder(t, cfg, sink)

	if err := b.ProcessEvent(lambdaEvent()); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	if len(sink.V0s) != 1 {
		t.Errorf("V0 building must be unaffected, got %d records", len(sink.V0s))
	}
	if len(sink.Cascades) != 0 {
		t.Errorf("cascade output disabled but %d records emitted", len(sink.Cascades))
	}
	// The entire cascade stage is skipped: zero fitter invocations even
	// though a candidate bachelor is present.
	if got := b.Counters().CascadeFitAttempts(); got != 0 {
		t.Errorf("expected 0 cascade fitter invocations, got %d", got)
	}
	if got := b.Counters().CascadeCount(CascConsidered); got != 0 {
		t.Errorf("expected 0 cascades considered, got %d", got)
	}
}

func TestProcessEventCovarianceStreams(t *testing.T) {
	cfg := testBuilderConfig()
	cfg.ProduceV0Covariances = true
	cfg.ProduceCascadeCovariances = true
	sink := &MemorySink{}
	b := mustBuilder(t, cfg, sink)

	if err := b.ProcessEvent(lambdaEvent()); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	// Positional join: one covariance row per primary record, same order.
	if len(sink.V0Covs) != len(sink.V0s) {
		t.Errorf("V0 covariance rows (%d) must match V0 rows (%d)", len(sink.V0Covs), len(sink.V0s))
	}
	if len(sink.CascadeCovs) != len(sink.Cascades) {
		t.Errorf("cascade covariance rows (%d) must match cascade rows (%d)",
			len(sink.CascadeCovs), len(sink.Cascades))
	}
}

func TestProcessEventUnresolvableRunIsFatal(t *testing.T) {
	sink := &MemorySink{}
	cfg := testBuilderConfig()
	b, err := NewBuilder(cfg, conditions.MapResolver{}, sink)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	if err := b.ProcessEvent(lambdaEvent()); err == nil {
		t.Fatal("expected a fatal error for an unresolvable run")
	}
	if len(sink.V0s) != 0 {
		t.Errorf("no records may be emitted without resolved conditions")
	}
}

func TestProcessEventConditionsCachedPerRun(t *testing.T) {
	res := &countingResolver{params: conditions.Params{Bz: testBz}}
	sink := &MemorySink{}
	b, err := NewBuilder(testBuilderConfig(), res, sink)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	ev := lambdaEvent()
	for i := 0; i < 3; i++ {
		if err := b.ProcessEvent(ev); err != nil {
			t.Fatalf("ProcessEvent: %v", err)
		}
	}
	if res.calls != 1 {
		t.Errorf("expected a single conditions fetch for one run, got %d", res.calls)
	}

	ev.Collision.RunNumber++
	if err := b.ProcessEvent(ev); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if res.calls != 2 {
		t.Errorf("expected a re-fetch on run change, got %d calls", res.calls)
	}
}

type countingResolver struct {
	calls  int
	params conditions.Params
}

func (r *countingResolver) Resolve(runNumber int, timestampNS int64) (conditions.Params, error) {
	r.calls++
	return r.params, nil
}

func TestProcessEventSkipsDanglingReferences(t *testing.T) {
	ev := lambdaEvent()
	ev.V0s = append(ev.V0s, V0Input{ID: 11, PosID: 98, NegID: 99})
	ev.Cascades = append(ev.Cascades, CascadeInput{ID: 21, V0ID: 10, BachelorID: 77})

	sink := &MemorySink{}
	b := mustBuilder(t, testBuilderConfig(), sink)
	if err := b.ProcessEvent(ev); err != nil {
		t.Fatalf("dangling references must not abort the event: %v", err)
	}
	if len(sink.V0s) != 1 || len(sink.Cascades) != 1 {
		t.Errorf("expected the valid candidates only, got %d V0s / %d cascades",
			len(sink.V0s), len(sink.Cascades))
	}
}
