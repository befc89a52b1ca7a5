// Package conditions resolves time-varying detector parameters (magnetic
// field, material model) keyed by run number, with an explicit per-run cache
// so a value is fetched once per run and reused until the run changes.
package conditions

import (
	"fmt"
	"sort"

	"github.com/banshee-data/strangeness.report/internal/monitoring"
	"github.com/banshee-data/strangeness.report/internal/track"
)

// BzAuto is the sentinel override value meaning "use the resolved field".
const BzAuto = -999.0

// bzAutoThreshold separates real overrides from the automatic sentinel.
// Any override below this is treated as automatic, so values near BzAuto
// never become a physical field.
const bzAutoThreshold = -990.0

// Params holds the resolved conditions for one run.
type Params struct {
	Bz       float64 // solenoid field, kG
	MatMode  track.MatCorrType
	Material track.Material
}

// Resolver fetches conditions for a run. A failed resolve is fatal for the
// run: the caller must not continue processing without a field value.
type Resolver interface {
	Resolve(runNumber int, timestampNS int64) (Params, error)
}

// StaticResolver returns the same parameters for every run. Used for replay
// files carrying a single field value and in tests.
type StaticResolver struct {
	Params Params
}

func (r StaticResolver) Resolve(runNumber int, timestampNS int64) (Params, error) {
	return r.Params, nil
}

// MapResolver resolves from an in-memory run table, as populated from a
// replay file header. Unknown runs fail.
type MapResolver map[int]Params

func (r MapResolver) Resolve(runNumber int, timestampNS int64) (Params, error) {
	p, ok := r[runNumber]
	if !ok {
		return Params{}, fmt.Errorf("conditions: no parameters for run %d", runNumber)
	}
	return p, nil
}

// Cache wraps a Resolver and re-fetches only when the run number changes.
// Not safe for concurrent use; processing is single-threaded per unit.
type Cache struct {
	resolver Resolver
	override float64 // Bz override, BzAuto for none

	run    int
	loaded bool
	params Params
}

// NewCache returns a cache over resolver. Any bzOverride below -990 (for
// example BzAuto) means "take the resolved field"; any other value replaces
// the resolved Bz while keeping the resolved material model.
func NewCache(resolver Resolver, bzOverride float64) *Cache {
	return &Cache{resolver: resolver, override: bzOverride}
}

// ResolveFor returns the conditions for the given run, fetching through the
// underlying resolver only when the run differs from the cached one.
func (c *Cache) ResolveFor(runNumber int, timestampNS int64) (Params, error) {
	if c.loaded && c.run == runNumber {
		return c.params, nil
	}
	p, err := c.resolver.Resolve(runNumber, timestampNS)
	if err != nil {
		return Params{}, err
	}
	if c.override >= bzAutoThreshold {
		p.Bz = c.override
	}
	c.run = runNumber
	c.loaded = true
	c.params = p
	monitoring.Logf("conditions: run %d resolved, Bz=%.3f kG matMode=%d", runNumber, p.Bz, p.MatMode)
	return p, nil
}

// Invalidate drops the cached entry so the next ResolveFor re-fetches.
func (c *Cache) Invalidate() {
	c.loaded = false
}

// SlabMaterial is a constant energy-loss model, the MatCorrGeo analog of a
// uniform material budget.
type SlabMaterial struct {
	LossPerCm float64 // GeV/c per cm
}

func (m SlabMaterial) EnergyLossPerCm(radius float64) float64 { return m.LossPerCm }

// RadialBand is one entry of a material lookup table: the loss applies out
// to RMax cm.
type RadialBand struct {
	RMax      float64
	LossPerCm float64
}

// LUTMaterial is a radial lookup table of energy-loss values, the MatCorrLUT
// analog. Bands must cover increasing radii; radii beyond the last band are
// treated as field cage / vacuum with zero loss.
type LUTMaterial struct {
	bands []RadialBand
}

// NewLUTMaterial returns a lookup-table material. Bands are sorted by RMax.
func NewLUTMaterial(bands []RadialBand) *LUTMaterial {
	sorted := make([]RadialBand, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RMax < sorted[j].RMax })
	return &LUTMaterial{bands: sorted}
}

func (m *LUTMaterial) EnergyLossPerCm(radius float64) float64 {
	for _, b := range m.bands {
		if radius <= b.RMax {
			return b.LossPerCm
		}
	}
	return 0
}
