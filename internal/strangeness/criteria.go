package strangeness

// Gate criteria counters, the analog of the builder's per-criterion
// histograms: one monotonic counter per gate, incremented when a candidate
// passes that gate, plus a separate channel for numerically unstable fits.
// Purely observational; the pipelines never read them back.

// V0Criterion indexes the V0 gate counters in pipeline order.
type V0Criterion int

const (
	V0Considered V0Criterion = iota
	V0RefitOK
	V0CrossedRowsOK
	V0DCAToPVOK
	V0FitOK
	V0DCADaughtersOK
	V0CosPAOK
	V0RadiusOK // last gate: equals the number of accepted V0s
	numV0Criteria
)

var v0CriterionNames = [numV0Criteria]string{
	"considered",
	"refit",
	"crossed_rows",
	"dca_to_pv",
	"fit",
	"dca_daughters",
	"cos_pa",
	"radius",
}

func (c V0Criterion) String() string { return v0CriterionNames[c] }

// CascadeCriterion indexes the cascade gate counters in pipeline order.
type CascadeCriterion int

const (
	CascConsidered CascadeCriterion = iota
	CascBachelorDCAOK
	CascMassWindowOK
	CascFitOK
	CascRadiusOK
	CascDCADaughtersOK // last gate: equals the number of accepted cascades
	numCascCriteria
)

var cascCriterionNames = [numCascCriteria]string{
	"considered",
	"bachelor_dca",
	"mass_window",
	"fit",
	"radius",
	"dca_daughters",
}

func (c CascadeCriterion) String() string { return cascCriterionNames[c] }

// Counters holds the diagnostic counters for one builder. Single-threaded
// like the rest of the pipeline; no locking.
type Counters struct {
	events          uint64
	v0              [numV0Criteria]uint64
	casc            [numCascCriteria]uint64
	v0FitAttempts   uint64
	cascFitAttempts uint64
	unstableFits    uint64
}

func (c *Counters) CountEvent()                      { c.events++ }
func (c *Counters) CountV0(cr V0Criterion)           { c.v0[cr]++ }
func (c *Counters) CountCascade(cr CascadeCriterion) { c.casc[cr]++ }
func (c *Counters) CountV0FitAttempt()               { c.v0FitAttempts++ }
func (c *Counters) CountCascadeFitAttempt()          { c.cascFitAttempts++ }
func (c *Counters) CountUnstableFit()                { c.unstableFits++ }

func (c *Counters) Events() uint64                          { return c.events }
func (c *Counters) V0Count(cr V0Criterion) uint64           { return c.v0[cr] }
func (c *Counters) CascadeCount(cr CascadeCriterion) uint64 { return c.casc[cr] }
func (c *Counters) V0FitAttempts() uint64                   { return c.v0FitAttempts }
func (c *Counters) CascadeFitAttempts() uint64              { return c.cascFitAttempts }
func (c *Counters) UnstableFits() uint64                    { return c.unstableFits }

// GateCount is one labelled counter value in a snapshot.
type GateCount struct {
	Name  string
	Count uint64
}

// Snapshot is a plain copy of all counters for reporting and plotting.
type Snapshot struct {
	Events          uint64
	V0Gates         []GateCount
	CascadeGates    []GateCount
	V0FitAttempts   uint64
	CascFitAttempts uint64
	UnstableFits    uint64
}

// Snapshot returns a copy of the current counter values.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		Events:          c.events,
		V0FitAttempts:   c.v0FitAttempts,
		CascFitAttempts: c.cascFitAttempts,
		UnstableFits:    c.unstableFits,
	}
	for i, n := range v0CriterionNames {
		s.V0Gates = append(s.V0Gates, GateCount{Name: n, Count: c.v0[i]})
	}
	for i, n := range cascCriterionNames {
		s.CascadeGates = append(s.CascadeGates, GateCount{Name: n, Count: c.casc[i]})
	}
	return s
}
