// Package monitor renders builder diagnostics as PNG plots.
package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/strangeness.report/internal/strangeness"
)

// CriteriaPlotter accumulates accepted candidates over a run and, together
// with a final counter snapshot, renders selection funnel bar charts and
// invariant mass histograms after the run.
type CriteriaPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string

	massLambda     []float64
	massAntiLambda []float64
	v0Radii        []float64
	cascRadii      []float64
}

// NewCriteriaPlotter creates a plotter. Call Start before sampling.
func NewCriteriaPlotter() *CriteriaPlotter {
	return &CriteriaPlotter{}
}

// Start initializes the plotter for a new run.
// outputDir should be a timestamped directory (e.g., "plots/replay/20260830_101500")
func (cp *CriteriaPlotter) Start(outputDir string) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	cp.outputDir = outputDir
	cp.enabled = true
	cp.massLambda = nil
	cp.massAntiLambda = nil
	cp.v0Radii = nil
	cp.cascRadii = nil
	return nil
}

// Stop disables sampling. Call GeneratePlots() to produce output files.
func (cp *CriteriaPlotter) Stop() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (cp *CriteriaPlotter) IsEnabled() bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.enabled
}

// SampleV0 records an accepted V0 for the mass and radius histograms.
func (cp *CriteriaPlotter) SampleV0(rec strangeness.V0Record) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if !cp.enabled {
		return
	}
	cp.massLambda = append(cp.massLambda, rec.MassLambda)
	cp.massAntiLambda = append(cp.massAntiLambda, rec.MassAntiLambda)
	cp.v0Radii = append(cp.v0Radii, rec.Radius)
}

// SampleCascade records an accepted cascade.
func (cp *CriteriaPlotter) SampleCascade(rec strangeness.CascadeRecord) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if !cp.enabled {
		return
	}
	cp.cascRadii = append(cp.cascRadii, rec.Radius)
}

// SampleCount returns the number of accepted V0s recorded so far.
func (cp *CriteriaPlotter) SampleCount() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.massLambda)
}

// GeneratePlots renders the selection funnels and histograms as PNG files.
// Returns the number of plots generated and any error.
func (cp *CriteriaPlotter) GeneratePlots(snap strangeness.Snapshot) (int, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}

	plotCount := 0

	if err := cp.generateFunnel("V0 Selection Funnel", "v0_funnel.png", snap.V0Gates); err != nil {
		return plotCount, err
	}
	plotCount++

	if err := cp.generateFunnel("Cascade Selection Funnel", "cascade_funnel.png", snap.CascadeGates); err != nil {
		return plotCount, err
	}
	plotCount++

	histograms := []struct {
		title, file, xlabel string
		values              []float64
	}{
		{"Lambda Hypothesis Mass", "mass_lambda.png", "m(p, pi) (GeV/c^2)", cp.massLambda},
		{"Anti-Lambda Hypothesis Mass", "mass_antilambda.png", "m(pi, p) (GeV/c^2)", cp.massAntiLambda},
		{"V0 Decay Radius", "v0_radius.png", "R (cm)", cp.v0Radii},
		{"Cascade Decay Radius", "cascade_radius.png", "R (cm)", cp.cascRadii},
	}
	for _, h := range histograms {
		if len(h.values) == 0 {
			continue
		}
		if err := cp.generateHistogram(h.title, h.file, h.xlabel, h.values); err != nil {
			return plotCount, err
		}
		plotCount++
	}

	return plotCount, nil
}

// generateFunnel renders one ordered gate-counter series as a bar chart.
func (cp *CriteriaPlotter) generateFunnel(title, filename string, gates []strangeness.GateCount) error {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Candidates"

	values := make(plotter.Values, len(gates))
	labels := make([]string, len(gates))
	for i, g := range gates {
		values[i] = float64(g.Count)
		labels[i] = g.Name
	}

	bars, err := plotter.NewBarChart(values, vg.Points(30))
	if err != nil {
		return fmt.Errorf("funnel bars: %w", err)
	}
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = color.RGBA{R: 60, G: 120, B: 200, A: 255}

	p.Add(bars)
	p.NominalX(labels...)
	p.X.Tick.Label.Rotation = 0.6
	p.X.Tick.Label.XAlign = -0.9

	out := filepath.Join(cp.outputDir, filename)
	if err := p.Save(10*vg.Inch, 5*vg.Inch, out); err != nil {
		return fmt.Errorf("save funnel plot: %w", err)
	}
	return nil
}

func (cp *CriteriaPlotter) generateHistogram(title, filename, xlabel string, values []float64) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = "Entries"

	vals := make(plotter.Values, len(values))
	copy(vals, values)

	bins := 50
	if len(values) < bins {
		bins = len(values)
	}
	hist, err := plotter.NewHist(vals, bins)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	hist.FillColor = color.RGBA{R: 200, G: 90, B: 60, A: 255}
	p.Add(hist)

	out := filepath.Join(cp.outputDir, filename)
	if err := p.Save(8*vg.Inch, 5*vg.Inch, out); err != nil {
		return fmt.Errorf("save histogram: %w", err)
	}
	return nil
}

// GetOutputDir returns the current output directory for plots.
func (cp *CriteriaPlotter) GetOutputDir() string {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.outputDir
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory path for plots.
// For replay files: <baseDir>/<events_basename>/<timestamp>
// Otherwise: <baseDir>/run_<timestamp>
func MakePlotOutputDir(baseDir, eventsFile string) string {
	ts := FormatTimestamp(time.Now())
	if eventsFile != "" {
		base := filepath.Base(eventsFile)
		ext := filepath.Ext(base)
		name := base[:len(base)-len(ext)]
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "run_"+ts)
}
