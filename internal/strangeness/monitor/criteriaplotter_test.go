package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/strangeness.report/internal/strangeness"
)

func sampleCounters() strangeness.Snapshot {
	var c strangeness.Counters
	c.CountEvent()
	for i := 0; i < 10; i++ {
		c.CountV0(strangeness.V0Considered)
	}
	for i := 0; i < 4; i++ {
		c.CountV0(strangeness.V0CrossedRowsOK)
	}
	c.CountV0(strangeness.V0RadiusOK)
	c.CountCascade(strangeness.CascConsidered)
	return c.Snapshot()
}

func TestCriteriaPlotterGeneratesFiles(t *testing.T) {
	cp := NewCriteriaPlotter()
	dir := filepath.Join(t.TempDir(), "plots")
	if err := cp.Start(dir); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		cp.SampleV0(strangeness.V0Record{
			MassLambda:     1.1157 + float64(i)*1e-4,
			MassAntiLambda: 1.45 + float64(i)*1e-3,
			Radius:         1.0 + float64(i)*0.1,
		})
	}
	cp.SampleCascade(strangeness.CascadeRecord{Radius: 0.95})
	cp.Stop()

	n, err := cp.GeneratePlots(sampleCounters())
	if err != nil {
		t.Fatalf("GeneratePlots failed: %v", err)
	}
	// Two funnels plus four non-empty histograms.
	if n != 6 {
		t.Errorf("expected 6 plots, got %d", n)
	}

	for _, name := range []string{
		"v0_funnel.png", "cascade_funnel.png",
		"mass_lambda.png", "mass_antilambda.png",
		"v0_radius.png", "cascade_radius.png",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected plot file %s: %v", name, err)
		}
	}
}

func TestCriteriaPlotterSkipsEmptyHistograms(t *testing.T) {
	cp := NewCriteriaPlotter()
	if err := cp.Start(filepath.Join(t.TempDir(), "plots")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	n, err := cp.GeneratePlots(sampleCounters())
	if err != nil {
		t.Fatalf("GeneratePlots failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected only the two funnels, got %d plots", n)
	}
}

func TestCriteriaPlotterIgnoresSamplesWhenStopped(t *testing.T) {
	cp := NewCriteriaPlotter()
	if err := cp.Start(t.TempDir()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cp.Stop()

	cp.SampleV0(strangeness.V0Record{MassLambda: 1.1157})
	if got := cp.SampleCount(); got != 0 {
		t.Errorf("expected no samples while stopped, got %d", got)
	}
}

func TestCriteriaPlotterRequiresStart(t *testing.T) {
	cp := NewCriteriaPlotter()
	if _, err := cp.GeneratePlots(sampleCounters()); err == nil {
		t.Error("expected error when generating plots without Start")
	}
}

func TestMakePlotOutputDir(t *testing.T) {
	got := MakePlotOutputDir("plots", "runs/pbpb_2024.json")
	if filepath.Dir(filepath.Dir(got)) != "plots" || filepath.Base(filepath.Dir(got)) != "pbpb_2024" {
		t.Errorf("unexpected output dir %q", got)
	}

	live := MakePlotOutputDir("plots", "")
	if filepath.Dir(live) != "plots" {
		t.Errorf("unexpected run dir %q", live)
	}
	if base := filepath.Base(live); len(base) < 4 || base[:4] != "run_" {
		t.Errorf("expected run_ prefix, got %q", live)
	}
}
