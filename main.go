package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/strangeness.report/internal/conditions"
	"github.com/banshee-data/strangeness.report/internal/config"
	"github.com/banshee-data/strangeness.report/internal/monitoring"
	"github.com/banshee-data/strangeness.report/internal/strangeness"
	"github.com/banshee-data/strangeness.report/internal/strangeness/monitor"
	"github.com/banshee-data/strangeness.report/internal/strangeness/store"
	"github.com/banshee-data/strangeness.report/internal/version"
)

var (
	eventsFile = flag.String("events", "", "Replay events file (JSON)")
	dbFile     = flag.String("db", "strangeness.db", "Output sqlite database")
	mode       = flag.String("mode", "current", "Processing mode: legacy or current")
	cascades   = flag.Bool("cascades", true, "Build cascade candidates")
	v0Covs     = flag.Bool("v0-covs", false, "Emit V0 parent covariances")
	cascCovs   = flag.Bool("casc-covs", false, "Emit cascade parent covariances")
	bzOverride = flag.Float64("bz", conditions.BzAuto, "Override magnetic field (kG); leave at default to use run conditions")
	tuningFile = flag.String("tuning", "", "Optional tuning overrides file (JSON)")
	migrateDir = flag.String("migrations", "migrations", "Apply schema migrations from this directory (empty to rely on the inline schema)")
	plotDir    = flag.String("plot-dir", "", "If set, write diagnostic plots under this directory")
	quiet      = flag.Bool("quiet", false, "Suppress per-candidate diagnostics")
)

func main() {
	flag.Parse()

	if *quiet {
		monitoring.SetLogger(nil)
	}

	if *eventsFile == "" {
		log.Fatal("an events file is required (-events)")
	}

	cfg := strangeness.DefaultBuilderConfig()
	switch *mode {
	case "legacy":
		cfg.ProcessLegacy = true
		cfg.ProcessCurrent = false
	case "current":
		cfg.ProcessCurrent = true
		cfg.ProcessLegacy = false
	default:
		log.Fatalf("unknown mode %q (want legacy or current)", *mode)
	}
	cfg.ProduceCascades = *cascades
	cfg.ProduceV0Covariances = *v0Covs
	cfg.ProduceCascadeCovariances = *cascCovs
	cfg.BzOverride = *bzOverride

	if *tuningFile != "" {
		tuning, err := config.LoadBuilderTuning(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning: %v", err)
		}
		tuning.Apply(&cfg)
	}

	replay, err := strangeness.LoadReplayFile(*eventsFile)
	if err != nil {
		log.Fatalf("failed to load events: %v", err)
	}

	sink, err := store.NewStore(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer sink.Close()

	if *migrateDir != "" {
		if _, statErr := os.Stat(*migrateDir); statErr != nil {
			log.Printf("migrations directory %q not found, relying on the inline schema", *migrateDir)
		} else {
			if err := sink.MigrateUp(*migrateDir); err != nil {
				log.Fatalf("failed to apply migrations: %v", err)
			}
			ver, dirty, err := sink.MigrateVersion(*migrateDir)
			if err != nil {
				log.Fatalf("failed to read migration version: %v", err)
			}
			log.Printf("schema at migration version %d (dirty=%v)", ver, dirty)
		}
	}

	builder, err := strangeness.NewBuilder(cfg, replay.Resolver, sink)
	if err != nil {
		log.Fatalf("failed to configure builder: %v", err)
	}

	log.Printf("strangeness builder %s (%s)", version.Version, version.GitSHA)
	log.Printf("session %s: processing %d events from %s", sink.SessionID(), len(replay.Events), *eventsFile)

	for i := range replay.Events {
		ev := &replay.Events[i]
		if err := sink.RecordEvent(ev.Collision); err != nil {
			log.Fatalf("failed to record event header: %v", err)
		}
		if err := builder.ProcessEvent(ev); err != nil {
			log.Fatalf("event %d (collision %d): %v", i, ev.Collision.ID, err)
		}
	}

	snap := builder.Counters().Snapshot()
	logSummary(snap)

	if *plotDir != "" {
		if err := generatePlots(sink, snap); err != nil {
			log.Fatalf("failed to generate plots: %v", err)
		}
	}
}

func logSummary(snap strangeness.Snapshot) {
	log.Printf("processed %d events", snap.Events)
	for _, g := range snap.V0Gates {
		log.Printf("  v0 %-22s %d", g.Name, g.Count)
	}
	for _, g := range snap.CascadeGates {
		log.Printf("  cascade %-17s %d", g.Name, g.Count)
	}
	log.Printf("fit attempts: %d v0, %d cascade (%d numerically unstable)",
		snap.V0FitAttempts, snap.CascFitAttempts, snap.UnstableFits)
}

func generatePlots(s *store.Store, snap strangeness.Snapshot) error {
	outDir := monitor.MakePlotOutputDir(*plotDir, *eventsFile)
	cp := monitor.NewCriteriaPlotter()
	if err := cp.Start(outDir); err != nil {
		return err
	}

	v0s, err := s.V0s()
	if err != nil {
		return fmt.Errorf("read back v0s: %w", err)
	}
	for _, rec := range v0s {
		cp.SampleV0(rec)
	}

	cascRecs, err := s.Cascades()
	if err != nil {
		return fmt.Errorf("read back cascades: %w", err)
	}
	for _, rec := range cascRecs {
		cp.SampleCascade(rec)
	}
	cp.Stop()

	n, err := cp.GeneratePlots(snap)
	if err != nil {
		return err
	}
	log.Printf("wrote %d plots to %s", n, outDir)
	return nil
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -events <file.json> [options]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}
