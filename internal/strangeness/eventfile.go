package strangeness

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/strangeness.report/internal/conditions"
	"github.com/banshee-data/strangeness.report/internal/kinematics"
	"github.com/banshee-data/strangeness.report/internal/track"
)

// Replay-file ingestion: a JSON file carrying per-run conditions plus the
// event collections. This is the thin trajectory-source stub in front of
// the builder; production deployments substitute their own source.

// maxEventFileSize bounds replay files (64MB).
const maxEventFileSize = 64 * 1024 * 1024

// ReplayData is a decoded replay file: the events and a resolver built from
// the file's run table.
type ReplayData struct {
	Events   []Event
	Resolver conditions.MapResolver
}

type replayFile struct {
	Runs   map[string]replayRun `json:"runs"`
	Events []replayEvent        `json:"events"`
}

type replayRun struct {
	Bz        float64 `json:"bz"`
	MatMode   int     `json:"mat_mode,omitempty"`
	LossPerCm float64 `json:"loss_per_cm,omitempty"`
}

type replayEvent struct {
	CollisionID int64     `json:"collision_id"`
	RunNumber   int       `json:"run_number"`
	TimestampNS int64     `json:"timestamp_ns"`
	Vertex      []float64 `json:"vertex"`

	Tracks   []replayTrack   `json:"tracks"`
	V0s      []replayV0      `json:"v0s"`
	Cascades []replayCascade `json:"cascades"`
}

type replayTrack struct {
	ID          int64     `json:"id"`
	CrossedRows int       `json:"crossed_rows"`
	DCAXY       float64   `json:"dca_xy"`
	Flags       uint8     `json:"flags,omitempty"`
	Charge      int       `json:"charge"`
	Position    []float64 `json:"position"`
	Momentum    []float64 `json:"momentum"`
	Covariance  []float64 `json:"covariance,omitempty"`
}

type replayV0 struct {
	ID    int64 `json:"id"`
	PosID int64 `json:"pos_id"`
	NegID int64 `json:"neg_id"`
}

type replayCascade struct {
	ID         int64 `json:"id"`
	V0ID       int64 `json:"v0_id"`
	BachelorID int64 `json:"bachelor_id"`
}

// LoadReplayFile reads and validates a JSON replay file.
func LoadReplayFile(path string) (*ReplayData, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("replay file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat replay file: %w", err)
	}
	if info.Size() > maxEventFileSize {
		return nil, fmt.Errorf("replay file too large: %d bytes (max %d)", info.Size(), maxEventFileSize)
	}

	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	var f replayFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode replay file: %w", err)
	}
	return decodeReplay(&f)
}

func decodeReplay(f *replayFile) (*ReplayData, error) {
	out := &ReplayData{Resolver: make(conditions.MapResolver, len(f.Runs))}

	for key, run := range f.Runs {
		runNumber, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("invalid run number %q in replay file", key)
		}
		p := conditions.Params{Bz: run.Bz, MatMode: track.MatCorrType(run.MatMode)}
		if p.MatMode != track.MatCorrNone {
			p.Material = conditions.SlabMaterial{LossPerCm: run.LossPerCm}
		}
		out.Resolver[runNumber] = p
	}

	for i, ev := range f.Events {
		vertex, err := vec3From(ev.Vertex, "vertex")
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		decoded := Event{
			Collision: Collision{
				ID:          ev.CollisionID,
				RunNumber:   ev.RunNumber,
				TimestampNS: ev.TimestampNS,
				Vertex:      vertex,
			},
		}
		for _, t := range ev.Tracks {
			ti, err := decodeTrack(t)
			if err != nil {
				return nil, fmt.Errorf("event %d track %d: %w", i, t.ID, err)
			}
			decoded.Tracks = append(decoded.Tracks, ti)
		}
		for _, v := range ev.V0s {
			decoded.V0s = append(decoded.V0s, V0Input{ID: v.ID, PosID: v.PosID, NegID: v.NegID})
		}
		for _, c := range ev.Cascades {
			decoded.Cascades = append(decoded.Cascades, CascadeInput{ID: c.ID, V0ID: c.V0ID, BachelorID: c.BachelorID})
		}
		out.Events = append(out.Events, decoded)
	}
	return out, nil
}

func decodeTrack(t replayTrack) (TrackInput, error) {
	pos, err := vec3From(t.Position, "position")
	if err != nil {
		return TrackInput{}, err
	}
	mom, err := vec3From(t.Momentum, "momentum")
	if err != nil {
		return TrackInput{}, err
	}

	state := track.New(pos, mom, t.Charge)
	if len(t.Covariance) > 0 {
		if len(t.Covariance) != track.CovSize {
			return TrackInput{}, fmt.Errorf("covariance must have %d elements, got %d", track.CovSize, len(t.Covariance))
		}
		var cov [track.CovSize]float64
		copy(cov[:], t.Covariance)
		state = state.WithCovariance(cov)
	}

	return TrackInput{
		ID:          t.ID,
		CrossedRows: t.CrossedRows,
		DCAXY:       t.DCAXY,
		Flags:       t.Flags,
		State:       state,
	}, nil
}

func vec3From(v []float64, what string) (kinematics.Vec3, error) {
	if len(v) != 3 {
		return kinematics.Vec3{}, fmt.Errorf("%s must have 3 components, got %d", what, len(v))
	}
	return kinematics.Vec3{v[0], v[1], v[2]}, nil
}
