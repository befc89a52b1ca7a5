package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/strangeness.report/internal/strangeness"
)

// BuilderTuning represents optional overrides for the strangeness builder
// selection and fitter parameters. All fields are pointers so a partial
// JSON file only overrides what it names; everything else keeps the
// compiled-in defaults.
type BuilderTuning struct {
	// V0 selection
	RequireRefit      *bool    `json:"require_refit,omitempty"`
	MinCrossedRows    *int     `json:"min_crossed_rows,omitempty"`
	MinDCAPosToPV     *float64 `json:"min_dca_pos_to_pv,omitempty"`
	MinDCANegToPV     *float64 `json:"min_dca_neg_to_pv,omitempty"`
	MaxDCAV0Daughters *float64 `json:"max_dca_v0_daughters,omitempty"`
	MinV0CosPA        *float64 `json:"min_v0_cos_pa,omitempty"`
	MinV0Radius       *float64 `json:"min_v0_radius,omitempty"`

	// Cascade selection
	MinDCABachelorToPV     *float64 `json:"min_dca_bachelor_to_pv,omitempty"`
	LambdaMassWindow       *float64 `json:"lambda_mass_window,omitempty"`
	MinCascadeRadius       *float64 `json:"min_cascade_radius,omitempty"`
	MaxDCACascadeDaughters *float64 `json:"max_dca_cascade_daughters,omitempty"`

	// Vertex fitter
	MaxIterations    *int     `json:"max_iterations,omitempty"`
	MaxR             *float64 `json:"max_r,omitempty"`
	MinParamChange   *float64 `json:"min_param_change,omitempty"`
	MinRelChi2Change *float64 `json:"min_rel_chi2_change,omitempty"`
	MaxDZIni         *float64 `json:"max_dz_ini,omitempty"`
	MaxChi2          *float64 `json:"max_chi2,omitempty"`
	UseAbsDCA        *bool    `json:"use_abs_dca,omitempty"`
	WeightedFinalPCA *bool    `json:"weighted_final_pca,omitempty"`

	// Builder outputs
	ProduceCascades           *bool    `json:"produce_cascades,omitempty"`
	ProduceV0Covariances      *bool    `json:"produce_v0_covariances,omitempty"`
	ProduceCascadeCovariances *bool    `json:"produce_cascade_covariances,omitempty"`
	BzOverride                *float64 `json:"bz_override,omitempty"`
}

// EmptyBuilderTuning returns a BuilderTuning with all fields set to nil.
func EmptyBuilderTuning() *BuilderTuning {
	return &BuilderTuning{}
}

// LoadBuilderTuning loads a BuilderTuning from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their defaults,
// so partial configs are safe.
func LoadBuilderTuning(path string) (*BuilderTuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	cfg := EmptyBuilderTuning()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}

	return cfg, nil
}

// Validate checks that the overridden values are physically sensible.
func (t *BuilderTuning) Validate() error {
	if t.MinCrossedRows != nil && *t.MinCrossedRows < 0 {
		return fmt.Errorf("min_crossed_rows must be non-negative, got %d", *t.MinCrossedRows)
	}
	if t.MinV0CosPA != nil && (*t.MinV0CosPA < -1 || *t.MinV0CosPA > 1) {
		return fmt.Errorf("min_v0_cos_pa must be between -1 and 1, got %f", *t.MinV0CosPA)
	}
	if t.LambdaMassWindow != nil && *t.LambdaMassWindow < 0 {
		return fmt.Errorf("lambda_mass_window must be non-negative, got %f", *t.LambdaMassWindow)
	}
	if t.MaxIterations != nil && *t.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", *t.MaxIterations)
	}
	if t.MaxR != nil && *t.MaxR <= 0 {
		return fmt.Errorf("max_r must be positive, got %f", *t.MaxR)
	}
	for name, v := range map[string]*float64{
		"min_dca_pos_to_pv":         t.MinDCAPosToPV,
		"min_dca_neg_to_pv":         t.MinDCANegToPV,
		"max_dca_v0_daughters":      t.MaxDCAV0Daughters,
		"min_v0_radius":             t.MinV0Radius,
		"min_dca_bachelor_to_pv":    t.MinDCABachelorToPV,
		"min_cascade_radius":        t.MinCascadeRadius,
		"max_dca_cascade_daughters": t.MaxDCACascadeDaughters,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}
	return nil
}

// Apply overlays the set fields onto cfg. Unset fields leave cfg untouched.
func (t *BuilderTuning) Apply(cfg *strangeness.BuilderConfig) {
	if t.RequireRefit != nil {
		cfg.V0Selection.RequireRefit = *t.RequireRefit
	}
	if t.MinCrossedRows != nil {
		cfg.V0Selection.MinCrossedRows = *t.MinCrossedRows
	}
	if t.MinDCAPosToPV != nil {
		cfg.V0Selection.MinDCAPosToPV = *t.MinDCAPosToPV
	}
	if t.MinDCANegToPV != nil {
		cfg.V0Selection.MinDCANegToPV = *t.MinDCANegToPV
	}
	if t.MaxDCAV0Daughters != nil {
		cfg.V0Selection.MaxDCADaughters = *t.MaxDCAV0Daughters
	}
	if t.MinV0CosPA != nil {
		cfg.V0Selection.MinCosPA = *t.MinV0CosPA
	}
	if t.MinV0Radius != nil {
		cfg.V0Selection.MinRadius = *t.MinV0Radius
	}

	if t.MinDCABachelorToPV != nil {
		cfg.CascadeSelection.MinDCABachelorToPV = *t.MinDCABachelorToPV
	}
	if t.LambdaMassWindow != nil {
		cfg.CascadeSelection.LambdaMassWindow = *t.LambdaMassWindow
	}
	if t.MinCascadeRadius != nil {
		cfg.CascadeSelection.MinRadius = *t.MinCascadeRadius
	}
	if t.MaxDCACascadeDaughters != nil {
		cfg.CascadeSelection.MaxDCADaughters = *t.MaxDCACascadeDaughters
	}

	if t.MaxIterations != nil {
		cfg.Fitter.MaxIterations = *t.MaxIterations
	}
	if t.MaxR != nil {
		cfg.Fitter.MaxR = *t.MaxR
	}
	if t.MinParamChange != nil {
		cfg.Fitter.MinParamChange = *t.MinParamChange
	}
	if t.MinRelChi2Change != nil {
		cfg.Fitter.MinRelChi2Change = *t.MinRelChi2Change
	}
	if t.MaxDZIni != nil {
		cfg.Fitter.MaxDZIni = *t.MaxDZIni
	}
	if t.MaxChi2 != nil {
		cfg.Fitter.MaxChi2 = *t.MaxChi2
	}
	if t.UseAbsDCA != nil {
		cfg.Fitter.UseAbsDCA = *t.UseAbsDCA
	}
	if t.WeightedFinalPCA != nil {
		cfg.Fitter.WeightedFinalPCA = *t.WeightedFinalPCA
	}

	if t.ProduceCascades != nil {
		cfg.ProduceCascades = *t.ProduceCascades
	}
	if t.ProduceV0Covariances != nil {
		cfg.ProduceV0Covariances = *t.ProduceV0Covariances
	}
	if t.ProduceCascadeCovariances != nil {
		cfg.ProduceCascadeCovariances = *t.ProduceCascadeCovariances
	}
	if t.BzOverride != nil {
		cfg.BzOverride = *t.BzOverride
	}
}
