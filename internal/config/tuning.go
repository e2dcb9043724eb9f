package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// maxFileSize bounds tuning files read from disk.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// TuningConfig represents the root configuration for segmentation tuning.
// Pointer fields distinguish "unset" from zero so partial files fall back
// to the Get* defaults.
type TuningConfig struct {
	// Global mode priors
	PNew *float64 `json:"p_new,omitempty" yaml:"p_new,omitempty"`
	POff *float64 `json:"p_off,omitempty" yaml:"p_off,omitempty"`

	// Resource limits
	MaxFeatures     *int   `json:"max_features,omitempty" yaml:"max_features,omitempty"`
	MaxTrellisCells *int64 `json:"max_trellis_cells,omitempty" yaml:"max_trellis_cells,omitempty"`
	Workers         *int   `json:"workers,omitempty" yaml:"workers,omitempty"`

	// Defaults applies to any feature without its own section.
	Defaults *FeatureTuning  `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Features []FeatureTuning `json:"features,omitempty" yaml:"features,omitempty"`
}

// FeatureTuning holds the per-feature tunables. See
// segmentation.Parameters for what each one means.
type FeatureTuning struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Normalization
	MinValue *float64 `json:"min_value,omitempty" yaml:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty" yaml:"max_value,omitempty"`

	// Lag priors
	PLagPlus  *float64 `json:"p_lag_plus,omitempty" yaml:"p_lag_plus,omitempty"`
	PLagMinus *float64 `json:"p_lag_minus,omitempty" yaml:"p_lag_minus,omitempty"`

	// Low-pass filter and measurement noise
	Alpha *float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	R     *float64 `json:"r,omitempty" yaml:"r,omitempty"`

	// Process noise per mode transition
	CStayOff    *float64 `json:"c_stay_off,omitempty" yaml:"c_stay_off,omitempty"`
	CStayOn     *float64 `json:"c_stay_on,omitempty" yaml:"c_stay_on,omitempty"`
	CTurnOn     *float64 `json:"c_turn_on,omitempty" yaml:"c_turn_on,omitempty"`
	CTurningOn  *float64 `json:"c_turning_on,omitempty" yaml:"c_turning_on,omitempty"`
	CTurnOff    *float64 `json:"c_turn_off,omitempty" yaml:"c_turn_off,omitempty"`
	CNewSegment *float64 `json:"c_new_segment,omitempty" yaml:"c_new_segment,omitempty"`

	// Initial Kalman state
	XInit *[2]float64    `json:"x_init,omitempty" yaml:"x_init,omitempty"`
	PInit *[2][2]float64 `json:"p_init,omitempty" yaml:"p_init,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON or YAML file.
// The file must have a .json, .yaml or .yml extension and be under 1MB.
// Fields omitted from the file retain their default values, so partial
// configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/
		"../../" + DefaultConfigPath,    // from internal/config/, cmd/segment/
		"../../../" + DefaultConfigPath, // from internal/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// FindDefaultConfig returns the first existing defaults file path relative
// to the working directory, or "" when none is found.
func FindDefaultConfig() string {
	for _, path := range []string{DefaultConfigPath, "../" + DefaultConfigPath, "../../" + DefaultConfigPath} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if err := checkProbability("p_new", c.PNew); err != nil {
		return err
	}
	if err := checkProbability("p_off", c.POff); err != nil {
		return err
	}
	if c.MaxFeatures != nil && *c.MaxFeatures < 0 {
		return fmt.Errorf("max_features must be non-negative, got %d", *c.MaxFeatures)
	}
	if c.MaxTrellisCells != nil && *c.MaxTrellisCells < 0 {
		return fmt.Errorf("max_trellis_cells must be non-negative, got %d", *c.MaxTrellisCells)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	if c.Defaults != nil {
		if err := c.Defaults.Validate(); err != nil {
			return fmt.Errorf("defaults: %w", err)
		}
	}

	seen := make(map[string]bool, len(c.Features))
	for i := range c.Features {
		f := &c.Features[i]
		if f.Name == "" {
			return fmt.Errorf("features[%d]: name is required", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("features[%d]: duplicate feature name %q", i, f.Name)
		}
		seen[f.Name] = true
		if err := f.Validate(); err != nil {
			return fmt.Errorf("feature %q: %w", f.Name, err)
		}
	}
	return nil
}

// Validate checks the per-feature values that are set.
func (f *FeatureTuning) Validate() error {
	if f.R != nil && *f.R <= 0 {
		return fmt.Errorf("r must be > 0, got %f", *f.R)
	}
	if f.Alpha != nil && (*f.Alpha < 0 || *f.Alpha > 1) {
		return fmt.Errorf("alpha must be between 0 and 1, got %f", *f.Alpha)
	}
	if err := checkProbability("p_lag_plus", f.PLagPlus); err != nil {
		return err
	}
	if err := checkProbability("p_lag_minus", f.PLagMinus); err != nil {
		return err
	}
	variances := []struct {
		name string
		v    *float64
	}{
		{"c_stay_off", f.CStayOff},
		{"c_stay_on", f.CStayOn},
		{"c_turn_on", f.CTurnOn},
		{"c_turning_on", f.CTurningOn},
		{"c_turn_off", f.CTurnOff},
		{"c_new_segment", f.CNewSegment},
	}
	for _, v := range variances {
		if v.v != nil && *v.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", v.name, *v.v)
		}
	}
	if f.MinValue != nil && f.MaxValue != nil && *f.MaxValue <= *f.MinValue {
		return fmt.Errorf("max_value (%f) must be greater than min_value (%f)", *f.MaxValue, *f.MinValue)
	}
	return nil
}

func checkProbability(name string, v *float64) error {
	if v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
	}
	return nil
}

// Feature returns the tuning for the named feature: its own section when
// present, otherwise Defaults, otherwise an empty section whose getters
// return the built-in defaults.
func (c *TuningConfig) Feature(name string) *FeatureTuning {
	for i := range c.Features {
		if c.Features[i].Name == name {
			return c.Features[i].mergedOver(c.Defaults)
		}
	}
	if c.Defaults != nil {
		d := *c.Defaults
		d.Name = name
		return &d
	}
	return &FeatureTuning{Name: name}
}

// mergedOver returns a copy of f with unset fields taken from base.
func (f *FeatureTuning) mergedOver(base *FeatureTuning) *FeatureTuning {
	out := *f
	if base == nil {
		return &out
	}
	pick := func(dst **float64, src *float64) {
		if *dst == nil {
			*dst = src
		}
	}
	pick(&out.MinValue, base.MinValue)
	pick(&out.MaxValue, base.MaxValue)
	pick(&out.PLagPlus, base.PLagPlus)
	pick(&out.PLagMinus, base.PLagMinus)
	pick(&out.Alpha, base.Alpha)
	pick(&out.R, base.R)
	pick(&out.CStayOff, base.CStayOff)
	pick(&out.CStayOn, base.CStayOn)
	pick(&out.CTurnOn, base.CTurnOn)
	pick(&out.CTurningOn, base.CTurningOn)
	pick(&out.CTurnOff, base.CTurnOff)
	pick(&out.CNewSegment, base.CNewSegment)
	if out.XInit == nil {
		out.XInit = base.XInit
	}
	if out.PInit == nil {
		out.PInit = base.PInit
	}
	return &out
}

// GetPNew returns the p_new value or the default.
func (c *TuningConfig) GetPNew() float64 {
	if c.PNew == nil {
		return 0.01
	}
	return *c.PNew
}

// GetPOff returns the p_off value or the default.
func (c *TuningConfig) GetPOff() float64 {
	if c.POff == nil {
		return 0.05
	}
	return *c.POff
}

// GetMaxFeatures returns the max_features value or the default.
func (c *TuningConfig) GetMaxFeatures() int {
	if c.MaxFeatures == nil {
		return 6
	}
	return *c.MaxFeatures
}

// GetMaxTrellisCells returns the max_trellis_cells value or the default.
func (c *TuningConfig) GetMaxTrellisCells() int64 {
	if c.MaxTrellisCells == nil {
		return 1 << 25
	}
	return *c.MaxTrellisCells
}

// GetWorkers returns the workers value or the default (0 = GOMAXPROCS).
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetMinValue returns the min_value value or the default.
func (f *FeatureTuning) GetMinValue() float64 {
	if f.MinValue == nil {
		return 0
	}
	return *f.MinValue
}

// GetMaxValue returns the max_value value or the default.
func (f *FeatureTuning) GetMaxValue() float64 {
	if f.MaxValue == nil {
		return 1
	}
	return *f.MaxValue
}

// GetPLagPlus returns the p_lag_plus value or the default.
func (f *FeatureTuning) GetPLagPlus() float64 {
	if f.PLagPlus == nil {
		return 0.075
	}
	return *f.PLagPlus
}

// GetPLagMinus returns the p_lag_minus value or the default.
func (f *FeatureTuning) GetPLagMinus() float64 {
	if f.PLagMinus == nil {
		return 0.075
	}
	return *f.PLagMinus
}

// GetAlpha returns the alpha value or the default.
func (f *FeatureTuning) GetAlpha() float64 {
	if f.Alpha == nil {
		return 0.05
	}
	return *f.Alpha
}

// GetR returns the r value or the default.
func (f *FeatureTuning) GetR() float64 {
	if f.R == nil {
		return 0.005
	}
	return *f.R
}

// GetCStayOff returns the c_stay_off value or the default.
func (f *FeatureTuning) GetCStayOff() float64 {
	if f.CStayOff == nil {
		return 0.0001
	}
	return *f.CStayOff
}

// GetCStayOn returns the c_stay_on value or the default.
func (f *FeatureTuning) GetCStayOn() float64 {
	if f.CStayOn == nil {
		return 0.0001
	}
	return *f.CStayOn
}

// GetCTurnOn returns the c_turn_on value or the default.
func (f *FeatureTuning) GetCTurnOn() float64 {
	if f.CTurnOn == nil {
		return 0.9
	}
	return *f.CTurnOn
}

// GetCTurningOn returns the c_turning_on value or the default.
func (f *FeatureTuning) GetCTurningOn() float64 {
	if f.CTurningOn == nil {
		return 0.9
	}
	return *f.CTurningOn
}

// GetCTurnOff returns the c_turn_off value or the default.
func (f *FeatureTuning) GetCTurnOff() float64 {
	if f.CTurnOff == nil {
		return 0.9
	}
	return *f.CTurnOff
}

// GetCNewSegment returns the c_new_segment value or the default.
func (f *FeatureTuning) GetCNewSegment() float64 {
	if f.CNewSegment == nil {
		return 0.9
	}
	return *f.CNewSegment
}

// GetXInit returns the x_init value or the default (zero mean).
func (f *FeatureTuning) GetXInit() [2]float64 {
	if f.XInit == nil {
		return [2]float64{}
	}
	return *f.XInit
}

// GetPInit returns the p_init value or the default (identity).
func (f *FeatureTuning) GetPInit() [2][2]float64 {
	if f.PInit == nil {
		return [2][2]float64{{1, 0}, {0, 1}}
	}
	return *f.PInit
}
