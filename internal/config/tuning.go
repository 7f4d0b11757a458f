package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig represents the detection tuning parameters. All fields are
// optional pointers so a partial JSON file only overrides what it names;
// the Get* accessors supply defaults for everything else.
type TuningConfig struct {
	// CFAR detector params
	OuterWindowSize       *int     `json:"outer_window_size,omitempty"`
	GuardWindowSize       *int     `json:"guard_window_size,omitempty"`
	FalseAlarmProbability *float64 `json:"false_alarm_probability,omitempty"`
	MaxGammaShape         *float64 `json:"max_gamma_shape,omitempty"`
	RelativeVarianceFloor *float64 `json:"relative_variance_floor,omitempty"`

	// Object filtering params
	MinObjectPixels *int `json:"min_object_pixels,omitempty"`

	// Area correction params
	ClampPolicy *string `json:"clamp_policy,omitempty"` // "zero" or "one_pixel"

	// Channel merge params
	MergeBufferMeters *float64 `json:"merge_buffer_meters,omitempty"`

	// Channels to process; subset of {"HH", "HV"}
	Channels []string `json:"channels,omitempty"`

	// Per-channel area model artifact paths
	ModelPaths map[string]string `json:"model_paths,omitempty"`

	// Reference statistics artifact for the plausibility classifier
	ReferenceStatsPath *string `json:"reference_stats_path,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and stay under the max file size. Fields omitted from the
// JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are internally consistent.
// Window size relationships are enforced again by the pipeline before a run;
// this catches malformed files early.
func (c *TuningConfig) Validate() error {
	if c.OuterWindowSize != nil {
		if *c.OuterWindowSize <= 0 || *c.OuterWindowSize%2 == 0 {
			return fmt.Errorf("outer_window_size must be a positive odd integer, got %d", *c.OuterWindowSize)
		}
	}
	if c.GuardWindowSize != nil {
		if *c.GuardWindowSize <= 0 || *c.GuardWindowSize%2 == 0 {
			return fmt.Errorf("guard_window_size must be a positive odd integer, got %d", *c.GuardWindowSize)
		}
	}
	if c.OuterWindowSize != nil && c.GuardWindowSize != nil && *c.GuardWindowSize >= *c.OuterWindowSize {
		return fmt.Errorf("guard_window_size (%d) must be smaller than outer_window_size (%d)",
			*c.GuardWindowSize, *c.OuterWindowSize)
	}
	if c.FalseAlarmProbability != nil {
		if *c.FalseAlarmProbability <= 0 || *c.FalseAlarmProbability >= 1 {
			return fmt.Errorf("false_alarm_probability must be in (0, 1), got %g", *c.FalseAlarmProbability)
		}
	}
	if c.ClampPolicy != nil {
		switch *c.ClampPolicy {
		case "zero", "one_pixel":
		default:
			return fmt.Errorf("clamp_policy must be \"zero\" or \"one_pixel\", got %q", *c.ClampPolicy)
		}
	}
	if c.MinObjectPixels != nil && *c.MinObjectPixels < 1 {
		return fmt.Errorf("min_object_pixels must be at least 1, got %d", *c.MinObjectPixels)
	}
	for _, ch := range c.Channels {
		if ch != "HH" && ch != "HV" {
			return fmt.Errorf("channels entries must be \"HH\" or \"HV\", got %q", ch)
		}
	}
	return nil
}

// GetOuterWindowSize returns the outer_window_size value or the default.
func (c *TuningConfig) GetOuterWindowSize() int {
	if c.OuterWindowSize == nil {
		return 29
	}
	return *c.OuterWindowSize
}

// GetGuardWindowSize returns the guard_window_size value or the default.
func (c *TuningConfig) GetGuardWindowSize() int {
	if c.GuardWindowSize == nil {
		return 21
	}
	return *c.GuardWindowSize
}

// GetFalseAlarmProbability returns the false_alarm_probability value or the default.
func (c *TuningConfig) GetFalseAlarmProbability() float64 {
	if c.FalseAlarmProbability == nil {
		return 1e-6
	}
	return *c.FalseAlarmProbability
}

// GetMaxGammaShape returns the max_gamma_shape value or the default.
// The shape estimate is clamped to this ceiling when the local variance is
// degenerate, which keeps the threshold finite over uniform clutter.
func (c *TuningConfig) GetMaxGammaShape() float64 {
	if c.MaxGammaShape == nil {
		return 1000
	}
	return *c.MaxGammaShape
}

// GetRelativeVarianceFloor returns the relative_variance_floor value or the
// default. Local variance below floor*mean² is treated as degenerate.
func (c *TuningConfig) GetRelativeVarianceFloor() float64 {
	if c.RelativeVarianceFloor == nil {
		return 1e-3
	}
	return *c.RelativeVarianceFloor
}

// GetMinObjectPixels returns the min_object_pixels value or the default.
func (c *TuningConfig) GetMinObjectPixels() int {
	if c.MinObjectPixels == nil {
		return 1
	}
	return *c.MinObjectPixels
}

// GetClampPolicy returns the clamp_policy value or the default.
func (c *TuningConfig) GetClampPolicy() string {
	if c.ClampPolicy == nil {
		return "zero"
	}
	return *c.ClampPolicy
}

// GetMergeBufferMeters returns the merge_buffer_meters value or the default.
func (c *TuningConfig) GetMergeBufferMeters() float64 {
	if c.MergeBufferMeters == nil {
		return 20
	}
	return *c.MergeBufferMeters
}

// GetChannels returns the enabled channel names, defaulting to both.
func (c *TuningConfig) GetChannels() []string {
	if len(c.Channels) == 0 {
		return []string{"HH", "HV"}
	}
	return c.Channels
}

// GetReferenceStatsPath returns the reference_stats_path value or empty.
func (c *TuningConfig) GetReferenceStatsPath() string {
	if c.ReferenceStatsPath == nil {
		return ""
	}
	return *c.ReferenceStatsPath
}
