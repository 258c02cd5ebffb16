package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/ballistics/internal/ballistics"
	"github.com/banshee-data/ballistics/internal/units"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the solver defaults shared by the CLI and the API.
// Every field is optional; the Get* methods supply fallbacks.
type TuningConfig struct {
	// Sampling grid
	StepYards     *int `json:"step_yards,omitempty"`
	MaxRangeYards *int `json:"max_range_yards,omitempty"`

	// Defaults applied to inputs that leave these empty
	DragModel *string  `json:"drag_model,omitempty"`
	ClickUnit *string  `json:"click_unit,omitempty"`
	ClickSize *float64 `json:"click_size,omitempty"`

	// Presentation
	VelocityUnits *string `json:"velocity_units,omitempty"`

	// Server
	RequestTimeout *string `json:"request_timeout,omitempty"` // duration string like "10s"
	MaxBatchSize   *int    `json:"max_batch_size,omitempty"`
	CacheSize      *int    `json:"cache_size,omitempty"` // 0 disables the solution cache
	CacheTTL       *string `json:"cache_ttl,omitempty"`  // duration string like "10m"
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file fall back to the Get* defaults, so partial configs are safe.
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

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. Panics if the file cannot be loaded, intended for test
// setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.StepYards != nil && *c.StepYards <= 0 {
		return fmt.Errorf("step_yards must be positive, got %d", *c.StepYards)
	}
	if c.MaxRangeYards != nil && *c.MaxRangeYards <= 0 {
		return fmt.Errorf("max_range_yards must be positive, got %d", *c.MaxRangeYards)
	}
	if err := c.ToOptions().Validate(); err != nil {
		return err
	}

	if c.DragModel != nil && *c.DragModel != "" {
		if _, err := ballistics.ParseDragModel(*c.DragModel); err != nil {
			return fmt.Errorf("invalid drag_model: %w", err)
		}
	}
	if c.ClickUnit != nil && *c.ClickUnit != "" && !units.IsValidAngular(*c.ClickUnit) {
		return fmt.Errorf("click_unit must be one of %s, got %q", units.GetValidAngularUnitsString(), *c.ClickUnit)
	}
	if c.ClickSize != nil && !(*c.ClickSize >= ballistics.MinClickSize) {
		return fmt.Errorf("click_size must be at least %v, got %v", ballistics.MinClickSize, *c.ClickSize)
	}
	if c.VelocityUnits != nil && *c.VelocityUnits != "" && !units.IsValid(*c.VelocityUnits) {
		return fmt.Errorf("velocity_units must be one of %s, got %q", units.GetValidUnitsString(), *c.VelocityUnits)
	}

	if c.RequestTimeout != nil && *c.RequestTimeout != "" {
		if _, err := time.ParseDuration(*c.RequestTimeout); err != nil {
			return fmt.Errorf("invalid request_timeout '%s': %w", *c.RequestTimeout, err)
		}
	}
	if c.MaxBatchSize != nil && *c.MaxBatchSize < 1 {
		return fmt.Errorf("max_batch_size must be at least 1, got %d", *c.MaxBatchSize)
	}
	if c.CacheSize != nil && *c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative, got %d", *c.CacheSize)
	}
	if c.CacheTTL != nil && *c.CacheTTL != "" {
		d, err := time.ParseDuration(*c.CacheTTL)
		if err != nil {
			return fmt.Errorf("invalid cache_ttl '%s': %w", *c.CacheTTL, err)
		}
		if d <= 0 {
			return fmt.Errorf("cache_ttl must be positive, got %s", d)
		}
	}

	return nil
}

// GetStepYards returns the step_yards value or the default.
func (c *TuningConfig) GetStepYards() int {
	if c.StepYards == nil {
		return ballistics.DefaultOptions().StepYards
	}
	return *c.StepYards
}

// GetMaxRangeYards returns the max_range_yards value or the default.
func (c *TuningConfig) GetMaxRangeYards() int {
	if c.MaxRangeYards == nil {
		return ballistics.DefaultOptions().MaxRangeYards
	}
	return *c.MaxRangeYards
}

// GetDragModel returns the drag_model value or G1. Unparseable values also
// fall back to G1.
func (c *TuningConfig) GetDragModel() ballistics.DragModel {
	if c.DragModel == nil || *c.DragModel == "" {
		return ballistics.G1
	}
	m, err := ballistics.ParseDragModel(*c.DragModel)
	if err != nil {
		return ballistics.G1
	}
	return m
}

// GetClickUnit returns the click_unit value or the default.
func (c *TuningConfig) GetClickUnit() string {
	if c.ClickUnit == nil || *c.ClickUnit == "" {
		return units.MOA
	}
	return *c.ClickUnit
}

// GetClickSize returns the click_size value or the default.
func (c *TuningConfig) GetClickSize() float64 {
	if c.ClickSize == nil {
		return 0.25 // quarter-MOA turrets
	}
	return *c.ClickSize
}

// GetVelocityUnits returns the velocity_units value or the default.
func (c *TuningConfig) GetVelocityUnits() string {
	if c.VelocityUnits == nil || *c.VelocityUnits == "" {
		return units.FPS
	}
	return *c.VelocityUnits
}

// GetRequestTimeout parses and returns the RequestTimeout as a time.Duration.
func (c *TuningConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout == nil || *c.RequestTimeout == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.RequestTimeout)
	if err != nil {
		return 10 * time.Second // default on parse error
	}
	return d
}

// GetMaxBatchSize returns the max_batch_size value or the default.
func (c *TuningConfig) GetMaxBatchSize() int {
	if c.MaxBatchSize == nil {
		return 16
	}
	return *c.MaxBatchSize
}

// GetCacheSize returns the cache_size value or the default.
func (c *TuningConfig) GetCacheSize() int {
	if c.CacheSize == nil {
		return 256
	}
	return *c.CacheSize
}

// GetCacheTTL parses and returns the CacheTTL as a time.Duration.
func (c *TuningConfig) GetCacheTTL() time.Duration {
	if c.CacheTTL == nil || *c.CacheTTL == "" {
		return 10 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.CacheTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute // default on parse error
	}
	return d
}

// ToOptions returns the sampling grid described by the config.
func (c *TuningConfig) ToOptions() ballistics.Options {
	return ballistics.Options{
		StepYards:     c.GetStepYards(),
		MaxRangeYards: c.GetMaxRangeYards(),
	}
}

// ApplyDefaults fills the drag model, click unit and click size of in where
// the caller left them empty.
func (c *TuningConfig) ApplyDefaults(in ballistics.Input) ballistics.Input {
	if in.DragModel == "" {
		in.DragModel = c.GetDragModel()
	}
	if in.ClickUnit == "" {
		in.ClickUnit = c.GetClickUnit()
	}
	if in.ClickSize == 0 {
		in.ClickSize = c.GetClickSize()
	}
	return in
}
