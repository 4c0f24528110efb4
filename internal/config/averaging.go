package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/watercolumn/internal/adcp"
	"github.com/banshee-data/watercolumn/internal/serialmux"
	"github.com/banshee-data/watercolumn/internal/watercolumn"
)

// maxFileSize bounds config files read from disk.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// AveragingConfig is the on-disk and over-the-wire form of the averaging
// settings. Every field is optional; the Get* methods supply defaults so
// partial files and partial API updates are safe. The same schema is accepted
// by PUT /api/config.
type AveragingConfig struct {
	MinBin              *int    `json:"min_bin,omitempty" yaml:"min_bin,omitempty"`
	UseFixedMaxBin      *bool   `json:"use_fixed_max_bin,omitempty" yaml:"use_fixed_max_bin,omitempty"`
	FixedMaxBin         *int    `json:"fixed_max_bin,omitempty" yaml:"fixed_max_bin,omitempty"`
	RunningAverageCount *int    `json:"running_average_count,omitempty" yaml:"running_average_count,omitempty"`
	OutputPeriod        *string `json:"output_period,omitempty" yaml:"output_period,omitempty"` // duration string like "1s"
	VelocityFrame       *string `json:"velocity_frame,omitempty" yaml:"velocity_frame,omitempty"`
	HeadingSource       *string `json:"heading_source,omitempty" yaml:"heading_source,omitempty"`
	DirectionMean       *string `json:"direction_mean,omitempty" yaml:"direction_mean,omitempty"`
	RemoveShipSpeed     *bool   `json:"remove_ship_speed,omitempty" yaml:"remove_ship_speed,omitempty"`
	MarkBadBelowBottom  *bool   `json:"mark_bad_below_bottom,omitempty" yaml:"mark_bad_below_bottom,omitempty"`

	// Commands sent to the ADCP before START, one per line.
	CommandSet *string `json:"command_set,omitempty" yaml:"command_set,omitempty"`

	ADCP   *PortConfig `json:"adcp,omitempty" yaml:"adcp,omitempty"`
	GPS    *PortConfig `json:"gps,omitempty" yaml:"gps,omitempty"`
	Output *PortConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

// PortConfig names a serial device and its line settings.
type PortConfig struct {
	Path                  string `json:"path" yaml:"path"`
	serialmux.PortOptions `yaml:",inline"`
}

func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }

// EmptyAveragingConfig returns a config with every field unset.
func EmptyAveragingConfig() *AveragingConfig {
	return &AveragingConfig{}
}

// LoadAveragingConfig reads a .json, .yaml or .yml config file no larger
// than 1MB and validates it.
func LoadAveragingConfig(path string) (*AveragingConfig, error) {
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

	cfg := EmptyAveragingConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *AveragingConfig) Validate() error {
	if c.MinBin != nil && *c.MinBin < 0 {
		return fmt.Errorf("min_bin must be non-negative, got %d", *c.MinBin)
	}
	if c.FixedMaxBin != nil && *c.FixedMaxBin < 0 {
		return fmt.Errorf("fixed_max_bin must be non-negative, got %d", *c.FixedMaxBin)
	}
	if c.RunningAverageCount != nil && *c.RunningAverageCount < 0 {
		return fmt.Errorf("running_average_count must be non-negative, got %d", *c.RunningAverageCount)
	}
	if c.OutputPeriod != nil && *c.OutputPeriod != "" {
		d, err := time.ParseDuration(*c.OutputPeriod)
		if err != nil {
			return fmt.Errorf("invalid output_period '%s': %w", *c.OutputPeriod, err)
		}
		if d <= 0 {
			return fmt.Errorf("output_period must be positive, got %s", d)
		}
	}
	if c.VelocityFrame != nil {
		switch strings.ToLower(*c.VelocityFrame) {
		case "", "earth", "instrument", "instr":
		default:
			return fmt.Errorf("velocity_frame must be earth or instrument, got %q", *c.VelocityFrame)
		}
	}
	if c.DirectionMean != nil {
		switch watercolumn.DirectionMean(*c.DirectionMean) {
		case "", watercolumn.DirectionArithmetic, watercolumn.DirectionCircular:
		default:
			return fmt.Errorf("direction_mean must be arithmetic or circular, got %q", *c.DirectionMean)
		}
	}
	for name, p := range map[string]*PortConfig{"adcp": c.ADCP, "gps": c.GPS, "output": c.Output} {
		if p == nil {
			continue
		}
		if _, err := p.PortOptions.Normalise(); err != nil {
			return fmt.Errorf("invalid %s port: %w", name, err)
		}
	}
	return nil
}

// Merge returns a copy of c with every field set in o applied on top.
func (c *AveragingConfig) Merge(o *AveragingConfig) *AveragingConfig {
	out := *c
	if o == nil {
		return &out
	}
	if o.MinBin != nil {
		out.MinBin = o.MinBin
	}
	if o.UseFixedMaxBin != nil {
		out.UseFixedMaxBin = o.UseFixedMaxBin
	}
	if o.FixedMaxBin != nil {
		out.FixedMaxBin = o.FixedMaxBin
	}
	if o.RunningAverageCount != nil {
		out.RunningAverageCount = o.RunningAverageCount
	}
	if o.OutputPeriod != nil {
		out.OutputPeriod = o.OutputPeriod
	}
	if o.VelocityFrame != nil {
		out.VelocityFrame = o.VelocityFrame
	}
	if o.HeadingSource != nil {
		out.HeadingSource = o.HeadingSource
	}
	if o.DirectionMean != nil {
		out.DirectionMean = o.DirectionMean
	}
	if o.RemoveShipSpeed != nil {
		out.RemoveShipSpeed = o.RemoveShipSpeed
	}
	if o.MarkBadBelowBottom != nil {
		out.MarkBadBelowBottom = o.MarkBadBelowBottom
	}
	if o.CommandSet != nil {
		out.CommandSet = o.CommandSet
	}
	if o.ADCP != nil {
		out.ADCP = o.ADCP
	}
	if o.GPS != nil {
		out.GPS = o.GPS
	}
	if o.Output != nil {
		out.Output = o.Output
	}
	return &out
}

// GetMinBin returns the min_bin value or the default.
func (c *AveragingConfig) GetMinBin() int {
	if c.MinBin == nil {
		return 0
	}
	return *c.MinBin
}

// GetUseFixedMaxBin returns the use_fixed_max_bin value or the default.
func (c *AveragingConfig) GetUseFixedMaxBin() bool {
	if c.UseFixedMaxBin == nil {
		return false
	}
	return *c.UseFixedMaxBin
}

// GetFixedMaxBin returns the fixed_max_bin value or the default.
func (c *AveragingConfig) GetFixedMaxBin() int {
	if c.FixedMaxBin == nil {
		return 0
	}
	return *c.FixedMaxBin
}

// GetRunningAverageCount returns the running_average_count value or the default.
func (c *AveragingConfig) GetRunningAverageCount() int {
	if c.RunningAverageCount == nil {
		return watercolumn.DefaultRunningAverageCount
	}
	return *c.RunningAverageCount
}

// GetOutputPeriod parses and returns the OutputPeriod as a time.Duration.
func (c *AveragingConfig) GetOutputPeriod() time.Duration {
	if c.OutputPeriod == nil || *c.OutputPeriod == "" {
		return watercolumn.DefaultOutputPeriod
	}
	d, err := time.ParseDuration(*c.OutputPeriod)
	if err != nil || d <= 0 {
		return watercolumn.DefaultOutputPeriod
	}
	return d
}

func (c *AveragingConfig) GetVelocityFrame() adcp.VelocityFrame {
	if c.VelocityFrame == nil {
		return adcp.FrameEarth
	}
	return adcp.ParseVelocityFrame(*c.VelocityFrame)
}

func (c *AveragingConfig) GetHeadingSource() string {
	if c.HeadingSource == nil || *c.HeadingSource == "" {
		return watercolumn.DefaultHeadingSource
	}
	return *c.HeadingSource
}

func (c *AveragingConfig) GetDirectionMean() watercolumn.DirectionMean {
	if c.DirectionMean == nil || *c.DirectionMean == "" {
		return watercolumn.DirectionArithmetic
	}
	return watercolumn.DirectionMean(*c.DirectionMean)
}

// GetRemoveShipSpeed returns the remove_ship_speed value, on by default.
func (c *AveragingConfig) GetRemoveShipSpeed() bool {
	if c.RemoveShipSpeed == nil {
		return true
	}
	return *c.RemoveShipSpeed
}

// GetMarkBadBelowBottom returns the mark_bad_below_bottom value, on by default.
func (c *AveragingConfig) GetMarkBadBelowBottom() bool {
	if c.MarkBadBelowBottom == nil {
		return true
	}
	return *c.MarkBadBelowBottom
}

// GetCommandSet returns the command set or an empty string.
func (c *AveragingConfig) GetCommandSet() string {
	if c.CommandSet == nil {
		return ""
	}
	return *c.CommandSet
}

// ToWatercolumn converts to the processor's configuration.
func (c *AveragingConfig) ToWatercolumn() watercolumn.Config {
	return watercolumn.Config{
		MinBin:                 c.GetMinBin(),
		UseFixedMaxBin:         c.GetUseFixedMaxBin(),
		FixedMaxBin:            c.GetFixedMaxBin(),
		MaxRunningAverageCount: c.GetRunningAverageCount(),
		OutputPeriod:           c.GetOutputPeriod(),
		VelocityFrame:          c.GetVelocityFrame(),
		HeadingSource:          c.GetHeadingSource(),
		DirectionMean:          c.GetDirectionMean(),
		RemoveShipSpeed:        c.GetRemoveShipSpeed(),
		MarkBadBelowBottom:     c.GetMarkBadBelowBottom(),
	}
}

// FromWatercolumn returns a fully populated AveragingConfig describing cfg.
func FromWatercolumn(cfg watercolumn.Config) *AveragingConfig {
	return &AveragingConfig{
		MinBin:              ptrInt(cfg.MinBin),
		UseFixedMaxBin:      ptrBool(cfg.UseFixedMaxBin),
		FixedMaxBin:         ptrInt(cfg.FixedMaxBin),
		RunningAverageCount: ptrInt(cfg.MaxRunningAverageCount),
		OutputPeriod:        ptrString(cfg.OutputPeriod.String()),
		VelocityFrame:       ptrString(string(cfg.VelocityFrame)),
		HeadingSource:       ptrString(cfg.HeadingSource),
		DirectionMean:       ptrString(string(cfg.DirectionMean)),
		RemoveShipSpeed:     ptrBool(cfg.RemoveShipSpeed),
		MarkBadBelowBottom:  ptrBool(cfg.MarkBadBelowBottom),
	}
}
