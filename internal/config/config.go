// SPDX-License-Identifier: GPL-3.0-only

// Package config loads the daemon configuration: calibration tables, mixing
// parameters, the output driver and the scene schedule.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/viper"
	"periph.io/x/conn/v3/physic"

	"github.com/bestelampe/lampd/internal/color"
	"github.com/bestelampe/lampd/internal/control"
	"github.com/bestelampe/lampd/internal/gamut"
	"github.com/bestelampe/lampd/internal/hid"
	"github.com/bestelampe/lampd/internal/mixer"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. LAMPD_DRIVER_TYPE for driver.type.
const EnvPrefix = "LAMPD"

// Driver types.
const (
	DriverLog = "log"
	DriverPWM = "pwm"
	DriverHID = "hid"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete daemon configuration.
type Config struct {
	Gamma          float64         `mapstructure:"gamma"`
	LuminanceScale float64         `mapstructure:"luminance_scale"`
	ClampPolicy    string          `mapstructure:"clamp_policy"`
	OutOfGamut     string          `mapstructure:"out_of_gamut"`
	Interval       time.Duration   `mapstructure:"interval"`
	Initial        InitialConfig   `mapstructure:"initial"`
	Driver         DriverConfig    `mapstructure:"driver"`
	Channels       []ChannelConfig `mapstructure:"channels"`
	Triangles      [][]string      `mapstructure:"triangles"`
	Schedule       []SceneConfig   `mapstructure:"schedule"`
}

// InitialConfig is the target the daemon starts with.
type InitialConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	Brightness  float64 `mapstructure:"brightness"`
	Speed       float64 `mapstructure:"speed"`
}

// DriverConfig selects and configures the output driver.
type DriverConfig struct {
	Type      string   `mapstructure:"type"`
	Frequency string   `mapstructure:"frequency"`
	Pins      []string `mapstructure:"pins"`
	VendorID  uint16   `mapstructure:"vendor_id"`
	ProductID uint16   `mapstructure:"product_id"`
}

// ChannelConfig is one row of the calibration table.
type ChannelConfig struct {
	Name          string  `mapstructure:"name"`
	X             float64 `mapstructure:"x"`
	Y             float64 `mapstructure:"y"`
	MaxBrightness float64 `mapstructure:"max_brightness"`
}

// SceneConfig is a scheduled target change.
type SceneConfig struct {
	Spec        string  `mapstructure:"spec"`
	Temperature float64 `mapstructure:"temperature"`
	Brightness  float64 `mapstructure:"brightness"`
	Speed       float64 `mapstructure:"speed"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gamma", 2.0)
	v.SetDefault("luminance_scale", 165.0)
	v.SetDefault("clamp_policy", color.ExtrapolateRed.String())
	v.SetDefault("out_of_gamut", mixer.StrategyClamp.String())
	v.SetDefault("interval", control.DefaultInterval)
	v.SetDefault("initial.temperature", 3000.0)
	v.SetDefault("initial.brightness", 0.001)
	v.SetDefault("initial.speed", 0.01)
	v.SetDefault("driver.type", DriverLog)
	v.SetDefault("driver.frequency", "2400Hz")
	v.SetDefault("driver.vendor_id", hid.DefaultVendorID)
	v.SetDefault("driver.product_id", hid.DefaultProductID)
}

// Load reads the configuration file at path, if any, and applies environment
// overrides and defaults. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// The hand-picked triangles only fit the default table.
	if len(cfg.Channels) == 0 {
		cfg.Channels = defaultChannels()
		if len(cfg.Triangles) == 0 {
			cfg.Triangles = defaultTriangles()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultChannels() []ChannelConfig {
	channels := make([]ChannelConfig, len(gamut.DefaultChannels))
	for i, spec := range gamut.DefaultChannels {
		channels[i] = ChannelConfig{Name: spec.Name, X: spec.X, Y: spec.Y, MaxBrightness: spec.MaxBrightness}
	}
	return channels
}

func defaultTriangles() [][]string {
	triangles := make([][]string, len(gamut.DefaultTriangles))
	for i, tri := range gamut.DefaultTriangles {
		triangles[i] = []string{tri[0], tri[1], tri[2]}
	}
	return triangles
}

// Validate checks values that viper cannot check while decoding.
// Calibration geometry is checked by gamut.Build.
func (c *Config) Validate() error {
	if !positive(c.Gamma) {
		return fmt.Errorf("%w: gamma must be positive, got %v", ErrInvalidConfig, c.Gamma)
	}
	if !positive(c.LuminanceScale) {
		return fmt.Errorf("%w: luminance_scale must be positive, got %v", ErrInvalidConfig, c.LuminanceScale)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, c.Interval)
	}
	if _, err := color.ParseClampPolicy(c.ClampPolicy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := mixer.ParseStrategy(c.OutOfGamut); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.InitialTarget().Validate(); err != nil {
		return fmt.Errorf("%w: initial target: %w", ErrInvalidConfig, err)
	}
	for i, tri := range c.Triangles {
		if len(tri) != 3 {
			return fmt.Errorf("%w: triangle %d has %d corners", ErrInvalidConfig, i, len(tri))
		}
	}

	switch c.Driver.Type {
	case DriverLog, DriverHID:
	case DriverPWM:
		if len(c.Driver.Pins) != len(c.Channels) {
			return fmt.Errorf("%w: %d pins for %d channels", ErrInvalidConfig, len(c.Driver.Pins), len(c.Channels))
		}
		if _, err := c.Frequency(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown driver type %q", ErrInvalidConfig, c.Driver.Type)
	}
	return nil
}

// positive reports whether f is a finite number above zero. NaN fails.
func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 1)
}

// ChannelSpecs returns the calibration table for gamut.Build.
func (c *Config) ChannelSpecs() []gamut.ChannelSpec {
	specs := make([]gamut.ChannelSpec, len(c.Channels))
	for i, ch := range c.Channels {
		specs[i] = gamut.ChannelSpec{Name: ch.Name, X: ch.X, Y: ch.Y, MaxBrightness: ch.MaxBrightness}
	}
	return specs
}

// ChannelNames returns the channel names in index order.
func (c *Config) ChannelNames() []string {
	names := make([]string, len(c.Channels))
	for i, ch := range c.Channels {
		names[i] = ch.Name
	}
	return names
}

// GamutOptions returns the gamut.Build options. Without triangles the gamut
// is triangulated automatically.
func (c *Config) GamutOptions() []gamut.Option {
	if len(c.Triangles) == 0 {
		return nil
	}
	triangles := make([][3]string, len(c.Triangles))
	for i, tri := range c.Triangles {
		copy(triangles[i][:], tri)
	}
	return []gamut.Option{gamut.WithTriangles(triangles)}
}

// MixerOptions returns the mixer.New options. Call Validate first.
func (c *Config) MixerOptions() []mixer.Option {
	policy, _ := color.ParseClampPolicy(c.ClampPolicy)
	strategy, _ := mixer.ParseStrategy(c.OutOfGamut)
	return []mixer.Option{
		mixer.WithGamma(c.Gamma),
		mixer.WithLuminanceScale(c.LuminanceScale),
		mixer.WithClampPolicy(policy),
		mixer.WithStrategy(strategy),
	}
}

// InitialTarget returns the target the daemon starts with.
func (c *Config) InitialTarget() control.Target {
	return control.Target{
		Temperature: c.Initial.Temperature,
		Brightness:  c.Initial.Brightness,
		Speed:       c.Initial.Speed,
	}
}

// Frequency parses the PWM frequency, e.g. "2400Hz" or "2.4kHz". A bare
// number is taken as Hertz.
func (c *Config) Frequency() (physic.Frequency, error) {
	value := strings.TrimSpace(c.Driver.Frequency)
	if strings.IndexFunc(value, unicode.IsLetter) < 0 {
		value += "Hz"
	}

	var f physic.Frequency
	if err := f.Set(value); err != nil {
		return 0, fmt.Errorf("%w: driver frequency %q: %w", ErrInvalidConfig, c.Driver.Frequency, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("%w: driver frequency must be positive", ErrInvalidConfig)
	}
	return f, nil
}
