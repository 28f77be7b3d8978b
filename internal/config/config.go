// Package config implements YAML configuration loading, DOORCAM_-prefixed
// environment overrides, and validation for the door camera daemon, in the
// style of References/orion-prototipe/internal/config: a flat struct tree
// with yaml tags, a Load that reads+unmarshals+validates in one call, and
// an explicit Validate rather than a reflection-based generic binder.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration tree, grouped the way spec.md §6
// groups it: camera, analyzer, event, capture, stream, display, system.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Event    EventConfig    `yaml:"event"`
	Capture  CaptureConfig  `yaml:"capture"`
	Stream   StreamConfig   `yaml:"stream"`
	Display  DisplayConfig  `yaml:"display"`
	System   SystemConfig   `yaml:"system"`
	Debug    bool           `yaml:"debug"`
}

// CameraConfig configures the frame producer.
type CameraConfig struct {
	Index      uint32 `yaml:"index"`
	Resolution [2]int `yaml:"resolution"`
	MaxFPS     uint32 `yaml:"max_fps"`
	Format     string `yaml:"format"` // MJPEG|YUYV|RGB24
	Rotation   int    `yaml:"rotation"`
}

// AnalyzerConfig configures motion detection.
type AnalyzerConfig struct {
	MaxFPS             uint32  `yaml:"max_fps"`
	DeltaThreshold     uint8   `yaml:"delta_threshold"`
	ContourMinimumArea float64 `yaml:"contour_minimum_area"`
}

// EventConfig configures preroll/postroll windows.
type EventConfig struct {
	PrerollSeconds  uint32 `yaml:"preroll_seconds"`
	PostrollSeconds uint32 `yaml:"postroll_seconds"`
}

// CaptureConfig configures where and how captures are written to disk.
type CaptureConfig struct {
	Path             string `yaml:"path"`
	TimestampOverlay bool   `yaml:"timestamp_overlay"`
	VideoEncoding    bool   `yaml:"video_encoding"`
	KeepImages       bool   `yaml:"keep_images"`
	SaveMetadata     bool   `yaml:"save_metadata"`
}

// StreamConfig configures the MJPEG HTTP server.
type StreamConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

// DisplayConfig configures the display controller and touch subtask.
type DisplayConfig struct {
	FramebufferDevice       string `yaml:"framebuffer_device"`
	BacklightDevice         string `yaml:"backlight_device"`
	TouchDevice             string `yaml:"touch_device"`
	ActivationPeriodSeconds uint32 `yaml:"activation_period_seconds"`
	Rotation                int    `yaml:"rotation"`
}

// SystemConfig configures retention and the event janitor.
type SystemConfig struct {
	RetentionSeconds       uint32 `yaml:"retention_seconds"`
	CleanupIntervalSeconds uint32 `yaml:"cleanup_interval_seconds"`
	RingCapacityOverride   int    `yaml:"ring_capacity_override"`
}

// Load reads path, unmarshals YAML into a Config seeded with defaults,
// applies DOORCAM_-prefixed environment overrides, and validates the
// result. Mirrors orion-prototipe/internal/config.Load's read -> parse ->
// validate pipeline.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with every field set to the value spec.md §6
// calls out as the default for an optional key.
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Resolution: [2]int{640, 480},
			MaxFPS:     15,
			Format:     "MJPEG",
		},
		Analyzer: AnalyzerConfig{
			MaxFPS:             10,
			DeltaThreshold:     25,
			ContourMinimumArea: 500,
		},
		Event: EventConfig{
			PrerollSeconds:  2,
			PostrollSeconds: 5,
		},
		Capture: CaptureConfig{
			Path:         "./events",
			SaveMetadata: true,
		},
		Stream: StreamConfig{
			IP:   "0.0.0.0",
			Port: 8080,
		},
		Display: DisplayConfig{
			ActivationPeriodSeconds: 30,
		},
		System: SystemConfig{
			RetentionSeconds:       7 * 24 * 3600,
			CleanupIntervalSeconds: 3600,
		},
	}
}
