package config

import "fmt"

// Validate checks cfg for the constraints spec.md's config keys imply and
// fills defaults for zero-valued optional fields, the same shape as
// orion-prototipe/internal/config/validator.go's Validate.
func Validate(cfg *Config) error {
	switch cfg.Camera.Format {
	case "", "MJPEG", "YUYV", "RGB24":
	default:
		return fmt.Errorf("camera.format must be one of MJPEG, YUYV, RGB24, got %q", cfg.Camera.Format)
	}
	switch cfg.Camera.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("camera.rotation must be one of 0, 90, 180, 270, got %d", cfg.Camera.Rotation)
	}
	if cfg.Camera.Resolution[0] <= 0 || cfg.Camera.Resolution[1] <= 0 {
		cfg.Camera.Resolution = [2]int{640, 480}
	}
	if cfg.Camera.MaxFPS == 0 {
		cfg.Camera.MaxFPS = 15
	}

	if cfg.Analyzer.MaxFPS == 0 {
		cfg.Analyzer.MaxFPS = 10
	}
	if cfg.Analyzer.ContourMinimumArea < 0 {
		return fmt.Errorf("analyzer.contour_minimum_area must be >= 0, got %f", cfg.Analyzer.ContourMinimumArea)
	}

	if cfg.Event.PrerollSeconds == 0 && cfg.Event.PostrollSeconds == 0 {
		cfg.Event.PrerollSeconds = 2
		cfg.Event.PostrollSeconds = 5
	}

	if cfg.Capture.Path == "" {
		return fmt.Errorf("capture.path is required")
	}

	if cfg.Stream.Port <= 0 || cfg.Stream.Port > 65535 {
		return fmt.Errorf("stream.port must be in 1..65535, got %d", cfg.Stream.Port)
	}
	if cfg.Stream.IP == "" {
		cfg.Stream.IP = "0.0.0.0"
	}

	switch cfg.Display.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("display.rotation must be one of 0, 90, 180, 270, got %d", cfg.Display.Rotation)
	}
	if cfg.Display.ActivationPeriodSeconds == 0 {
		cfg.Display.ActivationPeriodSeconds = 30
	}

	if cfg.System.CleanupIntervalSeconds == 0 {
		cfg.System.CleanupIntervalSeconds = 3600
	}
	if cfg.System.RetentionSeconds == 0 {
		cfg.System.RetentionSeconds = 7 * 24 * 3600
	}

	return nil
}
