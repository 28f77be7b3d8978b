package config

import (
	"os"
	"strconv"
)

// applyEnvOverrides walks the known DOORCAM_-prefixed keys and, when set,
// overrides the corresponding field. Mirrors the teacher's flat, explicit
// style rather than a reflection-based generic binder.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("DOORCAM_CAMERA_INDEX"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Camera.Index = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("DOORCAM_CAMERA_MAX_FPS"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Camera.MaxFPS = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("DOORCAM_CAMERA_FORMAT"); ok {
		cfg.Camera.Format = v
	}
	if v, ok := os.LookupEnv("DOORCAM_CAMERA_ROTATION"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Camera.Rotation = n
		}
	}

	if v, ok := os.LookupEnv("DOORCAM_ANALYZER_MAX_FPS"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Analyzer.MaxFPS = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("DOORCAM_ANALYZER_DELTA_THRESHOLD"); ok {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			cfg.Analyzer.DeltaThreshold = uint8(n)
		}
	}
	if v, ok := os.LookupEnv("DOORCAM_ANALYZER_CONTOUR_MINIMUM_AREA"); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analyzer.ContourMinimumArea = n
		}
	}

	if v, ok := os.LookupEnv("DOORCAM_EVENT_PREROLL_SECONDS"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Event.PrerollSeconds = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("DOORCAM_EVENT_POSTROLL_SECONDS"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Event.PostrollSeconds = uint32(n)
		}
	}

	if v, ok := os.LookupEnv("DOORCAM_CAPTURE_PATH"); ok {
		cfg.Capture.Path = v
	}
	if v, ok := os.LookupEnv("DOORCAM_CAPTURE_KEEP_IMAGES"); ok {
		cfg.Capture.KeepImages = v == "true" || v == "1"
	}
	if v, ok := os.LookupEnv("DOORCAM_CAPTURE_SAVE_METADATA"); ok {
		cfg.Capture.SaveMetadata = v == "true" || v == "1"
	}
	if v, ok := os.LookupEnv("DOORCAM_CAPTURE_VIDEO_ENCODING"); ok {
		cfg.Capture.VideoEncoding = v == "true" || v == "1"
	}

	if v, ok := os.LookupEnv("DOORCAM_STREAM_IP"); ok {
		cfg.Stream.IP = v
	}
	if v, ok := os.LookupEnv("DOORCAM_STREAM_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.Port = n
		}
	}

	if v, ok := os.LookupEnv("DOORCAM_DISPLAY_FRAMEBUFFER_DEVICE"); ok {
		cfg.Display.FramebufferDevice = v
	}
	if v, ok := os.LookupEnv("DOORCAM_DISPLAY_BACKLIGHT_DEVICE"); ok {
		cfg.Display.BacklightDevice = v
	}
	if v, ok := os.LookupEnv("DOORCAM_DISPLAY_TOUCH_DEVICE"); ok {
		cfg.Display.TouchDevice = v
	}
	if v, ok := os.LookupEnv("DOORCAM_DISPLAY_ACTIVATION_PERIOD_SECONDS"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Display.ActivationPeriodSeconds = uint32(n)
		}
	}

	if v, ok := os.LookupEnv("DOORCAM_SYSTEM_RETENTION_SECONDS"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.System.RetentionSeconds = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("DOORCAM_SYSTEM_CLEANUP_INTERVAL_SECONDS"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.System.CleanupIntervalSeconds = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("DOORCAM_SYSTEM_RING_CAPACITY_OVERRIDE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.System.RingCapacityOverride = n
		}
	}
}
