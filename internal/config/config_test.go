package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "doorcam.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsForMissingKeys(t *testing.T) {
	path := writeTempConfig(t, "camera:\n  index: 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Camera.MaxFPS != 15 {
		t.Errorf("expected default max_fps 15, got %d", cfg.Camera.MaxFPS)
	}
	if cfg.Stream.Port != 8080 {
		t.Errorf("expected default stream port 8080, got %d", cfg.Stream.Port)
	}
	if cfg.Capture.Path == "" {
		t.Errorf("expected a default capture path")
	}
}

func TestLoadRejectsInvalidFormat(t *testing.T) {
	path := writeTempConfig(t, "camera:\n  format: \"H264\"\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unsupported camera.format")
	}
}

func TestLoadRejectsInvalidRotation(t *testing.T) {
	path := writeTempConfig(t, "camera:\n  rotation: 45\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a non-multiple-of-90 rotation")
	}
}

func TestEnvOverrideWinsOverYAML(t *testing.T) {
	path := writeTempConfig(t, "stream:\n  port: 9000\n")
	t.Setenv("DOORCAM_STREAM_PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Stream.Port != 9100 {
		t.Errorf("expected env override to win, got port %d", cfg.Stream.Port)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
