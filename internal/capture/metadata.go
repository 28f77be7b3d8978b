package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MotionAreaSample records one motion observation made while a capture
// was in Preroll or Recording, for the metadata JSON's motion_areas
// series (spec.md §6 "On-disk formats").
type MotionAreaSample struct {
	Timestamp time.Time `json:"ts"`
	Area      float64   `json:"area"`
}

// Artifact names one file or directory produced by finalizing a capture
// (spec.md §6 "On-disk formats" artifacts:[{kind, path}]).
type Artifact struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// Metadata describes one completed capture, written alongside the event's
// frames for later inspection — ported from
// original_source/src/capture/metadata.rs's CaptureMetadata, dropping the
// embedded config snapshot (spec.md's event directory layout does not
// version configuration per event), and shaped to spec.md §6's
// documented schema.
type Metadata struct {
	EventID     string             `json:"event_id"`
	StartedAt   time.Time          `json:"started_at_iso8601"`
	EndedAt     time.Time          `json:"ended_at_iso8601"`
	FrameCount  int                `json:"frame_count"`
	MotionAreas []MotionAreaSample `json:"motion_areas"`
	Artifacts   []Artifact         `json:"artifacts"`
	Truncated   bool               `json:"truncated"`
}

func saveMetadata(m Metadata, eventDir string) error {
	dir := filepath.Join(eventDir, "metadata")
	if err := ensureDir(dir); err != nil {
		return err
	}

	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("capture: marshal metadata: %w", err)
	}

	path := filepath.Join(dir, m.EventID+".json")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("capture: write metadata: %w", err)
	}
	return nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("capture: mkdir %s: %w", dir, err)
	}
	return nil
}
