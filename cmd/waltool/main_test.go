package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/doorcam/doorcamd/internal/frame"
	"github.com/doorcam/doorcamd/internal/wal"
)

func writeTestWAL(t *testing.T, dir, eventID string, count int) string {
	t.Helper()
	w, err := wal.Create(filepath.Join(dir, eventID+".wal"), eventID, 10)
	if err != nil {
		t.Fatalf("wal.Create: %v", err)
	}
	for i := 0; i < count; i++ {
		f := &frame.Frame{
			ID:        uint64(i),
			Timestamp: time.Unix(1700000000, int64(i)*100_000_000),
			Width:     64,
			Height:    48,
			Format:    frame.MJPEG,
			Payload:   []byte{0xFF, 0xD8, 0xFF, 0xD9}, // minimal, opaque JPEG-shaped payload
		}
		if err := w.Append(f); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	path, err := w.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestParseOptionsDefaultsToAllOutputs(t *testing.T) {
	opts, err := parseOptions([]string{"--input", "/tmp/x.wal"})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if !opts.images || !opts.video || !opts.metadata {
		t.Errorf("expected all outputs enabled by default, got %+v", opts)
	}
}

func TestParseOptionsRequiresInput(t *testing.T) {
	if _, err := parseOptions(nil); err == nil {
		t.Fatal("expected an error when --input is missing")
	}
}

func TestParseOptionsHonorsExplicitSelection(t *testing.T) {
	opts, err := parseOptions([]string{"--input", "/tmp/x.wal", "--images"})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if !opts.images || opts.video || opts.metadata {
		t.Errorf("expected only images selected, got %+v", opts)
	}
}

func TestCollectWALPathsFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTestWAL(t, dir, "event-a", 1)
	writeTestWAL(t, dir, "event-b", 1)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	paths, err := collectWALPaths(dir)
	if err != nil {
		t.Fatalf("collectWALPaths: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 WAL files, got %d: %v", len(paths), paths)
	}
}

func TestProcessWALWritesImagesAndMetadata(t *testing.T) {
	dir := t.TempDir()
	walPath := writeTestWAL(t, dir, "event-c", 3)

	outDir := t.TempDir()
	opts := options{input: walPath, output: outDir, images: true, metadata: true, jpegQuality: 85}

	if err := processWAL(walPath, opts); err != nil {
		t.Fatalf("processWAL: %v", err)
	}

	framesDir := filepath.Join(outDir, "event-c", "frames")
	entries, err := os.ReadDir(framesDir)
	if err != nil {
		t.Fatalf("ReadDir frames: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 extracted frames, got %d", len(entries))
	}

	metaPath := filepath.Join(outDir, "metadata", "event-c.json")
	buf, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("ReadFile metadata: %v", err)
	}
	var meta exportMetadata
	if err := json.Unmarshal(buf, &meta); err != nil {
		t.Fatalf("Unmarshal metadata: %v", err)
	}
	if meta.FrameCount != 3 {
		t.Errorf("expected frame_count 3, got %d", meta.FrameCount)
	}
}

func TestProcessWALMuxesVideo(t *testing.T) {
	dir := t.TempDir()
	walPath := writeTestWAL(t, dir, "event-d", 5)

	outDir := t.TempDir()
	opts := options{input: walPath, output: outDir, video: true, jpegQuality: 85}

	if err := processWAL(walPath, opts); err != nil {
		t.Fatalf("processWAL: %v", err)
	}

	videoPath := filepath.Join(outDir, "event-d.avi")
	info, err := os.Stat(videoPath)
	if err != nil {
		t.Fatalf("Stat video: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected a non-empty AVI file")
	}
}

func TestProcessWALSkipsEmptyWAL(t *testing.T) {
	dir := t.TempDir()
	walPath := writeTestWAL(t, dir, "event-empty", 0)

	opts := options{input: walPath, output: t.TempDir(), metadata: true}
	if err := processWAL(walPath, opts); err != nil {
		t.Fatalf("processWAL on empty WAL should not error, got: %v", err)
	}
}
