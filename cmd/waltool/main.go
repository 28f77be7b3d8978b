// Command waltool converts write-ahead log files into the media assets
// spec.md §4.4 "Tooling contract" calls for: JPEG frames, a muxed video,
// and a metadata JSON, each independently selectable.
//
// Flag shape and default-to-all-outputs behavior are ported from
// original_source/src/bin/wal_tool.rs's Args/Actions, trading clap for
// the standard library flag package to match the rest of this
// repository's CLI surface.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doorcam/doorcamd/internal/frame"
	"github.com/doorcam/doorcamd/internal/videomux"
	"github.com/doorcam/doorcamd/internal/wal"
)

type options struct {
	input       string
	output      string
	images      bool
	video       bool
	metadata    bool
	overwrite   bool
	jpegQuality int
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "waltool:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}

	walPaths, err := collectWALPaths(opts.input)
	if err != nil {
		return fmt.Errorf("discover WAL files: %w", err)
	}
	if len(walPaths) == 0 {
		return fmt.Errorf("no WAL files found at %s", opts.input)
	}

	for _, path := range walPaths {
		if err := processWAL(path, opts); err != nil {
			slog.Error("waltool: failed to process WAL", "path", path, "error", err)
		}
	}
	return nil
}

func parseOptions(args []string) (options, error) {
	fs := flag.NewFlagSet("waltool", flag.ContinueOnError)

	var o options
	fs.StringVar(&o.input, "input", "", "path to a WAL file or a directory of WAL files")
	fs.StringVar(&o.output, "output", "./wal-export", "output base directory")
	fs.BoolVar(&o.images, "images", false, "extract JPEG images from the WAL")
	fs.BoolVar(&o.video, "video", false, "mux a Motion-JPEG AVI video from the WAL")
	fs.BoolVar(&o.metadata, "metadata", false, "write a metadata JSON describing the WAL")
	fs.BoolVar(&o.overwrite, "overwrite", false, "overwrite existing outputs instead of skipping")
	fs.IntVar(&o.jpegQuality, "jpeg-quality", 85, "JPEG quality used when a frame needs re-encoding")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.input == "" {
		return options{}, fmt.Errorf("--input is required")
	}
	if !o.images && !o.video && !o.metadata {
		o.images, o.video, o.metadata = true, true, true
	}
	return o, nil
}

func collectWALPaths(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if strings.HasSuffix(input, ".wal") {
			return []string{input}, nil
		}
		return nil, fmt.Errorf("%s is neither a .wal file nor a directory", input)
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".wal") {
			continue
		}
		paths = append(paths, filepath.Join(input, e.Name()))
	}
	return paths, nil
}

// exportMetadata mirrors wal_tool.rs's WalExportMetadata shape.
type exportMetadata struct {
	EventID        string    `json:"event_id"`
	WALPath        string    `json:"wal_path"`
	FrameCount     int       `json:"frame_count"`
	StartTimestamp time.Time `json:"start_timestamp"`
	EndTimestamp   time.Time `json:"end_timestamp"`
	Outputs        struct {
		ImagesDir    string `json:"images_dir,omitempty"`
		VideoPath    string `json:"video_path,omitempty"`
		MetadataPath string `json:"metadata_path,omitempty"`
	} `json:"outputs"`
}

func processWAL(path string, opts options) error {
	eventID := strings.TrimSuffix(filepath.Base(path), ".wal")

	reader, err := wal.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer reader.Close()

	frames, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(frames) == 0 {
		slog.Warn("waltool: WAL contained no recoverable frames, skipping", "path", path)
		return nil
	}

	meta := exportMetadata{
		EventID:        eventID,
		WALPath:        path,
		FrameCount:     len(frames),
		StartTimestamp: frames[0].Timestamp,
		EndTimestamp:   frames[len(frames)-1].Timestamp,
	}

	if opts.images {
		dir := filepath.Join(opts.output, eventID, "frames")
		if err := writeFrameImages(frames, dir, opts.jpegQuality, opts.overwrite); err != nil {
			return fmt.Errorf("write frame images: %w", err)
		}
		meta.Outputs.ImagesDir = dir
	}

	if opts.video {
		videoPath := filepath.Join(opts.output, eventID+".avi")
		if !opts.overwrite {
			if _, err := os.Stat(videoPath); err == nil {
				return fmt.Errorf("video %s exists (use --overwrite)", videoPath)
			}
		}
		if err := os.MkdirAll(filepath.Dir(videoPath), 0o755); err != nil {
			return err
		}
		jpegs, width, height, fps, err := encodeAllToJPEG(frames, opts.jpegQuality)
		if err != nil {
			return fmt.Errorf("encode frames for video: %w", err)
		}
		if err := videomux.WriteAVI(videoPath, jpegs, width, height, fps); err != nil {
			return fmt.Errorf("mux video: %w", err)
		}
		meta.Outputs.VideoPath = videoPath
	}

	if opts.metadata {
		metaPath := filepath.Join(opts.output, "metadata", eventID+".json")
		meta.Outputs.MetadataPath = metaPath
		if err := writeMetadataJSON(meta, metaPath, opts.overwrite); err != nil {
			return fmt.Errorf("write metadata: %w", err)
		}
	}

	slog.Info("waltool: processed WAL", "path", path, "frames", len(frames))
	return nil
}

func writeFrameImages(frames []*frame.Frame, dir string, quality int, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(dir); err == nil {
			return fmt.Errorf("frames directory %s exists (use --overwrite)", dir)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, f := range frames {
		jpeg, err := frame.EncodeJPEG(f, quality)
		if err != nil {
			return fmt.Errorf("frame %d: %w", f.ID, err)
		}
		name := fmt.Sprintf("%010d.jpg", i)
		if err := os.WriteFile(filepath.Join(dir, name), jpeg, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// encodeAllToJPEG returns every frame encoded to JPEG plus the common
// width/height and an estimated frame rate derived from the recorded
// timestamps, for the AVI header.
func encodeAllToJPEG(frames []*frame.Frame, quality int) (jpegs [][]byte, width, height int, fps uint32, err error) {
	jpegs = make([][]byte, len(frames))
	for i, f := range frames {
		j, encErr := frame.EncodeJPEG(f, quality)
		if encErr != nil {
			return nil, 0, 0, 0, fmt.Errorf("frame %d: %w", f.ID, encErr)
		}
		jpegs[i] = j
	}
	width, height = frames[0].Width, frames[0].Height

	fps = 30
	if len(frames) > 1 {
		span := frames[len(frames)-1].Timestamp.Sub(frames[0].Timestamp)
		if span > 0 {
			fps = uint32(float64(len(frames)-1) / span.Seconds())
			if fps == 0 {
				fps = 1
			}
		}
	}
	return jpegs, width, height, fps, nil
}

func writeMetadataJSON(meta exportMetadata, path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("metadata file %s exists (use --overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	buf, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}
