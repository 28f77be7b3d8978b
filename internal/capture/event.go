package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doorcam/doorcamd/internal/eventbus"
	"github.com/doorcam/doorcamd/internal/frame"
	"github.com/doorcam/doorcamd/internal/videomux"
	"github.com/doorcam/doorcamd/internal/wal"
)

// pollInterval mirrors run_capture_event's 100ms postroll check tick.
const pollInterval = 100 * time.Millisecond

// jpegQuality is used whenever a frame needs re-encoding to JPEG, for the
// WAL, the optional frames/ directory, and the optional muxed video.
const jpegQuality = 85

// captureTask tracks one in-flight capture from Preroll through
// Finalizing. It outlives the triggering handleMotion call: it runs on
// its own goroutine, coordinated with the engine only through extend and
// cancellation.
type captureTask struct {
	eventID   string
	dir       string
	preroll   time.Duration
	postroll  time.Duration
	startTime time.Time // motion time minus preroll

	mu           sync.Mutex
	latestMotion time.Time
	motionAreas  []MotionAreaSample

	cancel context.CancelFunc
}

func (t *captureTask) extend(motionTime time.Time, area float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if motionTime.After(t.latestMotion) {
		t.latestMotion = motionTime
	}
	t.motionAreas = append(t.motionAreas, MotionAreaSample{Timestamp: motionTime, Area: area})
}

func (t *captureTask) latest() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latestMotion
}

func (t *captureTask) motionAreaSamples() []MotionAreaSample {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]MotionAreaSample, len(t.motionAreas))
	copy(out, t.motionAreas)
	return out
}

// newEventID mirrors original_source/src/capture/core.rs's event id
// format: UTC, millisecond-resolution, lexicographically sortable.
func newEventID(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s_%03d", t.Format("20060102_150405"), t.Nanosecond()/1e6)
}

func (e *Engine) startCapture(ctx context.Context, motionTime time.Time, area float64) {
	preroll := time.Duration(e.cfg.PrerollSeconds) * time.Second
	postroll := time.Duration(e.cfg.PostrollSeconds) * time.Second

	eventID := newEventID(motionTime)
	taskCtx, cancel := context.WithCancel(ctx)

	task := &captureTask{
		eventID:      eventID,
		dir:          filepath.Join(e.cfg.EventDir, eventID),
		preroll:      preroll,
		postroll:     postroll,
		startTime:    motionTime.Add(-preroll),
		latestMotion: motionTime,
		motionAreas:  []MotionAreaSample{{Timestamp: motionTime, Area: area}},
		cancel:       cancel,
	}

	e.mu.Lock()
	e.state = Preroll
	e.active = task
	e.mu.Unlock()

	e.bus.Publish(eventbus.Event{Kind: eventbus.CaptureStarted, Timestamp: motionTime, EventID: eventID})

	go e.runCapture(taskCtx, task)
}

func (e *Engine) runCapture(ctx context.Context, task *captureTask) {
	log := e.log.With("event_id", task.eventID)
	log.Info("capture: starting", "state", Preroll.String())

	walDir := filepath.Join(e.cfg.EventDir, "wal")
	walPath := filepath.Join(walDir, task.eventID+".wal")
	if err := ensureDir(walDir); err != nil {
		log.Error("capture: cannot create wal dir", "error", err)
		e.finishCapture(task, finalizeResult{truncated: true})
		return
	}

	w, err := wal.Create(walPath, task.eventID, e.cfg.CameraFPS)
	if err != nil {
		log.Error("capture: cannot create wal writer", "error", err)
		e.finishCapture(task, finalizeResult{truncated: true})
		return
	}

	truncated := false
	prerollFrames := e.ring.Preroll(task.preroll)
	var lastID uint64
	for _, f := range prerollFrames {
		if err := appendAsJPEG(w, f); err != nil {
			log.Warn("capture: wal append failed during preroll", "error", err)
			e.reportWALError(task.eventID, err)
			truncated = true
			break
		}
		lastID = f.ID
	}
	prerollCount := len(prerollFrames)
	log.Info("capture: preroll collected", "frames", prerollCount)

	e.mu.Lock()
	e.state = Recording
	e.mu.Unlock()

	if !truncated {
		ticker := time.NewTicker(pollInterval)
		postrollStart := time.Now()
	loop:
		for {
			select {
			case <-ctx.Done():
				log.Warn("capture: cancelled")
				break loop
			case <-ticker.C:
				newLastID, failed := e.drainNewFrames(w, lastID, task.eventID)
				lastID = newLastID
				if failed {
					truncated = true
					break loop
				}

				latest := task.latest()
				sinceMotion := time.Since(latest)
				sincePostrollStart := time.Since(postrollStart)
				if sinceMotion >= task.postroll && sincePostrollStart >= task.postroll {
					log.Info("capture: postroll complete", "since_motion", sinceMotion)
					break loop
				}
			}
		}
		ticker.Stop()
	}

	frameCount := w.FrameCount()
	finalPath, closeErr := w.Close()
	if closeErr != nil {
		log.Error("capture: wal close failed", "error", closeErr)
		truncated = true
	}

	e.mu.Lock()
	e.state = Finalizing
	e.finalizingAt = time.Now()
	e.mu.Unlock()

	result := finalizeResult{
		walPath:      finalPath,
		frameCount:   int(frameCount),
		prerollCount: prerollCount,
		truncated:    truncated,
	}
	e.finalizeArtifacts(log, task, &result)

	if e.cfg.SaveMetadata {
		meta := Metadata{
			EventID:     task.eventID,
			StartedAt:   task.startTime,
			EndedAt:     time.Now(),
			FrameCount:  result.frameCount,
			MotionAreas: task.motionAreaSamples(),
			Artifacts:   result.artifacts,
			Truncated:   result.truncated,
		}
		if err := saveMetadata(meta, e.cfg.EventDir); err != nil {
			log.Warn("capture: metadata save failed", "error", err)
		}
	}

	e.finishCapture(task, result)
}

// finalizeResult accumulates what a capture produced, threaded from
// runCapture through finalizeArtifacts into both the metadata JSON and
// the CaptureCompleted log line.
type finalizeResult struct {
	walPath      string
	frameCount   int
	prerollCount int
	truncated    bool
	artifacts    []Artifact
}

// finalizeArtifacts records the WAL itself, then optionally writes a
// frames/ JPEG directory (keep_images) and muxes a video (video_encoding)
// — spec.md §4.3 Finalizing's "optionally launch encoder on WAL ->
// container artifact, optionally write frames/ JPEG directory". Encoder
// failures here are logged and skipped, never fatal to the capture: the
// WAL itself is already safely closed and retained.
func (e *Engine) finalizeArtifacts(log interface {
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}, task *captureTask, result *finalizeResult) {
	if result.walPath != "" {
		result.artifacts = append(result.artifacts, Artifact{Kind: "wal", Path: result.walPath})
	}
	if result.frameCount == 0 {
		return
	}

	reader, err := wal.Open(result.walPath)
	if err != nil {
		log.Warn("capture: cannot reopen wal for artifact export", "error", err)
		return
	}
	defer reader.Close()

	frames, err := reader.ReadAll()
	if err != nil {
		log.Warn("capture: cannot read wal for artifact export", "error", err)
		return
	}
	if len(frames) == 0 {
		return
	}

	if e.cfg.KeepImages {
		dir := filepath.Join(task.dir, "frames")
		if err := writeFrameImages(frames, dir); err != nil {
			log.Warn("capture: keep_images export failed", "error", err)
		} else {
			result.artifacts = append(result.artifacts, Artifact{Kind: "frames", Path: dir})
		}
	}

	if e.cfg.VideoEncoding {
		videoPath := filepath.Join(e.cfg.EventDir, task.eventID+".avi")
		if err := muxVideo(frames, videoPath, e.cfg.CameraFPS); err != nil {
			log.Warn("capture: video_encoding failed, wal retained for later recovery", "error", err)
		} else {
			result.artifacts = append(result.artifacts, Artifact{Kind: "video", Path: videoPath})
		}
	}
}

// writeFrameImages writes each frame as a zero-padded JPEG (spec.md §6
// "Frame filenames: NNNNNNNNNN.jpg zero-padded to 10 digits in id
// order"). Every frame read back from the WAL is already MJPEG
// (appendAsJPEG guarantees that on write), so EncodeJPEG never needs to
// decode-then-reencode here.
func writeFrameImages(frames []*frame.Frame, dir string) error {
	if err := ensureDir(dir); err != nil {
		return err
	}
	for i, f := range frames {
		jpeg, err := frame.EncodeJPEG(f, jpegQuality)
		if err != nil {
			return fmt.Errorf("capture: encode frame %d: %w", f.ID, err)
		}
		name := fmt.Sprintf("%010d.jpg", i)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, jpeg, 0o644); err != nil {
			return fmt.Errorf("capture: write frame image %s: %w", path, err)
		}
	}
	return nil
}

func muxVideo(frames []*frame.Frame, path string, cameraFPS uint32) error {
	jpegs := make([][]byte, len(frames))
	for i, f := range frames {
		jpeg, err := frame.EncodeJPEG(f, jpegQuality)
		if err != nil {
			return fmt.Errorf("capture: encode frame %d: %w", f.ID, err)
		}
		jpegs[i] = jpeg
	}
	width, height := frames[0].Width, frames[0].Height
	fps := cameraFPS
	if fps == 0 {
		fps = 10
	}
	return videomux.WriteAVI(path, jpegs, width, height, fps)
}

// drainNewFrames appends every ring frame with id > lastID, returning the
// new high-water mark and whether a WAL write failure occurred. Mirrors
// get_frames_since_id in the original.
func (e *Engine) drainNewFrames(w *wal.Writer, lastID uint64, eventID string) (newLastID uint64, failed bool) {
	latest := e.ring.Latest()
	if latest == nil || latest.ID <= lastID {
		return lastID, false
	}
	var frames []*frame.Frame
	for id := lastID + 1; id <= latest.ID; id++ {
		if f := e.ring.ByID(id); f != nil {
			frames = append(frames, f)
		}
	}
	for _, f := range frames {
		if err := appendAsJPEG(w, f); err != nil {
			e.log.Warn("capture: wal append failed", "error", err)
			e.reportWALError(eventID, err)
			return lastID, true
		}
		lastID = f.ID
	}
	return lastID, false
}

// reportWALError publishes ComponentError for a WAL write failure
// (spec.md §4.3 Failure / §7 WALWrite kind), with a fresh TraceID for
// this one report.
func (e *Engine) reportWALError(eventID string, err error) {
	e.bus.Publish(eventbus.Event{
		Kind:      eventbus.ComponentError,
		Timestamp: time.Now(),
		Component: "capture.wal",
		Message:   err.Error(),
		EventID:   eventID,
		TraceID:   uuid.New(),
	})
}

// appendAsJPEG re-encodes f as JPEG before handing it to the WAL, which
// only ever stores MJPEG payloads regardless of the camera's native
// format (original_source/src/infrastructure/wal.rs hard-codes
// FrameFormat::Mjpeg on read for the same reason).
func appendAsJPEG(w *wal.Writer, f *frame.Frame) error {
	if f.Format == frame.MJPEG {
		return w.Append(f)
	}
	payload, err := frame.EncodeJPEG(f, jpegQuality)
	if err != nil {
		return err
	}
	jpegFrame := *f
	jpegFrame.Format = frame.MJPEG
	jpegFrame.Payload = payload
	return w.Append(&jpegFrame)
}

// finishCapture publishes CaptureCompleted, clears engine state, and
// handles the requeue edge case: motion seen while Finalizing within
// requeueWindow starts the next capture's Preroll immediately.
func (e *Engine) finishCapture(task *captureTask, result finalizeResult) {
	e.bus.Publish(eventbus.Event{
		Kind:       eventbus.CaptureCompleted,
		Timestamp:  time.Now(),
		EventID:    task.eventID,
		FrameCount: result.frameCount,
	})

	e.mu.Lock()
	e.active = nil
	pending := e.pendingMotion
	e.pendingMotion = nil
	e.mu.Unlock()

	e.log.Info("capture: finalized",
		"event_id", task.eventID,
		"total_frames", result.frameCount,
		"preroll_frames", result.prerollCount,
		"wal_path", result.walPath,
		"truncated", result.truncated,
	)

	if pending != nil {
		e.mu.Lock()
		runCtx := e.runCtx
		e.state = Idle
		e.mu.Unlock()
		e.log.Info("capture: requeued motion starting next capture", "event_id", task.eventID)
		if runCtx != nil {
			e.startCapture(runCtx, pending.Time, pending.Area)
		}
		return
	}

	e.mu.Lock()
	e.state = Idle
	e.mu.Unlock()
}
