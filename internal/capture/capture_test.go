package capture

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/doorcam/doorcamd/internal/eventbus"
	"github.com/doorcam/doorcamd/internal/frame"
	"github.com/doorcam/doorcamd/internal/ring"
)

func testEngine(t *testing.T, preroll, postroll int) (*Engine, *ring.Ring, *eventbus.Bus) {
	t.Helper()
	dir := t.TempDir()
	r := ring.New(64)
	bus := eventbus.New()
	cfg := Config{
		EventDir:        dir,
		PrerollSeconds:  preroll,
		PostrollSeconds: postroll,
		CameraFPS:       10,
		SaveMetadata:    true,
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(cfg, r, bus, log), r, bus
}

func seedRing(r *ring.Ring, n int, start time.Time) {
	for i := 0; i < n; i++ {
		r.Push(&frame.Frame{
			ID:        uint64(i),
			Timestamp: start.Add(time.Duration(i) * 100 * time.Millisecond),
			Width:     8, Height: 8,
			Format:  frame.MJPEG,
			Payload: []byte{0xff, 0xd8, 0xff, 0xd9},
		})
	}
}

func TestIdleToRecordingOnMotion(t *testing.T) {
	e, r, bus := testEngine(t, 1, 1)
	seedRing(r, 20, time.Now().Add(-2*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	sub := bus.Subscribe(4)
	defer sub.Unsubscribe()

	bus.Publish(eventbus.Event{Kind: eventbus.MotionDetected, Timestamp: time.Now(), Area: 500})

	// The bus delivers the MotionDetected just published to every
	// subscriber, this one included; the first event after it must be
	// CaptureStarted.
	startTimeout := time.After(time.Second)
waitStart:
	for {
		select {
		case ev := <-sub.Events:
			if ev.Kind == eventbus.MotionDetected {
				continue
			}
			if ev.Kind != eventbus.CaptureStarted {
				t.Fatalf("expected CaptureStarted, got %v", ev.Kind)
			}
			break waitStart
		case <-startTimeout:
			t.Fatal("timed out waiting for CaptureStarted")
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if e.State() != Idle {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		return
	}
	t.Fatalf("capture never returned to idle, state=%v", e.State())
}

func TestMotionDuringRecordingExtendsRatherThanRestarts(t *testing.T) {
	e, r, bus := testEngine(t, 1, 1)
	seedRing(r, 20, time.Now().Add(-2*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	sub := bus.Subscribe(8)
	defer sub.Unsubscribe()

	bus.Publish(eventbus.Event{Kind: eventbus.MotionDetected, Timestamp: time.Now()})
	// This subscription also receives the MotionDetected just published;
	// read past it to CaptureStarted.
	for ev := range sub.Events {
		if ev.Kind == eventbus.CaptureStarted {
			break
		}
	}

	time.Sleep(200 * time.Millisecond)
	bus.Publish(eventbus.Event{Kind: eventbus.MotionDetected, Timestamp: time.Now()})

	// A second CaptureStarted would indicate a restart instead of an
	// extension; none should arrive before CaptureCompleted.
	sawSecondStart := false
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-sub.Events:
			if ev.Kind == eventbus.CaptureStarted {
				sawSecondStart = true
			}
			if ev.Kind == eventbus.CaptureCompleted {
				if sawSecondStart {
					t.Fatal("extension incorrectly restarted the capture")
				}
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for CaptureCompleted")
		}
	}
}

func TestCaptureWritesMetadataFile(t *testing.T) {
	e, r, bus := testEngine(t, 1, 1)
	seedRing(r, 10, time.Now().Add(-2*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	sub := bus.Subscribe(4)
	defer sub.Unsubscribe()
	bus.Publish(eventbus.Event{Kind: eventbus.MotionDetected, Timestamp: time.Now()})

	var eventID string
	for ev := range sub.Events {
		if ev.Kind == eventbus.CaptureCompleted {
			eventID = ev.EventID
			break
		}
	}
	if eventID == "" {
		t.Fatal("never observed CaptureCompleted")
	}

	path := filepath.Join(e.cfg.EventDir, "metadata", eventID+".json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected metadata file at %s: %v", path, err)
	}
}

func TestKeepImagesWritesFramesDirectory(t *testing.T) {
	e, r, bus := testEngine(t, 1, 1)
	e.cfg.KeepImages = true
	seedRing(r, 10, time.Now().Add(-2*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	sub := bus.Subscribe(4)
	defer sub.Unsubscribe()
	bus.Publish(eventbus.Event{Kind: eventbus.MotionDetected, Timestamp: time.Now()})

	var eventID string
	for ev := range sub.Events {
		if ev.Kind == eventbus.CaptureCompleted {
			eventID = ev.EventID
			break
		}
	}
	if eventID == "" {
		t.Fatal("never observed CaptureCompleted")
	}

	framesDir := filepath.Join(e.cfg.EventDir, eventID, "frames")
	entries, err := os.ReadDir(framesDir)
	if err != nil {
		t.Fatalf("expected frames directory at %s: %v", framesDir, err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one frame image written")
	}
	if entries[0].Name() != "0000000000.jpg" {
		t.Fatalf("expected zero-padded 10-digit frame filenames, got %q", entries[0].Name())
	}
}

func TestVideoEncodingProducesMuxedArtifact(t *testing.T) {
	e, r, bus := testEngine(t, 1, 1)
	e.cfg.VideoEncoding = true
	seedRing(r, 10, time.Now().Add(-2*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	sub := bus.Subscribe(4)
	defer sub.Unsubscribe()
	bus.Publish(eventbus.Event{Kind: eventbus.MotionDetected, Timestamp: time.Now()})

	var eventID string
	for ev := range sub.Events {
		if ev.Kind == eventbus.CaptureCompleted {
			eventID = ev.EventID
			break
		}
	}
	if eventID == "" {
		t.Fatal("never observed CaptureCompleted")
	}

	videoPath := filepath.Join(e.cfg.EventDir, eventID+".avi")
	if _, err := os.Stat(videoPath); err != nil {
		t.Fatalf("expected video artifact at %s: %v", videoPath, err)
	}
}

func TestMetadataRecordsMotionAreasAndArtifacts(t *testing.T) {
	e, r, bus := testEngine(t, 1, 1)
	seedRing(r, 10, time.Now().Add(-2*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	sub := bus.Subscribe(4)
	defer sub.Unsubscribe()
	bus.Publish(eventbus.Event{Kind: eventbus.MotionDetected, Timestamp: time.Now(), Area: 321})

	var eventID string
	for ev := range sub.Events {
		if ev.Kind == eventbus.CaptureCompleted {
			eventID = ev.EventID
			break
		}
	}
	if eventID == "" {
		t.Fatal("never observed CaptureCompleted")
	}

	path := filepath.Join(e.cfg.EventDir, "metadata", eventID+".json")
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var meta Metadata
	if err := json.Unmarshal(buf, &meta); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if len(meta.MotionAreas) == 0 {
		t.Fatal("expected at least one motion_areas sample")
	}
	if meta.MotionAreas[0].Area != 321 {
		t.Fatalf("expected first motion sample area 321, got %f", meta.MotionAreas[0].Area)
	}
	foundWAL := false
	for _, a := range meta.Artifacts {
		if a.Kind == "wal" {
			foundWAL = true
		}
	}
	if !foundWAL {
		t.Fatalf("expected a wal artifact entry, got %+v", meta.Artifacts)
	}
	if meta.Truncated {
		t.Fatal("expected a clean capture to report truncated=false")
	}
}

func TestEventIDIsLexicographicallySortable(t *testing.T) {
	a := newEventID(time.Date(2026, 1, 2, 3, 4, 5, 100_000_000, time.UTC))
	b := newEventID(time.Date(2026, 1, 2, 3, 4, 5, 200_000_000, time.UTC))
	if !(a < b) {
		t.Fatalf("expected %q < %q", a, b)
	}
}
