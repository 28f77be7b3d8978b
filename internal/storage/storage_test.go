package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/doorcam/doorcamd/internal/eventbus"
)

func mkEventDir(t *testing.T, root, eventID string, fileSize int) {
	t.Helper()
	dir := filepath.Join(root, eventID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "frame_0001.jpg"), make([]byte, fileSize), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func eventIDFor(tm time.Time) string {
	tm = tm.UTC()
	return fmt.Sprintf("%s_%03d", tm.Format("20060102_150405"), tm.Nanosecond()/1e6)
}

func TestIsValidEventDirName(t *testing.T) {
	cases := map[string]bool{
		"20231019_143022_123": true,
		"invalid_name":         false,
		"20231019_143022":      false,
		"20231019-143022-123":  false,
	}
	for name, want := range cases {
		if got := isValidEventDirName(name); got != want {
			t.Errorf("isValidEventDirName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestScanExistingRegistersDirectories(t *testing.T) {
	root := t.TempDir()
	id := eventIDFor(time.Now().Add(-2 * time.Hour))
	mkEventDir(t, root, id, 1000)

	bus := eventbus.New()
	defer bus.Close()
	s := New(Config{EventDir: root, RetentionPeriod: 7 * 24 * time.Hour, TrimOld: false}, bus, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stats := s.Stats()
	if stats.TotalEvents != 1 {
		t.Fatalf("expected 1 registered event, got %d", stats.TotalEvents)
	}
}

func TestCaptureCompletedRegistersNewEvent(t *testing.T) {
	root := t.TempDir()
	bus := eventbus.New()
	defer bus.Close()
	s := New(Config{EventDir: root, RetentionPeriod: 7 * 24 * time.Hour}, bus, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	id := eventIDFor(time.Now())
	mkEventDir(t, root, id, 500)
	bus.Publish(eventbus.Event{Kind: eventbus.CaptureCompleted, EventID: id})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.Get(id); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("event %s was never registered after CaptureCompleted", id)
}

func TestCleanupDeletesOnlyEventsPastRetention(t *testing.T) {
	root := t.TempDir()
	bus := eventbus.New()
	defer bus.Close()
	s := New(Config{EventDir: root, RetentionPeriod: 24 * time.Hour, TrimOld: true}, bus, nil)

	oldID := eventIDFor(time.Now().Add(-48 * time.Hour))
	freshID := eventIDFor(time.Now().Add(-2 * time.Hour))
	mkEventDir(t, root, oldID, 2000)
	mkEventDir(t, root, freshID, 2000)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := s.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.EventsDeleted != 1 {
		t.Fatalf("expected exactly 1 deleted event, got %d (errors=%v)", result.EventsDeleted, result.Errors)
	}
	if _, err := os.Stat(filepath.Join(root, oldID)); !os.IsNotExist(err) {
		t.Fatalf("expected old event directory to be removed")
	}
	if _, err := os.Stat(filepath.Join(root, freshID)); err != nil {
		t.Fatalf("expected fresh event directory to survive, got %v", err)
	}
}

func TestCleanupNeverDeletesWithinMinimumAge(t *testing.T) {
	root := t.TempDir()
	bus := eventbus.New()
	defer bus.Close()
	// Zero retention would otherwise mark everything eligible.
	s := New(Config{EventDir: root, RetentionPeriod: 0, TrimOld: true}, bus, nil)

	id := eventIDFor(time.Now().Add(-10 * time.Minute))
	mkEventDir(t, root, id, 100)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := s.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.EventsDeleted != 0 {
		t.Fatalf("expected minimum-age floor to block deletion, deleted %d", result.EventsDeleted)
	}
	if _, err := os.Stat(filepath.Join(root, id)); err != nil {
		t.Fatalf("expected recent event directory to survive: %v", err)
	}
}

func TestCleanupHonorsSubDayRetentionPeriod(t *testing.T) {
	root := t.TempDir()
	bus := eventbus.New()
	defer bus.Close()
	// A 2h retention window must survive as 2h, not truncate to 0 days.
	s := New(Config{EventDir: root, RetentionPeriod: 2 * time.Hour, TrimOld: true}, bus, nil)

	withinWindowID := eventIDFor(time.Now().Add(-90 * time.Minute))
	pastWindowID := eventIDFor(time.Now().Add(-3 * time.Hour))
	mkEventDir(t, root, withinWindowID, 100)
	mkEventDir(t, root, pastWindowID, 100)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := s.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.EventsDeleted != 1 {
		t.Fatalf("expected exactly 1 deleted event, got %d (errors=%v)", result.EventsDeleted, result.Errors)
	}
	if _, err := os.Stat(filepath.Join(root, withinWindowID)); err != nil {
		t.Fatalf("expected event within the 2h retention window to survive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, pastWindowID)); !os.IsNotExist(err) {
		t.Fatalf("expected event past the 2h retention window to be removed")
	}
}

func TestValidateDeletionSafetyRejectsRootAndOutsidePaths(t *testing.T) {
	root := t.TempDir()
	if err := validateDeletionSafety(root, root); err == nil {
		t.Fatal("expected rejection of the root directory itself")
	}
	if err := validateDeletionSafety(root, "/tmp/definitely-not-under-root"); err == nil {
		t.Fatal("expected rejection of a path outside root")
	}
}
