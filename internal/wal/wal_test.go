package wal

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/doorcam/doorcamd/internal/frame"
)

func mkFrame(id uint64, size int) *frame.Frame {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}
	return &frame.Frame{
		ID:        id,
		Timestamp: time.Unix(1700000000, int64(id)*1000),
		Width:     640,
		Height:    480,
		Format:    frame.MJPEG,
		Payload:   payload,
	}
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "20260101_120000_000.wal")

	w, err := Create(path, "20260101_120000_000", 10)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := uint64(0); i < 10; i++ {
		if err := w.Append(mkFrame(i, 100)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if _, err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Header.EventID != "20260101_120000_000" {
		t.Fatalf("unexpected event id in header: %q", r.Header.EventID)
	}
	if r.Header.FrameCount != 10 {
		t.Fatalf("expected frame count 10 in header, got %d", r.Header.FrameCount)
	}

	frames, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(frames) != 10 {
		t.Fatalf("expected 10 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if f.ID != uint64(i) {
			t.Fatalf("frame %d: expected id %d, got %d", i, i, f.ID)
		}
		if len(f.Payload) != 100 {
			t.Fatalf("frame %d: expected payload len 100, got %d", i, len(f.Payload))
		}
	}
}

func TestTruncatedTailIsToleratedNotFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ev.wal")

	w, err := Create(path, "ev", 5)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := uint64(0); i < 5; i++ {
		if err := w.Append(mkFrame(i, 50)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if _, err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if err := os.Truncate(path, info.Size()-20); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	frames, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll should tolerate truncation, got error: %v", err)
	}
	if len(frames) != 4 {
		t.Fatalf("expected 4 fully-written frames survived truncation, got %d", len(frames))
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.wal")
	if err := os.WriteFile(path, make([]byte, headerSize), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Open(path)
	if err == nil {
		t.Fatal("expected error opening file with zeroed header")
	}
}

func TestNextReturnsEOFOnEmptyLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.wal")

	w, err := Create(path, "empty", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}
