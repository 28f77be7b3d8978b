package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"github.com/doorcam/doorcamd/internal/frame"
)

// flushThreshold mirrors the original ~2MB buffered-write watermark (the
// Rust writer's 2_000_000 byte buffer).
const flushThreshold = 2_000_000

// syncInterval mirrors the original 1-second fsync cadence.
const syncInterval = time.Second

// Writer appends frames to a single event's write-ahead log file. It is
// not safe for concurrent use.
type Writer struct {
	file       *os.File
	buf        *bufio.Writer
	pending    int
	eventID    string
	fps        uint32
	frameCount uint32
	lastSync   time.Time
	path       string
}

// Create opens path for writing, truncating any existing file, and writes
// the header immediately so a reader can identify the file even before
// the first frame lands.
func Create(path string, eventID string, fps uint32) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: create %s: %w", path, err)
	}

	w := &Writer{
		file:     f,
		buf:      bufio.NewWriterSize(f, flushThreshold),
		eventID:  eventID,
		fps:      fps,
		lastSync: time.Now(),
		path:     path,
	}

	if _, err := f.Write(encodeHeader(Header{EventID: eventID, FPS: fps})); err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: write header: %w", err)
	}
	return w, nil
}

// Append writes one frame's record, periodically flushing and syncing per
// the thresholds above. f.Payload is expected to already be JPEG-encoded
// (spec.md §4.4: the capture engine converts before handing frames to the
// WAL, so the log itself never needs a codec).
func (w *Writer) Append(f *frame.Frame) error {
	rec := encodeRecord(f)
	if _, err := w.buf.Write(rec); err != nil {
		return fmt.Errorf("wal: write record: %w", err)
	}
	w.frameCount++
	w.pending += len(rec)

	if w.pending >= flushThreshold {
		if err := w.buf.Flush(); err != nil {
			return fmt.Errorf("wal: flush: %w", err)
		}
		w.pending = 0
	}

	if time.Since(w.lastSync) > syncInterval {
		if err := w.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// Sync flushes buffered data and fsyncs the underlying file.
func (w *Writer) Sync() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("wal: flush on sync: %w", err)
	}
	w.pending = 0
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync: %w", err)
	}
	w.lastSync = time.Now()
	return nil
}

// FrameCount returns the number of frames appended so far.
func (w *Writer) FrameCount() uint32 { return w.frameCount }

// Close flushes, patches the header's frame count field, fsyncs, and
// closes the file, returning its path.
func (w *Writer) Close() (string, error) {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return "", fmt.Errorf("wal: flush on close: %w", err)
	}

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], w.frameCount)
	if _, err := w.file.WriteAt(countBuf[:], frameCountOffset); err != nil {
		w.file.Close()
		return "", fmt.Errorf("wal: patch frame count: %w", err)
	}

	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return "", fmt.Errorf("wal: final sync: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return "", fmt.Errorf("wal: close: %w", err)
	}
	return w.path, nil
}

func encodeRecord(f *frame.Frame) []byte {
	buf := make([]byte, recordHeaderSize+len(f.Payload)+4)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(f.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint64(buf[8:16], f.ID)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(f.Width))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(f.Height))
	buf[24] = byte(f.Format)
	binary.LittleEndian.PutUint32(buf[25:29], uint32(len(f.Payload)))
	copy(buf[recordHeaderSize:], f.Payload)

	sum := crc32.Checksum(buf[:recordHeaderSize+len(f.Payload)], crc32Table)
	binary.LittleEndian.PutUint32(buf[len(buf)-4:], sum)
	return buf
}
