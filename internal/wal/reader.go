package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"time"

	"github.com/doorcam/doorcamd/internal/frame"
)

// ErrTruncated is returned by Next when the file ends partway through a
// record. It is not fatal: callers should treat it the same as a clean
// EOF, keeping every frame successfully read before the tear (spec.md
// §4.4 recovery rule — a crash loses only the tail).
var ErrTruncated = errors.New("wal: record truncated")

// Reader streams frames back out of a log file written by Writer.
type Reader struct {
	file   *os.File
	buf    *bufio.Reader
	Header Header
}

// Open reads and validates the file header, positioning the reader at the
// first record.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}

	hdrBuf := make([]byte, headerSize)
	if _, err := io.ReadFull(f, hdrBuf); err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: read header: %w", err)
	}
	hdr, err := decodeHeader(hdrBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Reader{file: f, buf: bufio.NewReader(f), Header: hdr}, nil
}

// Next returns the next frame, io.EOF at a clean end of file, or
// ErrTruncated if a partial record was found at the tail.
func (r *Reader) Next() (*frame.Frame, error) {
	fixed := make([]byte, recordHeaderSize)
	n, err := io.ReadFull(r.buf, fixed)
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, ErrTruncated
	}

	dataLen := binary.LittleEndian.Uint32(fixed[25:29])
	rest := make([]byte, dataLen+4)
	if _, err := io.ReadFull(r.buf, rest); err != nil {
		return nil, ErrTruncated
	}

	payload := rest[:dataLen]
	wantCRC := binary.LittleEndian.Uint32(rest[dataLen:])

	full := append(append([]byte{}, fixed...), payload...)
	if crc32.Checksum(full, crc32Table) != wantCRC {
		return nil, ErrTruncated
	}

	tsNanos := binary.LittleEndian.Uint64(fixed[0:8])
	id := binary.LittleEndian.Uint64(fixed[8:16])
	width := binary.LittleEndian.Uint32(fixed[16:20])
	height := binary.LittleEndian.Uint32(fixed[20:24])
	format := fixed[24]

	return &frame.Frame{
		ID:        id,
		Timestamp: time.Unix(0, int64(tsNanos)).UTC(),
		Width:     int(width),
		Height:    int(height),
		Format:    frame.PixelFormat(format),
		Payload:   append([]byte{}, payload...),
	}, nil
}

// ReadAll drains every readable frame, stopping silently at the first
// truncation or clean EOF — the same truncation-tolerant contract Next
// documents, flattened for callers (like waltool) that just want
// everything recoverable.
func (r *Reader) ReadAll() ([]*frame.Frame, error) {
	var frames []*frame.Frame
	for {
		f, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrTruncated) {
				return frames, nil
			}
			return frames, err
		}
		frames = append(frames, f)
	}
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
