package videomux

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAVIProducesRIFFContainer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.avi")

	frames := [][]byte{
		{0xFF, 0xD8, 0xFF, 0xD9},
		{0xFF, 0xD8, 0xFF, 0xD9},
		{0xFF, 0xD8, 0xFF, 0xD9},
	}
	if err := WriteAVI(path, frames, 64, 48, 10); err != nil {
		t.Fatalf("WriteAVI: %v", err)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(buf) < 12 {
		t.Fatalf("file too small to be a valid AVI container: %d bytes", len(buf))
	}
	if string(buf[0:4]) != "RIFF" {
		t.Errorf("expected RIFF magic, got %q", buf[0:4])
	}
	if string(buf[8:12]) != "AVI " {
		t.Errorf("expected AVI form type, got %q", buf[8:12])
	}
}

func TestWriteAVIRejectsEmptyFrameSet(t *testing.T) {
	dir := t.TempDir()
	if err := WriteAVI(filepath.Join(dir, "out.avi"), nil, 64, 48, 10); err == nil {
		t.Fatal("expected an error when muxing zero frames")
	}
}
