package display

import (
	"fmt"
	"os"
	"sync"
)

// Framebuffer is the single-writer raw pixel sink the controller renders
// into. Mirrors the original's fbdevsink: seek to start, write the whole
// packed buffer, no partial updates.
type Framebuffer interface {
	Write(pixels []byte) error
	Close() error
}

type fileFramebuffer struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// NewFileFramebuffer returns a Framebuffer backed by a Linux framebuffer
// device file (e.g. /dev/fb1). The device is opened lazily on first
// write so a missing device doesn't block startup.
func NewFileFramebuffer(path string) Framebuffer {
	return &fileFramebuffer{path: path}
}

func (f *fileFramebuffer) Write(pixels []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		file, err := os.OpenFile(f.path, os.O_WRONLY, 0)
		if err != nil {
			return fmt.Errorf("display: open framebuffer %s: %w", f.path, err)
		}
		f.file = file
	}

	if _, err := f.file.Seek(0, 0); err != nil {
		return fmt.Errorf("display: seek framebuffer: %w", err)
	}
	if _, err := f.file.Write(pixels); err != nil {
		f.file.Close()
		f.file = nil
		return fmt.Errorf("display: write framebuffer: %w", err)
	}
	return nil
}

func (f *fileFramebuffer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
