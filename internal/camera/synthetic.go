package camera

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doorcam/doorcamd/internal/frame"
)

// Synthetic is a deterministic Producer used by tests and by operators
// running doorcamd without a physical camera attached (spec.md §1 keeps
// the real driver out of scope; this fills the same seam). It paints a
// uniform gray frame whose brightness drifts slowly up and down, and can
// be told to inject a "moving blob" to simulate an intruder.
type Synthetic struct {
	cfg Config

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	out      chan *frame.Frame
	nextID   atomic.Uint64
	produced atomic.Uint64

	// BlobAt, if non-nil, is consulted once per frame to place a bright
	// square on the otherwise uniform background, simulating motion.
	BlobAt func(frameIndex uint64) (x, y int, active bool)
}

// NewSynthetic constructs a Synthetic producer. cfg.MaxFPS of 0 defaults
// to 10.
func NewSynthetic(cfg Config) *Synthetic {
	if cfg.MaxFPS == 0 {
		cfg.MaxFPS = 10
	}
	if cfg.Width == 0 {
		cfg.Width = 640
	}
	if cfg.Height == 0 {
		cfg.Height = 480
	}
	if cfg.Format == 0 {
		cfg.Format = frame.RGB24
	}
	return &Synthetic{cfg: cfg}
}

func (s *Synthetic) Start(ctx context.Context) (<-chan *frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, fmt.Errorf("camera: synthetic producer already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.out = make(chan *frame.Frame, 4)
	s.running = true

	s.wg.Add(1)
	go s.loop(runCtx)

	return s.out, nil
}

func (s *Synthetic) loop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.out)

	interval := time.Second / time.Duration(s.cfg.MaxFPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id := s.nextID.Add(1) - 1
			f := s.render(id)
			s.produced.Add(1)
			select {
			case s.out <- f:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Synthetic) render(id uint64) *frame.Frame {
	w, h := s.cfg.Width, s.cfg.Height
	buf := make([]byte, w*h*3)

	base := uint8(64 + int(20*math.Sin(float64(id)/30)))
	for i := 0; i < w*h; i++ {
		buf[i*3] = base
		buf[i*3+1] = base
		buf[i*3+2] = base
	}

	if s.BlobAt != nil {
		if bx, by, active := s.BlobAt(id); active {
			paintBlock(buf, w, h, bx, by, 40, 220)
		}
	}

	return &frame.Frame{
		ID:        id,
		Timestamp: time.Now(),
		Width:     w,
		Height:    h,
		Format:    s.cfg.Format,
		Payload:   buf,
	}
}

func paintBlock(buf []byte, w, h, cx, cy, size int, val uint8) {
	half := size / 2
	for y := cy - half; y < cy+half; y++ {
		if y < 0 || y >= h {
			continue
		}
		for x := cx - half; x < cx+half; x++ {
			if x < 0 || x >= w {
				continue
			}
			off := (y*w + x) * 3
			buf[off] = val
			buf[off+1] = val
			buf[off+2] = val
		}
	}
}

func (s *Synthetic) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	return nil
}

func (s *Synthetic) Stats() Stats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return Stats{
		FramesProduced: s.produced.Load(),
		Connected:      running,
	}
}
