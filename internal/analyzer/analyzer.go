// Package analyzer implements the background-subtraction motion detector
// described in spec.md §4.3. The algorithm itself — grayscale, gaussian
// blur, exponentially-forgotten background model, threshold, morphological
// cleanup, largest-connected-component area — is ported from
// original_source/src/analyzer/motion.rs's detect_motion_sync, which
// leans on Rust's imageproc crate. No imageproc-equivalent third-party
// package appears anywhere in the retrieved corpus (see DESIGN.md), so
// the five stages below are implemented directly over image/color from
// the standard library, the one deliberate stdlib fallback besides
// image/jpeg.
package analyzer

import (
	"fmt"
	"image"
	"sync"

	"github.com/doorcam/doorcamd/internal/frame"
)

// Config parameterizes one Analyzer (spec.md §6 "analyzer" config group).
type Config struct {
	Width          int
	Height         int
	DeltaThreshold uint8
	MinimumArea    float64
	LearningRate   float64 // background model blend factor, default 0.05
	WarmupFrames   int     // frames to discard while background settles
}

// DefaultConfig mirrors original_source's AnalyzerConfig defaults.
func DefaultConfig() Config {
	return Config{
		Width:          160,
		Height:         120,
		DeltaThreshold: 25,
		MinimumArea:    500,
		LearningRate:   0.05,
		WarmupFrames:   5,
	}
}

// Analyzer holds the running background model across calls to Detect.
// Detect and Reset serialize on an internal mutex, so concurrent calls
// are safe but run one at a time against the shared model.
type Analyzer struct {
	cfg Config

	mu         sync.Mutex
	background []float32 // width*height, nil until the first frame
	frameCount uint64

	// Preprocess, if set, runs after grayscale downsampling and before
	// blur — a hook for format-specific correction (e.g. lens
	// undistortion) that this repo does not implement (see DESIGN.md
	// "Open Question decisions", fisheye undistortion).
	Preprocess func(gray *image.Gray)
}

// New constructs an Analyzer. Width/Height default to 160x120 if zero.
func New(cfg Config) *Analyzer {
	if cfg.Width == 0 {
		cfg.Width = 160
	}
	if cfg.Height == 0 {
		cfg.Height = 120
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.05
	}
	return &Analyzer{cfg: cfg}
}

// Result is the outcome of analyzing one frame.
type Result struct {
	MotionDetected bool
	Area           float64
	Warmup         bool // true while the background model is still settling
}

// Detect analyzes f for motion against the running background model,
// updating the model in place. The first WarmupFrames calls never report
// motion — they exist only to let the background model converge (spec.md
// §4.3 "warmup suppression").
func (a *Analyzer) Detect(f *frame.Frame) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	gray, err := frame.ToGray(f, a.cfg.Width, a.cfg.Height)
	if err != nil {
		return Result{}, fmt.Errorf("analyzer: grayscale conversion: %w", err)
	}
	if a.Preprocess != nil {
		a.Preprocess(gray)
	}

	blurred := gaussianBlur21x21(gray)
	a.frameCount++

	if a.background == nil {
		a.background = toFloatPlane(blurred)
		return Result{Warmup: true}, nil
	}

	diff := a.diffAgainstBackground(blurred)
	mask := threshold(diff, a.cfg.DeltaThreshold)
	cleaned := dilate3x3(erode3x3(mask, blurred.Bounds()), blurred.Bounds())
	area := largestComponentArea(cleaned, blurred.Bounds())

	a.updateBackground(blurred)

	warmup := a.frameCount <= uint64(a.cfg.WarmupFrames)
	if warmup {
		return Result{Warmup: true, Area: area}, nil
	}

	return Result{MotionDetected: area > a.cfg.MinimumArea, Area: area}, nil
}

// Reset discards the background model, forcing the next Detect call to
// re-seed it (used after a camera reconnect, where the scene may have
// jumped discontinuously).
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.background = nil
	a.frameCount = 0
}

func toFloatPlane(img *image.Gray) []float32 {
	b := img.Bounds()
	out := make([]float32, b.Dx()*b.Dy())
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out[i] = float32(img.GrayAt(x, y).Y)
			i++
		}
	}
	return out
}

func (a *Analyzer) diffAgainstBackground(current *image.Gray) []uint8 {
	b := current.Bounds()
	out := make([]uint8, b.Dx()*b.Dy())
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cur := float32(current.GrayAt(x, y).Y)
			bg := a.background[i]
			d := cur - bg
			if d < 0 {
				d = -d
			}
			out[i] = uint8(d)
			i++
		}
	}
	return out
}

func (a *Analyzer) updateBackground(current *image.Gray) {
	b := current.Bounds()
	rate := float32(a.cfg.LearningRate)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cur := float32(current.GrayAt(x, y).Y)
			a.background[i] = a.background[i]*(1-rate) + cur*rate
			i++
		}
	}
}
