// Package display implements the display controller and touch input
// subtask described in spec.md §4.7: a timed activation window that ticks
// the ring buffer's latest frame to a framebuffer device and drives a
// backlight, plus a background task translating touch device events into
// TouchDetected.
//
// Grounded on original_source/src/display/controller.rs: the is_active
// flag plus a restartable expiry timer, and the backlight open/retry
// behavior. The original renders through a GStreamer hardware pipeline
// (appsrc ! jpegdec ! videoconvert ! videoscale ! videoflip ! fbdevsink);
// this package performs the decode, rotate and RGB565 pack stages
// directly against the framebuffer device file since no GStreamer Go
// binding is available in the retrieved pack, through
// frame.Rotate/frame.ToRGB565 (see SPEC_FULL.md §2, DESIGN.md). Frames are
// not scaled: the packed buffer has the source frame's (rotated)
// dimensions.
package display

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/doorcam/doorcamd/internal/eventbus"
	"github.com/doorcam/doorcamd/internal/frame"
	"github.com/doorcam/doorcamd/internal/ring"
)

// Config parameterizes a Controller (spec.md §6 "display" config group).
type Config struct {
	FramebufferDevice string
	BacklightDevice   string
	TouchDevice       string
	Width             int
	Height            int
	DisplayFPS        int
	ActivationPeriod  time.Duration
	Rotation          int
	EnableTouch       bool
}

// Controller owns the framebuffer/backlight devices and the activation
// timer; Start also spawns the touch input subtask when EnableTouch is
// set.
type Controller struct {
	cfg Config
	r   *ring.Ring
	bus *eventbus.Bus
	log *slog.Logger

	fb        Framebuffer
	backlight Backlight

	mu      sync.Mutex
	active  bool
	expires time.Time
	timer   *time.Timer

	sub    *eventbus.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Controller. Devices are opened lazily, on the first
// framebuffer write or backlight change, so a missing device doesn't
// prevent constructing the rest of the pipeline.
func New(cfg Config, r *ring.Ring, bus *eventbus.Bus, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if cfg.DisplayFPS <= 0 {
		cfg.DisplayFPS = 15
	}
	if cfg.ActivationPeriod <= 0 {
		cfg.ActivationPeriod = 30 * time.Second
	}
	return &Controller{
		cfg:       cfg,
		r:         r,
		bus:       bus,
		log:       log,
		fb:        NewFileFramebuffer(cfg.FramebufferDevice),
		backlight: NewBacklight(cfg.BacklightDevice),
	}
}

// Start subscribes to the bus and begins the render loop and (if
// enabled) the touch input subtask. It does not open the devices.
func (c *Controller) Start(ctx context.Context) error {
	sub := c.bus.Subscribe(eventbus.DefaultCapacity)
	c.sub = sub

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.eventLoop(runCtx, sub)
	go c.renderLoop(runCtx)

	if c.cfg.EnableTouch && c.cfg.TouchDevice != "" {
		go c.runTouchInput(runCtx)
	}

	c.log.Info("display: started", "framebuffer", c.cfg.FramebufferDevice, "backlight", c.cfg.BacklightDevice)
	return nil
}

// Stop cancels the render/event loops and closes open devices.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
	if c.fb != nil {
		c.fb.Close()
	}
	if c.backlight != nil {
		c.backlight.Close()
	}
}

// IsActive reports whether the display is currently rendering.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) eventLoop(ctx context.Context, sub *eventbus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			switch ev.Kind {
			case eventbus.MotionDetected, eventbus.TouchDetected:
				c.activate()
			}
		}
	}
}

// activate sets active=true and (re)arms the expiry timer, restarting it
// if one is already running (extend, don't stack).
func (c *Controller) activate() {
	c.mu.Lock()
	wasActive := c.active
	c.active = true
	c.expires = time.Now().Add(c.cfg.ActivationPeriod)
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.cfg.ActivationPeriod, c.deactivate)
	c.mu.Unlock()

	if err := c.backlight.Set(true); err != nil {
		c.log.Warn("display: backlight enable failed", "error", err)
	}
	if !wasActive {
		c.log.Debug("display: activated")
	}
}

func (c *Controller) deactivate() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()

	if err := c.backlight.Set(false); err != nil {
		c.log.Warn("display: backlight disable failed", "error", err)
	}
	c.log.Debug("display: deactivated")
}

// renderLoop ticks at DisplayFPS, writing the ring's latest frame to the
// framebuffer whenever the display is active.
func (c *Controller) renderLoop(ctx context.Context) {
	interval := time.Second / time.Duration(c.cfg.DisplayFPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastID uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.IsActive() {
				continue
			}
			f := c.r.Latest()
			if f == nil || f.ID == lastID {
				continue
			}
			lastID = f.ID
			if err := c.renderFrame(f); err != nil {
				c.log.Warn("display: render failed", "frame_id", f.ID, "error", err)
			}
		}
	}
}

func (c *Controller) renderFrame(f *frame.Frame) error {
	img, err := frame.ToImage(f)
	if err != nil {
		return fmt.Errorf("display: decode frame %d: %w", f.ID, err)
	}
	if c.cfg.Rotation != 0 {
		img = frame.Rotate(img, c.cfg.Rotation)
	}
	rgb565 := frame.ToRGB565(img)
	return c.fb.Write(rgb565)
}
