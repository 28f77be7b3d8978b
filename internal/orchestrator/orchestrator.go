// Package orchestrator implements the daemon lifecycle and recovery
// policy described in spec.md §4.9: init -> start -> run -> stop, with
// camera backoff + degraded mode, skip-the-frame on analyzer error,
// truncate-and-continue on WAL error (inside internal/capture) and a
// bounded graceful shutdown. Stream server and display controller
// failures are logged; the orchestrator does not restart any component.
//
// Grounded on References/orion-prototipe/internal/core/orion.go's Orion
// type: a mutex-guarded isRunning/started pair, a stored runCtx/cancelCtx,
// an ordered component-by-component Shutdown sequence logged by step, and
// a sync.WaitGroup drained without holding the lock.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/doorcam/doorcamd/internal/analyzer"
	"github.com/doorcam/doorcamd/internal/camera"
	"github.com/doorcam/doorcamd/internal/capture"
	"github.com/doorcam/doorcamd/internal/config"
	"github.com/doorcam/doorcamd/internal/display"
	"github.com/doorcam/doorcamd/internal/doorcamderr"
	"github.com/doorcam/doorcamd/internal/eventbus"
	"github.com/doorcam/doorcamd/internal/frame"
	"github.com/doorcam/doorcamd/internal/ring"
	"github.com/doorcam/doorcamd/internal/storage"
	"github.com/doorcam/doorcamd/internal/streamserver"
)

// componentStopTimeout is the single time budget Shutdown shares between
// the stream server's stop and the final wait for worker goroutines.
const componentStopTimeout = 5 * time.Second

// Orchestrator wires the frame-flow core components together and drives
// their combined lifecycle. One Orchestrator serves one camera.
type Orchestrator struct {
	cfg *config.Config
	log *slog.Logger

	ring      *ring.Ring
	bus       *eventbus.Bus
	cam       camera.Producer
	analyzer  *analyzer.Analyzer
	capture   *capture.Engine
	storage   *storage.Store
	stream    *streamserver.Server
	displayer *display.Controller

	mu        sync.RWMutex
	isRunning bool
	started   time.Time
	wg        sync.WaitGroup
	runCtx    context.Context
	cancelCtx context.CancelFunc

	degraded atomic.Bool
}

// New constructs every component from cfg but starts nothing yet,
// mirroring orion.NewOrion's split between construction and Run.
func New(cfg *config.Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}

	capacity := cfg.System.RingCapacityOverride
	if capacity <= 0 {
		// Enough slots to cover preroll plus a margin, at the camera's
		// configured frame rate.
		capacity = int(cfg.Camera.MaxFPS) * 10
		if capacity < 64 {
			capacity = 64
		}
	}
	r := ring.New(capacity)
	bus := eventbus.New()

	camCfg := camera.Config{
		Index:    cfg.Camera.Index,
		Width:    cfg.Camera.Resolution[0],
		Height:   cfg.Camera.Resolution[1],
		MaxFPS:   cfg.Camera.MaxFPS,
		Rotation: cfg.Camera.Rotation,
	}
	cam := camera.NewReconnecting(func() camera.Producer {
		return camera.NewSynthetic(camCfg)
	}, camera.DefaultReconnectConfig())

	an := analyzer.New(analyzer.Config{
		DeltaThreshold: cfg.Analyzer.DeltaThreshold,
		MinimumArea:    cfg.Analyzer.ContourMinimumArea,
	})

	captureEngine := capture.New(capture.Config{
		EventDir:        cfg.Capture.Path,
		PrerollSeconds:  int(cfg.Event.PrerollSeconds),
		PostrollSeconds: int(cfg.Event.PostrollSeconds),
		CameraFPS:       cfg.Camera.MaxFPS,
		SaveMetadata:    cfg.Capture.SaveMetadata,
		KeepImages:      cfg.Capture.KeepImages,
		VideoEncoding:   cfg.Capture.VideoEncoding,
	}, r, bus, log.With("component", "capture"))

	st := storage.New(storage.Config{
		EventDir:        cfg.Capture.Path,
		RetentionPeriod: time.Duration(cfg.System.RetentionSeconds) * time.Second,
		CleanupInterval: time.Duration(cfg.System.CleanupIntervalSeconds) * time.Second,
		TrimOld:         cfg.System.RetentionSeconds > 0,
	}, bus, log.With("component", "storage"))

	ss := streamserver.New(streamserver.Config{
		Addr:      fmt.Sprintf("%s:%d", cfg.Stream.IP, cfg.Stream.Port),
		TargetFPS: int(cfg.Analyzer.MaxFPS),
	}, r, log.With("component", "streamserver"))

	disp := display.New(display.Config{
		FramebufferDevice: cfg.Display.FramebufferDevice,
		BacklightDevice:   cfg.Display.BacklightDevice,
		TouchDevice:       cfg.Display.TouchDevice,
		ActivationPeriod:  time.Duration(cfg.Display.ActivationPeriodSeconds) * time.Second,
		Rotation:          cfg.Display.Rotation,
		EnableTouch:       cfg.Display.TouchDevice != "",
	}, r, bus, log.With("component", "display"))

	return &Orchestrator{
		cfg:       cfg,
		log:       log,
		ring:      r,
		bus:       bus,
		cam:       cam,
		analyzer:  an,
		capture:   captureEngine,
		storage:   st,
		stream:    ss,
		displayer: disp,
	}
}

// Ring exposes the frame ring for callers (e.g. waltool-adjacent tooling
// or tests) that need direct read access.
func (o *Orchestrator) Ring() *ring.Ring { return o.ring }

// Bus exposes the event bus for external subscribers (CLI debug mode).
func (o *Orchestrator) Bus() *eventbus.Bus { return o.bus }

// Degraded reports whether the camera has exhausted its reconnect budget
// and the orchestrator has fallen back to idle stream/display/capture
// (spec.md §4.9 "transition to degraded").
func (o *Orchestrator) Degraded() bool { return o.degraded.Load() }

// Run starts every component and blocks until ctx is cancelled or a
// fatal error occurs. Only one Run call is permitted per Orchestrator.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.isRunning {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.isRunning = true
	o.started = time.Now()
	o.runCtx = runCtx
	o.cancelCtx = cancel
	o.mu.Unlock()

	if err := o.storage.Start(); err != nil {
		cancel()
		return fmt.Errorf("orchestrator: storage start: %w", err)
	}
	if err := o.capture.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("orchestrator: capture start: %w", err)
	}
	if err := o.stream.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("orchestrator: stream start: %w", err)
	}
	if err := o.displayer.Start(runCtx); err != nil {
		o.log.Warn("orchestrator: display start failed, continuing without display", "error", err)
	}

	o.wg.Add(3)
	go o.pumpCamera(runCtx)
	go o.watchWorkers(runCtx)
	go func() {
		defer o.wg.Done()
		o.storage.RunJanitor(runCtx)
	}()

	shutdownSub := o.bus.Subscribe(eventbus.DefaultCapacity)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer shutdownSub.Unsubscribe()
		for {
			select {
			case <-runCtx.Done():
				return
			case ev, ok := <-shutdownSub.Events:
				if !ok {
					return
				}
				if ev.Kind == eventbus.ShutdownRequested {
					cancel()
					return
				}
			}
		}
	}()

	<-runCtx.Done()
	return nil
}

// pumpCamera reads frames from the camera producer, pushes them into the
// ring, publishes FrameReady, and drives the analyzer — the one loop
// spec.md leaves camera/analyzer wiring to the orchestrator for, since
// both camera and analyzer are narrow, driven components rather than
// self-subscribing ones like capture.Engine and display.Controller.
func (o *Orchestrator) pumpCamera(ctx context.Context) {
	defer o.wg.Done()

	frames, err := o.cam.Start(ctx)
	if err != nil {
		o.log.Error("orchestrator: camera exhausted reconnect budget, entering degraded mode", "error", err)
		o.degraded.Store(true)
		o.bus.Publish(eventbus.Event{
			Kind:      eventbus.ComponentError,
			Timestamp: time.Now(),
			Component: "camera",
			Message:   err.Error(),
			TraceID:   uuid.New(),
		})
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			o.ring.Push(f)
			o.bus.Publish(eventbus.Event{Kind: eventbus.FrameReady, Timestamp: f.Timestamp, FrameID: f.ID})
			o.runAnalyzer(f)
		}
	}
}

// runAnalyzer feeds one frame through the analyzer and publishes
// MotionDetected on a positive result. Analyzer errors are logged and
// the frame is skipped (spec.md §7 Decode/Encode kind: "skip frame").
func (o *Orchestrator) runAnalyzer(f *frame.Frame) {
	result, err := o.analyzer.Detect(f)
	if err != nil {
		o.log.Warn("orchestrator: analyzer error, skipping frame", "frame_id", f.ID, "error", doorcamderr.CodecErr("analyzer", err))
		return
	}
	if result.MotionDetected {
		o.bus.Publish(eventbus.Event{Kind: eventbus.MotionDetected, Timestamp: f.Timestamp, Area: result.Area})
	}
}

// watchWorkers logs the stream server's client and frame counters and
// the display controller's activity at debug level every 30s. It does
// not detect failed components and restarts nothing. Grounded on
// orion.go's watchWorkers watchdog-ticker pattern.
func (o *Orchestrator) watchWorkers(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := o.stream.Stats()
			o.log.Debug("orchestrator: watchdog", "stream_clients", stats.ActiveClients, "stream_frames_served", stats.FramesServed, "display_active", o.displayer.IsActive())
		}
	}
}

// Shutdown stops every component in order, then waits for the worker
// goroutines; one componentStopTimeout budget covers the stream server
// stop and that wait together. The display, capture and camera Stop
// calls are not bounded by it. Safe to call once Run has
// returned or to unblock Run early. Mirrors orion.go's Shutdown: ordered
// stop calls logged by step, wg.Wait() without holding the lock.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if !o.isRunning {
		o.mu.Unlock()
		return nil
	}
	cancel := o.cancelCtx
	started := o.started
	o.isRunning = false
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	stopCtx, stopCancel := context.WithTimeout(ctx, componentStopTimeout)
	defer stopCancel()

	o.log.Info("orchestrator: stopping display")
	o.displayer.Stop()

	o.log.Info("orchestrator: stopping capture")
	o.capture.Stop()

	o.log.Info("orchestrator: stopping stream server")
	if err := o.stream.Stop(stopCtx); err != nil {
		o.log.Warn("orchestrator: stream server stop error", "error", err)
	}

	o.log.Info("orchestrator: stopping camera")
	if err := o.cam.Stop(); err != nil {
		o.log.Warn("orchestrator: camera stop error", "error", err)
	}

	o.bus.Close()

	waited := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-stopCtx.Done():
		o.log.Warn("orchestrator: shutdown timed out waiting for workers to drain")
	}

	o.log.Info("orchestrator: stopped", "uptime", time.Since(started))
	return nil
}

// Status is a snapshot of orchestrator-level health for --print-config
// style diagnostics and the health endpoint.
type Status struct {
	Running      bool
	Degraded     bool
	Uptime       time.Duration
	Ring         ring.Stats
	Stream       streamserver.Stats
	CaptureState string
}

// GetStatus returns a point-in-time snapshot safe to call concurrently
// with Run/Shutdown.
func (o *Orchestrator) GetStatus() Status {
	o.mu.RLock()
	running := o.isRunning
	started := o.started
	o.mu.RUnlock()

	var uptime time.Duration
	if running {
		uptime = time.Since(started)
	}

	return Status{
		Running:      running,
		Degraded:     o.degraded.Load(),
		Uptime:       uptime,
		Ring:         o.ring.Stats(),
		Stream:       o.stream.Stats(),
		CaptureState: o.capture.State().String(),
	}
}
