// Package capture implements the motion-triggered recording state machine
// described in spec.md §4.4: Idle, Preroll, Recording and Finalizing,
// with a single active capture at a time, extend-don't-restart semantics
// for motion arriving mid-capture, and a short grace window that lets
// motion seen during Finalizing start the next capture's Preroll
// immediately instead of being dropped.
//
// The control flow is ported from
// original_source/src/capture/core.rs's handle_motion_detected /
// run_capture_event, collapsed from that file's list-of-concurrent-tasks
// design down to the single-capture state machine spec.md requires.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/doorcam/doorcamd/internal/eventbus"
	"github.com/doorcam/doorcamd/internal/ring"
)

// State is the capture engine's current phase.
type State int

const (
	Idle State = iota
	Preroll
	Recording
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preroll:
		return "preroll"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// requeueWindow bounds how long after Finalizing starts a fresh motion
// event is still eligible to seed the next capture's Preroll immediately,
// rather than waiting for a full Idle round-trip (spec.md §4.4 edge case).
const requeueWindow = 2 * time.Second

// Config parameterizes an Engine (spec.md §6 "event"/"capture" config
// groups).
type Config struct {
	EventDir        string
	PrerollSeconds  int
	PostrollSeconds int
	CameraFPS       uint32
	SaveMetadata    bool
	KeepImages      bool
	VideoEncoding   bool
}

// Engine drives the state machine. One Engine serves one camera.
type Engine struct {
	cfg  Config
	ring *ring.Ring
	bus  *eventbus.Bus
	log  *slog.Logger

	mu            sync.Mutex
	state         State
	finalizingAt  time.Time
	pendingMotion *motionSample
	active        *captureTask

	sub    *eventbus.Subscription
	cancel context.CancelFunc
	runCtx context.Context
	done   chan struct{}
}

// New constructs an Engine bound to r (for preroll/postroll frame
// retrieval) and bus (for motion input and capture lifecycle events).
func New(cfg Config, r *ring.Ring, bus *eventbus.Bus, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg, ring: r, bus: bus, log: log, state: Idle}
}

// Start subscribes to the event bus and begins servicing motion events.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return fmt.Errorf("capture: engine already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.runCtx = runCtx
	e.sub = e.bus.Subscribe(eventbus.DefaultCapacity)
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.loop(runCtx)
	return nil
}

// Stop cancels any active capture and unsubscribes from the bus.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	sub := e.sub
	done := e.done
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if sub != nil {
		sub.Unsubscribe()
	}
	if done != nil {
		<-done
	}
}

// State returns the engine's current phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.sub.Events:
			if !ok {
				return
			}
			if ev.Kind != eventbus.MotionDetected {
				continue
			}
			e.handleMotion(ctx, ev.Timestamp, ev.Area)
		}
	}
}

// motionSample pairs a motion timestamp with the detected contour area,
// for both the requeue-during-finalize path and the metadata JSON's
// motion_areas series.
type motionSample struct {
	Time time.Time
	Area float64
}

// handleMotion implements spec.md §4.4's dispatch table: extend an active
// capture, queue motion seen during Finalizing, or start a fresh one.
func (e *Engine) handleMotion(ctx context.Context, motionTime time.Time, area float64) {
	e.mu.Lock()
	switch e.state {
	case Recording, Preroll:
		// extend-don't-restart: handled by the running capture goroutine,
		// which polls latestMotion itself. Update it here.
		e.mu.Unlock()
		e.extendActive(motionTime, area)
		return
	case Finalizing:
		if time.Since(e.finalizingAt) < requeueWindow {
			e.pendingMotion = &motionSample{Time: motionTime, Area: area}
			e.mu.Unlock()
			e.log.Debug("capture: motion queued during finalize", "motion_time", motionTime)
			return
		}
		e.mu.Unlock()
		e.log.Debug("capture: motion during finalize outside requeue window, dropping")
		return
	case Idle:
		e.mu.Unlock()
		e.startCapture(ctx, motionTime, area)
		return
	}
	e.mu.Unlock()
}

func (e *Engine) extendActive(t time.Time, area float64) {
	e.mu.Lock()
	task := e.active
	e.mu.Unlock()
	if task != nil {
		task.extend(t, area)
		e.log.Debug("capture: postroll extended", "event_id", task.eventID, "motion_time", t)
	}
}
