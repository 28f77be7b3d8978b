package display

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/doorcam/doorcamd/internal/eventbus"
)

// runTouchInput is the touch input subtask spec.md §4.7 describes: reads
// input device events and publishes TouchDetected for any event judged
// significant. Grounded on original_source/src/touch/handler.rs's
// monitor_touch_device: open, validate, loop with a short poll delay and
// a retry/backoff wrapper around transient device errors.
func (c *Controller) runTouchInput(ctx context.Context) {
	device := c.cfg.TouchDevice
	log := c.log.With("component", "touch_input", "device", device)

	var retries int
	const maxRetries = 10
	baseDelay := 5 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.monitorTouchDevice(ctx, device)
		if err == nil {
			log.Info("touch input: monitor ended normally")
			return
		}
		if ctx.Err() != nil {
			return
		}

		retries++
		log.Warn("touch input: device error", "attempt", retries, "error", err)
		if retries >= maxRetries {
			log.Error("touch input: giving up after repeated failures")
			return
		}

		delay := baseDelay * time.Duration(1<<min(retries, 5))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) monitorTouchDevice(ctx context.Context, device string) error {
	src, err := newTouchSource(device)
	if err != nil {
		return err
	}
	defer src.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		significant, err := src.Next(ctx)
		if err != nil {
			return err
		}
		if significant {
			c.bus.Publish(eventbus.Event{Kind: eventbus.TouchDetected, Timestamp: time.Now()})
		}
	}
}

// touchSource abstracts the device backend so the controller doesn't
// care whether a touch panel shows up as a Linux input device file or a
// single GPIO line.
type touchSource interface {
	// Next blocks until the next device event and reports whether it
	// counts as a significant touch (press, not release/move-only).
	Next(ctx context.Context) (significant bool, err error)
	Close() error
}

func newTouchSource(device string) (touchSource, error) {
	if pin, ok := strings.CutPrefix(device, "gpio:"); ok {
		return newGPIOTouchSource(pin)
	}
	return newEvdevTouchSource(device)
}

// linuxInputEvent mirrors struct input_event from linux/input.h: two
// timeval fields (platform-width, assumed 8+8 on 64-bit Linux), then
// type/code/value. No evdev binding exists anywhere in the retrieved
// pack, so this package decodes the fixed-width record directly with
// encoding/binary (see SPEC_FULL.md §2, DESIGN.md for the justification).
type linuxInputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const linuxInputEventSize = 24 // 8 + 8 + 2 + 2 + 4, padded to 8-byte alignment

const (
	evKey    = 0x01
	btnTouch = 0x14a
	btnLeft  = 0x110
)

type evdevTouchSource struct {
	file *os.File
}

func newEvdevTouchSource(path string) (touchSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("display: open touch device %s: %w", path, err)
	}
	return &evdevTouchSource{file: f}, nil
}

func (t *evdevTouchSource) Next(ctx context.Context) (bool, error) {
	buf := make([]byte, linuxInputEventSize)
	if _, err := readFull(t.file, buf); err != nil {
		return false, err
	}
	ev := linuxInputEvent{
		Sec:   int64(binary.LittleEndian.Uint64(buf[0:8])),
		Usec:  int64(binary.LittleEndian.Uint64(buf[8:16])),
		Type:  binary.LittleEndian.Uint16(buf[16:18]),
		Code:  binary.LittleEndian.Uint16(buf[18:20]),
		Value: int32(binary.LittleEndian.Uint32(buf[20:24])),
	}
	if ev.Type != evKey {
		return false, nil
	}
	isTouchKey := ev.Code == btnTouch || ev.Code == btnLeft
	return isTouchKey && ev.Value == 1, nil
}

func (t *evdevTouchSource) Close() error { return t.file.Close() }

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// gpioTouchSource treats a single GPIO line as a momentary touch button,
// the same backend selection style as gpioBacklight: a "gpio:<pin>"
// device string switches from the evdev file backend to periph.io.
type gpioTouchSource struct {
	pin gpio.PinIO
}

func newGPIOTouchSource(pinName string) (touchSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("display: init periph host: %w", err)
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("display: unknown gpio pin %q", pinName)
	}
	if err := pin.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("display: configure touch pin %q: %w", pinName, err)
	}
	return &gpioTouchSource{pin: pin}, nil
}

func (g *gpioTouchSource) Next(ctx context.Context) (bool, error) {
	if !g.pin.WaitForEdge(200 * time.Millisecond) {
		return false, nil
	}
	return g.pin.Read() == gpio.High, nil
}

func (g *gpioTouchSource) Close() error { return nil }
