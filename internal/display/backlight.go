package display

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Backlight is the single-writer on/off switch the controller drives
// alongside framebuffer writes. Mirrors the original's set_backlight:
// lazy-open, seek-then-write "0"/"1", reopen on a dropped handle.
type Backlight interface {
	Set(on bool) error
	Close() error
}

// NewBacklight selects a backend from device: a "gpio:<pin>" device
// string (e.g. "gpio:GPIO18") drives a periph.io GPIO pin directly, the
// way boards with a backlight wired to a header pin rather than a sysfs
// class expect; anything else is treated as a sysfs backlight power file
// the way original_source/src/display/controller.rs opens it.
func NewBacklight(device string) Backlight {
	if pin, ok := strings.CutPrefix(device, "gpio:"); ok {
		return &gpioBacklight{pinName: pin}
	}
	return &fileBacklight{path: device}
}

type fileBacklight struct {
	path string
	mu   sync.Mutex
	file *os.File
}

func (b *fileBacklight) Set(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		file, err := os.OpenFile(b.path, os.O_WRONLY|os.O_TRUNC, 0)
		if err != nil {
			return fmt.Errorf("display: open backlight %s: %w", b.path, err)
		}
		b.file = file
	}

	// Backlight power sysfs convention: 0 = on, 1 = off, matching the
	// original's power_value mapping.
	value := "1"
	if on {
		value = "0"
	}

	if _, err := b.file.Seek(0, 0); err != nil {
		return fmt.Errorf("display: seek backlight: %w", err)
	}
	if _, err := b.file.WriteString(value); err != nil {
		b.file.Close()
		b.file = nil
		return fmt.Errorf("display: write backlight: %w", err)
	}
	return nil
}

func (b *fileBacklight) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}

type gpioBacklight struct {
	pinName string
	mu      sync.Mutex
	pin     gpio.PinIO
}

func (b *gpioBacklight) ensurePin() error {
	if b.pin != nil {
		return nil
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("display: init periph host: %w", err)
	}
	pin := gpioreg.ByName(b.pinName)
	if pin == nil {
		return fmt.Errorf("display: unknown gpio pin %q", b.pinName)
	}
	b.pin = pin
	return nil
}

func (b *gpioBacklight) Set(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensurePin(); err != nil {
		return err
	}
	level := gpio.Low
	if on {
		level = gpio.High
	}
	return b.pin.Out(level)
}

func (b *gpioBacklight) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pin != nil {
		return b.pin.Out(gpio.Low)
	}
	return nil
}
