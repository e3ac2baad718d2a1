// Package hw contains the thin hardware adapters named in spec.md §3:
// digital outputs, USB hub power, LEDs, the LCD framebuffer, and the
// button reader. Each adapter exposes a narrow Go interface modelled on
// devicecode-go's pin-function/claim split (GPIOHandle, PinHandle) so
// that a stub backend can stand in off-target while a real backend talks
// to sysfs GPIO and evdev on the actual carrier board.
package hw

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DigitalOutput is a single-writer boolean output line: the DUT power
// switch, an isolated digital output, USB hub power enable, or the
// IOBus power-supply enable line. spec.md §5 requires every such line
// to have exactly one writer; callers are responsible for enforcing
// that by construction (one Supervisor, one hw adapter instance each).
type DigitalOutput interface {
	// Set drives the line high (true) or low (false).
	Set(on bool) error
	// Float tri-states the line where the hardware supports it; lines
	// that cannot float (plain push-pull GPIO) return an error.
	Float() error
	// Get reads back the last commanded state.
	Get() bool
}

// stubOutput is an in-memory DigitalOutput used off-target and in
// tests. It never touches real hardware.
type stubOutput struct {
	name      string
	state     bool
	floatable bool
	floating  bool
}

// NewStubOutput returns a DigitalOutput backed by nothing but memory,
// named for logging/diagnostics purposes only.
func NewStubOutput(name string, floatable bool) DigitalOutput {
	return &stubOutput{name: name, floatable: floatable}
}

func (s *stubOutput) Set(on bool) error {
	s.state = on
	s.floating = false
	return nil
}

func (s *stubOutput) Float() error {
	if !s.floatable {
		return fmt.Errorf("hw: output %q cannot float", s.name)
	}
	s.floating = true
	return nil
}

func (s *stubOutput) Get() bool {
	return s.state
}

// sysfsOutput drives a line through the Linux sysfs GPIO ABI
// (/sys/class/gpio/gpioN/{direction,value}). It is the real-hardware
// counterpart of stubOutput; construction exports the pin if it is not
// already exported.
type sysfsOutput struct {
	pin       int
	valuePath string
	state     bool
	floatable bool
}

// NewSysfsOutput exports GPIO pin and returns a DigitalOutput driving it.
// floatable lines are configured as open-drain by writing "in" to
// direction on Float and "out" on Set; plain push-pull lines reject
// Float.
func NewSysfsOutput(pin int, floatable bool) (DigitalOutput, error) {
	base := filepath.Join("/sys/class/gpio", "gpio"+strconv.Itoa(pin))
	if _, err := os.Stat(base); os.IsNotExist(err) {
		exportPath := "/sys/class/gpio/export"
		if err := os.WriteFile(exportPath, []byte(strconv.Itoa(pin)), 0644); err != nil {
			return nil, fmt.Errorf("hw: export gpio%d: %w", pin, err)
		}
	}
	out := &sysfsOutput{pin: pin, valuePath: filepath.Join(base, "value"), floatable: floatable}
	if err := out.writeDirection("out"); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *sysfsOutput) writeDirection(dir string) error {
	path := filepath.Join("/sys/class/gpio", "gpio"+strconv.Itoa(o.pin), "direction")
	return os.WriteFile(path, []byte(dir), 0644)
}

func (o *sysfsOutput) Set(on bool) error {
	value := "0"
	if on {
		value = "1"
	}
	if o.floatable {
		if err := o.writeDirection("out"); err != nil {
			return fmt.Errorf("hw: gpio%d set direction: %w", o.pin, err)
		}
	}
	if err := os.WriteFile(o.valuePath, []byte(value), 0644); err != nil {
		return fmt.Errorf("hw: gpio%d write value: %w", o.pin, err)
	}
	o.state = on
	return nil
}

func (o *sysfsOutput) Float() error {
	if !o.floatable {
		return fmt.Errorf("hw: gpio%d cannot float", o.pin)
	}
	return o.writeDirection("in")
}

func (o *sysfsOutput) Get() bool {
	return o.state
}
