package hw

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AnalogInput samples a single analog channel (DUT voltage, DUT current,
// or any other probe named in spec.md §3) and returns it already
// converted to physical units.
type AnalogInput interface {
	Read() (float64, error)
}

// StubAnalogInput is an in-memory AnalogInput for tests: it always
// returns whatever Value currently holds, letting a test drive the
// supervisor through specific voltage/current scenarios.
type StubAnalogInput struct {
	Value float64
	Err   error
}

func (s *StubAnalogInput) Read() (float64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	return s.Value, nil
}

// ReadFunc adapts an AnalogInput to measurement.Sampler's ReadFunc shape.
func ReadFunc(a AnalogInput) func() (float64, error) {
	return a.Read
}

// iioInput reads a Linux IIO ADC channel's raw sysfs value and applies a
// scale factor to produce physical units, the usual Linux-on-embedded way
// of exposing a current/voltage probe without a kernel driver specific to
// this board.
type iioInput struct {
	rawPath string
	scale   float64
}

// NewIIOInput returns an AnalogInput reading rawPath (typically
// /sys/bus/iio/devices/iio:deviceN/in_voltageM_raw) and multiplying by
// scale to produce the physical unit.
func NewIIOInput(rawPath string, scale float64) AnalogInput {
	return &iioInput{rawPath: rawPath, scale: scale}
}

func (i *iioInput) Read() (float64, error) {
	data, err := os.ReadFile(i.rawPath)
	if err != nil {
		return 0, fmt.Errorf("hw: read %s: %w", i.rawPath, err)
	}
	raw, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("hw: parse %s: %w", i.rawPath, err)
	}
	return float64(raw) * i.scale, nil
}
