package model

import (
	"encoding/json"
	"time"
)

// BlinkStep is one (duration, brightness) pair in a BlinkPattern. Its JSON
// encoding (see MarshalJSON) renders Duration as whole milliseconds.
type BlinkStep struct {
	Duration   time.Duration
	Brightness float64 // 0..1
}

// InfiniteRepetitions marks a BlinkPattern that loops forever.
const InfiniteRepetitions = -1

// BlinkPattern drives an LED: Steps play in order, Repetitions times (or
// forever if Repetitions is InfiniteRepetitions). A finite pattern ends
// with the LED held at the last step's brightness.
type BlinkPattern struct {
	Repetitions int         `json:"repetitions"`
	Steps       []BlinkStep `json:"steps"`
}

// Solid returns a BlinkPattern that holds a single brightness forever.
func Solid(brightness float64) BlinkPattern {
	return BlinkPattern{
		Repetitions: InfiniteRepetitions,
		Steps:       []BlinkStep{{Duration: time.Hour, Brightness: brightness}},
	}
}

// Off is the all-LEDs-off pattern.
var Off = Solid(0)

// Blink returns a simple on/off pattern at the given period, split evenly
// between on and off, repeating forever.
func Blink(period time.Duration) BlinkPattern {
	half := period / 2
	return BlinkPattern{
		Repetitions: InfiniteRepetitions,
		Steps: []BlinkStep{
			{Duration: half, Brightness: 1},
			{Duration: half, Brightness: 0},
		},
	}
}

// Pulse returns a locator-style pulse pattern: a handful of fast flashes
// used by the locator feature (spec.md §4.4) to make a unit stand out.
func Pulse() BlinkPattern {
	return BlinkPattern{
		Repetitions: InfiniteRepetitions,
		Steps: []BlinkStep{
			{Duration: 150 * time.Millisecond, Brightness: 1},
			{Duration: 150 * time.Millisecond, Brightness: 0},
		},
	}
}

// MarshalJSON renders Duration as whole milliseconds on the wire.
func (s BlinkStep) MarshalJSON() ([]byte, error) {
	type wire struct {
		DurationMs int64   `json:"duration_ms"`
		Brightness float64 `json:"brightness"`
	}
	return json.Marshal(wire{DurationMs: s.Duration.Milliseconds(), Brightness: s.Brightness})
}

func (s *BlinkStep) UnmarshalJSON(data []byte) error {
	type wire struct {
		DurationMs int64   `json:"duration_ms"`
		Brightness float64 `json:"brightness"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.Duration = time.Duration(w.DurationMs) * time.Millisecond
	s.Brightness = w.Brightness
	return nil
}
