package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Button identifies one of the two physical buttons.
type Button int

const (
	ButtonUpper Button = iota
	ButtonLower
)

func (b Button) String() string {
	if b == ButtonUpper {
		return "Upper"
	}
	return "Lower"
}

// ButtonDir is the edge of a button transition.
type ButtonDir int

const (
	ButtonPress ButtonDir = iota
	ButtonRelease
)

func (d ButtonDir) String() string {
	if d == ButtonPress {
		return "Press"
	}
	return "Release"
}

// ButtonDur classifies how long a press was held. Short is reported on
// Press (a press always starts Short and may be re-reported as Long once
// the hold threshold elapses, and again on Release with the final
// duration class). LongPressThreshold is the default threshold named in
// spec.md §3.
type ButtonDur int

const (
	DurShort ButtonDur = iota
	DurLong
)

func (d ButtonDur) String() string {
	if d == DurLong {
		return "Long"
	}
	return "Short"
}

// LongPressThreshold is the default hold duration after which a Press is
// reported as Long.
const LongPressThreshold = time.Second

// ButtonEvent is a single button transition as delivered to the UI
// arbiter and exported on the physical-UI wire surface.
type ButtonEvent struct {
	Btn Button    `json:"btn"`
	Dir ButtonDir `json:"dir"`
	Dur ButtonDur `json:"dur"`
}

type buttonEventWire struct {
	Btn string `json:"btn"`
	Dir string `json:"dir"`
	Dur string `json:"dur"`
}

func (e ButtonEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(buttonEventWire{
		Btn: e.Btn.String(),
		Dir: e.Dir.String(),
		Dur: e.Dur.String(),
	})
}

func (e *ButtonEvent) UnmarshalJSON(data []byte) error {
	var w buttonEventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Btn {
	case "Upper":
		e.Btn = ButtonUpper
	case "Lower":
		e.Btn = ButtonLower
	default:
		return fmt.Errorf("model: unknown button %q", w.Btn)
	}
	switch w.Dir {
	case "Press":
		e.Dir = ButtonPress
	case "Release":
		e.Dir = ButtonRelease
	default:
		return fmt.Errorf("model: unknown button direction %q", w.Dir)
	}
	switch w.Dur {
	case "Short":
		e.Dur = DurShort
	case "Long":
		e.Dur = DurLong
	default:
		return fmt.Errorf("model: unknown button duration %q", w.Dur)
	}
	return nil
}
