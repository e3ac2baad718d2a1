// Package model holds the sum types shared by the supervisor, the UI
// arbiter, and the external transports: DutPwrStatus, DutPwrRequest,
// Screen, ButtonEvent, BlinkPattern, Alert, and Measurement. Each is a
// small Go type with a JSON encoding that doubles as the wire contract
// named in spec.md §6, rather than a stringly-typed value passed around
// the core.
package model

import (
	"encoding/json"
	"fmt"
)

// DutPwrStatus is the DUT power supervisor's published state. Fault
// variants (everything past Changing) are sticky: only an explicit new
// DutPwrRequest clears them.
type DutPwrStatus int

const (
	DutPwrOff DutPwrStatus = iota
	DutPwrOffFloating
	DutPwrOn
	DutPwrChanging
	DutPwrInvertedPolarity
	DutPwrOverCurrent
	DutPwrOverVoltage
	DutPwrRealtimeViolation
)

var dutPwrStatusNames = [...]string{
	"Off", "OffFloating", "On", "Changing",
	"InvertedPolarity", "OverCurrent", "OverVoltage", "RealtimeViolation",
}

func (s DutPwrStatus) String() string {
	if int(s) < 0 || int(s) >= len(dutPwrStatusNames) {
		return "Unknown"
	}
	return dutPwrStatusNames[s]
}

// IsFault reports whether s is one of the sticky fault variants.
func (s DutPwrStatus) IsFault() bool {
	switch s {
	case DutPwrInvertedPolarity, DutPwrOverCurrent, DutPwrOverVoltage, DutPwrRealtimeViolation:
		return true
	default:
		return false
	}
}

// Severity ranks fault variants for the tie-break rule in spec.md §4.3:
// RealtimeViolation > InvertedPolarity > OverVoltage > OverCurrent. Higher
// is more severe; non-fault variants rank below all faults.
func (s DutPwrStatus) Severity() int {
	switch s {
	case DutPwrRealtimeViolation:
		return 4
	case DutPwrInvertedPolarity:
		return 3
	case DutPwrOverVoltage:
		return 2
	case DutPwrOverCurrent:
		return 1
	default:
		return 0
	}
}

func (s DutPwrStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *DutPwrStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	for i, name := range dutPwrStatusNames {
		if name == str {
			*s = DutPwrStatus(i)
			return nil
		}
	}
	return fmt.Errorf("model: unknown DutPwrStatus %q", str)
}

// DutPwrRequest is the subset of DutPwrStatus a caller may request; every
// other state is reached only by the supervisor itself. A value outside
// these three never decodes successfully, which is how a PUT carrying a
// fault-variant string is rejected (see DESIGN.md, Open Question a).
type DutPwrRequest int

const (
	DutPwrRequestOff DutPwrRequest = iota
	DutPwrRequestOffFloating
	DutPwrRequestOn
)

var dutPwrRequestNames = [...]string{"Off", "OffFloating", "On"}

func (r DutPwrRequest) String() string {
	if int(r) < 0 || int(r) >= len(dutPwrRequestNames) {
		return "Unknown"
	}
	return dutPwrRequestNames[r]
}

func (r DutPwrRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *DutPwrRequest) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	for i, name := range dutPwrRequestNames {
		if name == str {
			*r = DutPwrRequest(i)
			return nil
		}
	}
	return fmt.Errorf("model: unknown DutPwrRequest %q (fault variants and other statuses are supervisor-only)", str)
}
