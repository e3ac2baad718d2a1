package model

import (
	"encoding/json"
	"fmt"
)

// Screen enumerates every top-level and modal screen the UI arbiter can
// show. The normal-screen cycle (advanced by a short press of the Upper
// button) only ever visits the top-level screens; modal screens are
// reached through the alert stack.
type Screen int

const (
	ScreenDutPower Screen = iota
	ScreenUsb
	ScreenDigOut
	ScreenSystem
	ScreenIoBus
	ScreenUart

	ScreenSetup
	ScreenHelp
	ScreenRebootConfirm
	ScreenUpdateAvailable
	ScreenUpdateInstallation
	ScreenLocator
	ScreenSaver
)

var screenNames = [...]string{
	"DutPower", "Usb", "DigOut", "System", "IoBus", "Uart",
	"Setup", "Help", "RebootConfirm", "UpdateAvailable",
	"UpdateInstallation", "Locator", "ScreenSaver",
}

func (s Screen) String() string {
	if int(s) < 0 || int(s) >= len(screenNames) {
		return "Unknown"
	}
	return screenNames[s]
}

func (s Screen) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Screen) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	for i, name := range screenNames {
		if name == str {
			*s = Screen(i)
			return nil
		}
	}
	return fmt.Errorf("model: unknown Screen %q", str)
}

// IsModal reports whether s is a modal overlay rather than one of the
// normal screens the Upper button cycles through.
func (s Screen) IsModal() bool {
	return s >= ScreenSetup
}

// NormalScreenCycle is the fixed order short-press of the Upper button
// advances through.
var NormalScreenCycle = []Screen{
	ScreenDutPower, ScreenUsb, ScreenDigOut, ScreenSystem, ScreenIoBus, ScreenUart,
}

// NextNormalScreen returns the screen that follows cur in
// NormalScreenCycle, wrapping around. If cur is not a normal screen, the
// cycle's first entry is returned.
func NextNormalScreen(cur Screen) Screen {
	for i, s := range NormalScreenCycle {
		if s == cur {
			return NormalScreenCycle[(i+1)%len(NormalScreenCycle)]
		}
	}
	return NormalScreenCycle[0]
}
