package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDutPwrStatusJSONRoundTrip(t *testing.T) {
	for _, s := range []DutPwrStatus{
		DutPwrOff, DutPwrOffFloating, DutPwrOn, DutPwrChanging,
		DutPwrInvertedPolarity, DutPwrOverCurrent, DutPwrOverVoltage, DutPwrRealtimeViolation,
	} {
		data, err := json.Marshal(s)
		require.NoError(t, err)
		var back DutPwrStatus
		require.NoError(t, json.Unmarshal(data, &back))
		require.Equal(t, s, back)
	}
}

func TestDutPwrRequestRejectsFaultVariants(t *testing.T) {
	var r DutPwrRequest
	err := json.Unmarshal([]byte(`"OverCurrent"`), &r)
	require.Error(t, err, "fault-variant strings must not decode into a DutPwrRequest")
}

func TestDutPwrStatusSeverityTieBreak(t *testing.T) {
	faults := []DutPwrStatus{DutPwrOverCurrent, DutPwrOverVoltage, DutPwrInvertedPolarity, DutPwrRealtimeViolation}
	best := faults[0]
	for _, f := range faults[1:] {
		if f.Severity() > best.Severity() {
			best = f
		}
	}
	require.Equal(t, DutPwrRealtimeViolation, best)
}

func TestScreenCycleWraps(t *testing.T) {
	s := ScreenDutPower
	seen := map[Screen]bool{}
	for range NormalScreenCycle {
		seen[s] = true
		s = NextNormalScreen(s)
	}
	require.Equal(t, ScreenDutPower, s, "cycle must wrap back to the start")
	require.Len(t, seen, len(NormalScreenCycle))
}

func TestButtonEventJSONRoundTrip(t *testing.T) {
	e := ButtonEvent{Btn: ButtonUpper, Dir: ButtonPress, Dur: DurShort}
	data, err := json.Marshal(e)
	require.NoError(t, err)
	require.JSONEq(t, `{"btn":"Upper","dir":"Press","dur":"Short"}`, string(data))

	var back ButtonEvent
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, e, back)
}

func TestHighestPriorityAlert(t *testing.T) {
	pending := []AlertKind{AlertScreenSaver, AlertHelp, AlertRebootConfirm}
	best, ok := HighestPriority(pending)
	require.True(t, ok)
	require.Equal(t, AlertRebootConfirm, best)
}

func TestHighestPriorityEmpty(t *testing.T) {
	_, ok := HighestPriority(nil)
	require.False(t, ok)
}

func TestBlinkStepJSONRoundTrip(t *testing.T) {
	step := BlinkStep{Duration: 250 * time.Millisecond, Brightness: 0.5}
	data, err := json.Marshal(step)
	require.NoError(t, err)

	var back BlinkStep
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, step, back)
}
