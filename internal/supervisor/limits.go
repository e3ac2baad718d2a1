package supervisor

import "time"

// Period is the nominal fixed-rate sample period of the realtime loop.
const Period = time.Millisecond // 1 kHz

// MissesForViolation is the number of consecutive deadline misses that
// latch RealtimeViolation.
const MissesForViolation = 3

// OvercurrentSamples (K) is the number of consecutive over-limit current
// samples required before OverCurrent latches; a single noisy sample must
// not trip the DUT off.
const OvercurrentSamples = 5

// SettleTime is the minimum time the loop stays in Changing, with V and I
// inside bounds, before it commits to On.
const SettleTime = 100 * time.Millisecond

// Limits bundles the DUT-specific electrical thresholds. Unlike the timing
// constants above these vary by carrier board and are supplied by the
// caller rather than hardcoded.
type Limits struct {
	// CurrentMax is the absolute current limit in amperes.
	CurrentMax float64
	// VoltageMax is the absolute voltage limit in volts.
	VoltageMax float64
	// PowerMax is the instantaneous |I|*V power limit in watts.
	PowerMax float64
	// ReversePolarityVoltage is the negative-voltage threshold (volts,
	// given as a negative number) below which InvertedPolarity latches.
	ReversePolarityVoltage float64
}

// DefaultLimits are conservative defaults suitable for a 12V/5A carrier.
var DefaultLimits = Limits{
	CurrentMax:             5.0,
	VoltageMax:             14.0,
	PowerMax:               65.0,
	ReversePolarityVoltage: -0.5,
}
