package model

// Measurement is a single timestamped analog sample, produced at a fixed
// cadence by an analog input driver (spec.md §3).
type Measurement struct {
	TsMillis int64   `json:"ts"`
	Value    float64 `json:"value"`
}
