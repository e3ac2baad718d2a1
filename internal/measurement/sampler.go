package measurement

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/topic"
)

// ReadFunc samples an analog channel once and returns its current value.
type ReadFunc func() (float64, error)

// Sampler drives ReadFunc at a fixed Period, publishing each successful
// sample onto Topic and (if Ring is set) pushing it onto the supervisor's
// fast-path ring too. It is the generalized form of the teacher's
// ticker + atomic busy-guard loop in cmd/byd-hass/main.go, lifted from
// one hardcoded poll into a reusable driver for any of this daemon's
// analog channels.
type Sampler struct {
	Name    string
	Period  time.Duration
	Read    ReadFunc
	Topic   *topic.Topic[model.Measurement]
	Ring    *Ring[model.Measurement]
	Logger  *logrus.Logger
	BootRef time.Time // subtracted from sample time to get "ms since boot"
}

// Run blocks, sampling at Period until ctx is cancelled. A slow Read that
// overruns its period is logged (UI-facing channels only log; the
// supervisor's own fast-path loop enforces the RealtimeViolation rule
// directly in internal/supervisor, not here).
func (s *Sampler) Run(ctx context.Context) error {
	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-ticker.C:
			start := time.Now()
			value, err := s.Read()
			if err != nil {
				logger.WithFields(logrus.Fields{
					"channel": s.Name,
					"error":   err,
				}).Warn("measurement: sample failed")
				continue
			}
			m := model.Measurement{
				TsMillis: tick.Sub(s.BootRef).Milliseconds(),
				Value:    value,
			}
			if s.Topic != nil {
				s.Topic.Publish(m)
			}
			if s.Ring != nil {
				s.Ring.Push(m)
			}
			if elapsed := time.Since(start); elapsed > s.Period {
				logger.WithFields(logrus.Fields{
					"channel": s.Name,
					"elapsed": elapsed,
					"period":  s.Period,
				}).Warn("measurement: sample missed its deadline")
			}
		}
	}
}
