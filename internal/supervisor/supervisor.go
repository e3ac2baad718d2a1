// Package supervisor implements the DUT power realtime core: a fixed-rate
// sample/decide/actuate loop with a sticky-fault state machine, isolated
// from the rest of the daemon behind a single command mailbox and a pair
// of lock-free measurement rings so that no topic bus locking, logging
// allocation, or GC pressure can land on its hot path.
package supervisor

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/linux-automation/tacd/internal/measurement"
	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/topic"
)

// SwitchState is the physical combination the supervisor asks the power
// switch driver to take.
type SwitchState int

const (
	SwitchOff SwitchState = iota
	SwitchOffFloating
	SwitchOn
)

// SwitchDriver actuates the physical DUT power switch. Actuate must
// return quickly and without allocating in the common case, since it is
// called from the realtime loop.
type SwitchDriver interface {
	Actuate(SwitchState) error
}

// Supervisor runs the fixed-rate DUT power control loop described in
// spec.md §4.3.
type Supervisor struct {
	Limits Limits
	Switch SwitchDriver

	VoltageRing *measurement.Ring[model.Measurement]
	CurrentRing *measurement.Ring[model.Measurement]

	Requests *topic.Topic[model.DutPwrRequest]
	Status   *topic.Topic[model.DutPwrStatus]

	Logger *logrus.Logger

	// JitterObserver, if set, is called once per tick with the deviation
	// of the actual inter-tick interval from Period, for the
	// supervisor-loop-jitter metric. It must return quickly: it runs on
	// the realtime loop.
	JitterObserver func(time.Duration)

	mailbox atomic.Pointer[model.DutPwrRequest]

	state          model.DutPwrStatus
	changingSince  time.Time
	overCurrentRun int
	missedDeadline int
	lastTick       time.Time
}

// Run subscribes to Requests (the only topic read this type ever
// performs), then blocks running the fixed-rate loop until ctx is
// cancelled, on an OS thread locked to this goroutine. The topic
// subscription only ever updates an atomic mailbox; the loop reads no
// topic and publishes to Status only when the state changes.
func (s *Supervisor) Run(ctx context.Context) error {
	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	sub := s.Requests.Subscribe(func(_, _ uint64, req model.DutPwrRequest) {
		r := req
		s.mailbox.Store(&r)
	})
	defer sub.Cancel()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := setRealtimePriority(); err != nil {
		logger.WithError(err).Warn("supervisor: could not raise scheduling priority, continuing best-effort")
	}

	s.state = model.DutPwrOff
	s.Status.Publish(s.state)

	ticker := time.NewTicker(Period)
	defer ticker.Stop()
	s.lastTick = time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.tick(now, logger)
		}
	}
}

// tick runs exactly one sample→decide→actuate→publish iteration.
func (s *Supervisor) tick(now time.Time, logger *logrus.Logger) {
	elapsed := now.Sub(s.lastTick)
	if elapsed > Period*2 {
		s.missedDeadline++
	} else {
		s.missedDeadline = 0
	}
	if s.JitterObserver != nil {
		s.JitterObserver(elapsed - Period)
	}
	s.lastTick = now

	voltage, haveV := s.latestValue(s.VoltageRing)
	current, haveI := s.latestValue(s.CurrentRing)

	// Swap-and-clear: a request is applied at most once. Leaving it in
	// the mailbox would make stateForRequest re-run on every following
	// tick, which resets changingSince each time and the Changing->On
	// settle-time check at the bottom of this function would never fire.
	req := s.mailbox.Swap(nil)

	next := s.decide(req, voltage, current, haveV, haveI, now)

	if next != s.state {
		if isOffState(next) {
			if err := s.actuate(next); err != nil {
				logger.WithError(err).Error("supervisor: actuation failed")
			}
		}
		s.state = next
		s.Status.Publish(s.state)
	}

	if s.state == model.DutPwrChanging && now.Sub(s.changingSince) >= SettleTime {
		if !s.isFaulted(voltage, current, haveV, haveI) {
			s.state = model.DutPwrOn
			if err := s.actuate(model.DutPwrOn); err != nil {
				logger.WithError(err).Error("supervisor: actuation failed")
			}
			s.Status.Publish(s.state)
		}
	}
}

func (s *Supervisor) latestValue(r *measurement.Ring[model.Measurement]) (float64, bool) {
	if r == nil {
		return 0, false
	}
	m, ok := r.Latest()
	if !ok {
		return 0, false
	}
	return m.Value, true
}

// decide applies the state machine transition rules, returning the state
// the loop should be in after this sample. Fault severity tie-breaks are
// resolved through model.DutPwrStatus.Severity.
func (s *Supervisor) decide(req *model.DutPwrRequest, voltage, current float64, haveV, haveI bool, now time.Time) model.DutPwrStatus {
	if s.missedDeadline >= MissesForViolation {
		return model.DutPwrRealtimeViolation
	}

	if s.state.IsFault() {
		// Fault states only clear on an explicit new request.
		if req == nil {
			return s.state
		}
		return s.stateForRequest(*req, now)
	}

	if req != nil {
		if target := s.stateForRequest(*req, now); target != s.state &&
			(s.state == model.DutPwrOff || s.state == model.DutPwrOffFloating || s.state == model.DutPwrOn || s.state == model.DutPwrChanging) {
			// A fresh request always takes precedence over whatever
			// off/on/changing state we were previously in.
			if *req == model.DutPwrRequestOn && s.state != model.DutPwrChanging && s.state != model.DutPwrOn {
				s.changingSince = now
			}
			return target
		}
	}

	if s.state == model.DutPwrOn || s.state == model.DutPwrChanging {
		if fault, ok := s.faultFor(voltage, current, haveV, haveI); ok {
			return fault
		}
	} else {
		s.overCurrentRun = 0
	}

	return s.state
}

func (s *Supervisor) stateForRequest(req model.DutPwrRequest, now time.Time) model.DutPwrStatus {
	switch req {
	case model.DutPwrRequestOff:
		return model.DutPwrOff
	case model.DutPwrRequestOffFloating:
		return model.DutPwrOffFloating
	case model.DutPwrRequestOn:
		if s.state == model.DutPwrOn {
			return model.DutPwrOn
		}
		s.changingSince = now
		return model.DutPwrChanging
	default:
		return s.state
	}
}

// faultFor inspects the current sample for fault conditions and applies
// the severity tie-break when more than one is present simultaneously.
func (s *Supervisor) faultFor(voltage, current float64, haveV, haveI bool) (model.DutPwrStatus, bool) {
	candidates := make([]model.DutPwrStatus, 0, 3)

	if haveV && voltage <= s.Limits.ReversePolarityVoltage {
		candidates = append(candidates, model.DutPwrInvertedPolarity)
	}
	if haveV && abs(voltage) > s.Limits.VoltageMax {
		candidates = append(candidates, model.DutPwrOverVoltage)
	}

	overCurrent := false
	if haveI && abs(current) > s.Limits.CurrentMax {
		overCurrent = true
	}
	if haveV && haveI && abs(current)*abs(voltage) > s.Limits.PowerMax {
		overCurrent = true
	}
	if overCurrent {
		s.overCurrentRun++
		if s.overCurrentRun >= OvercurrentSamples {
			candidates = append(candidates, model.DutPwrOverCurrent)
		}
	} else {
		s.overCurrentRun = 0
	}

	if len(candidates) == 0 {
		return 0, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Severity() > best.Severity() {
			best = c
		}
	}
	return best, true
}

func (s *Supervisor) isFaulted(voltage, current float64, haveV, haveI bool) bool {
	_, ok := s.faultFor(voltage, current, haveV, haveI)
	return ok
}

func (s *Supervisor) actuate(target model.DutPwrStatus) error {
	if s.Switch == nil {
		return nil
	}
	switch target {
	case model.DutPwrOffFloating:
		return s.Switch.Actuate(SwitchOffFloating)
	case model.DutPwrOn:
		return s.Switch.Actuate(SwitchOn)
	default:
		return s.Switch.Actuate(SwitchOff)
	}
}

func isOffState(s model.DutPwrStatus) bool {
	switch s {
	case model.DutPwrOff, model.DutPwrOffFloating:
		return true
	default:
		return s.IsFault()
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// setRealtimePriority is a best-effort attempt to move the calling
// goroutine's underlying OS thread to SCHED_FIFO. Failure (e.g. missing
// CAP_SYS_NICE, or running under a non-Linux GOOS during development) is
// logged by the caller and never fatal: the loop still runs, just without
// the scheduling guarantee.
func setRealtimePriority() error {
	return unix.SchedSetscheduler(0, unix.SCHED_FIFO, &unix.SchedParam{Priority: 50})
}
