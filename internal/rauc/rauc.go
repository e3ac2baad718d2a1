// Package rauc adapts the local RAUC update daemon to the topic bus.
// spec.md §4.6 specifies this collaborator as contract-only, so the
// D-Bus transport is abstracted behind the Backend interface; the
// shape (poll-on-ticker, publish every poll) mirrors the teacher's
// internal/api.DiplusClient.
package rauc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/topic"
)

// Backend is whatever can actually talk to RAUC (production: D-Bus
// org.freedesktop.rauc.Installer). Its absence from this repo's go.mod
// is intentional: no example in the pack depends on a D-Bus binding, so
// wiring one in would be an ungrounded dependency. StubBackend below
// is what every test and off-target build uses instead.
type Backend interface {
	Operation() (model.RaucOperation, error)
	Slots() (model.RaucSlots, error)
	LastError() (string, error)
	ShouldReboot() (bool, error)
	Install(req model.RaucInstallRequest) error
}

// StubBackend is an in-memory Backend for tests and off-target builds.
type StubBackend struct {
	Op        model.RaucOperation
	SlotTable model.RaucSlots
	Err       string
	Reboot    bool
	Installed []model.RaucInstallRequest
}

func (s *StubBackend) Operation() (model.RaucOperation, error) { return s.Op, nil }
func (s *StubBackend) Slots() (model.RaucSlots, error)         { return s.SlotTable, nil }
func (s *StubBackend) LastError() (string, error)              { return s.Err, nil }
func (s *StubBackend) ShouldReboot() (bool, error)              { return s.Reboot, nil }
func (s *StubBackend) Install(req model.RaucInstallRequest) error {
	s.Installed = append(s.Installed, req)
	s.Op = model.RaucInstalling
	return nil
}

// Adapter polls Backend and republishes its state as topics, and routes
// Install topic writes back to Backend.
type Adapter struct {
	Backend Backend
	Period  time.Duration
	Logger  *logrus.Logger

	Operation    *topic.Topic[model.RaucOperation]
	Slots        *topic.Topic[model.RaucSlots]
	LastError    *topic.Topic[string]
	ShouldReboot *topic.Topic[bool]
	Install      *topic.Topic[model.RaucInstallRequest]
}

// Run subscribes Install and polls Backend on Period until ctx is
// cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	logger := a.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var sub *topic.Subscription
	if a.Install != nil {
		sub = a.Install.Subscribe(func(_, _ uint64, req model.RaucInstallRequest) {
			if err := a.Backend.Install(req); err != nil {
				logger.WithError(err).Error("rauc: install request failed")
			}
		})
		defer sub.Cancel()
	}

	ticker := time.NewTicker(a.Period)
	defer ticker.Stop()

	a.poll(logger)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.poll(logger)
		}
	}
}

func (a *Adapter) poll(logger *logrus.Logger) {
	if op, err := a.Backend.Operation(); err != nil {
		logger.WithError(err).Warn("rauc: failed to read operation")
	} else if a.Operation != nil {
		a.Operation.Publish(op)
	}

	if slots, err := a.Backend.Slots(); err != nil {
		logger.WithError(err).Warn("rauc: failed to read slots")
	} else if a.Slots != nil {
		a.Slots.Publish(slots)
	}

	if lastErr, err := a.Backend.LastError(); err != nil {
		logger.WithError(err).Warn("rauc: failed to read last error")
	} else if a.LastError != nil {
		a.LastError.Publish(lastErr)
	}

	if reboot, err := a.Backend.ShouldReboot(); err != nil {
		logger.WithError(err).Warn("rauc: failed to read should_reboot")
	} else if a.ShouldReboot != nil {
		a.ShouldReboot.Publish(reboot)
	}
}
