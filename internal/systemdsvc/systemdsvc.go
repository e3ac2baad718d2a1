// Package systemdsvc bridges a handful of systemd units to the topic
// bus: one status topic per unit, one action topic per unit (spec.md
// §4.6). The D-Bus transport is abstracted behind Backend for the same
// reason as internal/rauc: no example in the pack depends on a D-Bus
// client library.
package systemdsvc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/topic"
)

// Backend queries and controls one systemd unit.
type Backend interface {
	Status(unit string) (model.ServiceStatus, error)
	Do(unit string, action model.ServiceAction) error
}

// StubBackend is an in-memory Backend for tests and off-target builds.
type StubBackend struct {
	Statuses map[string]model.ServiceStatus
	Actions  []struct {
		Unit   string
		Action model.ServiceAction
	}
}

func NewStubBackend() *StubBackend {
	return &StubBackend{Statuses: make(map[string]model.ServiceStatus)}
}

func (s *StubBackend) Status(unit string) (model.ServiceStatus, error) {
	return s.Statuses[unit], nil
}

func (s *StubBackend) Do(unit string, action model.ServiceAction) error {
	s.Actions = append(s.Actions, struct {
		Unit   string
		Action model.ServiceAction
	}{unit, action})
	return nil
}

// Unit bridges a single systemd unit's status and action topics.
type Unit struct {
	Name    string
	Backend Backend
	Status  *topic.Topic[model.ServiceStatus]
	Action  *topic.Topic[model.ServiceAction]
	Period  time.Duration
	Logger  *logrus.Logger
}

// Run polls Status on Period and subscribes Action until ctx is
// cancelled.
func (u *Unit) Run(ctx context.Context) error {
	logger := u.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var sub *topic.Subscription
	if u.Action != nil {
		sub = u.Action.Subscribe(func(_, _ uint64, action model.ServiceAction) {
			if err := u.Backend.Do(u.Name, action); err != nil {
				logger.WithFields(logrus.Fields{
					"unit":   u.Name,
					"action": action,
					"error":  err,
				}).Error("systemdsvc: action failed")
			}
		})
		defer sub.Cancel()
	}

	ticker := time.NewTicker(u.Period)
	defer ticker.Stop()

	u.poll(logger)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			u.poll(logger)
		}
	}
}

func (u *Unit) poll(logger *logrus.Logger) {
	status, err := u.Backend.Status(u.Name)
	if err != nil {
		logger.WithFields(logrus.Fields{"unit": u.Name, "error": err}).Warn("systemdsvc: status query failed")
		return
	}
	if u.Status != nil {
		u.Status.Publish(status)
	}
}
