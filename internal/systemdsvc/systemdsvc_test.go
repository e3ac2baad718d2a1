package systemdsvc

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/topic"
)

func TestUnitPublishesStatusAndRoutesAction(t *testing.T) {
	logger := logrus.StandardLogger()
	backend := NewStubBackend()
	backend.Statuses["tacd.service"] = model.ServiceStatus{ActiveState: "active", SubState: "running"}

	u := &Unit{
		Name:    "tacd.service",
		Backend: backend,
		Status:  topic.New[model.ServiceStatus](logger, "test/systemd/status"),
		Action:  topic.New[model.ServiceAction](logger, "test/systemd/action"),
		Period:  5 * time.Millisecond,
		Logger:  logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, _, ok := u.Status.Get()
		return ok && st.ActiveState == "active"
	}, time.Second, time.Millisecond)

	u.Action.Publish(model.ServiceRestart)
	require.Eventually(t, func() bool {
		return len(backend.Actions) == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, model.ServiceRestart, backend.Actions[0].Action)

	cancel()
	<-done
}
