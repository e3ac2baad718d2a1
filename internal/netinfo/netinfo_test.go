package netinfo

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/topic"
)

type fakeLinks struct{}

func (fakeLinks) Link(name string) (int, bool, error) {
	return 1000, true, nil
}

type fakeSetter struct {
	names []string
}

func (f *fakeSetter) SetHostname(name string) error {
	f.names = append(f.names, name)
	return nil
}

func TestPollerPublishesNetworkInfo(t *testing.T) {
	logger := logrus.StandardLogger()
	setter := &fakeSetter{}
	p := &Poller{
		Links:    fakeLinks{},
		Setter:   setter,
		Period:   5 * time.Millisecond,
		Logger:   logger,
		Info:     topic.New[model.NetworkInfo](logger, "test/netinfo/info"),
		Hostname: topic.New[string](logger, "test/netinfo/hostname"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	_, _, ok := p.Info.Get()
	require.True(t, ok)
}

func TestPollerRoutesHostnameWrite(t *testing.T) {
	logger := logrus.StandardLogger()
	setter := &fakeSetter{}
	p := &Poller{
		Links:    fakeLinks{},
		Setter:   setter,
		Period:   time.Hour,
		Logger:   logger,
		Info:     topic.New[model.NetworkInfo](logger, "test/netinfo/info2"),
		Hostname: topic.New[string](logger, "test/netinfo/hostname2"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	time.Sleep(2 * time.Millisecond)

	p.Hostname.Publish("new-hostname")
	require.Eventually(t, func() bool {
		return len(setter.names) == 1 && setter.names[0] == "new-hostname"
	}, time.Second, time.Millisecond)
}
