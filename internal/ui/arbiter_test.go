package ui

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/linux-automation/tacd/internal/hw"
	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/topic"
)

func newTestArbiter(t *testing.T, buttons chan model.ButtonEvent) *Arbiter {
	t.Helper()
	logger := logrus.StandardLogger()
	a := NewArbiter(hw.NewLCD(16, 16), buttons)
	a.ActiveScreen = topic.New[model.Screen](logger, "test/ui/screen")
	a.Alerts = topic.New[[]model.AlertKind](logger, "test/ui/alerts")
	a.SetupMode = topic.New[bool](logger, "test/ui/setup_mode")
	a.Locator = topic.New[bool](logger, "test/ui/locator")
	a.DisplayContent = topic.New[[]byte](logger, "test/ui/content")
	a.StatusLED = topic.New[model.BlinkPattern](logger, "test/ui/led")
	a.StatusLED.Publish(model.Solid(1))
	a.IdleTimeout = time.Hour // disable screensaver for most tests
	a.Logger = logger
	return a
}

func runArbiter(t *testing.T, a *Arbiter) (cancel func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestUpperPressCyclesNormalScreen(t *testing.T) {
	buttons := make(chan model.ButtonEvent, 4)
	a := newTestArbiter(t, buttons)
	runArbiter(t, a)

	buttons <- model.ButtonEvent{Btn: model.ButtonUpper, Dir: model.ButtonPress, Dur: model.DurShort}
	require.Eventually(t, func() bool {
		v, _, ok := a.ActiveScreen.Get()
		return ok && v == model.ScreenUsb
	}, time.Second, time.Millisecond)
}

func TestLowerPressDelegatesToHandler(t *testing.T) {
	buttons := make(chan model.ButtonEvent, 4)
	a := newTestArbiter(t, buttons)

	var pressed model.ButtonDur
	handled := make(chan struct{}, 1)
	a.Handlers[model.ScreenDutPower] = HandlerFuncs{
		HandlePressFunc: func(dur model.ButtonDur) {
			pressed = dur
			handled <- struct{}{}
		},
	}
	runArbiter(t, a)

	buttons <- model.ButtonEvent{Btn: model.ButtonLower, Dir: model.ButtonPress, Dur: model.DurLong}
	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
	require.Equal(t, model.DurLong, pressed)
}

func TestLocatorInvertsDisplayAndSetsPulsePattern(t *testing.T) {
	buttons := make(chan model.ButtonEvent, 4)
	a := newTestArbiter(t, buttons)
	runArbiter(t, a)

	a.Locator.Publish(true)
	require.Eventually(t, func() bool {
		return a.LCD.Inverted()
	}, time.Second, time.Millisecond)

	pat, _, _ := a.StatusLED.Get()
	require.Equal(t, model.Pulse(), pat)

	a.Locator.Publish(false)
	require.Eventually(t, func() bool {
		return !a.LCD.Inverted()
	}, time.Second, time.Millisecond)
}

func TestSetupModePushesAndClearsAlert(t *testing.T) {
	buttons := make(chan model.ButtonEvent, 4)
	a := newTestArbiter(t, buttons)
	runArbiter(t, a)

	a.SetupMode.Publish(true)
	require.Eventually(t, func() bool {
		return a.alerts.has(model.AlertSetup)
	}, time.Second, time.Millisecond)

	a.SetupMode.Publish(false)
	require.Eventually(t, func() bool {
		return !a.alerts.has(model.AlertSetup)
	}, time.Second, time.Millisecond)
}

func TestScreensaverDismissedBySwallowedPress(t *testing.T) {
	buttons := make(chan model.ButtonEvent, 4)
	a := newTestArbiter(t, buttons)
	a.IdleTimeout = 0 // fire immediately on the first idle tick

	var pressed bool
	a.Handlers[model.ScreenDutPower] = HandlerFuncs{
		HandlePressFunc: func(model.ButtonDur) { pressed = true },
	}
	runArbiter(t, a)

	require.Eventually(t, func() bool {
		return a.alerts.has(model.AlertScreenSaver)
	}, 2*time.Second, 10*time.Millisecond)

	buttons <- model.ButtonEvent{Btn: model.ButtonLower, Dir: model.ButtonPress, Dur: model.DurShort}
	require.Eventually(t, func() bool {
		return !a.alerts.has(model.AlertScreenSaver)
	}, time.Second, time.Millisecond)
	require.False(t, pressed, "the dismissing press must not reach the underlying screen")
}
