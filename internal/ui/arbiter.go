// Package ui implements the screen/input arbiter from spec.md §4.4: a
// cooperative state machine that owns the LCD framebuffer, routes
// button presses to the active screen, and coordinates modal alerts.
// It is grounded on the teacher's app.Run central-scheduler goroutine
// (one ticker, one select loop, per-target bookkeeping) generalized
// from MQTT/ABRP interval bookkeeping to alert-priority/screen-cycle
// bookkeeping.
package ui

import (
	"context"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linux-automation/tacd/internal/hw"
	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/topic"
)

var blankColor = color.Black

// RedrawPeriod is the arbiter's render throttle: at most this often, no
// matter how many topics fire in between (spec.md §4.4, "~20 Hz").
const RedrawPeriod = 50 * time.Millisecond

// DefaultIdleTimeout is how long the UI waits with no button activity
// before pushing the screensaver alert (spec.md §4.4 names this T_idle
// without a default; 30s matches the teacher's own poll-interval order
// of magnitude and is documented as a decision in DESIGN.md).
const DefaultIdleTimeout = 30 * time.Second

// Arbiter owns the LCD and arbitrates between the user-selected normal
// screen and the stack of pending modal alerts.
type Arbiter struct {
	LCD *hw.LCD

	ActiveScreen   *topic.Topic[model.Screen]
	Alerts         *topic.Topic[[]model.AlertKind]
	SetupMode      *topic.Topic[bool]
	Locator        *topic.Topic[bool]
	DisplayContent *topic.Topic[[]byte]
	StatusLED      *topic.Topic[model.BlinkPattern]

	IdleTimeout time.Duration
	Logger      *logrus.Logger

	Handlers map[model.Screen]Handler

	buttons <-chan model.ButtonEvent

	alerts *alertStack

	mu           sync.Mutex
	normalScreen model.Screen
	lastActivity time.Time
	priorLEDPat  model.BlinkPattern

	longHeld map[model.Button]bool

	dirty atomic.Bool
}

// NewArbiter wires an Arbiter against the given topics. buttons is the
// channel button events are delivered on (the far end of
// hw.ButtonReader's emit callback, typically fed through a small
// buffered channel by the caller).
func NewArbiter(lcd *hw.LCD, buttons <-chan model.ButtonEvent) *Arbiter {
	a := &Arbiter{
		LCD:         lcd,
		IdleTimeout: DefaultIdleTimeout,
		Handlers:    make(map[model.Screen]Handler),
		buttons:     buttons,
		longHeld:    make(map[model.Button]bool),
	}
	return a
}

// Run subscribes to every topic the arbiter reacts to and blocks running
// the button/redraw/idle loop until ctx is cancelled.
func (a *Arbiter) Run(ctx context.Context) error {
	logger := a.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	a.alerts = newAlertStack(a.Alerts)
	a.lastActivity = time.Now()
	a.normalScreen = model.ScreenDutPower
	a.ActiveScreen.Publish(a.effectiveScreen())

	var subs []*topic.Subscription
	defer func() {
		for _, s := range subs {
			s.Cancel()
		}
	}()

	if a.SetupMode != nil {
		subs = append(subs, a.SetupMode.Subscribe(func(_, _ uint64, on bool) {
			if on {
				a.alerts.push(model.AlertSetup)
			} else {
				a.alerts.pop(model.AlertSetup)
			}
			a.ActiveScreen.Publish(a.effectiveScreen())
			a.RequestRedraw()
		}))
	}

	if a.Locator != nil {
		subs = append(subs, a.Locator.Subscribe(func(_, _ uint64, on bool) {
			a.setLocator(on)
			a.RequestRedraw()
		}))
	}

	redraw := time.NewTicker(RedrawPeriod)
	defer redraw.Stop()

	idleCheck := time.NewTicker(time.Second)
	defer idleCheck.Stop()

	a.render(logger)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case e, ok := <-a.buttons:
			if !ok {
				a.buttons = nil
				continue
			}
			a.handleButton(e)

		case <-redraw.C:
			if a.dirty.CompareAndSwap(true, false) {
				a.render(logger)
			}

		case <-idleCheck.C:
			a.mu.Lock()
			idleFor := time.Since(a.lastActivity)
			a.mu.Unlock()
			if idleFor >= a.IdleTimeout && !a.alerts.has(model.AlertScreenSaver) {
				a.alerts.push(model.AlertScreenSaver)
				a.ActiveScreen.Publish(a.effectiveScreen())
				a.RequestRedraw()
			}
		}
	}
}

// RequestRedraw marks the framebuffer dirty; the next redraw tick
// actually renders it. Calling it more than once between ticks is free.
func (a *Arbiter) RequestRedraw() {
	a.dirty.Store(true)
}

// effectiveScreen is the highest-priority active alert's screen, or the
// user-selected normal screen if no alert is pending.
func (a *Arbiter) effectiveScreen() model.Screen {
	if kind, ok := a.alerts.highest(); ok {
		return kind.Screen()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.normalScreen
}

func (a *Arbiter) handleButton(e model.ButtonEvent) {
	a.mu.Lock()
	a.lastActivity = time.Now()
	a.mu.Unlock()

	if a.alerts.has(model.AlertScreenSaver) {
		if e.Dir == model.ButtonPress {
			a.alerts.pop(model.AlertScreenSaver)
			a.ActiveScreen.Publish(a.effectiveScreen())
			a.RequestRedraw()
		}
		return // the dismissing press is swallowed, never reaches a screen
	}

	if e.Dir != model.ButtonPress {
		if e.Dir == model.ButtonRelease {
			a.mu.Lock()
			a.longHeld[e.Btn] = false
			a.mu.Unlock()
		}
		return
	}

	if e.Dur == model.DurLong && a.effectiveScreen() == model.ScreenSystem {
		a.mu.Lock()
		a.longHeld[e.Btn] = true
		bothHeld := a.longHeld[model.ButtonUpper] && a.longHeld[model.ButtonLower]
		a.mu.Unlock()
		if bothHeld && a.SetupMode != nil {
			a.SetupMode.Publish(true)
		}
	}

	switch e.Btn {
	case model.ButtonUpper:
		if e.Dur == model.DurShort {
			a.mu.Lock()
			a.normalScreen = model.NextNormalScreen(a.normalScreen)
			a.mu.Unlock()
			a.ActiveScreen.Publish(a.effectiveScreen())
		}
	case model.ButtonLower:
		if h, ok := a.Handlers[a.effectiveScreen()]; ok {
			h.HandlePress(e.Dur)
		}
	}
	a.RequestRedraw()
}

func (a *Arbiter) setLocator(on bool) {
	a.LCD.SetInverted(on)
	if a.StatusLED == nil {
		return
	}
	if on {
		a.priorLEDPat, _, _ = a.StatusLED.Get()
		a.StatusLED.Publish(model.Pulse())
	} else {
		a.StatusLED.Publish(a.priorLEDPat)
	}
}

func (a *Arbiter) render(logger *logrus.Logger) {
	screen := a.effectiveScreen()
	if h, ok := a.Handlers[screen]; ok {
		h.Render(a.LCD)
	} else {
		a.LCD.Clear(blankColor)
	}

	if a.DisplayContent == nil {
		return
	}
	png, err := a.LCD.PNG()
	if err != nil {
		logger.WithError(err).Warn("ui: failed to encode framebuffer as PNG")
		return
	}
	a.DisplayContent.Publish(png)
}
