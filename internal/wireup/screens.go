package wireup

import (
	"image/color"
	"sync/atomic"

	"github.com/linux-automation/tacd/internal/hw"
	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/topic"
	"github.com/linux-automation/tacd/internal/ui"
)

// Color blocks stand in for glyphs: no font or vector-graphics library
// appears anywhere in the example pack this daemon was built against, so
// every screen renders as a header bar plus a content-area fill, the way
// hw.LCD.FillRect was designed to be used.
var (
	colorHeader  = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
	colorOk      = color.RGBA{G: 0xc0, A: 0xff}
	colorWarn    = color.RGBA{R: 0xc0, G: 0xa0, A: 0xff}
	colorFault   = color.RGBA{R: 0xc0, A: 0xff}
	colorNeutral = color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff}
	colorModal   = color.RGBA{B: 0xc0, A: 0xff}
)

func colorForPwrStatus(st model.DutPwrStatus) color.Color {
	switch {
	case st.IsFault():
		return colorFault
	case st == model.DutPwrOn:
		return colorOk
	case st == model.DutPwrChanging:
		return colorWarn
	default:
		return colorNeutral
	}
}

func header(lcd *hw.LCD) {
	lcd.Clear(color.Black)
	lcd.FillRect(0, 0, lcd.Width, 10, colorHeader)
}

// liveColorScreen renders a header bar plus a content fill in the color
// last passed to set; the subscriptions in registerScreens call set and
// then mark the arbiter dirty.
type liveColorScreen struct {
	color atomic.Value // color.Color
}

func newLiveColorScreen(initial color.Color) *liveColorScreen {
	s := &liveColorScreen{}
	s.color.Store(initial)
	return s
}

func (s *liveColorScreen) set(c color.Color) {
	s.color.Store(c)
}

func (s *liveColorScreen) Render(lcd *hw.LCD) {
	header(lcd)
	lcd.FillRect(4, 16, lcd.Width-8, lcd.Height-20, s.color.Load().(color.Color))
}

func (s *liveColorScreen) HandlePress(model.ButtonDur) {}

// registerScreens populates arb.Handlers with a minimal content handler
// per screen, each subscribing to the topics it displays so that a
// publish to any of them marks the arbiter dirty (spec.md §4.4,
// "redraws on any publish to a topic the current screen has
// subscribed to").
func registerScreens(
	arb *ui.Arbiter,
	pwrStatus *topic.Topic[model.DutPwrStatus],
	iobusHealth *topic.Topic[bool],
	output0, output1 *topic.Topic[bool],
) {
	dutPower := newLiveColorScreen(colorNeutral)
	pwrStatus.Subscribe(func(_, _ uint64, st model.DutPwrStatus) {
		dutPower.set(colorForPwrStatus(st))
		arb.RequestRedraw()
	})
	arb.Handlers[model.ScreenDutPower] = dutPower

	ioBus := newLiveColorScreen(colorFault)
	iobusHealth.Subscribe(func(_, _ uint64, healthy bool) {
		if healthy {
			ioBus.set(colorOk)
		} else {
			ioBus.set(colorFault)
		}
		arb.RequestRedraw()
	})
	arb.Handlers[model.ScreenIoBus] = ioBus

	digOut := newLiveColorScreen(colorNeutral)
	recolorDigOut := func() {
		on0, _, _ := output0.Get()
		on1, _, _ := output1.Get()
		switch {
		case on0 && on1:
			digOut.set(colorOk)
		case on0 || on1:
			digOut.set(colorWarn)
		default:
			digOut.set(colorNeutral)
		}
		arb.RequestRedraw()
	}
	output0.Subscribe(func(_, _ uint64, _ bool) { recolorDigOut() })
	output1.Subscribe(func(_, _ uint64, _ bool) { recolorDigOut() })
	arb.Handlers[model.ScreenDigOut] = digOut

	arb.Handlers[model.ScreenUsb] = staticScreen(colorNeutral)
	arb.Handlers[model.ScreenSystem] = staticScreen(colorNeutral)
	arb.Handlers[model.ScreenUart] = staticScreen(colorNeutral)

	arb.Handlers[model.ScreenSetup] = staticScreen(colorModal)
	arb.Handlers[model.ScreenHelp] = staticScreen(colorNeutral)
	arb.Handlers[model.ScreenRebootConfirm] = staticScreen(colorWarn)
	arb.Handlers[model.ScreenUpdateAvailable] = staticScreen(colorWarn)
	arb.Handlers[model.ScreenUpdateInstallation] = staticScreen(colorModal)
	arb.Handlers[model.ScreenLocator] = staticScreen(color.White)
	arb.Handlers[model.ScreenSaver] = ui.HandlerFuncs{
		RenderFunc: func(lcd *hw.LCD) { lcd.Clear(color.Black) },
	}
}

// staticScreen renders a header bar plus a solid content-area fill; the
// Lower button does nothing on these screens.
func staticScreen(c color.Color) ui.Handler {
	return ui.HandlerFuncs{
		RenderFunc: func(lcd *hw.LCD) {
			header(lcd)
			lcd.FillRect(4, 16, lcd.Width-8, lcd.Height-20, c)
		},
	}
}
