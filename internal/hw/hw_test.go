package hw

import (
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/supervisor"
)

func TestStubOutputFloat(t *testing.T) {
	out := NewStubOutput("test", true)
	require.NoError(t, out.Set(true))
	require.True(t, out.Get())
	require.NoError(t, out.Float())

	rigid := NewStubOutput("rigid", false)
	require.Error(t, rigid.Float())
}

func TestDutSwitchActuate(t *testing.T) {
	enable := NewStubOutput("enable", false).(*stubOutput)
	float := NewStubOutput("float", true).(*stubOutput)
	sw := &DutSwitch{Enable: enable, Float: float}

	require.NoError(t, sw.Actuate(supervisor.SwitchOn))
	require.True(t, enable.Get())

	require.NoError(t, sw.Actuate(supervisor.SwitchOffFloating))
	require.False(t, enable.Get())
	require.True(t, float.floating)

	require.NoError(t, sw.Actuate(supervisor.SwitchOff))
	require.False(t, enable.Get())
}

func TestLEDDriverPlaysPatternAndLoops(t *testing.T) {
	out := NewStubPWM().(*stubPWM)
	d := NewLEDDriver(time.Millisecond, map[string]PWMOutput{"status": out})
	p := d.players["status"]
	p.setPattern(model.Blink(10 * time.Millisecond))

	// Advance half a period: should still be on the first (brightness 1) step.
	p.advance(4 * time.Millisecond)
	require.Equal(t, 1.0, out.Level())

	// Cross into the off half.
	p.advance(2 * time.Millisecond)
	require.Equal(t, 0.0, out.Level())

	// Finish the off half: the pattern wraps back to the on step.
	p.advance(5 * time.Millisecond)
	require.Equal(t, 1.0, out.Level())
}

func TestLEDDriverFinitePatternHoldsLastStep(t *testing.T) {
	out := NewStubPWM().(*stubPWM)
	d := NewLEDDriver(time.Millisecond, map[string]PWMOutput{"out_0": out})
	p := d.players["out_0"]
	p.setPattern(model.BlinkPattern{
		Repetitions: 1,
		Steps: []model.BlinkStep{
			{Duration: 5 * time.Millisecond, Brightness: 1},
			{Duration: 5 * time.Millisecond, Brightness: 0.3},
		},
	})

	p.advance(20 * time.Millisecond)
	require.Equal(t, 0.3, out.Level())
}

func TestButtonReaderShortPress(t *testing.T) {
	src := NewStubEdgeSource()
	var events []model.ButtonEvent
	r := NewButtonReader(src, func(e model.ButtonEvent) { events = append(events, e) })
	r.Threshold = time.Hour // never fires long in this test

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	src.Push(RawEdge{Button: model.ButtonUpper, Pressed: true})
	time.Sleep(5 * time.Millisecond)
	src.Push(RawEdge{Button: model.ButtonUpper, Pressed: false})
	time.Sleep(5 * time.Millisecond)
	cancel()
	<-done

	require.Len(t, events, 2)
	require.Equal(t, model.ButtonPress, events[0].Dir)
	require.Equal(t, model.DurShort, events[0].Dur)
	require.Equal(t, model.ButtonRelease, events[1].Dir)
	require.Equal(t, model.DurShort, events[1].Dur)
}

func TestButtonReaderLongPress(t *testing.T) {
	src := NewStubEdgeSource()
	var events []model.ButtonEvent
	r := NewButtonReader(src, func(e model.ButtonEvent) { events = append(events, e) })
	r.Threshold = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	src.Push(RawEdge{Button: model.ButtonLower, Pressed: true})
	time.Sleep(20 * time.Millisecond)
	src.Push(RawEdge{Button: model.ButtonLower, Pressed: false})
	time.Sleep(5 * time.Millisecond)
	cancel()
	<-done

	require.GreaterOrEqual(t, len(events), 2)
	last := events[len(events)-1]
	require.Equal(t, model.ButtonRelease, last.Dir)
	require.Equal(t, model.DurLong, last.Dur)
}

func TestLCDRenderAndInvert(t *testing.T) {
	lcd := NewLCD(128, 64)
	lcd.Clear(color.Black)
	lcd.FillRect(0, 0, 10, 10, color.White)

	data, err := lcd.PNG()
	require.NoError(t, err)
	require.NotEmpty(t, data)

	lcd.SetInverted(true)
	inverted, err := lcd.PNG()
	require.NoError(t, err)
	require.NotEqual(t, data, inverted)
}
