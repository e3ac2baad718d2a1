package ui

import (
	"github.com/linux-automation/tacd/internal/hw"
	"github.com/linux-automation/tacd/internal/model"
)

// Handler owns one screen's content and its Lower-button behavior. The
// arbiter calls Render whenever the screen is effective and a redraw is
// due, and HandlePress whenever the Lower button is pressed while the
// screen is effective (spec.md §4.4).
type Handler interface {
	Render(lcd *hw.LCD)
	HandlePress(dur model.ButtonDur)
}

// HandlerFuncs adapts two plain functions to Handler, for screens simple
// enough not to need their own type (e.g. Help, RebootConfirm).
type HandlerFuncs struct {
	RenderFunc      func(lcd *hw.LCD)
	HandlePressFunc func(dur model.ButtonDur)
}

func (h HandlerFuncs) Render(lcd *hw.LCD) {
	if h.RenderFunc != nil {
		h.RenderFunc(lcd)
	}
}

func (h HandlerFuncs) HandlePress(dur model.ButtonDur) {
	if h.HandlePressFunc != nil {
		h.HandlePressFunc(dur)
	}
}
