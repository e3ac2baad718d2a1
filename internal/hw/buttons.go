package hw

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/linux-automation/tacd/internal/model"
)

// RawEdge is a single physical press/release transition, before the
// Short/Long classification in spec.md §3 is applied.
type RawEdge struct {
	Button  model.Button
	Pressed bool
}

// EdgeSource delivers raw button transitions. The real implementation
// reads /dev/input/eventN; StubEdgeSource lets tests and off-target
// builds inject edges directly.
type EdgeSource interface {
	Edges() <-chan RawEdge
}

// StubEdgeSource is an in-memory EdgeSource for tests.
type StubEdgeSource struct {
	ch chan RawEdge
}

// NewStubEdgeSource returns a StubEdgeSource ready to have edges pushed
// onto it with Push.
func NewStubEdgeSource() *StubEdgeSource {
	return &StubEdgeSource{ch: make(chan RawEdge, 16)}
}

func (s *StubEdgeSource) Edges() <-chan RawEdge {
	return s.ch
}

// Push injects a raw transition, as if read from hardware.
func (s *StubEdgeSource) Push(e RawEdge) {
	s.ch <- e
}

// ButtonReader classifies raw edges from EdgeSource into the
// Press(Short)/Press(Long)/Release(Short|Long) sequence described in
// spec.md §3: a press is reported Short immediately, re-reported Long if
// still held past model.LongPressThreshold, and Release carries whichever
// duration class applied at the moment of release.
type ButtonReader struct {
	Source    EdgeSource
	Threshold time.Duration
	emit      func(model.ButtonEvent)
}

// NewButtonReader constructs a reader with the spec default threshold.
func NewButtonReader(source EdgeSource, emit func(model.ButtonEvent)) *ButtonReader {
	return &ButtonReader{Source: source, Threshold: model.LongPressThreshold, emit: emit}
}

// Run classifies edges until ctx is cancelled. It tracks at most one
// outstanding hold timer per button.
func (r *ButtonReader) Run(ctx context.Context) error {
	type holdState struct {
		since  time.Time
		longed bool
		timer  *time.Timer
	}
	holds := make(map[model.Button]*holdState)
	longCh := make(chan model.Button, 2)

	defer func() {
		for _, h := range holds {
			if h.timer != nil {
				h.timer.Stop()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case btn := <-longCh:
			if h, ok := holds[btn]; ok && !h.longed {
				h.longed = true
				r.emit(model.ButtonEvent{Btn: btn, Dir: model.ButtonPress, Dur: model.DurLong})
			}

		case edge, ok := <-r.Source.Edges():
			if !ok {
				return nil
			}
			if edge.Pressed {
				h := &holdState{since: time.Now()}
				btn := edge.Button
				h.timer = time.AfterFunc(r.Threshold, func() {
					select {
					case longCh <- btn:
					case <-ctx.Done():
					}
				})
				holds[btn] = h
				r.emit(model.ButtonEvent{Btn: btn, Dir: model.ButtonPress, Dur: model.DurShort})
			} else {
				dur := model.DurShort
				if h, ok := holds[edge.Button]; ok {
					if h.timer != nil {
						h.timer.Stop()
					}
					if h.longed {
						dur = model.DurLong
					}
					delete(holds, edge.Button)
				}
				r.emit(model.ButtonEvent{Btn: edge.Button, Dir: model.ButtonRelease, Dur: dur})
			}
		}
	}
}

// evInputEvent mirrors struct input_event from linux/input.h on a
// 64-bit kernel (16-byte timeval + 2x uint16 + int32 = 24 bytes).
type evInputEvent struct {
	Sec, Usec int64
	Type      uint16
	Code      uint16
	Value     int32
}

const evKey = 0x01

// EvdevSource reads raw key press/release transitions off a Linux input
// device node (/dev/input/eventN) and translates them into RawEdges
// through a caller-supplied keycode-to-button map.
type EvdevSource struct {
	f    *os.File
	keys map[uint16]model.Button
	ch   chan RawEdge
}

// NewEvdevSource opens path and starts reading in the background; call
// Close to stop.
func NewEvdevSource(path string, keys map[uint16]model.Button) (*EvdevSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hw: open %s: %w", path, err)
	}
	s := &EvdevSource{f: f, keys: keys, ch: make(chan RawEdge, 16)}
	go s.readLoop()
	return s, nil
}

func (s *EvdevSource) readLoop() {
	defer close(s.ch)
	const eventSize = int(unsafe.Sizeof(evInputEvent{}))
	buf := make([]byte, eventSize)
	for {
		if _, err := readFull(s.f, buf); err != nil {
			return
		}
		var ev evInputEvent
		ev.Sec = int64(binary.LittleEndian.Uint64(buf[0:8]))
		ev.Usec = int64(binary.LittleEndian.Uint64(buf[8:16]))
		ev.Type = binary.LittleEndian.Uint16(buf[16:18])
		ev.Code = binary.LittleEndian.Uint16(buf[18:20])
		ev.Value = int32(binary.LittleEndian.Uint32(buf[20:24]))

		if ev.Type != evKey {
			continue
		}
		btn, known := s.keys[ev.Code]
		if !known || ev.Value == 2 { // ignore autorepeat
			continue
		}
		s.ch <- RawEdge{Button: btn, Pressed: ev.Value == 1}
	}
}

func readFull(f *os.File, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := f.Read(buf[n:])
		if err != nil {
			return n, err
		}
		n += m
	}
	return n, nil
}

func (s *EvdevSource) Edges() <-chan RawEdge {
	return s.ch
}

// Close stops reading. Safe to call once.
func (s *EvdevSource) Close() error {
	return s.f.Close()
}
