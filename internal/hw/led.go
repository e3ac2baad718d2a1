package hw

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/topic"
)

// PWMOutput drives a single LED's brightness, 0 (off) to 1 (full).
type PWMOutput interface {
	SetBrightness(level float64) error
}

// stubPWM is an in-memory PWMOutput for tests and off-target builds.
type stubPWM struct {
	level float64
}

// NewStubPWM returns a PWMOutput backed by nothing but memory.
func NewStubPWM() PWMOutput {
	return &stubPWM{}
}

func (p *stubPWM) SetBrightness(level float64) error {
	p.level = level
	return nil
}

func (p *stubPWM) Level() float64 {
	return p.level
}

// player tracks one LED's position within its current BlinkPattern.
type player struct {
	mu        sync.Mutex
	out       PWMOutput
	pattern   model.BlinkPattern
	stepIdx   int
	repeatIdx int
	phase     time.Duration
}

func newPlayer(out PWMOutput) *player {
	return &player{out: out, pattern: model.Off}
}

func (p *player) setPattern(pat model.BlinkPattern) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pattern = pat
	p.stepIdx = 0
	p.repeatIdx = 0
	p.phase = 0
	if len(pat.Steps) > 0 {
		_ = p.out.SetBrightness(pat.Steps[0].Brightness)
	}
}

// advance moves the player forward by dt, updating the output if the
// step boundary was crossed. A finite pattern holds the last step's
// brightness once Repetitions is exhausted.
func (p *player) advance(dt time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	steps := p.pattern.Steps
	if len(steps) == 0 {
		return
	}
	if p.pattern.Repetitions != model.InfiniteRepetitions && p.repeatIdx >= p.pattern.Repetitions {
		return
	}

	p.phase += dt
	for p.phase >= steps[p.stepIdx].Duration {
		p.phase -= steps[p.stepIdx].Duration
		p.stepIdx++
		if p.stepIdx >= len(steps) {
			p.stepIdx = 0
			p.repeatIdx++
			if p.pattern.Repetitions != model.InfiniteRepetitions && p.repeatIdx >= p.pattern.Repetitions {
				_ = p.out.SetBrightness(steps[len(steps)-1].Brightness)
				return
			}
		}
		_ = p.out.SetBrightness(steps[p.stepIdx].Brightness)
	}
}

// LEDDriver runs a single shared ticker that advances every named LED's
// BlinkPattern player in lockstep, so LEDs configured with the same
// period stay visually in phase (spec.md §4.5).
type LEDDriver struct {
	Period time.Duration
	Logger *logrus.Logger

	players map[string]*player
	last    time.Time
}

// NewLEDDriver creates one player per entry of outputs, keyed by LED
// name; Subscribe then attaches each player to the BlinkPattern topic it
// follows.
func NewLEDDriver(period time.Duration, outputs map[string]PWMOutput) *LEDDriver {
	players := make(map[string]*player, len(outputs))
	for name, out := range outputs {
		players[name] = newPlayer(out)
	}
	return &LEDDriver{Period: period, players: players}
}

// Subscribe wires a BlinkPattern topic to the named LED's player. Call
// once per LED before Run.
func (d *LEDDriver) Subscribe(name string, t *topic.Topic[model.BlinkPattern]) *topic.Subscription {
	p, ok := d.players[name]
	if !ok {
		return nil
	}
	return t.Subscribe(func(_, _ uint64, pat model.BlinkPattern) {
		p.setPattern(pat)
	})
}

// Run advances every player on Period until ctx is cancelled.
func (d *LEDDriver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.Period)
	defer ticker.Stop()
	d.last = time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(d.last)
			d.last = now
			for _, p := range d.players {
				p.advance(dt)
			}
		}
	}
}
