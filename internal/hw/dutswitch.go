package hw

import "github.com/linux-automation/tacd/internal/supervisor"

// DutSwitch adapts two DigitalOutput lines (an enable line and a
// floating/tri-state control line) to supervisor.SwitchDriver. It is the
// single writer of the DUT power GPIO lines, matching spec.md §5's
// single-writer-per-resource rule for the supervisor's actuation path.
type DutSwitch struct {
	Enable DigitalOutput
	Float  DigitalOutput
}

func (d *DutSwitch) Actuate(state supervisor.SwitchState) error {
	switch state {
	case supervisor.SwitchOn:
		if d.Float != nil {
			if err := d.Float.Set(false); err != nil {
				return err
			}
		}
		return d.Enable.Set(true)
	case supervisor.SwitchOffFloating:
		if err := d.Enable.Set(false); err != nil {
			return err
		}
		if d.Float != nil {
			return d.Float.Float()
		}
		return nil
	default: // SwitchOff
		if d.Float != nil {
			if err := d.Float.Set(false); err != nil {
				return err
			}
		}
		return d.Enable.Set(false)
	}
}
