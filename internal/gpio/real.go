//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "crossing-controller"

// RealIO drives actual hardware using Linux GPIO character device.
type RealIO struct {
	chip    *gpiocdev.Chip
	inputs  map[int]*gpiocdev.Line
	outputs map[int]*gpiocdev.Line
}

// NewRealIO requests the given input and output lines on chip (e.g. "gpiochip0").
// Outputs start low so no lamp is lit before the first projection is applied.
func NewRealIO(chip string, inputs, outputs []int) (*RealIO, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealIO{
		chip:    c,
		inputs:  make(map[int]*gpiocdev.Line, len(inputs)),
		outputs: make(map[int]*gpiocdev.Line, len(outputs)),
	}

	// Inputs idle high: buttons and sensors pull the line to ground when active.
	for _, offset := range inputs {
		l, err := c.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.WithConsumer(consumer))
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request input pin %d: %w", offset, err)
		}
		r.inputs[offset] = l
	}

	for _, offset := range outputs {
		l, err := c.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request output pin %d: %w", offset, err)
		}
		r.outputs[offset] = l
	}

	return r, nil
}

// Read returns the logical level of an input.
// Inverts raw GPIO: raw low (0) = active, raw high (1) = idle.
func (r *RealIO) Read(line int) (bool, error) {
	l, ok := r.inputs[line]
	if !ok {
		return false, fmt.Errorf("unknown input pin %d", line)
	}
	raw, err := l.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", line, err)
	}
	return raw == 0, nil
}

// Write drives an output line.
func (r *RealIO) Write(line int, on bool) error {
	l, ok := r.outputs[line]
	if !ok {
		return fmt.Errorf("unknown output pin %d", line)
	}
	v := 0
	if on {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d=%d: %w", line, v, err)
	}
	return nil
}

// Close releases GPIO resources.
// Inputs are reconfigured to pull-down inputs (matching Pi boot defaults) before
// closing. Outputs are released as they are, so lamps keep the last level written,
// which after shutdown is all red.
func (r *RealIO) Close() error {
	var errs []error
	for offset, l := range r.outputs {
		errs = append(errs, release(offset, l, false)...)
	}
	for offset, l := range r.inputs {
		errs = append(errs, release(offset, l, true)...)
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}

// releasable is the part of a requested line that Close needs.
type releasable interface {
	Reconfigure(options ...gpiocdev.LineConfigOption) error
	Close() error
}

func release(offset int, l releasable, reconfigure bool) []error {
	var errs []error
	if reconfigure {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", offset, err))
		}
	}
	if err := l.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", offset, err))
	}
	return errs
}
