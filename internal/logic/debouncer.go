package logic

import "time"

// Input represents a single sample of the four logical inputs.
// true = active (already inverted from the pulled-up raw GPIO level).
type Input struct {
	Pedestrian         bool
	Vehicle            bool
	AmbulancePrimary   bool
	AmbulanceSecondary bool
	Time               time.Time
}

func (in Input) levels() [4]bool {
	return [4]bool{in.Pedestrian, in.Vehicle, in.AmbulancePrimary, in.AmbulanceSecondary}
}

// InputState tracks debounce state for a single input.
type InputState struct {
	// Current stable (debounced) level
	Stable bool
	// Whether a level change is waiting out the debounce window
	Pending bool
	// Time when the pending level was first observed
	PendingSince time.Time
}

// Debouncer turns raw samples into events. Every input starts inactive, so an input
// that is already held at startup produces its event once the window has passed.
type Debouncer struct {
	debounceDuration time.Duration
	inputs           [4]InputState
}

// NewDebouncer creates a debouncer requiring the given stable-active duration.
func NewDebouncer(debounceDuration time.Duration) *Debouncer {
	return &Debouncer{debounceDuration: debounceDuration}
}

// Process takes a new input sample and returns any events that should be queued.
// Button and vehicle inputs emit on activation only. Ambulance sensors emit on
// activation and on release, which toggles the collector's latch in and out.
// Events are ordered pedestrian, vehicle, ambulance primary, ambulance secondary.
func (d *Debouncer) Process(input Input) []Event {
	var events []Event
	for i, level := range input.levels() {
		changed := d.processInput(&d.inputs[i], level, input.Time)
		if !changed {
			continue
		}
		code := EventCodes[i]
		if isAmbulance(code) || d.inputs[i].Stable {
			events = append(events, Event{Code: code, Time: input.Time})
		}
	}
	return events
}

// processInput applies the debounce window to one input.
// Returns true when the stable level flipped on this sample.
func (d *Debouncer) processInput(in *InputState, level bool, now time.Time) bool {
	if level == in.Stable {
		// Back to stable level, drop any pending change
		in.Pending = false
		return false
	}

	if !in.Pending {
		in.Pending = true
		in.PendingSince = now
		if d.debounceDuration > 0 {
			return false
		}
	}

	if now.Sub(in.PendingSince) >= d.debounceDuration {
		in.Stable = level
		in.Pending = false
		return true
	}
	return false
}

// Levels returns the current debounced levels in input order.
func (d *Debouncer) Levels() [4]bool {
	var out [4]bool
	for i := range d.inputs {
		out[i] = d.inputs[i].Stable
	}
	return out
}

func isAmbulance(code EventCode) bool {
	return code == EventAmbulancePrimary || code == EventAmbulanceSecondary
}
