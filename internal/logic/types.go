// Package logic contains the pure intersection control logic: input debouncing,
// the phase scheduler and the lamp projection.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters, and nothing here is safe for
// concurrent use; the controller package owns the locking.
package logic

import "time"

// EventCode identifies a request observed on one of the four inputs.
type EventCode string

const (
	EventNone               EventCode = ""
	EventPedestrianRequest  EventCode = "PEDESTRIAN_REQUEST"
	EventSecondaryVehicle   EventCode = "SECONDARY_VEHICLE"
	EventAmbulancePrimary   EventCode = "AMBULANCE_PRIMARY"
	EventAmbulanceSecondary EventCode = "AMBULANCE_SECONDARY"
)

// EventCodes lists the non-empty codes in input order.
var EventCodes = []EventCode{
	EventPedestrianRequest,
	EventSecondaryVehicle,
	EventAmbulancePrimary,
	EventAmbulanceSecondary,
}

// Event is a single debounced activation, as queued between sampler and collector.
type Event struct {
	Code EventCode
	Time time.Time
}

// Phase is the approach that currently has right of way.
type Phase string

const (
	// PhaseIdle is returned by the decision functions when no transition is due.
	// It is never the scheduler's current phase.
	PhaseIdle       Phase = ""
	PhasePrimary    Phase = "PRIMARY"
	PhaseSecondary  Phase = "SECONDARY"
	PhasePedestrian Phase = "PEDESTRIAN"
)

// Signal is the sub-state within a phase. For the pedestrian phase, SignalYellow
// is the flashing-red clearance interval.
type Signal string

const (
	SignalGreen  Signal = "GREEN"
	SignalYellow Signal = "YELLOW"
)

// State names a (phase, signal) pair.
type State struct {
	Phase  Phase
	Signal Signal
}

func (s State) String() string {
	if s.Phase == PhaseIdle {
		return "IDLE"
	}
	return string(s.Phase) + "." + string(s.Signal)
}

// Deferral records which phase put off a pedestrian request.
type Deferral uint8

const (
	DeferredFromPrimary Deferral = 1 << iota
	DeferredFromSecondary
)

// Has reports whether d includes all of flag.
func (d Deferral) Has(flag Deferral) bool { return flag != 0 && d&flag == flag }

// Any reports whether any deferral is recorded.
func (d Deferral) Any() bool { return d != 0 }

// Strings returns the recorded origins, primary first.
func (d Deferral) Strings() []string {
	var out []string
	if d.Has(DeferredFromPrimary) {
		out = append(out, string(PhasePrimary))
	}
	if d.Has(DeferredFromSecondary) {
		out = append(out, string(PhaseSecondary))
	}
	return out
}

// Timing holds every dwell, in ticks.
type Timing struct {
	PrimaryGreen   int `json:"primary_green"`   // floor before primary yields to a request
	SecondaryGreen int `json:"secondary_green"` // base green on the minor road
	AmbulanceExit  int `json:"ambulance_exit"`  // early exit when the opposing road has an ambulance
	Yellow         int `json:"yellow"`
	Walk           int `json:"walk"`
	Flash          int `json:"flash"`
}

// DefaultTiming returns the standard dwell table.
func DefaultTiming() Timing {
	return Timing{
		PrimaryGreen:   10,
		SecondaryGreen: 6,
		AmbulanceExit:  5,
		Yellow:         2,
		Walk:           3,
		Flash:          4,
	}
}

// Transition describes a state change produced by one tick.
type Transition struct {
	Timestamp time.Time
	From      State
	To        State
	// Preempted is set when an ambulance latch forced the change.
	Preempted bool
	Lamps     Lamps
}

// Counts tracks collected events and transitions since startup.
type Counts struct {
	Events      map[EventCode]int
	Transitions int
	Preemptions int
}

func (c Counts) clone() Counts {
	out := Counts{Transitions: c.Transitions, Preemptions: c.Preemptions, Events: make(map[EventCode]int, len(c.Events))}
	for k, v := range c.Events {
		out.Events[k] = v
	}
	return out
}
