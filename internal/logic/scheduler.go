package logic

import "time"

// Scheduler is the tick-driven phase state machine. Collect and Tick must be called
// from inside one shared critical section; the scheduler itself does no locking.
type Scheduler struct {
	timing Timing

	state State
	dwell int
	flash bool

	// Written by Collect only.
	current            EventCode
	previous           EventCode
	ambulancePrimary   bool
	ambulanceSecondary bool
	// pedestrianSeen outlives current/previous until the next tick records it.
	pedestrianSeen bool

	deferred Deferral
	counts   Counts
}

// Snapshot is a point-in-time copy of the scheduler's state.
type Snapshot struct {
	State              State
	Dwell              int
	Current            EventCode
	Previous           EventCode
	AmbulancePrimary   bool
	AmbulanceSecondary bool
	Deferred           Deferral
	Lamps              Lamps
	Counts             Counts
}

// Step is the outcome of one tick.
type Step struct {
	// Transition is set when the state changed; all lamps must be rewritten.
	Transition *Transition
	// Flash is set when only the pedestrian red lamp toggled.
	Flash bool
	Lamps Lamps
}

// NewScheduler returns a scheduler resting in Primary.Green.
func NewScheduler(timing Timing) *Scheduler {
	return &Scheduler{
		timing: timing,
		state:  State{Phase: PhasePrimary, Signal: SignalGreen},
		counts: Counts{Events: make(map[EventCode]int)},
	}
}

// Collect records a popped event. Ambulance events toggle their latch rather than
// set it: a vehicle entering and then leaving the sensor zone cancels out.
func (s *Scheduler) Collect(code EventCode) {
	s.previous = s.current
	s.current = code
	switch code {
	case EventPedestrianRequest:
		s.pedestrianSeen = true
	case EventAmbulancePrimary:
		s.ambulancePrimary = !s.ambulancePrimary
	case EventAmbulanceSecondary:
		s.ambulanceSecondary = !s.ambulanceSecondary
	}
	s.counts.Events[code]++
}

// Tick advances the state machine by one tick.
func (s *Scheduler) Tick(now time.Time) Step {
	s.dwell++
	s.recordPedestrian()

	var next State
	var preempted bool

	switch s.state {
	case State{PhasePrimary, SignalGreen}:
		next, preempted = s.primaryGreen()
	case State{PhasePrimary, SignalYellow}:
		next, preempted = s.primaryYellow()
	case State{PhaseSecondary, SignalGreen}:
		next, preempted = s.secondaryGreen()
	case State{PhaseSecondary, SignalYellow}:
		next, preempted = s.secondaryYellow()
	case State{PhasePedestrian, SignalGreen}:
		if s.dwell >= s.timing.Walk {
			next = State{PhasePedestrian, SignalYellow}
		}
	case State{PhasePedestrian, SignalYellow}:
		if s.dwell < s.timing.Flash {
			s.flash = !s.flash
			return Step{Flash: true, Lamps: s.lamps()}
		}
		next, preempted = s.pedestrianClearance()
	}

	if next.Phase == PhaseIdle {
		return Step{Lamps: s.lamps()}
	}
	t := s.enter(next, preempted, now)
	return Step{Transition: t, Lamps: t.Lamps}
}

// recordPedestrian turns a request collected since the last tick into a deferral
// for the road that has right of way. Requests seen during the pedestrian phases
// are served by that phase.
func (s *Scheduler) recordPedestrian() {
	if !s.pedestrianSeen {
		return
	}
	s.pedestrianSeen = false
	switch s.state.Phase {
	case PhasePrimary:
		s.deferred |= DeferredFromPrimary
	case PhaseSecondary:
		s.deferred |= DeferredFromSecondary
	}
}

// Dwell returns the ticks spent in the current state.
func (s *Scheduler) Dwell() int { return s.dwell }

// FastTick reports whether the current state runs on the halved tick period.
func (s *Scheduler) FastTick() bool {
	return s.state == State{PhasePedestrian, SignalYellow}
}

// State returns the current state.
func (s *Scheduler) State() State { return s.state }

// Lamps returns the lamp levels for the current state.
func (s *Scheduler) Lamps() Lamps { return s.lamps() }

// Snapshot returns a copy of the scheduler's state.
func (s *Scheduler) Snapshot() Snapshot {
	return Snapshot{
		State:              s.state,
		Dwell:              s.dwell,
		Current:            s.current,
		Previous:           s.previous,
		AmbulancePrimary:   s.ambulancePrimary,
		AmbulanceSecondary: s.ambulanceSecondary,
		Deferred:           s.deferred,
		Lamps:              s.lamps(),
		Counts:             s.counts.clone(),
	}
}

func (s *Scheduler) lamps() Lamps { return Project(s.state, s.flash) }

func (s *Scheduler) enter(to State, preempted bool, now time.Time) *Transition {
	from := s.state
	s.state = to
	s.dwell = 0
	// Clearance starts with the red lamp lit.
	s.flash = to == State{PhasePedestrian, SignalYellow}
	s.counts.Transitions++
	if preempted {
		s.counts.Preemptions++
	}
	return &Transition{
		Timestamp: now,
		From:      from,
		To:        to,
		Preempted: preempted,
		Lamps:     s.lamps(),
	}
}

// priority resolves the ambulance latches. Both set means primary wins.
func (s *Scheduler) priority() Phase {
	if s.ambulancePrimary {
		return PhasePrimary
	}
	if s.ambulanceSecondary {
		return PhaseSecondary
	}
	return PhaseIdle
}

func (s *Scheduler) pedestrianPending() bool {
	return s.current == EventPedestrianRequest || s.previous == EventPedestrianRequest
}

func (s *Scheduler) vehiclePending() bool {
	return s.current == EventSecondaryVehicle || s.previous == EventSecondaryVehicle
}

// clearRequests forgets serviced requests. A vehicle request that lost to a
// pedestrian or ambulance is kept as the current event for the next cycle.
func (s *Scheduler) clearRequests(carryVehicle bool) {
	s.previous = EventNone
	s.current = EventNone
	if carryVehicle {
		s.current = EventSecondaryVehicle
	}
}

func (s *Scheduler) primaryGreen() (State, bool) {
	if s.pedestrianPending() {
		s.deferred |= DeferredFromPrimary
	}
	switch s.priority() {
	case PhasePrimary:
		// Ambulance already has right of way.
		return State{}, false
	case PhaseSecondary:
		if s.dwell >= s.timing.AmbulanceExit {
			return State{PhasePrimary, SignalYellow}, true
		}
	}
	if s.dwell >= s.timing.PrimaryGreen && (s.deferred.Any() || s.vehiclePending()) {
		return State{PhasePrimary, SignalYellow}, false
	}
	return State{}, false
}

func (s *Scheduler) primaryYellow() (State, bool) {
	if s.dwell < s.timing.Yellow {
		return State{}, false
	}

	pedestrian := s.pedestrianPending() || s.deferred.Any()
	vehicle := s.vehiclePending()

	switch s.priority() {
	case PhaseSecondary:
		if pedestrian {
			s.deferred |= DeferredFromPrimary
		}
		s.clearRequests(false)
		return State{PhaseSecondary, SignalGreen}, true
	case PhasePrimary:
		if pedestrian {
			s.deferred |= DeferredFromPrimary
		}
		s.clearRequests(vehicle)
		return State{PhasePrimary, SignalGreen}, true
	}

	switch {
	case pedestrian:
		// Covers the tie-break too: a pedestrian request seen just before a
		// vehicle request wins, and the vehicle waits for the next cycle.
		s.deferred |= DeferredFromPrimary
		s.clearRequests(vehicle)
		return State{PhasePedestrian, SignalGreen}, false
	case vehicle:
		s.clearRequests(false)
		return State{PhaseSecondary, SignalGreen}, false
	}
	s.clearRequests(false)
	return State{PhasePrimary, SignalGreen}, false
}

func (s *Scheduler) secondaryGreen() (State, bool) {
	if s.pedestrianPending() {
		s.deferred |= DeferredFromSecondary
	}
	switch s.priority() {
	case PhaseSecondary:
		return State{}, false
	case PhasePrimary:
		if s.dwell >= s.timing.AmbulanceExit {
			return State{PhaseSecondary, SignalYellow}, true
		}
	}
	// Primary is the rest phase, so its demand is implicit.
	if s.dwell >= s.timing.SecondaryGreen {
		return State{PhaseSecondary, SignalYellow}, false
	}
	return State{}, false
}

func (s *Scheduler) secondaryYellow() (State, bool) {
	if s.dwell < s.timing.Yellow {
		return State{}, false
	}

	if s.pedestrianPending() {
		s.deferred |= DeferredFromSecondary
	}
	defer s.clearRequests(false)

	switch s.priority() {
	case PhasePrimary:
		return State{PhasePrimary, SignalGreen}, true
	case PhaseSecondary:
		return State{PhaseSecondary, SignalGreen}, true
	}
	if s.deferred.Any() {
		return State{PhasePedestrian, SignalGreen}, false
	}
	return State{PhasePrimary, SignalGreen}, false
}

func (s *Scheduler) pedestrianClearance() (State, bool) {
	vehicle := s.vehiclePending()
	deferred := s.deferred
	s.deferred = 0

	switch s.priority() {
	case PhasePrimary:
		s.clearRequests(vehicle)
		return State{PhasePrimary, SignalGreen}, true
	case PhaseSecondary:
		s.clearRequests(false)
		return State{PhaseSecondary, SignalGreen}, true
	}
	if deferred.Has(DeferredFromSecondary) && vehicle {
		s.clearRequests(false)
		return State{PhaseSecondary, SignalGreen}, false
	}
	s.clearRequests(vehicle)
	return State{PhasePrimary, SignalGreen}, false
}
