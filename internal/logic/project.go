package logic

// Head is a three-lamp vehicle signal head.
type Head struct {
	Green  bool
	Yellow bool
	Red    bool
}

// WalkHead is the two-lamp pedestrian head.
type WalkHead struct {
	Green bool
	Red   bool
}

// Lamps is the full set of lamp levels for the intersection.
type Lamps struct {
	Primary    Head
	Secondary  Head
	Pedestrian WalkHead
}

var (
	headGreen  = Head{Green: true}
	headYellow = Head{Yellow: true}
	headRed    = Head{Red: true}
)

// Project maps a state onto lamp levels. flash is only consulted during the
// pedestrian clearance interval, where it is the level of the pedestrian red lamp.
func Project(s State, flash bool) Lamps {
	switch s.Phase {
	case PhasePrimary:
		l := Lamps{Primary: headGreen, Secondary: headRed, Pedestrian: WalkHead{Red: true}}
		if s.Signal == SignalYellow {
			l.Primary = headYellow
		}
		return l
	case PhaseSecondary:
		l := Lamps{Primary: headRed, Secondary: headGreen, Pedestrian: WalkHead{Red: true}}
		if s.Signal == SignalYellow {
			l.Secondary = headYellow
		}
		return l
	case PhasePedestrian:
		if s.Signal == SignalYellow {
			return Lamps{Primary: headRed, Secondary: headRed, Pedestrian: WalkHead{Red: flash}}
		}
		return Lamps{Primary: headRed, Secondary: headRed, Pedestrian: WalkHead{Green: true}}
	}
	return AllRed()
}

// AllRed is the safe state driven at shutdown.
func AllRed() Lamps {
	return Lamps{Primary: headRed, Secondary: headRed, Pedestrian: WalkHead{Red: true}}
}

// String names the lit lamp: GREEN, YELLOW, RED or OFF.
func (h Head) String() string {
	switch {
	case h.Green:
		return "GREEN"
	case h.Yellow:
		return "YELLOW"
	case h.Red:
		return "RED"
	}
	return "OFF"
}

// String returns WALK, DONT_WALK or OFF (the dark half of a flash).
func (w WalkHead) String() string {
	switch {
	case w.Green:
		return "WALK"
	case w.Red:
		return "DONT_WALK"
	}
	return "OFF"
}
