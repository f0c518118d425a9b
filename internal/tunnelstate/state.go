package tunnelstate

// tunnelState is one of the five states. handleEvent must be total: events
// a state does not care about leave it unchanged.
type tunnelState interface {
	handleEvent(ev event, s *sharedState) eventConsequence
}

type consequenceKind int

const (
	consequenceSame consequenceKind = iota
	consequenceNew
	consequenceFinished
)

// eventConsequence is the result of handling one event.
type eventConsequence struct {
	kind       consequenceKind
	state      tunnelState
	transition Transition
}

func sameState(st tunnelState) eventConsequence {
	return eventConsequence{kind: consequenceSame, state: st}
}

func newState(st tunnelState, t Transition) eventConsequence {
	return eventConsequence{kind: consequenceNew, state: st, transition: t}
}

func finished() eventConsequence {
	return eventConsequence{kind: consequenceFinished}
}
