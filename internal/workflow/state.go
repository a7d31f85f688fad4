package workflow

// State is the position of one booking attempt in the workflow
type State string

const (
	StateBrowsing             State = "Browsing"
	StateReservationRequested State = "ReservationRequested"
	StateReservationConfirmed State = "ReservationConfirmed"
	StateIntentRequested      State = "IntentRequested"
	StateIntentCreated        State = "IntentCreated"
	StateCaptureRequested     State = "CaptureRequested"
	StatePaid                 State = "Paid"
	StateFailed               State = "Failed"
)

var transitions = map[State][]State{
	StateBrowsing:             {StateReservationRequested},
	StateReservationRequested: {StateReservationConfirmed, StateFailed},
	StateReservationConfirmed: {StateIntentRequested},
	StateIntentRequested:      {StateIntentCreated, StateFailed},
	StateIntentCreated:        {StateCaptureRequested},
	StateCaptureRequested:     {StatePaid, StateFailed},
}

// CanTransition reports whether the workflow allows moving from s to next
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further step can run
func (s State) IsTerminal() bool {
	return s == StatePaid || s == StateFailed
}

func (s State) String() string {
	return string(s)
}
