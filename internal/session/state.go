package session

// State is the lifecycle state of a Controller.
type State int

const (
	Idle State = iota
	LoadingHistory
	Connecting
	Connected
	Disconnected
)

// String returns the lower-case name of s.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadingHistory:
		return "loading_history"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// canStart reports whether Connect may begin a new cycle from s.
func (s State) canStart() bool {
	return s == Idle || s == Disconnected
}

// Transition is a state change delivered to observers.
type Transition struct {
	From State
	To   State
}
