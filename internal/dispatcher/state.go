package dispatcher

// State is a stage in an Engine's lifecycle. States only move forward.
type State int

// Lifecycle states in the order an Engine passes through them.
const (
	StateCreated State = iota
	StateInitialized
	StatePrepared
	StateRunning
	StateClosedStreaming
	StateClosedExternal
	StateTerminated
)

var stateNames = [...]string{
	StateCreated:         "created",
	StateInitialized:     "initialized",
	StatePrepared:        "prepared",
	StateRunning:         "running",
	StateClosedStreaming: "closed_streaming",
	StateClosedExternal:  "closed_external",
	StateTerminated:      "terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
