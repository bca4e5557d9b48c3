package process

// State represents the lifecycle of a single process handle. A handle is
// single-use: once Exited or Killed it never runs again.
type State int32

// Process states.
const (
	StateNotStarted State = iota
	StateRunning
	StateExited // exited on its own
	StateKilled // terminated by Stop
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}
