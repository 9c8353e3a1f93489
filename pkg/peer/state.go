package peer

// Role distinguishes which end of a session a Peer plays; both ends
// run the same message-validation and request/response plumbing, but
// only a client-role Peer initiates Hello and only a router-role Peer
// replies with Welcome.
type Role int

const (
	RoleClient Role = iota
	RoleRouter
)

// State is a node of the session state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateClosed
	StateEstablishing
	StateAuthenticating
	StateEstablished
	StateShuttingDown
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateClosed:
		return "closed"
	case StateEstablishing:
		return "establishing"
	case StateAuthenticating:
		return "authenticating"
	case StateEstablished:
		return "established"
	case StateShuttingDown:
		return "shutting_down"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// transitions encodes which State values may be reached FROM a
// given source state via each named event; unlisted (state, event)
// pairs are refused by setState.
var transitions = map[State]map[string]State{
	StateDisconnected:   {"connect": StateConnecting},
	StateConnecting:     {"transportOpen": StateClosed, "transportFail": StateFailed},
	StateClosed:         {"join": StateEstablishing, "transportFail": StateFailed},
	StateEstablishing:   {"challenge": StateAuthenticating, "welcome": StateEstablished, "abort": StateFailed, "transportFail": StateFailed},
	StateAuthenticating: {"welcome": StateEstablished, "abort": StateFailed, "transportFail": StateFailed},
	StateEstablished:    {"leave": StateShuttingDown, "transportFail": StateFailed},
	StateShuttingDown:   {"goodbye": StateClosed, "timeout": StateClosed, "transportFail": StateFailed},
}

// canTransition reports whether event is a legal transition out of
// from, and if so the destination state.
func canTransition(from State, event string) (State, bool) {
	m, ok := transitions[from]
	if !ok {
		return from, false
	}
	to, ok := m[event]
	return to, ok
}
