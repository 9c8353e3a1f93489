// Package router implements the WAMP router side of the core: a
// Router owning named realms, each realm a single serializing lane
// that owns its session table, a Broker (pub/sub fan-out over the
// token-trie URI index) and a Dealer (routed RPC with in-flight call
// tracking, cancellation, and caller timeouts).
package router

// Action names a routed operation an Authorizer may veto.
type Action int

const (
	ActionSubscribe Action = iota
	ActionPublish
	ActionRegister
	ActionCall
)

func (a Action) String() string {
	switch a {
	case ActionSubscribe:
		return "subscribe"
	case ActionPublish:
		return "publish"
	case ActionRegister:
		return "register"
	case ActionCall:
		return "call"
	default:
		return "unknown"
	}
}

// SessionInfo describes the acting session to an Authorizer.
type SessionInfo struct {
	ID         uint64
	AuthID     string
	AuthRole   string
	AuthMethod string
}

// Authorizer is the per-action veto hook consulted before the broker
// or dealer touches its URI index. Returning a non-nil error (normally
// a *wamperr.Error carrying wamp.error.not_authorized) refuses the
// action; the session itself stays up. A nil Authorizer on the realm
// allows everything.
type Authorizer interface {
	Authorize(action Action, uri string, session SessionInfo) error
}

// AuthorizerFunc adapts a plain function to the Authorizer interface.
type AuthorizerFunc func(action Action, uri string, session SessionInfo) error

func (f AuthorizerFunc) Authorize(action Action, uri string, session SessionInfo) error {
	return f(action, uri, session)
}
