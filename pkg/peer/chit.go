package peer

import (
	"sync"

	"github.com/wampcore/wampgo/pkg/wampmsg"
	"github.com/wampcore/wampgo/pkg/wampvalue"
	"github.com/wampcore/wampgo/pkg/wamperr"
)

// cancelModeOptions builds the CANCEL.Options dict carrying the
// cancel mode.
func cancelModeOptions(mode string) *wampvalue.Object {
	o := &wampvalue.Object{}
	o.Set("mode", wampvalue.String(mode))
	return o
}

// CancelMode selects how Chit.Cancel asks the callee to wind down an
// in-flight call.
type CancelMode int

const (
	// CancelKill waits for the callee's own ERROR/RESULT before the
	// completion fires.
	CancelKill CancelMode = iota
	// CancelKillNoWait fires the completion immediately with a
	// "canceled" error but still forwards INTERRUPT to the callee.
	CancelKillNoWait
	// CancelSkip fires the completion immediately with the same
	// "canceled" error and does not notify
	// the callee at all; only useful against a callee that ignores
	// INTERRUPT.
	CancelSkip
)

// Chit is a cancellable handle to one outstanding CALL, held by the
// caller independently of the Peer/session that issued it. It carries
// a weak (sessionID, generation) reference rather
// than a pointer to the Peer, so a Chit outliving its session's
// teardown (or a session that has since reconnected and reused the
// same *Peer value) cancels safely as a no-op instead of corrupting a
// later, unrelated call.
type Chit struct {
	mu         sync.Mutex
	peer       *Peer
	sessionID  uint64
	generation uint64
	request    uint64
	requestTyp wampmsg.Type
	canceled   bool
}

// NewChit captures the session's current (sessionID, generation) at
// issue time, for use by pkg/client's call/ongoing_call once they've
// registered the pending completion with Peer.Call.
func NewChit(p *Peer, request uint64, requestTyp wampmsg.Type) *Chit {
	sid, gen := p.SessionID()
	return &Chit{peer: p, sessionID: sid, generation: gen, request: request, requestTyp: requestTyp}
}

// Request returns the request id this Chit corresponds to.
func (c *Chit) Request() uint64 { return c.request }

// Cancel asks the callee to abandon the call per mode. Canceling twice,
// or canceling after the session that issued the call has moved to a
// new generation (reconnected, or torn down and replaced), is a no-op:
// Cancel reports whether it did anything.
func (c *Chit) Cancel(mode CancelMode) bool {
	c.mu.Lock()
	if c.canceled {
		c.mu.Unlock()
		return false
	}
	sid, gen := c.peer.SessionID()
	if sid != c.sessionID || gen != c.generation {
		c.canceled = true
		c.mu.Unlock()
		return false
	}
	c.canceled = true
	request := c.request
	c.mu.Unlock()

	switch mode {
	case CancelSkip:
		c.peer.CancelPending(request, wamperr.FromURI(wamperr.URI(wamperr.CodeCanceled), "call canceled (skip)", nil, nil))
		return true
	case CancelKillNoWait:
		_ = c.peer.Send(&wampmsg.Cancel{Request: request, Options: cancelModeOptions("killnowait")})
		c.peer.CancelPending(request, wamperr.FromURI(wamperr.URI(wamperr.CodeCanceled), "call canceled (killnowait)", nil, nil))
		return true
	default: // CancelKill
		_ = c.peer.Send(&wampmsg.Cancel{Request: request, Options: cancelModeOptions("kill")})
		return true
	}
}
