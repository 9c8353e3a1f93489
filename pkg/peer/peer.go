package peer

import (
	"math/rand"
	"sync"

	"github.com/wampcore/wampgo/pkg/rawsocket"
	"github.com/wampcore/wampgo/pkg/wampmsg"
	"github.com/wampcore/wampgo/pkg/wamperr"
)

// maxRequestID is 2^53, the largest integer JavaScript (and therefore
// the WAMP wire format in practice) can represent exactly; request ids
// are drawn from 1..maxRequestID.
const maxRequestID = uint64(1) << 53

// pendingEntry is one in-flight request awaiting its correlated
// response, keyed by request id within one Peer. complete returns
// whether the entry should be removed: false keeps it registered, for
// a progressive Result sequence where more than one
// response shares the same request id.
type pendingEntry struct {
	complete func(msg wampmsg.Message, err error) (remove bool)
}

// Peer is one end of a WAMP session: the session state machine plus
// the request/response correlation table and message dispatch that
// both pkg/client and pkg/router build on.
type Peer struct {
	role      Role
	transport *rawsocket.Transport
	codec     Codec
	lane      *Lane

	mu         sync.Mutex
	state      State
	sessionID  uint64
	generation uint64
	nextReqID  uint64
	rng        *rand.Rand
	pending    map[uint64]pendingEntry

	// OnMessage is invoked on the Peer's Lane for every inbound message
	// that isn't consumed as a correlated response (i.e. every message
	// the higher layer must handle itself: HELLO/WELCOME/ABORT on
	// establishment, EVENT, INVOCATION, session-scoped requests on the
	// router side, and so on).
	OnMessage func(msg wampmsg.Message)
	// OnStateChange is invoked on the Lane whenever setState succeeds.
	OnStateChange func(from, to State)
	// OnFailure is invoked on the Lane when the transport reports a
	// terminal error or an inbound message fails to decode.
	OnFailure func(err error)
}

// New constructs a Peer around an already-handshaken transport. Start
// must be called to begin reading.
func New(role Role, transport *rawsocket.Transport, codec Codec) *Peer {
	return &Peer{
		role:      role,
		transport: transport,
		codec:     codec,
		lane:      NewLane(64),
		state:     StateDisconnected,
		rng:       rand.New(rand.NewSource(int64(rand.Uint64()))),
		pending:   make(map[uint64]pendingEntry),
	}
}

// Start transitions to connecting/closed and begins the transport read
// loop, delivering inbound frames through the Peer's own Lane so every
// callback (OnMessage, pending completions, OnStateChange) is
// serialized with respect to outbound Send calls issued from within
// those same callbacks.
func (p *Peer) Start() {
	p.setState("connect")
	p.transport.Start(rawsocket.Callbacks{
		OnRx: func(payload []byte) {
			p.lane.Post(func() { p.handleRx(payload) })
		},
		OnError: func(err error) {
			p.lane.Post(func() { p.handleFailure(err) })
		},
	})
	p.setState("transportOpen")
}

// Role reports whether this Peer plays the client or router end.
func (p *Peer) Role() Role { return p.role }

// State returns the current session state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SessionID returns the session id assigned at WELCOME, and the
// generation counter a Chit must match for its cancel to still target
// this incarnation of the session.
func (p *Peer) SessionID() (uint64, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID, p.generation
}

// SetSessionID records the session id the router assigned (or the
// client received) at WELCOME, bumping the generation counter so any
// Chit handed out for a prior incarnation becomes inert.
func (p *Peer) SetSessionID(id uint64) {
	p.mu.Lock()
	p.sessionID = id
	p.generation++
	p.mu.Unlock()
}

// setState applies a named transition per the session state table, invoking
// OnStateChange on success. An illegal transition is silently ignored;
// callers that need to know should check State() before calling.
func (p *Peer) setState(event string) {
	p.mu.Lock()
	to, ok := canTransition(p.state, event)
	if !ok {
		p.mu.Unlock()
		return
	}
	from := p.state
	p.state = to
	p.mu.Unlock()
	if p.OnStateChange != nil {
		p.OnStateChange(from, to)
	}
}

// Event applies a named state-machine transition from outside the
// normal message-driven path (join/leave/challenge/welcome/abort), for
// callers in pkg/client and pkg/router that drive the handshake.
func (p *Peer) Event(event string) { p.setState(event) }

// NextRequestID draws the next outbound request id: monotonic within
// one random seed, drawn from 1..2^53, skipping any id still present
// in the pending table.
func (p *Peer) NextRequestID() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nextReqID == 0 {
		p.nextReqID = 1 + (p.rng.Uint64() % (maxRequestID - 1))
	}
	for {
		id := p.nextReqID
		p.nextReqID++
		if p.nextReqID > maxRequestID {
			p.nextReqID = 1
		}
		if _, busy := p.pending[id]; !busy {
			return id
		}
	}
}

// Send encodes msg through the negotiated codec and writes it as a
// single transport frame.
func (p *Peer) Send(msg wampmsg.Message) error {
	payload, err := p.codec.Encode(msg.Encode())
	if err != nil {
		return err
	}
	return p.transport.Send(payload)
}

// Call sends msg and registers complete to run (on the Lane) when a
// response bearing id arrives via Resolve, or with a non-nil error if
// the session fails first. complete always runs exactly once before
// the entry is removed; use CallContinuation for a progressive Result
// sequence.
func (p *Peer) Call(id uint64, msg wampmsg.Message, complete func(wampmsg.Message, error)) error {
	return p.CallContinuation(id, msg, func(m wampmsg.Message, err error) bool {
		complete(m, err)
		return true
	})
}

// CallContinuation is Call's generalized form: complete reports
// whether the pending entry should be removed (false re-arms it for
// the next inbound message sharing id), which OngoingCallAsync uses to
// deliver a progressive Result sequence before its final Result/Error.
func (p *Peer) CallContinuation(id uint64, msg wampmsg.Message, complete func(wampmsg.Message, error) bool) error {
	p.mu.Lock()
	p.pending[id] = pendingEntry{complete: complete}
	p.mu.Unlock()
	if err := p.Send(msg); err != nil {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return err
	}
	return nil
}

// Resolve delivers msg to the pending completion registered under id,
// if any. It reports whether a pending entry was found, so callers can
// fall back to OnMessage dispatch otherwise. The entry is removed
// unless its completion asks to stay registered (a progressive Result).
func (p *Peer) Resolve(id uint64, msg wampmsg.Message) bool {
	p.mu.Lock()
	entry, ok := p.pending[id]
	p.mu.Unlock()
	if !ok {
		return false
	}
	if entry.complete(msg, nil) {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}
	return true
}

// CancelPending fails the pending completion registered under id with
// err, as if it had received a response, without sending anything, and
// always removes the entry. Used by Chit.Cancel's skip mode and by
// session teardown.
func (p *Peer) CancelPending(id uint64, err error) bool {
	p.mu.Lock()
	entry, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	entry.complete(nil, err)
	return true
}

func (p *Peer) handleRx(payload []byte) {
	v, err := p.codec.Decode(payload)
	if err != nil {
		p.handleFailure(err)
		return
	}
	msg, err := wampmsg.Decode(v)
	if err != nil {
		p.handleFailure(err)
		return
	}
	if id, ok := responseID(msg); ok && p.Resolve(id, msg) {
		return
	}
	if p.OnMessage != nil {
		p.OnMessage(msg)
	}
}

// responseID extracts the correlating request id from the message
// types that answer an earlier request (as opposed to router-pushed or
// session-establishment messages, which always go through OnMessage).
func responseID(msg wampmsg.Message) (uint64, bool) {
	switch m := msg.(type) {
	case *wampmsg.Published:
		return m.Request, true
	case *wampmsg.Subscribed:
		return m.Request, true
	case *wampmsg.Unsubscribed:
		return m.Request, true
	case *wampmsg.Result:
		return m.Request, true
	case *wampmsg.Registered:
		return m.Request, true
	case *wampmsg.Unregistered:
		return m.Request, true
	case *wampmsg.Error:
		return m.Request, true
	default:
		return 0, false
	}
}

func (p *Peer) handleFailure(err error) {
	p.setState("transportFail")
	p.failAllPending(err)
	if p.OnFailure != nil {
		p.OnFailure(err)
	}
}

func (p *Peer) failAllPending(err error) {
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[uint64]pendingEntry)
	p.mu.Unlock()
	for _, entry := range pending {
		entry.complete(nil, err)
	}
}

// Leave begins a graceful shutdown: the established -> shutting_down
// transition. Callers send GOODBYE themselves (pkg/client and
// pkg/router own the exact message content); Leave only updates state.
func (p *Peer) Leave() { p.setState("leave") }

// Close tears down the transport and its Lane, failing any still
// pending completions with session_ended.
func (p *Peer) Close() {
	p.setState("goodbye")
	// Fail pending entries before stopping the transport: its read loop
	// reports aborted on stop, which would otherwise race this.
	p.failAllPending(wamperr.New(wamperr.CategoryMisc, wamperr.CodeSessionEnded, "session closed"))
	p.transport.Stop()
	p.lane.Stop()
}

// Post runs fn on the Peer's Lane, for callers (pkg/client, pkg/router)
// that need to serialize their own session-scoped state changes with
// inbound message handling.
func (p *Peer) Post(fn func()) { p.lane.Post(fn) }
