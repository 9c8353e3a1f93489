// Package client implements the WAMP client session: a
// *peer.Peer driven through Hello/Welcome establishment, Goodbye
// teardown, and the pub/sub and RPC operations, each returning a
// completion the caller observes through a peer.CompletionHandler.
package client

import (
	"sync"

	"github.com/wampcore/wampgo/pkg/peer"
	"github.com/wampcore/wampgo/pkg/wampmsg"
	"github.com/wampcore/wampgo/pkg/wampvalue"
	"github.com/wampcore/wampgo/pkg/wamperr"
)

// WelcomeInfo is what a successful Join completes with.
type WelcomeInfo struct {
	SessionID uint64
	Details   *wampvalue.Object
}

// Challenger answers a router's CHALLENGE during Hello/Welcome
// establishment: given the auth method and its extra data, return the
// signature (and any Authenticate.Extra) to send back.
type Challenger func(authMethod string, extra *wampvalue.Object) (signature string, extra2 *wampvalue.Object, err error)

// Session is a client-role WAMP session: join/leave establishment plus
// the pub/sub and RPC operations, all dispatched through the
// underlying peer.Peer's Lane.
type Session struct {
	peer *peer.Peer

	mu      sync.Mutex
	welcome *WelcomeInfo
	realm   string

	challenger Challenger

	joinHandler  peer.CompletionHandler[WelcomeInfo]
	leaveHandler peer.CompletionHandler[string]

	subs          map[uint64]*subscription
	regs          map[uint64]*registration
	invocations   map[uint64]*inflightInvocation
}

// New wires a Session on top of an already-constructed client-role
// Peer (see rawsocket.New + peer.New(peer.RoleClient, ...)). New
// installs the Peer's OnMessage and OnFailure hooks, so the caller
// calls Peer.Start after New, as Local does.
func New(p *peer.Peer, challenger Challenger) *Session {
	s := &Session{
		peer:        p,
		challenger:  challenger,
		subs:        make(map[uint64]*subscription),
		regs:        make(map[uint64]*registration),
		invocations: make(map[uint64]*inflightInvocation),
	}
	p.OnMessage = s.dispatch
	p.OnFailure = s.handleFailure
	return s
}

// handleFailure completes any outstanding establishment/teardown
// handler when the transport fails; pending requests were already
// failed by the Peer itself.
func (s *Session) handleFailure(err error) {
	s.mu.Lock()
	jh := s.joinHandler
	lh := s.leaveHandler
	s.joinHandler = nil
	s.leaveHandler = nil
	s.mu.Unlock()
	if jh != nil {
		jh.Complete(peer.Result[WelcomeInfo]{Err: err})
	}
	if lh != nil {
		lh.Complete(peer.Result[string]{Err: err})
	}
}

// Peer exposes the underlying session-state-machine Peer, for callers
// that need its State()/SessionID()/Post().
func (s *Session) Peer() *peer.Peer { return s.peer }

// JoinAsync sends HELLO and arms handler to complete on Welcome/Abort.
func (s *Session) JoinAsync(realm string, details *wampvalue.Object, handler peer.CompletionHandler[WelcomeInfo]) error {
	s.mu.Lock()
	if s.joinHandler != nil {
		s.mu.Unlock()
		return wamperr.New(wamperr.CategoryMisc, wamperr.CodeInvalidArgument, "join already in progress")
	}
	s.realm = realm
	s.joinHandler = handler
	s.mu.Unlock()

	s.peer.Event("join")
	if err := s.peer.Send(&wampmsg.Hello{Realm: realm, Details: details}); err != nil {
		s.mu.Lock()
		s.joinHandler = nil
		s.mu.Unlock()
		return err
	}
	return nil
}

// Join is JoinAsync's synchronous convenience wrapper, the "direct
// blocking" style built atop the await CompletionHandler adapter.
func (s *Session) Join(realm string, details *wampvalue.Object) (WelcomeInfo, error) {
	h := peer.NewAwaitHandler[WelcomeInfo]()
	if err := s.JoinAsync(realm, details, h); err != nil {
		return WelcomeInfo{}, err
	}
	r := h.Recv()
	return r.Value, r.Err
}

// LeaveAsync sends GOODBYE and arms handler to complete once the
// router replies with its own Goodbye (or the session fails first).
func (s *Session) LeaveAsync(reason string, handler peer.CompletionHandler[string]) error {
	s.mu.Lock()
	if s.leaveHandler != nil {
		s.mu.Unlock()
		return wamperr.New(wamperr.CategoryMisc, wamperr.CodeInvalidArgument, "leave already in progress")
	}
	s.leaveHandler = handler
	s.mu.Unlock()

	s.peer.Leave()
	return s.peer.Send(&wampmsg.Goodbye{Details: &wampvalue.Object{}, Reason: reason})
}

// Leave is LeaveAsync's synchronous convenience wrapper.
func (s *Session) Leave(reason string) (string, error) {
	h := peer.NewAwaitHandler[string]()
	if err := s.LeaveAsync(reason, h); err != nil {
		return "", err
	}
	r := h.Recv()
	return r.Value, r.Err
}

// Close tears down the transport unconditionally, failing any
// outstanding completions with session_ended.
func (s *Session) Close() { s.peer.Close() }

func (s *Session) dispatch(msg wampmsg.Message) {
	switch m := msg.(type) {
	case *wampmsg.Challenge:
		s.handleChallenge(m)
	case *wampmsg.Welcome:
		s.handleWelcome(m)
	case *wampmsg.Abort:
		s.handleAbort(m)
	case *wampmsg.Goodbye:
		s.handleGoodbye(m)
	case *wampmsg.Event:
		s.handleEvent(m)
	case *wampmsg.Invocation:
		s.handleInvocation(m)
	case *wampmsg.Interrupt:
		s.handleInterrupt(m)
	case *wampmsg.Result, *wampmsg.Subscribed, *wampmsg.Unsubscribed,
		*wampmsg.Published, *wampmsg.Registered, *wampmsg.Unregistered,
		*wampmsg.Error:
		// A response reaching dispatch means no pending request claimed
		// its id: a protocol violation, terminating the session.
		s.failProtocol("response with unknown request id")
	}
}

func (s *Session) failProtocol(message string) {
	_ = s.peer.Send(&wampmsg.Abort{
		Details: &wampvalue.Object{},
		Reason:  wamperr.URI(wamperr.CodeProtocolViolation),
	})
	s.handleFailure(wamperr.New(wamperr.CategoryWAMP, wamperr.CodeProtocolViolation, message))
	go s.peer.Close()
}

func (s *Session) handleChallenge(m *wampmsg.Challenge) {
	s.peer.Event("challenge")
	if s.challenger == nil {
		_ = s.peer.Send(&wampmsg.Authenticate{Signature: "", Extra: &wampvalue.Object{}})
		return
	}
	sig, extra, err := s.challenger(m.AuthMethod, m.Extra)
	if err != nil {
		s.mu.Lock()
		h := s.joinHandler
		s.joinHandler = nil
		s.mu.Unlock()
		if h != nil {
			h.Complete(peer.Result[WelcomeInfo]{Err: err})
		}
		return
	}
	if extra == nil {
		extra = &wampvalue.Object{}
	}
	_ = s.peer.Send(&wampmsg.Authenticate{Signature: sig, Extra: extra})
}

func (s *Session) handleWelcome(m *wampmsg.Welcome) {
	s.peer.SetSessionID(m.Session)
	s.peer.Event("welcome")
	info := WelcomeInfo{SessionID: m.Session, Details: m.Details}
	s.mu.Lock()
	s.welcome = &info
	h := s.joinHandler
	s.joinHandler = nil
	s.mu.Unlock()
	if h != nil {
		h.Complete(peer.Result[WelcomeInfo]{Value: info})
	}
}

func (s *Session) handleAbort(m *wampmsg.Abort) {
	s.peer.Event("abort")
	s.mu.Lock()
	h := s.joinHandler
	s.joinHandler = nil
	s.mu.Unlock()
	if h != nil {
		h.Complete(peer.Result[WelcomeInfo]{Err: wampError(m.Reason, m.Details, nil, nil)})
	}
}

func (s *Session) handleGoodbye(m *wampmsg.Goodbye) {
	s.peer.Event("goodbye")
	s.mu.Lock()
	h := s.leaveHandler
	s.leaveHandler = nil
	s.mu.Unlock()
	if h != nil {
		h.Complete(peer.Result[string]{Value: m.Reason})
	}
}
