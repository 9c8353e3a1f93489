package router

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wampcore/wampgo/pkg/peer"
	"github.com/wampcore/wampgo/pkg/wamperr"
	"github.com/wampcore/wampgo/pkg/wampmsg"
	"github.com/wampcore/wampgo/pkg/wampvalue"
)

// ServerSession is the router-side half of one client connection: it
// drives HELLO/CHALLENGE/WELCOME establishment on the peer's lane,
// then forwards every routed message onto its realm's lane. Responses
// flow back through send, which is safe to call from the realm lane.
type ServerSession struct {
	router *Router
	peer   *peer.Peer
	log    *zap.Logger

	mu        sync.Mutex
	realm     *Realm
	id        uint64
	info      SessionInfo
	authState any
	goodbye   bool

	closeOnce sync.Once
}

func newServerSession(r *Router, p *peer.Peer) *ServerSession {
	s := &ServerSession{router: r, peer: p, log: r.log}
	p.OnMessage = s.dispatch
	p.OnFailure = s.onTransportFailure
	return s
}

func (s *ServerSession) start() {
	s.peer.Start()
}

// ID returns the realm-assigned session id (0 before WELCOME).
func (s *ServerSession) ID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Info returns the session's authentication identity.
func (s *ServerSession) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// send encodes and writes msg. It may be called from any lane; the
// transport serializes writes internally, and the realm lane being the
// single producer of routed messages preserves per-subscriber event
// order.
func (s *ServerSession) send(msg wampmsg.Message) {
	if err := s.peer.Send(msg); err != nil {
		s.log.Debug("send to session failed", zap.Uint64("session", s.ID()), zap.Error(err))
	}
}

func (s *ServerSession) dispatch(msg wampmsg.Message) {
	if s.router.opts.Stats.MessageIn != nil {
		s.router.opts.Stats.MessageIn()
	}
	switch m := msg.(type) {
	case *wampmsg.Hello:
		s.handleHello(m)
	case *wampmsg.Authenticate:
		s.handleAuthenticate(m)
	case *wampmsg.Abort:
		s.detach(wamperr.FromURI(m.Reason, "client aborted", nil, nil))
	case *wampmsg.Goodbye:
		s.handleGoodbye(m)
	default:
		s.forwardToRealm(msg)
	}
}

func (s *ServerSession) handleHello(m *wampmsg.Hello) {
	s.mu.Lock()
	joined := s.realm != nil
	s.mu.Unlock()
	if joined {
		s.abort(wamperr.URI(wamperr.CodeProtocolViolation), "HELLO after session establishment")
		return
	}
	realm, err := s.router.realmForHello(m.Realm)
	if err != nil {
		e := err.(*wamperr.Error)
		s.abort(wamperr.URI(e.Code), e.Message)
		return
	}
	s.peer.Event("join")
	auth := s.router.opts.Authenticator
	if auth == nil {
		s.welcome(realm, Decision{Kind: DecideWelcome, AuthRole: "anonymous", AuthID: "anonymous"}, "anonymous")
		return
	}
	decision := auth.OnHello(m.Realm, m)
	switch decision.Kind {
	case DecideWelcome:
		s.welcome(realm, decision, methodFromHello(m))
	case DecideChallenge:
		s.mu.Lock()
		s.realm = realm
		s.authState = decision.State
		s.mu.Unlock()
		s.peer.Event("challenge")
		extra := decision.Extra
		if extra == nil {
			extra = &wampvalue.Object{}
		}
		s.send(&wampmsg.Challenge{AuthMethod: decision.AuthMethod, Extra: extra})
	default:
		s.abort(decision.Reason, "authentication refused")
	}
}

func (s *ServerSession) handleAuthenticate(m *wampmsg.Authenticate) {
	s.mu.Lock()
	realm := s.realm
	state := s.authState
	established := s.id != 0
	s.mu.Unlock()
	if realm == nil || established {
		s.abort(wamperr.URI(wamperr.CodeProtocolViolation), "AUTHENTICATE outside challenge")
		return
	}
	decision := s.router.opts.Authenticator.OnAuthenticate(m.Signature, m.Extra, state)
	if decision.Kind != DecideWelcome {
		reason := decision.Reason
		if reason == "" {
			reason = wamperr.URI(wamperr.CodeAuthenticationFailed)
		}
		s.abort(reason, "authentication failed")
		return
	}
	s.mu.Lock()
	s.realm = nil
	s.mu.Unlock()
	s.welcome(realm, decision, decision.AuthMethod)
}

// welcome hands the session to the realm lane, which allocates the
// session id, registers the session, and sends WELCOME, so that id
// allocation and table insertion are serialized with every other
// realm mutation.
func (s *ServerSession) welcome(realm *Realm, decision Decision, method string) {
	realm.post(func() {
		id := realm.addSession(s)
		if id == 0 {
			s.abort(wamperr.URI(wamperr.CodeSystemShutdown), "realm closing")
			return
		}
		info := SessionInfo{ID: id, AuthID: decision.AuthID, AuthRole: decision.AuthRole, AuthMethod: method}
		s.mu.Lock()
		s.realm = realm
		s.id = id
		s.info = info
		s.mu.Unlock()
		s.peer.SetSessionID(id)
		s.peer.Event("welcome")
		s.send(&wampmsg.Welcome{Session: id, Details: welcomeDetails(info, decision.Details)})
		s.log.Info("session joined",
			zap.String("realm", realm.name),
			zap.Uint64("session", id),
			zap.String("authid", info.AuthID),
			zap.String("authrole", info.AuthRole))
	})
}

func welcomeDetails(info SessionInfo, extra *wampvalue.Object) *wampvalue.Object {
	details := &wampvalue.Object{}
	if extra != nil {
		extra.Range(func(k string, v wampvalue.Value) bool {
			details.Set(k, v)
			return true
		})
	}
	roles := &wampvalue.Object{}
	brokerFeatures := &wampvalue.Object{}
	bf := &wampvalue.Object{}
	bf.Set("pattern_based_subscription", wampvalue.Bool(true))
	bf.Set("publisher_exclusion", wampvalue.Bool(true))
	bf.Set("subscriber_blackwhite_listing", wampvalue.Bool(true))
	brokerFeatures.Set("features", wampvalue.NewObject(bf))
	dealerFeatures := &wampvalue.Object{}
	df := &wampvalue.Object{}
	df.Set("pattern_based_registration", wampvalue.Bool(true))
	df.Set("progressive_call_results", wampvalue.Bool(true))
	df.Set("call_canceling", wampvalue.Bool(true))
	df.Set("call_timeout", wampvalue.Bool(true))
	dealerFeatures.Set("features", wampvalue.NewObject(df))
	roles.Set("broker", wampvalue.NewObject(brokerFeatures))
	roles.Set("dealer", wampvalue.NewObject(dealerFeatures))
	details.Set("roles", wampvalue.NewObject(roles))
	if info.AuthID != "" {
		details.Set("authid", wampvalue.String(info.AuthID))
	}
	if info.AuthRole != "" {
		details.Set("authrole", wampvalue.String(info.AuthRole))
	}
	if info.AuthMethod != "" {
		details.Set("authmethod", wampvalue.String(info.AuthMethod))
	}
	return details
}

func methodFromHello(m *wampmsg.Hello) string {
	if m.Details == nil {
		return ""
	}
	v, ok := m.Details.Get("authmethods")
	if !ok {
		return ""
	}
	arr, ok := v.AsArray()
	if !ok || len(arr) == 0 {
		return ""
	}
	method, _ := arr[0].AsString()
	return method
}

func (s *ServerSession) handleGoodbye(m *wampmsg.Goodbye) {
	s.mu.Lock()
	already := s.goodbye
	s.goodbye = true
	s.mu.Unlock()
	if already {
		return
	}
	s.peer.Event("leave")
	s.send(&wampmsg.Goodbye{Details: &wampvalue.Object{}, Reason: wamperr.URI(wamperr.CodeGoodbyeAndOut)})
	s.peer.Event("goodbye")
	s.detach(nil)
}

func (s *ServerSession) forwardToRealm(msg wampmsg.Message) {
	s.mu.Lock()
	realm := s.realm
	established := s.id != 0
	s.mu.Unlock()
	if realm == nil || !established {
		s.abort(wamperr.URI(wamperr.CodeProtocolViolation), "routed message before session establishment")
		return
	}
	realm.post(func() { realm.handle(s, msg) })
}

// abort sends ABORT and tears the connection down; used for every
// protocol violation and failed establishment.
func (s *ServerSession) abort(reason, message string) {
	if s.router.opts.Stats.ProtocolError != nil {
		s.router.opts.Stats.ProtocolError()
	}
	details := &wampvalue.Object{}
	if message != "" {
		details.Set("message", wampvalue.String(message))
	}
	s.send(&wampmsg.Abort{Details: details, Reason: reason})
	s.peer.Event("abort")
	s.detach(wamperr.FromURI(reason, message, nil, nil))
}

func (s *ServerSession) onTransportFailure(err error) {
	s.detach(err)
}

// detach removes the session from its realm (purging subscriptions,
// registrations, and in-flight call roles on the realm lane) and
// closes the peer. Idempotent.
func (s *ServerSession) detach(err error) {
	s.mu.Lock()
	realm := s.realm
	id := s.id
	s.realm = nil
	s.id = 0
	s.mu.Unlock()
	if realm != nil && id != 0 {
		realm.post(func() { realm.removeSession(id) })
		if err != nil {
			s.log.Info("session detached", zap.Uint64("session", id), zap.Error(err))
		} else {
			s.log.Info("session left", zap.Uint64("session", id))
		}
	}
	s.closeOnce.Do(func() {
		if s.router.opts.OnSessionDown != nil {
			s.router.opts.OnSessionDown()
		}
		go s.peer.Close()
	})
}
