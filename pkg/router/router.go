package router

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wampcore/wampgo/pkg/peer"
	"github.com/wampcore/wampgo/pkg/rawsocket"
	"github.com/wampcore/wampgo/pkg/wamperr"
	"github.com/wampcore/wampgo/pkg/wampmsg"
	"github.com/wampcore/wampgo/pkg/wampvalue"
)

// DecisionKind is the shape of an Authenticator's answer.
type DecisionKind int

const (
	// DecideWelcome admits the session immediately.
	DecideWelcome DecisionKind = iota
	// DecideChallenge sends CHALLENGE and waits for AUTHENTICATE.
	DecideChallenge
	// DecideAbort refuses the session with a reason URI.
	DecideAbort
)

// Decision is what an Authenticator returns for a HELLO or an
// AUTHENTICATE.
type Decision struct {
	Kind DecisionKind

	// Welcome fields.
	AuthID   string
	AuthRole string
	Details  *wampvalue.Object

	// Challenge fields.
	AuthMethod string
	Extra      *wampvalue.Object
	// State is threaded back into OnAuthenticate unchanged, so an
	// Authenticator can carry per-handshake context without its own
	// session table.
	State any

	// Abort field.
	Reason string
}

// Authenticator is the session-admission hook: given a HELLO, welcome,
// challenge, or abort; given the later AUTHENTICATE, welcome or abort.
// A nil Authenticator on the Router welcomes everyone anonymously.
type Authenticator interface {
	OnHello(realm string, hello *wampmsg.Hello) Decision
	OnAuthenticate(signature string, extra *wampvalue.Object, state any) Decision
}

// Options configures a Router.
type Options struct {
	// AutoCreateRealms creates a realm on the first HELLO naming it;
	// otherwise an unknown realm aborts with wamp.error.no_such_realm.
	AutoCreateRealms bool
	Authenticator    Authenticator
	// Authorizer and Policy seed realms created by AddRealm or
	// auto-creation.
	Authorizer Authorizer
	Policy     Policy
	Logger     *zap.Logger
	// OnSessionDown is invoked once per attached session when its
	// connection winds down, for embedder bookkeeping (metrics).
	OnSessionDown func()
	// Stats receives routing observations; any hook may be nil.
	Stats StatsHooks
}

// StatsHooks lets an embedder count routing activity without the core
// depending on a metrics library. Hooks are invoked from router lanes
// and must be cheap and non-blocking.
type StatsHooks struct {
	MessageIn       func()
	PublishReceived func()
	EventDelivered  func()
	CallRouted      func()
	CallCanceled    func()
	CallCompleted   func(seconds float64)
	ProtocolError   func()
}

// Router owns the realm registry and attaches transports as
// router-side sessions. All realm lookups and creations go through its
// mutex; everything past HELLO routing runs on the target realm's lane.
type Router struct {
	opts       Options
	log        *zap.Logger
	instanceID string

	mu     sync.Mutex
	realms map[string]*Realm
	closed bool
}

// New builds a Router. A nil Logger means no logging.
func New(opts Options) *Router {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		opts:       opts,
		instanceID: uuid.NewString(),
		realms:     make(map[string]*Realm),
	}
	r.log = log.With(zap.String("router_id", r.instanceID))
	return r
}

// AddRealm creates (or returns the existing) realm called name.
func (r *Router) AddRealm(name string) *Realm {
	r.mu.Lock()
	defer r.mu.Unlock()
	if realm, ok := r.realms[name]; ok {
		return realm
	}
	realm := newRealm(name, r.opts.Policy, r.opts.Authorizer, r.opts.Stats, r.log)
	r.realms[name] = realm
	r.log.Info("realm created", zap.String("realm", name), zap.String("realm_id", realm.instanceID))
	return realm
}

// Realm returns the realm called name, if it exists.
func (r *Router) Realm(name string) (*Realm, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	realm, ok := r.realms[name]
	return realm, ok
}

// realmForHello resolves (or auto-creates) the realm a HELLO names.
func (r *Router) realmForHello(name string) (*Realm, error) {
	r.mu.Lock()
	closed := r.closed
	realm, ok := r.realms[name]
	r.mu.Unlock()
	if closed {
		return nil, wamperr.New(wamperr.CategoryWAMP, wamperr.CodeSystemShutdown, "router shutting down")
	}
	if ok {
		return realm, nil
	}
	if !r.opts.AutoCreateRealms {
		return nil, wamperr.New(wamperr.CategoryWAMP, wamperr.CodeNoSuchRealm, "no realm named "+name)
	}
	return r.AddRealm(name), nil
}

// Attach adopts an already-handshaken transport as a router-side
// session and starts serving it. The returned session is mainly useful
// to tests; production callers can ignore it.
func (r *Router) Attach(transport *rawsocket.Transport, codec peer.Codec) *ServerSession {
	sess := newServerSession(r, peer.New(peer.RoleRouter, transport, codec))
	sess.start()
	return sess
}

// Close shuts every realm down. Sessions still attached observe
// wamp.error.system_shutdown.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	realms := make([]*Realm, 0, len(r.realms))
	for _, realm := range r.realms {
		realms = append(realms, realm)
	}
	r.mu.Unlock()
	for _, realm := range realms {
		realm.close()
	}
	r.log.Info("router closed")
}
