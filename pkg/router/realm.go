package router

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wampcore/wampgo/pkg/peer"
	"github.com/wampcore/wampgo/pkg/uritrie"
	"github.com/wampcore/wampgo/pkg/wamperr"
	"github.com/wampcore/wampgo/pkg/wampmsg"
	"github.com/wampcore/wampgo/pkg/wampvalue"
)

// Policy carries a realm's advanced-profile opt-ins.
type Policy struct {
	// DiscloseCaller adds the caller's session id into
	// INVOCATION.Details.caller.
	DiscloseCaller bool
	// DisclosePublisher adds the publisher's session id into
	// EVENT.Details.publisher.
	DisclosePublisher bool
}

// sessionEntry pairs a live session with the realm generation at which
// it joined. Handles held across lanes carry (id, gen) and re-look-up
// on each use, so a handle from a dead incarnation can never reach a
// newer session that happens to reuse the id.
type sessionEntry struct {
	sess *ServerSession
	gen  uint64
	info SessionInfo
}

// SessionHandle is a weak reference to a realm session.
type SessionHandle struct {
	ID  uint64
	Gen uint64
}

// EventMirror observes every publication after fan-out, outside the
// correctness path; internal/eventmirror bridges it to NATS.
type EventMirror func(realmName, topic string, publication uint64, args []wampvalue.Value, kwargs *wampvalue.Object)

// Realm is one routing namespace: a session table, a broker, and a
// dealer, all owned by a single serializing lane. Nothing outside this
// file touches realm state except through post.
type Realm struct {
	name       string
	instanceID string
	log        *zap.Logger
	lane       *peer.Lane
	policy     Policy
	authorizer Authorizer
	stats      StatsHooks

	sessions   map[uint64]*sessionEntry
	gen        uint64
	sessionIDs *idAllocator
	closed     bool

	broker *broker
	dealer *dealer

	mirror EventMirror
}

func newRealm(name string, policy Policy, authorizer Authorizer, stats StatsHooks, log *zap.Logger) *Realm {
	r := &Realm{
		name:       name,
		instanceID: uuid.NewString(),
		lane:       peer.NewLane(256),
		policy:     policy,
		authorizer: authorizer,
		stats:      stats,
		sessions:   make(map[uint64]*sessionEntry),
		sessionIDs: newIDAllocator(0),
	}
	r.log = log.With(zap.String("realm", name), zap.String("realm_id", r.instanceID))
	r.broker = newBroker(r)
	r.dealer = newDealer(r)
	return r
}

// Name returns the realm's routing namespace name.
func (r *Realm) Name() string { return r.name }

// post runs fn on the realm's lane.
func (r *Realm) post(fn func()) { r.lane.Post(fn) }

// SetEventMirror installs (or clears, with nil) the after-fan-out
// publication observer. Takes effect for publications routed after the
// lane processes the change.
func (r *Realm) SetEventMirror(m EventMirror) {
	r.post(func() { r.mirror = m })
}

// SetAuthorizer installs the per-action veto hook.
func (r *Realm) SetAuthorizer(a Authorizer) {
	r.post(func() { r.authorizer = a })
}

// SessionCount reports the number of joined sessions, observed from
// the realm lane.
func (r *Realm) SessionCount() int {
	done := make(chan int, 1)
	r.post(func() { done <- len(r.sessions) })
	return <-done
}

// lookup resolves a weak handle, returning nil if the session has left
// or the realm has moved past its generation.
func (r *Realm) lookup(h SessionHandle) *ServerSession {
	entry, ok := r.sessions[h.ID]
	if !ok || entry.gen != h.Gen {
		return nil
	}
	return entry.sess
}

// addSession allocates a session id, registers sess, and returns the
// id (0 if the realm is closing). Runs on the realm lane.
func (r *Realm) addSession(sess *ServerSession) uint64 {
	if r.closed {
		return 0
	}
	id := r.sessionIDs.Next(func(id uint64) bool {
		_, busy := r.sessions[id]
		return busy
	})
	r.gen++
	r.sessions[id] = &sessionEntry{sess: sess, gen: r.gen}
	return id
}

// removeSession purges every trace of id: subscriptions,
// registrations, and in-flight call roles, so the realm never holds
// a dangling session. Runs on the realm lane.
func (r *Realm) removeSession(id uint64) {
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	r.broker.removeSession(id)
	r.dealer.removeSession(id)
	r.log.Debug("session purged", zap.Uint64("session", id))
}

// handle dispatches one routed message from sess. Runs on the realm
// lane.
func (r *Realm) handle(sess *ServerSession, msg wampmsg.Message) {
	if _, ok := r.sessions[sess.ID()]; !ok {
		// Session already purged; drop anything still in flight.
		return
	}
	switch m := msg.(type) {
	case *wampmsg.Subscribe:
		r.broker.subscribe(sess, m)
	case *wampmsg.Unsubscribe:
		r.broker.unsubscribe(sess, m)
	case *wampmsg.Publish:
		r.broker.publish(sess, m)
	case *wampmsg.Register:
		r.dealer.register(sess, m)
	case *wampmsg.Unregister:
		r.dealer.unregister(sess, m)
	case *wampmsg.Call:
		r.dealer.call(sess, m)
	case *wampmsg.Cancel:
		r.dealer.cancel(sess, m)
	case *wampmsg.Yield:
		r.dealer.yield(sess, m)
	case *wampmsg.Error:
		if m.RequestType == wampmsg.TypeInvocation {
			r.dealer.invocationError(sess, m)
			return
		}
		sess.abort(wamperr.URI(wamperr.CodeProtocolViolation), "unexpected ERROR from client")
	default:
		sess.abort(wamperr.URI(wamperr.CodeProtocolViolation), "message not routable in established state")
	}
}

// authorize consults the realm's Authorizer, if any.
func (r *Realm) authorize(action Action, uri string, sess *ServerSession) error {
	if r.authorizer == nil {
		return nil
	}
	return r.authorizer.Authorize(action, uri, sess.Info())
}

// close aborts every session and stops the lane.
func (r *Realm) close() {
	done := make(chan struct{})
	r.post(func() {
		r.closed = true
		for id, entry := range r.sessions {
			entry.sess.send(&wampmsg.Goodbye{Details: &wampvalue.Object{}, Reason: wamperr.URI(wamperr.CodeSystemShutdown)})
			delete(r.sessions, id)
			r.broker.removeSession(id)
			r.dealer.removeSession(id)
		}
		close(done)
	})
	<-done
	r.lane.Stop()
	r.log.Info("realm closed")
}

// validTopicURI enforces WAMP's strict URI rule for concrete (non
// pattern) URIs: at least one label, every label non-empty, no
// whitespace or hash.
func validTopicURI(uri string) bool {
	if uri == "" {
		return false
	}
	for _, label := range uritrie.SplitURI(uri) {
		if label == "" {
			return false
		}
		for _, c := range label {
			if c == ' ' || c == '#' {
				return false
			}
		}
	}
	return true
}

// validPatternURI relaxes the rule for stored patterns: wildcard
// patterns may carry empty labels (the wildcard positions), prefix
// patterns may be the empty URI, which splits into the single empty
// label.
func validPatternURI(uri string, policy uritrie.Policy) bool {
	switch policy {
	case uritrie.PolicyWildcard:
		for _, label := range uritrie.SplitURI(uri) {
			for _, c := range label {
				if c == ' ' || c == '#' {
					return false
				}
			}
		}
		return true
	case uritrie.PolicyPrefix:
		if uri == "" {
			return true
		}
		return validTopicURI(uri)
	default:
		return validTopicURI(uri)
	}
}

// policyFromOptions reads the "match" option the way the client's
// matchOption writes it.
func policyFromOptions(o *wampvalue.Object) uritrie.Policy {
	if o == nil {
		return uritrie.PolicyExact
	}
	v, ok := o.Get("match")
	if !ok {
		return uritrie.PolicyExact
	}
	s, _ := v.AsString()
	switch s {
	case "prefix":
		return uritrie.PolicyPrefix
	case "wildcard":
		return uritrie.PolicyWildcard
	default:
		return uritrie.PolicyExact
	}
}

// replyError sends the ERROR response for a refused request.
func replyError(sess *ServerSession, reqType wampmsg.Type, request uint64, uri string, message string) {
	details := &wampvalue.Object{}
	if message != "" {
		details.Set("message", wampvalue.String(message))
	}
	sess.send(&wampmsg.Error{RequestType: reqType, Request: request, Details: details, URI: uri})
}
