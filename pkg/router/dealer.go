package router

import (
	"time"

	"go.uber.org/zap"

	"github.com/wampcore/wampgo/pkg/uritrie"
	"github.com/wampcore/wampgo/pkg/wamperr"
	"github.com/wampcore/wampgo/pkg/wampmsg"
	"github.com/wampcore/wampgo/pkg/wampvalue"
)

// procRegistration is one stored procedure pattern with its single
// callee session (weak handle form).
type procRegistration struct {
	id      uint64
	key     []string
	policy  uritrie.Policy
	session SessionHandle
}

type callerKey struct {
	session uint64
	request uint64
}

// inflightCall is the dealer's record of one forwarded CALL, keyed by
// invocation id and cross-indexed by (caller session, caller request)
// for CANCEL lookup.
type inflightCall struct {
	invocationID uint64
	caller       SessionHandle
	callerReq    uint64
	callee       SessionHandle
	registration uint64
	started      time.Time

	// killing is set once an INTERRUPT in kill mode is outstanding; the
	// caller's completion then comes from the callee's own ERROR.
	killing bool
	// zombie marks an entry whose caller has already been answered
	// (killnowait/skip cancel, or caller left); any late YIELD/ERROR
	// from the callee is silently discarded.
	zombie bool

	timer *time.Timer
}

func (c *inflightCall) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// dealer owns the per-policy procedure tries and the in-flight call
// table. Runs entirely on the realm lane.
type dealer struct {
	realm *Realm

	tries    map[uritrie.Policy]*uritrie.Trie[*procRegistration]
	regsByID map[uint64]*procRegistration

	inflight map[uint64]*inflightCall
	byCaller map[callerKey]*inflightCall

	regIDs *idAllocator
	invIDs *idAllocator
}

func newDealer(r *Realm) *dealer {
	return &dealer{
		realm: r,
		tries: map[uritrie.Policy]*uritrie.Trie[*procRegistration]{
			uritrie.PolicyExact:    uritrie.New[*procRegistration](),
			uritrie.PolicyPrefix:   uritrie.New[*procRegistration](),
			uritrie.PolicyWildcard: uritrie.New[*procRegistration](),
		},
		regsByID: make(map[uint64]*procRegistration),
		inflight: make(map[uint64]*inflightCall),
		byCaller: make(map[callerKey]*inflightCall),
		regIDs:   newIDAllocator(0),
		invIDs:   newIDAllocator(0),
	}
}

func (d *dealer) register(sess *ServerSession, m *wampmsg.Register) {
	policy := policyFromOptions(m.Options)
	if !validPatternURI(m.Procedure, policy) {
		replyError(sess, wampmsg.TypeRegister, m.Request, wamperr.URI(wamperr.CodeInvalidURI), "invalid procedure URI")
		return
	}
	if err := d.realm.authorize(ActionRegister, m.Procedure, sess); err != nil {
		replyError(sess, wampmsg.TypeRegister, m.Request, authErrorURI(err), err.Error())
		return
	}
	key := uritrie.SplitURI(m.Procedure)
	trie := d.tries[policy]
	if _, exists := trie.Find(key); exists {
		replyError(sess, wampmsg.TypeRegister, m.Request, wamperr.URI(wamperr.CodeProcedureAlreadyExists), "procedure already registered")
		return
	}
	sid := sess.ID()
	entry, ok := d.realm.sessions[sid]
	if !ok {
		return
	}
	reg := &procRegistration{
		id:      d.regIDs.Next(func(id uint64) bool { _, busy := d.regsByID[id]; return busy }),
		key:     key,
		policy:  policy,
		session: SessionHandle{ID: sid, Gen: entry.gen},
	}
	trie.Insert(key, reg)
	d.regsByID[reg.id] = reg
	sess.send(&wampmsg.Registered{Request: m.Request, Registration: reg.id})
	d.realm.log.Debug("registered",
		zap.Uint64("session", sid),
		zap.String("procedure", m.Procedure),
		zap.String("policy", policy.String()),
		zap.Uint64("registration", reg.id))
}

func (d *dealer) unregister(sess *ServerSession, m *wampmsg.Unregister) {
	reg, ok := d.regsByID[m.Registration]
	if !ok || reg.session.ID != sess.ID() {
		replyError(sess, wampmsg.TypeUnregister, m.Request, wamperr.URI(wamperr.CodeNoSuchRegistration), "")
		return
	}
	d.tries[reg.policy].Erase(reg.key)
	delete(d.regsByID, reg.id)
	sess.send(&wampmsg.Unregistered{Request: m.Request})
}

// resolve finds the registration serving uri: exact match first, then
// the longest registered prefix, then the first wildcard in
// lexicographic key order.
func (d *dealer) resolve(uri []string) *procRegistration {
	if reg, ok := d.tries[uritrie.PolicyExact].Find(uri); ok {
		return reg
	}
	if matches := d.tries[uritrie.PolicyPrefix].Match(uri, uritrie.PolicyPrefix); len(matches) > 0 {
		return matches[len(matches)-1].Value
	}
	if matches := d.tries[uritrie.PolicyWildcard].Match(uri, uritrie.PolicyWildcard); len(matches) > 0 {
		return matches[0].Value
	}
	return nil
}

func (d *dealer) call(sess *ServerSession, m *wampmsg.Call) {
	if !validTopicURI(m.Procedure) {
		replyError(sess, wampmsg.TypeCall, m.Request, wamperr.URI(wamperr.CodeInvalidURI), "invalid procedure URI")
		return
	}
	if err := d.realm.authorize(ActionCall, m.Procedure, sess); err != nil {
		replyError(sess, wampmsg.TypeCall, m.Request, authErrorURI(err), err.Error())
		return
	}
	reg := d.resolve(uritrie.SplitURI(m.Procedure))
	if reg == nil {
		replyError(sess, wampmsg.TypeCall, m.Request, wamperr.URI(wamperr.CodeNoSuchProcedure), "no registration matches "+m.Procedure)
		return
	}
	callee := d.realm.lookup(reg.session)
	if callee == nil {
		replyError(sess, wampmsg.TypeCall, m.Request, wamperr.URI(wamperr.CodeNoSuchProcedure), "callee session gone")
		return
	}
	callerID := sess.ID()
	callerEntry, ok := d.realm.sessions[callerID]
	if !ok {
		return
	}

	call := &inflightCall{
		invocationID: d.invIDs.Next(func(id uint64) bool { _, busy := d.inflight[id]; return busy }),
		caller:       SessionHandle{ID: callerID, Gen: callerEntry.gen},
		callerReq:    m.Request,
		callee:       reg.session,
		registration: reg.id,
		started:      time.Now(),
	}
	d.inflight[call.invocationID] = call
	d.byCaller[callerKey{callerID, m.Request}] = call

	details := &wampvalue.Object{}
	if reg.policy != uritrie.PolicyExact {
		details.Set("procedure", wampvalue.String(m.Procedure))
	}
	if boolOption(m.Options, "receive_progress", false) {
		details.Set("receive_progress", wampvalue.Bool(true))
	}
	if d.realm.policy.DiscloseCaller {
		details.Set("caller", wampvalue.Uint(callerID))
	}

	if timeout := uintOption(m.Options, "timeout"); timeout > 0 {
		invID := call.invocationID
		call.timer = time.AfterFunc(time.Duration(timeout)*time.Millisecond, func() {
			d.realm.post(func() { d.timeoutCall(invID) })
		})
	}

	callee.send(&wampmsg.Invocation{
		Request:      call.invocationID,
		Registration: reg.id,
		Details:      details,
		Args:         m.Args,
		KwArgs:       m.KwArgs,
	})
	if d.realm.stats.CallRouted != nil {
		d.realm.stats.CallRouted()
	}
}

// timeoutCall fires when a CALL.Options.timeout expires: synthesize a
// kill-mode cancel addressed to the callee. The caller's completion
// arrives with the callee's ERROR, normally wamp.error.canceled.
func (d *dealer) timeoutCall(invocationID uint64) {
	call, ok := d.inflight[invocationID]
	if !ok || call.zombie || call.killing {
		return
	}
	call.timer = nil
	d.interrupt(call, "kill")
	call.killing = true
	if d.realm.stats.CallCanceled != nil {
		d.realm.stats.CallCanceled()
	}
}

func (d *dealer) interrupt(call *inflightCall, mode string) {
	callee := d.realm.lookup(call.callee)
	if callee == nil {
		return
	}
	opts := &wampvalue.Object{}
	opts.Set("mode", wampvalue.String(mode))
	callee.send(&wampmsg.Interrupt{Request: call.invocationID, Options: opts})
}

func (d *dealer) cancel(sess *ServerSession, m *wampmsg.Cancel) {
	call, ok := d.byCaller[callerKey{sess.ID(), m.Request}]
	if !ok {
		// Late CANCEL after the RESULT already went out; tolerated and
		// discarded.
		return
	}
	if call.zombie || call.killing {
		return
	}
	if d.realm.stats.CallCanceled != nil {
		d.realm.stats.CallCanceled()
	}
	mode := "killnowait"
	if m.Options != nil {
		if v, ok := m.Options.Get("mode"); ok {
			if s, ok := v.AsString(); ok {
				mode = s
			}
		}
	}
	switch mode {
	case "kill":
		call.killing = true
		d.interrupt(call, mode)
	case "skip":
		call.zombie = true
		call.stopTimer()
		delete(d.byCaller, callerKey{call.caller.ID, call.callerReq})
		replyError(sess, wampmsg.TypeCall, call.callerReq, wamperr.URI(wamperr.CodeCanceled), "call canceled")
	default: // killnowait
		call.zombie = true
		call.stopTimer()
		delete(d.byCaller, callerKey{call.caller.ID, call.callerReq})
		d.interrupt(call, "killnowait")
		replyError(sess, wampmsg.TypeCall, call.callerReq, wamperr.URI(wamperr.CodeCanceled), "call canceled")
	}
}

func (d *dealer) yield(sess *ServerSession, m *wampmsg.Yield) {
	call, ok := d.inflight[m.Request]
	if !ok {
		// Late YIELD after cancel cleanup; discard.
		return
	}
	if call.callee.ID != sess.ID() {
		sess.abort(wamperr.URI(wamperr.CodeProtocolViolation), "YIELD for an invocation owned by another session")
		return
	}
	progressive := boolOption(m.Options, "progress", false)
	if progressive {
		if call.zombie {
			return
		}
		if caller := d.realm.lookup(call.caller); caller != nil {
			details := &wampvalue.Object{}
			details.Set("progress", wampvalue.Bool(true))
			caller.send(&wampmsg.Result{Request: call.callerReq, Details: details, Args: m.Args, KwArgs: m.KwArgs})
		}
		return
	}
	d.finish(call)
	if call.zombie {
		return
	}
	if caller := d.realm.lookup(call.caller); caller != nil {
		caller.send(&wampmsg.Result{Request: call.callerReq, Details: &wampvalue.Object{}, Args: m.Args, KwArgs: m.KwArgs})
	}
}

func (d *dealer) invocationError(sess *ServerSession, m *wampmsg.Error) {
	call, ok := d.inflight[m.Request]
	if !ok {
		return
	}
	if call.callee.ID != sess.ID() {
		sess.abort(wamperr.URI(wamperr.CodeProtocolViolation), "ERROR for an invocation owned by another session")
		return
	}
	d.finish(call)
	if call.zombie {
		return
	}
	if caller := d.realm.lookup(call.caller); caller != nil {
		caller.send(&wampmsg.Error{
			RequestType: wampmsg.TypeCall,
			Request:     call.callerReq,
			Details:     m.Details,
			URI:         m.URI,
			Args:        m.Args,
			KwArgs:      m.KwArgs,
		})
	}
}

func (d *dealer) finish(call *inflightCall) {
	call.stopTimer()
	delete(d.inflight, call.invocationID)
	delete(d.byCaller, callerKey{call.caller.ID, call.callerReq})
	if d.realm.stats.CallCompleted != nil {
		d.realm.stats.CallCompleted(time.Since(call.started).Seconds())
	}
}

// removeSession purges the leaving session's registrations and
// resolves its in-flight roles: its callers get wamp.error.canceled
// for calls it was serving, and its callees get a kill-mode INTERRUPT
// for calls it had issued.
func (d *dealer) removeSession(id uint64) {
	for regID, reg := range d.regsByID {
		if reg.session.ID == id {
			d.tries[reg.policy].Erase(reg.key)
			delete(d.regsByID, regID)
		}
	}
	for _, call := range d.inflight {
		switch id {
		case call.callee.ID:
			d.finish(call)
			if call.zombie {
				continue
			}
			if caller := d.realm.lookup(call.caller); caller != nil {
				replyError(caller, wampmsg.TypeCall, call.callerReq, wamperr.URI(wamperr.CodeCanceled), "callee left the realm")
			}
		case call.caller.ID:
			if !call.zombie && !call.killing {
				d.interrupt(call, "kill")
			}
			call.zombie = true
			call.stopTimer()
			delete(d.byCaller, callerKey{call.caller.ID, call.callerReq})
		}
	}
}

func uintOption(o *wampvalue.Object, key string) uint64 {
	if o == nil {
		return 0
	}
	v, ok := o.Get(key)
	if !ok {
		return 0
	}
	if u, ok := v.AsUint(); ok {
		return u
	}
	if i, ok := v.AsInt(); ok && i > 0 {
		return uint64(i)
	}
	return 0
}
