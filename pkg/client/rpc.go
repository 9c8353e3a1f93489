package client

import (
	"github.com/wampcore/wampgo/pkg/peer"
	"github.com/wampcore/wampgo/pkg/uritrie"
	"github.com/wampcore/wampgo/pkg/wamperr"
	"github.com/wampcore/wampgo/pkg/wampmsg"
	"github.com/wampcore/wampgo/pkg/wampvalue"
)

// Registration is what a successful Enroll completes with; pass it
// back to Unregister.
type Registration struct {
	ID        uint64
	Procedure string
	Policy    uritrie.Policy
}

// Invocation is the callee-facing view of an inbound INVOCATION. A
// deferred handler keeps the *Invocation and completes it later with
// Yield/YieldProgress/Fail; the session tracks it in its inverse
// request table until then.
type Invocation struct {
	session *Session
	request uint64

	Registration uint64
	Details      *wampvalue.Object
	Args         []wampvalue.Value
	KwArgs       *wampvalue.Object
}

// Request returns the router's invocation request id.
func (inv *Invocation) Request() uint64 { return inv.request }

// Yield completes the invocation with a final result.
func (inv *Invocation) Yield(args []wampvalue.Value, kwargs *wampvalue.Object) error {
	inv.session.finishInvocation(inv.request)
	return inv.session.peer.Send(&wampmsg.Yield{Request: inv.request, Options: &wampvalue.Object{}, Args: args, KwArgs: kwargs})
}

// YieldProgress sends a progressive chunk; the invocation stays
// outstanding until Yield or Fail.
func (inv *Invocation) YieldProgress(args []wampvalue.Value, kwargs *wampvalue.Object) error {
	opts := &wampvalue.Object{}
	opts.Set("progress", wampvalue.Bool(true))
	return inv.session.peer.Send(&wampmsg.Yield{Request: inv.request, Options: opts, Args: args, KwArgs: kwargs})
}

// Fail completes the invocation with an application error.
func (inv *Invocation) Fail(uri string, args []wampvalue.Value, kwargs *wampvalue.Object) error {
	inv.session.finishInvocation(inv.request)
	return inv.session.peer.Send(&wampmsg.Error{
		RequestType: wampmsg.TypeInvocation,
		Request:     inv.request,
		Details:     &wampvalue.Object{},
		URI:         uri,
		Args:        args,
		KwArgs:      kwargs,
	})
}

// Outcome is what an InvocationHandler returns: a result, an error, or
// the deferment sentinel meaning the Yield/Fail will arrive later via
// the *Invocation handle.
type Outcome struct {
	kind     outcomeKind
	args     []wampvalue.Value
	kwargs   *wampvalue.Object
	errorURI string
}

type outcomeKind int

const (
	outcomeResult outcomeKind = iota
	outcomeError
	outcomeDeferred
)

// ResultOutcome yields args/kwargs back to the caller.
func ResultOutcome(args []wampvalue.Value, kwargs *wampvalue.Object) Outcome {
	return Outcome{kind: outcomeResult, args: args, kwargs: kwargs}
}

// ErrorOutcome fails the invocation with uri and an optional payload.
func ErrorOutcome(uri string, args []wampvalue.Value, kwargs *wampvalue.Object) Outcome {
	return Outcome{kind: outcomeError, errorURI: uri, args: args, kwargs: kwargs}
}

// Deferred is the deferment sentinel: the handler keeps the
// *Invocation and completes it asynchronously.
func Deferred() Outcome { return Outcome{kind: outcomeDeferred} }

// InvocationHandler services one INVOCATION on the session's Lane.
type InvocationHandler func(inv *Invocation) Outcome

// InterruptHandler services an INTERRUPT for a still-outstanding
// invocation. Returning a non-deferred Outcome completes the
// invocation; a nil InterruptHandler fails it with
// wamp.error.canceled, satisfying the requirement that a callee
// answers every Interrupt with a Yield or an Error.
type InterruptHandler func(inv *Invocation, options *wampvalue.Object) Outcome

type registration struct {
	id                uint64
	procedure         string
	policy            uritrie.Policy
	invocationHandler InvocationHandler
	interruptHandler  InterruptHandler
}

type inflightInvocation struct {
	inv *Invocation
	reg *registration
}

// EnrollAsync sends REGISTER and arms handler to complete with the
// router-assigned Registration on REGISTERED, or the router's error.
// invocationHandler runs on the session's Lane for every INVOCATION
// targeting the registration; interruptHandler (optional) runs on
// INTERRUPT.
func (s *Session) EnrollAsync(procedure string, policy uritrie.Policy, invocationHandler InvocationHandler, interruptHandler InterruptHandler, handler peer.CompletionHandler[*Registration]) error {
	id := s.peer.NextRequestID()
	msg := &wampmsg.Register{Request: id, Options: matchOption(nil, policy), Procedure: procedure}
	return s.peer.Call(id, msg, func(m wampmsg.Message, err error) {
		if err != nil {
			handler.Complete(peer.Result[*Registration]{Err: err})
			return
		}
		switch resp := m.(type) {
		case *wampmsg.Registered:
			reg := &registration{
				id:                resp.Registration,
				procedure:         procedure,
				policy:            policy,
				invocationHandler: invocationHandler,
				interruptHandler:  interruptHandler,
			}
			s.mu.Lock()
			s.regs[resp.Registration] = reg
			s.mu.Unlock()
			handler.Complete(peer.Result[*Registration]{Value: &Registration{ID: resp.Registration, Procedure: procedure, Policy: policy}})
		case *wampmsg.Error:
			handler.Complete(peer.Result[*Registration]{Err: wampError(resp.URI, resp.Details, resp.Args, resp.KwArgs)})
		default:
			handler.Complete(peer.Result[*Registration]{Err: wamperr.New(wamperr.CategoryWAMP, wamperr.CodeProtocolViolation, "unexpected response to REGISTER")})
		}
	})
}

// Enroll is EnrollAsync's synchronous convenience wrapper.
func (s *Session) Enroll(procedure string, policy uritrie.Policy, invocationHandler InvocationHandler, interruptHandler InterruptHandler) (*Registration, error) {
	h := peer.NewAwaitHandler[*Registration]()
	if err := s.EnrollAsync(procedure, policy, invocationHandler, interruptHandler, h); err != nil {
		return nil, err
	}
	r := h.Recv()
	return r.Value, r.Err
}

// UnregisterAsync sends UNREGISTER for reg and arms handler to
// complete on UNREGISTERED/Error.
func (s *Session) UnregisterAsync(reg *Registration, handler peer.CompletionHandler[struct{}]) error {
	id := s.peer.NextRequestID()
	msg := &wampmsg.Unregister{Request: id, Registration: reg.ID}
	return s.peer.Call(id, msg, func(m wampmsg.Message, err error) {
		if err != nil {
			handler.Complete(peer.Result[struct{}]{Err: err})
			return
		}
		switch resp := m.(type) {
		case *wampmsg.Unregistered:
			s.mu.Lock()
			delete(s.regs, reg.ID)
			s.mu.Unlock()
			handler.Complete(peer.Result[struct{}]{})
		case *wampmsg.Error:
			handler.Complete(peer.Result[struct{}]{Err: wampError(resp.URI, resp.Details, resp.Args, resp.KwArgs)})
		default:
			handler.Complete(peer.Result[struct{}]{Err: wamperr.New(wamperr.CategoryWAMP, wamperr.CodeProtocolViolation, "unexpected response to UNREGISTER")})
		}
	})
}

// Unregister is UnregisterAsync's synchronous convenience wrapper.
func (s *Session) Unregister(reg *Registration) error {
	h := peer.NewAwaitHandler[struct{}]()
	if err := s.UnregisterAsync(reg, h); err != nil {
		return err
	}
	return h.Recv().Err
}

// CallResult is what a completed call delivers: the final RESULT's
// details and payload.
type CallResult struct {
	Details *wampvalue.Object
	Args    []wampvalue.Value
	KwArgs  *wampvalue.Object
}

// CallOptions shape the CALL.Options dict.
type CallOptions struct {
	// TimeoutMillis, if non-zero, asks the dealer to cancel the call
	// in kill mode after that many milliseconds.
	TimeoutMillis uint64
}

func (o CallOptions) encode(progressive bool) *wampvalue.Object {
	dict := &wampvalue.Object{}
	if o.TimeoutMillis > 0 {
		dict.Set("timeout", wampvalue.Uint(o.TimeoutMillis))
	}
	if progressive {
		dict.Set("receive_progress", wampvalue.Bool(true))
	}
	return dict
}

// CallAsync sends CALL and arms handler to complete with the final
// RESULT or the dealer's error. The returned Chit cancels the call
// per its cancel mode; it is valid until the session's generation moves.
func (s *Session) CallAsync(procedure string, opts CallOptions, args []wampvalue.Value, kwargs *wampvalue.Object, handler peer.CompletionHandler[CallResult]) (*peer.Chit, error) {
	return s.callInternal(procedure, opts, args, kwargs, nil, handler)
}

// Call is CallAsync's synchronous convenience wrapper.
func (s *Session) Call(procedure string, opts CallOptions, args []wampvalue.Value, kwargs *wampvalue.Object) (CallResult, error) {
	h := peer.NewAwaitHandler[CallResult]()
	if _, err := s.CallAsync(procedure, opts, args, kwargs, h); err != nil {
		return CallResult{}, err
	}
	r := h.Recv()
	return r.Value, r.Err
}

// OngoingCallAsync issues a progressive call: chunk runs on the
// session's Lane for each RESULT carrying progress=true, and handler
// completes with the final RESULT or error.
func (s *Session) OngoingCallAsync(procedure string, opts CallOptions, args []wampvalue.Value, kwargs *wampvalue.Object, chunk func(CallResult), handler peer.CompletionHandler[CallResult]) (*peer.Chit, error) {
	return s.callInternal(procedure, opts, args, kwargs, chunk, handler)
}

func (s *Session) callInternal(procedure string, opts CallOptions, args []wampvalue.Value, kwargs *wampvalue.Object, chunk func(CallResult), handler peer.CompletionHandler[CallResult]) (*peer.Chit, error) {
	id := s.peer.NextRequestID()
	msg := &wampmsg.Call{Request: id, Options: opts.encode(chunk != nil), Procedure: procedure, Args: args, KwArgs: kwargs}
	err := s.peer.CallContinuation(id, msg, func(m wampmsg.Message, err error) bool {
		if err != nil {
			handler.Complete(peer.Result[CallResult]{Err: err})
			return true
		}
		switch resp := m.(type) {
		case *wampmsg.Result:
			res := CallResult{Details: resp.Details, Args: resp.Args, KwArgs: resp.KwArgs}
			if resp.IsProgressive() {
				if chunk != nil {
					chunk(res)
				}
				return false
			}
			handler.Complete(peer.Result[CallResult]{Value: res})
			return true
		case *wampmsg.Error:
			handler.Complete(peer.Result[CallResult]{Err: wampError(resp.URI, resp.Details, resp.Args, resp.KwArgs)})
			return true
		default:
			handler.Complete(peer.Result[CallResult]{Err: wamperr.New(wamperr.CategoryWAMP, wamperr.CodeProtocolViolation, "unexpected response to CALL")})
			return true
		}
	})
	if err != nil {
		return nil, err
	}
	return peer.NewChit(s.peer, id, wampmsg.TypeCall), nil
}

func (s *Session) finishInvocation(request uint64) {
	s.mu.Lock()
	delete(s.invocations, request)
	s.mu.Unlock()
}

func (s *Session) handleInvocation(m *wampmsg.Invocation) {
	s.mu.Lock()
	reg := s.regs[m.Registration]
	s.mu.Unlock()
	if reg == nil {
		_ = s.peer.Send(&wampmsg.Error{
			RequestType: wampmsg.TypeInvocation,
			Request:     m.Request,
			Details:     &wampvalue.Object{},
			URI:         wamperr.URI(wamperr.CodeNoSuchRegistration),
		})
		return
	}
	inv := &Invocation{
		session:      s,
		request:      m.Request,
		Registration: m.Registration,
		Details:      m.Details,
		Args:         m.Args,
		KwArgs:       m.KwArgs,
	}
	s.mu.Lock()
	s.invocations[m.Request] = &inflightInvocation{inv: inv, reg: reg}
	s.mu.Unlock()
	s.applyOutcome(inv, reg.invocationHandler(inv))
}

func (s *Session) handleInterrupt(m *wampmsg.Interrupt) {
	s.mu.Lock()
	entry := s.invocations[m.Request]
	s.mu.Unlock()
	if entry == nil {
		// Interrupt for an invocation that already yielded; the dealer
		// tolerates our silence, per the late-Cancel rule.
		return
	}
	if entry.reg.interruptHandler == nil {
		_ = entry.inv.Fail(wamperr.URI(wamperr.CodeCanceled), nil, nil)
		return
	}
	s.applyOutcome(entry.inv, entry.reg.interruptHandler(entry.inv, m.Options))
}

func (s *Session) applyOutcome(inv *Invocation, outcome Outcome) {
	switch outcome.kind {
	case outcomeResult:
		_ = inv.Yield(outcome.args, outcome.kwargs)
	case outcomeError:
		_ = inv.Fail(outcome.errorURI, outcome.args, outcome.kwargs)
	case outcomeDeferred:
		// The handler keeps the *Invocation; nothing to send yet.
	}
}
