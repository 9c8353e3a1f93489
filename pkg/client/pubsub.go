package client

import (
	"github.com/wampcore/wampgo/pkg/peer"
	"github.com/wampcore/wampgo/pkg/uritrie"
	"github.com/wampcore/wampgo/pkg/wamperr"
	"github.com/wampcore/wampgo/pkg/wampmsg"
	"github.com/wampcore/wampgo/pkg/wampvalue"
)

// EventHandler receives one inbound EVENT for a subscription, invoked
// on the session's Lane.
type EventHandler func(ev *Event)

// Event is the subscriber-facing view of an inbound EVENT message.
type Event struct {
	Subscription uint64
	Publication  uint64
	Details      *wampvalue.Object
	Args         []wampvalue.Value
	KwArgs       *wampvalue.Object
}

// Subscription is what a successful Subscribe completes with; pass it
// back to Unsubscribe.
type Subscription struct {
	ID     uint64
	Topic  string
	Policy uritrie.Policy
}

type subscription struct {
	id      uint64
	topic   string
	policy  uritrie.Policy
	handler EventHandler
}

// matchOption translates a uritrie.Policy into the Options "match"
// entry WAMP routers understand; exact is the default and is omitted.
func matchOption(o *wampvalue.Object, policy uritrie.Policy) *wampvalue.Object {
	if o == nil {
		o = &wampvalue.Object{}
	}
	switch policy {
	case uritrie.PolicyPrefix, uritrie.PolicyWildcard:
		o.Set("match", wampvalue.String(policy.String()))
	}
	return o
}

// SubscribeAsync sends SUBSCRIBE and arms handler to complete with the
// router-assigned Subscription on SUBSCRIBED, or the router's error.
// eventHandler runs on the session's Lane for every matching EVENT
// until Unsubscribe.
func (s *Session) SubscribeAsync(topic string, policy uritrie.Policy, eventHandler EventHandler, handler peer.CompletionHandler[*Subscription]) error {
	id := s.peer.NextRequestID()
	msg := &wampmsg.Subscribe{Request: id, Options: matchOption(nil, policy), Topic: topic}
	return s.peer.Call(id, msg, func(m wampmsg.Message, err error) {
		if err != nil {
			handler.Complete(peer.Result[*Subscription]{Err: err})
			return
		}
		switch resp := m.(type) {
		case *wampmsg.Subscribed:
			sub := &subscription{id: resp.Subscription, topic: topic, policy: policy, handler: eventHandler}
			s.mu.Lock()
			s.subs[resp.Subscription] = sub
			s.mu.Unlock()
			handler.Complete(peer.Result[*Subscription]{Value: &Subscription{ID: resp.Subscription, Topic: topic, Policy: policy}})
		case *wampmsg.Error:
			handler.Complete(peer.Result[*Subscription]{Err: wampError(resp.URI, resp.Details, resp.Args, resp.KwArgs)})
		default:
			handler.Complete(peer.Result[*Subscription]{Err: wamperr.New(wamperr.CategoryWAMP, wamperr.CodeProtocolViolation, "unexpected response to SUBSCRIBE")})
		}
	})
}

// Subscribe is SubscribeAsync's synchronous convenience wrapper.
func (s *Session) Subscribe(topic string, policy uritrie.Policy, eventHandler EventHandler) (*Subscription, error) {
	h := peer.NewAwaitHandler[*Subscription]()
	if err := s.SubscribeAsync(topic, policy, eventHandler, h); err != nil {
		return nil, err
	}
	r := h.Recv()
	return r.Value, r.Err
}

// UnsubscribeAsync sends UNSUBSCRIBE for sub and arms handler to
// complete on UNSUBSCRIBED/Error. The event handler stops receiving as
// soon as the local entry is dropped, which happens on the
// acknowledgement, not on send.
func (s *Session) UnsubscribeAsync(sub *Subscription, handler peer.CompletionHandler[struct{}]) error {
	id := s.peer.NextRequestID()
	msg := &wampmsg.Unsubscribe{Request: id, Subscription: sub.ID}
	return s.peer.Call(id, msg, func(m wampmsg.Message, err error) {
		if err != nil {
			handler.Complete(peer.Result[struct{}]{Err: err})
			return
		}
		switch resp := m.(type) {
		case *wampmsg.Unsubscribed:
			s.mu.Lock()
			delete(s.subs, sub.ID)
			s.mu.Unlock()
			handler.Complete(peer.Result[struct{}]{})
		case *wampmsg.Error:
			handler.Complete(peer.Result[struct{}]{Err: wampError(resp.URI, resp.Details, resp.Args, resp.KwArgs)})
		default:
			handler.Complete(peer.Result[struct{}]{Err: wamperr.New(wamperr.CategoryWAMP, wamperr.CodeProtocolViolation, "unexpected response to UNSUBSCRIBE")})
		}
	})
}

// Unsubscribe is UnsubscribeAsync's synchronous convenience wrapper.
func (s *Session) Unsubscribe(sub *Subscription) error {
	h := peer.NewAwaitHandler[struct{}]()
	if err := s.UnsubscribeAsync(sub, h); err != nil {
		return err
	}
	return h.Recv().Err
}

// PublishOptions shape the PUBLISH.Options dict.
type PublishOptions struct {
	// Acknowledge requests a PUBLISHED acknowledgement carrying the
	// publication id; without it the completion fires immediately
	// after the send with publication id 0.
	Acknowledge bool
	// ExcludeMe set false delivers the event back to the publisher's
	// own matching subscriptions; the router default is true.
	ExcludeMe *bool
	// Exclude/Eligible restrict the receiver set by session id.
	Exclude  []uint64
	Eligible []uint64
}

func (o PublishOptions) encode() *wampvalue.Object {
	dict := &wampvalue.Object{}
	if o.Acknowledge {
		dict.Set("acknowledge", wampvalue.Bool(true))
	}
	if o.ExcludeMe != nil {
		dict.Set("exclude_me", wampvalue.Bool(*o.ExcludeMe))
	}
	if len(o.Exclude) > 0 {
		items := make([]wampvalue.Value, len(o.Exclude))
		for i, id := range o.Exclude {
			items[i] = wampvalue.Uint(id)
		}
		dict.Set("exclude", wampvalue.NewArray(items))
	}
	if len(o.Eligible) > 0 {
		items := make([]wampvalue.Value, len(o.Eligible))
		for i, id := range o.Eligible {
			items[i] = wampvalue.Uint(id)
		}
		dict.Set("eligible", wampvalue.NewArray(items))
	}
	return dict
}

// PublishAsync sends PUBLISH. With opts.Acknowledge the completion
// carries the router's publication id from PUBLISHED; otherwise it
// fires right after the send with id 0.
func (s *Session) PublishAsync(topic string, opts PublishOptions, args []wampvalue.Value, kwargs *wampvalue.Object, handler peer.CompletionHandler[uint64]) error {
	id := s.peer.NextRequestID()
	msg := &wampmsg.Publish{Request: id, Options: opts.encode(), Topic: topic, Args: args, KwArgs: kwargs}
	if !opts.Acknowledge {
		if err := s.peer.Send(msg); err != nil {
			return err
		}
		if handler != nil {
			handler.Complete(peer.Result[uint64]{})
		}
		return nil
	}
	return s.peer.Call(id, msg, func(m wampmsg.Message, err error) {
		if err != nil {
			handler.Complete(peer.Result[uint64]{Err: err})
			return
		}
		switch resp := m.(type) {
		case *wampmsg.Published:
			handler.Complete(peer.Result[uint64]{Value: resp.Publication})
		case *wampmsg.Error:
			handler.Complete(peer.Result[uint64]{Err: wampError(resp.URI, resp.Details, resp.Args, resp.KwArgs)})
		default:
			handler.Complete(peer.Result[uint64]{Err: wamperr.New(wamperr.CategoryWAMP, wamperr.CodeProtocolViolation, "unexpected response to PUBLISH")})
		}
	})
}

// Publish is PublishAsync's synchronous convenience wrapper.
func (s *Session) Publish(topic string, opts PublishOptions, args []wampvalue.Value, kwargs *wampvalue.Object) (uint64, error) {
	h := peer.NewAwaitHandler[uint64]()
	if err := s.PublishAsync(topic, opts, args, kwargs, h); err != nil {
		return 0, err
	}
	r := h.Recv()
	return r.Value, r.Err
}

func (s *Session) handleEvent(m *wampmsg.Event) {
	s.mu.Lock()
	sub := s.subs[m.Subscription]
	s.mu.Unlock()
	if sub == nil || sub.handler == nil {
		// An event for a subscription we no longer hold can race a
		// just-sent UNSUBSCRIBE; drop it.
		return
	}
	sub.handler(&Event{
		Subscription: m.Subscription,
		Publication:  m.Publication,
		Details:      m.Details,
		Args:         m.Args,
		KwArgs:       m.KwArgs,
	})
}
