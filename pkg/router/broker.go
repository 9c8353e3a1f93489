package router

import (
	"go.uber.org/zap"

	"github.com/wampcore/wampgo/pkg/uritrie"
	"github.com/wampcore/wampgo/pkg/wamperr"
	"github.com/wampcore/wampgo/pkg/wampmsg"
	"github.com/wampcore/wampgo/pkg/wampvalue"
)

// subGroup is one stored topic pattern: every session subscribed to
// the same (uri, policy) shares one subscription id, per WAMP's
// subscription-sharing rule. subscribers maps session id to the realm
// generation it joined at, forming a weak handle.
type subGroup struct {
	id     uint64
	key    []string
	policy uritrie.Policy

	subscribers map[uint64]uint64
}

// broker owns the per-policy topic tries and routes PUBLISH to every
// matching subscriber. Runs entirely on the realm lane.
type broker struct {
	realm *Realm

	tries map[uritrie.Policy]*uritrie.Trie[*subGroup]
	byID  map[uint64]*subGroup

	subIDs *idAllocator
	pubIDs *idAllocator
}

func newBroker(r *Realm) *broker {
	return &broker{
		realm: r,
		tries: map[uritrie.Policy]*uritrie.Trie[*subGroup]{
			uritrie.PolicyExact:    uritrie.New[*subGroup](),
			uritrie.PolicyPrefix:   uritrie.New[*subGroup](),
			uritrie.PolicyWildcard: uritrie.New[*subGroup](),
		},
		byID:   make(map[uint64]*subGroup),
		subIDs: newIDAllocator(0),
		// Publication ids are realm-global; collision-check against a
		// short history of recent ids.
		pubIDs: newIDAllocator(1024),
	}
}

func (b *broker) subscribe(sess *ServerSession, m *wampmsg.Subscribe) {
	policy := policyFromOptions(m.Options)
	if !validPatternURI(m.Topic, policy) {
		replyError(sess, wampmsg.TypeSubscribe, m.Request, wamperr.URI(wamperr.CodeInvalidURI), "invalid topic URI")
		return
	}
	if err := b.realm.authorize(ActionSubscribe, m.Topic, sess); err != nil {
		replyError(sess, wampmsg.TypeSubscribe, m.Request, authErrorURI(err), err.Error())
		return
	}
	key := uritrie.SplitURI(m.Topic)
	trie := b.tries[policy]
	group, ok := trie.Find(key)
	if !ok {
		group = &subGroup{
			id:          b.subIDs.Next(func(id uint64) bool { _, busy := b.byID[id]; return busy }),
			key:         key,
			policy:      policy,
			subscribers: make(map[uint64]uint64),
		}
		trie.Insert(key, group)
		b.byID[group.id] = group
	}
	sid := sess.ID()
	if _, dup := group.subscribers[sid]; dup {
		replyError(sess, wampmsg.TypeSubscribe, m.Request, wamperr.URI(wamperr.CodeProtocolViolation), "duplicate subscription for (topic, policy, session)")
		return
	}
	entry, ok := b.realm.sessions[sid]
	if !ok {
		return
	}
	group.subscribers[sid] = entry.gen
	sess.send(&wampmsg.Subscribed{Request: m.Request, Subscription: group.id})
	b.realm.log.Debug("subscribed",
		zap.Uint64("session", sid),
		zap.String("topic", m.Topic),
		zap.String("policy", policy.String()),
		zap.Uint64("subscription", group.id))
}

func (b *broker) unsubscribe(sess *ServerSession, m *wampmsg.Unsubscribe) {
	group, ok := b.byID[m.Subscription]
	sid := sess.ID()
	if !ok {
		replyError(sess, wampmsg.TypeUnsubscribe, m.Request, wamperr.URI(wamperr.CodeNoSuchSubscription), "")
		return
	}
	if _, member := group.subscribers[sid]; !member {
		replyError(sess, wampmsg.TypeUnsubscribe, m.Request, wamperr.URI(wamperr.CodeNoSuchSubscription), "")
		return
	}
	delete(group.subscribers, sid)
	if len(group.subscribers) == 0 {
		b.tries[group.policy].Erase(group.key)
		delete(b.byID, group.id)
	}
	sess.send(&wampmsg.Unsubscribed{Request: m.Request})
}

func (b *broker) publish(sess *ServerSession, m *wampmsg.Publish) {
	ack := boolOption(m.Options, "acknowledge", false)
	if !validTopicURI(m.Topic) {
		if ack {
			replyError(sess, wampmsg.TypePublish, m.Request, wamperr.URI(wamperr.CodeInvalidURI), "invalid topic URI")
		}
		return
	}
	if err := b.realm.authorize(ActionPublish, m.Topic, sess); err != nil {
		if ack {
			replyError(sess, wampmsg.TypePublish, m.Request, authErrorURI(err), err.Error())
		}
		return
	}

	if b.realm.stats.PublishReceived != nil {
		b.realm.stats.PublishReceived()
	}
	publication := b.pubIDs.Next(nil)
	excludeMe := boolOption(m.Options, "exclude_me", true)
	excluded := idSetOption(m.Options, "exclude")
	eligible := idSetOption(m.Options, "eligible")
	publisher := sess.ID()

	for _, policy := range []uritrie.Policy{uritrie.PolicyExact, uritrie.PolicyPrefix, uritrie.PolicyWildcard} {
		for _, match := range b.tries[policy].Match(uritrie.SplitURI(m.Topic), policy) {
			group := match.Value
			details := &wampvalue.Object{}
			switch policy {
			case uritrie.PolicyPrefix, uritrie.PolicyWildcard:
				details.Set("topic", wampvalue.String(m.Topic))
			}
			if b.realm.policy.DisclosePublisher || boolOption(m.Options, "disclose_me", false) {
				details.Set("publisher", wampvalue.Uint(publisher))
			}
			for sid, gen := range group.subscribers {
				if sid == publisher && excludeMe {
					continue
				}
				if _, out := excluded[sid]; out {
					continue
				}
				if eligible != nil {
					if _, in := eligible[sid]; !in {
						continue
					}
				}
				target := b.realm.lookup(SessionHandle{ID: sid, Gen: gen})
				if target == nil {
					continue
				}
				target.send(&wampmsg.Event{
					Subscription: group.id,
					Publication:  publication,
					Details:      details,
					Args:         m.Args,
					KwArgs:       m.KwArgs,
				})
				if b.realm.stats.EventDelivered != nil {
					b.realm.stats.EventDelivered()
				}
			}
		}
	}

	if ack {
		sess.send(&wampmsg.Published{Request: m.Request, Publication: publication})
	}
	if b.realm.mirror != nil {
		b.realm.mirror(b.realm.name, m.Topic, publication, m.Args, m.KwArgs)
	}
}

// removeSession drops every subscription held by id, pruning emptied
// groups from the trie.
func (b *broker) removeSession(id uint64) {
	for subID, group := range b.byID {
		if _, member := group.subscribers[id]; !member {
			continue
		}
		delete(group.subscribers, id)
		if len(group.subscribers) == 0 {
			b.tries[group.policy].Erase(group.key)
			delete(b.byID, subID)
		}
	}
}

func boolOption(o *wampvalue.Object, key string, def bool) bool {
	if o == nil {
		return def
	}
	v, ok := o.Get(key)
	if !ok {
		return def
	}
	b, ok := v.AsBool()
	if !ok {
		return def
	}
	return b
}

func idSetOption(o *wampvalue.Object, key string) map[uint64]struct{} {
	if o == nil {
		return nil
	}
	v, ok := o.Get(key)
	if !ok {
		return nil
	}
	arr, ok := v.AsArray()
	if !ok {
		return nil
	}
	set := make(map[uint64]struct{}, len(arr))
	for _, item := range arr {
		if u, ok := item.AsUint(); ok {
			set[u] = struct{}{}
		} else if i, ok := item.AsInt(); ok && i > 0 {
			set[uint64(i)] = struct{}{}
		}
	}
	return set
}

// authErrorURI maps an Authorizer refusal to its wire URI, defaulting
// to wamp.error.not_authorized for plain errors.
func authErrorURI(err error) string {
	if e, ok := err.(*wamperr.Error); ok && e.URI != "" {
		return e.URI
	}
	return wamperr.URI(wamperr.CodeNotAuthorized)
}
