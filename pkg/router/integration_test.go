package router_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wampcore/wampgo/pkg/client"
	"github.com/wampcore/wampgo/pkg/peer"
	"github.com/wampcore/wampgo/pkg/router"
	"github.com/wampcore/wampgo/pkg/uritrie"
	"github.com/wampcore/wampgo/pkg/wamperr"
	"github.com/wampcore/wampgo/pkg/wampvalue"
)

const testRealm = "test"

func newRouter(t *testing.T) *router.Router {
	t.Helper()
	rtr := router.New(router.Options{})
	rtr.AddRealm(testRealm)
	t.Cleanup(rtr.Close)
	return rtr
}

func joinedSession(t *testing.T, rtr *router.Router) *client.Session {
	t.Helper()
	s := client.Local(rtr, nil)
	t.Cleanup(s.Close)
	_, err := s.Join(testRealm, nil)
	require.NoError(t, err)
	return s
}

func TestJoinWelcomeDetails(t *testing.T) {
	rtr := newRouter(t)
	s := client.Local(rtr, nil)
	defer s.Close()

	info, err := s.Join(testRealm, nil)
	require.NoError(t, err)
	assert.NotZero(t, info.SessionID)
	roles, ok := info.Details.Get("roles")
	require.True(t, ok)
	rolesObj, ok := roles.AsObject()
	require.True(t, ok)
	_, hasBroker := rolesObj.Get("broker")
	_, hasDealer := rolesObj.Get("dealer")
	assert.True(t, hasBroker)
	assert.True(t, hasDealer)
}

func TestJoinUnknownRealm(t *testing.T) {
	rtr := newRouter(t)
	s := client.Local(rtr, nil)
	defer s.Close()

	_, err := s.Join("does.not.exist", nil)
	require.Error(t, err)
	assert.True(t, wamperr.Is(err, wamperr.CodeNoSuchRealm), "got %v", err)
}

func TestAutoCreateRealm(t *testing.T) {
	rtr := router.New(router.Options{AutoCreateRealms: true})
	defer rtr.Close()
	s := client.Local(rtr, nil)
	defer s.Close()

	_, err := s.Join("fresh.realm", nil)
	require.NoError(t, err)
	realm, ok := rtr.Realm("fresh.realm")
	require.True(t, ok)
	assert.Equal(t, 1, realm.SessionCount())
}

func TestLeaveGoodbye(t *testing.T) {
	rtr := newRouter(t)
	s := joinedSession(t, rtr)

	reason, err := s.Leave("wamp.error.close_realm")
	require.NoError(t, err)
	assert.Equal(t, "wamp.error.goodbye_and_out", reason)

	realm, _ := rtr.Realm(testRealm)
	require.Eventually(t, func() bool { return realm.SessionCount() == 0 },
		time.Second, 10*time.Millisecond, "session not purged after leave")
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	rtr := newRouter(t)
	sub := joinedSession(t, rtr)
	pub := joinedSession(t, rtr)

	events := make(chan *client.Event, 4)
	subscription, err := sub.Subscribe("news.sports", uritrie.PolicyExact, func(ev *client.Event) {
		events <- ev
	})
	require.NoError(t, err)
	require.NotZero(t, subscription.ID)

	pubID, err := pub.Publish("news.sports", client.PublishOptions{Acknowledge: true},
		[]wampvalue.Value{wampvalue.String("goal")}, nil)
	require.NoError(t, err)
	require.NotZero(t, pubID)

	select {
	case ev := <-events:
		assert.Equal(t, subscription.ID, ev.Subscription)
		assert.Equal(t, pubID, ev.Publication)
		require.Len(t, ev.Args, 1)
		assert.True(t, ev.Args[0].Equal(wampvalue.String("goal")))
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	require.NoError(t, sub.Unsubscribe(subscription))
	_, err = pub.Publish("news.sports", client.PublishOptions{Acknowledge: true}, nil, nil)
	require.NoError(t, err)
	select {
	case <-events:
		t.Fatal("event delivered after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPatternSubscriptions(t *testing.T) {
	rtr := newRouter(t)
	sub := joinedSession(t, rtr)
	pub := joinedSession(t, rtr)

	got := make(chan string, 8)
	_, err := sub.Subscribe("news", uritrie.PolicyPrefix, func(ev *client.Event) {
		got <- "prefix"
	})
	require.NoError(t, err)
	_, err = sub.Subscribe("news..update", uritrie.PolicyWildcard, func(ev *client.Event) {
		got <- "wildcard"
	})
	require.NoError(t, err)

	_, err = pub.Publish("news.tech.update", client.PublishOptions{Acknowledge: true}, nil, nil)
	require.NoError(t, err)

	received := map[string]int{}
	for i := 0; i < 2; i++ {
		select {
		case kind := <-got:
			received[kind]++
		case <-time.After(time.Second):
			t.Fatalf("only %d of 2 pattern events arrived", i)
		}
	}
	assert.Equal(t, map[string]int{"prefix": 1, "wildcard": 1}, received)
}

func TestPublisherExclusion(t *testing.T) {
	rtr := newRouter(t)
	s := joinedSession(t, rtr)

	events := make(chan *client.Event, 2)
	_, err := s.Subscribe("loop.topic", uritrie.PolicyExact, func(ev *client.Event) { events <- ev })
	require.NoError(t, err)

	// Default: the publisher does not hear its own event.
	_, err = s.Publish("loop.topic", client.PublishOptions{Acknowledge: true}, nil, nil)
	require.NoError(t, err)
	select {
	case <-events:
		t.Fatal("publisher received own event despite default exclusion")
	case <-time.After(100 * time.Millisecond):
	}

	// exclude_me=false opts back in.
	excludeMe := false
	_, err = s.Publish("loop.topic", client.PublishOptions{Acknowledge: true, ExcludeMe: &excludeMe}, nil, nil)
	require.NoError(t, err)
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("exclude_me=false did not deliver to publisher")
	}
}

func TestEventOrderingPerSubscriber(t *testing.T) {
	rtr := newRouter(t)
	sub := joinedSession(t, rtr)
	pub := joinedSession(t, rtr)

	const n = 50
	got := make(chan int64, n)
	_, err := sub.Subscribe("seq", uritrie.PolicyExact, func(ev *client.Event) {
		// CBOR decodes non-negative integers as Uint; FromVariant
		// accepts either integer kind.
		var v int64
		_ = wampvalue.FromVariant(ev.Args[0], &v)
		got <- v
	})
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		_, err := pub.Publish("seq", client.PublishOptions{}, []wampvalue.Value{wampvalue.Int(int64(i))}, nil)
		require.NoError(t, err)
	}

	for i := 0; i < n; i++ {
		select {
		case v := <-got:
			require.Equal(t, int64(i), v, "events out of order")
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d events arrived", i, n)
		}
	}
}

func TestDuplicateSubscriptionRefused(t *testing.T) {
	rtr := newRouter(t)
	s := joinedSession(t, rtr)

	_, err := s.Subscribe("dup.topic", uritrie.PolicyExact, func(*client.Event) {})
	require.NoError(t, err)
	_, err = s.Subscribe("dup.topic", uritrie.PolicyExact, func(*client.Event) {})
	require.Error(t, err)
	assert.True(t, wamperr.Is(err, wamperr.CodeProtocolViolation), "got %v", err)
}

func TestCallRoundTrip(t *testing.T) {
	rtr := newRouter(t)
	callee := joinedSession(t, rtr)
	caller := joinedSession(t, rtr)

	_, err := callee.Enroll("math.add", uritrie.PolicyExact, func(inv *client.Invocation) client.Outcome {
		var a, b int64
		_ = wampvalue.FromVariant(inv.Args[0], &a)
		_ = wampvalue.FromVariant(inv.Args[1], &b)
		return client.ResultOutcome([]wampvalue.Value{wampvalue.Int(a + b)}, nil)
	}, nil)
	require.NoError(t, err)

	res, err := caller.Call("math.add", client.CallOptions{},
		[]wampvalue.Value{wampvalue.Int(2), wampvalue.Int(3)}, nil)
	require.NoError(t, err)
	require.Len(t, res.Args, 1)
	assert.True(t, res.Args[0].Equal(wampvalue.Int(5)))
}

func TestCallNoSuchProcedure(t *testing.T) {
	rtr := newRouter(t)
	caller := joinedSession(t, rtr)

	_, err := caller.Call("missing.proc", client.CallOptions{}, nil, nil)
	require.Error(t, err)
	assert.True(t, wamperr.Is(err, wamperr.CodeNoSuchProcedure), "got %v", err)
}

func TestDuplicateRegistrationRefused(t *testing.T) {
	rtr := newRouter(t)
	a := joinedSession(t, rtr)
	b := joinedSession(t, rtr)

	_, err := a.Enroll("solo.proc", uritrie.PolicyExact, func(*client.Invocation) client.Outcome {
		return client.ResultOutcome(nil, nil)
	}, nil)
	require.NoError(t, err)

	_, err = b.Enroll("solo.proc", uritrie.PolicyExact, func(*client.Invocation) client.Outcome {
		return client.ResultOutcome(nil, nil)
	}, nil)
	require.Error(t, err)
	assert.True(t, wamperr.Is(err, wamperr.CodeProcedureAlreadyExists), "got %v", err)
}

func TestUnregisterRemovesProcedure(t *testing.T) {
	rtr := newRouter(t)
	callee := joinedSession(t, rtr)
	caller := joinedSession(t, rtr)

	reg, err := callee.Enroll("temp.proc", uritrie.PolicyExact, func(*client.Invocation) client.Outcome {
		return client.ResultOutcome(nil, nil)
	}, nil)
	require.NoError(t, err)
	require.NoError(t, callee.Unregister(reg))

	_, err = caller.Call("temp.proc", client.CallOptions{}, nil, nil)
	require.Error(t, err)
	assert.True(t, wamperr.Is(err, wamperr.CodeNoSuchProcedure))
}

func TestPatternRegistrationDisclosesProcedure(t *testing.T) {
	rtr := newRouter(t)
	callee := joinedSession(t, rtr)
	caller := joinedSession(t, rtr)

	procedures := make(chan string, 1)
	_, err := callee.Enroll("api", uritrie.PolicyPrefix, func(inv *client.Invocation) client.Outcome {
		v, _ := inv.Details.Get("procedure")
		s, _ := v.AsString()
		procedures <- s
		return client.ResultOutcome(nil, nil)
	}, nil)
	require.NoError(t, err)

	_, err = caller.Call("api.users.list", client.CallOptions{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "api.users.list", <-procedures)
}

func TestProgressiveResults(t *testing.T) {
	rtr := newRouter(t)
	callee := joinedSession(t, rtr)
	caller := joinedSession(t, rtr)

	_, err := callee.Enroll("stream.numbers", uritrie.PolicyExact, func(inv *client.Invocation) client.Outcome {
		go func() {
			for i := int64(1); i <= 3; i++ {
				_ = inv.YieldProgress([]wampvalue.Value{wampvalue.Int(i)}, nil)
			}
			_ = inv.Yield([]wampvalue.Value{wampvalue.Int(0)}, nil)
		}()
		return client.Deferred()
	}, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var chunks []int64
	h := peer.NewAwaitHandler[client.CallResult]()
	_, err = caller.OngoingCallAsync("stream.numbers", client.CallOptions{}, nil, nil, func(r client.CallResult) {
		var v int64
		_ = wampvalue.FromVariant(r.Args[0], &v)
		mu.Lock()
		chunks = append(chunks, v)
		mu.Unlock()
	}, h)
	require.NoError(t, err)

	final := h.Recv()
	require.NoError(t, final.Err)
	require.Len(t, final.Value.Args, 1)
	assert.True(t, final.Value.Args[0].Equal(wampvalue.Int(0)))
	mu.Lock()
	assert.Equal(t, []int64{1, 2, 3}, chunks)
	mu.Unlock()
}

func TestCancelKill(t *testing.T) {
	rtr := newRouter(t)
	callee := joinedSession(t, rtr)
	caller := joinedSession(t, rtr)

	invoked := make(chan uint64, 1)
	interrupted := make(chan uint64, 2)
	_, err := callee.Enroll("hang.forever", uritrie.PolicyExact,
		func(inv *client.Invocation) client.Outcome {
			invoked <- inv.Request()
			return client.Deferred()
		},
		func(inv *client.Invocation, options *wampvalue.Object) client.Outcome {
			interrupted <- inv.Request()
			return client.ErrorOutcome("wamp.error.canceled", nil, nil)
		})
	require.NoError(t, err)

	h := peer.NewAwaitHandler[client.CallResult]()
	chit, err := caller.CallAsync("hang.forever", client.CallOptions{}, nil, nil, h)
	require.NoError(t, err)

	var invocationID uint64
	select {
	case invocationID = <-invoked:
	case <-time.After(time.Second):
		t.Fatal("callee never invoked")
	}

	require.True(t, chit.Cancel(peer.CancelKill))
	result := h.Recv()
	require.Error(t, result.Err)
	assert.True(t, wamperr.Is(result.Err, wamperr.CodeCanceled), "got %v", result.Err)

	select {
	case id := <-interrupted:
		assert.Equal(t, invocationID, id, "interrupt targeted a different invocation")
	case <-time.After(time.Second):
		t.Fatal("callee never saw the interrupt")
	}
	select {
	case <-interrupted:
		t.Fatal("callee interrupted more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCallerTimeouts(t *testing.T) {
	rtr := newRouter(t)
	callee := joinedSession(t, rtr)
	caller := joinedSession(t, rtr)

	var mu sync.Mutex
	var interruptedInputs []int64
	_, err := callee.Enroll("slow.echo", uritrie.PolicyExact,
		func(inv *client.Invocation) client.Outcome {
			args := inv.Args
			go func() {
				time.Sleep(350 * time.Millisecond)
				_ = inv.Yield(args, nil)
			}()
			return client.Deferred()
		},
		func(inv *client.Invocation, options *wampvalue.Object) client.Outcome {
			var v int64
			_ = wampvalue.FromVariant(inv.Args[0], &v)
			mu.Lock()
			interruptedInputs = append(interruptedInputs, v)
			mu.Unlock()
			return client.ErrorOutcome("wamp.error.canceled", nil, nil)
		})
	require.NoError(t, err)

	h1 := peer.NewAwaitHandler[client.CallResult]()
	h2 := peer.NewAwaitHandler[client.CallResult]()
	h3 := peer.NewAwaitHandler[client.CallResult]()
	_, err = caller.CallAsync("slow.echo", client.CallOptions{TimeoutMillis: 200}, []wampvalue.Value{wampvalue.Int(1)}, nil, h1)
	require.NoError(t, err)
	_, err = caller.CallAsync("slow.echo", client.CallOptions{TimeoutMillis: 100}, []wampvalue.Value{wampvalue.Int(2)}, nil, h2)
	require.NoError(t, err)
	_, err = caller.CallAsync("slow.echo", client.CallOptions{}, []wampvalue.Value{wampvalue.Int(3)}, nil, h3)
	require.NoError(t, err)

	r1 := h1.Recv()
	r2 := h2.Recv()
	r3 := h3.Recv()

	require.Error(t, r1.Err)
	assert.True(t, wamperr.Is(r1.Err, wamperr.CodeCanceled), "call 1: got %v", r1.Err)
	require.Error(t, r2.Err)
	assert.True(t, wamperr.Is(r2.Err, wamperr.CodeCanceled), "call 2: got %v", r2.Err)
	require.NoError(t, r3.Err)
	require.Len(t, r3.Value.Args, 1)
	assert.True(t, r3.Value.Args[0].Equal(wampvalue.Int(3)))

	// Interrupts hit the shorter timeout first.
	mu.Lock()
	assert.Equal(t, []int64{2, 1}, interruptedInputs)
	mu.Unlock()
}

func TestCalleeLeaveCancelsInflight(t *testing.T) {
	rtr := newRouter(t)
	callee := joinedSession(t, rtr)
	caller := joinedSession(t, rtr)

	invoked := make(chan struct{}, 1)
	_, err := callee.Enroll("doomed.proc", uritrie.PolicyExact, func(inv *client.Invocation) client.Outcome {
		invoked <- struct{}{}
		return client.Deferred()
	}, nil)
	require.NoError(t, err)

	h := peer.NewAwaitHandler[client.CallResult]()
	_, err = caller.CallAsync("doomed.proc", client.CallOptions{}, nil, nil, h)
	require.NoError(t, err)
	<-invoked

	callee.Close()

	result := h.Recv()
	require.Error(t, result.Err)
	assert.True(t, wamperr.Is(result.Err, wamperr.CodeCanceled), "got %v", result.Err)
}

func TestSessionLeavePurgesIndexes(t *testing.T) {
	rtr := newRouter(t)
	sub := joinedSession(t, rtr)
	pub := joinedSession(t, rtr)

	delivered := make(chan *client.Event, 2)
	_, err := sub.Subscribe("purge.topic", uritrie.PolicyExact, func(ev *client.Event) { delivered <- ev })
	require.NoError(t, err)
	_, err = sub.Enroll("purge.proc", uritrie.PolicyExact, func(*client.Invocation) client.Outcome {
		return client.ResultOutcome(nil, nil)
	}, nil)
	require.NoError(t, err)

	_, err = sub.Leave("wamp.error.close_realm")
	require.NoError(t, err)

	realm, _ := rtr.Realm(testRealm)
	require.Eventually(t, func() bool { return realm.SessionCount() == 1 },
		time.Second, 10*time.Millisecond)

	// The subscription is gone: publishing reaches nobody.
	_, err = pub.Publish("purge.topic", client.PublishOptions{Acknowledge: true}, nil, nil)
	require.NoError(t, err)
	select {
	case <-delivered:
		t.Fatal("event delivered to a departed session")
	case <-time.After(100 * time.Millisecond):
	}

	// The registration is gone too.
	_, err = pub.Call("purge.proc", client.CallOptions{}, nil, nil)
	require.Error(t, err)
	assert.True(t, wamperr.Is(err, wamperr.CodeNoSuchProcedure))
}

func TestAuthorizerVeto(t *testing.T) {
	rtr := newRouter(t)
	realm, _ := rtr.Realm(testRealm)
	realm.SetAuthorizer(router.AuthorizerFunc(func(action router.Action, uri string, session router.SessionInfo) error {
		if uri == "secret.topic" {
			return wamperr.New(wamperr.CategoryWAMP, wamperr.CodeNotAuthorized, "forbidden")
		}
		return nil
	}))

	s := joinedSession(t, rtr)
	_, err := s.Subscribe("secret.topic", uritrie.PolicyExact, func(*client.Event) {})
	require.Error(t, err)
	assert.True(t, wamperr.Is(err, wamperr.CodeNotAuthorized), "got %v", err)

	// The session survives the veto and can keep working.
	_, err = s.Subscribe("open.topic", uritrie.PolicyExact, func(*client.Event) {})
	require.NoError(t, err)
}

func TestInvalidTopicURI(t *testing.T) {
	rtr := newRouter(t)
	s := joinedSession(t, rtr)

	_, err := s.Subscribe("bad..uri", uritrie.PolicyExact, func(*client.Event) {})
	require.Error(t, err)
	assert.True(t, wamperr.Is(err, wamperr.CodeInvalidURI), "got %v", err)
}
