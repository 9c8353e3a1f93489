package wampmsg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wampcore/wampgo/pkg/wamperr"
	"github.com/wampcore/wampgo/pkg/wampmsg"
	"github.com/wampcore/wampgo/pkg/wampvalue"
)

func reencode(t *testing.T, msg wampmsg.Message) wampmsg.Message {
	t.Helper()
	decoded, err := wampmsg.Decode(msg.Encode())
	require.NoError(t, err)
	return decoded
}

func TestHelloRoundTrip(t *testing.T) {
	details := &wampvalue.Object{}
	details.Set("agent", wampvalue.String("wampgo"))
	msg := &wampmsg.Hello{Realm: "myrealm", Details: details}
	decoded := reencode(t, msg).(*wampmsg.Hello)
	assert.Equal(t, "myrealm", decoded.Realm)
	agent, _ := decoded.Details.Get("agent")
	assert.True(t, agent.Equal(wampvalue.String("wampgo")))
}

func TestCallRoundTripWithPayload(t *testing.T) {
	kwargs := &wampvalue.Object{}
	kwargs.Set("mode", wampvalue.String("fast"))
	msg := &wampmsg.Call{
		Request:   7,
		Options:   &wampvalue.Object{},
		Procedure: "com.example.add",
		Args:      []wampvalue.Value{wampvalue.Int(1), wampvalue.Int(2)},
		KwArgs:    kwargs,
	}
	decoded := reencode(t, msg).(*wampmsg.Call)
	assert.Equal(t, uint64(7), decoded.Request)
	assert.Equal(t, "com.example.add", decoded.Procedure)
	require.Len(t, decoded.Args, 2)
	assert.True(t, decoded.Args[1].Equal(wampvalue.Int(2)))
	mode, ok := decoded.KwArgs.Get("mode")
	require.True(t, ok)
	assert.True(t, mode.Equal(wampvalue.String("fast")))
}

func TestErrorRoundTrip(t *testing.T) {
	msg := &wampmsg.Error{
		RequestType: wampmsg.TypeCall,
		Request:     9,
		Details:     &wampvalue.Object{},
		URI:         "wamp.error.no_such_procedure",
		Args:        []wampvalue.Value{wampvalue.String("detail")},
	}
	decoded := reencode(t, msg).(*wampmsg.Error)
	assert.Equal(t, wampmsg.TypeCall, decoded.RequestType)
	assert.Equal(t, uint64(9), decoded.Request)
	assert.Equal(t, "wamp.error.no_such_procedure", decoded.URI)
	require.Len(t, decoded.Args, 1)
}

func TestResultProgressiveFlag(t *testing.T) {
	details := &wampvalue.Object{}
	details.Set("progress", wampvalue.Bool(true))
	progressive := &wampmsg.Result{Request: 1, Details: details}
	assert.True(t, progressive.IsProgressive())

	final := &wampmsg.Result{Request: 1, Details: &wampvalue.Object{}}
	assert.False(t, final.IsProgressive())
}

func TestOptionsDictAlwaysPresent(t *testing.T) {
	// A nil Options must still encode an (empty) dict in its slot, per
	// the message schema.
	msg := &wampmsg.Subscribe{Request: 3, Topic: "a.b"}
	arr, ok := msg.Encode().AsArray()
	require.True(t, ok)
	require.Len(t, arr, 4)
	_, isObj := arr[2].AsObject()
	assert.True(t, isObj)
}

func TestDecodeViolations(t *testing.T) {
	cases := []struct {
		name string
		wire wampvalue.Value
	}{
		{"not an array", wampvalue.Int(48)},
		{"empty array", wampvalue.NewArray(nil)},
		{"unknown type", wampvalue.NewArray([]wampvalue.Value{wampvalue.Int(999)})},
		{"non-integer type", wampvalue.NewArray([]wampvalue.Value{wampvalue.String("CALL")})},
		{"hello missing realm", wampvalue.NewArray([]wampvalue.Value{wampvalue.Int(1)})},
		{"call with non-string procedure", wampvalue.NewArray([]wampvalue.Value{
			wampvalue.Int(48), wampvalue.Uint(1), wampvalue.NewObject(&wampvalue.Object{}), wampvalue.Int(5),
		})},
		{"subscribe options not a dict", wampvalue.NewArray([]wampvalue.Value{
			wampvalue.Int(32), wampvalue.Uint(1), wampvalue.Int(0), wampvalue.String("a.b"),
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := wampmsg.Decode(tc.wire)
			require.Error(t, err)
			assert.True(t, wamperr.Is(err, wamperr.CodeProtocolViolation), "got %v", err)
		})
	}
}

func TestAllMessageTypesRoundTrip(t *testing.T) {
	empty := &wampvalue.Object{}
	msgs := []wampmsg.Message{
		&wampmsg.Welcome{Session: 11, Details: empty},
		&wampmsg.Abort{Details: empty, Reason: "wamp.error.no_such_realm"},
		&wampmsg.Challenge{AuthMethod: "ticket", Extra: empty},
		&wampmsg.Authenticate{Signature: "sig", Extra: empty},
		&wampmsg.Goodbye{Details: empty, Reason: "wamp.error.close_realm"},
		&wampmsg.Publish{Request: 1, Options: empty, Topic: "a.b"},
		&wampmsg.Published{Request: 1, Publication: 2},
		&wampmsg.Subscribed{Request: 1, Subscription: 2},
		&wampmsg.Unsubscribe{Request: 1, Subscription: 2},
		&wampmsg.Unsubscribed{Request: 1},
		&wampmsg.Event{Subscription: 1, Publication: 2, Details: empty},
		&wampmsg.Cancel{Request: 1, Options: empty},
		&wampmsg.Register{Request: 1, Options: empty, Procedure: "p.q"},
		&wampmsg.Registered{Request: 1, Registration: 2},
		&wampmsg.Unregister{Request: 1, Registration: 2},
		&wampmsg.Unregistered{Request: 1},
		&wampmsg.Invocation{Request: 1, Registration: 2, Details: empty},
		&wampmsg.Interrupt{Request: 1, Options: empty},
		&wampmsg.Yield{Request: 1, Options: empty},
	}
	for _, msg := range msgs {
		decoded := reencode(t, msg)
		assert.Equal(t, msg.Type(), decoded.Type())
	}
}
