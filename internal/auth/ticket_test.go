package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wampcore/wampgo/internal/auth"
	"github.com/wampcore/wampgo/pkg/client"
	"github.com/wampcore/wampgo/pkg/router"
	"github.com/wampcore/wampgo/pkg/wamperr"
	"github.com/wampcore/wampgo/pkg/wampmsg"
	"github.com/wampcore/wampgo/pkg/wampvalue"
)

const secret = "test-secret"

func helloWithTicket() *wampmsg.Hello {
	details := &wampvalue.Object{}
	details.Set("authmethods", wampvalue.NewArray([]wampvalue.Value{wampvalue.String("ticket")}))
	return &wampmsg.Hello{Realm: "test", Details: details}
}

func TestChallengeOnHello(t *testing.T) {
	a := auth.NewTicketAuthenticator(secret, "issuer", time.Hour)
	decision := a.OnHello("test", helloWithTicket())
	assert.Equal(t, router.DecideChallenge, decision.Kind)
	assert.Equal(t, "ticket", decision.AuthMethod)
}

func TestAbortWithoutTicketMethod(t *testing.T) {
	a := auth.NewTicketAuthenticator(secret, "issuer", time.Hour)
	decision := a.OnHello("test", &wampmsg.Hello{Realm: "test"})
	assert.Equal(t, router.DecideAbort, decision.Kind)
	assert.Equal(t, "wamp.error.authentication_failed", decision.Reason)
}

func TestTicketRoundTrip(t *testing.T) {
	a := auth.NewTicketAuthenticator(secret, "issuer", time.Hour)
	ticket, err := a.IssueTicket("alice", "admin")
	require.NoError(t, err)

	decision := a.OnAuthenticate(ticket, nil, "test")
	require.Equal(t, router.DecideWelcome, decision.Kind)
	assert.Equal(t, "alice", decision.AuthID)
	assert.Equal(t, "admin", decision.AuthRole)
}

func TestBadTicketAborts(t *testing.T) {
	a := auth.NewTicketAuthenticator(secret, "issuer", time.Hour)
	decision := a.OnAuthenticate("not-a-jwt", nil, "test")
	assert.Equal(t, router.DecideAbort, decision.Kind)

	// A ticket signed with a different secret is refused too.
	other := auth.NewTicketAuthenticator("other-secret", "issuer", time.Hour)
	ticket, err := other.IssueTicket("mallory", "admin")
	require.NoError(t, err)
	decision = a.OnAuthenticate(ticket, nil, "test")
	assert.Equal(t, router.DecideAbort, decision.Kind)
}

func TestExpiredTicketAborts(t *testing.T) {
	a := auth.NewTicketAuthenticator(secret, "issuer", -time.Minute)
	ticket, err := a.IssueTicket("bob", "user")
	require.NoError(t, err)
	decision := a.OnAuthenticate(ticket, nil, "test")
	assert.Equal(t, router.DecideAbort, decision.Kind)
}

func TestEndToEndTicketAuth(t *testing.T) {
	a := auth.NewTicketAuthenticator(secret, "issuer", time.Hour)
	rtr := router.New(router.Options{Authenticator: a})
	rtr.AddRealm("test")
	defer rtr.Close()

	ticket, err := a.IssueTicket("alice", "admin")
	require.NoError(t, err)

	s := client.Local(rtr, func(authMethod string, extra *wampvalue.Object) (string, *wampvalue.Object, error) {
		require.Equal(t, "ticket", authMethod)
		return ticket, nil, nil
	})
	defer s.Close()

	details := &wampvalue.Object{}
	details.Set("authmethods", wampvalue.NewArray([]wampvalue.Value{wampvalue.String("ticket")}))
	info, err := s.Join("test", details)
	require.NoError(t, err)

	authid, ok := info.Details.Get("authid")
	require.True(t, ok)
	assert.True(t, authid.Equal(wampvalue.String("alice")))
	authrole, _ := info.Details.Get("authrole")
	assert.True(t, authrole.Equal(wampvalue.String("admin")))
}

func TestEndToEndBadTicketRejected(t *testing.T) {
	a := auth.NewTicketAuthenticator(secret, "issuer", time.Hour)
	rtr := router.New(router.Options{Authenticator: a})
	rtr.AddRealm("test")
	defer rtr.Close()

	s := client.Local(rtr, func(authMethod string, extra *wampvalue.Object) (string, *wampvalue.Object, error) {
		return "garbage", nil, nil
	})
	defer s.Close()

	details := &wampvalue.Object{}
	details.Set("authmethods", wampvalue.NewArray([]wampvalue.Value{wampvalue.String("ticket")}))
	_, err := s.Join("test", details)
	require.Error(t, err)
	assert.True(t, wamperr.Is(err, wamperr.CodeAuthenticationFailed), "got %v", err)
}
