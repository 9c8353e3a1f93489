// Package auth provides the ticket authenticator: a concrete
// implementation of the router's session-admission extension point,
// verifying JWT tickets over the WAMP ticket auth method.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wampcore/wampgo/pkg/router"
	"github.com/wampcore/wampgo/pkg/wamperr"
	"github.com/wampcore/wampgo/pkg/wampmsg"
	"github.com/wampcore/wampgo/pkg/wampvalue"
)

// Claims is the JWT payload a ticket carries.
type Claims struct {
	AuthID   string `json:"authid"`
	AuthRole string `json:"authrole"`
	jwt.RegisteredClaims
}

// TicketAuthenticator implements router.Authenticator by challenging
// every session that offers the "ticket" method and verifying the
// returned signature as an HS256 JWT. Sessions that do not offer
// "ticket" are refused.
type TicketAuthenticator struct {
	secretKey     []byte
	issuer        string
	tokenDuration time.Duration
}

// NewTicketAuthenticator builds the authenticator from a shared
// secret.
func NewTicketAuthenticator(secretKey, issuer string, tokenDuration time.Duration) *TicketAuthenticator {
	return &TicketAuthenticator{
		secretKey:     []byte(secretKey),
		issuer:        issuer,
		tokenDuration: tokenDuration,
	}
}

// IssueTicket creates a signed ticket for authid/authrole, for tests
// and provisioning tools.
func (a *TicketAuthenticator) IssueTicket(authID, authRole string) (string, error) {
	claims := &Claims{
		AuthID:   authID,
		AuthRole: authRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    a.issuer,
			Subject:   authID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secretKey)
}

// verify validates a ticket and returns its claims.
func (a *TicketAuthenticator) verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.secretKey, nil
		},
		jwt.WithIssuer(a.issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid ticket: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid ticket claims")
	}
	return claims, nil
}

// OnHello challenges sessions offering the ticket method.
func (a *TicketAuthenticator) OnHello(realm string, hello *wampmsg.Hello) router.Decision {
	if !offersTicket(hello) {
		return router.Decision{
			Kind:   router.DecideAbort,
			Reason: wamperr.URI(wamperr.CodeAuthenticationFailed),
		}
	}
	return router.Decision{
		Kind:       router.DecideChallenge,
		AuthMethod: "ticket",
		Extra:      &wampvalue.Object{},
		State:      realm,
	}
}

// OnAuthenticate verifies the ticket and admits or aborts.
func (a *TicketAuthenticator) OnAuthenticate(signature string, extra *wampvalue.Object, state any) router.Decision {
	claims, err := a.verify(signature)
	if err != nil {
		return router.Decision{
			Kind:   router.DecideAbort,
			Reason: wamperr.URI(wamperr.CodeAuthenticationFailed),
		}
	}
	return router.Decision{
		Kind:       router.DecideWelcome,
		AuthID:     claims.AuthID,
		AuthRole:   claims.AuthRole,
		AuthMethod: "ticket",
	}
}

func offersTicket(hello *wampmsg.Hello) bool {
	if hello.Details == nil {
		return false
	}
	v, ok := hello.Details.Get("authmethods")
	if !ok {
		return false
	}
	arr, ok := v.AsArray()
	if !ok {
		return false
	}
	for _, m := range arr {
		if s, ok := m.AsString(); ok && s == "ticket" {
			return true
		}
	}
	return false
}
