package client

import (
	"net"

	"github.com/wampcore/wampgo/pkg/peer"
	"github.com/wampcore/wampgo/pkg/rawsocket"
	"github.com/wampcore/wampgo/pkg/router"
)

// Local wires a client session to rtr over an in-process pipe: no
// listener, no raw-socket handshake, no serialization negotiation
// (both ends use CBOR). Useful for embedding procedures directly in
// the router process. The caller still drives Join/Leave as with a
// networked session.
func Local(rtr *router.Router, challenger Challenger) *Session {
	clientConn, serverConn := net.Pipe()

	serverTransport := rawsocket.New(serverConn, rawsocket.Options{})
	rtr.Attach(serverTransport, peer.CBORCodec())

	clientTransport := rawsocket.New(clientConn, rawsocket.Options{})
	p := peer.New(peer.RoleClient, clientTransport, peer.CBORCodec())
	s := New(p, challenger)
	p.Start()
	return s
}
