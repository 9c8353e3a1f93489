package wstransport

import (
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ServerStream adapts an upgraded server-side WebSocket (a plain
// net.Conn plus gobwas frame helpers) into a rawsocket.Stream.
type ServerStream struct {
	conn net.Conn

	readMu sync.Mutex
	buf    []byte

	writeMu sync.Mutex
}

// Upgrade performs the WebSocket upgrade on an HTTP request and
// returns the connection as a Stream ready for the raw-socket
// handshake.
func Upgrade(w http.ResponseWriter, r *http.Request) (*ServerStream, error) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, err
	}
	return &ServerStream{conn: conn}, nil
}

// Accept upgrades a raw TCP connection that has not passed through an
// http.Server, for listeners that speak WebSocket directly.
func Accept(conn net.Conn) (*ServerStream, error) {
	if _, err := ws.Upgrade(conn); err != nil {
		return nil, err
	}
	return &ServerStream{conn: conn}, nil
}

func (s *ServerStream) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	for len(s.buf) == 0 {
		msg, err := wsutil.ReadClientBinary(s.conn)
		if err != nil {
			return 0, err
		}
		s.buf = msg
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *ServerStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := wsutil.WriteServerBinary(s.conn, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *ServerStream) Close() error {
	return s.conn.Close()
}
