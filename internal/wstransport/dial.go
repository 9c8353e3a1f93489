// Package wstransport adapts WebSocket connections to the byte-stream
// Stream interface pkg/rawsocket consumes, so the raw-socket
// handshake, framing, and heartbeat logic runs unchanged over
// WebSocket. The dial side wraps gorilla/websocket; the accept side
// uses gobwas/ws for frame-granular control on the router's listener.
package wstransport

import (
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ClientStream adapts a gorilla *websocket.Conn into a rawsocket.Stream.
// Each Write becomes one binary WebSocket message; Read drains binary
// messages as a contiguous byte stream.
type ClientStream struct {
	conn *websocket.Conn

	readMu  sync.Mutex
	current io.Reader

	writeMu sync.Mutex
}

// Dial opens a WebSocket connection to url and returns it as a Stream
// ready for the raw-socket handshake.
func Dial(url string, header http.Header) (*ClientStream, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &ClientStream{conn: conn}, nil
}

func (s *ClientStream) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	for {
		if s.current == nil {
			messageType, r, err := s.conn.NextReader()
			if err != nil {
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				// Text/control payloads are not part of the byte
				// stream; skip them.
				continue
			}
			s.current = r
		}
		n, err := s.current.Read(p)
		if err == io.EOF {
			s.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *ClientStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *ClientStream) Close() error {
	return s.conn.Close()
}
