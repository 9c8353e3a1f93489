// Package server owns the router daemon's listeners: a raw-socket TCP
// listener and an optional WebSocket listener, both funneling
// handshaken connections into the router core.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wampcore/wampgo/internal/config"
	"github.com/wampcore/wampgo/internal/metrics"
	"github.com/wampcore/wampgo/internal/wstransport"
	"github.com/wampcore/wampgo/pkg/peer"
	"github.com/wampcore/wampgo/pkg/rawsocket"
	"github.com/wampcore/wampgo/pkg/router"
)

// Server accepts connections and attaches them to the router.
type Server struct {
	cfg     config.Config
	logger  *zap.Logger
	rtr     *router.Router
	metrics *metrics.Registry

	listener net.Listener
	wsServer *http.Server
	wg       sync.WaitGroup
}

// New builds a Server around an already-configured router.
func New(cfg config.Config, logger *zap.Logger, rtr *router.Router, reg *metrics.Registry) *Server {
	return &Server{cfg: cfg, logger: logger, rtr: rtr, metrics: reg}
}

// Start opens the raw-socket listener (and the WebSocket listener if
// configured) and begins accepting.
func (s *Server) Start(ctx context.Context) error {
	if s.listener != nil {
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.Router.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = ln
	s.logger.Info("raw-socket listener up", zap.String("addr", s.cfg.Router.ListenAddr))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()

	if s.cfg.Router.WebSocketAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc(s.cfg.Router.WebSocketPath, s.handleWebSocket)
		s.wsServer = &http.Server{Addr: s.cfg.Router.WebSocketAddr, Handler: mux}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.logger.Info("websocket listener up", zap.String("addr", s.cfg.Router.WebSocketAddr))
			if err := s.wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error("websocket listener failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// Stop closes the listeners and waits for accept loops to drain.
// Attached sessions are torn down by the router's own Close.
func (s *Server) Stop() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.wsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.wsServer.Shutdown(shutdownCtx)
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			s.logger.Error("accept error", zap.Error(err))
			return
		}
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.serveConn(c)
		}(conn)
	}
}

// serveConn performs the raw-socket handshake within the configured
// deadline, then hands the framed transport to the router.
func (s *Server) serveConn(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(s.cfg.Transport.HandshakeTimeout))
	maxLen, serializer, err := rawsocket.ServerHandshake(conn, s.cfg.Transport.MaxReceiveLength, func(sz rawsocket.Serializer) bool {
		_, ok := peer.CodecForSerializer(sz)
		return ok
	})
	if err != nil {
		s.metrics.Routing.HandshakeErrors.Inc()
		s.logger.Debug("handshake failed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
		_ = conn.Close()
		return
	}
	_ = conn.SetDeadline(time.Time{})
	codec, _ := peer.CodecForSerializer(serializer)
	transport := rawsocket.New(conn, rawsocket.Options{
		MaxReceiveLength:  maxLen,
		HeartbeatInterval: s.cfg.Transport.HeartbeatInterval,
	})
	s.attach(transport, codec, conn.RemoteAddr().String())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	stream, err := wstransport.Upgrade(w, r)
	if err != nil {
		s.metrics.Routing.HandshakeErrors.Inc()
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	maxLen, serializer, err := rawsocket.ServerHandshake(stream, s.cfg.Transport.MaxReceiveLength, func(sz rawsocket.Serializer) bool {
		_, ok := peer.CodecForSerializer(sz)
		return ok
	})
	if err != nil {
		s.metrics.Routing.HandshakeErrors.Inc()
		_ = stream.Close()
		return
	}
	codec, _ := peer.CodecForSerializer(serializer)
	transport := rawsocket.New(stream, rawsocket.Options{
		MaxReceiveLength:  maxLen,
		HeartbeatInterval: s.cfg.Transport.HeartbeatInterval,
	})
	s.attach(transport, codec, r.RemoteAddr)
}

func (s *Server) attach(transport *rawsocket.Transport, codec peer.Codec, remote string) {
	s.metrics.Sessions.Active.Inc()
	s.rtr.Attach(transport, codec)
	s.logger.Debug("session attached", zap.String("remote", remote), zap.Int("serializer", int(codec.Serializer())))
}
