// Package eventmirror publishes a copy of every routed WAMP event onto
// a NATS subject for out-of-band observers (dashboards, audit tails).
// It sits outside the routing correctness path: the realm runs
// identically with the mirror disabled, and mirror failures are logged
// and dropped, never surfaced to WAMP peers.
package eventmirror

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wampcore/wampgo/internal/config"
	"github.com/wampcore/wampgo/pkg/router"
	"github.com/wampcore/wampgo/pkg/wampvalue"
	jsoncodec "github.com/wampcore/wampgo/pkg/wampvalue/codec/json"
)

// Mirror owns the NATS connection and implements the realm's
// EventMirror hook.
type Mirror struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// New connects to NATS per cfg. It does not check cfg.URL itself; the
// daemon skips construction when the URL is empty.
func New(cfg config.NATSConfig, logger *zap.Logger) (*Mirror, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", conn.ConnectedUrl()))
		}),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info("nats connected", zap.String("url", conn.ConnectedUrl()))
	return &Mirror{conn: conn, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Hook returns the function to install via Realm.SetEventMirror.
func (m *Mirror) Hook() router.EventMirror {
	return func(realmName, topic string, publication uint64, args []wampvalue.Value, kwargs *wampvalue.Object) {
		subject := fmt.Sprintf("%s.%s.%s", m.prefix, realmName, topic)
		payload, err := m.encode(topic, publication, args, kwargs)
		if err != nil {
			m.logger.Warn("event mirror encode failed", zap.String("topic", topic), zap.Error(err))
			return
		}
		if err := m.conn.Publish(subject, payload); err != nil {
			m.logger.Warn("event mirror publish failed", zap.String("subject", subject), zap.Error(err))
		}
	}
}

// encode flattens the event into a single JSON object using the wamp
// value codec, so mirrored payloads round-trip the same bytes format
// WAMP JSON peers see.
func (m *Mirror) encode(topic string, publication uint64, args []wampvalue.Value, kwargs *wampvalue.Object) ([]byte, error) {
	body := &wampvalue.Object{}
	body.Set("topic", wampvalue.String(topic))
	body.Set("publication", wampvalue.Uint(publication))
	body.Set("ts", wampvalue.String(time.Now().UTC().Format(time.RFC3339Nano)))
	if args != nil {
		body.Set("args", wampvalue.NewArray(args))
	}
	if kwargs != nil {
		body.Set("kwargs", wampvalue.NewObject(kwargs))
	}
	return jsoncodec.Encode(wampvalue.NewObject(body), jsoncodec.DefaultOptions())
}

// Close drains and closes the NATS connection.
func (m *Mirror) Close() {
	if err := m.conn.Drain(); err != nil {
		m.logger.Warn("nats drain failed", zap.Error(err))
	}
	m.conn.Close()
}
