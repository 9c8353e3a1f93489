package rawsocket

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/wampcore/wampgo/pkg/wamperr"
)

// FrameKind is byte 0 of a post-handshake frame.
type FrameKind byte

const (
	FrameRegular FrameKind = 0
	FramePing    FrameKind = 1
	FramePong    FrameKind = 2
)

// Stream is the minimal byte-stream dependency: read/write/close,
// reporting errors through its own error type. rawsocket only needs
// the read/write/close surface; Open (dialing) is the caller's job.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// Options configures a Transport after handshake has already
// negotiated maxLength/serializer (handshake.go); Options governs
// framing-layer behavior only.
type Options struct {
	// MaxReceiveLength bounds inbound frame payloads; any larger
	// declared length is inbound_too_long.
	MaxReceiveLength uint32
	// HeartbeatInterval, if non-zero, arms the ping/pong liveness
	// timer.
	HeartbeatInterval time.Duration
}

// Callbacks groups the two inbound notifications a Transport delivers,
// both always invoked on the Transport's own serializing goroutine
// (the single read-loop goroutine below).
type Callbacks struct {
	OnRx   func(payload []byte)
	OnPong func(payload []byte)
	// OnError is invoked at most once: when the read loop exits due to
	// any transport error (including a clean stop, which reports
	// aborted), or when the heartbeat fails. A heartbeat failure
	// (unresponsive, or a ping that cannot be written) is reported from
	// the heartbeat timer's goroutine, not the read-loop goroutine.
	OnError func(err error)
}

// Transport drives the post-handshake framing, heartbeat, and bounded
// receive policy over a Stream.
type Transport struct {
	stream Stream
	opts   Options

	writeMu sync.Mutex

	stopOnce sync.Once
	failOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup

	pingMu      sync.Mutex
	outstanding []byte
	pingTimer   *time.Timer

	cb Callbacks
}

// New wraps stream with the given options. Call Start to begin the
// read loop.
func New(stream Stream, opts Options) *Transport {
	return &Transport{stream: stream, opts: opts, done: make(chan struct{})}
}

// Start begins the read loop, which delivers whole payload frames to
// cb.OnRx one at a time (no interleaving), and manages the heartbeat
// timer if configured.
func (t *Transport) Start(cb Callbacks) {
	t.cb = cb
	t.wg.Add(1)
	go t.readLoop()
	if t.opts.HeartbeatInterval > 0 {
		t.armPing()
	}
}

// Send writes a regular frame carrying payload.
func (t *Transport) Send(payload []byte) error {
	return t.writeFrame(FrameRegular, payload)
}

// sendPing writes a ping frame; used internally by the heartbeat timer.
func (t *Transport) sendPing(payload []byte) error {
	return t.writeFrame(FramePing, payload)
}

// SendPong replies to an inbound ping, echoing its payload exactly.
func (t *Transport) SendPong(payload []byte) error {
	return t.writeFrame(FramePong, payload)
}

func (t *Transport) writeFrame(kind FrameKind, payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	header := encodeFrameHeader(byte(kind), uint32(len(payload)))
	if _, err := t.stream.Write(header[:]); err != nil {
		return bad(wamperr.CodeDisconnected, "write frame header: "+err.Error())
	}
	if len(payload) > 0 {
		if _, err := t.stream.Write(payload); err != nil {
			return bad(wamperr.CodeDisconnected, "write frame payload: "+err.Error())
		}
	}
	return nil
}

// Stop closes the underlying stream and drains the read loop. Any
// outstanding operation completes with aborted.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		_ = t.stream.Close()
		t.pingMu.Lock()
		if t.pingTimer != nil {
			t.pingTimer.Stop()
		}
		t.pingMu.Unlock()
	})
	t.wg.Wait()
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	for {
		kind, payload, err := t.readFrame()
		if err != nil {
			t.fail(err)
			return
		}
		switch FrameKind(kind) {
		case FrameRegular:
			t.resetPingDeadline()
			if t.cb.OnRx != nil {
				t.cb.OnRx(payload)
			}
		case FramePing:
			t.resetPingDeadline()
			_ = t.SendPong(payload)
		case FramePong:
			t.handlePong(payload)
		default:
			t.fail(bad(wamperr.CodeBadCommand, "unknown frame kind"))
			return
		}
	}
}

func (t *Transport) readFrame() (byte, []byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(t.stream, header[:]); err != nil {
		return 0, nil, bad(wamperr.CodeDisconnected, "read frame header: "+err.Error())
	}
	length := decodeFrameLength(header)
	if t.opts.MaxReceiveLength > 0 && length > t.opts.MaxReceiveLength {
		return 0, nil, bad(wamperr.CodeInboundTooLong, "declared frame length exceeds advertised max")
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(t.stream, payload); err != nil {
			return 0, nil, bad(wamperr.CodeDisconnected, "read frame payload: "+err.Error())
		}
	}
	return header[0], payload, nil
}

func (t *Transport) fail(err error) {
	t.failOnce.Do(func() {
		select {
		case <-t.done:
			// Stop() already closed the stream; report aborted instead of
			// the raw I/O error it caused.
			if t.cb.OnError != nil {
				t.cb.OnError(bad(wamperr.CodeAborted, "transport stopped"))
			}
		default:
			if t.cb.OnError != nil {
				t.cb.OnError(err)
			}
		}
	})
}

// --- heartbeat ---------------------------------------------------------

func (t *Transport) armPing() {
	t.pingMu.Lock()
	defer t.pingMu.Unlock()
	t.pingTimer = time.AfterFunc(t.opts.HeartbeatInterval, t.onPingTimer)
}

// resetPingDeadline re-arms the interval timer on inbound regular and
// ping frames, since the heartbeat only fires after T of inbound
// silence. Pongs are handled by handlePong instead.
func (t *Transport) resetPingDeadline() {
	t.pingMu.Lock()
	defer t.pingMu.Unlock()
	if t.pingTimer == nil {
		return
	}
	t.pingTimer.Reset(t.opts.HeartbeatInterval)
}

func (t *Transport) onPingTimer() {
	select {
	case <-t.done:
		return
	default:
	}
	payload := pingPayload()
	t.pingMu.Lock()
	t.outstanding = payload
	t.pingTimer = time.AfterFunc(t.opts.HeartbeatInterval, t.onPongTimeout)
	t.pingMu.Unlock()
	if err := t.sendPing(payload); err != nil {
		t.fail(err)
	}
}

func (t *Transport) onPongTimeout() {
	select {
	case <-t.done:
		return
	default:
	}
	t.fail(bad(wamperr.CodeUnresponsive, "no matching pong within heartbeat interval"))
}

func (t *Transport) handlePong(payload []byte) {
	t.pingMu.Lock()
	expected := t.outstanding
	matched := expected != nil && bytes.Equal(expected, payload)
	if matched {
		t.outstanding = nil
		if t.pingTimer != nil {
			// Answered in time: the pong-deadline timer must not fire.
			t.pingTimer.Stop()
		}
	}
	t.pingMu.Unlock()
	if matched {
		if t.cb.OnPong != nil {
			t.cb.OnPong(payload)
		}
		t.armPing()
		return
	}
	// Arbitrary pong contents that don't match the outstanding ping
	// are treated as non-responsive: leave the pong-deadline
	// timer running rather than resetting it.
}

var pingCounter uint64

// pingPayload produces a small payload that uniquely identifies one
// outstanding ping, so a stray/old pong can never spuriously match a
// newer one.
func pingPayload() []byte {
	pingCounter++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, pingCounter)
	return buf
}
