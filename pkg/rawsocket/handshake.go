// Package rawsocket implements the WAMP raw-socket transport:
// a 4-byte handshake negotiating serializer and max-receive-length,
// followed by length-prefixed framing carrying regular/ping/pong
// frames, with per-connection heartbeat liveness and bounded receive.
//
// It is transport-agnostic: it drives any io.ReadWriteCloser-like
// Stream, so a raw TCP/Unix socket and the WebSocket byte-stream
// adapters in internal/wstransport share this same handshake/framing/
// heartbeat implementation.
package rawsocket

import (
	"encoding/binary"
	"io"

	"github.com/wampcore/wampgo/pkg/wamperr"
)

// Serializer identifies the wire codec negotiated during handshake.
type Serializer byte

const (
	SerializerJSON    Serializer = 1
	SerializerMsgPack Serializer = 2
	SerializerCBOR    Serializer = 3
)

// magic is the first handshake byte, fixed by the WAMP raw-socket
// profile.
const magic = 0x7F

// ErrorCode is the high-nibble of bytes 2-3 on a failed handshake
// response.
type ErrorCode byte

const (
	ErrorCodeOK                 ErrorCode = 0
	ErrorCodeSerializerUnsupported ErrorCode = 1
	ErrorCodeMaxLengthUnacceptable ErrorCode = 2
	ErrorCodeReservedBitsUsed      ErrorCode = 3
	ErrorCodeMaxConnections        ErrorCode = 4
)

// lengthForExponent converts the 4-bit handshake exponent n (0..15)
// into the advertised max receive length 2^(9+n): 512 B .. 16 MiB.
func lengthForExponent(n byte) uint32 {
	return uint32(1) << (9 + n)
}

// exponentForLength returns the smallest exponent whose length is >=
// want, clamped to the 0..15 range the handshake can express.
func exponentForLength(want uint32) byte {
	for n := byte(0); n <= 15; n++ {
		if lengthForExponent(n) >= want {
			return n
		}
	}
	return 15
}

// HandshakeRequest is what a client sends to open a raw-socket
// connection.
type HandshakeRequest struct {
	MaxLength  uint32
	Serializer Serializer
}

func (r HandshakeRequest) encode() [4]byte {
	n := exponentForLength(r.MaxLength)
	var frame [4]byte
	frame[0] = magic
	frame[1] = (n << 4) | byte(r.Serializer)
	return frame
}

func bad(code wamperr.Code, msg string) error {
	return wamperr.New(wamperr.CategoryTransport, code, msg)
}

// ClientHandshake sends req and reads the server's reply, returning
// the negotiated (possibly smaller) max length and serializer, or a
// transport error on any malformed or rejecting reply.
func ClientHandshake(stream io.ReadWriter, req HandshakeRequest) (maxLength uint32, serializer Serializer, err error) {
	out := req.encode()
	if _, err := stream.Write(out[:]); err != nil {
		return 0, 0, bad(wamperr.CodeBadHandshake, "write handshake request: "+err.Error())
	}
	var in [4]byte
	if _, err := io.ReadFull(stream, in[:]); err != nil {
		return 0, 0, bad(wamperr.CodeBadHandshake, "read handshake response: "+err.Error())
	}
	if in[0] != magic {
		return 0, 0, bad(wamperr.CodeBadHandshake, "bad magic byte")
	}
	if in[2] != 0 || in[3] != 0 {
		return 0, 0, bad(wamperr.CodeBadHandshake, "reserved handshake bytes non-zero")
	}
	if in[1]&0x0f == 0 {
		// A zero serializer nibble marks a failure response; the error
		// code sits in the high nibble.
		code := ErrorCode(in[1] >> 4)
		switch code {
		case ErrorCodeSerializerUnsupported:
			return 0, 0, bad(wamperr.CodeBadSerializer, "server rejected serializer")
		case ErrorCodeMaxLengthUnacceptable:
			return 0, 0, bad(wamperr.CodeBadLengthLimit, "server rejected max length")
		case ErrorCodeReservedBitsUsed:
			return 0, 0, bad(wamperr.CodeBadFeature, "server reported reserved-bits use")
		case ErrorCodeMaxConnections:
			return 0, 0, bad(wamperr.CodeSaturated, "server at maximum connections")
		default:
			return 0, 0, bad(wamperr.CodeBadHandshake, "server reported unknown handshake error")
		}
	}
	serverSerializer := Serializer(in[1] & 0x0f)
	if serverSerializer != SerializerJSON && serverSerializer != SerializerMsgPack && serverSerializer != SerializerCBOR {
		return 0, 0, bad(wamperr.CodeBadHandshake, "unknown serializer id in handshake response")
	}
	n := in[1] >> 4
	return lengthForExponent(n), serverSerializer, nil
}

// ServerHandshake reads a client's request and writes the response
// frame encoding either success (echoing the negotiated length and
// serializer, clamped by localMax/accepted) or the given failure code.
// It returns the negotiated values on success.
func ServerHandshake(stream io.ReadWriter, localMax uint32, accept func(Serializer) bool) (maxLength uint32, serializer Serializer, err error) {
	var in [4]byte
	if _, err := io.ReadFull(stream, in[:]); err != nil {
		return 0, 0, bad(wamperr.CodeBadHandshake, "read handshake request: "+err.Error())
	}
	if in[0] != magic || in[2] != 0 || in[3] != 0 {
		writeFailure(stream, ErrorCodeReservedBitsUsed)
		return 0, 0, bad(wamperr.CodeBadHandshake, "malformed handshake request")
	}
	clientN := in[1] >> 4
	clientSerializer := Serializer(in[1] & 0x0f)
	if !accept(clientSerializer) {
		writeFailure(stream, ErrorCodeSerializerUnsupported)
		return 0, 0, bad(wamperr.CodeBadSerializer, "unsupported serializer requested")
	}
	negotiatedLen := lengthForExponent(clientN)
	if negotiatedLen > localMax {
		negotiatedLen = localMax
	}
	n := exponentForLength(negotiatedLen)
	// exponentForLength may round up past localMax; never advertise
	// more than we can actually accept.
	for lengthForExponent(n) > localMax && n > 0 {
		n--
	}
	var out [4]byte
	out[0] = magic
	out[1] = (n << 4) | byte(clientSerializer)
	if _, err := stream.Write(out[:]); err != nil {
		return 0, 0, bad(wamperr.CodeBadHandshake, "write handshake response: "+err.Error())
	}
	return lengthForExponent(n), clientSerializer, nil
}

// writeFailure emits a failure response: the error code in byte 1's
// high nibble with a zero serializer nibble, reserved bytes zero.
func writeFailure(stream io.Writer, code ErrorCode) {
	out := [4]byte{magic, byte(code) << 4, 0, 0}
	_, _ = stream.Write(out[:])
}

// encodeFrameHeader builds the 4-byte [kind][3-byte big-endian length]
// prefix used after a successful handshake.
func encodeFrameHeader(kind byte, length uint32) [4]byte {
	var buf [4]byte
	buf[0] = kind
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], length)
	copy(buf[1:], lenBytes[1:])
	return buf
}

func decodeFrameLength(header [4]byte) uint32 {
	var lenBytes [4]byte
	copy(lenBytes[1:], header[1:])
	return binary.BigEndian.Uint32(lenBytes[:])
}
