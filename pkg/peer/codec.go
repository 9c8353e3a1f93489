package peer

import (
	"github.com/wampcore/wampgo/pkg/rawsocket"
	cborcodec "github.com/wampcore/wampgo/pkg/wampvalue/codec/cbor"
	jsoncodec "github.com/wampcore/wampgo/pkg/wampvalue/codec/json"
	msgpackcodec "github.com/wampcore/wampgo/pkg/wampvalue/codec/msgpack"
	"github.com/wampcore/wampgo/pkg/wampvalue"
)

// Codec adapts one of the three wampvalue wire codecs (which differ in
// their Options shape) to a single interface Peer can hold regardless
// of which serializer the raw-socket handshake negotiated.
type Codec interface {
	Encode(v wampvalue.Value) ([]byte, error)
	Decode(data []byte) (wampvalue.Value, error)
	Serializer() rawsocket.Serializer
}

type jsonAdapter struct{ opts jsoncodec.Options }

func (c jsonAdapter) Encode(v wampvalue.Value) ([]byte, error) { return jsoncodec.Encode(v, c.opts) }
func (c jsonAdapter) Decode(d []byte) (wampvalue.Value, error) { return jsoncodec.Decode(d, c.opts) }
func (c jsonAdapter) Serializer() rawsocket.Serializer         { return rawsocket.SerializerJSON }

type msgpackAdapter struct{ opts msgpackcodec.Options }

func (c msgpackAdapter) Encode(v wampvalue.Value) ([]byte, error) {
	return msgpackcodec.Encode(v, c.opts)
}
func (c msgpackAdapter) Decode(d []byte) (wampvalue.Value, error) {
	return msgpackcodec.Decode(d, c.opts)
}
func (c msgpackAdapter) Serializer() rawsocket.Serializer { return rawsocket.SerializerMsgPack }

type cborAdapter struct{ opts cborcodec.Options }

func (c cborAdapter) Encode(v wampvalue.Value) ([]byte, error) { return cborcodec.Encode(v, c.opts) }
func (c cborAdapter) Decode(d []byte) (wampvalue.Value, error) { return cborcodec.Decode(d, c.opts) }
func (c cborAdapter) Serializer() rawsocket.Serializer         { return rawsocket.SerializerCBOR }

// JSONCodec, MsgPackCodec, and CBORCodec build the three Codec
// adapters with each subcodec's zero-config behavior.
func JSONCodec() Codec    { return jsonAdapter{opts: jsoncodec.DefaultOptions()} }
func MsgPackCodec() Codec { return msgpackAdapter{opts: msgpackcodec.DefaultOptions()} }
func CBORCodec() Codec    { return cborAdapter{opts: cborcodec.DefaultOptions()} }

// CodecForSerializer returns the Codec adapter matching a negotiated
// rawsocket.Serializer id.
func CodecForSerializer(s rawsocket.Serializer) (Codec, bool) {
	switch s {
	case rawsocket.SerializerJSON:
		return JSONCodec(), true
	case rawsocket.SerializerMsgPack:
		return MsgPackCodec(), true
	case rawsocket.SerializerCBOR:
		return CBORCodec(), true
	default:
		return nil, false
	}
}
