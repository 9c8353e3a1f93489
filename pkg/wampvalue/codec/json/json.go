// Package json implements the JSON wire codec for wampvalue.Value.
// Unlike the MsgPack/CBOR codecs it does not delegate to a generic
// third-party encoder: JSON numbers have no native int64/uint64
// distinction and WAMP's bytes-as-base64-with-sentinel convention has
// no off-the-shelf library support, so this codec hand-rolls a small
// tokenizer that preserves both.
package json

import (
	"strconv"
	"strings"

	"github.com/wampcore/wampgo/pkg/wampvalue"
	"github.com/wampcore/wampgo/pkg/wamperr"
)

// byteSentinel is the codepoint JSON strings are prefixed with to mark
// "this string is base64(bytes)".
const byteSentinel = '\u0000'

// FloatFormat selects how floats are rendered.
type FloatFormat int

const (
	// FloatShortest uses the minimal digit string that round-trips
	// exactly (strconv's 'g'/-1 precision).
	FloatShortest FloatFormat = iota
	// FloatFixed uses Options.Precision decimal digits.
	FloatFixed
)

// Options configures the codec.
type Options struct {
	MaxNestingDepth int
	FloatFormat     FloatFormat
	Precision       int
}

// DefaultOptions returns the codec's zero-config behavior.
func DefaultOptions() Options { return Options{MaxNestingDepth: 64, FloatFormat: FloatShortest} }

// Encode serializes v as JSON into a new byte slice.
func Encode(v wampvalue.Value, opts Options) ([]byte, error) {
	var sb strings.Builder
	if err := encodeValue(&sb, v, opts, 0); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func encodeValue(sb *strings.Builder, v wampvalue.Value, opts Options, depth int) error {
	if opts.MaxNestingDepth > 0 && depth > opts.MaxNestingDepth {
		return wamperr.New(wamperr.CategoryDecoding, wamperr.CodeMaxNestingDepthExceeded, "max nesting depth exceeded")
	}
	switch v.Kind() {
	case wampvalue.KindNull:
		sb.WriteString("null")
	case wampvalue.KindBool:
		b, _ := v.AsBool()
		if b {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case wampvalue.KindInt:
		i, _ := v.AsInt()
		sb.WriteString(strconv.FormatInt(i, 10))
	case wampvalue.KindUint:
		u, _ := v.AsUint()
		sb.WriteString(strconv.FormatUint(u, 10))
	case wampvalue.KindFloat:
		f, _ := v.AsFloat()
		sb.WriteString(formatFloat(f, opts))
	case wampvalue.KindString:
		s, _ := v.AsString()
		encodeString(sb, s)
	case wampvalue.KindBytes:
		b, _ := v.AsBytes()
		encodeString(sb, string(byteSentinel)+encodeBase64(b))
	case wampvalue.KindArray:
		arr, _ := v.AsArray()
		sb.WriteByte('[')
		for i, e := range arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := encodeValue(sb, e, opts, depth+1); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case wampvalue.KindObject:
		obj, _ := v.AsObject()
		sb.WriteByte('{')
		first := true
		var err error
		obj.Range(func(k string, val wampvalue.Value) bool {
			if !first {
				sb.WriteByte(',')
			}
			first = false
			encodeString(sb, k)
			sb.WriteByte(':')
			err = encodeValue(sb, val, opts, depth+1)
			return err == nil
		})
		if err != nil {
			return err
		}
		sb.WriteByte('}')
	}
	return nil
}

func formatFloat(f float64, opts Options) string {
	switch opts.FloatFormat {
	case FloatFixed:
		prec := opts.Precision
		if prec <= 0 {
			prec = 6
		}
		return strconv.FormatFloat(f, 'f', prec, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

func encodeString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 {
				sb.WriteString("\\u")
				const hex = "0123456789abcdef"
				sb.WriteByte(hex[(r>>12)&0xf])
				sb.WriteByte(hex[(r>>8)&0xf])
				sb.WriteByte(hex[(r>>4)&0xf])
				sb.WriteByte(hex[r&0xf])
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
}

const b64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

func encodeBase64(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow((len(data) + 2) / 3 * 4)
	for i := 0; i < len(data); i += 3 {
		var b0, b1, b2 byte
		b0 = data[i]
		n := 1
		if i+1 < len(data) {
			b1 = data[i+1]
			n = 2
		}
		if i+2 < len(data) {
			b2 = data[i+2]
			n = 3
		}
		sb.WriteByte(b64Alphabet[b0>>2])
		sb.WriteByte(b64Alphabet[((b0&0x03)<<4)|((b1&0xf0)>>4)])
		if n > 1 {
			sb.WriteByte(b64Alphabet[((b1&0x0f)<<2)|((b2&0xc0)>>6)])
		} else {
			sb.WriteByte('=')
		}
		if n > 2 {
			sb.WriteByte(b64Alphabet[b2&0x3f])
		} else {
			sb.WriteByte('=')
		}
	}
	return sb.String()
}

var b64Rev = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(b64Alphabet); i++ {
		t[b64Alphabet[i]] = int8(i)
	}
	return t
}()

func decodeBase64(s string) ([]byte, error) {
	if len(s) == 0 {
		return []byte{}, nil
	}
	if len(s)%4 != 0 {
		return nil, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeBadBase64Length, "base64 length not a multiple of 4")
	}
	pad := 0
	if strings.HasSuffix(s, "==") {
		pad = 2
	} else if strings.HasSuffix(s, "=") {
		pad = 1
	}
	for i := 0; i < len(s)-pad; i++ {
		if s[i] == '=' {
			return nil, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeBadBase64Padding, "misplaced base64 padding")
		}
		if b64Rev[s[i]] < 0 {
			return nil, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeBadBase64Char, "invalid base64 character")
		}
	}
	out := make([]byte, 0, len(s)/4*3)
	for i := 0; i < len(s); i += 4 {
		c0 := b64Rev[s[i]]
		c1 := b64Rev[s[i+1]]
		out = append(out, byte(c0)<<2|byte(c1)>>4)
		if s[i+2] != '=' {
			c2 := b64Rev[s[i+2]]
			out = append(out, byte(c1)<<4|byte(c2)>>2)
			if s[i+3] != '=' {
				c3 := b64Rev[s[i+3]]
				out = append(out, byte(c2)<<6|byte(c3))
			}
		}
	}
	return out, nil
}

// decoder is a hand-rolled recursive-descent JSON parser producing
// wampvalue.Value directly, so integer/float/bytes fidelity survives
// decode without an intermediate interface{} pass.
type decoder struct {
	data []byte
	pos  int
	opts Options
}

// Decode parses one JSON value from the start of data. Bytes after
// that value (and any whitespace following it) are not examined.
func Decode(data []byte, opts Options) (wampvalue.Value, error) {
	if len(data) == 0 {
		return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeEmptyInput, "empty input")
	}
	d := &decoder{data: data, opts: opts}
	d.skipWS()
	v, err := d.parseValue(0)
	if err != nil {
		return wampvalue.Value{}, err
	}
	d.skipWS()
	return v, nil
}

func (d *decoder) skipWS() {
	for d.pos < len(d.data) {
		switch d.data[d.pos] {
		case ' ', '\t', '\n', '\r':
			d.pos++
		default:
			return
		}
	}
}

func (d *decoder) eof() error {
	return wamperr.New(wamperr.CategoryDecoding, wamperr.CodeUnexpectedEOF, "unexpected end of input")
}

func (d *decoder) parseValue(depth int) (wampvalue.Value, error) {
	if d.opts.MaxNestingDepth > 0 && depth > d.opts.MaxNestingDepth {
		return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeMaxNestingDepthExceeded, "max nesting depth exceeded")
	}
	if d.pos >= len(d.data) {
		return wampvalue.Value{}, d.eof()
	}
	switch c := d.data[d.pos]; {
	case c == '{':
		return d.parseObject(depth)
	case c == '[':
		return d.parseArray(depth)
	case c == '"':
		return d.parseString()
	case c == 't':
		return d.parseLiteral("true", wampvalue.Bool(true))
	case c == 'f':
		return d.parseLiteral("false", wampvalue.Bool(false))
	case c == 'n':
		return d.parseLiteral("null", wampvalue.Null())
	case c == '-' || (c >= '0' && c <= '9'):
		return d.parseNumber()
	default:
		return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "unexpected character")
	}
}

func (d *decoder) parseLiteral(lit string, v wampvalue.Value) (wampvalue.Value, error) {
	if d.pos+len(lit) > len(d.data) || string(d.data[d.pos:d.pos+len(lit)]) != lit {
		return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "invalid literal")
	}
	d.pos += len(lit)
	return v, nil
}

func (d *decoder) parseNumber() (wampvalue.Value, error) {
	start := d.pos
	isFloat := false
	if d.data[d.pos] == '-' {
		d.pos++
	}
	for d.pos < len(d.data) && d.data[d.pos] >= '0' && d.data[d.pos] <= '9' {
		d.pos++
	}
	if d.pos < len(d.data) && d.data[d.pos] == '.' {
		isFloat = true
		d.pos++
		for d.pos < len(d.data) && d.data[d.pos] >= '0' && d.data[d.pos] <= '9' {
			d.pos++
		}
	}
	if d.pos < len(d.data) && (d.data[d.pos] == 'e' || d.data[d.pos] == 'E') {
		isFloat = true
		d.pos++
		if d.pos < len(d.data) && (d.data[d.pos] == '+' || d.data[d.pos] == '-') {
			d.pos++
		}
		for d.pos < len(d.data) && d.data[d.pos] >= '0' && d.data[d.pos] <= '9' {
			d.pos++
		}
	}
	text := string(d.data[start:d.pos])
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "invalid number")
		}
		return wampvalue.Float(f), nil
	}
	if text != "" && text[0] == '-' {
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "invalid integer")
		}
		return wampvalue.Int(i), nil
	}
	u, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "invalid integer")
	}
	return wampvalue.Uint(u), nil
}

func (d *decoder) parseRawString() (string, error) {
	if d.pos >= len(d.data) || d.data[d.pos] != '"' {
		return "", wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "expected string")
	}
	d.pos++
	var sb strings.Builder
	for {
		if d.pos >= len(d.data) {
			return "", d.eof()
		}
		c := d.data[d.pos]
		if c == '"' {
			d.pos++
			return sb.String(), nil
		}
		if c == '\\' {
			d.pos++
			if d.pos >= len(d.data) {
				return "", d.eof()
			}
			switch d.data[d.pos] {
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			case '/':
				sb.WriteByte('/')
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'u':
				if d.pos+4 >= len(d.data) {
					return "", d.eof()
				}
				hex := string(d.data[d.pos+1 : d.pos+5])
				n, err := strconv.ParseUint(hex, 16, 32)
				if err != nil {
					return "", wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "invalid unicode escape")
				}
				sb.WriteRune(rune(n))
				d.pos += 4
			default:
				return "", wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "invalid escape")
			}
			d.pos++
			continue
		}
		sb.WriteByte(c)
		d.pos++
	}
}

func (d *decoder) parseString() (wampvalue.Value, error) {
	s, err := d.parseRawString()
	if err != nil {
		return wampvalue.Value{}, err
	}
	if strings.HasPrefix(s, string(byteSentinel)) {
		b, err := decodeBase64(s[len(string(byteSentinel)):])
		if err != nil {
			return wampvalue.Value{}, err
		}
		return wampvalue.Bytes(b), nil
	}
	return wampvalue.String(s), nil
}

func (d *decoder) parseArray(depth int) (wampvalue.Value, error) {
	d.pos++ // '['
	var items []wampvalue.Value
	d.skipWS()
	if d.pos < len(d.data) && d.data[d.pos] == ']' {
		d.pos++
		return wampvalue.NewArray(items), nil
	}
	for {
		d.skipWS()
		v, err := d.parseValue(depth + 1)
		if err != nil {
			return wampvalue.Value{}, err
		}
		items = append(items, v)
		d.skipWS()
		if d.pos >= len(d.data) {
			return wampvalue.Value{}, d.eof()
		}
		if d.data[d.pos] == ',' {
			d.pos++
			continue
		}
		if d.data[d.pos] == ']' {
			d.pos++
			return wampvalue.NewArray(items), nil
		}
		return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "expected ',' or ']'")
	}
}

func (d *decoder) parseObject(depth int) (wampvalue.Value, error) {
	d.pos++ // '{'
	obj := &wampvalue.Object{}
	d.skipWS()
	if d.pos < len(d.data) && d.data[d.pos] == '}' {
		d.pos++
		return wampvalue.NewObject(obj), nil
	}
	for {
		d.skipWS()
		if d.pos >= len(d.data) || d.data[d.pos] != '"' {
			return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeExpectedStringKey, "expected string key")
		}
		key, err := d.parseRawString()
		if err != nil {
			return wampvalue.Value{}, err
		}
		d.skipWS()
		if d.pos >= len(d.data) || d.data[d.pos] != ':' {
			return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "expected ':'")
		}
		d.pos++
		d.skipWS()
		v, err := d.parseValue(depth + 1)
		if err != nil {
			return wampvalue.Value{}, err
		}
		obj.Set(key, v)
		d.skipWS()
		if d.pos >= len(d.data) {
			return wampvalue.Value{}, d.eof()
		}
		if d.data[d.pos] == ',' {
			d.pos++
			continue
		}
		if d.data[d.pos] == '}' {
			d.pos++
			return wampvalue.NewObject(obj), nil
		}
		return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "expected ',' or '}'")
	}
}
