// Package wampmsg implements the WAMP message schema: every
// message is a wampvalue Array whose first element is an integer
// message type, with the remaining positional elements fixed by the
// WAMP-standard schema for that type. Decode validates arity and
// element kinds, turning any violation into a wamperr protocol
// violation rather than panicking or returning a zero-value message.
package wampmsg

import (
	"github.com/wampcore/wampgo/pkg/wampvalue"
	"github.com/wampcore/wampgo/pkg/wamperr"
)

// Type is the WAMP message type code, the first element of every
// message array.
type Type int64

const (
	TypeHello        Type = 1
	TypeWelcome      Type = 2
	TypeAbort        Type = 3
	TypeChallenge    Type = 4
	TypeAuthenticate Type = 5
	TypeGoodbye      Type = 6
	TypeError        Type = 8
	TypePublish      Type = 16
	TypePublished    Type = 17
	TypeSubscribe    Type = 32
	TypeSubscribed   Type = 33
	TypeUnsubscribe  Type = 34
	TypeUnsubscribed Type = 35
	TypeEvent        Type = 36
	TypeCall         Type = 48
	TypeCancel       Type = 49
	TypeResult       Type = 50
	TypeRegister     Type = 64
	TypeRegistered   Type = 65
	TypeUnregister   Type = 66
	TypeUnregistered Type = 67
	TypeInvocation   Type = 68
	TypeInterrupt    Type = 69
	TypeYield        Type = 70
)

var typeNames = map[Type]string{
	TypeHello: "HELLO", TypeWelcome: "WELCOME", TypeAbort: "ABORT",
	TypeChallenge: "CHALLENGE", TypeAuthenticate: "AUTHENTICATE", TypeGoodbye: "GOODBYE",
	TypeError: "ERROR", TypePublish: "PUBLISH", TypePublished: "PUBLISHED",
	TypeSubscribe: "SUBSCRIBE", TypeSubscribed: "SUBSCRIBED", TypeUnsubscribe: "UNSUBSCRIBE",
	TypeUnsubscribed: "UNSUBSCRIBED", TypeEvent: "EVENT", TypeCall: "CALL",
	TypeCancel: "CANCEL", TypeResult: "RESULT", TypeRegister: "REGISTER",
	TypeRegistered: "REGISTERED", TypeUnregister: "UNREGISTER", TypeUnregistered: "UNREGISTERED",
	TypeInvocation: "INVOCATION", TypeInterrupt: "INTERRUPT", TypeYield: "YIELD",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "UNKNOWN"
}

// Message is implemented by every WAMP message shape. Encode produces
// the wire Array; Type identifies it without a decode round-trip.
type Message interface {
	Type() Type
	Encode() wampvalue.Value
}

func violation(format string) error {
	return wamperr.New(wamperr.CategoryWAMP, wamperr.CodeProtocolViolation, format)
}

// --- element accessors -----------------------------------------------------

func elemAt(arr []wampvalue.Value, i int, what string) (wampvalue.Value, error) {
	if i >= len(arr) {
		return wampvalue.Value{}, violation("missing " + what)
	}
	return arr[i], nil
}

func idAt(arr []wampvalue.Value, i int, what string) (uint64, error) {
	v, err := elemAt(arr, i, what)
	if err != nil {
		return 0, err
	}
	switch v.Kind() {
	case wampvalue.KindUint:
		u, _ := v.AsUint()
		return u, nil
	case wampvalue.KindInt:
		n, _ := v.AsInt()
		if n < 0 {
			return 0, violation(what + " must be non-negative")
		}
		return uint64(n), nil
	default:
		return 0, violation(what + " must be an integer id")
	}
}

func stringAt(arr []wampvalue.Value, i int, what string) (string, error) {
	v, err := elemAt(arr, i, what)
	if err != nil {
		return "", err
	}
	s, ok := v.AsString()
	if !ok {
		return "", violation(what + " must be a string")
	}
	return s, nil
}

func dictAt(arr []wampvalue.Value, i int, what string) (*wampvalue.Object, error) {
	v, err := elemAt(arr, i, what)
	if err != nil {
		return nil, err
	}
	o, ok := v.AsObject()
	if !ok {
		return nil, violation(what + " must be a dictionary")
	}
	return o, nil
}

func dictOrEmpty(o *wampvalue.Object) wampvalue.Value {
	return wampvalue.NewObject(o)
}

// argsAt / kwargsAt read the optional trailing positional/keyword
// payload, present iff the array is long enough to carry them.
func argsAt(arr []wampvalue.Value, i int) []wampvalue.Value {
	if i >= len(arr) {
		return nil
	}
	a, ok := arr[i].AsArray()
	if !ok {
		return nil
	}
	return a
}

func kwargsAt(arr []wampvalue.Value, i int) *wampvalue.Object {
	if i >= len(arr) {
		return nil
	}
	o, ok := arr[i].AsObject()
	if !ok {
		return nil
	}
	return o
}

// appendPayload appends args/kwargs trailing elements, omitting a
// trailing empty kwargs when args itself is also empty/absent, to
// match how peers typically emit minimal-arity messages; a present
// kwargs always forces args to be emitted too (even if empty) since
// positional arity is fixed.
func appendPayload(elems []wampvalue.Value, args []wampvalue.Value, kwargs *wampvalue.Object) []wampvalue.Value {
	if kwargs != nil && kwargs.Len() > 0 {
		return append(elems, wampvalue.NewArray(args), dictOrEmpty(kwargs))
	}
	if len(args) > 0 {
		return append(elems, wampvalue.NewArray(args))
	}
	return elems
}

func array(elems ...wampvalue.Value) wampvalue.Value {
	return wampvalue.NewArray(elems)
}

func typeElem(t Type) wampvalue.Value { return wampvalue.Int(int64(t)) }

// --- HELLO -------------------------------------------------------------

type Hello struct {
	Realm   string
	Details *wampvalue.Object
}

func (m *Hello) Type() Type { return TypeHello }
func (m *Hello) Encode() wampvalue.Value {
	return array(typeElem(TypeHello), wampvalue.String(m.Realm), dictOrEmpty(m.Details))
}
func decodeHello(arr []wampvalue.Value) (*Hello, error) {
	realm, err := stringAt(arr, 1, "HELLO.Realm")
	if err != nil {
		return nil, err
	}
	details, err := dictAt(arr, 2, "HELLO.Details")
	if err != nil {
		return nil, err
	}
	return &Hello{Realm: realm, Details: details}, nil
}

// --- WELCOME -------------------------------------------------------------

type Welcome struct {
	Session uint64
	Details *wampvalue.Object
}

func (m *Welcome) Type() Type { return TypeWelcome }
func (m *Welcome) Encode() wampvalue.Value {
	return array(typeElem(TypeWelcome), wampvalue.Uint(m.Session), dictOrEmpty(m.Details))
}
func decodeWelcome(arr []wampvalue.Value) (*Welcome, error) {
	sid, err := idAt(arr, 1, "WELCOME.Session")
	if err != nil {
		return nil, err
	}
	details, err := dictAt(arr, 2, "WELCOME.Details")
	if err != nil {
		return nil, err
	}
	return &Welcome{Session: sid, Details: details}, nil
}

// --- ABORT -------------------------------------------------------------

type Abort struct {
	Details *wampvalue.Object
	Reason  string
}

func (m *Abort) Type() Type { return TypeAbort }
func (m *Abort) Encode() wampvalue.Value {
	return array(typeElem(TypeAbort), dictOrEmpty(m.Details), wampvalue.String(m.Reason))
}
func decodeAbort(arr []wampvalue.Value) (*Abort, error) {
	details, err := dictAt(arr, 1, "ABORT.Details")
	if err != nil {
		return nil, err
	}
	reason, err := stringAt(arr, 2, "ABORT.Reason")
	if err != nil {
		return nil, err
	}
	return &Abort{Details: details, Reason: reason}, nil
}

// --- CHALLENGE -------------------------------------------------------------

type Challenge struct {
	AuthMethod string
	Extra      *wampvalue.Object
}

func (m *Challenge) Type() Type { return TypeChallenge }
func (m *Challenge) Encode() wampvalue.Value {
	return array(typeElem(TypeChallenge), wampvalue.String(m.AuthMethod), dictOrEmpty(m.Extra))
}
func decodeChallenge(arr []wampvalue.Value) (*Challenge, error) {
	method, err := stringAt(arr, 1, "CHALLENGE.AuthMethod")
	if err != nil {
		return nil, err
	}
	extra, err := dictAt(arr, 2, "CHALLENGE.Extra")
	if err != nil {
		return nil, err
	}
	return &Challenge{AuthMethod: method, Extra: extra}, nil
}

// --- AUTHENTICATE -------------------------------------------------------------

type Authenticate struct {
	Signature string
	Extra     *wampvalue.Object
}

func (m *Authenticate) Type() Type { return TypeAuthenticate }
func (m *Authenticate) Encode() wampvalue.Value {
	return array(typeElem(TypeAuthenticate), wampvalue.String(m.Signature), dictOrEmpty(m.Extra))
}
func decodeAuthenticate(arr []wampvalue.Value) (*Authenticate, error) {
	sig, err := stringAt(arr, 1, "AUTHENTICATE.Signature")
	if err != nil {
		return nil, err
	}
	extra, err := dictAt(arr, 2, "AUTHENTICATE.Extra")
	if err != nil {
		return nil, err
	}
	return &Authenticate{Signature: sig, Extra: extra}, nil
}

// --- GOODBYE -------------------------------------------------------------

type Goodbye struct {
	Details *wampvalue.Object
	Reason  string
}

func (m *Goodbye) Type() Type { return TypeGoodbye }
func (m *Goodbye) Encode() wampvalue.Value {
	return array(typeElem(TypeGoodbye), dictOrEmpty(m.Details), wampvalue.String(m.Reason))
}
func decodeGoodbye(arr []wampvalue.Value) (*Goodbye, error) {
	details, err := dictAt(arr, 1, "GOODBYE.Details")
	if err != nil {
		return nil, err
	}
	reason, err := stringAt(arr, 2, "GOODBYE.Reason")
	if err != nil {
		return nil, err
	}
	return &Goodbye{Details: details, Reason: reason}, nil
}

// --- ERROR -------------------------------------------------------------

type Error struct {
	RequestType Type
	Request     uint64
	Details     *wampvalue.Object
	URI         string
	Args        []wampvalue.Value
	KwArgs      *wampvalue.Object
}

func (m *Error) Type() Type { return TypeError }
func (m *Error) Encode() wampvalue.Value {
	elems := []wampvalue.Value{typeElem(TypeError), typeElem(m.RequestType), wampvalue.Uint(m.Request), dictOrEmpty(m.Details), wampvalue.String(m.URI)}
	return wampvalue.NewArray(appendPayload(elems, m.Args, m.KwArgs))
}
func decodeError(arr []wampvalue.Value) (*Error, error) {
	rt, err := idAt(arr, 1, "ERROR.REQUEST.Type")
	if err != nil {
		return nil, err
	}
	req, err := idAt(arr, 2, "ERROR.Request")
	if err != nil {
		return nil, err
	}
	details, err := dictAt(arr, 3, "ERROR.Details")
	if err != nil {
		return nil, err
	}
	uri, err := stringAt(arr, 4, "ERROR.Error")
	if err != nil {
		return nil, err
	}
	return &Error{RequestType: Type(rt), Request: req, Details: details, URI: uri, Args: argsAt(arr, 5), KwArgs: kwargsAt(arr, 6)}, nil
}

// --- PUBLISH -------------------------------------------------------------

type Publish struct {
	Request uint64
	Options *wampvalue.Object
	Topic   string
	Args    []wampvalue.Value
	KwArgs  *wampvalue.Object
}

func (m *Publish) Type() Type { return TypePublish }
func (m *Publish) Encode() wampvalue.Value {
	elems := []wampvalue.Value{typeElem(TypePublish), wampvalue.Uint(m.Request), dictOrEmpty(m.Options), wampvalue.String(m.Topic)}
	return wampvalue.NewArray(appendPayload(elems, m.Args, m.KwArgs))
}
func decodePublish(arr []wampvalue.Value) (*Publish, error) {
	req, err := idAt(arr, 1, "PUBLISH.Request")
	if err != nil {
		return nil, err
	}
	opts, err := dictAt(arr, 2, "PUBLISH.Options")
	if err != nil {
		return nil, err
	}
	topic, err := stringAt(arr, 3, "PUBLISH.Topic")
	if err != nil {
		return nil, err
	}
	return &Publish{Request: req, Options: opts, Topic: topic, Args: argsAt(arr, 4), KwArgs: kwargsAt(arr, 5)}, nil
}

// --- PUBLISHED -------------------------------------------------------------

type Published struct {
	Request     uint64
	Publication uint64
}

func (m *Published) Type() Type { return TypePublished }
func (m *Published) Encode() wampvalue.Value {
	return array(typeElem(TypePublished), wampvalue.Uint(m.Request), wampvalue.Uint(m.Publication))
}
func decodePublished(arr []wampvalue.Value) (*Published, error) {
	req, err := idAt(arr, 1, "PUBLISHED.Request")
	if err != nil {
		return nil, err
	}
	pub, err := idAt(arr, 2, "PUBLISHED.Publication")
	if err != nil {
		return nil, err
	}
	return &Published{Request: req, Publication: pub}, nil
}

// --- SUBSCRIBE -------------------------------------------------------------

type Subscribe struct {
	Request uint64
	Options *wampvalue.Object
	Topic   string
}

func (m *Subscribe) Type() Type { return TypeSubscribe }
func (m *Subscribe) Encode() wampvalue.Value {
	return array(typeElem(TypeSubscribe), wampvalue.Uint(m.Request), dictOrEmpty(m.Options), wampvalue.String(m.Topic))
}
func decodeSubscribe(arr []wampvalue.Value) (*Subscribe, error) {
	req, err := idAt(arr, 1, "SUBSCRIBE.Request")
	if err != nil {
		return nil, err
	}
	opts, err := dictAt(arr, 2, "SUBSCRIBE.Options")
	if err != nil {
		return nil, err
	}
	topic, err := stringAt(arr, 3, "SUBSCRIBE.Topic")
	if err != nil {
		return nil, err
	}
	return &Subscribe{Request: req, Options: opts, Topic: topic}, nil
}

// --- SUBSCRIBED -------------------------------------------------------------

type Subscribed struct {
	Request      uint64
	Subscription uint64
}

func (m *Subscribed) Type() Type { return TypeSubscribed }
func (m *Subscribed) Encode() wampvalue.Value {
	return array(typeElem(TypeSubscribed), wampvalue.Uint(m.Request), wampvalue.Uint(m.Subscription))
}
func decodeSubscribed(arr []wampvalue.Value) (*Subscribed, error) {
	req, err := idAt(arr, 1, "SUBSCRIBED.Request")
	if err != nil {
		return nil, err
	}
	sub, err := idAt(arr, 2, "SUBSCRIBED.Subscription")
	if err != nil {
		return nil, err
	}
	return &Subscribed{Request: req, Subscription: sub}, nil
}

// --- UNSUBSCRIBE -------------------------------------------------------------

type Unsubscribe struct {
	Request      uint64
	Subscription uint64
}

func (m *Unsubscribe) Type() Type { return TypeUnsubscribe }
func (m *Unsubscribe) Encode() wampvalue.Value {
	return array(typeElem(TypeUnsubscribe), wampvalue.Uint(m.Request), wampvalue.Uint(m.Subscription))
}
func decodeUnsubscribe(arr []wampvalue.Value) (*Unsubscribe, error) {
	req, err := idAt(arr, 1, "UNSUBSCRIBE.Request")
	if err != nil {
		return nil, err
	}
	sub, err := idAt(arr, 2, "UNSUBSCRIBE.Subscription")
	if err != nil {
		return nil, err
	}
	return &Unsubscribe{Request: req, Subscription: sub}, nil
}

// --- UNSUBSCRIBED -------------------------------------------------------------

type Unsubscribed struct {
	Request uint64
}

func (m *Unsubscribed) Type() Type { return TypeUnsubscribed }
func (m *Unsubscribed) Encode() wampvalue.Value {
	return array(typeElem(TypeUnsubscribed), wampvalue.Uint(m.Request))
}
func decodeUnsubscribed(arr []wampvalue.Value) (*Unsubscribed, error) {
	req, err := idAt(arr, 1, "UNSUBSCRIBED.Request")
	if err != nil {
		return nil, err
	}
	return &Unsubscribed{Request: req}, nil
}

// --- EVENT -------------------------------------------------------------

type Event struct {
	Subscription uint64
	Publication  uint64
	Details      *wampvalue.Object
	Args         []wampvalue.Value
	KwArgs       *wampvalue.Object
}

func (m *Event) Type() Type { return TypeEvent }
func (m *Event) Encode() wampvalue.Value {
	elems := []wampvalue.Value{typeElem(TypeEvent), wampvalue.Uint(m.Subscription), wampvalue.Uint(m.Publication), dictOrEmpty(m.Details)}
	return wampvalue.NewArray(appendPayload(elems, m.Args, m.KwArgs))
}
func decodeEvent(arr []wampvalue.Value) (*Event, error) {
	sub, err := idAt(arr, 1, "EVENT.Subscription")
	if err != nil {
		return nil, err
	}
	pub, err := idAt(arr, 2, "EVENT.Publication")
	if err != nil {
		return nil, err
	}
	details, err := dictAt(arr, 3, "EVENT.Details")
	if err != nil {
		return nil, err
	}
	return &Event{Subscription: sub, Publication: pub, Details: details, Args: argsAt(arr, 4), KwArgs: kwargsAt(arr, 5)}, nil
}

// --- CALL -------------------------------------------------------------

type Call struct {
	Request   uint64
	Options   *wampvalue.Object
	Procedure string
	Args      []wampvalue.Value
	KwArgs    *wampvalue.Object
}

func (m *Call) Type() Type { return TypeCall }
func (m *Call) Encode() wampvalue.Value {
	elems := []wampvalue.Value{typeElem(TypeCall), wampvalue.Uint(m.Request), dictOrEmpty(m.Options), wampvalue.String(m.Procedure)}
	return wampvalue.NewArray(appendPayload(elems, m.Args, m.KwArgs))
}
func decodeCall(arr []wampvalue.Value) (*Call, error) {
	req, err := idAt(arr, 1, "CALL.Request")
	if err != nil {
		return nil, err
	}
	opts, err := dictAt(arr, 2, "CALL.Options")
	if err != nil {
		return nil, err
	}
	proc, err := stringAt(arr, 3, "CALL.Procedure")
	if err != nil {
		return nil, err
	}
	return &Call{Request: req, Options: opts, Procedure: proc, Args: argsAt(arr, 4), KwArgs: kwargsAt(arr, 5)}, nil
}

// --- CANCEL -------------------------------------------------------------

type Cancel struct {
	Request uint64
	Options *wampvalue.Object
}

func (m *Cancel) Type() Type { return TypeCancel }
func (m *Cancel) Encode() wampvalue.Value {
	return array(typeElem(TypeCancel), wampvalue.Uint(m.Request), dictOrEmpty(m.Options))
}
func decodeCancel(arr []wampvalue.Value) (*Cancel, error) {
	req, err := idAt(arr, 1, "CANCEL.Request")
	if err != nil {
		return nil, err
	}
	opts, err := dictAt(arr, 2, "CANCEL.Options")
	if err != nil {
		return nil, err
	}
	return &Cancel{Request: req, Options: opts}, nil
}

// --- RESULT -------------------------------------------------------------

type Result struct {
	Request uint64
	Details *wampvalue.Object
	Args    []wampvalue.Value
	KwArgs  *wampvalue.Object
}

func (m *Result) Type() Type { return TypeResult }
func (m *Result) Encode() wampvalue.Value {
	elems := []wampvalue.Value{typeElem(TypeResult), wampvalue.Uint(m.Request), dictOrEmpty(m.Details)}
	return wampvalue.NewArray(appendPayload(elems, m.Args, m.KwArgs))
}
func decodeResult(arr []wampvalue.Value) (*Result, error) {
	req, err := idAt(arr, 1, "RESULT.Request")
	if err != nil {
		return nil, err
	}
	details, err := dictAt(arr, 2, "RESULT.Details")
	if err != nil {
		return nil, err
	}
	return &Result{Request: req, Details: details, Args: argsAt(arr, 3), KwArgs: kwargsAt(arr, 4)}, nil
}

// IsProgressive reports whether this Result carries details.progress
// == true, the progressive-result marker.
func (m *Result) IsProgressive() bool {
	if m.Details == nil {
		return false
	}
	v, ok := m.Details.Get("progress")
	if !ok {
		return false
	}
	b, _ := v.AsBool()
	return b
}

// --- REGISTER -------------------------------------------------------------

type Register struct {
	Request   uint64
	Options   *wampvalue.Object
	Procedure string
}

func (m *Register) Type() Type { return TypeRegister }
func (m *Register) Encode() wampvalue.Value {
	return array(typeElem(TypeRegister), wampvalue.Uint(m.Request), dictOrEmpty(m.Options), wampvalue.String(m.Procedure))
}
func decodeRegister(arr []wampvalue.Value) (*Register, error) {
	req, err := idAt(arr, 1, "REGISTER.Request")
	if err != nil {
		return nil, err
	}
	opts, err := dictAt(arr, 2, "REGISTER.Options")
	if err != nil {
		return nil, err
	}
	proc, err := stringAt(arr, 3, "REGISTER.Procedure")
	if err != nil {
		return nil, err
	}
	return &Register{Request: req, Options: opts, Procedure: proc}, nil
}

// --- REGISTERED -------------------------------------------------------------

type Registered struct {
	Request      uint64
	Registration uint64
}

func (m *Registered) Type() Type { return TypeRegistered }
func (m *Registered) Encode() wampvalue.Value {
	return array(typeElem(TypeRegistered), wampvalue.Uint(m.Request), wampvalue.Uint(m.Registration))
}
func decodeRegistered(arr []wampvalue.Value) (*Registered, error) {
	req, err := idAt(arr, 1, "REGISTERED.Request")
	if err != nil {
		return nil, err
	}
	reg, err := idAt(arr, 2, "REGISTERED.Registration")
	if err != nil {
		return nil, err
	}
	return &Registered{Request: req, Registration: reg}, nil
}

// --- UNREGISTER -------------------------------------------------------------

type Unregister struct {
	Request      uint64
	Registration uint64
}

func (m *Unregister) Type() Type { return TypeUnregister }
func (m *Unregister) Encode() wampvalue.Value {
	return array(typeElem(TypeUnregister), wampvalue.Uint(m.Request), wampvalue.Uint(m.Registration))
}
func decodeUnregister(arr []wampvalue.Value) (*Unregister, error) {
	req, err := idAt(arr, 1, "UNREGISTER.Request")
	if err != nil {
		return nil, err
	}
	reg, err := idAt(arr, 2, "UNREGISTER.Registration")
	if err != nil {
		return nil, err
	}
	return &Unregister{Request: req, Registration: reg}, nil
}

// --- UNREGISTERED -------------------------------------------------------------

type Unregistered struct {
	Request uint64
}

func (m *Unregistered) Type() Type { return TypeUnregistered }
func (m *Unregistered) Encode() wampvalue.Value {
	return array(typeElem(TypeUnregistered), wampvalue.Uint(m.Request))
}
func decodeUnregistered(arr []wampvalue.Value) (*Unregistered, error) {
	req, err := idAt(arr, 1, "UNREGISTERED.Request")
	if err != nil {
		return nil, err
	}
	return &Unregistered{Request: req}, nil
}

// --- INVOCATION -------------------------------------------------------------

type Invocation struct {
	Request      uint64
	Registration uint64
	Details      *wampvalue.Object
	Args         []wampvalue.Value
	KwArgs       *wampvalue.Object
}

func (m *Invocation) Type() Type { return TypeInvocation }
func (m *Invocation) Encode() wampvalue.Value {
	elems := []wampvalue.Value{typeElem(TypeInvocation), wampvalue.Uint(m.Request), wampvalue.Uint(m.Registration), dictOrEmpty(m.Details)}
	return wampvalue.NewArray(appendPayload(elems, m.Args, m.KwArgs))
}
func decodeInvocation(arr []wampvalue.Value) (*Invocation, error) {
	req, err := idAt(arr, 1, "INVOCATION.Request")
	if err != nil {
		return nil, err
	}
	reg, err := idAt(arr, 2, "INVOCATION.Registration")
	if err != nil {
		return nil, err
	}
	details, err := dictAt(arr, 3, "INVOCATION.Details")
	if err != nil {
		return nil, err
	}
	return &Invocation{Request: req, Registration: reg, Details: details, Args: argsAt(arr, 4), KwArgs: kwargsAt(arr, 5)}, nil
}

// --- INTERRUPT -------------------------------------------------------------

type Interrupt struct {
	Request uint64
	Options *wampvalue.Object
}

func (m *Interrupt) Type() Type { return TypeInterrupt }
func (m *Interrupt) Encode() wampvalue.Value {
	return array(typeElem(TypeInterrupt), wampvalue.Uint(m.Request), dictOrEmpty(m.Options))
}
func decodeInterrupt(arr []wampvalue.Value) (*Interrupt, error) {
	req, err := idAt(arr, 1, "INTERRUPT.Request")
	if err != nil {
		return nil, err
	}
	opts, err := dictAt(arr, 2, "INTERRUPT.Options")
	if err != nil {
		return nil, err
	}
	return &Interrupt{Request: req, Options: opts}, nil
}

// --- YIELD -------------------------------------------------------------

type Yield struct {
	Request uint64
	Options *wampvalue.Object
	Args    []wampvalue.Value
	KwArgs  *wampvalue.Object
}

func (m *Yield) Type() Type { return TypeYield }
func (m *Yield) Encode() wampvalue.Value {
	elems := []wampvalue.Value{typeElem(TypeYield), wampvalue.Uint(m.Request), dictOrEmpty(m.Options)}
	return wampvalue.NewArray(appendPayload(elems, m.Args, m.KwArgs))
}
func decodeYield(arr []wampvalue.Value) (*Yield, error) {
	req, err := idAt(arr, 1, "YIELD.Request")
	if err != nil {
		return nil, err
	}
	opts, err := dictAt(arr, 2, "YIELD.Options")
	if err != nil {
		return nil, err
	}
	return &Yield{Request: req, Options: opts, Args: argsAt(arr, 3), KwArgs: kwargsAt(arr, 4)}, nil
}

// Decode validates and parses a wire Value (must be a non-empty Array
// whose first element is a recognized message type) into a concrete
// Message. Arity/kind violations return a CategoryWAMP
// CodeProtocolViolation error.
func Decode(v wampvalue.Value) (Message, error) {
	arr, ok := v.AsArray()
	if !ok {
		return nil, violation("message must be an array")
	}
	if len(arr) == 0 {
		return nil, violation("empty message array")
	}
	rawType, ok := arr[0].AsInt()
	if !ok {
		if u, uok := arr[0].AsUint(); uok {
			rawType = int64(u)
		} else {
			return nil, violation("message type must be an integer")
		}
	}
	switch Type(rawType) {
	case TypeHello:
		return decodeHello(arr)
	case TypeWelcome:
		return decodeWelcome(arr)
	case TypeAbort:
		return decodeAbort(arr)
	case TypeChallenge:
		return decodeChallenge(arr)
	case TypeAuthenticate:
		return decodeAuthenticate(arr)
	case TypeGoodbye:
		return decodeGoodbye(arr)
	case TypeError:
		return decodeError(arr)
	case TypePublish:
		return decodePublish(arr)
	case TypePublished:
		return decodePublished(arr)
	case TypeSubscribe:
		return decodeSubscribe(arr)
	case TypeSubscribed:
		return decodeSubscribed(arr)
	case TypeUnsubscribe:
		return decodeUnsubscribe(arr)
	case TypeUnsubscribed:
		return decodeUnsubscribed(arr)
	case TypeEvent:
		return decodeEvent(arr)
	case TypeCall:
		return decodeCall(arr)
	case TypeCancel:
		return decodeCancel(arr)
	case TypeResult:
		return decodeResult(arr)
	case TypeRegister:
		return decodeRegister(arr)
	case TypeRegistered:
		return decodeRegistered(arr)
	case TypeUnregister:
		return decodeUnregister(arr)
	case TypeUnregistered:
		return decodeUnregistered(arr)
	case TypeInvocation:
		return decodeInvocation(arr)
	case TypeInterrupt:
		return decodeInterrupt(arr)
	case TypeYield:
		return decodeYield(arr)
	default:
		return nil, violation("unrecognized message type")
	}
}
