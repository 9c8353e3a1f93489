// Package wamperr defines the error taxonomy shared by every layer of
// the core: value decoding, framed transport, and WAMP protocol errors.
package wamperr

import "fmt"

// Category groups errors the way callers are expected to branch on them,
// rather than by Go type.
type Category int

const (
	// CategoryMisc covers generic outcomes: success, abandoned operations,
	// invalid arguments passed to an API call.
	CategoryMisc Category = iota
	// CategoryWAMP covers standard protocol-level errors tied to a WAMP
	// error URI.
	CategoryWAMP
	// CategoryDecoding covers payload codec failures.
	CategoryDecoding
	// CategoryTransport covers framed-transport and connection failures.
	CategoryTransport
)

func (c Category) String() string {
	switch c {
	case CategoryMisc:
		return "misc"
	case CategoryWAMP:
		return "wamp"
	case CategoryDecoding:
		return "decoding"
	case CategoryTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Code enumerates specific error conditions within a Category.
type Code int

const (
	// misc
	CodeSuccess Code = iota
	CodeAbandoned
	CodeInvalidArgument
	CodeSessionEnded

	// wamp (kept distinct from the URI string, which is always preserved)
	CodeUnknownWAMPError
	CodeNotAuthorized
	CodeAuthorizationFailed
	CodeAuthenticationFailed
	CodeNoSuchRealm
	CodeNoSuchSubscription
	CodeNoSuchRegistration
	CodeNoSuchProcedure
	CodeProcedureAlreadyExists
	CodeInvalidURI
	CodeInvalidArgumentWAMP
	CodeCanceled
	CodeCloseRealm
	CodeGoodbyeAndOut
	CodeProtocolViolation
	CodeOptionNotAllowed
	CodeSystemShutdown

	// decoding
	CodeEmptyInput
	CodeUnexpectedEOF
	CodeBadBase64Char
	CodeBadBase64Length
	CodeBadBase64Padding
	CodeExpectedStringKey
	CodeMaxNestingDepthExceeded
	CodeDecodeFailed

	// transport
	CodeAborted
	CodeDisconnected
	CodeBadHandshake
	CodeBadFeature
	CodeBadLengthLimit
	CodeSaturated
	CodeBadSerializer
	CodeBadCommand
	CodeInboundTooLong
	CodeUnresponsive
	CodeTransportFailed
)

// uriForCode maps a subset of wamp Codes to their standard error URI.
// Codes without a standard mapping return "".
var uriForCode = map[Code]string{
	CodeNotAuthorized:          "wamp.error.not_authorized",
	CodeAuthorizationFailed:    "wamp.error.authorization_failed",
	CodeAuthenticationFailed:   "wamp.error.authentication_failed",
	CodeNoSuchRealm:            "wamp.error.no_such_realm",
	CodeNoSuchSubscription:     "wamp.error.no_such_subscription",
	CodeNoSuchRegistration:     "wamp.error.no_such_registration",
	CodeNoSuchProcedure:        "wamp.error.no_such_procedure",
	CodeProcedureAlreadyExists: "wamp.error.procedure_already_exists",
	CodeInvalidURI:             "wamp.error.invalid_uri",
	CodeInvalidArgumentWAMP:    "wamp.error.invalid_argument",
	CodeCanceled:               "wamp.error.canceled",
	CodeCloseRealm:             "wamp.error.close_realm",
	CodeGoodbyeAndOut:          "wamp.error.goodbye_and_out",
	CodeProtocolViolation:      "wamp.error.protocol_violation",
	CodeOptionNotAllowed:       "wamp.error.option_not_allowed",
	CodeSystemShutdown:         "wamp.error.system_shutdown",
}

var codeForURI = func() map[string]Code {
	m := make(map[string]Code, len(uriForCode))
	for code, uri := range uriForCode {
		m[uri] = code
	}
	return m
}()

// Error is the error type returned by every public API call in this
// module. It carries enough structure that callers can switch on
// Category/Code instead of string-matching messages.
type Error struct {
	Category Category
	Code     Code
	Message  string

	// URI is set for CategoryWAMP errors; it preserves the original
	// error URI even for codes unknown to this implementation (Code is
	// then CodeUnknownWAMPError).
	URI string
	// Args/KwArgs carry any payload that accompanied a WAMP Error message.
	Args   []any
	KwArgs map[string]any
}

func (e *Error) Error() string {
	if e.Category == CategoryWAMP && e.URI != "" {
		if e.Message != "" {
			return fmt.Sprintf("wamp error %s: %s", e.URI, e.Message)
		}
		return fmt.Sprintf("wamp error %s", e.URI)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Category, e.Message)
	}
	return e.Category.String()
}

// New builds a plain misc/decoding/transport error.
func New(cat Category, code Code, message string) *Error {
	return &Error{Category: cat, Code: code, Message: message}
}

// FromURI builds a CategoryWAMP error from a standard or custom error
// URI. Unknown URIs map to CodeUnknownWAMPError but keep the URI string.
func FromURI(uri, message string, args []any, kwargs map[string]any) *Error {
	code, ok := codeForURI[uri]
	if !ok {
		code = CodeUnknownWAMPError
	}
	return &Error{Category: CategoryWAMP, Code: code, Message: message, URI: uri, Args: args, KwArgs: kwargs}
}

// URI returns the standard error URI for a wamp Code, or "" if the code
// has none (e.g. CodeUnknownWAMPError, or a non-wamp category).
func URI(code Code) string {
	return uriForCode[code]
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}
