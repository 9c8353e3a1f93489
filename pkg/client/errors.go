package client

import (
	"github.com/wampcore/wampgo/pkg/wampvalue"
	"github.com/wampcore/wampgo/pkg/wamperr"
)

// wampError builds a *wamperr.Error from a WAMP ERROR/ABORT/GOODBYE's
// URI plus its Args/KwArgs, converting the wampvalue payload to plain
// Go values the way callers matching on err.(*wamperr.Error) expect.
func wampError(uri string, details *wampvalue.Object, args []wampvalue.Value, kwargs *wampvalue.Object) *wamperr.Error {
	message := ""
	if details != nil {
		if v, ok := details.Get("message"); ok {
			if s, ok := v.AsString(); ok {
				message = s
			}
		}
	}
	var nativeArgs []any
	for _, a := range args {
		nativeArgs = append(nativeArgs, wampvalue.ToNative(a))
	}
	var nativeKwargs map[string]any
	if kwargs != nil && kwargs.Len() > 0 {
		nativeKwargs = make(map[string]any, kwargs.Len())
		kwargs.Range(func(k string, v wampvalue.Value) bool {
			nativeKwargs[k] = wampvalue.ToNative(v)
			return true
		})
	}
	return wamperr.FromURI(uri, message, nativeArgs, nativeKwargs)
}
