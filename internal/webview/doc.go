// Package webview is the client for the GPM_WEBVIEW native domain.
//
// Every request travels as a JSON envelope in the data field of a bridge
// message:
//
//	{"scheme":"gpmwebview://showUrl","data":"{...}","callback":0}
//
// The native plugin answers show requests through the domain receiver with
// the gpmwebview://webViewCallback scheme, echoing the callback handle so
// the client can find the user's callback again. A Close callback releases
// the handle.
//
// Getters (IsActive, CanGoBack, GetX, ...) are sync calls; everything else
// is async.
package webview
