package webview

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// envelope is the JSON document carried in a bridge message's data field.
type envelope struct {
	Scheme       string
	Data         string
	Callback     int
	CallbackType CallbackType
	Error        string
}

// encodeRequest builds an envelope for scheme. A non-nil payload is
// marshalled and embedded as a JSON string, the way the plugin expects it.
func encodeRequest(scheme string, payload any) (string, error) {
	out, err := sjson.Set("", "scheme", scheme)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", scheme, err)
	}
	if payload == nil {
		return out, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", scheme, err)
	}
	out, err = sjson.Set(out, "data", string(data))
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", scheme, err)
	}
	return out, nil
}

// encodeShowRequest is encodeRequest plus the callback handle.
func encodeShowRequest(scheme string, payload any, handle int) (string, error) {
	out, err := encodeRequest(scheme, payload)
	if err != nil {
		return "", err
	}
	out, err = sjson.Set(out, "callback", handle)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", scheme, err)
	}
	return out, nil
}

// decodeEnvelope reads an envelope. A missing callback field reads as
// NoHandle.
func decodeEnvelope(raw string) (envelope, error) {
	if raw == "" {
		return envelope{}, errors.New("empty message")
	}
	if !gjson.Valid(raw) {
		return envelope{}, errors.New("message is not valid JSON")
	}

	r := gjson.Parse(raw)
	if !r.IsObject() {
		return envelope{}, errors.New("message is not a JSON object")
	}

	env := envelope{
		Scheme:       r.Get("scheme").String(),
		Data:         r.Get("data").String(),
		Callback:     NoHandle,
		CallbackType: CallbackType(r.Get("callbackType").Int()),
		Error:        r.Get("error").String(),
	}
	if cb := r.Get("callback"); cb.Exists() && cb.Type == gjson.Number {
		env.Callback = int(cb.Int())
	}
	if env.Scheme == "" {
		return envelope{}, errors.New("message has no scheme")
	}
	return env, nil
}

// Error is a failure reported by the native WebView, or by the bridge when
// the request never reached it.
type Error struct {
	Domain  string `json:"domain"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Domain, e.Code, e.Message)
}

// parseError reads the error field of a callback. Text that is not a JSON
// object becomes the message of an otherwise empty error.
func parseError(raw string) *Error {
	if raw == "" {
		return nil
	}
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return &Error{Domain: Domain, Message: raw}
	}
	r := gjson.Parse(raw)
	e := &Error{
		Domain:  r.Get("domain").String(),
		Code:    int(r.Get("code").Int()),
		Message: r.Get("message").String(),
	}
	if e.Domain == "" {
		e.Domain = Domain
	}
	return e
}
