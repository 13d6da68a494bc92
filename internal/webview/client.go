package webview

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/roach88/nbridge/internal/bridge"
	"github.com/roach88/nbridge/internal/wire"
)

// ErrorCodeBridge is the Error.Code of a request the bridge could not
// deliver to the native plugin.
const ErrorCodeBridge = -1

// Callback receives WebView events for one shown page. It runs on the
// dispatcher's main context.
type Callback func(t CallbackType, data string, err *Error)

// Client drives the native WebView through a bridge dispatcher.
type Client struct {
	d       *bridge.Dispatcher
	handles *HandleTable
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger; the component attribute is added by New.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// New binds the plugin class and registers the domain receiver. A class
// already bound by another plugin client is not an error.
func New(d *bridge.Dispatcher, opts ...Option) (*Client, error) {
	c := &Client{
		d:       d,
		handles: NewHandleTable(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "webview")

	if err := d.InitializeClass(wire.Configuration{ClassName: ClassName}); err != nil {
		if !bridge.IsAlreadyInitialized(err) {
			return nil, fmt.Errorf("webview: %w", err)
		}
		c.log.Debug("native class already initialized")
	}
	if err := d.AddReceiver(Domain, c.onEvent); err != nil {
		return nil, fmt.Errorf("webview: %w", err)
	}
	return c, nil
}

// OpenCallbacks returns how many shown pages still hold a callback.
func (c *Client) OpenCallbacks() int {
	return c.handles.Len()
}

// ShowURL opens url. cb receives every event of the page until Close.
func (c *Client) ShowURL(url string, cfg Configuration, cb Callback, schemes []string) error {
	return c.show(SchemeShowURL, url, cfg, cb, schemes)
}

// ShowHTMLFile opens a local HTML file.
func (c *Client) ShowHTMLFile(path string, cfg Configuration, cb Callback, schemes []string) error {
	return c.show(SchemeShowHTMLFile, path, cfg, cb, schemes)
}

// ShowHTMLString renders html directly.
func (c *Client) ShowHTMLString(html string, cfg Configuration, cb Callback, schemes []string) error {
	return c.show(SchemeShowHTMLString, html, cfg, cb, schemes)
}

func (c *Client) show(scheme, data string, cfg Configuration, cb Callback, schemes []string) error {
	if schemes == nil {
		schemes = []string{}
	}
	return c.callWithHandle(scheme, showWebViewRequest{
		Data:          data,
		Configuration: cfg.native(),
		SchemeList:    schemes,
	}, cb)
}

// ShowSafeBrowsing opens url in the system browser tab. A nil cfg uses the
// default colors.
func (c *Client) ShowSafeBrowsing(url string, cfg *SafeBrowsingConfiguration, cb Callback) error {
	req := showSafeBrowsingRequest{
		URL: url,
		Configuration: SafeBrowsingConfiguration{
			NavigationBarColor:  DefaultNavigationBarColor,
			NavigationTextColor: DefaultNavigationTextColor,
		},
	}
	if cfg != nil {
		req.Configuration = *cfg
	}
	return c.callWithHandle(SchemeShowSafeBrowsing, req, cb)
}

func (c *Client) callWithHandle(scheme string, payload any, cb Callback) error {
	handle := c.handles.Register(cb)
	data, err := encodeShowRequest(scheme, payload, handle)
	if err != nil {
		c.handles.Unregister(handle)
		return err
	}
	if err := c.send(data); err != nil {
		c.handles.Unregister(handle)
		return fmt.Errorf("webview %s: %w", scheme, err)
	}
	return nil
}

// Close closes the WebView. The page's callback receives CallbackClose.
func (c *Client) Close() error {
	return c.callAsync(SchemeClose, nil)
}

// ExecuteJavaScript runs script in the current page.
func (c *Client) ExecuteJavaScript(script string) error {
	return c.callAsync(SchemeExecuteJavaScript, executeJavaScriptRequest{Script: script})
}

// SetFileDownloadPath sets where downloads are stored.
func (c *Client) SetFileDownloadPath(path string) error {
	return c.callAsync(SchemeSetFileDownloadPath, fileDownloadPathRequest{Path: path})
}

// GoBack navigates back in the page history.
func (c *Client) GoBack() error {
	return c.callAsync(SchemeGoBack, nil)
}

// GoForward navigates forward in the page history.
func (c *Client) GoForward() error {
	return c.callAsync(SchemeGoForward, nil)
}

// SetPosition moves a popup WebView.
func (c *Client) SetPosition(x, y int) error {
	return c.callAsync(SchemeSetPosition, Position{X: x, Y: y})
}

// SetSize resizes a popup WebView.
func (c *Client) SetSize(width, height int) error {
	return c.callAsync(SchemeSetSize, Size{Width: width, Height: height})
}

// SetMargins insets a popup WebView.
func (c *Client) SetMargins(left, top, right, bottom int) error {
	return c.callAsync(SchemeSetMargins, Margins{Left: left, Top: top, Right: right, Bottom: bottom})
}

// ShowWebBrowser opens url in the external browser.
func (c *Client) ShowWebBrowser(url string) error {
	return c.callAsync(SchemeShowWebBrowser, showWebBrowserRequest{URL: url})
}

func (c *Client) callAsync(scheme string, payload any) error {
	data, err := encodeRequest(scheme, payload)
	if err != nil {
		return err
	}
	if err := c.send(data); err != nil {
		return fmt.Errorf("webview %s: %w", scheme, err)
	}
	return nil
}

// send issues a command without keeping it pending. The native WebView never
// answers a command by id; page events arrive as unsolicited callbacks.
// A failure to issue is queued for onEvent before CallAsync returns.
func (c *Client) send(data string) error {
	id, err := c.d.CallAsync(wire.Message{Domain: Domain, Data: data})
	if err != nil {
		return err
	}
	c.d.Forget(id)
	return nil
}

// IsActive reports whether a WebView is showing.
func (c *Client) IsActive(ctx context.Context) (bool, error) {
	return c.syncBool(ctx, SchemeIsActive)
}

// CanGoBack reports whether the page has back history.
func (c *Client) CanGoBack(ctx context.Context) (bool, error) {
	return c.syncBool(ctx, SchemeCanGoBack)
}

// CanGoForward reports whether the page has forward history.
func (c *Client) CanGoForward(ctx context.Context) (bool, error) {
	return c.syncBool(ctx, SchemeCanGoForward)
}

func (c *Client) GetX(ctx context.Context) (int, error)      { return c.syncInt(ctx, SchemeGetX) }
func (c *Client) GetY(ctx context.Context) (int, error)      { return c.syncInt(ctx, SchemeGetY) }
func (c *Client) GetWidth(ctx context.Context) (int, error)  { return c.syncInt(ctx, SchemeGetWidth) }
func (c *Client) GetHeight(ctx context.Context) (int, error) { return c.syncInt(ctx, SchemeGetHeight) }

func (c *Client) callSync(ctx context.Context, scheme string) (string, error) {
	data, err := encodeRequest(scheme, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.d.CallSync(ctx, wire.Message{Domain: Domain, Data: data})
	if err != nil {
		return "", fmt.Errorf("webview %s: %w", scheme, err)
	}
	return strings.TrimSpace(resp.Data), nil
}

func (c *Client) syncBool(ctx context.Context, scheme string) (bool, error) {
	data, err := c.callSync(ctx, scheme)
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(data)
	if err != nil {
		return false, fmt.Errorf("webview %s: unexpected response %q", scheme, data)
	}
	return v, nil
}

func (c *Client) syncInt(ctx context.Context, scheme string) (int, error) {
	data, err := c.callSync(ctx, scheme)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(data)
	if err != nil {
		return 0, fmt.Errorf("webview %s: unexpected response %q", scheme, data)
	}
	return v, nil
}

// onEvent is the GPM_WEBVIEW receiver.
func (c *Client) onEvent(del bridge.Delivery) {
	env, err := decodeEnvelope(del.Message.Data)
	if err != nil {
		c.log.Warn("undecodable webview message", "id", del.Message.CorrelationID, "error", err)
		return
	}

	// A request that failed on the way out comes back with the bridge error.
	if del.Err != nil {
		c.failRequest(env, del.Err)
		return
	}

	if env.Scheme != SchemeCallback {
		c.log.Debug("ignoring webview message", "scheme", env.Scheme)
		return
	}

	cb, ok := c.handles.Get(env.Callback)
	if !ok {
		c.log.Debug("webview callback without live handle", "handle", env.Callback, "type", env.CallbackType)
		return
	}
	if env.CallbackType == CallbackClose {
		c.handles.Unregister(env.Callback)
	}
	cb(env.CallbackType, env.Data, parseError(env.Error))
}

func (c *Client) failRequest(env envelope, cause error) {
	c.log.Warn("webview request failed", "scheme", env.Scheme, "error", cause)

	cb, ok := c.handles.Get(env.Callback)
	if !ok {
		return
	}
	c.handles.Unregister(env.Callback)
	cb(CallbackOpen, "", &Error{
		Domain:  Domain,
		Code:    ErrorCodeBridge,
		Message: cause.Error(),
	})
}
