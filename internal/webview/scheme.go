package webview

import "strconv"

const (
	// Domain is the bridge domain the native WebView plugin listens on.
	Domain = "GPM_WEBVIEW"

	// ClassName is passed to InitializeClass. The WebView plugin uses the
	// default binding.
	ClassName = ""

	// DefaultNavigationBarColor and DefaultNavigationTextColor are used by
	// ShowSafeBrowsing when no configuration is given.
	DefaultNavigationBarColor  = "#4B96E6"
	DefaultNavigationTextColor = "#FFFFFF"
)

// API schemes understood by the native plugin.
const (
	SchemeShowURL             = "gpmwebview://showUrl"
	SchemeShowHTMLFile        = "gpmwebview://showHtmlFile"
	SchemeShowHTMLString      = "gpmwebview://showHtmlString"
	SchemeShowSafeBrowsing    = "gpmwebview://showSafeBrowsing"
	SchemeClose               = "gpmwebview://close"
	SchemeIsActive            = "gpmwebview://isActive"
	SchemeExecuteJavaScript   = "gpmwebview://executeJavaScript"
	SchemeSetFileDownloadPath = "gpmwebview://setFileDownloadPath"
	SchemeCanGoBack           = "gpmwebview://canGoBack"
	SchemeCanGoForward        = "gpmwebview://canGoForward"
	SchemeGoBack              = "gpmwebview://goBack"
	SchemeGoForward           = "gpmwebview://goForward"
	SchemeSetPosition         = "gpmwebview://setPosition"
	SchemeSetSize             = "gpmwebview://setSize"
	SchemeSetMargins          = "gpmwebview://setMargins"
	SchemeGetX                = "gpmwebview://getX"
	SchemeGetY                = "gpmwebview://getY"
	SchemeGetWidth            = "gpmwebview://getWidth"
	SchemeGetHeight           = "gpmwebview://getHeight"
	SchemeShowWebBrowser      = "gpmwebview://showWebBrowser"
)

// SchemeCallback is the scheme of every native-to-client callback.
const SchemeCallback = "gpmwebview://webViewCallback"

// CallbackType says what happened in the native WebView.
type CallbackType int

const (
	CallbackOpen CallbackType = iota
	CallbackClose
	CallbackPageLoad
	CallbackMultiWindowOpen
	CallbackMultiWindowClose
	CallbackScheme
	CallbackGoBack
	CallbackGoForward
	CallbackExecuteJavascript
	CallbackPageStarted

	// CallbackBackButtonClose is sent by Android when
	// Configuration.BackButtonCloseCallback is set.
	CallbackBackButtonClose
)

var callbackTypeNames = [...]string{
	"Open",
	"Close",
	"PageLoad",
	"MultiWindowOpen",
	"MultiWindowClose",
	"Scheme",
	"GoBack",
	"GoForward",
	"ExecuteJavascript",
	"PageStarted",
	"BackButtonClose",
}

func (t CallbackType) String() string {
	if t >= 0 && int(t) < len(callbackTypeNames) {
		return callbackTypeNames[t]
	}
	return "CallbackType(" + strconv.Itoa(int(t)) + ")"
}
