package webview

// Custom scheme post commands, joined to a scheme with CommandSeparator.
const (
	CommandClose             = "close"
	CommandLoadURL           = "loadUrl"
	CommandExecuteJavascript = "executeJavascript"
	CommandSeparator         = "|"
)

// Position places a popup WebView.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Size sizes a popup WebView.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Margins insets a popup WebView from the screen edges.
type Margins struct {
	Left   int `json:"left" yaml:"left"`
	Top    int `json:"top" yaml:"top"`
	Right  int `json:"right" yaml:"right"`
	Bottom int `json:"bottom" yaml:"bottom"`
}

// Configuration controls how a WebView is shown. Nil Position, Size and
// Margins leave the native defaults in place.
type Configuration struct {
	Style                   int    `json:"style" yaml:"style"`
	Orientation             int    `json:"orientation" yaml:"orientation"`
	ClearCookie             bool   `json:"isClearCookie" yaml:"clear_cookie"`
	ClearCache              bool   `json:"isClearCache" yaml:"clear_cache"`
	BackgroundColor         string `json:"backgroundColor" yaml:"background_color"`
	NavigationBarVisible    bool   `json:"isNavigationBarVisible" yaml:"navigation_bar_visible"`
	NavigationBarColor      string `json:"navigationBarColor" yaml:"navigation_bar_color"`
	Title                   string `json:"title" yaml:"title"`
	BackButtonVisible       bool   `json:"isBackButtonVisible" yaml:"back_button_visible"`
	ForwardButtonVisible    bool   `json:"isForwardButtonVisible" yaml:"forward_button_visible"`
	CloseButtonVisible      bool   `json:"isCloseButtonVisible" yaml:"close_button_visible"`
	SupportMultipleWindows  bool   `json:"supportMultipleWindows" yaml:"support_multiple_windows"`
	UserAgent               string `json:"userAgentString" yaml:"user_agent"`
	AddJavascript           string `json:"addJavascript" yaml:"add_javascript"`
	BackButtonCloseCallback bool   `json:"isBackButtonCloseCallbackUsed" yaml:"back_button_close_callback"`
	ContentMode             int    `json:"contentMode" yaml:"content_mode"`
	MaskViewVisible         bool   `json:"isMaskViewVisible" yaml:"mask_view_visible"`
	AutoRotation            bool   `json:"isAutoRotation" yaml:"auto_rotation"`

	Position       *Position `json:"-" yaml:"position"`
	Size           *Size     `json:"-" yaml:"size"`
	Margins        *Margins  `json:"-" yaml:"margins"`
	SchemeCommands []string  `json:"-" yaml:"scheme_commands"`
}

// DefaultConfiguration returns the configuration the native plugin expects
// when the caller has no preferences.
func DefaultConfiguration() Configuration {
	return Configuration{
		BackgroundColor:    "#FFFFFF",
		NavigationBarColor: DefaultNavigationBarColor,
	}
}

// nativeConfiguration is Configuration in the flat shape the plugin reads.
type nativeConfiguration struct {
	Configuration

	HasPosition       bool     `json:"hasPosition"`
	PositionX         int      `json:"positionX"`
	PositionY         int      `json:"positionY"`
	HasSize           bool     `json:"hasSize"`
	SizeWidth         int      `json:"sizeWidth"`
	SizeHeight        int      `json:"sizeHeight"`
	HasMargins        bool     `json:"hasMargins"`
	MarginsLeft       int      `json:"marginsLeft"`
	MarginsTop        int      `json:"marginsTop"`
	MarginsRight      int      `json:"marginsRight"`
	MarginsBottom     int      `json:"marginsBottom"`
	SchemeCommandList []string `json:"schemeCommandList"`
}

func (c Configuration) native() nativeConfiguration {
	n := nativeConfiguration{
		Configuration:     c,
		SchemeCommandList: c.SchemeCommands,
	}
	if n.SchemeCommandList == nil {
		n.SchemeCommandList = []string{}
	}
	if c.Position != nil {
		n.HasPosition, n.PositionX, n.PositionY = true, c.Position.X, c.Position.Y
	}
	if c.Size != nil {
		n.HasSize, n.SizeWidth, n.SizeHeight = true, c.Size.Width, c.Size.Height
	}
	if c.Margins != nil {
		n.HasMargins = true
		n.MarginsLeft, n.MarginsTop = c.Margins.Left, c.Margins.Top
		n.MarginsRight, n.MarginsBottom = c.Margins.Right, c.Margins.Bottom
	}
	return n
}

// SafeBrowsingConfiguration styles the system browser tab.
type SafeBrowsingConfiguration struct {
	NavigationBarColor  string `json:"navigationBarColor" yaml:"navigation_bar_color"`
	NavigationTextColor string `json:"navigationTextColor" yaml:"navigation_text_color"`
}

type showWebViewRequest struct {
	Data          string              `json:"data"`
	Configuration nativeConfiguration `json:"configuration"`
	SchemeList    []string            `json:"schemeList"`
}

type showSafeBrowsingRequest struct {
	URL           string                    `json:"url"`
	Configuration SafeBrowsingConfiguration `json:"configuration"`
}

type executeJavaScriptRequest struct {
	Script string `json:"script"`
}

type fileDownloadPathRequest struct {
	Path string `json:"path"`
}

type showWebBrowserRequest struct {
	URL string `json:"url"`
}
