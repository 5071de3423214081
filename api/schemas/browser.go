package schemas

import "context"

// Strategy names how a selector value is interpreted when locating elements.
type Strategy string

const (
	ByID          Strategy = "id"
	ByCSS         Strategy = "css"
	ByName        Strategy = "name"
	ByTag         Strategy = "tag"
	ByExactText   Strategy = "exact-text"
	ByPartialText Strategy = "partial-text"
	ByXPath       Strategy = "xpath"
)

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	switch s {
	case ByID, ByCSS, ByName, ByTag, ByExactText, ByPartialText, ByXPath:
		return true
	}
	return false
}

// Page is the single browser tab the bot drives. Implementations are not
// safe for concurrent use; one logical thread of control owns a Page.
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Reload reloads the current document.
	Reload(ctx context.Context) error
	// URL returns the current location.
	URL(ctx context.Context) (string, error)
	// FindAll performs one non-blocking query and returns every match present.
	FindAll(ctx context.Context, strategy Strategy, value string) ([]Element, error)
	// ScrollHeight returns the total scrollable extent of the document.
	ScrollHeight(ctx context.Context) (int64, error)
	// ScrollToBottom scrolls the window to the current bottom of the document.
	ScrollToBottom(ctx context.Context) error
	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// Cookies returns every cookie visible to the browser.
	Cookies(ctx context.Context) ([]Cookie, error)
	// SetCookies injects cookies into the browser.
	SetCookies(ctx context.Context, cookies []Cookie) error
	// UserAgent reports the user agent the page presents.
	UserAgent() string
}

// Element is a live handle on a DOM node. Handles go stale when the page
// re-renders; callers treat any error as a transient UI failure.
type Element interface {
	// Attribute returns the raw attribute value, or "" when absent.
	Attribute(ctx context.Context, name string) (string, error)
	// Property returns a DOM property as a string (e.g. the resolved href).
	Property(ctx context.Context, name string) (string, error)
	// Text returns the rendered text of the element.
	Text(ctx context.Context) (string, error)
	// OuterHTML returns the serialised element.
	OuterHTML(ctx context.Context) (string, error)
	// ScrollIntoView centers the element in the viewport.
	ScrollIntoView(ctx context.Context) error
	// Click performs a native click on the element.
	Click(ctx context.Context) error
	// Clear empties an input element.
	Clear(ctx context.Context) error
	// Type sends keystrokes to the element.
	Type(ctx context.Context, text string) error
}
