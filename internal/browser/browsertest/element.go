package browsertest

import (
	"context"
	"sync"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
)

// Element is a fake DOM node.
type Element struct {
	mu sync.Mutex

	Attrs map[string]string
	Props map[string]string
	Label string
	HTML  string

	// ClickErrs are returned by successive clicks; once exhausted, clicks
	// succeed.
	ClickErrs []error
	// Err, when set, fails every read and action.
	Err error
	// OnClick runs after a successful click, under no lock.
	OnClick func()

	clicks   int
	attempts int
	scrolls  int
	clears   int
	typed    []string
	value    string
}

var _ schemas.Element = (*Element)(nil)

// NewElement returns an element with the given visible text.
func NewElement(text string) *Element {
	return &Element{Label: text, Attrs: map[string]string{}, Props: map[string]string{}}
}

// Anchor returns a link element with href, outer HTML and text.
func Anchor(href, html, text string) *Element {
	e := NewElement(text)
	e.Attrs["href"] = href
	e.Props["href"] = href
	e.HTML = html
	return e
}

// Clicks reports the number of successful clicks.
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// ClickAttempts reports every click call, failed or not.
func (e *Element) ClickAttempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

// Scrolls reports the number of ScrollIntoView calls.
func (e *Element) Scrolls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scrolls
}

// Clears reports the number of Clear calls.
func (e *Element) Clears() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clears
}

// Typed returns every string sent with Type.
func (e *Element) Typed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.typed...)
}

// Value is the current input value (cleared, then typed).
func (e *Element) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return "", e.Err
	}
	return e.Attrs[name], nil
}

func (e *Element) Property(ctx context.Context, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return "", e.Err
	}
	if name == "value" {
		return e.value, nil
	}
	return e.Props[name], nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return "", e.Err
	}
	return e.Label, nil
}

func (e *Element) OuterHTML(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return "", e.Err
	}
	return e.HTML, nil
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.scrolls++
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	e.attempts++
	if e.Err != nil {
		err := e.Err
		e.mu.Unlock()
		return err
	}
	if len(e.ClickErrs) > 0 {
		err := e.ClickErrs[0]
		e.ClickErrs = e.ClickErrs[1:]
		if err != nil {
			e.mu.Unlock()
			return err
		}
	}
	e.clicks++
	hook := e.OnClick
	e.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.clears++
	e.value = ""
	return nil
}

func (e *Element) Type(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.typed = append(e.typed, text)
	e.value += text
	return nil
}
