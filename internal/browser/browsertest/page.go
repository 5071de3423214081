// Package browsertest provides scriptable in-memory implementations of
// schemas.Page and schemas.Element for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
)

// ErrDetached is returned by a fake element that has been marked stale.
var ErrDetached = errors.New("node is detached from document")

// Query identifies one FindAll lookup.
type Query struct {
	Strategy schemas.Strategy
	Value    string
}

// FindFunc answers the n-th (zero based) FindAll call for a query.
type FindFunc func(n int) ([]schemas.Element, error)

// Page is a fake browser tab. The zero value is not usable; call NewPage.
type Page struct {
	mu sync.Mutex

	url     string
	urlErr  error
	ua      string
	static  map[Query][]schemas.Element
	scripts map[Query]FindFunc
	finds   map[Query]int
	order   []Query

	heights      []int64
	heightCalls  int
	scrolls      int
	navigations  []string
	reloads      int
	screenshots  int
	cookies      []schemas.Cookie
	setCookies   [][]schemas.Cookie
	navigateErr  error
	cookiesErr   error
	screenshotFn func() ([]byte, error)

	// OnNavigate runs after a successful Navigate, under no lock.
	OnNavigate func(url string)
	// OnReload runs after Reload, under no lock.
	OnReload func()
}

var _ schemas.Page = (*Page)(nil)

// NewPage returns an empty page at about:blank.
func NewPage() *Page {
	return &Page{
		url:     "about:blank",
		ua:      "browsertest/1.0",
		static:  make(map[Query][]schemas.Element),
		scripts: make(map[Query]FindFunc),
		finds:   make(map[Query]int),
	}
}

// Set makes FindAll(strategy, value) return elems from now on.
func (p *Page) Set(strategy schemas.Strategy, value string, elems ...*Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]schemas.Element, len(elems))
	for i, e := range elems {
		out[i] = e
	}
	p.static[Query{strategy, value}] = out
}

// Remove makes FindAll(strategy, value) return nothing.
func (p *Page) Remove(strategy schemas.Strategy, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.static, Query{strategy, value})
	delete(p.scripts, Query{strategy, value})
}

// Script answers FindAll(strategy, value) with fn, which overrides Set.
func (p *Page) Script(strategy schemas.Strategy, value string, fn FindFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[Query{strategy, value}] = fn
}

// SetURL changes the current location.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// SetURLError makes URL fail with err (nil clears it).
func (p *Page) SetURLError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urlErr = err
}

// SetNavigateError makes Navigate fail with err (nil clears it).
func (p *Page) SetNavigateError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigateErr = err
}

// SetHeights scripts successive ScrollHeight results. The last value repeats.
func (p *Page) SetHeights(h ...int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heights = h
	p.heightCalls = 0
}

// SetCookieJar sets the cookies the browser reports.
func (p *Page) SetCookieJar(c []schemas.Cookie, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = c
	p.cookiesErr = err
}

// SetScreenshot scripts Screenshot.
func (p *Page) SetScreenshot(fn func() ([]byte, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screenshotFn = fn
}

// SetUserAgent changes the reported user agent.
func (p *Page) SetUserAgent(ua string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ua = ua
}

// FindCount reports how many times FindAll(strategy, value) was called.
func (p *Page) FindCount(strategy schemas.Strategy, value string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finds[Query{strategy, value}]
}

// Finds returns every FindAll query in call order.
func (p *Page) Finds() []Query {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Query(nil), p.order...)
}

// Navigations returns every URL passed to Navigate, including failed ones.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Reloads reports the number of Reload calls.
func (p *Page) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

// HeightCalls reports the number of ScrollHeight calls.
func (p *Page) HeightCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.heightCalls
}

// Scrolls reports the number of ScrollToBottom calls.
func (p *Page) Scrolls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrolls
}

// Screenshots reports the number of Screenshot calls.
func (p *Page) Screenshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screenshots
}

// InjectedCookies returns every batch passed to SetCookies.
func (p *Page) InjectedCookies() [][]schemas.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]schemas.Cookie(nil), p.setCookies...)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	if p.navigateErr != nil {
		err := p.navigateErr
		p.mu.Unlock()
		return err
	}
	p.url = url
	hook := p.OnNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.reloads++
	hook := p.OnReload
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.urlErr != nil {
		return "", p.urlErr
	}
	return p.url, nil
}

func (p *Page) FindAll(ctx context.Context, strategy schemas.Strategy, value string) ([]schemas.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := Query{strategy, value}

	p.mu.Lock()
	n := p.finds[q]
	p.finds[q] = n + 1
	p.order = append(p.order, q)
	fn, scripted := p.scripts[q]
	static := p.static[q]
	p.mu.Unlock()

	if scripted {
		return fn(n)
	}
	return append([]schemas.Element(nil), static...), nil
}

func (p *Page) ScrollHeight(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.heightCalls
	p.heightCalls++
	if len(p.heights) == 0 {
		return 0, nil
	}
	if i >= len(p.heights) {
		i = len(p.heights) - 1
	}
	return p.heights[i], nil
}

func (p *Page) ScrollToBottom(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	return nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	p.screenshots++
	fn := p.screenshotFn
	p.mu.Unlock()
	if fn != nil {
		return fn()
	}
	// PNG signature only.
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

func (p *Page) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cookiesErr != nil {
		return nil, p.cookiesErr
	}
	return append([]schemas.Cookie(nil), p.cookies...), nil
}

func (p *Page) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setCookies = append(p.setCookies, append([]schemas.Cookie(nil), cookies...))
	p.cookies = append(p.cookies, cookies...)
	return nil
}

func (p *Page) UserAgent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ua
}
