// internal/browser/tab.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/browser/stealth"
)

const (
	// probeTimeout bounds a single FindAll. chromedp queries retry until their
	// context ends, so without it a query on a half-loaded frame never returns.
	probeTimeout = 2 * time.Second
	closeTimeout = 10 * time.Second
)

// Tab is a chromedp-backed browser tab. It implements schemas.Page.
type Tab struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	userAgent   string
	logger      *zap.Logger

	closeOnce sync.Once
}

var _ schemas.Page = (*Tab)(nil)

// Launch starts a Chrome process and opens the tab the bot drives. parent
// bounds the lifetime of the browser; Close releases it earlier.
func Launch(parent context.Context, opts Options, logger *zap.Logger) (*Tab, error) {
	log := logger.Named("browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, AllocatorOptions(opts)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Debugf),
	)

	t := &Tab{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		userAgent:   opts.UserAgent,
		logger:      log,
	}

	// The first Run starts the browser process.
	if err := chromedp.Run(tabCtx, network.Enable(), stealth.Apply(stealth.PersonaFor(opts.UserAgent), log)); err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	log.Info("Browser launched.",
		zap.Bool("headless", opts.Headless),
		zap.String("user_agent", opts.UserAgent),
	)
	return t, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (t *Tab) Close() {
	t.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(Detach(t.ctx), closeTimeout)
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := chromedp.Cancel(t.ctx); err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Debug("Graceful browser shutdown failed.", zap.Error(err))
			}
		}()
		select {
		case <-done:
		case <-ctx.Done():
			t.logger.Warn("Timed out waiting for the browser to close.")
		}
		t.cancel()
		t.allocCancel()
	})
}

// run executes actions on the tab, bounded by the caller's ctx.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	return chromedp.Run(runCtx, actions...)
}

func (t *Tab) Navigate(ctx context.Context, url string) error {
	if err := t.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (t *Tab) Reload(ctx context.Context) error {
	return t.run(ctx, chromedp.Reload())
}

func (t *Tab) URL(ctx context.Context) (string, error) {
	var loc string
	if err := t.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// FindAll runs one bounded query. A query that does not settle within
// probeTimeout reports no matches rather than an error.
func (t *Tab) FindAll(ctx context.Context, strategy schemas.Strategy, value string) ([]schemas.Element, error) {
	q, err := translate(strategy, value)
	if err != nil {
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var nodes []*cdp.Node
	err = t.run(probeCtx, chromedp.Nodes(q.sel, &nodes, q.by, chromedp.AtLeast(0)))
	if err != nil {
		if probeCtx.Err() != nil && ctx.Err() == nil {
			return nil, nil
		}
		return nil, err
	}

	elements := make([]schemas.Element, 0, len(nodes))
	for _, n := range nodes {
		// performSearch also returns text and attribute nodes.
		if n.NodeType != cdp.NodeTypeElement {
			continue
		}
		elements = append(elements, &element{tab: t, node: n})
	}
	return elements, nil
}

func (t *Tab) ScrollHeight(ctx context.Context) (int64, error) {
	var height int64
	err := t.run(ctx, chromedp.Evaluate(
		`Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight)`,
		&height,
	))
	return height, err
}

func (t *Tab) ScrollToBottom(ctx context.Context) error {
	return t.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := t.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (t *Tab) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	var raw []*network.Cookie
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	cookies := make([]schemas.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return cookies, nil
}

func (t *Tab) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, cookieParam(c))
	}
	if err := t.run(ctx, network.SetCookies(params)); err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}
	return nil
}

func (t *Tab) UserAgent() string { return t.userAgent }

// cookieParam converts a cached cookie back into CDP form. Session cookies
// (Expires <= 0) are sent without an expiry.
func cookieParam(c schemas.Cookie) *network.CookieParam {
	p := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
	}
	switch network.CookieSameSite(c.SameSite) {
	case network.CookieSameSiteStrict, network.CookieSameSiteLax, network.CookieSameSiteNone:
		p.SameSite = network.CookieSameSite(c.SameSite)
	}
	if c.Expires > 0 {
		sec := int64(c.Expires)
		nsec := int64((c.Expires - float64(sec)) * float64(time.Second))
		exp := cdp.TimeSinceEpoch(time.Unix(sec, nsec))
		p.Expires = &exp
	}
	return p
}
