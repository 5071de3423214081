// internal/browser/element.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
)

// Functions run with the element bound to this.
const (
	jsAttribute      = `function(name) { const v = this.getAttribute(name); return v === null ? "" : v; }`
	jsProperty       = `function(name) { const v = this[name]; return v === undefined || v === null ? "" : String(v); }`
	jsText           = `function() { return this.innerText || this.textContent || ""; }`
	jsScrollIntoView = `function() { this.scrollIntoView({block: "center", inline: "center"}); }`
	jsClear          = `function() {
		if ("value" in this) { this.value = ""; } else { this.textContent = ""; }
		this.dispatchEvent(new Event("input", {bubbles: true}));
		this.dispatchEvent(new Event("change", {bubbles: true}));
	}`
)

// element is a node handle inside a Tab. It implements schemas.Element.
type element struct {
	tab  *Tab
	node *cdp.Node
}

var _ schemas.Element = (*element)(nil)

// call runs fn with the node as its receiver and decodes the result into res.
func (e *element) call(ctx context.Context, fn string, res any, args ...any) error {
	return e.tab.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve node: %w", err)
		}
		// Fails harmlessly once the page has navigated away.
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		return chromedp.CallFunctionOn(fn, res,
			func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
				return p.WithObjectID(obj.ObjectID)
			},
			args...,
		).Do(ctx)
	}))
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	var v string
	err := e.call(ctx, jsAttribute, &v, name)
	return v, err
}

func (e *element) Property(ctx context.Context, name string) (string, error) {
	var v string
	err := e.call(ctx, jsProperty, &v, name)
	return v, err
}

func (e *element) Text(ctx context.Context) (string, error) {
	var v string
	err := e.call(ctx, jsText, &v)
	return v, err
}

func (e *element) OuterHTML(ctx context.Context) (string, error) {
	var html string
	err := e.tab.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		html, err = dom.GetOuterHTML().WithNodeID(e.node.NodeID).Do(ctx)
		return err
	}))
	return html, err
}

func (e *element) ScrollIntoView(ctx context.Context) error {
	return e.call(ctx, jsScrollIntoView, nil)
}

func (e *element) Click(ctx context.Context) error {
	return e.tab.run(ctx, chromedp.MouseClickNode(e.node))
}

func (e *element) Clear(ctx context.Context) error {
	return e.call(ctx, jsClear, nil)
}

func (e *element) Type(ctx context.Context, text string) error {
	return e.tab.run(ctx,
		dom.Focus().WithNodeID(e.node.NodeID),
		chromedp.KeyEvent(text),
	)
}
