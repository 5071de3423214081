// internal/browser/selector.go
package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
)

// query is a strategy translated into something chromedp can run.
type query struct {
	sel string
	by  chromedp.QueryOption
}

// translate maps a locator strategy to a DOM query. CSS-shaped strategies use
// querySelectorAll; text strategies become XPath run through DOM.performSearch.
func translate(strategy schemas.Strategy, value string) (query, error) {
	switch strategy {
	case schemas.ByID:
		return query{sel: fmt.Sprintf("[id=%s]", cssString(value)), by: chromedp.ByQueryAll}, nil
	case schemas.ByName:
		return query{sel: fmt.Sprintf("[name=%s]", cssString(value)), by: chromedp.ByQueryAll}, nil
	case schemas.ByCSS, schemas.ByTag:
		return query{sel: value, by: chromedp.ByQueryAll}, nil
	case schemas.ByExactText:
		return query{sel: ExactTextXPath(value), by: chromedp.BySearch}, nil
	case schemas.ByPartialText:
		return query{sel: PartialTextXPath(value), by: chromedp.BySearch}, nil
	case schemas.ByXPath:
		return query{sel: value, by: chromedp.BySearch}, nil
	}
	return query{}, fmt.Errorf("unsupported locator strategy %q", strategy)
}

// ExactTextXPath matches elements whose own text, whitespace-normalised,
// equals text.
func ExactTextXPath(text string) string {
	return "//*[normalize-space(text())=" + XPathLiteral(text) + "]"
}

// PartialTextXPath matches elements whose own text contains text.
func PartialTextXPath(text string) string {
	return "//*[contains(text()," + XPathLiteral(text) + ")]"
}

// XPathLiteral quotes s for use in an XPath 1.0 expression. XPath has no
// escape sequence, so strings holding both quote kinds go through concat().
func XPathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, "'", `)
		}
		b.WriteString("'" + p + "'")
	}
	b.WriteString(")")
	return b.String()
}

func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
