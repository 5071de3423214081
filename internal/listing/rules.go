package listing

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

const (
	maxTitleRunes       = 200
	maxLocationRunes    = 100
	maxElementTextRunes = 500

	// UnknownTitle is stored when no title rule matches.
	UnknownTitle = "Unknown Title"
)

// Rule extracts one field from a parsed listing card. The XPath is evaluated
// relative to the card; the first matching node's trimmed text is the
// candidate. When Pattern is set the candidate is replaced by its first
// match, and a candidate without a match is skipped.
type Rule struct {
	XPath   string
	Pattern *regexp.Regexp
}

var pricePattern = regexp.MustCompile(`\$?(\d+[.,]?\d*)`)

// itemIDPatterns are tried against the listing URL in order.
var itemIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/marketplace/item/(\d+)`),
	regexp.MustCompile(`fbid=(\d+)`),
	regexp.MustCompile(`item_id=(\d+)`),
}

var (
	TitleRules = []Rule{
		{XPath: ".//span[@dir='auto']"},
		{XPath: ".//div[contains(@class,'title')]"},
		{XPath: ".//h3"},
		{XPath: ".//div[@class='title']"},
	}
	PriceRules = []Rule{
		{XPath: ".//span[contains(text(),'$')]", Pattern: pricePattern},
		{XPath: ".//div[contains(@class,'price')]", Pattern: pricePattern},
		{XPath: ".//span[contains(@class,'price')]", Pattern: pricePattern},
	}
	LocationRules = []Rule{
		{XPath: ".//span[contains(@class,'location')]"},
		{XPath: ".//div[contains(@class,'location')]"},
		{XPath: ".//span[contains(text(),', ')]"},
	}
)

// Card is the set of fields pulled from one listing card.
type Card struct {
	ItemID   string
	Title    string
	Price    string
	Location string
}

// ItemID returns the marketplace id embedded in url, or the first 16 hex
// characters of its MD5 when no pattern matches. It is never empty.
func ItemID(url string) string {
	for _, re := range itemIDPatterns {
		if m := re.FindStringSubmatch(url); len(m) > 1 && m[1] != "" {
			return m[1]
		}
	}
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])[:16]
}

// ParseCard applies the rule tables to the outer HTML of a listing anchor.
// Unparseable markup yields the defaults.
func ParseCard(url, outerHTML string) Card {
	card := Card{ItemID: ItemID(url), Title: UnknownTitle}

	doc, err := htmlquery.Parse(strings.NewReader(outerHTML))
	if err != nil {
		return card
	}
	if title := Apply(doc, TitleRules); title != "" {
		card.Title = truncate(title, maxTitleRunes)
	}
	card.Price = Apply(doc, PriceRules)
	card.Location = truncate(Apply(doc, LocationRules), maxLocationRunes)
	return card
}

// Apply returns the value of the first rule that produces a non-empty result.
func Apply(top *html.Node, rules []Rule) string {
	for _, r := range rules {
		node, err := htmlquery.Query(top, r.XPath)
		if err != nil || node == nil {
			continue
		}
		text := strings.TrimSpace(htmlquery.InnerText(node))
		if text == "" {
			continue
		}
		if r.Pattern == nil {
			return text
		}
		if m := r.Pattern.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
