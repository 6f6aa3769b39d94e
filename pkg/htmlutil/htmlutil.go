// Package htmlutil pulls the pieces portals hide in their html pages: form
// state, links and inline scripts.
package htmlutil

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("courtfetch/htmlutil")

// Text concatenates every text node under node, the raw contents of script
// elements included.
func Text(node *html.Node) string {
	var out strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			out.WriteString(n.Data)
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	if node != nil {
		walk(node)
	}
	return out.String()
}

// Attr looks up an attribute ignoring case, portals mix HREF and href.
func Attr(node *html.Node, key string) (string, bool) {
	for _, a := range node.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

var spaceRunRegex = regexp.MustCompile(`\s{2,}`)

// CollapseSpace drops non-printable runes and collapses whitespace runs.
func CollapseSpace(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
	return spaceRunRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}

// Anchor is a link as written on the page, Href is trimmed but neither
// resolved nor re-escaped.
type Anchor struct {
	Text string
	Href string
}

// Anchors lists the anchors of sel that carry an href, in document order.
// Hrefs that do not parse as urls are skipped.
func Anchors(ctx context.Context, sel *goquery.Selection) []Anchor {
	_, span := tracer.Start(ctx, "Anchors")
	defer span.End()

	var out []Anchor
	for _, n := range sel.Nodes {
		href, ok := Attr(n, "href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			continue
		}
		if _, err := url.Parse(href); err != nil {
			span.RecordError(err)
			continue
		}
		anchor := Anchor{Text: CollapseSpace(Text(n)), Href: href}
		out = append(out, anchor)
		span.AddEvent("anchor", trace.WithAttributes(
			attribute.String("text", anchor.Text),
			attribute.String("href", anchor.Href),
		))
	}
	return out
}

// HiddenFields collects the name/value pairs of every hidden input under sel,
// the first value of a repeated name wins.
func HiddenFields(sel *goquery.Selection) url.Values {
	out := url.Values{}
	sel.Find(`input[type=hidden], input[type="hidden"]`).Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		if out.Has(name) {
			return
		}
		out.Set(name, input.AttrOr("value", ""))
	})
	return out
}

// ScriptTexts returns the inline source of every script element under sel,
// external scripts are skipped.
func ScriptTexts(sel *goquery.Selection) []string {
	var out []string
	for _, n := range sel.Find("script").Nodes {
		text := Text(n)
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, text)
	}
	return out
}
