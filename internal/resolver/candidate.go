package resolver

import (
	"bytes"
	"context"
	"courtfetch/pkg/htmlutil"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("courtfetch/resolver")

type Method int

// Methods in the order they are tried.
const (
	MethodDirectContentType Method = iota
	MethodEmbeddedFrame
	MethodInlineFrame
	MethodAnchorHref
	MethodScriptRedirect
	MethodMetaRefresh
	MethodFallbackTextScan
	MethodNominalStream
)

func (m Method) String() string {
	switch m {
	case MethodDirectContentType:
		return "direct"
	case MethodEmbeddedFrame:
		return "embed"
	case MethodInlineFrame:
		return "iframe"
	case MethodAnchorHref:
		return "anchor"
	case MethodScriptRedirect:
		return "script-redirect"
	case MethodMetaRefresh:
		return "meta-refresh"
	case MethodFallbackTextScan:
		return "text-scan"
	case MethodNominalStream:
		return "nominal-stream"
	}
	return "unknown"
}

// Candidate is a url that may serve the document.
type Candidate struct {
	URL    string
	Method Method
}

var (
	scriptRedirectRegex = regexp.MustCompile(`(?i)window\.location(?:\.href)?\s*=\s*['"]([^'"]+)['"]`)
	refreshURLRegex     = regexp.MustCompile(`(?i)url\s*=\s*(.*)`)
	absolutePDFRegex    = regexp.MustCompile(`(?i)https?://[^\s'"<>]+\.pdf`)
)

// FindCandidate looks for the document inside a wrapper page. Structural
// hints are tried first (embed, iframe, anchors mentioning a pdf or the
// document endpoint marker, script redirects, meta refresh) and an absolute
// pdf url anywhere in the text is the last resort. The returned url is
// absolute and unescaped twice.
func FindCandidate(ctx context.Context, body []byte, page *url.URL, marker string) (Candidate, bool) {
	ctx, span := tracer.Start(ctx, "FindCandidate")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		if c, ok := structuralCandidate(ctx, doc, marker); ok {
			return resolve(page, c), true
		}
	}

	match := absolutePDFRegex.Find(body)
	if match != nil {
		return Candidate{URL: requote(unescapeTwice(string(match))), Method: MethodFallbackTextScan}, true
	}
	return Candidate{}, false
}

func structuralCandidate(ctx context.Context, doc *goquery.Document, marker string) (Candidate, bool) {
	if src := attr(doc.Find("embed[src]"), "src"); src != "" {
		return Candidate{URL: src, Method: MethodEmbeddedFrame}, true
	}
	if src := attr(doc.Find("iframe[src]"), "src"); src != "" {
		return Candidate{URL: src, Method: MethodInlineFrame}, true
	}

	for _, anchor := range htmlutil.Anchors(ctx, doc.Find("a[href]")) {
		if strings.Contains(strings.ToLower(anchor.Href), ".pdf") || (marker != "" && strings.Contains(anchor.Href, marker)) {
			return Candidate{URL: anchor.Href, Method: MethodAnchorHref}, true
		}
	}

	for _, script := range htmlutil.ScriptTexts(doc.Selection) {
		if groups := scriptRedirectRegex.FindStringSubmatch(script); len(groups) == 2 {
			return Candidate{URL: groups[1], Method: MethodScriptRedirect}, true
		}
	}

	var refresh string
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, meta *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(meta.AttrOr("http-equiv", "")), "refresh") {
			return true
		}
		groups := refreshURLRegex.FindStringSubmatch(meta.AttrOr("content", ""))
		if len(groups) == 2 {
			refresh = strings.Trim(strings.TrimSpace(groups[1]), `'"`)
		}
		return false
	})
	if refresh != "" {
		return Candidate{URL: refresh, Method: MethodMetaRefresh}, true
	}
	return Candidate{}, false
}

func attr(sel *goquery.Selection, name string) string {
	return strings.TrimSpace(sel.First().AttrOr(name, ""))
}

func resolve(page *url.URL, c Candidate) Candidate {
	raw := c.URL
	if page != nil {
		if ref, err := url.Parse(raw); err == nil {
			raw = page.ResolveReference(ref).String()
		}
	}
	c.URL = requote(unescapeTwice(raw))
	return c
}

// unescapeTwice undoes the double percent-encoding the portals apply to
// document tokens.
func unescapeTwice(s string) string {
	for i := 0; i < 2; i++ {
		unescaped, err := url.PathUnescape(s)
		if err != nil {
			return s
		}
		s = unescaped
	}
	return s
}

const requoteSafe = "!#$&'()*+,/:;=?@[]~-._"

// requote percent-encodes every byte that cannot appear in a request line
// and keeps existing escapes intact.
func requote(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out.WriteByte(c)
		case strings.IndexByte(requoteSafe, c) >= 0:
			out.WriteByte(c)
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			out.WriteByte(c)
		default:
			out.WriteString("%")
			out.WriteString(strings.ToUpper(hexByte(c)))
		}
	}
	return out.String()
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexByte(c byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[c>>4], digits[c&0x0f]})
}
