// Package portal describes the remote court portals as data, so a single
// engine can drive all of them.
package portal

import (
	"courtfetch/internal/captcha"
	"fmt"
	"net/url"
	"strings"
)

type QueryKind string

const (
	KindCitation  QueryKind = "citation"
	KindParty     QueryKind = "party"
	KindDateRange QueryKind = "date"
	KindJudge     QueryKind = "judge"
	KindAct       QueryKind = "act"
)

var AllKinds = []QueryKind{KindCitation, KindParty, KindDateRange, KindJudge, KindAct}

// Logical field names a query fills in, an Endpoint maps them onto whatever
// the portal calls them.
const (
	FieldCitation  = "citation"
	FieldParty     = "party"
	FieldYear      = "year"
	FieldFromDate  = "from_date"
	FieldToDate    = "to_date"
	FieldJudgeCode = "judge_code"
	FieldActName   = "act_name"
	FieldActCode   = "act_code"
	FieldSection   = "section"
)

// Endpoint is where and how one kind of query is submitted.
type Endpoint struct {
	Path string `json:"path"`
	// Fields maps logical field names to portal form field names.
	Fields map[string]string `json:"fields"`
	// Static fields are sent as is with every submission.
	Static map[string]string `json:"static"`
}

// Layout holds the field offsets of a result record, -1 marks a field the
// portal does not send.
type Layout struct {
	MinFields  int `json:"min_fields"`
	CaseNumber int `json:"case_number"`
	OrderDate  int `json:"order_date"`
	Locator    int `json:"locator"`
	OrderType  int `json:"order_type"`
	// CourtCode offsets are tried in order, the first non-empty candidate
	// wins. When CourtCodeDigitsOnly is set a candidate must be numeric.
	CourtCode           []int `json:"court_code"`
	CourtCodeDigitsOnly bool  `json:"court_code_digits_only"`
	// CourtCodeFallback is used when no candidate matched.
	CourtCodeFallback string `json:"court_code_fallback"`
	CINO              int    `json:"cino"`
}

// Challenge locates the challenge image, either by a fixed path or by a
// selector on the entry page.
type Challenge struct {
	Path     string `json:"path"`
	Selector string `json:"selector"`
	// CacheBuster is the name of a random query parameter appended to the
	// image url, empty appends nothing.
	CacheBuster string `json:"cache_buster"`
}

// Verification is an endpoint that checks an answer before any query is
// made and answers with JSON.
type Verification struct {
	Path        string            `json:"path"`
	AnswerField string            `json:"answer_field"`
	Static      map[string]string `json:"static"`
	StatusField string            `json:"status_field"`
	AcceptValue string            `json:"accept_value"`
	// TokenField is the JSON field holding the continuation token that
	// replaces the anti-forgery token.
	TokenField string `json:"token_field"`
}

// DocumentEndpoint is the page that serves (or points at) a document.
type DocumentEndpoint struct {
	Path string `json:"path"`
	// Static parameters follow filename, caseno, cCode and cino in order.
	Static []KeyValue `json:"static"`
	// Marker identifies links to the document endpoint inside html pages.
	Marker string `json:"marker"`
}

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Lookup is an option feed endpoint ("value~label#value~label").
type Lookup struct {
	Path        string            `json:"path"`
	Static      map[string]string `json:"static"`
	SearchField string            `json:"search_field"`
}

type Lookups struct {
	Judges *Lookup `json:"judges"`
	Acts   *Lookup `json:"acts"`
}

type Profile struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	BaseURL string `json:"base_url"`
	// EntryPath is fetched first to obtain cookies and hidden fields.
	EntryPath string `json:"entry_path"`
	// TokenField is the name of the anti-forgery hidden field, empty when
	// the portal does not use one.
	TokenField string `json:"token_field"`
	// AnswerField is the form field the challenge answer is submitted in.
	AnswerField  string         `json:"answer_field"`
	Challenge    Challenge      `json:"challenge"`
	Syntax       captcha.Syntax `json:"syntax"`
	Verification *Verification  `json:"verification"`

	// Common fields are sent with every query submission.
	Common     map[string]string      `json:"common"`
	Endpoints  map[QueryKind]Endpoint `json:"endpoints"`
	DateLayout string                 `json:"date_layout"`
	Layout     Layout                 `json:"layout"`
	Document   DocumentEndpoint       `json:"document"`
	Lookups    Lookups                `json:"lookups"`

	// IncorrectMarkers appear in a query response when the answer was rejected.
	IncorrectMarkers []string `json:"incorrect_markers"`
	// ExpiredMarkers appear in any response when the server forgot the session.
	ExpiredMarkers []string `json:"expired_markers"`

	UserAgent        string  `json:"user_agent"`
	TimeoutSeconds   int     `json:"timeout_seconds"`
	RateLimit        float64 `json:"rate_limit"`
	RateBurst        int     `json:"rate_burst"`
	InsecureTLS      bool    `json:"insecure_tls"`
	CloudflareBypass bool    `json:"cloudflare_bypass"`
}

// Endpoint returns the endpoint for a kind of query.
func (p Profile) Endpoint(kind QueryKind) (Endpoint, bool) {
	e, ok := p.Endpoints[kind]
	return e, ok
}

// Supports reports whether the portal accepts a kind of query.
func (p Profile) Supports(kind QueryKind) bool {
	_, ok := p.Endpoints[kind]
	return ok
}

// Validate reports configuration mistakes that would only surface halfway
// through a search.
func (p Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("profile: missing id")
	}
	if _, err := url.ParseRequestURI(p.BaseURL); err != nil {
		return fmt.Errorf("profile %s: invalid base url: %w", p.ID, err)
	}
	if p.Challenge.Path == "" && p.Challenge.Selector == "" {
		return fmt.Errorf("profile %s: challenge needs a path or a selector", p.ID)
	}
	if p.AnswerField == "" && p.Verification == nil {
		return fmt.Errorf("profile %s: missing answer field", p.ID)
	}
	if len(p.Endpoints) == 0 {
		return fmt.Errorf("profile %s: no query endpoints", p.ID)
	}
	for kind, e := range p.Endpoints {
		if e.Path == "" {
			return fmt.Errorf("profile %s: endpoint %s has no path", p.ID, kind)
		}
	}
	if p.Document.Path == "" {
		return fmt.Errorf("profile %s: missing document endpoint", p.ID)
	}
	l := p.Layout
	for name, offset := range map[string]int{
		"case_number": l.CaseNumber,
		"order_date":  l.OrderDate,
		"locator":     l.Locator,
	} {
		if offset < 0 {
			return fmt.Errorf("profile %s: layout offset %s is required", p.ID, name)
		}
	}
	if l.MinFields <= max(l.CaseNumber, l.OrderDate, l.Locator) {
		return fmt.Errorf("profile %s: min_fields %d does not cover the required offsets", p.ID, l.MinFields)
	}
	return nil
}

// URL resolves a portal relative path against the base url.
func (p Profile) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(p.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// IsIncorrect reports whether a response body signals a rejected answer.
func (p Profile) IsIncorrect(body string) bool {
	return containsAny(body, p.IncorrectMarkers)
}

// IsExpired reports whether a response body signals a forgotten session.
func (p Profile) IsExpired(body string) bool {
	return containsAny(body, p.ExpiredMarkers)
}

func containsAny(body string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(body, m) {
			return true
		}
	}
	return false
}
