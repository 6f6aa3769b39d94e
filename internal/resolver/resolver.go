// Package resolver turns a result record into a validated document on disk.
package resolver

import (
	"context"
	"courtfetch/internal/components/assert"
	"courtfetch/internal/components/chrono"
	"courtfetch/internal/components/retry"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/portal"
	"courtfetch/internal/records"
	"courtfetch/internal/session"
	"courtfetch/internal/store"
	"courtfetch/internal/transport"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	report_resolver_resolve = "resolver.resolve"
	report_resolver_stream  = "resolver.stream"
)

var (
	// ErrNoDocumentCandidate is returned when neither the display page nor
	// anything it points at is a document.
	ErrNoDocumentCandidate = errors.New("no document candidate")
	// ErrTransport wraps network failures and non-2xx responses.
	ErrTransport = errors.New("transport error")
)

type Resolver struct {
	store  *store.Store
	clock  chrono.API
	policy retry.Policy
	tel    telemetry.API
}

// NewResolver retries failed requests with policy, usually
// transport.DefaultRetryPolicy.
func NewResolver(s *store.Store, clock chrono.API, policy retry.Policy, tel telemetry.API) Resolver {
	assert.NotNil(s)
	assert.NotNil(clock)
	assert.NotNil(tel)
	return Resolver{
		store:  s,
		clock:  clock,
		policy: policy,
		tel:    telemetry.NewScopedAPI("resolver", tel),
	}
}

// quote escapes like a browser building a query string by hand: spaces
// become %20 and keep is left alone.
func quote(s, keep string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
	for _, c := range keep {
		escaped = strings.ReplaceAll(escaped, url.QueryEscape(string(c)), string(c))
	}
	return escaped
}

// NominalURL is the document endpoint url of a record. The locator is
// double-encoded by the portals, it is unescaped twice and escaped once.
func NominalURL(p portal.Profile, r records.Record) string {
	params := []string{
		"filename=" + quote(unescapeTwice(r.Locator), ""),
		"caseno=" + quote(r.CaseNumber, "/"),
		"cCode=" + quote(r.CourtCode, ""),
		"cino=" + quote(r.CINO, ""),
	}
	for _, kv := range p.Document.Static {
		params = append(params, quote(kv.Key, "")+"="+quote(kv.Value, ""))
	}
	return p.URL(p.Document.Path) + "?" + strings.Join(params, "&")
}

// Resolve makes sure the document of r exists at target. An existing file
// is returned without touching the network.
func (r Resolver) Resolve(ctx context.Context, s *session.Session, rec records.Record, target string) (store.Document, error) {
	unlock := r.store.Lock(target)
	defer unlock()

	if doc, ok := r.store.Existing(target); ok {
		r.tel.ReportDebug("document already present", target)
		return doc, nil
	}
	if !rec.HasLocator() {
		return store.Document{}, fmt.Errorf("%w: %s has no locator", ErrNoDocumentCandidate, rec.CaseNumber)
	}

	nominal := NominalURL(s.Profile, rec)
	var res *resty.Response
	err := r.policy.Run(ctx, r.clock, func(ctx context.Context, attempt int) error {
		return s.Do(func(client *resty.Client) error {
			var err error
			res, err = client.R().
				SetContext(ctx).
				SetHeader("referer", s.EntryURL()).
				Get(nominal)
			return transport.Check(res, err)
		})
	})
	if err != nil {
		return store.Document{}, fmt.Errorf("%w: display page: %w", ErrTransport, err)
	}

	body := res.Body()
	contentType := res.Header().Get("content-type")
	if store.IsPDF(head(body), contentType) {
		r.tel.ReportDebug("document candidate", rec.CaseNumber, MethodDirectContentType.String())
		return r.store.Save(target, body, contentType)
	}
	if s.Profile.IsExpired(string(body)) {
		return store.Document{}, fmt.Errorf("%w: display page of %s", session.ErrSessionExpired, rec.CaseNumber)
	}

	page, err := url.Parse(nominal)
	if err != nil {
		return store.Document{}, err
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		page = res.RawResponse.Request.URL
	}

	candidate, ok := FindCandidate(ctx, body, page, s.Profile.Document.Marker)
	if ok {
		r.tel.ReportDebug("document candidate", rec.CaseNumber, candidate.Method.String(), candidate.URL)
		doc, err := r.stream(ctx, s, candidate.URL, page.String(), target)
		if err != nil {
			r.tel.ReportWarning(report_resolver_resolve, rec.CaseNumber, candidate.Method.String(), err)
		}
		return doc, err
	}

	r.tel.ReportDebug("document candidate", rec.CaseNumber, MethodNominalStream.String())
	doc, err := r.stream(ctx, s, nominal, s.EntryURL(), target)
	if errors.Is(err, store.ErrInvalidDocument) {
		err = fmt.Errorf("%w: %s: %w", ErrNoDocumentCandidate, rec.CaseNumber, err)
	}
	if err != nil {
		r.tel.ReportWarning(report_resolver_resolve, rec.CaseNumber, err)
	}
	return doc, err
}

// stream downloads target into path. Every attempt runs in its own Do so a
// refresh is not held up by the backoff.
func (r Resolver) stream(ctx context.Context, s *session.Session, target, referer, path string) (store.Document, error) {
	var doc store.Document
	err := r.policy.Run(ctx, r.clock, func(ctx context.Context, attempt int) error {
		return s.Do(func(client *resty.Client) error {
			res, err := client.R().
				SetContext(ctx).
				SetDoNotParseResponse(true).
				SetHeader("referer", referer).
				Get(target)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrTransport, err)
			}
			body := res.RawBody()
			defer body.Close()
			if res.StatusCode() != http.StatusOK {
				err := transport.CheckStatus(res.StatusCode(), res.Status())
				if err == nil {
					// a redirect that was not followed
					err = retry.Permanent(fmt.Errorf("%w: %s", transport.ErrStatus, res.Status()))
				}
				return fmt.Errorf("%w: %s: %w", ErrTransport, target, err)
			}

			doc, err = r.store.SaveStream(path, body, res.Header().Get("content-type"))
			if errors.Is(err, store.ErrInvalidDocument) {
				return retry.Permanent(err)
			}
			return err
		})
	})
	if err != nil {
		r.tel.ReportDebug(report_resolver_stream, target, err)
	}
	return doc, err
}

func head(body []byte) []byte {
	if len(body) > 4 {
		return body[:4]
	}
	return body
}
