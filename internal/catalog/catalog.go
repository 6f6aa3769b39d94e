// Package catalog fetches the option lists (judges, act types) a portal
// offers and matches human typed names against them.
package catalog

import (
	"context"
	"courtfetch/internal/components/assert"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/portal"
	"courtfetch/internal/records"
	"courtfetch/internal/session"
	"courtfetch/pkg/textutil"
	"errors"
	"fmt"

	"github.com/antzucaro/matchr"
	"github.com/go-resty/resty/v2"
)

const report_catalog_fetch = "catalog.fetch"

var (
	ErrNoLookup = errors.New("portal has no such lookup")
	ErrNoMatch  = errors.New("no option matches")
)

// MinSimilarity is the lowest Jaro-Winkler similarity MatchOption accepts.
const MinSimilarity = 0.8

// Opener creates sessions that have not done their handshake, lookups are
// not gated by a challenge.
type Opener interface {
	New(profile portal.Profile) (*session.Session, error)
}

type Catalog struct {
	opener Opener
	tel    telemetry.API
}

func NewCatalog(opener Opener, tel telemetry.API) Catalog {
	assert.NotNil(opener)
	assert.NotNil(tel)
	return Catalog{
		opener: opener,
		tel:    telemetry.NewScopedAPI("catalog", tel),
	}
}

// Judges lists the judges a portal can be searched by.
func (c Catalog) Judges(ctx context.Context, p portal.Profile) ([]records.Option, error) {
	return c.fetch(ctx, p, p.Lookups.Judges, "judges", "")
}

// Acts lists the act types whose name matches search, an empty search
// lists every act the portal returns.
func (c Catalog) Acts(ctx context.Context, p portal.Profile, search string) ([]records.Option, error) {
	return c.fetch(ctx, p, p.Lookups.Acts, "acts", search)
}

func (c Catalog) fetch(ctx context.Context, p portal.Profile, lookup *portal.Lookup, name, search string) ([]records.Option, error) {
	if lookup == nil {
		return nil, fmt.Errorf("%w: %s has no %s lookup", ErrNoLookup, p.ID, name)
	}

	s, err := c.opener.New(p)
	if err != nil {
		return nil, err
	}

	form := map[string]string{}
	if p.TokenField != "" {
		form[p.TokenField] = ""
	}
	for k, v := range lookup.Static {
		form[k] = v
	}
	if lookup.SearchField != "" {
		form[lookup.SearchField] = search
	}

	var res *resty.Response
	err = s.Do(func(client *resty.Client) error {
		var err error
		res, err = client.R().
			SetContext(ctx).
			SetFormData(form).
			Post(p.URL(lookup.Path))
		return err
	})
	if err != nil {
		c.tel.ReportWarning(report_catalog_fetch, p.ID, name, err)
		return nil, fmt.Errorf("fetch %s of %s: %w", name, p.ID, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("fetch %s of %s: %s", name, p.ID, res.Status())
	}

	options := records.ParseOptions(string(res.Body()))
	c.tel.ReportCount(report_catalog_fetch, int64(len(options)))
	return options, nil
}

// MatchOption finds the option whose label or value is closest to name. An
// exact value match always wins.
func MatchOption(options []records.Option, name string) (records.Option, float64, error) {
	target := textutil.NormalizeName(name)
	if target == "" {
		return records.Option{}, 0, fmt.Errorf("%w: empty name", ErrNoMatch)
	}

	var best records.Option
	bestScore := 0.0
	for _, option := range options {
		if option.Value == textutil.Clean(name) {
			return option, 1, nil
		}
		score := matchr.JaroWinkler(target, textutil.NormalizeName(option.Label), false)
		if score > bestScore {
			best = option
			bestScore = score
		}
	}
	if bestScore < MinSimilarity {
		return records.Option{}, bestScore, fmt.Errorf("%w: %q", ErrNoMatch, name)
	}
	return best, bestScore, nil
}
