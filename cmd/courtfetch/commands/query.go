package commands

import (
	"context"
	"courtfetch/internal/catalog"
	"courtfetch/internal/portal"
	"courtfetch/internal/query"
	"courtfetch/internal/records"
	"fmt"
	"log/slog"
	"time"
)

const dateLayout = "2006-01-02"

// QueryConfig is a query as typed on the command line or written in a watch.
// Kind may be left empty when only one kind of field is set.
type QueryConfig struct {
	Kind      string `json:"kind"`
	Citation  string `json:"citation"`
	Party     string `json:"party"`
	Year      int    `json:"year"`
	From      string `json:"from"`
	To        string `json:"to"`
	JudgeCode string `json:"judge_code"`
	JudgeName string `json:"judge_name"`
	ActCode   string `json:"act_code"`
	ActName   string `json:"act_name"`
	Section   string `json:"section"`
	// LastDays replaces From/To with the given number of days up to today,
	// mostly useful for watches.
	LastDays int `json:"last_days"`
}

func (c QueryConfig) kind() (portal.QueryKind, error) {
	if c.Kind != "" {
		for _, k := range portal.AllKinds {
			if string(k) == c.Kind {
				return k, nil
			}
		}
		return "", fmt.Errorf("%w: unknown kind %q", query.ErrInvalidQuery, c.Kind)
	}
	switch {
	case c.Citation != "":
		return portal.KindCitation, nil
	case c.Party != "":
		return portal.KindParty, nil
	case c.JudgeCode != "" || c.JudgeName != "":
		return portal.KindJudge, nil
	case c.ActCode != "" || c.ActName != "":
		return portal.KindAct, nil
	case c.From != "" || c.To != "" || c.LastDays > 0:
		return portal.KindDateRange, nil
	}
	return "", fmt.Errorf("%w: nothing to search for", query.ErrInvalidQuery)
}

func (c QueryConfig) dates(now time.Time) (from, to time.Time, err error) {
	if c.LastDays > 0 {
		to = now
		from = now.AddDate(0, 0, -c.LastDays)
		return from, to, nil
	}
	from, err = time.ParseInLocation(dateLayout, c.From, now.Location())
	if err != nil {
		return from, to, fmt.Errorf("%w: from date: %w", query.ErrInvalidQuery, err)
	}
	to, err = time.ParseInLocation(dateLayout, c.To, now.Location())
	if err != nil {
		return from, to, fmt.Errorf("%w: to date: %w", query.ErrInvalidQuery, err)
	}
	return from, to, nil
}

// optionLister is the part of catalog.Catalog used to turn names into codes.
type optionLister interface {
	Judges(ctx context.Context, p portal.Profile) ([]records.Option, error)
	Acts(ctx context.Context, p portal.Profile, search string) ([]records.Option, error)
}

// Build turns the config into a query for the given portal, judge and act
// names are looked up in the portal's catalog when no code is given.
func (c QueryConfig) Build(ctx context.Context, lister optionLister, p portal.Profile, now time.Time) (query.Query, error) {
	kind, err := c.kind()
	if err != nil {
		return nil, err
	}

	switch kind {
	case portal.KindCitation:
		return query.ByCitation{Citation: c.Citation}, nil
	case portal.KindParty:
		return query.ByParty{Party: c.Party, Year: c.Year}, nil
	case portal.KindDateRange:
		from, to, err := c.dates(now)
		if err != nil {
			return nil, err
		}
		return query.ByDateRange{From: from, To: to}, nil
	case portal.KindJudge:
		from, to, err := c.dates(now)
		if err != nil {
			return nil, err
		}
		code := c.JudgeCode
		if code == "" {
			options, err := lister.Judges(ctx, p)
			if err != nil {
				return nil, err
			}
			option, score, err := catalog.MatchOption(options, c.JudgeName)
			if err != nil {
				return nil, err
			}
			slog.InfoContext(ctx, "matched judge", "name", c.JudgeName, "judge", option.Label, "code", option.Value, "score", score)
			code = option.Value
		}
		return query.ByJudge{JudgeCode: code, From: from, To: to}, nil
	case portal.KindAct:
		q := query.ByActSection{ActName: c.ActName, ActCode: c.ActCode, Section: c.Section}
		if q.ActCode == "" && q.ActName != "" {
			options, err := lister.Acts(ctx, p, q.ActName)
			if err != nil {
				return nil, err
			}
			option, score, err := catalog.MatchOption(options, q.ActName)
			if err != nil {
				return nil, err
			}
			slog.InfoContext(ctx, "matched act", "name", q.ActName, "act", option.Label, "code", option.Value, "score", score)
			q.ActCode = option.Value
		}
		return q, nil
	}
	return nil, fmt.Errorf("%w: %s", query.ErrUnsupportedQuery, kind)
}
