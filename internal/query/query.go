// Package query describes the searches a portal accepts and submits them.
package query

import (
	"courtfetch/internal/portal"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnsupportedQuery = errors.New("query not supported by portal")
	ErrInvalidQuery     = errors.New("invalid query")
)

// Query is one of ByCitation, ByParty, ByDateRange, ByJudge or
// ByActSection.
type Query interface {
	Kind() portal.QueryKind
	// Label is a short human readable description, it names the directory
	// the results are written to.
	Label() string
	Validate() error
	// fields returns the logical field values, dates formatted with layout.
	fields(dateLayout string) map[string]string
}

type ByCitation struct {
	Citation string
}

func (q ByCitation) Kind() portal.QueryKind { return portal.KindCitation }

func (q ByCitation) Label() string {
	return "citation " + strings.TrimSpace(q.Citation)
}

func (q ByCitation) Validate() error {
	if strings.TrimSpace(q.Citation) == "" {
		return fmt.Errorf("%w: empty citation", ErrInvalidQuery)
	}
	return nil
}

func (q ByCitation) fields(string) map[string]string {
	return map[string]string{portal.FieldCitation: strings.TrimSpace(q.Citation)}
}

type ByParty struct {
	Party string
	// Year of registration, zero searches every year.
	Year int
}

func (q ByParty) Kind() portal.QueryKind { return portal.KindParty }

func (q ByParty) Label() string {
	if q.Year > 0 {
		return fmt.Sprintf("party %s %d", strings.TrimSpace(q.Party), q.Year)
	}
	return "party " + strings.TrimSpace(q.Party)
}

func (q ByParty) Validate() error {
	if len(strings.TrimSpace(q.Party)) < 3 {
		return fmt.Errorf("%w: party name needs at least 3 characters", ErrInvalidQuery)
	}
	if q.Year < 0 {
		return fmt.Errorf("%w: negative year", ErrInvalidQuery)
	}
	return nil
}

func (q ByParty) fields(string) map[string]string {
	year := ""
	if q.Year > 0 {
		year = strconv.Itoa(q.Year)
	}
	return map[string]string{
		portal.FieldParty: strings.TrimSpace(q.Party),
		portal.FieldYear:  year,
	}
}

type ByDateRange struct {
	From time.Time
	To   time.Time
}

func (q ByDateRange) Kind() portal.QueryKind { return portal.KindDateRange }

func (q ByDateRange) Label() string {
	return fmt.Sprintf("orders %s to %s", q.From.Format(time.DateOnly), q.To.Format(time.DateOnly))
}

func (q ByDateRange) Validate() error {
	return validateRange(q.From, q.To)
}

func (q ByDateRange) fields(layout string) map[string]string {
	return map[string]string{
		portal.FieldFromDate: q.From.Format(layout),
		portal.FieldToDate:   q.To.Format(layout),
	}
}

type ByJudge struct {
	JudgeCode string
	From      time.Time
	To        time.Time
}

func (q ByJudge) Kind() portal.QueryKind { return portal.KindJudge }

func (q ByJudge) Label() string {
	return fmt.Sprintf("judge %s %s to %s", q.JudgeCode, q.From.Format(time.DateOnly), q.To.Format(time.DateOnly))
}

func (q ByJudge) Validate() error {
	if strings.TrimSpace(q.JudgeCode) == "" {
		return fmt.Errorf("%w: missing judge code", ErrInvalidQuery)
	}
	return validateRange(q.From, q.To)
}

func (q ByJudge) fields(layout string) map[string]string {
	return map[string]string{
		portal.FieldJudgeCode: strings.TrimSpace(q.JudgeCode),
		portal.FieldFromDate:  q.From.Format(layout),
		portal.FieldToDate:    q.To.Format(layout),
	}
}

type ByActSection struct {
	ActName string
	ActCode string
	Section string
}

func (q ByActSection) Kind() portal.QueryKind { return portal.KindAct }

func (q ByActSection) Label() string {
	name := strings.TrimSpace(q.ActName)
	if name == "" {
		name = q.ActCode
	}
	if q.Section != "" {
		return fmt.Sprintf("act %s section %s", name, q.Section)
	}
	return "act " + name
}

// Validate accepts an act name, an act code or both. With only a name the
// portal searches its act types by it.
func (q ByActSection) Validate() error {
	if strings.TrimSpace(q.ActCode) == "" && strings.TrimSpace(q.ActName) == "" {
		return fmt.Errorf("%w: missing act name and act code", ErrInvalidQuery)
	}
	return nil
}

func (q ByActSection) fields(string) map[string]string {
	return map[string]string{
		portal.FieldActName: strings.TrimSpace(q.ActName),
		portal.FieldActCode: strings.TrimSpace(q.ActCode),
		portal.FieldSection: strings.TrimSpace(q.Section),
	}
}

func validateRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidQuery)
	}
	if to.Before(from) {
		return fmt.Errorf("%w: range ends before it starts", ErrInvalidQuery)
	}
	return nil
}

// Form builds the form a portal expects for q: the profile's common
// fields, the endpoint's static fields and the query's own fields under
// their portal names.
func Form(p portal.Profile, q Query) (portal.Endpoint, map[string]string, error) {
	endpoint, ok := p.Endpoint(q.Kind())
	if !ok {
		return portal.Endpoint{}, nil, fmt.Errorf("%w: %s does not support %s queries", ErrUnsupportedQuery, p.ID, q.Kind())
	}

	form := map[string]string{}
	for k, v := range p.Common {
		form[k] = v
	}
	for k, v := range endpoint.Static {
		form[k] = v
	}
	for logical, value := range q.fields(p.DateLayout) {
		name, ok := endpoint.Fields[logical]
		if !ok {
			continue
		}
		form[name] = value
	}
	return endpoint, form, nil
}
