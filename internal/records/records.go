// Package records parses the delimited feeds the portals answer queries with.
package records

import (
	"courtfetch/internal/components/assert"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/portal"
	"courtfetch/pkg/textutil"
	"strings"
)

const report_parser_parse = "parser.parse"

const (
	recordDelimiter          = "##"
	secondaryRecordDelimiter = "~2##"
	fieldDelimiter           = "~"
	// noDocument is the locator the portals send for records without a document.
	noDocument = "N"
)

// Record is one result of a query, every field is already sanitized.
type Record struct {
	// Sequence is the 1-based position of the record in the feed, counting
	// only well formed records.
	Sequence   int
	CaseNumber string
	OrderDate  string
	OrderType  string
	Locator    string
	CourtCode  string
	CINO       string
}

// HasLocator reports whether the record points at a document at all.
func (r Record) HasLocator() bool {
	return r.Locator != "" && r.Locator != noDocument
}

type Parser struct {
	layout portal.Layout
	tel    telemetry.API
}

func NewParser(layout portal.Layout, tel telemetry.API) Parser {
	assert.NotNil(tel)
	return Parser{
		layout: layout,
		tel:    telemetry.NewScopedAPI("records", tel),
	}
}

// splitRecords splits on "##", or on "~2##" when the primary delimiter is
// absent, blank segments are dropped.
func splitRecords(raw string) []string {
	delimiter := recordDelimiter
	if !strings.Contains(raw, recordDelimiter) {
		delimiter = secondaryRecordDelimiter
	}
	var out []string
	for _, segment := range strings.Split(raw, delimiter) {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		out = append(out, segment)
	}
	return out
}

func field(parts []string, offset int) string {
	if offset < 0 || offset >= len(parts) {
		return ""
	}
	return parts[offset]
}

func (p Parser) courtCode(parts []string) string {
	for _, offset := range p.layout.CourtCode {
		candidate := field(parts, offset)
		if candidate == "" {
			continue
		}
		if p.layout.CourtCodeDigitsOnly && !textutil.IsDigits(candidate) {
			continue
		}
		return candidate
	}
	return p.layout.CourtCodeFallback
}

// Parse turns a raw feed into records in feed order. Segments with fewer
// fields than the layout requires are dropped and reported.
func (p Parser) Parse(raw string) []Record {
	var out []Record
	malformed := 0
	for _, segment := range splitRecords(raw) {
		parts := strings.Split(segment, fieldDelimiter)
		if len(parts) < p.layout.MinFields {
			malformed++
			continue
		}
		for i := range parts {
			parts[i] = textutil.Clean(parts[i])
		}

		out = append(out, Record{
			Sequence:   len(out) + 1,
			CaseNumber: field(parts, p.layout.CaseNumber),
			OrderDate:  field(parts, p.layout.OrderDate),
			OrderType:  field(parts, p.layout.OrderType),
			Locator:    field(parts, p.layout.Locator),
			CourtCode:  p.courtCode(parts),
			CINO:       field(parts, p.layout.CINO),
		})
	}

	if malformed > 0 {
		p.tel.ReportWarning(report_parser_parse, "dropped malformed records", malformed)
	}
	return out
}
