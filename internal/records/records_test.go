package records

import (
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/portal"
	"testing"

	_ "embed"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

//go:embed andhra_feed_test.txt
var andhraFeed string

func TestParseAndhraFeed(t *testing.T) {
	recorder := telemetry.NewRecorder()
	parser := NewParser(portal.Andhra().Layout, recorder)

	records := parser.Parse(andhraFeed)
	expected := []Record{
		{
			Sequence:   1,
			CaseNumber: "CRLP/11871/2025",
			OrderDate:  "12-03-2025",
			OrderType:  "ORDER",
			Locator:    "CRLP%252F11871%252F2025%252Forder.pdf",
			CourtCode:  "1",
			CINO:       "APHC010456782025",
		},
		{
			Sequence:   2,
			CaseNumber: "WP/220/2024",
			OrderDate:  "13-03-2025",
			OrderType:  "JUDGMENT",
			Locator:    "N",
			CourtCode:  "1",
			CINO:       "APHC010000012024",
		},
		{
			Sequence:   3,
			CaseNumber: "CRP/5/2023",
			OrderDate:  "14-03-2025",
			OrderType:  "ORDER",
			Locator:    "abc123",
			CourtCode:  "2",
			CINO:       "APHC010000052023",
		},
	}
	if diff := cmp.Diff(expected, records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}

	require.True(t, records[0].HasLocator())
	require.False(t, records[1].HasLocator())
	require.Len(t, recorder.Find(telemetry.KindWarning, report_parser_parse), 1)
}

func TestParseDelimiters(t *testing.T) {
	parser := NewParser(portal.Andhra().Layout, telemetry.NewRecorder())

	// the trailing "~2" of the secondary delimiter stays on the first record
	raw := "A/1/2020~01-01-2020~t1~ORDER~1~x~y~C1~2##" + "B/2/2020~02-01-2020~t2~ORDER~1~x~y~C2"
	records := parser.Parse(raw)
	require.Len(t, records, 2)
	require.Equal(t, "C1", records[0].CINO)
	require.Equal(t, "C2", records[1].CINO)

	records = parser.Parse("A/1/2020~01-01-2020~t1~ORDER~1~x~y~C1")
	require.Len(t, records, 1)
	require.Equal(t, 1, records[0].Sequence)
}

func TestParseEmpty(t *testing.T) {
	parser := NewParser(portal.Andhra().Layout, telemetry.NewRecorder())
	require.Empty(t, parser.Parse(""))
	require.Empty(t, parser.Parse("   \n"))
}

func TestParseAssamCourtCodeGuess(t *testing.T) {
	profile, err := portal.AssamBench("kohima")
	require.NoError(t, err)
	parser := NewParser(profile.Layout, telemetry.NewRecorder())

	raw := "WP(C)/1/2024~01-02-2024~tok1~ORDER~7~3~x~y~GAHC1" +
		"##WP(C)/2/2024~02-02-2024~tok2~ORDER~5~abc~x~y~GAHC2" +
		"##WP(C)/3/2024~03-02-2024~tok3" +
		"##short~only"
	records := parser.Parse(raw)
	require.Len(t, records, 3)

	// field 5 wins when numeric, then field 4, then the bench itself
	require.Equal(t, "3", records[0].CourtCode)
	require.Equal(t, "5", records[1].CourtCode)
	require.Equal(t, "2", records[2].CourtCode)
	require.Equal(t, "GAHC1", records[0].CINO)
	require.Equal(t, "", records[2].CINO)
	require.Equal(t, "", records[2].OrderType)
}

func TestParseOptions(t *testing.T) {
	raw := "0~Select Judge#101~HON'BLE SRI JUSTICE A#102~ HON'BLE SMT JUSTICE B #garbage#"
	options := ParseOptions(raw)
	require.Equal(t, []Option{
		{Value: "101", Label: "HON'BLE SRI JUSTICE A"},
		{Value: "102", Label: "HON'BLE SMT JUSTICE B"},
	}, options)
}
