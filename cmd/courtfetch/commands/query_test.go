package commands

import (
	"context"
	"courtfetch/internal/catalog"
	"courtfetch/internal/portal"
	"courtfetch/internal/query"
	"courtfetch/internal/records"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	judges []records.Option
	acts   []records.Option
	search string
}

func (f *fakeLister) Judges(context.Context, portal.Profile) ([]records.Option, error) {
	return f.judges, nil
}

func (f *fakeLister) Acts(_ context.Context, _ portal.Profile, search string) ([]records.Option, error) {
	f.search = search
	return f.acts, nil
}

func TestBuildQuery(t *testing.T) {
	ist := time.FixedZone("IST", 5*60*60+30*60)
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, ist)
	lister := &fakeLister{
		judges: []records.Option{{Value: "12", Label: "Hon'ble Sri Justice K. Suresh Reddy"}, {Value: "31", Label: "Hon'ble Smt Justice B. Rao"}},
		acts:   []records.Option{{Value: "1860045", Label: "Indian Penal Code"}},
	}

	cases := []struct {
		name     string
		config   QueryConfig
		expected query.Query
	}{
		{
			name:     "citation",
			config:   QueryConfig{Citation: "2025 (1) ALT 5"},
			expected: query.ByCitation{Citation: "2025 (1) ALT 5"},
		},
		{
			name:     "party",
			config:   QueryConfig{Party: "state of andhra", Year: 2024},
			expected: query.ByParty{Party: "state of andhra", Year: 2024},
		},
		{
			name:   "date range",
			config: QueryConfig{From: "2025-03-01", To: "2025-03-10"},
			expected: query.ByDateRange{
				From: time.Date(2025, 3, 1, 0, 0, 0, 0, ist),
				To:   time.Date(2025, 3, 10, 0, 0, 0, 0, ist),
			},
		},
		{
			name:   "judge by name over the last week",
			config: QueryConfig{JudgeName: "HON'BLE SRI JUSTICE K SURESH REDDY", LastDays: 7},
			expected: query.ByJudge{
				JudgeCode: "12",
				From:      now.AddDate(0, 0, -7),
				To:        now,
			},
		},
		{
			name:     "act by name",
			config:   QueryConfig{ActName: "indian penal code", Section: "302"},
			expected: query.ByActSection{ActName: "indian penal code", ActCode: "1860045", Section: "302"},
		},
		{
			name:     "explicit kind wins",
			config:   QueryConfig{Kind: "act", Citation: "ignored", ActCode: "99"},
			expected: query.ByActSection{ActCode: "99"},
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			q, err := test.config.Build(context.Background(), lister, portal.Andhra(), now)
			require.NoError(t, err)
			if diff := cmp.Diff(test.expected, q); diff != "" {
				t.Fatal(diff)
			}
		})
	}
	require.Equal(t, "indian penal code", lister.search)
}

func TestBuildQueryErrors(t *testing.T) {
	lister := &fakeLister{judges: []records.Option{{Value: "12", Label: "Justice Reddy"}}}
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	_, err := QueryConfig{}.Build(context.Background(), lister, portal.Andhra(), now)
	require.ErrorIs(t, err, query.ErrInvalidQuery)

	_, err = QueryConfig{Kind: "constitution"}.Build(context.Background(), lister, portal.Andhra(), now)
	require.ErrorIs(t, err, query.ErrInvalidQuery)

	_, err = QueryConfig{From: "14-03-2025", To: "2025-03-20"}.Build(context.Background(), lister, portal.Andhra(), now)
	require.ErrorIs(t, err, query.ErrInvalidQuery)

	_, err = QueryConfig{JudgeName: "somebody else entirely", LastDays: 3}.Build(context.Background(), lister, portal.Andhra(), now)
	require.ErrorIs(t, err, catalog.ErrNoMatch)
}
