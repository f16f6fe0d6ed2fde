package bgg

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func preloadPage(item string) string {
	return fmt.Sprintf(
		"<html><script>\n\tGEEK.geekitemPreload = {\"item\":%s};\n\tGEEK.geekitemSettings = {};\n</script></html>",
		item,
	)
}

func TestExtractFixture(t *testing.T) {
	body, err := os.ReadFile("testdata/boardgame.html")
	if err != nil {
		t.Fatal(err)
	}

	stats, err := Extract(string(body))
	require.NoError(t, err)

	expected := Stats{
		Score:           "7.3",
		Weight:          "2.11",
		Rank:            "123",
		BestPlayerCount: "2-5",
		Name:            "Fixture Game",
	}
	require.Empty(t, cmp.Diff(expected, stats))
}

func TestExtract(t *testing.T) {
	testCases := []struct {
		name     string
		item     string
		expected Stats
	}{
		{
			name: "numeric fields",
			item: `{"stats":{"average":7.345,"avgweight":2.111},"rankinfo":[{"rankobjectid":1,"rank":"123"}],"minplayers":2,"maxplayers":5}`,
			expected: Stats{
				Score: "7.3", Weight: "2.11", Rank: "123", BestPlayerCount: "2-5",
			},
		},
		{
			name: "not ranked",
			item: `{"stats":{"average":"6.5","avgweight":"1.5"},"rankinfo":[{"rankobjectid":1,"rank":"Not Ranked"}],"minplayers":"1","maxplayers":"4"}`,
			expected: Stats{
				Score: "6.5", Weight: "1.50", Rank: "-", BestPlayerCount: "1-4",
			},
		},
		{
			name: "overall rank is not the first entry",
			item: `{"stats":{},"rankinfo":[{"rankobjectid":5499,"rank":"17"},{"rankobjectid":"1","rank":"2502"}]}`,
			expected: Stats{
				Score: "?", Weight: "?", Rank: "2502", BestPlayerCount: "?",
			},
		},
		{
			name: "no overall rank falls back to the first entry",
			item: `{"rankinfo":[{"rankobjectid":5499,"rank":"17"},{"rankobjectid":5497,"rank":"3"}],"minplayers":3,"maxplayers":3}`,
			expected: Stats{
				Score: "?", Weight: "?", Rank: "17", BestPlayerCount: "3",
			},
		},
		{
			name: "missing rank field",
			item: `{"rankinfo":[{"rankobjectid":1}]}`,
			expected: Stats{
				Score: "?", Weight: "?", Rank: "-", BestPlayerCount: "?",
			},
		},
		{
			name: "zero averages are unknown",
			item: `{"stats":{"average":"0","avgweight":0},"rankinfo":[]}`,
			expected: Stats{
				Score: "?", Weight: "?", Rank: "-", BestPlayerCount: "?",
			},
		},
		{
			name: "poll winner",
			item: `{"minplayers":1,"maxplayers":5,"polls":{"userplayers":{
				"1":[{"value":"Best","numvotes":"2"},{"value":"Recommended","numvotes":"90"}],
				"2":[{"value":"Best","numvotes":"12"}],
				"3":[{"value":"Recommended","numvotes":"70"},{"value":"Best","numvotes":"55"}],
				"4":[{"value":"Best","numvotes":"31"}]
			}}}`,
			expected: Stats{
				Score: "?", Weight: "?", Rank: "-", BestPlayerCount: "3",
			},
		},
		{
			name: "poll ties keep the first maximum",
			item: `{"polls":{"userplayers":{
				"4":[{"value":"Best","numvotes":40}],
				"2":[{"value":"Best","numvotes":40}],
				"3":[{"value":"Best","numvotes":10}]
			}}}`,
			expected: Stats{
				Score: "?", Weight: "?", Rank: "-", BestPlayerCount: "4",
			},
		},
		{
			name: "open ended poll label",
			item: `{"polls":{"userplayers":{"3":[{"value":"Best","numvotes":1}],"5+":[{"value":"Best","numvotes":9}]}}}`,
			expected: Stats{
				Score: "?", Weight: "?", Rank: "-", BestPlayerCount: "5",
			},
		},
		{
			name: "poll without votes falls back to player range",
			item: `{"minplayers":2,"maxplayers":6,"polls":{"userplayers":{"2":[{"value":"Best","numvotes":"0"}],"3":"garbage"}}}`,
			expected: Stats{
				Score: "?", Weight: "?", Rank: "-", BestPlayerCount: "2-6",
			},
		},
		{
			name: "name is extracted",
			item: `{"name":" Catan ","stats":{"average":"7.1"}}`,
			expected: Stats{
				Score: "7.1", Weight: "?", Rank: "-", BestPlayerCount: "?", Name: "Catan",
			},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			stats, err := Extract(preloadPage(test.item))
			require.NoError(t, err)
			require.Empty(t, cmp.Diff(test.expected, stats))

			fromExtractStats, ok := ExtractStats(preloadPage(test.item))
			require.True(t, ok)
			require.Equal(t, stats, fromExtractStats)
		})
	}
}

func TestExtractFailures(t *testing.T) {
	testCases := []struct {
		name  string
		body  string
		check func(t *testing.T, err error)
	}{
		{
			name: "no preload",
			body: "<html><body>nothing here</body></html>",
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrPreloadNotFound)
			},
		},
		{
			name: "malformed json",
			body: "<script>\nGEEK.geekitemPreload = {\"item\": {\"stats\": oops};\nGEEK.other = 1;\n</script>",
			check: func(t *testing.T, err error) {
				var parseErr *ParseError
				require.True(t, errors.As(err, &parseErr))
			},
		},
		{
			name: "missing item",
			body: preloadPage(`null`),
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrItemNotFound)
			},
		},
		{
			name: "blob is not followed by another assignment",
			body: "<script>GEEK.geekitemPreload = {\"item\":{}};</script>",
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrPreloadNotFound)
			},
		},
		{
			name:  "empty body",
			body:  "",
			check: func(t *testing.T, err error) { require.Error(t, err) },
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			stats, err := Extract(test.body)
			test.check(t, err)
			require.Equal(t, Stats{}, stats)

			_, ok := ExtractStats(test.body)
			require.False(t, ok)
		})
	}
}
