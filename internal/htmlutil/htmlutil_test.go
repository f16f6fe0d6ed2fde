package htmlutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestCleanText(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{input: "Catan", expected: "Catan"},
		{input: "  Ticket to Ride\n\t Europe ", expected: "Ticket to Ride Europe"},
		{input: "Azul\u200b\u0007", expected: "Azul"},
		{input: "", expected: ""},
	}
	for _, test := range testCases {
		require.Equal(t, test.expected, CleanText(test.input))
	}
}

func TestNodeText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(
		`<div class="gamename"><span>7 </span>
			<b>Wonders</b>  Duel</div>`,
	))
	require.NoError(t, err)
	require.Equal(t, "7 Wonders Duel", NodeText(doc))
	require.Equal(t, "", GetText(nil))
}
