package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanTitle(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "Play Catan online", expected: "Catan"},
		{input: "Spiele Carcassonne im Browser", expected: "Carcassonne"},
		{input: "Jouer à Azul en ligne", expected: "à Azul"},
		{input: "Jugar Carcassonne online gratis", expected: "Carcassonne"},
		{input: "play 7 Wonders Online", expected: "7 Wonders"},
		{input: "Catan • Board Game Arena", expected: "Catan"},
		{input: "  Azul  ", expected: "Azul"},
		{input: "Playground", expected: "Playground"},
		{input: "seven Wonders ", expected: "seven Wonders"},
	}

	for _, row := range table {
		require.Equal(t, row.expected, CleanTitle(row.input), row.input)
	}
}
