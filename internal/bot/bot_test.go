package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/wordhex-backend/internal/grid"
	"github.com/DoyleJ11/wordhex-backend/internal/scoring"
)

var board = grid.MustParse(
	"CAT",
	"XRS",
	"DOG",
)

func TestTrace(t *testing.T) {
	cases := []struct {
		word string
		ok   bool
	}{
		{"cat", true},
		{"DOG", true},
		{"cart", true}, // C-A-R-T turns back up the grid
		{"rats", true},
		{"dogs", true},
		{"tact", false}, // needs a second T
		{"zoo", false},
	}
	for _, tc := range cases {
		t.Run(tc.word, func(t *testing.T) {
			path, ok := Trace(board, tc.word)
			require.Equal(t, tc.ok, ok)
			if !ok {
				return
			}
			require.NoError(t, grid.Validate(board, path))
			assert.Equal(t, len(tc.word), len(path))
			assert.Equal(t, scoring.Normalize(tc.word), grid.Word(board, path))
		})
	}
}

func TestMoves_BestFirstAndCapped(t *testing.T) {
	p := New([]string{"cat", "dog", "cart", "rats", "zoo", "at"}, Options{})
	moves := p.Moves(board)
	words := make([]string, len(moves))
	for i, m := range moves {
		words[i] = m.Word
	}
	assert.ElementsMatch(t, []string{"CAT", "DOG", "CART", "RATS"}, words)
	assert.Equal(t, "CART", words[0]) // 5+1+2+2

	short := New([]string{"cat", "cart"}, Options{MaxLength: 3})
	moves = short.Moves(board)
	require.Len(t, moves, 1)
	assert.Equal(t, "CAT", moves[0].Word)
}

func TestMove_UsesPick(t *testing.T) {
	best := func(moves []Move) Move { return moves[0] }
	p := New([]string{"cat", "cart"}, Options{Pick: best})
	m, ok := p.Move(board)
	require.True(t, ok)
	assert.Equal(t, "CART", m.Word)
	assert.Equal(t, "CART", grid.Word(board, m.Path))

	_, ok = New([]string{"zoo"}, Options{}).Move(board)
	assert.False(t, ok)
}

