// Package bot plays computer seats. A Player looks for words from its list
// that can be traced on the board and picks one of them.
package bot

import (
	"math/rand/v2"
	"slices"

	"github.com/DoyleJ11/wordhex-backend/internal/grid"
	"github.com/DoyleJ11/wordhex-backend/internal/scoring"
)

type Move struct {
	Word string
	Path grid.Path
}

type Options struct {
	// MaxLength caps the words the bot will play; 0 means no cap.
	MaxLength int
	// Pick chooses among the traceable moves, sorted by descending score.
	// Defaults to a uniform random pick.
	Pick func(moves []Move) Move
}

// Player is safe for concurrent use; it holds no per-match state.
type Player struct {
	words []string
	opts  Options
}

func New(words []string, opts Options) *Player {
	list := make([]string, 0, len(words))
	for _, w := range words {
		w = scoring.Normalize(w)
		n := len([]rune(w))
		if n < scoring.MinWordLength || (opts.MaxLength > 0 && n > opts.MaxLength) {
			continue
		}
		list = append(list, w)
	}
	if opts.Pick == nil {
		opts.Pick = func(moves []Move) Move { return moves[rand.N(len(moves))] }
	}
	return &Player{words: list, opts: opts}
}

// Moves lists every word of the bot's list that can be traced on g, best
// scoring first.
func (p *Player) Moves(g grid.Grid) []Move {
	var out []Move
	for _, w := range p.words {
		if path, ok := Trace(g, w); ok {
			out = append(out, Move{Word: w, Path: path})
		}
	}
	slices.SortStableFunc(out, func(a, b Move) int { return scoring.Score(b.Word) - scoring.Score(a.Word) })
	return out
}

// Move picks the bot's play on g. ok is false when nothing can be traced.
func (p *Player) Move(g grid.Grid) (Move, bool) {
	moves := p.Moves(g)
	if len(moves) == 0 {
		return Move{}, false
	}
	return p.opts.Pick(moves), true
}

// Trace finds a path spelling word on g, or reports false.
func Trace(g grid.Grid, word string) (grid.Path, bool) {
	letters := []rune(scoring.Normalize(word))
	if len(letters) == 0 {
		return nil, false
	}
	size := g.Size()
	path := make(grid.Path, 0, len(letters))
	var walk func(p grid.Point) bool
	walk = func(p grid.Point) bool {
		if !g.Contains(p) || path.Contains(p) || g.At(p) != letters[len(path)] {
			return false
		}
		path = append(path, p)
		if len(path) == len(letters) {
			return true
		}
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if (dx != 0 || dy != 0) && walk(grid.Point{X: p.X + dx, Y: p.Y + dy}) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		return false
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if walk(grid.Point{X: x, Y: y}) {
				return path.Clone(), true
			}
		}
	}
	return nil, false
}
