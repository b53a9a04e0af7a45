package grid

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
)

var ErrEmptyPath = errors.New("empty path")
var ErrOutOfBounds = errors.New("point outside grid")
var ErrNotAdjacent = errors.New("points not adjacent")
var ErrRevisit = errors.New("point already in path")
var ErrNotSquare = errors.New("grid is not square")

// Point is a cell coordinate: X is the column, Y the row, both 0-indexed.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string {
	return "(" + strconv.Itoa(p.X) + "," + strconv.Itoa(p.Y) + ")"
}

// Path is an ordered selection of distinct, pairwise-adjacent points.
type Path []Point

func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

func (p Path) Last() (Point, bool) {
	if len(p) == 0 {
		return Point{}, false
	}
	return p[len(p)-1], true
}

func (p Path) Contains(pt Point) bool {
	for _, q := range p {
		if q == pt {
			return true
		}
	}
	return false
}

// Grid is a square letter matrix indexed [y][x].
type Grid [][]rune

// Parse builds a grid from one string per row.
func Parse(rows ...string) (Grid, error) {
	g := make(Grid, len(rows))
	for y, row := range rows {
		g[y] = []rune(strings.ToUpper(row))
		if len(g[y]) != len(rows) {
			return nil, fmt.Errorf("row %d has %d letters, want %d: %w", y, len(g[y]), len(rows), ErrNotSquare)
		}
	}
	return g, nil
}

// MustParse is Parse for fixtures.
func MustParse(rows ...string) Grid {
	g, err := Parse(rows...)
	if err != nil {
		panic(err)
	}
	return g
}

// FromLetters converts the wire form back into a grid.
func FromLetters(cells [][]string) (Grid, error) {
	g := make(Grid, len(cells))
	for y, row := range cells {
		if len(row) != len(cells) {
			return nil, fmt.Errorf("row %d: %w", y, ErrNotSquare)
		}
		g[y] = make([]rune, len(row))
		for x, c := range row {
			r, _ := utf8.DecodeRuneInString(strings.ToUpper(c))
			g[y][x] = r
		}
	}
	return g, nil
}

// Letters is the wire form: one single-letter string per cell.
func (g Grid) Letters() [][]string {
	out := make([][]string, len(g))
	for y, row := range g {
		out[y] = make([]string, len(row))
		for x, r := range row {
			out[y][x] = string(r)
		}
	}
	return out
}

func (g Grid) Size() int { return len(g) }

func (g Grid) Contains(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < len(g) && p.Y < len(g)
}

func (g Grid) At(p Point) rune { return g[p.Y][p.X] }

// Adjacent reports whether a and b are distinct and at Chebyshev distance 1.
func Adjacent(a, b Point) bool {
	dx, dy := abs(a.X-b.X), abs(a.Y-b.Y)
	return max(dx, dy) == 1
}

// Validate checks every path invariant against g.
func Validate(g Grid, path Path) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	seen := make(map[Point]struct{}, len(path))
	for i, p := range path {
		if !g.Contains(p) {
			return fmt.Errorf("%v: %w", p, ErrOutOfBounds)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%v: %w", p, ErrRevisit)
		}
		seen[p] = struct{}{}
		if i > 0 && !Adjacent(path[i-1], p) {
			return fmt.Errorf("%v -> %v: %w", path[i-1], p, ErrNotAdjacent)
		}
	}
	return nil
}

// Word spells path on g. Points outside the grid are skipped.
func Word(g Grid, path Path) string {
	var b strings.Builder
	for _, p := range path {
		if g.Contains(p) {
			b.WriteRune(g.At(p))
		}
	}
	return b.String()
}

// Tile bag weighted by English letter frequency.
const letterBag = "EEEEEEEEEEEEAAAAAAAAAIIIIIIIIIOOOOOOOONNNNNNRRRRRRTTTTTTLLLLSSSSUUUUDDDDGGGBBCCMMPPFFHHVVWWYYKJXQZ"

// Seed derives the board seed for a lobby round, so a board can be regenerated from its code.
func Seed(code string, round int) [32]byte {
	return blake2b.Sum256([]byte(code + "/" + strconv.Itoa(round)))
}

// Generate fills a size x size grid from the tile bag.
func Generate(size int, seed [32]byte) Grid {
	rng := rand.New(rand.NewChaCha8(seed))
	g := make(Grid, size)
	for y := range g {
		g[y] = make([]rune, size)
		for x := range g[y] {
			g[y][x] = rune(letterBag[rng.IntN(len(letterBag))])
		}
	}
	return g
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
