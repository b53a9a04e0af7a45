// Package scoring computes word values. Every participant must get the same
// number for the same word, so nothing here depends on state or I/O.
package scoring

import (
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MinWordLength is the shortest playable word.
const MinWordLength = 3

var letterValues = [26]int{
	'A' - 'A': 1, 'B' - 'A': 4, 'C' - 'A': 5, 'D' - 'A': 3, 'E' - 'A': 1,
	'F' - 'A': 5, 'G' - 'A': 3, 'H' - 'A': 4, 'I' - 'A': 1, 'J' - 'A': 7,
	'K' - 'A': 6, 'L' - 'A': 3, 'M' - 'A': 4, 'N' - 'A': 2, 'O' - 'A': 1,
	'P' - 'A': 4, 'Q' - 'A': 8, 'R' - 'A': 2, 'S' - 'A': 2, 'T' - 'A': 2,
	'U' - 'A': 4, 'V' - 'A': 5, 'W' - 'A': 5, 'X' - 'A': 7, 'Y' - 'A': 4,
	'Z' - 'A': 8,
}

// A cases.Caser carries state and must not be shared between goroutines.
var uppers = sync.Pool{New: func() any {
	c := cases.Upper(language.Und)
	return &c
}}

// Normalize upper-cases a word the same way on every participant. It is safe
// for concurrent use.
func Normalize(word string) string {
	c := uppers.Get().(*cases.Caser)
	defer uppers.Put(c)
	return c.String(word)
}

// LetterValue is 0 for anything outside A-Z.
func LetterValue(r rune) int {
	if r < 'A' || r > 'Z' {
		return 0
	}
	return letterValues[r-'A']
}

// Multiplier is flat for 3-4 letters and grows by one per letter after that.
func Multiplier(length int) int {
	if length < MinWordLength {
		return 0
	}
	if length <= 4 {
		return 1
	}
	return length - 3
}

// Score returns the point value of word, 0 below MinWordLength.
func Score(word string) int {
	w := []rune(Normalize(word))
	if len(w) < MinWordLength {
		return 0
	}
	sum := 0
	for _, r := range w {
		sum += LetterValue(r)
	}
	return sum * Multiplier(len(w))
}
