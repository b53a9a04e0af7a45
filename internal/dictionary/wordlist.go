package dictionary

import (
	"bufio"
	"context"
	_ "embed"
	"io"
	"os"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/DoyleJ11/wordhex-backend/internal/scoring"
)

//go:embed words.txt
var embeddedWords string

// WordList is an in-memory corpus. It is read-only after construction.
type WordList struct {
	words map[string]struct{}
}

func NewWordList(words ...string) *WordList {
	wl := &WordList{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		wl.add(w)
	}
	return wl
}

// Default returns the embedded list.
func Default() *WordList {
	wl, _ := ReadWordList(strings.NewReader(embeddedWords))
	return wl
}

// LoadFile reads one word per line; blank lines and "#" comments are skipped.
func LoadFile(path string) (*WordList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadWordList(f)
}

func ReadWordList(r io.Reader) (*WordList, error) {
	wl := NewWordList()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		wl.add(line)
	}
	return wl, sc.Err()
}

func (wl *WordList) add(w string) {
	w = scoring.Normalize(strings.TrimSpace(w))
	if utf8.RuneCountInString(w) >= scoring.MinWordLength {
		wl.words[w] = struct{}{}
	}
}

func (wl *WordList) Len() int { return len(wl.words) }

// Words returns the list, upper-cased and sorted.
func (wl *WordList) Words() []string {
	out := make([]string, 0, len(wl.words))
	for w := range wl.words {
		out = append(out, w)
	}
	slices.Sort(out)
	return out
}

func (wl *WordList) IsValid(_ context.Context, word string) (bool, error) {
	_, ok := wl.words[scoring.Normalize(word)]
	return ok, nil
}
