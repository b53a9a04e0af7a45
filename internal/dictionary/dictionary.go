// Package dictionary answers "is this a playable word". The corpus itself is
// external; Oracle is the only thing the game core depends on.
package dictionary

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/wordhex-backend/internal/scoring"
)

// ErrUnavailable marks lookups that failed for transient reasons; the caller may retry.
var ErrUnavailable = errors.New("dictionary unavailable")

type Oracle interface {
	// IsValid is case-insensitive. A well-formed word never produces an
	// error unless the corpus itself cannot be reached.
	IsValid(ctx context.Context, word string) (bool, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, word string) (bool, error)

func (f OracleFunc) IsValid(ctx context.Context, word string) (bool, error) { return f(ctx, word) }

// Check rejects words shorter than scoring.MinWordLength without consulting o.
func Check(ctx context.Context, o Oracle, word string) (bool, error) {
	w := scoring.Normalize(word)
	if utf8.RuneCountInString(w) < scoring.MinWordLength {
		return false, nil
	}
	return o.IsValid(ctx, w)
}

type timeoutOracle struct {
	next Oracle
	d    time.Duration
}

// WithTimeout bounds every lookup on next by d.
func WithTimeout(next Oracle, d time.Duration) Oracle {
	if d <= 0 {
		return next
	}
	return &timeoutOracle{next: next, d: d}
}

func (t *timeoutOracle) IsValid(ctx context.Context, word string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := t.next.IsValid(ctx, word)
		done <- result{ok, err}
	}()

	select {
	case r := <-done:
		return r.ok, r.err
	case <-ctx.Done():
		return false, fmt.Errorf("lookup %q: %w: %w", word, ErrUnavailable, ctx.Err())
	}
}
