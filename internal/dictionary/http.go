package dictionary

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/DoyleJ11/wordhex-backend/internal/scoring"
)

// HTTPOracle asks a remote corpus: GET {base}/{word} answers 200 for a
// word and 404 for a non-word. Any other outcome is ErrUnavailable.
type HTTPOracle struct {
	base   string
	client *http.Client
	// FetchTimeout bounds a shared request, independent of any one caller.
	FetchTimeout time.Duration

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]bool
}

func NewHTTPOracle(base string, client *http.Client) *HTTPOracle {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPOracle{
		base:         strings.TrimRight(base, "/"),
		client:       client,
		FetchTimeout: 5 * time.Second,
		cache:        make(map[string]bool),
	}
}

func (o *HTTPOracle) IsValid(ctx context.Context, word string) (bool, error) {
	w := scoring.Normalize(word)

	o.mu.RLock()
	ok, hit := o.cache[w]
	o.mu.RUnlock()
	if hit {
		return ok, nil
	}

	// Concurrent lookups for the same word share one request. It runs on
	// its own deadline so one caller giving up does not fail the others.
	ch := o.group.DoChan(w, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.FetchTimeout)
		defer cancel()
		return o.fetch(fctx, w)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return false, fmt.Errorf("lookup %q: %w: %w", w, ErrUnavailable, ctx.Err())
	}
	if res.Err != nil {
		return false, res.Err
	}
	ok = res.Val.(bool)

	o.mu.Lock()
	o.cache[w] = ok
	o.mu.Unlock()
	return ok, nil
}

func (o *HTTPOracle) fetch(ctx context.Context, w string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base+"/"+url.PathEscape(strings.ToLower(w)), nil)
	if err != nil {
		return false, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("lookup %q: %w: %w", w, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("lookup %q: status %d: %w", w, resp.StatusCode, ErrUnavailable)
	}
}
