package dom

import (
	"context"
	"fmt"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ValidSelector reports whether selector is a CSS selector group goquery can
// match. goquery itself treats an invalid selector as matching nothing, which
// would make a wait hang forever.
func ValidSelector(selector string) error {
	if _, err := cascadia.ParseGroup(selector); err != nil {
		return fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return nil
}

// WaitFor resolves once an element matching selector exists in d and returns
// the first match. Each call resolves at most once; it gives up only when ctx
// is done.
func WaitFor(ctx context.Context, d *Document, selector string) (*html.Node, error) {
	if err := ValidSelector(selector); err != nil {
		return nil, err
	}
	for {
		// Grab the channel before looking so a mutation in between is not missed.
		changed := d.Changed()
		if n := d.First(selector); n != nil {
			return n, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %q: %w", selector, ctx.Err())
		case <-changed:
		}
	}
}
