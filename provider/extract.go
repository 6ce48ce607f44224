package provider

import (
	"context"
	"errors"
	"fmt"

	"ccr/dom"
	"ccr/reference"

	"golang.org/x/sync/errgroup"
)

// ErrNoHash is returned when a provider finds no commit hash on the page.
var ErrNoHash = errors.New("no commit hash on page")

// Metadata is what a provider extracts for the displayed commit.
type Metadata struct {
	Hash    string
	DateISO string
	Message string
}

// Extract reads the hash synchronously, then fetches date and message
// concurrently and waits for both.
func Extract(ctx context.Context, p Provider, doc *dom.Document) (Metadata, error) {
	hash, err := p.FullHash(doc)
	if err != nil {
		return Metadata{}, fmt.Errorf("%s: hash: %w", p.Name(), err)
	}
	if hash == "" {
		return Metadata{}, fmt.Errorf("%s: %w", p.Name(), ErrNoHash)
	}

	md := Metadata{Hash: hash}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		date, err := p.DateISO(gctx, doc, hash)
		if err != nil {
			return fmt.Errorf("%s: date: %w", p.Name(), err)
		}
		md.DateISO, err = reference.ValidateDate(date)
		if err != nil {
			return fmt.Errorf("%s: date: %w", p.Name(), err)
		}
		return nil
	})
	g.Go(func() error {
		msg, err := p.CommitMessage(gctx, doc, hash)
		if err != nil {
			return fmt.Errorf("%s: message: %w", p.Name(), err)
		}
		md.Message = msg
		return nil
	})
	if err := g.Wait(); err != nil {
		return Metadata{}, err
	}
	return md, nil
}
