// Package provider defines the capability set a Git hosting front end
// implements so that one generic engine can put a "copy commit reference"
// control on its commit pages.
package provider

import (
	"context"

	"ccr/dom"
	"ccr/reference"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Provider is one Git hosting front end.
//
// The first group of methods has no sensible default and must be written for
// every hosting. The second group is optional: embed Base to get no-op
// defaults. Base implements only the optional group, so a bare Base is not
// a Provider.
type Provider interface {
	// Name identifies the hosting in logs.
	Name() string
	// ReadySelector matches an element whose presence means the page has
	// rendered far enough for IsRecognized to give a reliable answer.
	ReadySelector() string
	// IsRecognized reports whether the loaded page belongs to this hosting.
	// It is only called once ReadySelector matches.
	IsRecognized(doc *dom.Document) bool
	// TargetSelector matches the element the control is inserted into.
	TargetSelector(doc *dom.Document) string
	// FullHash returns the full object name of the displayed commit.
	FullHash(doc *dom.Document) (string, error)
	// DateISO returns the author date as YYYY-MM-DD. It may do network I/O.
	DateISO(ctx context.Context, doc *dom.Document, hash string) (string, error)
	// CommitMessage returns the full commit message. It may do network I/O.
	CommitMessage(ctx context.Context, doc *dom.Document, hash string) (string, error)

	ButtonText() string
	ButtonTag() string
	// WrapContainer may wrap the control's container in hosting specific
	// markup and returns the outermost node.
	WrapContainer(root *goquery.Document, inner *html.Node) *html.Node
	// WrapButton may decorate or wrap the control and returns the outermost node.
	WrapButton(root *goquery.Document, button *html.Node) *html.Node
	// StyleCheckmark may restyle the confirmation indicator in place.
	StyleCheckmark(root *goquery.Document, checkmark *html.Node)
	// InsertContainer puts the container into the page. The default appends
	// it to target.
	InsertContainer(root *goquery.Document, target, container *html.Node)
	// SubjectHTML renders the subject as HTML that is safe to embed, for
	// example with links to issues mentioned in it.
	SubjectHTML(ctx context.Context, doc *dom.Document, subject, hash string) (string, error)
	// RegisterNavigationHook is called once, after the control was first
	// inserted. Hostings with client side navigation install a re-adder
	// that calls reinsert whenever a new commit is displayed.
	RegisterNavigationHook(doc *dom.Document, reinsert func())
}

// Base supplies defaults for the optional part of Provider.
type Base struct{}

// DefaultButtonText is the control's label.
const DefaultButtonText = "Copy commit reference"

func (Base) ButtonText() string { return DefaultButtonText }

func (Base) ButtonTag() string { return "a" }

func (Base) WrapContainer(_ *goquery.Document, inner *html.Node) *html.Node { return inner }

func (Base) WrapButton(_ *goquery.Document, button *html.Node) *html.Node { return button }

func (Base) StyleCheckmark(*goquery.Document, *html.Node) {}

func (Base) InsertContainer(_ *goquery.Document, target, container *html.Node) {
	dom.Append(target, container)
}

func (Base) SubjectHTML(_ context.Context, _ *dom.Document, subject, _ string) (string, error) {
	return reference.EscapeHTML(subject), nil
}

func (Base) RegisterNavigationHook(*dom.Document, func()) {}
