// Package hostings implements provider.Provider for every Git web front end
// ccr knows. Selectors follow the markup each front end renders for a single
// commit view; they are the part most prone to bitrot when a hosting
// redesigns its pages.
package hostings

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"ccr/dom"
	"ccr/provider"
	"ccr/reference"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrMissingElement is returned when a selector the extraction depends on
// matches nothing, usually because the hosting changed its markup.
var ErrMissingElement = errors.New("element not found")

// Options configures the hostings that talk to REST APIs or watch for
// client side navigation.
type Options struct {
	Log *zap.Logger
	// GitHubToken is sent as a bearer token to the GitHub REST API.
	GitHubToken string
	// GitHubAPI replaces https://api.<host> as the GitHub REST API root.
	GitHubAPI string
	// Settle is the delay after history traversal before the re-adder looks
	// at the page.
	Settle time.Duration
}

func (o Options) logger(name string) *zap.Logger {
	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}
	return log.Named(name)
}

// All returns one provider per hosting in recognition priority order.
func All(opts Options) []provider.Provider {
	return []provider.Provider{
		NewGitHub(opts),
		&GitLab{},
		NewBitbucketCloud(opts),
		NewBitbucketServer(opts),
		&GitWeb{},
		&Cgit{},
		&Gitiles{},
		&Gitea{},
		&Gogs{},
		&SourceHut{},
		&Phorge{},
	}
}

func text(doc *dom.Document, selector string) (string, error) {
	var s string
	var ok bool
	doc.Read(func(root *goquery.Document) {
		sel := root.Find(selector).First()
		if sel.Length() == 0 {
			return
		}
		s, ok = innerText(sel.Get(0)), true
	})
	if !ok {
		return "", missing(selector)
	}
	return s, nil
}

func missing(selector string) error {
	return fmt.Errorf("%w: %s", ErrMissingElement, selector)
}

func attr(doc *dom.Document, selector, name string) (string, error) {
	v, ok := doc.Attr(selector, name)
	if !ok {
		return "", fmt.Errorf("%w: %s[%s]", ErrMissingElement, selector, name)
	}
	return v, nil
}

// absHref resolves the href of the first element matching selector against
// the page URL.
func absHref(doc *dom.Document, selector string) (string, error) {
	href, err := attr(doc, selector, "href")
	if err != nil {
		return "", err
	}
	u, err := doc.URL().Parse(href)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", href, err)
	}
	return u.String(), nil
}

func lastSegment(s string) string {
	s = strings.TrimRight(s, "/")
	return s[strings.LastIndex(s, "/")+1:]
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

var issueRef = regexp.MustCompile(`#([0-9]+)`)

// linkIssues escapes subject and turns every #123 in it into a link below
// issuesURL.
func linkIssues(subject, issuesURL string) string {
	var b strings.Builder
	last := 0
	for _, m := range issueRef.FindAllStringSubmatchIndex(subject, -1) {
		b.WriteString(reference.EscapeHTML(subject[last:m[0]]))
		num := subject[m[2]:m[3]]
		fmt.Fprintf(&b, `<a href="%s/%s">#%s</a>`, reference.EscapeHTML(issuesURL), num, num)
		last = m[1]
	}
	b.WriteString(reference.EscapeHTML(subject[last:]))
	return b.String()
}

// cloneFirst returns a deep copy of the first element matching selector,
// or nil.
func cloneFirst(root *goquery.Document, selector string) *html.Node {
	sel := root.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	return dom.Clone(sel.Get(0))
}

// prependIcon puts icon and a space in front of the button's label.
func prependIcon(button, icon *html.Node) {
	label := button.FirstChild
	dom.InsertBefore(button, dom.Text(" "), label)
	dom.InsertBefore(button, icon, button.FirstChild)
}

// withIcon replaces the button's content with icon followed by its label.
func withIcon(button, icon *html.Node, label string) {
	dom.ReplaceChildren(button, icon, dom.Text(" "+label))
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Pre: true,
	atom.Tr: true, atom.H1: true, atom.H2: true, atom.H3: true,
}

// innerText approximates the rendered text of n: line breaks for <br> and
// block boundaries, surrounding whitespace trimmed.
func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			return
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteByte('\n')
			return
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		}
		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
