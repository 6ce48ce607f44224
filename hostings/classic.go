package hostings

import (
	"context"
	"strings"

	"ccr/dom"
	"ccr/provider"
	"ccr/reference"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// lowercase, like the rest of these front ends' navigation
const lowercaseButtonText = "copy commit reference"

// GitWeb supports git's own CGI front end, e.g. repo.or.cz.
type GitWeb struct {
	provider.Base
}

func (*GitWeb) Name() string { return "GitWeb" }

func (*GitWeb) ReadySelector() string { return ".page_nav" }

func (*GitWeb) IsRecognized(doc *dom.Document) bool {
	g, ok := doc.Attr(`meta[name="generator"]`, "content")
	return ok && strings.HasPrefix(g, "gitweb/")
}

func (*GitWeb) TargetSelector(doc *dom.Document) string {
	if doc.Exists(".page_nav_sub") {
		return ".page_nav_sub"
	}
	return ".page_nav"
}

func (*GitWeb) ButtonText() string { return lowercaseButtonText }

// WrapContainer makes the control one more tab of the navigation bar.
func (*GitWeb) WrapContainer(_ *goquery.Document, inner *html.Node) *html.Node {
	sep := dom.Element("span", "class", "barsep")
	dom.Append(sep, dom.Text(" | "))
	tab := dom.Element("span", "class", "tab")
	dom.Append(tab, inner)
	container := dom.Element("span")
	dom.Append(container, sep, tab)
	return container
}

// InsertContainer appends to the sub navigation when there is one, and
// otherwise ends the first line of the main navigation.
func (*GitWeb) InsertContainer(_ *goquery.Document, target, container *html.Node) {
	if dom.HasClass(target, "page_nav_sub") {
		dom.Append(target, container)
		return
	}
	var br *html.Node
	if sel := goquery.NewDocumentFromNode(target).Find("br").First(); sel.Length() > 0 {
		br = sel.Get(0)
	}
	dom.InsertBefore(target, container, br)
}

// FullHash takes the first sha1 cell; the author row is always above the
// committer row.
func (*GitWeb) FullHash(doc *dom.Document) (string, error) {
	return text(doc, ".title_text .object_header td.sha1")
}

func (*GitWeb) DateISO(_ context.Context, doc *dom.Document, _ string) (string, error) {
	s, err := text(doc, ".title_text .object_header .datetime")
	if err != nil {
		return "", err
	}
	return reference.DateFromText(s)
}

func (*GitWeb) CommitMessage(_ context.Context, doc *dom.Document, _ string) (string, error) {
	return text(doc, ".page_body")
}

const cgitInfo = "body > #cgit > .content > table.commit-info > tbody"

// Cgit supports cgit, e.g. git.kernel.org. Newer versions call the hash
// cell "oid" instead of "sha1".
type Cgit struct {
	provider.Base
}

func (*Cgit) Name() string { return "cgit" }

func (*Cgit) ReadySelector() string { return "body > #cgit > .content > .commit-msg" }

func (*Cgit) IsRecognized(doc *dom.Document) bool {
	return doc.ElementByID("cgit") != nil
}

func (*Cgit) TargetSelector(*dom.Document) string {
	return cgitInfo + " > tr:nth-child(3) td.sha1, " + cgitInfo + " > tr:nth-child(3) td.oid"
}

func (*Cgit) ButtonText() string { return lowercaseButtonText }

func (*Cgit) WrapContainer(_ *goquery.Document, inner *html.Node) *html.Node {
	container := dom.Element("span")
	dom.Append(container, dom.Text(" ("), inner, dom.Text(")"))
	return container
}

func (*Cgit) FullHash(doc *dom.Document) (string, error) {
	return text(doc, cgitInfo+" > tr:nth-child(3) td.sha1 a, "+cgitInfo+" > tr:nth-child(3) td.oid a")
}

func (*Cgit) DateISO(_ context.Context, doc *dom.Document, _ string) (string, error) {
	s, err := text(doc, cgitInfo+" > tr:nth-child(1) td:nth-child(3)")
	if err != nil {
		return "", err
	}
	return reference.DateFromTimestamp(s)
}

// CommitMessage joins the subject line, without the decorations cgit
// appends to it, and the body.
func (*Cgit) CommitMessage(_ context.Context, doc *dom.Document, _ string) (string, error) {
	const subjSel = "body > #cgit > .content > .commit-subject"
	var subj string
	found := false
	doc.Read(func(root *goquery.Document) {
		sel := root.Find(subjSel).First()
		if sel.Length() == 0 {
			return
		}
		found = true
		if first := sel.Get(0).FirstChild; first != nil {
			subj = dom.TextContent(first)
		}
	})
	if !found {
		return "", missing(subjSel)
	}
	body, err := text(doc, "body > #cgit > .content > .commit-msg")
	if err != nil {
		return "", err
	}
	return subj + "\n\n" + body, nil
}

// Gitiles supports Google's JGit based browser, e.g. *.googlesource.com.
type Gitiles struct {
	provider.Base
}

func (*Gitiles) Name() string { return "Gitiles" }

func (*Gitiles) ReadySelector() string { return ".Site .Site-content .MetadataMessage" }

func (*Gitiles) IsRecognized(doc *dom.Document) bool {
	s, ok := doc.Text(".Footer-poweredBy")
	return ok && strings.Contains(s, "Gitiles")
}

// metadata selects the commit's metadata table. Tag pages show the tag's
// own table first.
func gitilesMetadata(doc *dom.Document) string {
	if strings.Contains(doc.URL().Path, "/+/refs/tags/") {
		return ".Site .Site-content .Container .Metadata:nth-child(4)"
	}
	return ".Site .Site-content .Container .Metadata"
}

func (*Gitiles) TargetSelector(doc *dom.Document) string {
	return gitilesMetadata(doc) + " table tr:nth-child(1) td:nth-child(3)"
}

func (*Gitiles) ButtonText() string { return lowercaseButtonText }

func (*Gitiles) WrapContainer(_ *goquery.Document, inner *html.Node) *html.Node {
	container := dom.Element("span")
	dom.Append(container, dom.Text(" ["), inner, dom.Text("]"))
	return container
}

func (*Gitiles) FullHash(doc *dom.Document) (string, error) {
	return text(doc, gitilesMetadata(doc)+" table tr:nth-child(1) td:nth-child(2)")
}

func (*Gitiles) DateISO(_ context.Context, doc *dom.Document, _ string) (string, error) {
	s, err := text(doc, gitilesMetadata(doc)+" table tr:nth-child(2) td:nth-child(3)")
	if err != nil {
		return "", err
	}
	return reference.DateFromText(s)
}

func (*Gitiles) CommitMessage(_ context.Context, doc *dom.Document, _ string) (string, error) {
	return text(doc, gitilesMetadata(doc)+" + .MetadataMessage")
}
