package hostings

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ccr/dom"
	"ccr/provider"
	"ccr/reference"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Gitea supports Gitea and its fork Forgejo, e.g. codeberg.org.
type Gitea struct {
	provider.Base
}

func (*Gitea) Name() string { return "Gitea" }

func (*Gitea) ReadySelector() string { return ".commit-header" }

func (*Gitea) IsRecognized(doc *dom.Document) bool {
	for _, sel := range []string{`meta[name="author"]`, `meta[name="keywords"]`} {
		v, _ := doc.Attr(sel, "content")
		v = strings.ToLower(v)
		if strings.Contains(v, "gitea") || strings.Contains(v, "forgejo") {
			return true
		}
	}
	return false
}

func (*Gitea) TargetSelector(*dom.Document) string { return ".commit-header h3 + div" }

func (*Gitea) WrapContainer(_ *goquery.Document, inner *html.Node) *html.Node {
	dom.SetStyle(inner, "margin-right", "0.5rem")
	return inner
}

// WrapButton mimics the "Browse Source" button without its "primary" look.
// Some instances, e.g. projects.blender.org, have no copy icon to borrow.
func (*Gitea) WrapButton(root *goquery.Document, button *html.Node) *html.Node {
	dom.AddClass(button, "ui", "tiny", "button", "basic")
	if icon := cloneFirst(root, ".svg.octicon-copy"); icon != nil {
		dom.SetStyles(icon, "vertical-align", "middle", "margin-top", "-4px")
		prependIcon(button, icon)
	}
	return button
}

// InsertContainer puts the control to the left of "Browse Source".
func (*Gitea) InsertContainer(_ *goquery.Document, target, container *html.Node) {
	var browse *html.Node
	if sel := goquery.NewDocumentFromNode(target).Find(".ui.primary.tiny.button").First(); sel.Length() > 0 {
		browse = sel.Get(0)
	}
	dom.InsertBefore(target, container, browse)
}

// StyleCheckmark shows the indicator like Gitea's own tooltips, above the
// button with a small triangle pointing down.
func (*Gitea) StyleCheckmark(_ *goquery.Document, checkmark *html.Node) {
	dom.SetStyles(checkmark,
		"left", "0.2rem",
		"bottom", "calc(100% + 1.2rem)",
		"z-index", "9999",
		"background-color", "var(--color-tooltip-bg)",
		"color", "var(--color-tooltip-text)",
		"border-radius", "var(--border-radius)",
		"font-size", "1rem",
		"padding", ".5rem 1rem",
	)
	triangle := dom.Element("div")
	dom.SetStyles(triangle,
		"position", "absolute",
		"z-index", "1000001",
		"bottom", "-15px",
		"left", "14px",
		"height", "0",
		"width", "0",
		"border", "8px solid transparent",
		"border-top-color", "var(--color-tooltip-bg)",
	)
	dom.Append(checkmark, triangle)
}

func (*Gitea) FullHash(doc *dom.Document) (string, error) {
	href, err := attr(doc, ".commit-header h3 + div > a", "href")
	if err != nil {
		return "", err
	}
	return lastSegment(href), nil
}

func (*Gitea) DateISO(_ context.Context, doc *dom.Document, _ string) (string, error) {
	ts, err := attr(doc, "#authored-time relative-time", "datetime")
	if err != nil {
		return "", err
	}
	return reference.DateFromTimestamp(ts)
}

func (*Gitea) CommitMessage(_ context.Context, doc *dom.Document, _ string) (string, error) {
	subj, err := text(doc, ".commit-summary")
	if err != nil {
		return "", err
	}
	body, err := text(doc, ".commit-body > :first-child")
	if errors.Is(err, ErrMissingElement) {
		return subj, nil
	}
	return subj + "\n\n" + body, nil
}

func (*Gitea) SubjectHTML(_ context.Context, doc *dom.Document, subject, _ string) (string, error) {
	escaped := reference.EscapeHTML(subject)
	if !containsIssueRef(subject) {
		return escaped, nil
	}
	issues, err := absHref(doc, `.header-wrapper > .ui.tabs.container > .tabular.menu.navbar a[href$="/issues"]`)
	if err != nil {
		issues, err = absHref(doc, `.header-wrapper .navbar a[href$="/issues"], .secondary-nav .overflow-menu-items a[href$="/issues"]`)
		if err != nil {
			return "", err
		}
	}
	return linkIssues(subject, issues), nil
}

const gogsInfo = ".ui.top.attached.info.clearing.segment"

// Gogs supports Gogs, e.g. try.gogs.io.
type Gogs struct {
	provider.Base
}

func (*Gogs) Name() string { return "Gogs" }

func (*Gogs) ReadySelector() string { return gogsInfo }

func (*Gogs) IsRecognized(doc *dom.Document) bool {
	if v, ok := doc.Attr(`meta[name="author"]`, "content"); ok && v == "Gogs" {
		return true
	}
	v, _ := doc.Attr(`meta[name="keywords"]`, "content")
	return strings.Contains(strings.ToLower(v), "gogs")
}

func (*Gogs) TargetSelector(*dom.Document) string { return gogsInfo }

func (*Gogs) WrapContainer(_ *goquery.Document, inner *html.Node) *html.Node {
	container := dom.Element("div", "class", "ui floated right")
	dom.Append(container, inner)
	return container
}

// WrapButton mimics "Browse Source" with the icon of "Clone this repository".
func (*Gogs) WrapButton(_ *goquery.Document, button *html.Node) *html.Node {
	dom.AddClass(button, "ui", "tiny", "button")
	icon := dom.Element("i", "class", "octicon octicon-clippy")
	// the icon is too tall otherwise
	dom.SetStyle(icon, "line-height", "0")
	prependIcon(button, icon)
	return button
}

func (*Gogs) InsertContainer(_ *goquery.Document, target, container *html.Node) {
	var msg *html.Node
	if sel := goquery.NewDocumentFromNode(target).Find(".commit-message").First(); sel.Length() > 0 {
		msg = sel.Get(0)
	}
	dom.InsertBefore(target, container, msg)
}

// StyleCheckmark reuses the look of Gogs' tooltip for author time.
func (*Gogs) StyleCheckmark(_ *goquery.Document, checkmark *html.Node) {
	dom.AddClass(checkmark, "ui", "popup", "inverted", "tiny", "top", "left")
	dom.SetStyles(checkmark,
		"left", "0.5rem",
		"right", "unset",
		"top", "calc(-100% - 1rem)",
	)
}

func (*Gogs) FullHash(doc *dom.Document) (string, error) {
	href, err := attr(doc, gogsInfo+" .ui.floated.right.blue.tiny.button", "href")
	if err != nil {
		return "", err
	}
	return lastSegment(href), nil
}

// DateISO reads the authored time tooltip. Its first 16 characters,
// e.g. "Mon, 02 Jan 2006", hold the date.
func (*Gogs) DateISO(_ context.Context, doc *dom.Document, _ string) (string, error) {
	s, err := attr(doc, "#authored-time [data-content]", "data-content")
	if err != nil {
		return "", err
	}
	if len(s) > 16 {
		s = s[:16]
	}
	return reference.DateFromText(s)
}

func (*Gogs) CommitMessage(_ context.Context, doc *dom.Document, _ string) (string, error) {
	if msg, err := text(doc, ".commit-message"); err == nil {
		return msg, nil
	}
	return text(doc, gogsInfo+" h3")
}

func (*Gogs) SubjectHTML(_ context.Context, doc *dom.Document, subject, _ string) (string, error) {
	escaped := reference.EscapeHTML(subject)
	if !containsIssueRef(subject) {
		return escaped, nil
	}
	issues, err := absHref(doc, `.tabular.menu.navbar a[href$="/issues"]`)
	if err != nil {
		return escaped, nil
	}
	return linkIssues(subject, issues), nil
}

const sourcehutLog = `a[id^="log-"]`

// SourceHut supports git.sr.ht.
type SourceHut struct {
	provider.Base
}

func (*SourceHut) Name() string { return "SourceHut" }

func (*SourceHut) ReadySelector() string { return sourcehutLog }

func (*SourceHut) IsRecognized(doc *dom.Document) bool {
	if strings.HasSuffix(doc.URL().Hostname(), "sr.ht") {
		return true
	}
	return doc.Exists(`a[href="https://sourcehut.org"]`)
}

func (*SourceHut) TargetSelector(*dom.Document) string {
	return "html body div.container div.row div.col-md-2 div.mb-3"
}

func (*SourceHut) ButtonText() string { return "copy reference" }

func (*SourceHut) WrapContainer(_ *goquery.Document, inner *html.Node) *html.Node {
	dom.AddClass(inner, "btn", "btn-default", "btn-block")
	dom.SetStyle(inner, "padding", "0")
	return inner
}

func (*SourceHut) WrapButton(_ *goquery.Document, button *html.Node) *html.Node {
	dom.AddClass(button, "btn", "btn-default")
	dom.SetStyles(button, "border-style", "none", "width", "100%")
	return button
}

func (*SourceHut) FullHash(doc *dom.Document) (string, error) {
	id, err := attr(doc, sourcehutLog, "id")
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(id, "log-"), nil
}

func (*SourceHut) DateISO(_ context.Context, doc *dom.Document, _ string) (string, error) {
	ts, err := attr(doc, sourcehutLog+" span", "title")
	if err != nil {
		return "", err
	}
	return reference.DateFromTimestamp(ts)
}

func (*SourceHut) CommitMessage(_ context.Context, doc *dom.Document, _ string) (string, error) {
	return text(doc, ".commit")
}

// phorgeCommitPath matches Diffusion commit paths, /rCALLSIGN<hash> and
// /R<id>:<hash>.
var phorgeCommitPath = regexp.MustCompile(`/(r([A-Z]+)|R([0-9]+):)([a-z0-9]+)$`)

// Phorge supports Phorge and Phabricator Diffusion, e.g.
// phabricator.wikimedia.org. Recognition goes by URL shape alone, so it is
// tried last.
type Phorge struct {
	provider.Base
}

func (*Phorge) Name() string { return "Phorge" }

func (*Phorge) ReadySelector() string { return ".phabricator-action-list-view" }

func (*Phorge) IsRecognized(doc *dom.Document) bool {
	return phorgeCommitPath.MatchString(doc.URL().Path)
}

func (*Phorge) TargetSelector(*dom.Document) string { return ".phabricator-action-list-view" }

func (*Phorge) FullHash(doc *dom.Document) (string, error) {
	m := phorgeCommitPath.FindStringSubmatch(doc.URL().Path)
	if m == nil {
		return "", fmt.Errorf("cannot parse path %q", doc.URL().Path)
	}
	letter := "R"
	if m[2] != "" {
		letter = "r"
	}
	sel := fmt.Sprintf(`.phui-header-view .phui-header-subheader .phui-tag-view .phui-tag-core a[href^="/%s"]`, letter)
	href, err := attr(doc, sel, "href")
	if err != nil {
		return "", err
	}
	self := phorgeCommitPath.FindStringSubmatch(href)
	if self == nil {
		return "", fmt.Errorf("cannot parse self link %q", href)
	}
	return self[4], nil
}

var phorgeMonths = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March, "Apr": time.April,
	"May": time.May, "Jun": time.June, "Jul": time.July, "Aug": time.August,
	"Sep": time.September, "Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// "Authored on Tue, Aug 27, 03:50" within the current year, or
// "Authored on Sep 30 2021, 16:41".
var phorgeAuthored = regexp.MustCompile(`Authored on (?:[A-Za-z]{3}, (\w{3}) (\d{1,2})|(\w{3}) (\d{1,2}) (\d{4})), \d{2}:\d{2}`)

// DateISO prefers the machine readable timeline date and falls back to the
// "Provenance" property for commits without a timeline.
func (*Phorge) DateISO(_ context.Context, doc *dom.Document, hash string) (string, error) {
	if s, err := text(doc, fmt.Sprintf(`a[href$="%s"] ~ .phui-timeline-extra .print-only`, hash)); err == nil && len(s) >= reference.DateLen {
		return reference.ValidateDate(s[:reference.DateLen])
	}

	var note string
	doc.Read(func(root *goquery.Document) {
		key := root.Find(".phui-property-list-key").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(s.Text(), "Provenance")
		}).First()
		note = strings.TrimSpace(key.Next().Find(".phui-status-item-note").First().Text())
	})
	if note == "" {
		return "", fmt.Errorf("%w: no timeline and no provenance", reference.ErrInvalidDate)
	}
	return phorgeProvenanceDate(note, time.Now().Year())
}

func phorgeProvenanceDate(note string, currentYear int) (string, error) {
	m := phorgeAuthored.FindStringSubmatch(note)
	if m == nil {
		return "", fmt.Errorf("%w: cannot parse provenance %q", reference.ErrInvalidDate, note)
	}
	month, day, year := m[1], m[2], strconv.Itoa(currentYear)
	if month == "" {
		month, day, year = m[3], m[4], m[5]
	}
	mon, ok := phorgeMonths[month]
	if !ok {
		return "", fmt.Errorf("%w: unknown month %q", reference.ErrInvalidDate, month)
	}
	y, _ := strconv.Atoi(year)
	d, _ := strconv.Atoi(day)
	return reference.DateOf(time.Date(y, mon, d, 0, 0, 0, 0, time.UTC)), nil
}

func (*Phorge) CommitMessage(_ context.Context, doc *dom.Document, _ string) (string, error) {
	return text(doc, ".diffusion-commit-message")
}

func (*Phorge) WrapContainer(_ *goquery.Document, inner *html.Node) *html.Node {
	li := dom.Element("li", "class", "phabricator-action-view phabricator-action-view-submenu phabricator-action-view-href action-has-icon")
	dom.Append(li, inner)
	return li
}

// WrapButton lays the control out as one more entry of the action list.
func (*Phorge) WrapButton(_ *goquery.Document, button *html.Node) *html.Node {
	item := dom.Element("span", "class", "phabricator-action-view-item")
	icon := dom.Element("span", "class", "visual-only phui-icon-view phui-font-fa fa-copy phabricator-action-view-icon")
	dom.SetStyles(button,
		"text-decoration", "none",
		"color", "#464C5C",
		"padding", "4px 8px 6px 0",
	)
	dom.Append(item, icon, button)
	return item
}

func (*Phorge) StyleCheckmark(_ *goquery.Document, checkmark *html.Node) {
	dom.SetStyles(checkmark,
		"left", "unset",
		"right", "calc(100% + 1.5rem)",
		"z-index", "100",
		"top", "0.3rem",
	)
}
