package hostings

import (
	"context"
	"errors"

	"ccr/dom"
	"ccr/provider"
	"ccr/reference"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const gitlabHeader = "main#content-body .page-content-header > .header-main-content"

// GitLab supports gitlab.com and self-managed instances, e.g. invent.kde.org.
type GitLab struct {
	provider.Base
}

func (*GitLab) Name() string { return "GitLab" }

// ReadySelector cannot rely on .commit-description, which is missing for
// commits without a body.
func (*GitLab) ReadySelector() string {
	return ".content-wrapper main#content-body .commit-box"
}

func (*GitLab) IsRecognized(doc *dom.Document) bool {
	return doc.Exists(`meta[content="GitLab"][property="og:site_name"]`)
}

func (*GitLab) TargetSelector(*dom.Document) string { return gitlabHeader }

func (*GitLab) FullHash(doc *dom.Document) (string, error) {
	return attr(doc, gitlabHeader+" > button.btn-clipboard", "data-clipboard-text")
}

func (*GitLab) DateISO(_ context.Context, doc *dom.Document, _ string) (string, error) {
	// the <time> right after "authored", not the one for "Committed by"
	ts, err := attr(doc, gitlabHeader+" > .d-sm-inline + time", "datetime")
	if err != nil {
		return "", err
	}
	return reference.DateFromTimestamp(ts)
}

func (*GitLab) CommitMessage(_ context.Context, doc *dom.Document, _ string) (string, error) {
	subj, err := text(doc, ".commit-box .commit-title")
	if err != nil {
		return "", err
	}
	body, err := text(doc, ".commit-box .commit-description")
	if errors.Is(err, ErrMissingElement) {
		return subj, nil
	}
	return subj + "\n\n" + body, nil
}

// WrapButton turns the control into an icon button next to GitLab's own
// "copy SHA" button.
func (g *GitLab) WrapButton(root *goquery.Document, button *html.Node) *html.Node {
	if icon := cloneFirst(root, gitlabHeader+" > button.btn-clipboard > svg"); icon != nil {
		dom.ReplaceChildren(button, icon)
	}
	dom.AddClass(button, "btn", "btn-clipboard", "gl-button", "btn-default-tertiary", "btn-icon", "btn-sm")
	dom.SetAttr(button, "data-toggle", "tooltip")
	dom.SetAttr(button, "data-placement", "polite")
	dom.SetAttr(button, "title", g.ButtonText()+" to clipboard")
	dom.SetStyle(button, "border", "1px solid darkgray")
	return button
}

// InsertContainer puts the control before the "authored" label.
func (*GitLab) InsertContainer(_ *goquery.Document, target, container *html.Node) {
	var authored *html.Node
	if sel := goquery.NewDocumentFromNode(target).Find("span.d-sm-inline").First(); sel.Length() > 0 {
		authored = sel.Get(0)
	}
	dom.InsertBefore(target, container, authored)
	// keep "authored" from sticking to the button
	dom.InsertBefore(target, dom.Text(" "), authored)
}

func (*GitLab) SubjectHTML(_ context.Context, doc *dom.Document, subject, _ string) (string, error) {
	escaped := reference.EscapeHTML(subject)
	if !containsIssueRef(subject) {
		return escaped, nil
	}
	issues, err := absHref(doc, `nav a[href$="/issues"]`)
	if err != nil {
		if issues, err = absHref(doc, `aside a[href$="/issues"]`); err != nil {
			return "", err
		}
	}
	return linkIssues(subject, issues), nil
}

func containsIssueRef(s string) bool {
	return issueRef.MatchString(s)
}
