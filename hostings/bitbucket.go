package hostings

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"ccr/dom"
	"ccr/fetcher"
	"ccr/navigation"
	"ccr/provider"
	"ccr/reference"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Both Bitbucket flavours load AUI; IsRecognized tells them apart.
const bitbucketReady = "[data-aui-version]"

// BitbucketCloud supports bitbucket.org. The minified class names below are
// the most fragile selectors in this package.
//
// Bitbucket Cloud does not fire popstate when it moves between commits, but
// every commit page has the abbreviated hash in its <title>, so the re-adder
// observes <head> instead.
type BitbucketCloud struct {
	provider.Base

	log    *zap.Logger
	commit provider.Memo[bitbucketCommit]

	readder *navigation.Readder
}

type bitbucketCommit struct {
	Hash    string `json:"hash"`
	Date    string `json:"date"`
	Summary struct {
		Raw  string `json:"raw"`
		HTML string `json:"html"`
	} `json:"summary"`
}

func NewBitbucketCloud(opts Options) *BitbucketCloud {
	return &BitbucketCloud{log: opts.logger("bitbucket-cloud")}
}

func (*BitbucketCloud) Name() string { return "Bitbucket Cloud" }

func (*BitbucketCloud) ReadySelector() string { return bitbucketReady }

func (*BitbucketCloud) IsRecognized(doc *dom.Document) bool {
	return doc.Exists(`meta[name="bb-view-name"]`)
}

func (*BitbucketCloud) TargetSelector(*dom.Document) string { return ".css-tbegx5.e1tw8lnx2" }

func (*BitbucketCloud) FullHash(doc *dom.Document) (string, error) {
	href, err := attr(doc, "a.css-1leee2m", "href")
	if err != nil {
		return "", err
	}
	// ".../commits/<40 hex>/"
	if len(href) < 41 {
		return "", fmt.Errorf("no commit hash in %q", href)
	}
	return href[len(href)-41 : len(href)-1], nil
}

// CommitURL returns the REST endpoint for hash, with rendered markup fields.
func (b *BitbucketCloud) CommitURL(doc *dom.Document, hash string) (string, error) {
	self, err := attr(doc, "#bitbucket-navigation a", "href")
	if err != nil {
		return "", err
	}
	// "/workspace/repo/" -> "workspace/repo"
	repo := strings.Trim(self, "/")
	return resolve(doc.URL(), fmt.Sprintf("/!api/2.0/repositories/%s/commit/%s?fields=%%2B%%2A.rendered.%%2A", repo, hash)), nil
}

func (b *BitbucketCloud) download(ctx context.Context, doc *dom.Document) (bitbucketCommit, error) {
	return b.commit.Get(ctx, func(ctx context.Context) (bitbucketCommit, error) {
		var c bitbucketCommit
		hash, err := b.FullHash(doc)
		if err != nil {
			return c, err
		}
		u, err := b.CommitURL(doc, hash)
		if err != nil {
			return c, err
		}
		b.log.Info("fetching commit JSON", zap.String("url", u))
		if err := fetcher.JSON(ctx, u, nil, &c); err != nil {
			return c, fmt.Errorf("bitbucket REST API: %w", err)
		}
		return c, nil
	})
}

func (b *BitbucketCloud) DateISO(ctx context.Context, doc *dom.Document, _ string) (string, error) {
	c, err := b.download(ctx, doc)
	if err != nil {
		return "", err
	}
	return reference.DateFromTimestamp(c.Date)
}

func (*BitbucketCloud) CommitMessage(_ context.Context, doc *dom.Document, _ string) (string, error) {
	return text(doc, ".css-1qa9ryl.e1tw8lnx1+div")
}

// SubjectHTML ignores subject and uses the markup Bitbucket rendered for
// the commit message.
func (b *BitbucketCloud) SubjectHTML(ctx context.Context, doc *dom.Document, _, _ string) (string, error) {
	c, err := b.download(ctx, doc)
	if err != nil {
		return "", err
	}
	return firstParagraph(c.Summary.HTML), nil
}

// firstParagraph returns the content of the first <p> of markup, or markup
// itself when it has none.
func firstParagraph(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup
	}
	p := doc.Find("p").First()
	if p.Length() == 0 {
		return markup
	}
	inner, err := p.Html()
	if err != nil {
		return markup
	}
	return inner
}

func (*BitbucketCloud) WrapContainer(_ *goquery.Document, inner *html.Node) *html.Node {
	dom.SetStyle(inner, "margin-left", "1em")
	return inner
}

func (b *BitbucketCloud) WrapButton(root *goquery.Document, button *html.Node) *html.Node {
	if icon := cloneFirst(root, `[aria-label="copy commit hash"] svg`); icon != nil {
		dom.SetStyle(icon, "margin-bottom", "-7px")
		withIcon(button, icon, b.ButtonText())
	} else {
		b.log.Warn(`cannot find icon of "copy commit hash"`)
	}
	dom.SetAttr(button, "title", "Copy commit reference to clipboard")
	return button
}

func (b *BitbucketCloud) RegisterNavigationHook(doc *dom.Document, reinsert func()) {
	b.readder = navigation.New(doc, b.log, navigation.Options{
		Invalidate: b.commit.Invalidate,
		IsCommitPage: func(u *url.URL) bool {
			return !strings.HasSuffix(u.Path, "commits") && !strings.HasSuffix(u.Path, "commits/")
		},
		Reinsert: reinsert,
	}).ObserveHead()
}

func (b *BitbucketCloud) Close() {
	if b.readder != nil {
		b.readder.Close()
	}
}

// BitbucketServer supports self-hosted Bitbucket Server and Data Center.
// Its commit pages are full page loads, so a commit specific selector is
// good enough for recognition.
type BitbucketServer struct {
	provider.Base

	log *zap.Logger
}

const bitbucketServerSHA = ".commit-badge-oneline .commit-details .commitid"

func NewBitbucketServer(opts Options) *BitbucketServer {
	return &BitbucketServer{log: opts.logger("bitbucket-server")}
}

func (*BitbucketServer) Name() string { return "Bitbucket Server" }

func (*BitbucketServer) ReadySelector() string { return bitbucketReady }

func (*BitbucketServer) IsRecognized(doc *dom.Document) bool {
	return doc.Exists(bitbucketServerSHA)
}

func (*BitbucketServer) TargetSelector(*dom.Document) string { return ".plugin-section-secondary" }

func (*BitbucketServer) FullHash(doc *dom.Document) (string, error) {
	return attr(doc, bitbucketServerSHA, "data-commitid")
}

func (*BitbucketServer) DateISO(_ context.Context, doc *dom.Document, _ string) (string, error) {
	ts, err := attr(doc, ".commit-badge-oneline .commit-details time", "datetime")
	if err != nil {
		return "", err
	}
	return reference.DateFromTimestamp(ts)
}

func (*BitbucketServer) CommitMessage(_ context.Context, doc *dom.Document, _ string) (string, error) {
	return attr(doc, bitbucketServerSHA, "data-commit-message")
}

func (*BitbucketServer) WrapContainer(_ *goquery.Document, inner *html.Node) *html.Node {
	dom.AddClass(inner, "plugin-item")
	return inner
}

func (b *BitbucketServer) WrapButton(_ *goquery.Document, button *html.Node) *html.Node {
	icon := dom.Element("span", "class", "aui-icon aui-icon-small aui-iconfont-copy")
	withIcon(button, icon, b.ButtonText())
	dom.SetAttr(button, "title", "Copy commit reference to clipboard")
	return button
}

// SubjectHTML links Jira issue keys and the pull request a merge commit
// mentions. Each lookup is best effort.
func (b *BitbucketServer) SubjectHTML(ctx context.Context, doc *dom.Document, subject, hash string) (string, error) {
	s := reference.EscapeHTML(subject)
	s = b.insertJiraLinks(ctx, doc, s)
	return b.insertPullRequestLinks(ctx, doc, s, hash), nil
}

func (b *BitbucketServer) issueKeys(doc *dom.Document) []string {
	keys, ok := doc.Attr(".plugin-section-primary .commit-issues-trigger", "data-issue-keys")
	if !ok || keys == "" {
		return nil
	}
	return strings.Split(keys, ",")
}

// issueURL asks Bitbucket's Jira integration where an issue lives; an
// instance may be connected to several Jira servers.
func (b *BitbucketServer) issueURL(ctx context.Context, doc *dom.Document, key string) (string, error) {
	project, err := attr(doc, "[data-projectkey]", "data-projectkey")
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("issueKey", key)
	q.Set("entityKey", project)
	q.Set("fields", "url")
	q.Set("minimum", "10")
	u := resolve(doc.URL(), "/rest/jira-integration/latest/issues?"+q.Encode())

	var issues []struct {
		URL string `json:"url"`
	}
	if err := fetcher.JSON(ctx, u, nil, &issues); err != nil {
		return "", err
	}
	if len(issues) == 0 || issues[0].URL == "" {
		return "", fmt.Errorf("jira issue %s: no URL", key)
	}
	return issues[0].URL, nil
}

func (b *BitbucketServer) insertJiraLinks(ctx context.Context, doc *dom.Document, s string) string {
	keys := b.issueKeys(doc)
	b.log.Debug("jira issue keys", zap.Strings("keys", keys))
	for _, key := range keys {
		if key == "" || !strings.Contains(s, key) {
			continue
		}
		u, err := b.issueURL(ctx, doc, key)
		if err != nil {
			b.log.Warn("cannot load Jira URL", zap.String("issue", key), zap.Error(err))
			continue
		}
		s = strings.Replace(s, key, fmt.Sprintf(`<a href="%s">%s</a>`, reference.EscapeHTML(u), key), 1)
	}
	return s
}

var pullRequestRef = regexp.MustCompile(`(?i)pull request #(\d+)`)

type bitbucketPullRequests struct {
	Values []struct {
		ID    int `json:"id"`
		Links struct {
			Self []struct {
				Href string `json:"href"`
			} `json:"self"`
		} `json:"links"`
	} `json:"values"`
}

func (b *BitbucketServer) insertPullRequestLinks(ctx context.Context, doc *dom.Document, s, hash string) string {
	m := pullRequestRef.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return s
	}
	project, err := attr(doc, "[data-project-key]", "data-project-key")
	if err != nil {
		b.log.Warn("cannot find project key", zap.Error(err))
		return s
	}
	repo, err := attr(doc, "[data-repository-slug]", "data-repository-slug")
	if err != nil {
		b.log.Warn("cannot find repository slug", zap.Error(err))
		return s
	}
	u := resolve(doc.URL(), fmt.Sprintf("/rest/api/latest/projects/%s/repos/%s/commits/%s/pull-requests?start=0&limit=25",
		url.PathEscape(project), url.PathEscape(repo), hash))

	var prs bitbucketPullRequests
	if err := fetcher.JSON(ctx, u, nil, &prs); err != nil {
		b.log.Error("cannot load pull requests", zap.String("url", u), zap.Error(err))
		return s
	}
	for _, pr := range prs.Values {
		if pr.ID != id || len(pr.Links.Self) == 0 {
			continue
		}
		link := fmt.Sprintf(`<a href="%s">%s</a>`, reference.EscapeHTML(pr.Links.Self[0].Href), m[0])
		return strings.Replace(s, m[0], link, 1)
	}
	return s
}
