package hostings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ccr/dom"
	"ccr/fetcher"
	"ccr/navigation"
	"ccr/provider"
	"ccr/reference"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// GitHub supports github.com and GitHub Enterprise. Date and message come
// from the REST API, one request per displayed commit.
//
// GitHub swaps commits in place when a link is followed, so the control is
// re-added after its "soft-nav:progress-bar:end" event and after history
// traversal.
type GitHub struct {
	provider.Base

	log    *zap.Logger
	token  string
	api    string
	settle time.Duration

	commit  provider.Memo[githubCommit]
	readder *navigation.Readder
}

// SoftNavEnd is dispatched by GitHub once a soft navigation has rendered.
const SoftNavEnd = "soft-nav:progress-bar:end"

const githubPermalink = "a.js-permalink-shortcut"

type githubCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

func NewGitHub(opts Options) *GitHub {
	return &GitHub{
		log:    opts.logger("github"),
		token:  opts.GitHubToken,
		api:    strings.TrimRight(opts.GitHubAPI, "/"),
		settle: opts.Settle,
	}
}

func (*GitHub) Name() string { return "GitHub" }

func (*GitHub) ReadySelector() string { return ".commit.full-commit" }

func (*GitHub) IsRecognized(doc *dom.Document) bool {
	if strings.Contains(doc.URL().Host, "github") {
		return true
	}
	return doc.Exists(`meta[name="github-keyboard-shortcuts"]`)
}

func (*GitHub) TargetSelector(*dom.Document) string {
	return ".commit.full-commit div:first-child"
}

func isPullRequestPath(path string) bool {
	return strings.Contains(path, "/pull/")
}

func (*GitHub) FullHash(doc *dom.Document) (string, error) {
	if isPullRequestPath(doc.URL().Path) {
		var hash string
		doc.Read(func(root *goquery.Document) {
			sha := root.Find(".commit.full-commit.prh-commit .commit-meta .sha.user-select-contain").First()
			if sha.Length() > 0 && sha.Get(0).FirstChild != nil {
				hash = strings.TrimSpace(sha.Get(0).FirstChild.Data)
			}
		})
		if hash == "" {
			return "", fmt.Errorf("%w: pull request commit sha", ErrMissingElement)
		}
		return hash, nil
	}
	// path example: "/git/git/commit/1f0fc1db8599f87520494ca4f0e3c1b6fabdf997"
	path, err := attr(doc, githubPermalink, "href")
	if err != nil {
		return "", err
	}
	parts := strings.Split(path, "/")
	if len(parts) < 5 {
		return "", fmt.Errorf("no commit hash in permalink %q", path)
	}
	return parts[4], nil
}

// ownerRepo returns "owner/repo" for the displayed repository.
func (*GitHub) ownerRepo(doc *dom.Document) (string, error) {
	if v, ok := doc.Attr("[data-current-repository]", "data-current-repository"); ok && v != "" {
		return v, nil
	}
	path, err := attr(doc, githubPermalink, "href")
	if err != nil {
		return "", err
	}
	parts := strings.Split(path, "/")
	if len(parts) < 5 {
		return "", fmt.Errorf("no repository in permalink %q", path)
	}
	return parts[1] + "/" + parts[2], nil
}

// CommitURL returns the REST endpoint for hash. Note the plural "commits".
func (g *GitHub) CommitURL(doc *dom.Document, hash string) (string, error) {
	repo, err := g.ownerRepo(doc)
	if err != nil {
		return "", err
	}
	api := g.api
	if api == "" {
		u := doc.URL()
		api = "https://api." + u.Host
	}
	return fmt.Sprintf("%s/repos/%s/commits/%s", api, repo, hash), nil
}

func (g *GitHub) download(ctx context.Context, doc *dom.Document, hash string) (githubCommit, error) {
	return g.commit.Get(ctx, func(ctx context.Context) (githubCommit, error) {
		var c githubCommit
		u, err := g.CommitURL(doc, hash)
		if err != nil {
			return c, err
		}
		g.log.Info("fetching commit JSON", zap.String("url", u))
		h := http.Header{}
		h.Set("Accept", "application/vnd.github+json")
		if g.token != "" {
			h.Set("Authorization", "Bearer "+g.token)
		}
		if err := fetcher.JSON(ctx, u, h, &c); err != nil {
			return c, fmt.Errorf("github REST API: %w", err)
		}
		return c, nil
	})
}

func (g *GitHub) DateISO(ctx context.Context, doc *dom.Document, hash string) (string, error) {
	c, err := g.download(ctx, doc, hash)
	if err != nil {
		return "", err
	}
	return reference.DateFromTimestamp(c.Commit.Author.Date)
}

func (g *GitHub) CommitMessage(ctx context.Context, doc *dom.Document, hash string) (string, error) {
	c, err := g.download(ctx, doc, hash)
	if err != nil {
		return "", err
	}
	return c.Commit.Message, nil
}

func (*GitHub) ButtonTag() string { return "span" }

func (*GitHub) WrapContainer(_ *goquery.Document, inner *html.Node) *html.Node {
	dom.SetStyle(inner, "margin-right", "8px")
	return inner
}

// WrapButton makes the control look like GitHub's own secondary buttons.
func (g *GitHub) WrapButton(root *goquery.Document, button *html.Node) *html.Node {
	dom.AddClass(button, "Button--secondary", "Button", "btn")
	if root.Url != nil && isPullRequestPath(root.Url.Path) {
		dom.AddClass(button, "Button--small")
	}
	// .octicon-copy is present on all commit pages, even for empty commits
	if icon := cloneFirst(root, ".octicon-copy"); icon != nil {
		withIcon(button, icon, g.ButtonText())
	} else {
		g.log.Warn("cannot find .octicon-copy")
	}
	return button
}

// StyleCheckmark turns the indicator into a GitHub style tooltip below the
// control.
func (*GitHub) StyleCheckmark(root *goquery.Document, checkmark *html.Node) {
	left := "0.7em"
	if root.Url != nil && isPullRequestPath(root.Url.Path) {
		left = "0.4em"
	}
	dom.SetStyles(checkmark,
		"z-index", "1000000",
		"top", "calc(100% + 6px)",
		"left", left,
		"margin-top", "7px",
		"font", `normal normal 11px/1.5 -apple-system,BlinkMacSystemFont,"Segoe UI","Noto Sans",Helvetica,Arial,sans-serif`,
		"color", "var(--fgColor-onEmphasis, var(--color-fg-on-emphasis))",
		"background", "var(--bgColor-emphasis, var(--color-neutral-emphasis-plus))",
		"border-radius", "6px",
		"padding", ".5em .75em",
	)
	triangle := dom.Element("div")
	dom.SetStyles(triangle,
		"position", "absolute",
		"z-index", "1000001",
		"top", "calc(-100% + 15px)",
		"left", "0.45rem",
		"height", "0",
		"width", "0",
		"border", "7px solid transparent",
		"border-bottom-color", "var(--bgColor-emphasis, var(--color-neutral-emphasis-plus))",
	)
	dom.Append(checkmark, triangle)
}

// InsertContainer puts the control in the top right corner. On regular
// commit pages GitHub's layout expects the "Browse files" button's parent to
// have two children, so the button is rewrapped together with the control.
func (*GitHub) InsertContainer(root *goquery.Document, target, container *html.Node) {
	if root.Url != nil && isPullRequestPath(root.Url.Path) {
		// to the left of "< Prev | Next >"
		var ref *html.Node
		if target.FirstChild != nil {
			ref = target.FirstChild.NextSibling
		}
		dom.InsertBefore(target, container, ref)
		return
	}
	browse := dom.FindByID(target, "browse-at-time-link")
	if browse == nil {
		dom.Append(target, container)
		return
	}
	dom.Detach(browse)
	dom.RemoveClass(browse, "flex-self-start")
	right := dom.Element("div", "class", "flex-self-start")
	dom.Append(right, container, browse)
	dom.Append(target, right)
}

// SubjectHTML reuses the commit title GitHub already rendered with links
// when the subject mentions an issue or pull request.
func (g *GitHub) SubjectHTML(_ context.Context, doc *dom.Document, subject, _ string) (string, error) {
	if !strings.Contains(subject, "#") {
		return reference.EscapeHTML(subject), nil
	}
	markup, ok := doc.InnerHTML(".commit-title.markdown-title")
	if !ok {
		return "", fmt.Errorf("%w: .commit-title.markdown-title", ErrMissingElement)
	}
	return strings.TrimSpace(markup), nil
}

// IsCommitPage reports whether path addresses a single commit, either
// /<owner>/<repo>/commit/<sha> or a commit inside a pull request,
// /<owner>/<repo>/pull/<n>/commits/<sha>.
func (g *GitHub) IsCommitPage(path string) bool {
	i := strings.LastIndex(path, "/")
	if i <= 7 {
		g.log.Debug("not enough characters to be a commit page", zap.String("path", path))
		return false
	}
	before := path[i-7 : i]
	if before != "/commit" && before != "commits" {
		g.log.Debug("missing /commit in the URL", zap.String("got", before))
		return false
	}
	if strings.Count(path, "/") < 4 {
		g.log.Debug("not enough slashes for a commit page", zap.String("path", path))
		return false
	}
	return true
}

func (g *GitHub) RegisterNavigationHook(doc *dom.Document, reinsert func()) {
	g.readder = navigation.New(doc, g.log, navigation.Options{
		Invalidate: g.commit.Invalidate,
		IsCommitPage: func(u *url.URL) bool {
			return g.IsCommitPage(u.Path)
		},
		Reinsert: reinsert,
		Settle:   g.settle,
	}).ListenFor(SoftNavEnd).ListenPopState()
}

// Close unwires the re-adder.
func (g *GitHub) Close() {
	if g.readder != nil {
		g.readder.Close()
	}
}
