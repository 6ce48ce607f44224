// Package fetcher loads commit pages and hosting REST resources, with an
// optional headless browser fallback for pages that render client side.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// FetchResult is a loaded commit page.
type FetchResult struct {
	HTML        string
	FinalURL    string // after redirects
	UsedBrowser bool
	FetchTime   time.Duration
}

// Options configures the fetcher behavior.
type Options struct {
	UserAgent      string
	TimeoutSeconds int
	ChromePath     string // empty = auto-detect
	// ReadySelector is waited for before a browser fetch snapshots the page.
	ReadySelector string
}

// DefaultOptions returns the options used until Configure is called.
func DefaultOptions() Options {
	return Options{
		UserAgent:      "ccr/1.0 (copy commit reference)",
		TimeoutSeconds: 30,
		ReadySelector:  "body",
	}
}

var opts = DefaultOptions()

// Configure sets the package-level options. Zero values keep the current
// setting, except ChromePath.
func Configure(o Options) {
	if o.UserAgent != "" {
		opts.UserAgent = o.UserAgent
	}
	if o.TimeoutSeconds > 0 {
		opts.TimeoutSeconds = o.TimeoutSeconds
	}
	if o.ReadySelector != "" {
		opts.ReadySelector = o.ReadySelector
	}
	opts.ChromePath = o.ChromePath
}

// UserAgent returns the configured user agent.
func UserAgent() string { return opts.UserAgent }

// Timeout bounds a single HTTP round trip.
func Timeout() time.Duration {
	return time.Duration(opts.TimeoutSeconds) * time.Second
}

// profileDir keeps Chrome's cookies between runs, so commit pages of private
// repositories load once the user has logged in through watch.
func profileDir() string {
	dir, _ := os.UserCacheDir()
	return filepath.Join(dir, "ccr-chrome-profile")
}

// AllocatorOptions returns the chromedp allocator flags shared by every
// browser this package starts.
func AllocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	o := []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.Flag("use-mock-keychain", true),
		chromedp.UserAgent(opts.UserAgent),
		chromedp.UserDataDir(profileDir()),
	}
	if headless {
		o = append(o, chromedp.Flag("headless", "new"), chromedp.WindowSize(1920, 1080))
	}
	if opts.ChromePath != "" {
		o = append(o, chromedp.ExecPath(opts.ChromePath))
	}
	return o
}

// get performs a GET with the configured user agent and timeout. header
// entries replace the defaults. Non-2xx responses are errors carrying the
// start of the body, which is where hostings explain rate limits.
func get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", opts.UserAgent)
	for k, vals := range header {
		req.Header[http.CanonicalHeaderKey(k)] = vals
	}

	client := &http.Client{Timeout: Timeout()}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if s := strings.TrimSpace(string(snippet)); s != "" {
			return nil, fmt.Errorf("fetching %s: %s: %s", url, resp.Status, s)
		}
		return nil, fmt.Errorf("fetching %s: %s", url, resp.Status)
	}
	return resp, nil
}

// Simple fetches a page over plain HTTP.
func Simple(ctx context.Context, url string) (*FetchResult, error) {
	start := time.Now()
	resp, err := get(ctx, url, http.Header{"Accept": {"text/html,application/xhtml+xml"}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return &FetchResult{
		HTML:      string(body),
		FinalURL:  resp.Request.URL.String(),
		FetchTime: time.Since(start),
	}, nil
}

// JSON fetches url with the given extra headers and decodes the JSON body
// into v. This is the one network round trip a provider may need per commit.
func JSON(ctx context.Context, url string, header http.Header, v any) error {
	h := http.Header{"Accept": {"application/json"}}
	for k, vals := range header {
		h[http.CanonicalHeaderKey(k)] = vals
	}
	resp, err := get(ctx, url, h)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

// hideAutomation masks navigator.webdriver; some hostings put a challenge
// in front of headless Chrome otherwise.
const hideAutomation = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});`

// WithBrowser loads a page in headless Chrome and snapshots it once the
// configured ready selector exists.
func WithBrowser(ctx context.Context, targetURL string) (*FetchResult, error) {
	start := time.Now()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(true)...)
	defer allocCancel()

	// Chrome start-up comes on top of the page load.
	bctx, cancel := context.WithTimeout(allocCtx, Timeout()+15*time.Second)
	defer cancel()
	bctx, cancel = chromedp.NewContext(bctx)
	defer cancel()

	var html, finalURL string
	err := chromedp.Run(bctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideAutomation).Do(ctx)
			return err
		}),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "en-US,en;q=0.9"}),
		chromedp.Navigate(targetURL),
		chromedp.WaitReady(opts.ReadySelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return nil, fmt.Errorf("browser fetch %s: %w", targetURL, err)
	}
	return &FetchResult{
		HTML:        html,
		FinalURL:    finalURL,
		UsedBrowser: true,
		FetchTime:   time.Since(start),
	}, nil
}

// challenges are markers of interstitial pages served instead of the commit.
var challenges = []struct {
	marker, reason string
}{
	{"Just a moment...", "Cloudflare challenge"},
	{"cf-browser-verification", "Cloudflare challenge"},
	{"anubis_challenge", "Anubis challenge"},
	{"Making sure you&#39;re not a bot", "Anubis challenge"},
}

// Challenge reports which bot challenge, if any, page is.
func Challenge(page string) (reason string, ok bool) {
	for _, c := range challenges {
		if strings.Contains(page, c.marker) {
			return c.reason, true
		}
	}
	return "", false
}

// Smart fetches over HTTP first and falls back to the browser when that
// fails, hits a challenge or hasReady rejects the page, which happens when
// the hosting renders commits client side.
func Smart(ctx context.Context, targetURL string, hasReady func(html string) bool) (*FetchResult, error) {
	res, err := Simple(ctx, targetURL)
	if err == nil {
		if _, blocked := Challenge(res.HTML); !blocked && (hasReady == nil || hasReady(res.HTML)) {
			return res, nil
		}
	}

	res, err = WithBrowser(ctx, targetURL)
	if err != nil {
		return nil, err
	}
	if reason, blocked := Challenge(res.HTML); blocked {
		return nil, fmt.Errorf("fetching %s: blocked by %s", targetURL, reason)
	}
	return res, nil
}
