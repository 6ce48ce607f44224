package engine

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ccr/clipboard"
	"ccr/dom"
	"ccr/navigation"
	"ccr/provider"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	hash1 = "1f0fc1db8599f87520494ca4f0e3c1b6fabdf997"
	hash2 = "a3b5c7d9e1f3a5b7c9d1e3f5a7b9c1d3e5f7a9b1"
)

func commitPage(hash string) string {
	return `<html><head><title>` + hash[:7] + `</title></head><body>
<div id="ready"></div><div id="target"></div><div id="commit" data-hash="` + hash + `"></div>
</body></html>`
}

// fakeHosting reads the hash from the page and "fetches" the message
// through a memo, counting the fetches.
type fakeHosting struct {
	provider.Base

	name      string
	recognize atomic.Bool
	checked   atomic.Int32

	message    string
	dateErr    error
	subjectErr error
	panicWrap  bool

	memo    provider.Memo[string]
	fetches atomic.Int32
	hooks   atomic.Int32
	readder *navigation.Readder
	tb      testing.TB
}

func newFake(name string, recognize bool) *fakeHosting {
	f := &fakeHosting{name: name, message: "Fix <it> & more\n\nbody"}
	f.recognize.Store(recognize)
	return f
}

func (f *fakeHosting) Name() string { return f.name }

func (f *fakeHosting) ReadySelector() string { return "#ready" }

func (f *fakeHosting) IsRecognized(*dom.Document) bool {
	f.checked.Add(1)
	return f.recognize.Load()
}

func (f *fakeHosting) TargetSelector(*dom.Document) string { return "#target" }

func (f *fakeHosting) FullHash(doc *dom.Document) (string, error) {
	h, _ := doc.Attr("#commit", "data-hash")
	return h, nil
}

func (f *fakeHosting) DateISO(context.Context, *dom.Document, string) (string, error) {
	if f.dateErr != nil {
		return "", f.dateErr
	}
	return "2024-01-02", nil
}

func (f *fakeHosting) CommitMessage(ctx context.Context, _ *dom.Document, _ string) (string, error) {
	return f.memo.Get(ctx, func(context.Context) (string, error) {
		f.fetches.Add(1)
		return f.message, nil
	})
}

func (f *fakeHosting) SubjectHTML(ctx context.Context, doc *dom.Document, subject, hash string) (string, error) {
	if f.subjectErr != nil {
		return "", f.subjectErr
	}
	return f.Base.SubjectHTML(ctx, doc, subject, hash)
}

func (f *fakeHosting) WrapButton(root *goquery.Document, button *html.Node) *html.Node {
	if f.panicWrap {
		panic("unexpected markup")
	}
	return button
}

func (f *fakeHosting) RegisterNavigationHook(doc *dom.Document, reinsert func()) {
	f.hooks.Add(1)
	f.readder = navigation.New(doc, zaptest.NewLogger(f.tb), navigation.Options{
		Invalidate: f.memo.Invalidate,
		IsCommitPage: func(u *url.URL) bool {
			return strings.Contains(u.Path, "/commit/")
		},
		Reinsert: reinsert,
	}).ListenFor("soft-nav")
}

func (f *fakeHosting) Close() {
	if f.readder != nil {
		f.readder.Close()
	}
}

type fixture struct {
	doc *dom.Document
	mem *clipboard.Memory
	eng *Engine
}

func setup(t *testing.T, page string, opts Options, ps ...provider.Provider) fixture {
	t.Helper()
	for _, p := range ps {
		if f, ok := p.(*fakeHosting); ok {
			f.tb = t
		}
	}
	doc, err := dom.Parse("https://git.example/r/commit/"+hash1, page)
	require.NoError(t, err)
	mem := &clipboard.Memory{}
	doc.SetClipboard(mem)
	opts.Log = zaptest.NewLogger(t)
	eng := New(doc, provider.NewRegistry(ps...), opts)
	t.Cleanup(eng.Close)
	return fixture{doc: doc, mem: mem, eng: eng}
}

func display(doc *dom.Document, n *html.Node) string {
	var s string
	doc.Read(func(*goquery.Document) {
		s, _ = dom.Style(n, "display")
	})
	return s
}

func countContainers(doc *dom.Document) int {
	var n int
	doc.Read(func(root *goquery.Document) {
		n = root.Find("#" + ContainerID).Length()
	})
	return n
}

func TestEnsureInsertsControl(t *testing.T) {
	f := setup(t, commitPage(hash1), Options{}, newFake("fake", true))
	f.eng.Ensure(context.Background())

	target := f.doc.ElementByID("target")
	container := f.doc.ElementByID(ContainerID)
	require.NotNil(t, container)
	assert.Same(t, target, container.Parent)

	control := f.eng.Control()
	require.NotNil(t, control)
	assert.Equal(t, "a", control.Data)
	href, _ := dom.GetAttr(control, "href")
	assert.Equal(t, "#", href)
	assert.Equal(t, provider.DefaultButtonText, dom.TextContent(control))

	checkmark := f.doc.ElementByID(CheckmarkID)
	require.NotNil(t, checkmark)
	assert.Equal(t, "none", display(f.doc, checkmark))
	assert.Equal(t, CheckmarkText, dom.TextContent(checkmark))
	assert.Same(t, control.NextSibling, checkmark)
}

func TestEnsureIsIdempotent(t *testing.T) {
	fake := newFake("fake", true)
	f := setup(t, commitPage(hash1), Options{}, fake)
	for range 3 {
		f.eng.Ensure(context.Background())
	}
	assert.Equal(t, 1, countContainers(f.doc))
	assert.Equal(t, int32(1), fake.hooks.Load(), "navigation hook is registered once")
}

func TestRecognitionStopsAtFirstMatch(t *testing.T) {
	a, b, c := newFake("a", false), newFake("b", true), newFake("c", true)
	f := setup(t, commitPage(hash1), Options{}, a, b, c)

	f.eng.Ensure(context.Background())
	assert.Same(t, b, f.eng.Recognized())
	assert.Equal(t, int32(1), a.checked.Load())
	assert.Equal(t, int32(1), b.checked.Load())
	assert.Equal(t, int32(0), c.checked.Load())

	f.eng.Ensure(context.Background())
	assert.Equal(t, int32(1), b.checked.Load(), "recognition happens once")
}

func TestRecognitionRetriedUntilSuccessful(t *testing.T) {
	fake := newFake("fake", false)
	f := setup(t, commitPage(hash1), Options{}, fake)

	f.eng.Ensure(context.Background())
	assert.Nil(t, f.eng.Recognized())
	assert.Nil(t, f.doc.ElementByID(ContainerID))
	assert.ErrorIs(t, f.eng.Activate(context.Background()), ErrNoControl)

	fake.recognize.Store(true)
	f.eng.Ensure(context.Background())
	assert.Same(t, fake, f.eng.Recognized())
	assert.NotNil(t, f.doc.ElementByID(ContainerID))
}

func TestEnsureWaitsForPage(t *testing.T) {
	f := setup(t, `<html><head></head><body></body></html>`, Options{}, newFake("fake", true))

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.eng.Ensure(context.Background())
	}()

	f.doc.Mutate(func(root *goquery.Document) {
		body := root.Find("body").Get(0)
		dom.Append(body, dom.Element("div", "id", "ready"))
	})
	f.doc.Mutate(func(root *goquery.Document) {
		body := root.Find("body").Get(0)
		dom.Append(body, dom.Element("div", "id", "target"), dom.Element("div", "id", "commit", "data-hash", hash1))
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Ensure did not finish")
	}
	assert.NotNil(t, f.doc.ElementByID(ContainerID))
}

func TestEnsureGivesUpAfterWaitTimeout(t *testing.T) {
	f := setup(t, `<html><body></body></html>`, Options{WaitTimeout: 20 * time.Millisecond}, newFake("fake", true))
	f.eng.Ensure(context.Background())
	assert.Nil(t, f.eng.Recognized())
	assert.Nil(t, f.doc.ElementByID(ContainerID))
}

func TestEnsureRecoversFromProviderPanic(t *testing.T) {
	fake := newFake("fake", true)
	fake.panicWrap = true
	f := setup(t, commitPage(hash1), Options{}, fake)

	assert.NotPanics(t, func() { f.eng.Ensure(context.Background()) })
	assert.Nil(t, f.doc.ElementByID(ContainerID), "document stays usable and unchanged")
	assert.Nil(t, f.eng.Control())
}

func TestActivateCopiesReference(t *testing.T) {
	f := setup(t, commitPage(hash1), Options{Confirm: 200 * time.Millisecond}, newFake("fake", true))
	f.eng.Ensure(context.Background())

	require.NoError(t, f.eng.Activate(context.Background()))

	text, ok := f.mem.Get(clipboard.MIMEText)
	require.True(t, ok)
	assert.Equal(t, "1f0fc1d (Fix <it> & more, 2024-01-02)", text)
	markup, ok := f.mem.Get(clipboard.MIMEHTML)
	require.True(t, ok)
	assert.Equal(t, `<a href="https://git.example/r/commit/`+hash1+`">1f0fc1d</a> (Fix &lt;it&gt; &amp; more, 2024-01-02)`, markup)

	checkmark := f.doc.ElementByID(CheckmarkID)
	assert.Equal(t, "inline-block", display(f.doc, checkmark))
	assert.Eventually(t, func() bool {
		return display(f.doc, checkmark) == "none"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestActivateFailureLeavesClipboardAlone(t *testing.T) {
	fake := newFake("fake", true)
	fake.dateErr = errors.New("API rate limited")
	f := setup(t, commitPage(hash1), Options{}, fake)
	f.eng.Ensure(context.Background())

	err := f.eng.Activate(context.Background())
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, Extraction, failure.Kind)
	assert.Empty(t, f.mem.Items())
	assert.Equal(t, "none", display(f.doc, f.doc.ElementByID(CheckmarkID)))
}

func TestSubjectEnrichmentFallsBackToEscapedSubject(t *testing.T) {
	fake := newFake("fake", true)
	fake.subjectErr = errors.New("issue tracker down")
	f := setup(t, commitPage(hash1), Options{}, fake)
	f.eng.Ensure(context.Background())

	ref, err := f.eng.Reference(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `<a href="https://git.example/r/commit/`+hash1+`">1f0fc1d</a> (Fix &lt;it&gt; &amp; more, 2024-01-02)`, ref.HTML)
}

func TestReferenceBeforeRecognition(t *testing.T) {
	f := setup(t, commitPage(hash1), Options{}, newFake("fake", true))
	_, err := f.eng.Reference(context.Background())
	assert.ErrorIs(t, err, ErrNotRecognized)
}

func TestSoftNavigationReinsertsControl(t *testing.T) {
	fake := newFake("fake", true)
	f := setup(t, commitPage(hash1), Options{}, fake)
	ctx := context.Background()
	f.eng.Ensure(ctx)
	require.NoError(t, f.eng.Activate(ctx))
	require.Equal(t, int32(1), fake.fetches.Load())

	// A view that is not a single commit: cache dropped, no control.
	require.NoError(t, f.doc.Navigate("https://git.example/r/tree/main", `<html><body><div id="ready"></div></body></html>`))
	f.doc.DispatchType(ctx, "soft-nav")
	assert.Nil(t, f.doc.ElementByID(ContainerID))
	assert.ErrorIs(t, f.eng.Activate(ctx), ErrNoControl)

	require.NoError(t, f.doc.Navigate("https://git.example/r/commit/"+hash2, commitPage(hash2)))
	f.doc.DispatchType(ctx, "soft-nav")
	require.Eventually(t, func() bool {
		c := f.eng.Control()
		return c != nil && f.doc.Contains(c)
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, f.eng.Activate(ctx))
	text, _ := f.mem.Get(clipboard.MIMEText)
	assert.Equal(t, "a3b5c7d (Fix <it> & more, 2024-01-02)", text)
	assert.Equal(t, int32(2), fake.fetches.Load(), "navigation invalidated the cached message")
	assert.Equal(t, int32(1), fake.hooks.Load())
	assert.Equal(t, 1, countContainers(f.doc))
}

func TestFailureKinds(t *testing.T) {
	err := error(&Failure{Kind: Insertion, Err: context.DeadlineExceeded})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "insertion failure: context deadline exceeded", err.Error())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}
