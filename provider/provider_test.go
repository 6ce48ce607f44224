package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ccr/dom"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fake struct {
	Base
	name       string
	ready      string
	recognized bool
	asked      int
	hash       string
	date       string
	msg        string
	err        error
}

func (f *fake) Name() string { return f.name }

func (f *fake) ReadySelector() string { return f.ready }

func (f *fake) IsRecognized(*dom.Document) bool {
	f.asked++
	return f.recognized
}

func (f *fake) TargetSelector(*dom.Document) string { return "body" }

func (f *fake) FullHash(*dom.Document) (string, error) {
	return f.hash, nil
}

func (f *fake) DateISO(context.Context, *dom.Document, string) (string, error) {
	return f.date, f.err
}

func (f *fake) CommitMessage(context.Context, *dom.Document, string) (string, error) {
	return f.msg, nil
}

var _ Provider = (*fake)(nil)

func testDoc(t *testing.T) *dom.Document {
	t.Helper()
	d, err := dom.Parse("https://example.com/", "<html><body><p id=t></p></body></html>")
	require.NoError(t, err)
	return d
}

func TestRecognizeStopsAtFirstMatch(t *testing.T) {
	a := &fake{name: "a"}
	b := &fake{name: "b", recognized: true}
	c := &fake{name: "c", recognized: true}
	r := NewRegistry(a, b, c)

	got := r.Recognize(testDoc(t))
	require.NotNil(t, got)
	assert.Equal(t, "b", got.Name())
	assert.Equal(t, 1, a.asked)
	assert.Equal(t, 1, b.asked)
	assert.Equal(t, 0, c.asked)

	assert.Nil(t, NewRegistry(&fake{name: "x"}).Recognize(testDoc(t)))
}

func TestReadySelectorUnion(t *testing.T) {
	r := NewRegistry(&fake{ready: ".a"}, &fake{}, &fake{ready: "#b"})
	assert.Equal(t, ".a, #b", r.ReadySelector())
	assert.Equal(t, 3, r.Len())
}

func TestBaseDefaults(t *testing.T) {
	var b Base
	assert.Equal(t, DefaultButtonText, b.ButtonText())
	assert.Equal(t, "a", b.ButtonTag())

	s, err := b.SubjectHTML(context.Background(), nil, "a <b>", "h")
	require.NoError(t, err)
	assert.Equal(t, "a &lt;b&gt;", s)

	root, err := goquery.NewDocumentFromReader(strings.NewReader("<html></html>"))
	require.NoError(t, err)
	target := dom.Element("div")
	container := dom.Element("span")
	assert.Same(t, container, b.WrapContainer(root, container))
	b.InsertContainer(root, target, container)
	assert.Same(t, target, container.Parent)
}

func TestExtract(t *testing.T) {
	p := &fake{name: "f", hash: "abc1234def", date: "2024-01-02", msg: "Fix\n\nbody"}
	md, err := Extract(context.Background(), p, testDoc(t))
	require.NoError(t, err)
	assert.Equal(t, Metadata{Hash: "abc1234def", DateISO: "2024-01-02", Message: "Fix\n\nbody"}, md)

	p.date = "2 Jan 2024"
	_, err = Extract(context.Background(), p, testDoc(t))
	assert.Error(t, err)

	p.date, p.err = "2024-01-02", errors.New("api down")
	_, err = Extract(context.Background(), p, testDoc(t))
	assert.ErrorContains(t, err, "api down")

	p.err, p.hash = nil, ""
	_, err = Extract(context.Background(), p, testDoc(t))
	assert.ErrorIs(t, err, ErrNoHash)
}

func TestMemoSingleFlight(t *testing.T) {
	var m Memo[string]
	var loads atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (string, error) {
		loads.Add(1)
		<-release
		return "json", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := m.Get(context.Background(), load)
			if err == nil {
				results[i] = v
			}
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for _, r := range results {
		assert.Equal(t, "json", r)
	}

	v, ok := m.Cached()
	assert.True(t, ok)
	assert.Equal(t, "json", v)
}

func TestMemoInvalidate(t *testing.T) {
	var m Memo[int]
	n := 0
	load := func(context.Context) (int, error) {
		n++
		return n, nil
	}

	v, _ := m.Get(context.Background(), load)
	assert.Equal(t, 1, v)
	v, _ = m.Get(context.Background(), load)
	assert.Equal(t, 1, v)

	m.Invalidate()
	_, ok := m.Cached()
	assert.False(t, ok)
	v, _ = m.Get(context.Background(), load)
	assert.Equal(t, 2, v)
}

func TestMemoInvalidateDuringLoad(t *testing.T) {
	var m Memo[string]
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string)
	go func() {
		v, _ := m.Get(context.Background(), func(context.Context) (string, error) {
			close(started)
			<-release
			return "stale", nil
		})
		done <- v
	}()

	<-started
	m.Invalidate()
	close(release)
	assert.Equal(t, "stale", <-done)

	_, ok := m.Cached()
	assert.False(t, ok, "a load from before invalidation must not be cached")
}

func TestMemoFailureNotCached(t *testing.T) {
	var m Memo[string]
	_, err := m.Get(context.Background(), func(context.Context) (string, error) {
		return "", errors.New("boom")
	})
	assert.Error(t, err)
	v, err := m.Get(context.Background(), func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
