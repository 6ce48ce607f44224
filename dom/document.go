// Package dom models a live web page: a mutable HTML tree with a location,
// event listeners, mutation observers and a platform clipboard.
//
// The tree is backed by golang.org/x/net/html nodes and queried with goquery.
// All access goes through Read and Mutate so that a page can be updated by one
// goroutine (a browser mirror, a test) while the engine waits on it from another.
package dom

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// MutationRecord describes what a change to the document touched.
type MutationRecord struct {
	URLChanged  bool
	HeadChanged bool
}

type observer struct {
	fn func(MutationRecord)
}

// Document is a loaded page.
type Document struct {
	mu        sync.RWMutex
	root      *goquery.Document
	location  *url.URL
	changed   chan struct{}
	listeners map[*html.Node]map[string][]*listener
	observers []*observer
	clipboard Clipboard
}

// New parses an HTML page served at rawURL.
func New(rawURL string, r io.Reader) (*Document, error) {
	loc, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page URL: %w", err)
	}
	root, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing page HTML: %w", err)
	}
	root.Url = cloneURL(loc)
	return &Document{
		root:      root,
		location:  loc,
		changed:   make(chan struct{}),
		listeners: make(map[*html.Node]map[string][]*listener),
	}, nil
}

// Parse is New for an in-memory page.
func Parse(rawURL, page string) (*Document, error) {
	return New(rawURL, strings.NewReader(page))
}

// SetClipboard attaches the platform clipboard that a handled copy action
// writes to.
func (d *Document) SetClipboard(c Clipboard) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clipboard = c
}

// URL returns a copy of the current location. Inside Read and Mutate the
// same location is available as root.Url.
func (d *Document) URL() *url.URL {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneURL(d.location)
}

func cloneURL(u *url.URL) *url.URL {
	c := *u
	return &c
}

// Location returns the current location as a string.
func (d *Document) Location() string {
	return d.URL().String()
}

// Read runs fn with shared access to the tree. fn must not call back into d.
func (d *Document) Read(fn func(root *goquery.Document)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.root)
}

// Mutate runs fn with exclusive access to the tree, then wakes waiters and
// notifies observers. fn must not call back into d.
func (d *Document) Mutate(fn func(root *goquery.Document)) {
	d.mu.Lock()
	before := headHTML(d.root)
	fn(d.root)
	rec := MutationRecord{HeadChanged: headHTML(d.root) != before}
	d.mu.Unlock()
	d.notify(rec)
}

// Navigate replaces the whole page, as a soft navigation does once the new
// view has rendered. Listeners on the previous tree's nodes are dropped;
// document level listeners survive.
func (d *Document) Navigate(rawURL, page string) error {
	loc, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing page URL: %w", err)
	}
	root, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return fmt.Errorf("parsing page HTML: %w", err)
	}

	d.mu.Lock()
	before := headHTML(d.root)
	rec := MutationRecord{
		URLChanged:  loc.String() != d.location.String(),
		HeadChanged: headHTML(root) != before,
	}
	root.Url = cloneURL(loc)
	d.root = root
	d.location = loc
	docListeners := d.listeners[nil]
	d.listeners = make(map[*html.Node]map[string][]*listener)
	if docListeners != nil {
		d.listeners[nil] = docListeners
	}
	d.mu.Unlock()

	d.notify(rec)
	return nil
}

// PushState changes the location without touching the tree, like
// history.pushState.
func (d *Document) PushState(rawURL string) error {
	loc, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing page URL: %w", err)
	}
	d.mu.Lock()
	changed := loc.String() != d.location.String()
	d.location = loc
	d.root.Url = cloneURL(loc)
	d.mu.Unlock()
	d.notify(MutationRecord{URLChanged: changed})
	return nil
}

// Observe registers fn to be called after every mutation of the document.
func (d *Document) Observe(fn func(MutationRecord)) (disconnect func()) {
	o := &observer{fn: fn}
	d.mu.Lock()
	d.observers = append(d.observers, o)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, cur := range d.observers {
				if cur == o {
					d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
					break
				}
			}
		})
	}
}

// Changed returns a channel that is closed by the next mutation.
func (d *Document) Changed() <-chan struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.changed
}

func (d *Document) notify(rec MutationRecord) {
	d.mu.Lock()
	close(d.changed)
	d.changed = make(chan struct{})
	observers := make([]*observer, len(d.observers))
	copy(observers, d.observers)
	d.mu.Unlock()

	for _, o := range observers {
		o.fn(rec)
	}
}

// First returns the first element matching selector, or nil.
func (d *Document) First(selector string) *html.Node {
	var n *html.Node
	d.Read(func(root *goquery.Document) {
		if sel := root.Find(selector); sel.Length() > 0 {
			n = sel.Get(0)
		}
	})
	return n
}

// Exists reports whether any element matches selector.
func (d *Document) Exists(selector string) bool {
	return d.First(selector) != nil
}

// Text returns the text content of the first element matching selector.
func (d *Document) Text(selector string) (string, bool) {
	var text string
	var ok bool
	d.Read(func(root *goquery.Document) {
		sel := root.Find(selector).First()
		if sel.Length() == 0 {
			return
		}
		text, ok = sel.Text(), true
	})
	return text, ok
}

// Attr returns an attribute of the first element matching selector.
func (d *Document) Attr(selector, name string) (string, bool) {
	var val string
	var ok bool
	d.Read(func(root *goquery.Document) {
		val, ok = root.Find(selector).First().Attr(name)
	})
	return val, ok
}

// InnerHTML returns the markup inside the first element matching selector.
func (d *Document) InnerHTML(selector string) (string, bool) {
	var markup string
	var ok bool
	d.Read(func(root *goquery.Document) {
		sel := root.Find(selector).First()
		if sel.Length() == 0 {
			return
		}
		s, err := sel.Html()
		if err != nil {
			return
		}
		markup, ok = s, true
	})
	return markup, ok
}

// Title returns the text of the page's <title>.
func (d *Document) Title() string {
	t, _ := d.Text("head title")
	return strings.TrimSpace(t)
}

// ElementByID returns the element with the given id, or nil.
func (d *Document) ElementByID(id string) *html.Node {
	var n *html.Node
	d.Read(func(root *goquery.Document) {
		n = FindByID(root.Get(0), id)
	})
	return n
}

// Contains reports whether n is currently attached to the tree.
func (d *Document) Contains(n *html.Node) bool {
	if n == nil {
		return false
	}
	found := false
	d.Read(func(root *goquery.Document) {
		top := root.Get(0)
		for p := n; p != nil; p = p.Parent {
			if p == top {
				found = true
				return
			}
		}
	})
	return found
}

// OuterHTML renders the whole page.
func (d *Document) OuterHTML() string {
	var s string
	d.Read(func(root *goquery.Document) {
		s = Render(root.Get(0))
	})
	return s
}

func headHTML(root *goquery.Document) string {
	head := root.Find("head").First()
	if head.Length() == 0 {
		return ""
	}
	s, _ := goquery.OuterHtml(head)
	return s
}
