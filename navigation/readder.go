// Package navigation keeps the copy control on pages that move between
// commits without a full page load.
//
// A Readder remembers the last URL it saw. Whenever one of its signals fires
// it compares the current URL with that; on a change it invalidates the
// provider's per-commit cache and, if the new URL is still a single-commit
// view, asks the engine to insert the control again.
package navigation

import (
	"net/url"
	"sync"
	"time"

	"ccr/dom"

	"go.uber.org/zap"
)

// DefaultSettle is how long a history traversal is given to re-render the
// page before the URL is checked.
const DefaultSettle = 100 * time.Millisecond

// Options configures a Readder.
type Options struct {
	// Invalidate clears everything cached for the previous commit.
	Invalidate func()
	// IsCommitPage reports whether u addresses a single commit. Nil means
	// every URL does.
	IsCommitPage func(u *url.URL) bool
	// Reinsert puts the control back on the page.
	Reinsert func()
	// Settle delays the check after a popstate signal. Zero means DefaultSettle.
	Settle time.Duration
}

// Readder re-adds the control after client side navigation.
type Readder struct {
	doc  *dom.Document
	log  *zap.Logger
	opts Options

	mu       sync.Mutex
	lastSeen string
	closers  []func()
	timers   []*time.Timer
	closed   bool
}

// New creates a Readder that considers the document's current URL as seen.
// No signals are wired until one of the Listen or Observe methods is called.
func New(doc *dom.Document, log *zap.Logger, opts Options) *Readder {
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	return &Readder{
		doc:      doc,
		log:      log,
		opts:     opts,
		lastSeen: doc.Location(),
	}
}

// LastSeen returns the URL the Readder last acted on.
func (r *Readder) LastSeen() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeen
}

// ObserveHead fires on every mutation of the page's <head>, which includes
// the title changing when a single page app shows a new view.
func (r *Readder) ObserveHead() *Readder {
	disconnect := r.doc.Observe(func(rec dom.MutationRecord) {
		if rec.HeadChanged {
			r.Check("head mutation")
		}
	})
	r.addCloser(disconnect)
	r.log.Info("observing <head> for navigation")
	return r
}

// ListenFor fires when the host page dispatches an event of type typ, such
// as a "soft navigation finished" event.
func (r *Readder) ListenFor(typ string) *Readder {
	remove := r.doc.AddEventListener(nil, typ, func(*dom.Event) {
		r.Check(typ)
	})
	r.addCloser(remove)
	r.log.Info("listening for navigation event", zap.String("event", typ))
	return r
}

// ListenPopState fires after history traversal, once the page had Settle to
// catch up.
func (r *Readder) ListenPopState() *Readder {
	remove := r.doc.AddEventListener(nil, dom.EventPopState, func(*dom.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		r.timers = append(r.timers, time.AfterFunc(r.opts.Settle, func() {
			r.Check(dom.EventPopState)
		}))
	})
	r.addCloser(remove)
	r.log.Info("listening for history traversal", zap.Duration("settle", r.opts.Settle))
	return r
}

// Check compares the current URL with the last one seen and reacts to a
// change. It reports whether the control was re-added. Repeated calls for
// the same URL do nothing.
func (r *Readder) Check(signal string) bool {
	current := r.doc.Location()

	r.mu.Lock()
	if r.closed || current == r.lastSeen {
		r.mu.Unlock()
		return false
	}
	r.lastSeen = current
	r.mu.Unlock()

	log := r.log.With(zap.String("signal", signal), zap.String("url", current))
	log.Info("URL has changed")
	if r.opts.Invalidate != nil {
		r.opts.Invalidate()
	}
	if r.opts.IsCommitPage != nil && !r.opts.IsCommitPage(r.doc.URL()) {
		log.Info("this URL does not need the copy control")
		return false
	}
	if r.opts.Reinsert != nil {
		r.opts.Reinsert()
	}
	return true
}

// Close unwires every signal and cancels pending settle timers.
func (r *Readder) Close() {
	r.mu.Lock()
	closers := r.closers
	timers := r.timers
	r.closers, r.timers = nil, nil
	r.closed = true
	r.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	for _, c := range closers {
		c()
	}
}

func (r *Readder) addCloser(c func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, c)
}
