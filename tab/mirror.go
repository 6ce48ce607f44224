package tab

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ccr/dom"

	"go.uber.org/zap"
)

// Signal kinds besides the page's own event names.
const (
	// SignalLoad is a full page load; the mirror starts over with a new
	// document.
	SignalLoad = "load"
	// SignalHead is a mutation of <head>. Re-snapshotting is all it takes,
	// the mirror's observers see the change.
	SignalHead = "head"
)

// Signal is what the page reports through the binding.
type Signal struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

func parseSignal(payload string) (Signal, error) {
	var s Signal
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return s, fmt.Errorf("decoding signal %q: %w", payload, err)
	}
	if s.Type == "" {
		return s, fmt.Errorf("signal without type: %q", payload)
	}
	return s, nil
}

// snapshotFunc returns the tab's current URL and markup.
type snapshotFunc func(ctx context.Context) (url, page string, err error)

// mirror keeps a dom.Document in step with a page it cannot touch directly.
type mirror struct {
	log      *zap.Logger
	snapshot snapshotFunc
	settle   time.Duration
	// prepare is called with every new document before onLoad.
	prepare func(*dom.Document)
	onLoad  func(*dom.Document)

	doc *dom.Document
}

// handle applies one signal. Signals are handled one at a time, in order.
func (m *mirror) handle(ctx context.Context, sig Signal) error {
	if sig.Type == dom.EventPopState && m.settle > 0 {
		// give the page the same head start the re-adder gives the mirror
		select {
		case <-time.After(m.settle):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	url, page, err := m.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot after %s: %w", sig.Type, err)
	}
	log := m.log.With(zap.String("signal", sig.Type), zap.String("url", url))

	if sig.Type == SignalLoad || m.doc == nil {
		doc, err := dom.Parse(url, page)
		if err != nil {
			return err
		}
		m.doc = doc
		log.Debug("page loaded")
		if m.prepare != nil {
			m.prepare(doc)
		}
		if m.onLoad != nil {
			m.onLoad(doc)
		}
		return nil
	}

	if err := m.doc.Navigate(url, page); err != nil {
		return err
	}
	log.Debug("page updated")
	if sig.Type != SignalHead {
		m.doc.DispatchType(ctx, sig.Type)
	}
	return nil
}

// run handles signals until ctx is done or signals is closed.
func (m *mirror) run(ctx context.Context, signals <-chan Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if err := m.handle(ctx, sig); err != nil {
				m.log.Warn("cannot mirror page", zap.Error(err))
			}
		}
	}
}
