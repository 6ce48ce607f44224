// Package tab mirrors a visible Chrome tab into a dom.Document, so the
// engine can work on a page a person is browsing.
//
// The tab reports navigation through a binding, ccrSignal, installed on
// every document it loads. Each signal makes the mirror take a fresh
// snapshot of the page; full loads start a new document, everything else
// updates the current one and replays the page's event on it.
package tab

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ccr/clipboard"
	"ccr/dom"
	"ccr/fetcher"

	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// BindingName is the function the page calls to report a signal.
const BindingName = "ccrSignal"

const signalScript = `(() => {
  const send = (type) => window.%[1]s(JSON.stringify({type: type, url: location.href}));
  window.addEventListener('popstate', () => send('popstate'));
  for (const type of %[2]s) document.addEventListener(type, () => send(type));
  const watchHead = () => new MutationObserver(() => send('head'))
    .observe(document.head, {subtree: true, childList: true, characterData: true});
  if (document.head) watchHead(); else document.addEventListener('DOMContentLoaded', watchHead);
})();`

func buildSignalScript(events []string) (string, error) {
	if events == nil {
		events = []string{}
	}
	list, err := json.Marshal(events)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(signalScript, BindingName, list), nil
}

// Options configures a Tab.
type Options struct {
	Log *zap.Logger
	// Settle delays the snapshot after history traversal.
	Settle time.Duration
	// Events are document level events of the page to forward, besides
	// popstate.
	Events []string
	// OnLoad receives the mirror document of every full page load. Its
	// clipboard writes through the tab.
	OnLoad func(doc *dom.Document)
}

// Tab is a visible Chrome tab and its mirror.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
	done   chan struct{}
}

// Open starts Chrome, loads rawURL and starts mirroring.
func Open(ctx context.Context, rawURL string, opts Options) (*Tab, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("tab")
	script, err := buildSignalScript(opts.Events)
	if err != nil {
		return nil, fmt.Errorf("building signal script: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, fetcher.AllocatorOptions(false)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	t := &Tab{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		log:  log,
		done: make(chan struct{}),
	}

	signals := make(chan Signal, 64)
	push := func(sig Signal) {
		select {
		case signals <- sig:
		default:
			log.Warn("dropping signal, mirror is behind", zap.String("signal", sig.Type))
		}
	}
	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch ev := ev.(type) {
		case *page.EventLoadEventFired:
			push(Signal{Type: SignalLoad})
		case *cdpruntime.EventBindingCalled:
			if ev.Name != BindingName {
				return
			}
			sig, err := parseSignal(ev.Payload)
			if err != nil {
				log.Warn("bad signal", zap.Error(err))
				return
			}
			push(sig)
		}
	})

	err = chromedp.Run(tabCtx,
		cdpruntime.AddBinding(BindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}),
		chromedp.Navigate(rawURL),
	)
	if err != nil {
		t.cancel()
		return nil, fmt.Errorf("opening %s: %w", rawURL, err)
	}
	log.Info("tab open", zap.String("url", rawURL))

	m := &mirror{
		log:      log,
		snapshot: t.snapshot,
		settle:   opts.Settle,
		prepare: func(doc *dom.Document) {
			doc.SetClipboard(clipboard.Browser{Tab: tabCtx})
		},
		onLoad: opts.OnLoad,
	}
	go func() {
		defer close(t.done)
		m.run(tabCtx, signals)
	}()
	return t, nil
}

func (t *Tab) snapshot(ctx context.Context) (string, string, error) {
	var loc, markup string
	err := chromedp.Run(ctx,
		chromedp.Location(&loc),
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
	)
	return loc, markup, err
}

// Done is closed once the tab stops mirroring.
func (t *Tab) Done() <-chan struct{} { return t.done }

// Close shuts the browser down and waits for the mirror to stop.
func (t *Tab) Close() {
	t.cancel()
	<-t.done
}
