// Package clipboard performs the copy transaction behind the control: both
// representations of a commit reference go onto the clipboard within one copy
// action, or nothing does.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ccr/dom"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// MIME types written by every copy.
const (
	MIMEText = "text/plain"
	MIMEHTML = "text/html"
)

// DefaultConfirm is how long the confirmation stays visible.
const DefaultConfirm = 2000 * time.Millisecond

// ErrNotCopied is returned when the copy action ran but our handler never saw it.
var ErrNotCopied = errors.New("copy action was not handled")

// Indicator is the transient "copied" confirmation.
type Indicator interface {
	Show()
	Hide()
}

// Writer runs copy transactions against one document.
type Writer struct {
	doc     *dom.Document
	log     *zap.Logger
	confirm time.Duration

	mu   sync.Mutex
	hide *time.Timer
}

// NewWriter returns a Writer for doc. A zero confirm means DefaultConfirm.
func NewWriter(doc *dom.Document, log *zap.Logger, confirm time.Duration) *Writer {
	if confirm <= 0 {
		confirm = DefaultConfirm
	}
	return &Writer{doc: doc, log: log.Named("clipboard"), confirm: confirm}
}

// Copy registers a one-shot copy handler carrying text and markup, triggers
// the copy action and removes the handler again on every path. The
// indicator, if any, is shown only once the clipboard accepted both
// representations.
func (w *Writer) Copy(ctx context.Context, text, markup string, ind Indicator) error {
	handled := false
	remove := w.doc.AddEventListener(nil, dom.EventCopy, func(ev *dom.Event) {
		ev.StopPropagation()
		ev.PreventDefault()
		ev.ClipboardData.SetData(MIMEText, text)
		ev.ClipboardData.SetData(MIMEHTML, markup)
		handled = true
	})
	defer remove()

	if err := w.doc.ExecCommand(ctx, dom.EventCopy); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if !handled {
		return ErrNotCopied
	}
	w.log.Debug("copied to clipboard", zap.String("text", text))

	if ind != nil {
		w.confirmWith(ind)
	}
	return nil
}

func (w *Writer) confirmWith(ind Indicator) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.hide != nil {
		w.hide.Stop()
	}
	ind.Show()
	w.hide = time.AfterFunc(w.confirm, ind.Hide)
}

// Close cancels a pending hide.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.hide != nil {
		w.hide.Stop()
		w.hide = nil
	}
}

// NodeIndicator toggles the display of an element in a document.
type NodeIndicator struct {
	Doc  *dom.Document
	Node *html.Node
}

func (n NodeIndicator) Show() { n.set("inline-block") }

func (n NodeIndicator) Hide() { n.set("none") }

func (n NodeIndicator) set(display string) {
	n.Doc.Mutate(func(*goquery.Document) {
		dom.SetStyle(n.Node, "display", display)
	})
}
