// Package engine drives one page: it recognizes the hosting, keeps the copy
// control on the page and runs the copy transaction when the control is
// activated.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ccr/clipboard"
	"ccr/dom"
	"ccr/provider"
	"ccr/reference"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Identifiers of the inserted elements.
const (
	ContainerID   = "CCR_container"
	CheckmarkID   = "CCR_checkmark"
	CheckmarkText = " ✅ Copied to clipboard"
)

var (
	// ErrNotRecognized means no provider claimed the page.
	ErrNotRecognized = errors.New("no provider recognized the page")
	// ErrNoControl is returned by Activate when the control is not on the page.
	ErrNoControl = errors.New("copy control is not on the page")
)

// Options configures an Engine.
type Options struct {
	Log *zap.Logger
	// WaitTimeout bounds each wait for an element. Zero waits until the
	// context passed to Ensure is done.
	WaitTimeout time.Duration
	// Confirm is how long the confirmation stays visible.
	Confirm time.Duration
}

// Engine is the page session: the document, the ordered providers and the
// provider that recognized the page, once one has.
type Engine struct {
	doc         *dom.Document
	registry    *provider.Registry
	log         *zap.Logger
	session     uuid.UUID
	writer      *clipboard.Writer
	waitTimeout time.Duration

	// ctx outlives single Ensure calls; re-adders run Ensure with it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	recognized  provider.Provider
	control     *html.Node
	checkmark   *html.Node
	removeClick func()
	hookOnce    sync.Once
}

// New creates an Engine for doc. Nothing happens until Ensure is called.
func New(doc *dom.Document, registry *provider.Registry, opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	session := uuid.New()
	log = log.Named("engine").With(zap.String("session", session.String()))
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		doc:         doc,
		registry:    registry,
		log:         log,
		session:     session,
		writer:      clipboard.NewWriter(doc, log, opts.Confirm),
		waitTimeout: opts.WaitTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Session identifies this page session in logs.
func (e *Engine) Session() uuid.UUID { return e.session }

// Document returns the page the engine works on.
func (e *Engine) Document() *dom.Document { return e.doc }

// Recognized returns the provider that recognized the page, or nil.
func (e *Engine) Recognized() provider.Provider {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recognized
}

// Control returns the inserted control element, or nil.
func (e *Engine) Control() *html.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.control
}

// Ensure puts the copy control on the page, replacing a previous one. It
// blocks until the control is inserted or a wait gives up. Failures are
// logged and never returned.
func (e *Engine) Ensure(ctx context.Context) {
	if err := e.ensure(ctx); err != nil {
		var f *Failure
		if errors.As(err, &f) && f.Kind == Recognition {
			e.log.Warn("page not recognized", zap.Error(err))
			return
		}
		e.log.Error("cannot insert copy control", zap.Error(err))
	}
}

func (e *Engine) ensure(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Failure{Kind: Insertion, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	e.removeContainer()

	ready := e.readySelector()
	e.log.Debug("waiting for page", zap.String("selector", ready))
	if _, err := e.wait(ctx, ready); err != nil {
		return &Failure{Kind: Insertion, Err: err}
	}

	p, err := e.recognize()
	if err != nil {
		return err
	}

	target := p.TargetSelector(e.doc)
	e.log.Debug("waiting for target", zap.String("selector", target))
	if _, err := e.wait(ctx, target); err != nil {
		return &Failure{Kind: Insertion, Err: err}
	}

	if err := e.insert(p, target); err != nil {
		return err
	}

	e.hookOnce.Do(func() {
		e.log.Debug("registering navigation hook", zap.String("provider", p.Name()))
		p.RegisterNavigationHook(e.doc, e.reinsert)
	})
	return nil
}

// readySelector is the union of every provider's selector until the page is
// recognized, and the recognized provider's selector afterwards.
func (e *Engine) readySelector() string {
	if p := e.Recognized(); p != nil {
		return p.ReadySelector()
	}
	return e.registry.ReadySelector()
}

func (e *Engine) recognize() (provider.Provider, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recognized != nil {
		return e.recognized, nil
	}
	p := e.registry.Recognize(e.doc)
	if p == nil {
		return nil, &Failure{Kind: Recognition, Err: ErrNotRecognized}
	}
	e.recognized = p
	e.log.Info("recognized page", zap.String("provider", p.Name()), zap.String("url", e.doc.Location()))
	return p, nil
}

func (e *Engine) wait(ctx context.Context, selector string) (*html.Node, error) {
	if e.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.waitTimeout)
		defer cancel()
	}
	return dom.WaitFor(ctx, e.doc, selector)
}

// reinsert is what re-adders call after a soft navigation.
func (e *Engine) reinsert() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.Ensure(e.ctx)
	}()
}

func (e *Engine) removeContainer() {
	e.mu.Lock()
	removeClick := e.removeClick
	e.removeClick, e.control, e.checkmark = nil, nil, nil
	e.mu.Unlock()
	if removeClick != nil {
		removeClick()
	}
	if e.doc.ElementByID(ContainerID) == nil {
		return
	}
	e.doc.Mutate(func(root *goquery.Document) {
		if c := dom.FindByID(root.Get(0), ContainerID); c != nil {
			dom.Detach(c)
		}
	})
}

// insert builds the container, control and checkmark and hands the
// container to the provider's insertion hook. The target is looked up again
// under the document lock, since the page may have moved on since the wait.
func (e *Engine) insert(p provider.Provider, target string) (err error) {
	var control, checkmark *html.Node
	e.doc.Mutate(func(root *goquery.Document) {
		defer func() {
			if r := recover(); r != nil {
				err = &Failure{Kind: Insertion, Err: fmt.Errorf("%s: panic: %v", p.Name(), r)}
			}
		}()
		sel := root.Find(target).First()
		if sel.Length() == 0 {
			err = &Failure{Kind: Insertion, Err: fmt.Errorf("target %q went away", target)}
			return
		}
		if old := dom.FindByID(root.Get(0), ContainerID); old != nil {
			dom.Detach(old)
		}

		inner := dom.Element("span")
		dom.SetStyle(inner, "position", "relative")
		container := p.WrapContainer(root, inner)
		dom.SetAttr(container, "id", ContainerID)

		control = newControl(p)
		button := p.WrapButton(root, control)
		checkmark = newCheckmark()
		p.StyleCheckmark(root, checkmark)
		dom.Append(inner, button, checkmark)

		p.InsertContainer(root, sel.Get(0), container)
	})
	if err != nil {
		return err
	}

	remove := e.doc.AddEventListener(control, dom.EventClick, e.onClick)
	e.mu.Lock()
	prev := e.removeClick
	e.control, e.checkmark, e.removeClick = control, checkmark, remove
	e.mu.Unlock()
	if prev != nil {
		prev()
	}
	e.log.Info("inserted copy control", zap.String("provider", p.Name()))
	return nil
}

func newControl(p provider.Provider) *html.Node {
	tag := p.ButtonTag()
	var control *html.Node
	if tag == "a" {
		control = dom.Element(tag, "href", "#", "role", "button")
	} else {
		control = dom.Element(tag, "role", "button")
	}
	dom.Append(control, dom.Text(p.ButtonText()))
	return control
}

func newCheckmark() *html.Node {
	c := dom.Element("span", "id", CheckmarkID)
	dom.SetStyles(c,
		"display", "none",
		"position", "absolute",
		"left", "calc(100% + 0.5rem)",
		"white-space", "nowrap",
	)
	dom.Append(c, dom.Text(CheckmarkText))
	return c
}

func (e *Engine) onClick(ev *dom.Event) {
	ev.PreventDefault()
	if err := e.CopyReference(ev.Context()); err != nil {
		e.log.Error("could not do the copying", zap.Error(err))
		ev.Fail(err)
	}
}

// Activate clicks the control, as a user would.
func (e *Engine) Activate(ctx context.Context) error {
	control := e.Control()
	if control == nil || !e.doc.Contains(control) {
		return ErrNoControl
	}
	return e.doc.Click(ctx, control)
}

// Reference extracts the displayed commit and formats its reference.
func (e *Engine) Reference(ctx context.Context) (ref reference.Reference, err error) {
	p := e.Recognized()
	if p == nil {
		return ref, &Failure{Kind: Recognition, Err: ErrNotRecognized}
	}
	defer func() {
		if r := recover(); r != nil {
			err = &Failure{Kind: Extraction, Err: fmt.Errorf("%s: panic: %v", p.Name(), r)}
		}
	}()

	md, err := provider.Extract(ctx, p, e.doc)
	if err != nil {
		return ref, &Failure{Kind: Extraction, Err: err}
	}
	subject := reference.Subject(md.Message)
	subjectHTML := e.subjectHTML(ctx, p, subject, md.Hash)
	ref = reference.New(e.doc.Location(), md.Hash, subject, subjectHTML, md.DateISO)
	e.log.Info("plain text", zap.String("reference", ref.PlainText))
	e.log.Info("HTML", zap.String("reference", ref.HTML))
	return ref, nil
}

// subjectHTML asks the provider for enriched markup and falls back to the
// escaped subject on any failure.
func (e *Engine) subjectHTML(ctx context.Context, p provider.Provider, subject, hash string) (s string) {
	escaped := reference.EscapeHTML(subject)
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("subject enrichment failed", zap.Error(&Failure{Kind: Formatting, Err: fmt.Errorf("panic: %v", r)}))
			s = escaped
		}
	}()
	s, err := p.SubjectHTML(ctx, e.doc, subject, hash)
	if err != nil {
		e.log.Warn("subject enrichment failed", zap.Error(&Failure{Kind: Formatting, Err: err}))
		return escaped
	}
	if s == "" {
		return escaped
	}
	return s
}

// CopyReference puts the reference to the displayed commit on the clipboard
// and shows the confirmation next to the control.
func (e *Engine) CopyReference(ctx context.Context) error {
	ref, err := e.Reference(ctx)
	if err != nil {
		return err
	}
	var ind clipboard.Indicator
	e.mu.Lock()
	if e.checkmark != nil {
		ind = clipboard.NodeIndicator{Doc: e.doc, Node: e.checkmark}
	}
	e.mu.Unlock()
	if err := e.writer.Copy(ctx, ref.PlainText, ref.HTML, ind); err != nil {
		return fmt.Errorf("writing clipboard: %w", err)
	}
	return nil
}

// Close unwires the re-adder, waits for pending re-insertions and cancels
// the confirmation timer.
func (e *Engine) Close() {
	e.cancel()
	e.mu.Lock()
	e.closed = true
	p := e.recognized
	removeClick := e.removeClick
	e.removeClick = nil
	e.mu.Unlock()
	if c, ok := p.(interface{ Close() }); ok {
		c.Close()
	}
	if removeClick != nil {
		removeClick()
	}
	e.wg.Wait()
	e.writer.Close()
}
