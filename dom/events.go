package dom

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/net/html"
)

// Event types the engine dispatches or listens for.
const (
	EventClick    = "click"
	EventCopy     = "copy"
	EventPopState = "popstate"
)

// ErrUnsupportedCommand is returned by ExecCommand for anything but "copy".
var ErrUnsupportedCommand = errors.New("unsupported command")

// ErrNoClipboard is returned when a handled copy action has nowhere to go.
var ErrNoClipboard = errors.New("no clipboard attached to document")

// Clipboard is the platform clipboard. Write receives every representation
// placed on the clipboard by one copy action and must store all of them or
// none.
type Clipboard interface {
	Write(ctx context.Context, items []Item) error
}

// Item is one clipboard representation.
type Item struct {
	Type string
	Data string
}

// DataTransfer collects the representations a copy handler sets.
type DataTransfer struct {
	mu    sync.Mutex
	items []Item
}

// SetData stores data for a MIME type, replacing an earlier value.
func (dt *DataTransfer) SetData(mime, data string) {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	for i := range dt.items {
		if dt.items[i].Type == mime {
			dt.items[i].Data = data
			return
		}
	}
	dt.items = append(dt.items, Item{Type: mime, Data: data})
}

// GetData returns the data stored for a MIME type.
func (dt *DataTransfer) GetData(mime string) string {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	for _, it := range dt.items {
		if it.Type == mime {
			return it.Data
		}
	}
	return ""
}

// Items returns the stored representations in the order they were first set.
func (dt *DataTransfer) Items() []Item {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	out := make([]Item, len(dt.items))
	copy(out, dt.items)
	return out
}

// Event is dispatched to listeners on a target and its ancestors, then to
// document level listeners.
type Event struct {
	Type          string
	Target        *html.Node
	ClipboardData *DataTransfer

	ctx       context.Context
	prevented bool
	stopped   bool
	err       error
}

// NewEvent creates an event carrying ctx to its listeners.
func NewEvent(ctx context.Context, typ string) *Event {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Event{Type: typ, ctx: ctx}
}

// Context returns the context of the action that caused the event.
func (e *Event) Context() context.Context { return e.ctx }

// PreventDefault cancels the action the event announces.
func (e *Event) PreventDefault() { e.prevented = true }

func (e *Event) DefaultPrevented() bool { return e.prevented }

// StopPropagation keeps the event from reaching further listeners up the tree.
func (e *Event) StopPropagation() { e.stopped = true }

func (e *Event) PropagationStopped() bool { return e.stopped }

// Fail records the first failure a listener ran into.
func (e *Event) Fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// Err returns the failure recorded by a listener.
func (e *Event) Err() error { return e.err }

// Listener handles an event.
type Listener func(*Event)

type listener struct {
	fn Listener
}

// AddEventListener registers fn for events of type typ on target, or on the
// document itself when target is nil.
func (d *Document) AddEventListener(target *html.Node, typ string, fn Listener) (remove func()) {
	l := &listener{fn: fn}
	d.mu.Lock()
	byType := d.listeners[target]
	if byType == nil {
		byType = make(map[string][]*listener)
		d.listeners[target] = byType
	}
	byType[typ] = append(byType[typ], l)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			byType := d.listeners[target]
			if byType == nil {
				return
			}
			ls := byType[typ]
			for i, cur := range ls {
				if cur == l {
					byType[typ] = append(ls[:i:i], ls[i+1:]...)
					break
				}
			}
			if len(byType[typ]) == 0 {
				delete(byType, typ)
			}
			if len(byType) == 0 {
				delete(d.listeners, target)
			}
		})
	}
}

// Dispatch delivers ev and returns it. Listeners run on the calling goroutine
// without any document lock held.
func (d *Document) Dispatch(ev *Event) *Event {
	var path [][]*listener
	d.mu.RLock()
	for n := ev.Target; n != nil; n = n.Parent {
		if ls := d.listeners[n][ev.Type]; len(ls) > 0 {
			path = append(path, append([]*listener(nil), ls...))
		}
	}
	if ls := d.listeners[nil][ev.Type]; len(ls) > 0 {
		path = append(path, append([]*listener(nil), ls...))
	}
	d.mu.RUnlock()

	for _, ls := range path {
		for _, l := range ls {
			l.fn(ev)
		}
		if ev.stopped {
			break
		}
	}
	return ev
}

// DispatchType dispatches a plain document level event.
func (d *Document) DispatchType(ctx context.Context, typ string) *Event {
	return d.Dispatch(NewEvent(ctx, typ))
}

// Click activates n and returns the failure a listener recorded, if any.
func (d *Document) Click(ctx context.Context, n *html.Node) error {
	ev := NewEvent(ctx, EventClick)
	ev.Target = n
	return d.Dispatch(ev).Err()
}

// ExecCommand runs a document command. Only "copy" is supported: a copy event
// is dispatched and, if a listener prevented its default action, everything
// the listeners placed in ClipboardData is written to the clipboard in one go.
func (d *Document) ExecCommand(ctx context.Context, command string) error {
	if command != EventCopy {
		return ErrUnsupportedCommand
	}
	ev := NewEvent(ctx, EventCopy)
	ev.ClipboardData = &DataTransfer{}
	d.Dispatch(ev)
	if err := ev.Err(); err != nil {
		return err
	}
	if !ev.DefaultPrevented() {
		return nil
	}
	items := ev.ClipboardData.Items()
	if len(items) == 0 {
		return nil
	}

	d.mu.RLock()
	cb := d.clipboard
	d.mu.RUnlock()
	if cb == nil {
		return ErrNoClipboard
	}
	return cb.Write(ctx, items)
}
