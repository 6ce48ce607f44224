package clipboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"ccr/dom"

	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Memory keeps the last copy in process. It backs the print command and tests.
type Memory struct {
	mu    sync.Mutex
	items []dom.Item
}

func (m *Memory) Write(_ context.Context, items []dom.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append([]dom.Item(nil), items...)
	return nil
}

// Get returns the data last written for a MIME type.
func (m *Memory) Get(mime string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.Type == mime {
			return it.Data, true
		}
	}
	return "", false
}

// Items returns everything last written.
func (m *Memory) Items() []dom.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dom.Item(nil), m.items...)
}

// Command writes to the system clipboard through a helper program. These
// programs take a single flavor per run, and a second run replaces the
// first, so only the plain text representation is stored and the others
// are logged as dropped. Rich text needs the browser backend.
type Command struct {
	// Argv overrides the detected helper, e.g. ["wl-copy"].
	Argv []string
	Log  *zap.Logger
}

func (c Command) Write(ctx context.Context, items []dom.Item) error {
	var text string
	found := false
	var dropped []string
	for _, it := range items {
		if it.Type == MIMEText {
			text, found = it.Data, true
		} else {
			dropped = append(dropped, it.Type)
		}
	}
	if !found {
		return fmt.Errorf("system clipboard: no %s representation", MIMEText)
	}
	if len(dropped) > 0 && c.Log != nil {
		c.Log.Warn("system clipboard keeps plain text only; use the browser backend for rich text",
			zap.Strings("dropped", dropped))
	}

	argv := c.Argv
	if len(argv) == 0 {
		var err error
		if argv, err = systemCommand(); err != nil {
			return err
		}
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func systemCommand() ([]string, error) {
	switch runtime.GOOS {
	case "darwin":
		return []string{"pbcopy"}, nil
	case "linux":
		// Wayland first, then xclip, then xsel
		if _, err := exec.LookPath("wl-copy"); err == nil {
			return []string{"wl-copy"}, nil
		}
		if _, err := exec.LookPath("xclip"); err == nil {
			return []string{"xclip", "-selection", "clipboard"}, nil
		}
		return []string{"xsel", "--clipboard", "--input"}, nil
	default:
		return nil, fmt.Errorf("clipboard not supported on %s", runtime.GOOS)
	}
}

// ErrBrowserRefused is returned when the browser did not run our copy handler,
// usually because the tab was not focused.
var ErrBrowserRefused = errors.New("browser refused the copy action")

// browserCopy runs a copy action inside the page with a one-shot capturing
// listener, so every representation lands on the clipboard together.
const browserCopy = `(function (items) {
  let ok = false;
  const h = (e) => {
    e.stopImmediatePropagation();
    e.preventDefault();
    for (const it of items) e.clipboardData.setData(it.type, it.data);
    ok = true;
  };
  document.addEventListener('copy', h, true);
  try { document.execCommand('copy'); } finally { document.removeEventListener('copy', h, true); }
  return ok;
})(%s)`

// Browser writes through a Chrome tab. ctx passed to Write is ignored in
// favor of the chromedp tab context.
type Browser struct {
	Tab context.Context
}

type browserItem struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func (b Browser) Write(_ context.Context, items []dom.Item) error {
	payload := make([]browserItem, len(items))
	for i, it := range items {
		payload[i] = browserItem{Type: it.Type, Data: it.Data}
	}
	js, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding clipboard items: %w", err)
	}

	var ok bool
	err = chromedp.Run(b.Tab, chromedp.Evaluate(fmt.Sprintf(browserCopy, js), &ok,
		func(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
			return p.WithUserGesture(true)
		}))
	if err != nil {
		return fmt.Errorf("browser clipboard: %w", err)
	}
	if !ok {
		return ErrBrowserRefused
	}
	return nil
}
