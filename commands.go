package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"ccr/clipboard"
	"ccr/config"
	"ccr/dom"
	"ccr/engine"
	"ccr/fetcher"
	"ccr/hostings"
	"ccr/provider"
	"ccr/tab"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// staticWait bounds waits on fetched pages, which never change after load.
const staticWait = 500 * time.Millisecond

var copyCmd = &cobra.Command{
	Use:   "copy <url>",
	Short: "Copy a reference to the commit at url to the clipboard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var target dom.Clipboard
		switch cfg.Clipboard.Backend {
		case config.BackendMemory:
			target = &clipboard.Memory{}
		case config.BackendBrowser:
			return errors.New("the browser clipboard needs a visible tab; use watch")
		default:
			target = clipboard.Command{Argv: cfg.Clipboard.Command, Log: logger}
		}
		seen := &recorder{to: target}

		eng, err := openPage(cmd.Context(), args[0], seen)
		if err != nil {
			return err
		}
		defer eng.Close()
		if err := eng.Activate(cmd.Context()); err != nil {
			return err
		}
		text, _ := seen.seen.Get(clipboard.MIMEText)
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var printCmd = &cobra.Command{
	Use:   "print <url>",
	Short: "Print the plain text and HTML references to the commit at url",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mem := &clipboard.Memory{}
		eng, err := openPage(cmd.Context(), args[0], mem)
		if err != nil {
			return err
		}
		defer eng.Close()
		if err := eng.Activate(cmd.Context()); err != nil {
			return err
		}
		text, _ := mem.Get(clipboard.MIMEText)
		markup, _ := mem.Get(clipboard.MIMEHTML)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %s\n", clipboard.MIMEText, text)
		fmt.Fprintf(out, "%s: %s\n", clipboard.MIMEHTML, markup)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <url>",
	Short: "Open url in Chrome and copy the displayed commit on Enter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := &watcher{}
		defer w.close()
		t, err := tab.Open(ctx, args[0], tab.Options{
			Log:    logger,
			Settle: cfg.Engine.Settle(),
			Events: []string{hostings.SoftNavEnd},
			OnLoad: w.load,
		})
		if err != nil {
			return err
		}
		defer t.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Press Enter to copy a reference to the commit in the tab, q to quit.")
		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				lines <- scanner.Text()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.Done():
				return nil
			case line, ok := <-lines:
				if !ok || strings.TrimSpace(line) == "q" {
					return nil
				}
				eng := w.current()
				if eng == nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "page is still loading")
					continue
				}
				if err := eng.Activate(ctx); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					continue
				}
				fmt.Fprintln(out, strings.TrimSpace(engine.CheckmarkText))
			}
		}
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the supported hostings in the order they are tried",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		for i, name := range newRegistry().Names() {
			fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s\n", i+1, name)
		}
	},
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Print the default configuration",
	Args:  cobra.NoArgs,
	// A broken config file must not stop this command from replacing it.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := config.DefaultTOML()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), s)
		return nil
	},
}

func newRegistry() *provider.Registry {
	return provider.NewRegistry(hostings.All(hostings.Options{
		Log:         logger,
		GitHubToken: cfg.GitHub.Token,
		GitHubAPI:   cfg.GitHub.API,
		Settle:      cfg.Engine.Settle(),
	})...)
}

// openPage fetches rawURL and puts the copy control on it.
func openPage(ctx context.Context, rawURL string, cb dom.Clipboard) (*engine.Engine, error) {
	reg := newRegistry()
	doc, err := fetchPage(ctx, rawURL, reg.ReadySelector())
	if err != nil {
		return nil, err
	}
	doc.SetClipboard(cb)

	eng := engine.New(doc, reg, engine.Options{
		Log:         logger,
		WaitTimeout: staticWait,
		Confirm:     cfg.Clipboard.Confirm(),
	})
	eng.Ensure(ctx)
	if eng.Recognized() == nil {
		eng.Close()
		return nil, fmt.Errorf("%s: %w", rawURL, engine.ErrNotRecognized)
	}
	return eng, nil
}

func fetchPage(ctx context.Context, rawURL, ready string) (*dom.Document, error) {
	var (
		res *fetcher.FetchResult
		err error
	)
	if cfg.Fetcher.BrowserFallback {
		res, err = fetcher.Smart(ctx, rawURL, func(page string) bool {
			doc, err := dom.Parse(rawURL, page)
			return err == nil && doc.Exists(ready)
		})
	} else {
		res, err = fetcher.Simple(ctx, rawURL)
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("fetched page",
		zap.String("url", res.FinalURL),
		zap.Bool("browser", res.UsedBrowser),
		zap.Duration("took", res.FetchTime))

	location := res.FinalURL
	if location == "" {
		location = rawURL
	}
	return dom.Parse(location, res.HTML)
}

// recorder keeps what was written to another clipboard.
type recorder struct {
	to   dom.Clipboard
	seen clipboard.Memory
}

func (r *recorder) Write(ctx context.Context, items []dom.Item) error {
	if err := r.to.Write(ctx, items); err != nil {
		return err
	}
	return r.seen.Write(ctx, items)
}

// watcher owns the engine of the page currently loaded in the tab.
type watcher struct {
	mu     sync.Mutex
	eng    *engine.Engine
	cancel context.CancelFunc
}

func (w *watcher) load(doc *dom.Document) {
	eng := engine.New(doc, newRegistry(), engine.Options{
		Log:         logger,
		WaitTimeout: cfg.Engine.WaitTimeout(),
		Confirm:     cfg.Clipboard.Confirm(),
	})
	ctx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	prev, prevCancel := w.eng, w.cancel
	w.eng, w.cancel = eng, cancel
	w.mu.Unlock()
	if prev != nil {
		prevCancel()
		prev.Close()
	}
	go eng.Ensure(ctx)
}

func (w *watcher) current() *engine.Engine {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.eng
}

func (w *watcher) close() {
	w.mu.Lock()
	eng, cancel := w.eng, w.cancel
	w.eng, w.cancel = nil, nil
	w.mu.Unlock()
	if eng != nil {
		cancel()
		eng.Close()
	}
}
