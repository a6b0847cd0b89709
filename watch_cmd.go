package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ingest"
	"github.com/spf13/cobra"
)

// defaultSettle is how long a file must stay unchanged before it is converted
const defaultSettle = 750 * time.Millisecond

var (
	watchExisting bool
	watchSettle   time.Duration

	watchCmd = &cobra.Command{
		Use:   "watch DIR",
		Short: "Convert scripts as they appear in a directory",
		Long: paragraph(fmt.Sprintf("\n%s a directory and convert each .txt or .srt file once it stops changing. "+
			"Files are converted one at a time; a file is converted again when its contents change.", keyword("Watch"))),
		Example: paragraph("mangarecap watch --engine gemini --out recaps inbox/"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if st, err := os.Stat(dir); err != nil || !st.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.serveMetrics(ctx, cfg.MetricsAddr)

			w := newDirWatcher(dir, watchSettle, func(ctx context.Context, path string) {
				row, err := a.convertFile(ctx, path)
				if err != nil {
					log.Error("conversion failed", "file", path, "err", err)
				}
				printSummary(cmd.OutOrStdout(), []batchSummary{row}, terminalWidth())
			})

			w.includeExisting = watchExisting

			err = w.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
)

func init() {
	addConversionFlags(watchCmd.Flags())
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "also convert files already in the directory")
	watchCmd.Flags().DurationVar(&watchSettle, "settle", defaultSettle, "quiet period before a changed file is converted")
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// dirWatcher turns file events into sequential conversions. Events for one
// path are coalesced until the file has been quiet for the settle period.
type dirWatcher struct {
	dir    string
	settle time.Duration
	handle func(context.Context, string)

	// includeExisting queues the files present when Run starts
	includeExisting bool

	mu     sync.Mutex
	timers map[string]*time.Timer
	seen   map[string]fileStamp

	ready chan string
}

func newDirWatcher(dir string, settle time.Duration, handle func(context.Context, string)) *dirWatcher {
	if settle <= 0 {
		settle = defaultSettle
	}
	return &dirWatcher{
		dir:    dir,
		settle: settle,
		handle: handle,
		timers: make(map[string]*time.Timer),
		seen:   make(map[string]fileStamp),
		ready:  make(chan string, 64),
	}
}

// Run watches until ctx is done or the watcher shuts down.
func (w *dirWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating fsnotify watcher: %w", err)
	}
	defer fw.Close() //nolint:errcheck

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("error adding dir to fsnotify watcher: %w", err)
	}
	log.Info("watching for scripts", "dir", w.dir)

	return w.loop(ctx, fw.Events, fw.Errors)
}

// loop feeds events to the settle timers until ctx is done or either channel
// closes, then waits for the conversion in progress to return.
func (w *dirWatcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.consume(ctx)
	}()
	defer func() {
		cancel()
		w.stopTimers()
		wg.Wait()
	}()

	if w.includeExisting {
		go w.queueExisting(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			w.touch(ctx, event.Name)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", w.dir, "error", err)
		}
	}
}

// touch (re)starts the settle timer of path.
func (w *dirWatcher) touch(ctx context.Context, path string) {
	if !ingest.Supported(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case w.ready <- path:
		case <-ctx.Done():
		}
	})
}

// queueExisting schedules the files already present without waiting for
// them to settle.
func (w *dirWatcher) queueExisting(ctx context.Context) {
	for _, p := range w.existing() {
		select {
		case w.ready <- p:
		case <-ctx.Done():
			return
		}
	}
}

func (w *dirWatcher) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.ready:
			if !w.changed(path) {
				log.Debug("skipping unchanged file", "file", path)
				continue
			}
			w.handle(ctx, path)
		}
	}
}

// changed reports whether path differs from the last version converted and
// records the current version.
func (w *dirWatcher) changed(path string) bool {
	st, err := os.Stat(path)
	if err != nil {
		return false
	}
	stamp := fileStamp{size: st.Size(), modTime: st.ModTime()}

	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.seen[path]; ok && prev.size == stamp.size && prev.modTime.Equal(stamp.modTime) {
		return false
	}
	w.seen[path] = stamp
	return true
}

func (w *dirWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
}

// existing lists the supported files already in the directory.
func (w *dirWatcher) existing() []string {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Warn("could not list directory", "dir", w.dir, "err", err)
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && ingest.Supported(e.Name()) {
			out = append(out, filepath.Join(w.dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out
}
