package tooling

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is the time to wait after a file event before reloading.
// This coalesces rapid successive writes (e.g. a copy in progress) into a
// single reload.
var defaultDebounce = 200 * time.Millisecond

// newWatcherFunc creates an fsnotify watcher; tests may replace it to inject errors.
type newWatcherFunc func() (*fsnotify.Watcher, error)

// Watcher observes a tools directory and reloads the registry whenever a
// tool binary is added, rewritten, or removed.
type Watcher struct {
	dir      string
	registry *Registry
	logger   *slog.Logger
	debounce time.Duration

	mu           sync.Mutex
	running      bool
	done         chan struct{}
	watcher      *fsnotify.Watcher
	newWatcherFn newWatcherFunc // nil means use fsnotify.NewWatcher
}

// WatcherOption is a functional option for configuring a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets a structured logger. A nil logger is ignored and
// the default slog logger is used.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce overrides the reload debounce interval.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher that keeps registry in sync with the shell
// tools found in dir. Call Start to begin watching and Stop to release
// resources.
func NewWatcher(dir string, registry *Registry, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:      dir,
		registry: registry,
		logger:   slog.Default(),
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start performs an initial load of the directory and begins watching it.
// Start must not be called more than once without an intervening Stop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.registry == nil {
		return errors.New("tool watcher: registry must not be nil")
	}
	if w.running {
		return errors.New("tool watcher: already started")
	}

	newWatcher := fsnotify.NewWatcher
	if w.newWatcherFn != nil {
		newWatcher = w.newWatcherFn
	}
	watcher, err := newWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return err
	}

	n, err := w.registry.LoadDir(w.dir)
	if err != nil {
		watcher.Close()
		return err
	}
	w.logger.Info("loaded tools", "dir", w.dir, "count", n)

	w.watcher = watcher
	w.done = make(chan struct{})
	w.running = true

	go w.eventLoop()

	return nil
}

// Stop ceases watching and releases resources. Safe to call even if not started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	close(w.done)
	err := w.watcher.Close()
	w.running = false
	return err
}

// eventLoop listens for fsnotify events and reloads the directory with
// debouncing.
func (w *Watcher) eventLoop() {
	var debounceTimer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-w.done:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) &&
				!event.Has(fsnotify.Chmod) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounce)
			timerCh = debounceTimer.C

		case <-timerCh:
			timerCh = nil
			n, err := w.registry.ReloadDir(w.dir)
			if err != nil {
				w.logger.Warn("tool reload failed", "dir", w.dir, "error", err)
				continue
			}
			w.logger.Info("reloaded tools", "dir", w.dir, "count", n)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "dir", w.dir, "error", err)
		}
	}
}
