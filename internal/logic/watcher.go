package logic

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"storyloom/internal/logging"
)

// Watcher watches a rules file for changes and hot-reloads the kernel.
// Rapid editor saves are debounced; invalid rule text is rejected and the
// kernel keeps its previous program.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	kernel      *Kernel
	rulesPath   string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	// Stats for debugging and tests.
	reloads int
	errors  int
}

// NewWatcher creates a watcher for the given rules file.
func NewWatcher(rulesPath string, kernel *Kernel) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fsw,
		kernel:      kernel,
		rulesPath:   rulesPath,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start loads the rules file once, then begins watching its directory.
// Non-blocking; the watch loop runs in a goroutine until Stop or ctx done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.reload(); err != nil {
		// A missing or broken file at startup keeps the embedded rules.
		logging.Get(logging.CategoryWatcher).Warn("initial rules load failed: %v", err)
	}

	// Watch the directory rather than the file so editors that replace the
	// file (rename + create) keep being tracked.
	if err := w.watcher.Add(filepath.Dir(w.rulesPath)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	go w.loop(ctx)
	return nil
}

// Stop terminates the watch loop and releases the fsnotify watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

// Reloads returns how many successful rule reloads have occurred.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	log := logging.Get(logging.CategoryWatcher)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.rulesPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if w.debounced(event.Name) {
				continue
			}
			if err := w.reload(); err != nil {
				log.Warn("rules reload failed, keeping previous program: %v", err)
				w.mu.Lock()
				w.errors++
				w.mu.Unlock()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("watch error: %v", err)
		}
	}
}

// debounced reports whether the event should be dropped as a rapid repeat.
func (w *Watcher) debounced(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if last, ok := w.debounceMap[name]; ok && now.Sub(last) < w.debounceDur {
		return true
	}
	w.debounceMap[name] = now
	return false
}

func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.rulesPath)
	if err != nil {
		return err
	}
	if err := w.kernel.SetRules(string(data)); err != nil {
		return err
	}
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	logging.Get(logging.CategoryWatcher).Info("rules reloaded from %s", w.rulesPath)
	return nil
}
