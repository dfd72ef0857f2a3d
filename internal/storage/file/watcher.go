package file

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"url-rewrite/internal/common/logging"
)

// ChangeFunc is called with the context whose file changed
type ChangeFunc func(contextName string)

// Watcher re-reads rule files when they change and reports the affected
// contexts. Bursts of events for one file are debounced.
type Watcher struct {
	store    *Store
	onChange ChangeFunc
	watcher  *fsnotify.Watcher
	logger   logging.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup

	debounce time.Duration
	timerMu  sync.Mutex
	pending  map[string]*time.Timer
}

// NewWatcher creates a watcher for the store's directory
func NewWatcher(store *Store, onChange ChangeFunc, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	return &Watcher{
		store:    store,
		onChange: onChange,
		watcher:  fsWatcher,
		logger:   store.logger.WithFields(logging.Component("file_watcher")),
		stopChan: make(chan struct{}),
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start begins watching the rules directory
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.store.dir); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.run()

	w.logger.Info("Watching rules directory", logging.Field{"dir", w.store.dir})
	return nil
}

// Stop stops the watcher and cancels pending reloads
func (w *Watcher) Stop() error {
	close(w.stopChan)
	w.wg.Wait()

	w.timerMu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.timerMu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", logging.Field{"error", err.Error()})

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isRuleFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.logger.Debug("Rule file changed",
		logging.Field{"file", filepath.Base(event.Name)},
		logging.Field{"op", event.Op.String()},
	)
	w.schedule(event.Name)
}

func (w *Watcher) schedule(path string) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.timerMu.Lock()
		delete(w.pending, path)
		w.timerMu.Unlock()
		w.reload(path)
	})
}

func (w *Watcher) reload(path string) {
	contextName, err := w.store.ReloadFile(path)
	if err != nil {
		// keep serving the last good content of the file
		w.logger.Error("Failed to reload rule file", err, logging.Field{"file", path})
		return
	}
	if contextName == "" {
		return
	}

	w.logger.Info("Rule file reloaded", logging.RuleContext(contextName))
	if w.onChange != nil {
		w.onChange(contextName)
	}
}
