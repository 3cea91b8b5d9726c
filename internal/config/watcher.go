package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/flowgate/internal/observability"
)

// DefaultDebounceDelay is the default delay between the last file event
// and the reload it triggers.
const DefaultDebounceDelay = 100 * time.Millisecond

// ConfigCallback is called with every successfully reloaded configuration.
type ConfigCallback func(*GatewayConfig)

// ErrorCallback is called when a reload fails.
type ErrorCallback func(error)

// Watcher reloads the configuration file when it changes. Editors and
// config-map mounts replace files in several steps, so the directory is
// watched and events are debounced.
type Watcher struct {
	path          string
	watcher       *fsnotify.Watcher
	callback      ConfigCallback
	errorCallback ErrorCallback
	logger        observability.Logger
	debounceDelay time.Duration

	mu         sync.RWMutex
	lastConfig *GatewayConfig
	running    bool
	stopCh     chan struct{}
	stoppedCh  chan struct{}
}

// WatcherOption is a functional option for configuring the watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay for file changes.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = delay
	}
}

// WithLogger sets the logger for the watcher.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithErrorCallback sets the error callback for the watcher.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *Watcher) {
		w.errorCallback = callback
	}
}

// NewWatcher creates a watcher for the configuration file at path.
func NewWatcher(path string, callback ConfigCallback, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:          absPath,
		watcher:       fsWatcher,
		callback:      callback,
		debounceDelay: DefaultDebounceDelay,
		logger:        observability.NopLogger(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start loads and validates the configuration, then watches the file
// until ctx is done or Stop is called. The initial configuration is
// available from LastConfig and is not passed to the callback.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	config, err := loadAndValidate(w.path)
	if err != nil {
		return err
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.mu.Lock()
	w.lastConfig = config
	w.running = true
	w.mu.Unlock()

	w.logger.Info("started watching configuration file",
		observability.String("path", w.path),
	)

	go w.watch(ctx)

	return nil
}

// Stop stops watching the configuration file.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.watcher.Close()
}

// LastConfig returns the last successfully loaded configuration.
func (w *Watcher) LastConfig() *GatewayConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastConfig
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped due to context cancellation")
			return

		case <-w.stopCh:
			w.logger.Info("config watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("config file changed",
				observability.String("path", event.Name),
				observability.String("op", event.Op.String()),
			)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounceDelay)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", observability.Error(err))
			if w.errorCallback != nil {
				w.errorCallback(err)
			}
		}
	}
}

// relevant reports whether event writes or creates the watched file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create) != 0
}

func (w *Watcher) reload() {
	w.logger.Info("reloading configuration", observability.String("path", w.path))

	if err := w.ForceReload(); err != nil {
		w.logger.Error("configuration reload failed", observability.Error(err))
		if w.errorCallback != nil {
			w.errorCallback(err)
		}
		return
	}

	w.logger.Info("configuration reloaded successfully")
}

// ForceReload loads and validates the file immediately and passes the
// result to the callback.
func (w *Watcher) ForceReload() error {
	config, err := loadAndValidate(w.path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.lastConfig = config
	w.mu.Unlock()

	if w.callback != nil {
		w.callback(config)
	}

	return nil
}

func loadAndValidate(path string) (*GatewayConfig, error) {
	config, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}
