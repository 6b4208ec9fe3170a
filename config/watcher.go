package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/najoast/socialshard/logger"
)

// DefaultDebounce collapses bursts of writes into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads one configuration file whenever it changes on disk and
// hands old and new configuration to the registered callbacks.
type Watcher struct {
	configFile string // absolute
	loader     *Loader

	config   *Config
	configMu sync.RWMutex

	fsWatcher *fsnotify.Watcher

	callbacks   []ConfigChangeCallback
	callbacksMu sync.RWMutex

	debounce time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConfigChangeCallback receives every successful reload. Callbacks run on
// the reload goroutine in registration order.
type ConfigChangeCallback func(oldConfig, newConfig *Config)

// NewWatcher creates a new configuration watcher and loads the file once.
func NewWatcher(configFile string, loader *Loader) (*Watcher, error) {
	abs, err := filepath.Abs(configFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigWatchError, err)
	}

	config, err := loader.LoadFromFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigWatchError, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		configFile: abs,
		loader:     loader,
		config:     config,
		fsWatcher:  fsWatcher,
		debounce:   DefaultDebounce,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// SetDebounce changes how long the watcher waits after the last write.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start starts watching the configuration file. The directory is watched
// so that editors replacing the file by rename are noticed.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(filepath.Dir(w.configFile)); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWatchError, err)
	}

	w.wg.Add(1)
	go w.watchLoop()

	return nil
}

// Stop stops watching and waits for the loop to exit.
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

// GetConfig returns the last configuration that loaded and validated.
func (w *Watcher) GetConfig() *Config {
	w.configMu.RLock()
	defer w.configMu.RUnlock()
	return w.config
}

// OnConfigChange registers callback.
func (w *Watcher) OnConfigChange(callback ConfigChangeCallback) {
	w.callbacksMu.Lock()
	defer w.callbacksMu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Reload rereads the file now.
func (w *Watcher) Reload() error {
	return w.reloadConfig()
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.configFile {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				if err := w.reloadConfig(); err != nil {
					logger.Warn("config reload failed", logger.Err(err), "file", w.configFile)
				}
			})

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", logger.Err(err))
		}
	}
}

// reloadConfig keeps the current configuration when the file does not load
// or validate.
func (w *Watcher) reloadConfig() error {
	newConfig, err := w.loader.LoadFromFile(w.configFile)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	w.configMu.Lock()
	oldConfig := w.config
	w.config = newConfig
	w.configMu.Unlock()

	logger.Info("configuration reloaded", "file", w.configFile)
	if cold := ColdChanges(oldConfig, newConfig); len(cold) > 0 {
		logger.Warn("configuration changes take effect after restart", "sections", cold)
	}

	w.notifyCallbacks(oldConfig, newConfig)
	return nil
}

// ColdChanges lists the sections that differ between a and b and are only
// read at startup. The log level and the broadcast interval are applied to
// a running node; everything else needs a restart.
func ColdChanges(a, b *Config) []string {
	var changed []string
	add := func(section string, x, y any) {
		if !reflect.DeepEqual(x, y) {
			changed = append(changed, section)
		}
	}
	add("app", a.App, b.App)
	add("log", LogConfig{Format: a.Log.Format, Output: a.Log.Output}, LogConfig{Format: b.Log.Format, Output: b.Log.Output})
	add("actor", a.Actor, b.Actor)
	add("store", a.Store, b.Store)
	ra, rb := a.Ranking, b.Ranking
	ra.BroadcastInterval, rb.BroadcastInterval = 0, 0
	add("ranking", ra, rb)
	add("feed", a.Feed, b.Feed)
	add("known_principals", a.KnownPrincipals, b.KnownPrincipals)
	add("monitor", a.Monitor, b.Monitor)
	return changed
}

// notifyCallbacks runs every callback in registration order.
func (w *Watcher) notifyCallbacks(oldConfig, newConfig *Config) {
	w.callbacksMu.RLock()
	callbacks := make([]ConfigChangeCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.callbacksMu.RUnlock()

	for _, callback := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("config change callback panicked", "panic", r)
				}
			}()
			callback(oldConfig, newConfig)
		}()
	}
}
