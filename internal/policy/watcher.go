package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadedEvent reports the outcome of one policy reload.
type ReloadedEvent struct {
	Timestamp time.Time
	Policies  []string
	Error     error
}

// FileWatcher monitors a policy directory and swaps the registry contents
// when files change. Events are debounced so editors that write in several
// steps trigger a single reload.
type FileWatcher struct {
	watcher         *fsnotify.Watcher
	path            string
	loader          *Loader
	registry        *Registry
	logger          *zap.Logger
	debounceTimeout time.Duration
	debounceTimer   *time.Timer
	eventChan       chan ReloadedEvent
	stopChan        chan struct{}
	mu              sync.RWMutex
	isWatching      bool
}

// NewFileWatcher creates a watcher over the given policy directory.
func NewFileWatcher(path string, registry *Registry, loader *Loader, logger *zap.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher:         watcher,
		path:            path,
		loader:          loader,
		registry:        registry,
		logger:          logger,
		debounceTimeout: 500 * time.Millisecond,
		eventChan:       make(chan ReloadedEvent, 10),
		stopChan:        make(chan struct{}),
	}, nil
}

// Watch starts watching the policy directory for changes.
func (fw *FileWatcher) Watch(ctx context.Context) error {
	fw.mu.Lock()
	if fw.isWatching {
		fw.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	fw.isWatching = true
	fw.mu.Unlock()

	if err := fw.watcher.Add(fw.path); err != nil {
		fw.mu.Lock()
		fw.isWatching = false
		fw.mu.Unlock()
		return fmt.Errorf("failed to add path to watcher: %w", err)
	}

	fw.logger.Info("Starting policy file watcher",
		zap.String("path", fw.path),
		zap.Duration("debounce", fw.debounceTimeout),
	)

	go fw.watchLoop(ctx)
	return nil
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	defer func() {
		fw.mu.Lock()
		fw.isWatching = false
		fw.mu.Unlock()
		fw.logger.Info("Policy file watcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopChan:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fw.shouldProcessEvent(event) {
				fw.handleEvent(event)
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

func (fw *FileWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	ext := filepath.Ext(event.Name)
	return ext == ".yaml" || ext == ".yml"
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.logger.Debug("Policy file change detected",
		zap.String("file", event.Name),
		zap.String("op", event.Op.String()),
	)

	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}
	fw.debounceTimer = time.AfterFunc(fw.debounceTimeout, fw.performReload)
}

func (fw *FileWatcher) performReload() {
	fw.logger.Info("Reloading policies from disk", zap.String("path", fw.path))

	policies, err := fw.loader.LoadFromDirectory(fw.path)
	if err != nil {
		fw.logger.Error("Failed to load policies",
			zap.String("path", fw.path),
			zap.Error(err),
		)
		fw.publish(ReloadedEvent{Timestamp: time.Now(), Error: err})
		return
	}

	if err := fw.registry.Replace(policies); err != nil {
		fw.logger.Error("Failed to replace policy set", zap.Error(err))
		fw.publish(ReloadedEvent{Timestamp: time.Now(), Error: err})
		return
	}

	names := make([]string, 0, len(policies))
	for _, p := range policies {
		names = append(names, p.Name())
	}

	fw.logger.Info("Policies reloaded successfully",
		zap.Int("count", len(policies)),
		zap.Strings("policies", names),
	)

	fw.publish(ReloadedEvent{Timestamp: time.Now(), Policies: names})
}

// publish reports a reload outcome without blocking. Reloads run from
// debounce timer goroutines, so a slow or absent consumer must never
// stall them; overflow events are dropped.
func (fw *FileWatcher) publish(ev ReloadedEvent) {
	select {
	case fw.eventChan <- ev:
	default:
		fw.logger.Debug("Reload event channel full, dropping event")
	}
}

// EventChan returns the channel on which reload outcomes are reported.
func (fw *FileWatcher) EventChan() <-chan ReloadedEvent {
	return fw.eventChan
}

// Stop stops watching for file changes.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.isWatching {
		return nil
	}

	close(fw.stopChan)

	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}

	if err := fw.watcher.Close(); err != nil {
		fw.logger.Error("Error closing watcher", zap.Error(err))
		return err
	}

	// eventChan stays open: a debounced reload may still be running and
	// publishing into it. Consumers select on it rather than ranging to
	// completion.
	return nil
}

// SetDebounceTimeout overrides the reload debounce interval.
func (fw *FileWatcher) SetDebounceTimeout(d time.Duration) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.debounceTimeout = d
}

// IsWatching reports whether the watch loop is running.
func (fw *FileWatcher) IsWatching() bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return fw.isWatching
}
