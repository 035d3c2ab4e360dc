package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ChangeEvent describes one observed change to a watched file.
type ChangeEvent struct {
	File      string
	Action    string // create, modify, delete
	Timestamp time.Time
}

// ChangeHandler is invoked after a watched file changes and its content has
// been revalidated. Handlers run on the watch goroutine; keep them fast.
type ChangeHandler func(event ChangeEvent) error

// Watcher hot-reloads YAML files (the parsing-rules file, mainly) without a
// process restart. Each watched file may carry a validator; a change that
// fails validation is logged and dropped, keeping the last good content in
// effect.
type Watcher struct {
	dir        string
	watcher    *fsnotify.Watcher
	logger     *zap.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
	handlers   map[string][]ChangeHandler
	validators map[string]func([]byte) error
}

// NewWatcher watches dir for YAML file changes.
func NewWatcher(dir string, logger *zap.Logger) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("watch directory cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:        dir,
		watcher:    fsw,
		logger:     logger,
		stopCh:     make(chan struct{}),
		handlers:   make(map[string][]ChangeHandler),
		validators: make(map[string]func([]byte) error),
	}
	go w.loop()
	return w, nil
}

// OnChange registers a handler for changes to filename (base name, not path).
func (w *Watcher) OnChange(filename string, handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[filename] = append(w.handlers[filename], handler)
}

// Validate registers a content validator for filename; YAML well-formedness
// is always checked first.
func (w *Watcher) Validate(filename string, fn func([]byte) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.validators[filename] = fn
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if ext := filepath.Ext(name); ext != ".yaml" && ext != ".yml" {
		return
	}

	var action string
	switch {
	case event.Op&fsnotify.Create != 0:
		action = "create"
	case event.Op&fsnotify.Write != 0:
		action = "modify"
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		action = "delete"
	default:
		return
	}

	if action != "delete" {
		// Editors often produce several rapid writes; let them settle.
		time.Sleep(50 * time.Millisecond)
		data, err := os.ReadFile(event.Name)
		if err != nil {
			w.logger.Warn("Changed file unreadable",
				zap.String("file", name),
				zap.Error(err))
			return
		}
		var parsed interface{}
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			w.logger.Warn("Keeping previous content, change is not valid YAML",
				zap.String("file", name),
				zap.Error(err))
			return
		}
		w.mu.Lock()
		validator := w.validators[name]
		w.mu.Unlock()
		if validator != nil {
			if err := validator(data); err != nil {
				w.logger.Warn("Keeping previous content, change failed validation",
					zap.String("file", name),
					zap.Error(err))
				return
			}
		}
	}

	w.mu.Lock()
	handlers := append([]ChangeHandler(nil), w.handlers[name]...)
	w.mu.Unlock()

	evt := ChangeEvent{File: name, Action: action, Timestamp: time.Now()}
	for _, handler := range handlers {
		if err := handler(evt); err != nil {
			w.logger.Error("Change handler failed",
				zap.String("file", name),
				zap.String("action", action),
				zap.Error(err))
		}
	}
	w.logger.Info("Watched file changed",
		zap.String("file", name),
		zap.String("action", action))
}
