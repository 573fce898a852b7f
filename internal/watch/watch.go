// Package watch monitors the small fixed set of host files the linker
// cares about. Raw filesystem events arrive on OS-level threads;
// everything is funneled through one goroutine so the debounce timer
// and the settled callback never race. An immediate signal fires per
// raw event for responsive UIs, and a settled signal fires once a burst
// has gone quiet.
package watch

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/distantorigin/vpklink/internal/paths"
)

// DefaultDebounce is the quiet period after which a burst of events is
// considered settled. External updaters rewrite many files in quick
// succession; evaluating mid-burst would observe inconsistent state.
const DefaultDebounce = 500 * time.Millisecond

// Event is one raw filesystem event on a watched path.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher watches a fixed path set and debounces change bursts.
type Watcher struct {
	debounce  time.Duration
	immediate func(Event)
	settled   func()
	logger    *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	watched map[string]struct{}
	dirs    []string
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New creates a watcher. Either callback may be nil. A zero debounce
// gets DefaultDebounce.
func New(debounce time.Duration, immediate func(Event), settled func(), logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Watcher{
		debounce:  debounce,
		immediate: immediate,
		settled:   settled,
		logger:    logger,
	}
}

// Start begins watching the given file paths. The parent directories
// are watched (files may be deleted and recreated by external
// updaters) and events are filtered back down to the path set.
func (w *Watcher) Start(watchPaths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("watcher already started")
	}
	if len(watchPaths) == 0 {
		return errors.New("no paths to watch")
	}

	w.watched = make(map[string]struct{}, len(watchPaths))
	dirSet := make(map[string]struct{})
	for _, p := range watchPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		w.watched[paths.CleanLower(abs)] = struct{}{}
		dirSet[filepath.Dir(abs)] = struct{}{}
	}
	w.dirs = w.dirs[:0]
	for dir := range dirSet {
		w.dirs = append(w.dirs, dir)
	}

	fsw, err := w.establish()
	if err != nil {
		return err
	}
	w.fsw = fsw
	w.done = make(chan struct{})
	w.running = true

	w.wg.Add(1)
	go w.run(fsw)
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.done)
	_ = w.fsw.Close()
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *Watcher) establish() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// A watched file's directory may not exist yet (the package dir
	// before the first install); watch what is there and let the
	// caller's poll fallback cover the rest.
	added := 0
	for _, dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("cannot watch directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		added++
	}
	if added == 0 {
		_ = fsw.Close()
		return nil, errors.New("no watchable directories")
	}
	return fsw, nil
}

// run is the single logical thread that owns the debounce timer.
func (w *Watcher) run(fsw *fsnotify.Watcher) {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				fsw = w.rearm(fsw)
				if fsw == nil {
					return
				}
				continue
			}
			if !w.matches(ev.Name) {
				continue
			}
			if w.immediate != nil {
				w.immediate(Event{Path: ev.Name, Op: ev.Op})
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				fsw = w.rearm(fsw)
				if fsw == nil {
					return
				}
				continue
			}
			w.logger.Warn("watcher error, re-establishing watch", zap.Error(err))
			fsw = w.rearm(fsw)
			if fsw == nil {
				return
			}

		case <-timerC:
			timer = nil
			timerC = nil
			if w.settled != nil {
				w.settled()
			}
		}
	}
}

// rearm replaces a broken OS watch handle with a fresh one on the same
// path set. Returns nil when the watcher is stopping.
func (w *Watcher) rearm(old *fsnotify.Watcher) *fsnotify.Watcher {
	_ = old.Close()

	select {
	case <-w.done:
		return nil
	default:
	}

	fsw, err := w.establish()
	if err != nil {
		w.logger.Error("failed to re-establish watch", zap.Error(err))
		return nil
	}

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = fsw.Close()
		return nil
	}
	w.fsw = fsw
	w.mu.Unlock()
	return fsw
}

func (w *Watcher) matches(name string) bool {
	_, ok := w.watched[paths.CleanLower(name)]
	return ok
}
