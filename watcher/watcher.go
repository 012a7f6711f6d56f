// Package watcher implements the single most important contract in the
// service: for each study, trigger processing exactly once, only after
// reception has quiesced, with at most one processing attempt in flight per
// study at any moment. It combines file-activity events from the Listener
// with filesystem change notifications so it works whether instances are
// written to directly or through an external process.
package watcher

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/caio-sobreiro/netrt/spool"
)

// FileEvent signals that an instance was written to a study's spool.
type FileEvent struct {
	Study spool.StudyKey
	Path  string
}

// Dispatcher is the callback the Watcher invokes once a study quiesces. It
// must not block the debounce loop for long — the Orchestrator runs the
// actual pipeline on its own worker pool and calls DispatchComplete when
// done.
type Dispatcher interface {
	Dispatch(key spool.StudyKey)
}

type studyState struct {
	fileCount int
	scheduled bool
	timer     *time.Timer
}

// Watcher debounces file activity per study and calls Dispatch exactly once
// per quiescent reception window.
type Watcher struct {
	mu     sync.Mutex
	states map[spool.StudyKey]*studyState

	debounce      time.Duration
	minFileCount  int
	dispatcher    Dispatcher
	retryInterval time.Duration

	events chan FileEvent
	quit   chan struct{}
	logger *slog.Logger

	fsWatcher *fsnotify.Watcher
}

// New builds a Watcher. debounce and minFileCount come from the watcher
// configuration section; logger may be nil.
func New(debounce time.Duration, minFileCount int, dispatcher Dispatcher, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		states:        make(map[spool.StudyKey]*studyState),
		debounce:      debounce,
		minFileCount:  minFileCount,
		dispatcher:    dispatcher,
		retryInterval: 500 * time.Millisecond,
		events:        make(chan FileEvent, 256),
		quit:          make(chan struct{}),
		logger:        logger,
	}
}

// Events returns the channel the Listener publishes file-activity events
// on.
func (w *Watcher) Events() chan<- FileEvent {
	return w.events
}

// Run drives the debounce loop until ctx-equivalent Stop is called. Run is
// meant to be started in its own goroutine.
func (w *Watcher) Run() {
	for {
		select {
		case ev, ok := <-w.events:
			if !ok {
				return
			}
			w.onEvent(ev.Study)
		case <-w.quit:
			return
		}
	}
}

// Stop terminates Run and releases any fsnotify watch.
func (w *Watcher) Stop() {
	close(w.quit)
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
	}
}

func (w *Watcher) onEvent(key spool.StudyKey) {
	w.mu.Lock()
	st, ok := w.states[key]
	if !ok {
		st = &studyState{}
		w.states[key] = st
	}
	st.fileCount++
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(w.debounce, func() { w.onTimerFire(key) })
	w.mu.Unlock()
}

func (w *Watcher) onTimerFire(key spool.StudyKey) {
	w.mu.Lock()
	st, ok := w.states[key]
	if !ok {
		w.mu.Unlock()
		return
	}
	if st.scheduled {
		// A pipeline run is already in flight; re-arm for a short retry
		// rather than dropping this quiescence window.
		st.timer = time.AfterFunc(w.retryInterval, func() { w.onTimerFire(key) })
		w.mu.Unlock()
		return
	}
	if st.fileCount < w.minFileCount {
		w.mu.Unlock()
		return
	}
	st.scheduled = true
	w.mu.Unlock()

	w.logger.Info("dispatching study", "study", string(key))
	w.dispatcher.Dispatch(key)
}

// DispatchComplete is called by the Orchestrator on every terminal
// transition for a study. It clears the scheduled flag and drops the state
// entry, so a re-received study (new activity after quarantine/cleanup)
// starts a fresh debounce window.
func (w *Watcher) DispatchComplete(key spool.StudyKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.states, key)
}

// RecoverOnStartup walks the working directory (never the quarantine
// subtree) and synthesises one file-activity event per discovered study,
// so studies that were mid-reception at the last shutdown get a chance to
// quiesce and dispatch again.
func RecoverOnStartup(fs afero.Fs, s *spool.Spool, w *Watcher) error {
	keys, err := s.ListStudies()
	if err != nil {
		return err
	}
	for _, key := range keys {
		w.events <- FileEvent{Study: key}
	}
	return nil
}

// WatchFilesystem arms an fsnotify watch on root and forwards create/write
// events as study file-activity, in case instances are ever deposited
// outside the Listener's direct write path.
func (w *Watcher) WatchFilesystem(root string, keyFromPath func(path string) (spool.StudyKey, bool)) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsWatcher = fsWatcher

	if err := fsWatcher.Add(root); err != nil {
		fsWatcher.Close()
		return err
	}

	go func() {
		for {
			select {
			case ev, ok := <-fsWatcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if key, ok := keyFromPath(ev.Name); ok {
					w.events <- FileEvent{Study: key, Path: ev.Name}
				}
			case err, ok := <-fsWatcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("fsnotify error", "error", err)
			case <-w.quit:
				return
			}
		}
	}()

	return nil
}
