// watcher.go: Polling file watcher used to hot-reload the mapping and palette
//
// Polling keeps the watcher portable across filesystems and container mounts.
// os.Stat results are cached on go-timecache timestamps behind a copy-on-write
// map so that concurrent readers never contend with the poll loop.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// ChangeEvent describes a change detected on a watched file.
type ChangeEvent struct {
	Path     string
	ModTime  time.Time
	Size     int64
	IsCreate bool
	IsDelete bool
	IsModify bool
}

// UpdateCallback is invoked from the poll goroutine for every change.
type UpdateCallback func(event ChangeEvent)

// ErrorHandler receives stat failures other than a missing file.
type ErrorHandler func(err error, path string)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	PollInterval time.Duration
	CacheTTL     time.Duration
	ErrorHandler ErrorHandler
}

// WithDefaults fills unset fields.
func (c WatcherConfig) WithDefaults() WatcherConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultWatchInterval
	}
	if c.CacheTTL <= 0 || c.CacheTTL > c.PollInterval {
		c.CacheTTL = c.PollInterval / 2
	}
	return c
}

type fileStat struct {
	modTime  time.Time
	size     int64
	exists   bool
	cachedAt int64
}

func (fs *fileStat) isExpired(ttl time.Duration) bool {
	return (timecache.CachedTimeNano() - fs.cachedAt) > int64(ttl)
}

type watchedFile struct {
	path     string
	callback UpdateCallback
	lastStat fileStat
}

// Watcher polls a small set of files and reports creations, modifications
// and deletions.
type Watcher struct {
	config  WatcherConfig
	files   map[string]*watchedFile
	filesMu sync.RWMutex

	statCache atomic.Pointer[map[string]fileStat]

	running   atomic.Bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewWatcher creates a stopped watcher.
func NewWatcher(config WatcherConfig) *Watcher {
	w := &Watcher{
		config: config.WithDefaults(),
		files:  make(map[string]*watchedFile),
	}
	initial := make(map[string]fileStat)
	w.statCache.Store(&initial)
	return w
}

// Watch registers path. A path that does not exist yet is reported as
// created once it appears.
func (w *Watcher) Watch(path string, callback UpdateCallback) error {
	if callback == nil {
		return errors.New(ErrCodeInvalidConfig, "callback cannot be nil")
	}
	if err := validateFilePath(path); err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "invalid or unsafe file path").
			WithContext("path", path)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "invalid file path").
			WithContext("path", path)
	}

	initial, err := w.getStat(absPath)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, ErrCodeInvalidConfig, "failed to stat file").
			WithContext("path", absPath)
	}

	w.filesMu.Lock()
	defer w.filesMu.Unlock()
	w.files[absPath] = &watchedFile{path: absPath, callback: callback, lastStat: initial}
	return nil
}

// Unwatch stops reporting changes for path.
func (w *Watcher) Unwatch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "invalid file path").
			WithContext("path", path)
	}

	w.filesMu.Lock()
	delete(w.files, absPath)
	w.filesMu.Unlock()

	w.removeFromCache(absPath)
	return nil
}

// WatchedFiles returns the watched absolute paths, sorted.
func (w *Watcher) WatchedFiles() []string {
	w.filesMu.RLock()
	defer w.filesMu.RUnlock()
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Start launches the poll loop.
func (w *Watcher) Start() error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New(ErrCodeWatcherBusy, "watcher is already running")
	}
	w.stopCh = make(chan struct{})
	w.stoppedCh = make(chan struct{})
	go w.watchLoop(w.stopCh, w.stoppedCh)
	return nil
}

// Stop terminates the poll loop and waits for it to exit.
func (w *Watcher) Stop() error {
	if !w.running.CompareAndSwap(true, false) {
		return errors.New(ErrCodeWatcherStopped, "watcher is not running")
	}
	close(w.stopCh)
	<-w.stoppedCh
	return nil
}

// IsRunning reports whether the poll loop is active.
func (w *Watcher) IsRunning() bool {
	return w.running.Load()
}

// ClearCache drops every cached stat so the next poll hits the filesystem.
func (w *Watcher) ClearCache() {
	empty := make(map[string]fileStat)
	w.statCache.Store(&empty)
}

func (w *Watcher) watchLoop(stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			w.pollFiles()
		}
	}
}

func (w *Watcher) pollFiles() {
	w.filesMu.RLock()
	files := make([]*watchedFile, 0, len(w.files))
	for _, wf := range w.files {
		files = append(files, wf)
	}
	w.filesMu.RUnlock()

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	for _, wf := range files {
		w.checkFile(wf)
	}
}

func (w *Watcher) checkFile(wf *watchedFile) {
	current, err := w.getStat(wf.path)
	if err != nil {
		if os.IsNotExist(err) {
			if wf.lastStat.exists {
				wf.lastStat = fileStat{}
				w.dispatch(wf, ChangeEvent{Path: wf.path, IsDelete: true})
			}
		} else if w.config.ErrorHandler != nil {
			w.config.ErrorHandler(errors.Wrap(err, ErrCodeInvalidConfig, "failed to stat file").
				WithContext("path", wf.path), wf.path)
		}
		return
	}

	previous := wf.lastStat
	wf.lastStat = current
	switch {
	case !previous.exists:
		w.dispatch(wf, ChangeEvent{Path: wf.path, ModTime: current.modTime, Size: current.size, IsCreate: true})
	case !current.modTime.Equal(previous.modTime) || current.size != previous.size:
		w.dispatch(wf, ChangeEvent{Path: wf.path, ModTime: current.modTime, Size: current.size, IsModify: true})
	}
}

// dispatch runs the callback, turning a panic into an ErrorHandler call so the
// poll loop survives misbehaving callbacks.
func (w *Watcher) dispatch(wf *watchedFile, event ChangeEvent) {
	defer func() {
		if r := recover(); r != nil && w.config.ErrorHandler != nil {
			w.config.ErrorHandler(errors.New(ErrCodeInvalidConfig, "watch callback panicked").
				WithContext("panic", r), wf.path)
		}
	}()
	wf.callback(event)
}

func (w *Watcher) getStat(path string) (fileStat, error) {
	if cached, ok := (*w.statCache.Load())[path]; ok && !cached.isExpired(w.config.CacheTTL) {
		if !cached.exists {
			return cached, os.ErrNotExist
		}
		return cached, nil
	}

	info, err := os.Stat(path)
	stat := fileStat{cachedAt: timecache.CachedTimeNano(), exists: err == nil}
	if err == nil {
		stat.modTime = info.ModTime()
		stat.size = info.Size()
	}
	w.updateCache(path, stat)
	return stat, err
}

func (w *Watcher) updateCache(path string, stat fileStat) {
	for {
		oldPtr := w.statCache.Load()
		next := make(map[string]fileStat, len(*oldPtr)+1)
		for k, v := range *oldPtr {
			next[k] = v
		}
		next[path] = stat
		if w.statCache.CompareAndSwap(oldPtr, &next) {
			return
		}
	}
}

func (w *Watcher) removeFromCache(path string) {
	for {
		oldPtr := w.statCache.Load()
		if _, ok := (*oldPtr)[path]; !ok {
			return
		}
		next := make(map[string]fileStat, len(*oldPtr))
		for k, v := range *oldPtr {
			if k != path {
				next[k] = v
			}
		}
		if w.statCache.CompareAndSwap(oldPtr, &next) {
			return
		}
	}
}
