// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package policy

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Store holds the live RuleSet behind a read-copy-update pointer, per spec
// §5's "readers observe a consistent snapshot... typical realization:
// read-copy-update". Readers never block and never observe a half-updated
// rule set; a reload swaps the pointer atomically.
type Store struct {
	current atomic.Pointer[RuleSet]

	path    string
	logger  *zap.SugaredLogger
	watcher *fsnotify.Watcher

	stopChan chan struct{}
	stopped  atomic.Bool
}

// NewStore returns a Store holding the initial RuleSet with no file watcher
// attached. Call Watch to enable hot reload.
func NewStore(initial *RuleSet) *Store {
	s := &Store{stopChan: make(chan struct{})}
	s.current.Store(initial)
	return s
}

// Load returns the current RuleSet snapshot. Safe for concurrent readers.
func (s *Store) Load() *RuleSet {
	return s.current.Load()
}

// Swap atomically replaces the current snapshot. Used both by Watch's
// reload loop and directly by tests/tools that want to push a snapshot
// without a filesystem round trip.
func (s *Store) Swap(rs *RuleSet) {
	s.current.Store(rs)
}

// Watch starts an fsnotify watch on path, reloading and swapping in a freshly
// parsed, re-validated RuleSet on every write event. load is called with
// path and must return a fully validated RuleSet — a reload that fails
// validation is logged and the previous snapshot is kept in place, since a
// hot-reload failure must never take down a running proxy.
func (s *Store) Watch(path string, logger *zap.SugaredLogger, load func(path string) (*RuleSet, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return err
	}
	s.path = path
	s.logger = logger
	s.watcher = w

	go s.watchLoop(load)
	return nil
}

func (s *Store) watchLoop(load func(path string) (*RuleSet, error)) {
	for {
		select {
		case <-s.stopChan:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			rs, err := load(s.path)
			if err != nil {
				if s.logger != nil {
					s.logger.Warnw("policy reload failed, keeping previous snapshot", "path", s.path, "error", err)
				}
				continue
			}
			s.Swap(rs)
			if s.logger != nil {
				s.logger.Infow("policy reloaded", "path", s.path)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if s.logger != nil {
				s.logger.Warnw("policy watcher error", "error", err)
			}
		}
	}
}

// Stop halts the watch goroutine, if one was started. Idempotent.
func (s *Store) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.stopChan)
	if s.watcher != nil {
		s.watcher.Close()
	}
}
