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

package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// RetentionWorker periodically truncates records older than retentionAge
// from a Trail's head, archiving each truncation's anchor hash to the
// logger so downstream verification of the retained suffix remains
// possible. Adapted from the teacher's commit/eviction worker: the same
// ticker + stopChan + WaitGroup + atomic-CAS-guarded Stop idiom, generalized
// from "commit or evict a VSA instance" to "truncate records past
// retention".
type RetentionWorker struct {
	trail         *Trail
	retentionAge  time.Duration
	sweepInterval time.Duration
	logger        *zap.SugaredLogger

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

// NewRetentionWorker configures a worker that truncates records older than
// retentionAge, checking every sweepInterval.
func NewRetentionWorker(trail *Trail, retentionAge, sweepInterval time.Duration, logger *zap.SugaredLogger) *RetentionWorker {
	return &RetentionWorker{
		trail:         trail,
		retentionAge:  retentionAge,
		sweepInterval: sweepInterval,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start launches the background sweep goroutine.
func (w *RetentionWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop()
	}()
}

// Stop halts the sweep goroutine and waits for it to exit. Idempotent.
func (w *RetentionWorker) Stop() {
	if !w.stopped.CompareAndSwap(false, true) {
		return
	}
	close(w.stopChan)
	w.wg.Wait()
}

func (w *RetentionWorker) loop() {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runSweep()
		case <-w.stopChan:
			return
		}
	}
}

func (w *RetentionWorker) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-w.retentionAge)
	anchor, truncated, err := w.trail.Retain(ctx, cutoff)
	if err != nil {
		if w.logger != nil {
			w.logger.Warnw("audit retention sweep failed", "error", err)
		}
		return
	}
	if truncated == 0 {
		return
	}
	if w.logger != nil {
		w.logger.Infow("audit retention truncated records",
			"truncated", truncated, "anchor_hash", anchor, "cutoff", cutoff)
	}
}
