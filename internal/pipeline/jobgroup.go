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

package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/checkstream/checkstream/internal/classifier"
)

// jobResult pairs a classifier name with the verdicts it produced (or the
// error it failed with) for one member of a Parallel or Sequential stage.
type jobResult struct {
	name     string
	verdicts []classifier.Verdict
	err      error
}

// jobGroup runs the "spawn N, await-all, cancel-remaining" primitive spec §9
// asks for. It wraps golang.org/x/sync/errgroup with a context that callers
// cancel explicitly (rather than erroring the group) so a short-circuit
// winner does not itself appear as a failure.
type jobGroup struct {
	g      *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	results []jobResult
}

func newJobGroup(parent context.Context) *jobGroup {
	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	// Re-derive from gctx so errgroup's own first-error cancellation and
	// ours compose, but classifier errors never abort sibling jobs: classify
	// itself never returns an error from the goroutine below.
	return &jobGroup{g: g, ctx: gctx, cancel: cancel}
}

// spawn runs classify in its own goroutine, recording its outcome. The
// errgroup function always returns nil so one classifier's failure never
// cancels its siblings — cancellation comes only from the parent context or
// from the caller (close, or cancelRemaining).
func (jg *jobGroup) spawn(name string, classify func(ctx context.Context) ([]classifier.Verdict, error)) {
	jg.g.Go(func() error {
		verdicts, err := classify(jg.ctx)
		jg.mu.Lock()
		jg.results = append(jg.results, jobResult{name: name, verdicts: verdicts, err: err})
		jg.mu.Unlock()
		return nil
	})
}

// awaitAll blocks until every spawned job has returned.
func (jg *jobGroup) awaitAll() []jobResult {
	_ = jg.g.Wait()
	jg.mu.Lock()
	defer jg.mu.Unlock()
	return jg.results
}

// cancelRemaining signals in-flight jobs to stop; already-completed jobs
// keep their recorded result, per spec §4.2's "best-effort" cancellation.
func (jg *jobGroup) cancelRemaining() {
	jg.cancel()
}

func (jg *jobGroup) close() {
	jg.cancel()
}
