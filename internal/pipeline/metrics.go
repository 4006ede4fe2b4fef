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

// Package pipeline also keeps a small set of process-level counters for
// stage outcomes that do not need Prometheus's label cardinality — cheap,
// allocation-free bookkeeping in the style of the teacher's rate-limiter
// attempt/admit/refund counters, generalized here to stage
// executed/skipped/timeout/error counts.
package pipeline

import "sync/atomic"

var (
	stagesExecuted atomic.Int64
	stagesSkipped  atomic.Int64
	stagesTimedOut atomic.Int64
	stagesErrored  atomic.Int64
)

// recordStageOutcome updates the package-level stage counters. Called once
// per stage from Engine.Execute.
func recordStageOutcome(sr StageResult) {
	if !sr.Executed {
		stagesSkipped.Add(1)
		return
	}
	stagesExecuted.Add(1)
	if sr.Verdict == nil {
		return
	}
	switch sr.Verdict.Label {
	case labelTimeout:
		stagesTimedOut.Add(1)
	case labelError:
		stagesErrored.Add(1)
	}
}

// StageTotals is a point-in-time snapshot of the package-level counters,
// as returned by Totals.
type StageTotals struct {
	Executed, Skipped, TimedOut, Errored int64
}

// Totals returns the current stage-outcome counters.
func Totals() StageTotals {
	return StageTotals{
		Executed: stagesExecuted.Load(),
		Skipped:  stagesSkipped.Load(),
		TimedOut: stagesTimedOut.Load(),
		Errored:  stagesErrored.Load(),
	}
}

// resetTotals resets counters to zero. Intended for tests only.
func resetTotals() {
	stagesExecuted.Store(0)
	stagesSkipped.Store(0)
	stagesTimedOut.Store(0)
	stagesErrored.Store(0)
}
