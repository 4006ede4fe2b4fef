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

// Package pipeline composes classifiers into stages and stages into
// pipelines, enforcing a wall-clock budget across the whole execution.
package pipeline

import "github.com/checkstream/checkstream/internal/classifier"

// Kind discriminates the four stage variants.
type Kind string

const (
	KindSingle      Kind = "single"
	KindParallel    Kind = "parallel"
	KindSequential  Kind = "sequential"
	KindConditional Kind = "conditional"
)

// Stage is one element of a Pipeline. Which fields are meaningful depends on
// Kind: Single uses Classifier; Parallel and Sequential use Classifiers and
// Aggregation; Conditional uses Classifier and Condition.
type Stage struct {
	Name        string
	Kind        Kind
	Classifier  string
	Classifiers []string
	Aggregation Aggregation
	Condition   Condition
}

// Pipeline is an ordered sequence of stages sharing one input text and one
// execution deadline.
type Pipeline struct {
	Name   string
	Stages []Stage
}

// StageResult is the outcome of executing one stage. Executed is false only
// for a Conditional stage whose predicate evaluated to false — a "skip
// marker" per spec: no verdict, latency reflects predicate cost alone.
type StageResult struct {
	StageName string
	Executed  bool
	Verdict   *classifier.Verdict
	// Members holds every raw verdict an executed stage collected (for
	// Parallel and Sequential stages, before aggregation), for callers that
	// want the raw ensemble (e.g. audit records citing every contributing
	// classifier).
	Members   []classifier.Verdict
	LatencyUs int64
}

// Result is the outcome of executing an entire Pipeline.
type Result struct {
	Stages          []StageResult
	FinalDecision   *classifier.Verdict
	DeadlineHit     bool
	TotalLatencyUs  int64
}

// synthetic verdict labels, per spec §4.2.
const (
	labelError   = "error"
	labelTimeout = "timeout"
)

func syntheticVerdict(label string, score float64) classifier.Verdict {
	return classifier.Verdict{Label: label, Score: score}
}
