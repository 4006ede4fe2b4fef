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

// Package classifier defines the Classifier contract and a registry of
// built-in implementations. A classifier projects a chunk of text onto one
// or more labeled scores; it never mutates the text it inspects.
package classifier

import "context"

// Tier describes the latency budget a classifier is expected to respect.
// It is informational: the pipeline engine does not read it.
type Tier string

const (
	// TierFast covers pattern/keyword matching and other classifiers with
	// sub-millisecond expected latency.
	TierFast Tier = "fast"
	// TierModel covers classifiers backed by a local model inference call.
	TierModel Tier = "model"
	// TierRemote covers classifiers backed by a network call to an external
	// moderation service.
	TierRemote Tier = "remote"
)

// Verdict is the immutable result of a single Classify call.
type Verdict struct {
	// Classifier is the name of the classifier that produced this verdict.
	Classifier string
	// Label is the category the classifier assigned, e.g. "toxicity" or
	// "pii:email". Empty when the classifier is purely scalar.
	Label string
	// Score is a confidence in [0, 1]. Classifiers that only emit a boolean
	// triggered/not-triggered signal use 1.0 and 0.0.
	Score float64
	// Triggered is the classifier's own opinion on whether this verdict
	// warrants action, independent of any policy threshold.
	Triggered bool
	// Spans are the byte ranges in the inspected text the verdict applies
	// to, used by redact actions. Nil when the verdict applies to the text
	// as a whole.
	Spans []Span
	// Err is set when the classifier itself failed; Score/Triggered are
	// zero and must not be treated as a genuine negative result.
	Err error
}

// Span is a half-open byte range [Start, End) within the text a classifier
// was given.
type Span struct {
	Start int
	End   int
}

// Classifier projects text onto zero or more Verdicts. Implementations must
// be safe for concurrent use: the pipeline engine calls Classify from
// multiple goroutines for independent requests, and may call it more than
// once per request from a Sequential or Parallel stage.
type Classifier interface {
	// Name uniquely identifies this classifier instance within a registry.
	Name() string
	// Tier reports the classifier's expected latency budget.
	Tier() Tier
	// Classify inspects text and returns the verdicts it produced. An
	// implementation returning a zero-length slice with a nil error is
	// reporting "nothing to say", not "triggered: false" — callers that
	// need a negative result should synthesize one explicitly.
	Classify(ctx context.Context, text string) ([]Verdict, error)
}
