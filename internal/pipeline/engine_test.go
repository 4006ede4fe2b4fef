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
	"testing"
	"time"

	"github.com/checkstream/checkstream/internal/classifier"
)

// fixedClassifier returns a single canned verdict after an optional delay,
// used to script the timing-sensitive scenarios (E3/E4) deterministically.
type fixedClassifier struct {
	name  string
	score float64
	label string
	delay time.Duration
}

func (f fixedClassifier) Name() string            { return f.name }
func (f fixedClassifier) Tier() classifier.Tier   { return classifier.TierFast }
func (f fixedClassifier) Classify(ctx context.Context, _ string) ([]classifier.Verdict, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []classifier.Verdict{{Classifier: f.name, Label: f.label, Score: f.score, Triggered: f.score > 0}}, nil
}

func newRegistry(t *testing.T, classifiers ...classifier.Classifier) *classifier.Registry {
	t.Helper()
	r := classifier.NewRegistry()
	for _, c := range classifiers {
		if err := r.Register(c); err != nil {
			t.Fatalf("register %s: %v", c.Name(), err)
		}
	}
	return r
}

// TestEngine_ParallelMaxScore mirrors E3: three classifiers score 0.2/0.7/0.5,
// MaxScore aggregation picks B's 0.7 and its label.
func TestEngine_ParallelMaxScore(t *testing.T) {
	registry := newRegistry(t,
		fixedClassifier{name: "A", score: 0.2, label: "a"},
		fixedClassifier{name: "B", score: 0.7, label: "b"},
		fixedClassifier{name: "C", score: 0.5, label: "c"},
	)
	engine := NewEngine(registry, nil)
	p := Pipeline{Name: "p", Stages: []Stage{{
		Name: "ensemble", Kind: KindParallel,
		Classifiers: []string{"A", "B", "C"},
		Aggregation: Aggregation{Kind: AggMaxScore},
	}}}

	result, err := engine.Execute(context.Background(), p, "text", time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.FinalDecision == nil {
		t.Fatalf("expected a final decision")
	}
	if result.FinalDecision.Score != 0.7 || result.FinalDecision.Label != "b" {
		t.Fatalf("expected score=0.7 label=b, got %+v", result.FinalDecision)
	}
	if len(result.Stages[0].Members) != 3 {
		t.Fatalf("expected 3 ensemble members, got %d", len(result.Stages[0].Members))
	}
}

// TestEngine_FirstPositiveShortCircuits mirrors E4: a fast classifier crosses
// threshold well before a slow one would resolve; the slow verdict is absent.
func TestEngine_FirstPositiveShortCircuits(t *testing.T) {
	registry := newRegistry(t,
		fixedClassifier{name: "fast", score: 0.9, label: "hit", delay: 2 * time.Millisecond},
		fixedClassifier{name: "slow", score: 0.95, label: "hit", delay: 200 * time.Millisecond},
	)
	engine := NewEngine(registry, nil)
	p := Pipeline{Name: "p", Stages: []Stage{{
		Name: "race", Kind: KindParallel,
		Classifiers: []string{"fast", "slow"},
		Aggregation: Aggregation{Kind: AggFirstPositive, Threshold: 0.8},
	}}}

	start := time.Now()
	result, err := engine.Execute(context.Background(), p, "text", time.Now().Add(time.Second))
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if elapsed > 50*time.Millisecond {
		t.Fatalf("expected short-circuit well under slow's delay, took %s", elapsed)
	}
	if result.FinalDecision == nil || result.FinalDecision.Classifier != "fast" {
		t.Fatalf("expected fast's verdict to win, got %+v", result.FinalDecision)
	}
	for _, m := range result.Stages[0].Members {
		if m.Classifier == "slow" {
			t.Fatalf("slow's verdict should not appear in the stage's member list: %+v", result.Stages[0].Members)
		}
	}
}

// TestEngine_ConditionalSkip mirrors E5: cheap scores below the threshold,
// so the conditional stage never invokes the expensive classifier.
func TestEngine_ConditionalSkip(t *testing.T) {
	invoked := false
	registry := classifier.NewRegistry()
	if err := registry.Register(fixedClassifier{name: "cheap", score: 0.3, label: "low"}); err != nil {
		t.Fatalf("register cheap: %v", err)
	}
	if err := registry.Register(trackingClassifier{name: "expensive", invoked: &invoked}); err != nil {
		t.Fatalf("register expensive: %v", err)
	}

	engine := NewEngine(registry, nil)
	p := Pipeline{Name: "p", Stages: []Stage{
		{Name: "cheap-stage", Kind: KindSingle, Classifier: "cheap"},
		{
			Name: "conditional-stage", Kind: KindConditional, Classifier: "expensive",
			Condition: Condition{Kind: CondAnyAboveThreshold, Threshold: 0.9},
		},
	}}

	result, err := engine.Execute(context.Background(), p, "text", time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Stages) != 2 {
		t.Fatalf("expected 2 stage results, got %d", len(result.Stages))
	}
	if result.Stages[1].Executed {
		t.Fatalf("expected conditional stage to record executed=false")
	}
	if invoked {
		t.Fatalf("expensive classifier must never be invoked when the condition is false")
	}
}

// trackingClassifier records whether it was ever invoked, to assert a
// Conditional stage's skip path never calls Classify.
type trackingClassifier struct {
	name    string
	invoked *bool
}

func (t trackingClassifier) Name() string          { return t.name }
func (t trackingClassifier) Tier() classifier.Tier { return classifier.TierFast }
func (t trackingClassifier) Classify(context.Context, string) ([]classifier.Verdict, error) {
	*t.invoked = true
	return []classifier.Verdict{{Classifier: t.name, Score: 0.99}}, nil
}

// TestEngine_DeadlineExceededMarksResultWithoutPanicking covers the budget
// property: a stage that cannot finish before the deadline yields a
// synthetic timeout verdict and the engine stops cleanly rather than
// blocking past the deadline.
func TestEngine_DeadlineExceededMarksResultWithoutPanicking(t *testing.T) {
	registry := newRegistry(t, fixedClassifier{name: "slow", score: 0.5, delay: 100 * time.Millisecond})
	engine := NewEngine(registry, nil)
	p := Pipeline{Name: "p", Stages: []Stage{
		{Name: "slow-stage", Kind: KindSingle, Classifier: "slow"},
		{Name: "never-runs", Kind: KindSingle, Classifier: "slow"},
	}}

	deadline := time.Now().Add(10 * time.Millisecond)
	result, err := engine.Execute(context.Background(), p, "text", deadline)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.DeadlineHit {
		t.Fatalf("expected DeadlineHit=true when the deadline elapses mid-pipeline")
	}
	budget := 50 * time.Millisecond
	if time.Duration(result.TotalLatencyUs)*time.Microsecond > 10*time.Millisecond+budget {
		t.Fatalf("expected total latency within deadline+50ms budget, got %dus", result.TotalLatencyUs)
	}
}

func TestEngine_UnknownClassifierReturnsClassifierNotFound(t *testing.T) {
	registry := classifier.NewRegistry()
	engine := NewEngine(registry, nil)
	p := Pipeline{Name: "p", Stages: []Stage{{Name: "s", Kind: KindSingle, Classifier: "missing"}}}

	_, err := engine.Execute(context.Background(), p, "text", time.Now().Add(time.Second))
	if err == nil {
		t.Fatalf("expected ClassifierNotFound error")
	}
}
