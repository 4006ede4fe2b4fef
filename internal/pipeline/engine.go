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
	"errors"
	"time"

	"github.com/checkstream/checkstream/internal/classifier"
	"github.com/checkstream/checkstream/internal/cserr"
	"github.com/checkstream/checkstream/internal/telemetry"
)

// Engine executes pipelines against a classifier registry under a wall-clock
// budget. It is stateless and safe for concurrent use by multiple in-flight
// requests — grounded on plugin/tfd/pipeline.go's thin-façade shape, but
// generalized from a fixed S/V lane pair to arbitrary stage composition.
type Engine struct {
	registry *classifier.Registry
	onStage  func(pipelineName, stageName string, latencyUs int64)
}

// NewEngine builds an Engine resolving classifier names against registry.
// onStage, if non-nil, is called after every stage completes (used to feed
// internal/telemetry's latency histograms); it must not block.
func NewEngine(registry *classifier.Registry, onStage func(pipelineName, stageName string, latencyUs int64)) *Engine {
	return &Engine{registry: registry, onStage: onStage}
}

// Execute runs p against text, bounded by deadline. It never returns an
// error for DeadlineExceeded — that is reported via Result.DeadlineHit —
// but does return *cserr.ClassifierError when a Single stage's classifier
// fails, and *cserr.ClassifierNotFound when a stage names an unregistered
// classifier.
func (e *Engine) Execute(ctx context.Context, p Pipeline, text string, deadline time.Time) (*Result, error) {
	start := time.Now()
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	result := &Result{Stages: make([]StageResult, 0, len(p.Stages))}
	var allVerdicts []classifier.Verdict

	for _, stage := range p.Stages {
		if ctx.Err() != nil {
			result.DeadlineHit = true
			break
		}

		stageStart := time.Now()
		sr, stageVerdicts, err := e.runStage(ctx, stage, text, allVerdicts)
		latencyUs := time.Since(stageStart).Microseconds()
		sr.LatencyUs = latencyUs
		if err != nil {
			return nil, err
		}

		result.Stages = append(result.Stages, sr)
		recordStageOutcome(sr)
		if e.onStage != nil {
			e.onStage(p.Name, stage.Name, latencyUs)
		}
		allVerdicts = append(allVerdicts, stageVerdicts...)

		if sr.Executed && sr.Verdict != nil {
			result.FinalDecision = sr.Verdict
		}

		if ctx.Err() != nil {
			result.DeadlineHit = true
			break
		}
	}

	result.TotalLatencyUs = time.Since(start).Microseconds()
	return result, nil
}

// runStage dispatches to the per-kind executor and returns the stage result
// plus the flat list of verdicts it contributed to the running history that
// Conditional stages evaluate against.
func (e *Engine) runStage(ctx context.Context, stage Stage, text string, history []classifier.Verdict) (StageResult, []classifier.Verdict, error) {
	switch stage.Kind {
	case KindSingle:
		return e.runSingle(ctx, stage, text)
	case KindParallel:
		return e.runParallel(ctx, stage, text)
	case KindSequential:
		return e.runSequential(ctx, stage, text)
	case KindConditional:
		return e.runConditional(ctx, stage, text, history)
	default:
		return StageResult{StageName: stage.Name}, nil, &cserr.ConfigInvalid{Document: "pipeline", Cause: errors.New("unknown stage kind: " + string(stage.Kind))}
	}
}

func (e *Engine) classify(ctx context.Context, name, text string) ([]classifier.Verdict, error) {
	c, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	verdicts, err := c.Classify(ctx, text)
	telemetry.ObserveClassifierLatency(name, time.Since(start))
	return verdicts, err
}

func (e *Engine) runSingle(ctx context.Context, stage Stage, text string) (StageResult, []classifier.Verdict, error) {
	sr := StageResult{StageName: stage.Name, Executed: true}

	verdicts, err := e.classify(ctx, stage.Classifier, text)
	if err != nil {
		var notFound *cserr.ClassifierNotFound
		if errors.As(err, &notFound) {
			return sr, nil, err
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			v := syntheticVerdict(labelTimeout, 0)
			sr.Verdict = &v
			return sr, []classifier.Verdict{v}, nil
		}
		return sr, nil, &cserr.ClassifierError{Name: stage.Classifier, Cause: err}
	}
	v := bestOrNegative(stage.Classifier, verdicts)
	sr.Verdict = &v
	sr.Members = verdicts
	return sr, verdictsOrDefault(verdicts, v), nil
}

func (e *Engine) runParallel(ctx context.Context, stage Stage, text string) (StageResult, []classifier.Verdict, error) {
	sr := StageResult{StageName: stage.Name, Executed: true}

	if stage.Aggregation.Kind == AggFirstPositive {
		return e.runFirstPositive(ctx, stage, text)
	}

	jg := newJobGroup(ctx)
	defer jg.close()
	for _, name := range stage.Classifiers {
		name := name
		jg.spawn(name, func(jctx context.Context) ([]classifier.Verdict, error) {
			return e.classify(jctx, name, text)
		})
	}
	results := jg.awaitAll()

	members := collectMembers(ctx, results)
	sr.Members = members
	v := stage.Aggregation.reduce(members)
	sr.Verdict = &v
	return sr, members, nil
}

func (e *Engine) runFirstPositive(ctx context.Context, stage Stage, text string) (StageResult, []classifier.Verdict, error) {
	sr := StageResult{StageName: stage.Name, Executed: true}
	threshold := stage.Aggregation.Threshold

	type outcome struct {
		jobResult
		positive bool
	}
	out := make(chan outcome, len(stage.Classifiers))
	jctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, name := range stage.Classifiers {
		name := name
		go func() {
			verdicts, err := e.classify(jctx, name, text)
			v := bestOrNegative(name, verdicts)
			positive := err == nil && v.Score >= threshold
			select {
			case out <- outcome{jobResult: jobResult{name: name, verdicts: verdicts, err: err}, positive: positive}:
			case <-jctx.Done():
			}
		}()
	}

	var members []classifier.Verdict
	var winner *classifier.Verdict
	for i := 0; i < len(stage.Classifiers); i++ {
		select {
		case o := <-out:
			if o.err == nil {
				v := bestOrNegative(o.name, o.verdicts)
				members = append(members, v)
				if o.positive && winner == nil {
					w := v
					winner = &w
					cancel() // best-effort: stop the rest per spec §4.2
				}
			}
		case <-ctx.Done():
			goto done
		}
		if winner != nil {
			break
		}
	}
done:
	sr.Members = members
	if winner != nil {
		sr.Verdict = winner
		return sr, members, nil
	}
	if len(members) == 0 {
		v := syntheticVerdict(labelTimeout, 0)
		sr.Verdict = &v
		return sr, []classifier.Verdict{v}, nil
	}
	v := stage.Aggregation.reduce(members)
	sr.Verdict = &v
	return sr, members, nil
}

func (e *Engine) runSequential(ctx context.Context, stage Stage, text string) (StageResult, []classifier.Verdict, error) {
	sr := StageResult{StageName: stage.Name, Executed: true}
	agg := stage.Aggregation
	if agg.Kind == "" {
		agg = Aggregation{Kind: AggMaxScore}
	}

	var members []classifier.Verdict
	for _, name := range stage.Classifiers {
		if ctx.Err() != nil {
			members = append(members, syntheticVerdict(labelTimeout, 0))
			continue
		}
		verdicts, err := e.classify(ctx, name, text)
		if err != nil {
			var notFound *cserr.ClassifierNotFound
			if errors.As(err, &notFound) {
				return sr, nil, err
			}
			members = append(members, syntheticVerdict(labelError, 0))
			continue
		}
		members = append(members, bestOrNegative(name, verdicts))
	}
	if len(members) == 0 {
		members = []classifier.Verdict{syntheticVerdict(labelTimeout, 0)}
	}
	sr.Members = members
	v := agg.reduce(members)
	sr.Verdict = &v
	return sr, members, nil
}

func (e *Engine) runConditional(ctx context.Context, stage Stage, text string, history []classifier.Verdict) (StageResult, []classifier.Verdict, error) {
	sr := StageResult{StageName: stage.Name}
	if !stage.Condition.Evaluate(history) {
		sr.Executed = false
		return sr, nil, nil
	}
	sr.Executed = true
	verdicts, err := e.classify(ctx, stage.Classifier, text)
	if err != nil {
		var notFound *cserr.ClassifierNotFound
		if errors.As(err, &notFound) {
			return sr, nil, err
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			v := syntheticVerdict(labelTimeout, 0)
			sr.Verdict = &v
			return sr, []classifier.Verdict{v}, nil
		}
		return sr, nil, &cserr.ClassifierError{Name: stage.Classifier, Cause: err}
	}
	v := bestOrNegative(stage.Classifier, verdicts)
	sr.Verdict = &v
	sr.Members = verdicts
	return sr, verdictsOrDefault(verdicts, v), nil
}

// bestOrNegative picks the highest-scoring verdict a classifier produced, or
// synthesizes an explicit negative result when the classifier reported
// nothing — "nothing to say" from Classify must not silently vanish from a
// stage's ensemble.
func bestOrNegative(name string, verdicts []classifier.Verdict) classifier.Verdict {
	if len(verdicts) == 0 {
		return classifier.Verdict{Classifier: name, Score: 0}
	}
	best := verdicts[0]
	for _, v := range verdicts[1:] {
		if v.Score > best.Score {
			best = v
		}
	}
	return best
}

func verdictsOrDefault(verdicts []classifier.Verdict, fallback classifier.Verdict) []classifier.Verdict {
	if len(verdicts) == 0 {
		return []classifier.Verdict{fallback}
	}
	return verdicts
}

func collectMembers(ctx context.Context, results []jobResult) []classifier.Verdict {
	members := make([]classifier.Verdict, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				members = append(members, syntheticVerdict(labelTimeout, 0))
			} else {
				members = append(members, syntheticVerdict(labelError, 0))
			}
			continue
		}
		members = append(members, bestOrNegative(r.name, r.verdicts))
	}
	if len(members) == 0 {
		members = append(members, syntheticVerdict(labelTimeout, 0))
	}
	return members
}
