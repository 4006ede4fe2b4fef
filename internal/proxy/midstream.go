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

package proxy

import (
	"context"
	"sort"
	"time"

	"github.com/checkstream/checkstream/internal/classifier"
	"github.com/checkstream/checkstream/internal/policy"
	"github.com/checkstream/checkstream/internal/telemetry"
)

// midstreamOutcome reports what a single chunk classification decided.
type midstreamOutcome struct {
	stopped  bool
	stopRule string
	overflow bool
}

// runMidstreamChunk pushes text into buf, classifies buf.Context(), and
// applies the midstream policy result to buf's newest chunk, per spec §4.5
// phase 2. The caller is responsible for releasing ready chunks afterward
// via buf.PopReady. If buf reports overflow (max_buffer_size exceeded with
// an unreleased chunk still owed to the client), classification is skipped
// and the caller must close the stream rather than continue buffering.
func (s *Server) runMidstreamChunk(ctx context.Context, rc *RequestContext, buf *HoldbackBuffer, text string) (midstreamOutcome, error) {
	if buf.Push(text) {
		telemetry.ObserveRequest("midstream", "overflow")
		return midstreamOutcome{overflow: true}, nil
	}

	start := time.Now()
	deadline := start.Add(s.cfg.MidstreamTimeout)
	result, err := s.engine.Execute(ctx, s.midstreamPipeline, buf.Context(), deadline)
	telemetry.ObservePhaseLatency("midstream", time.Since(start))
	if err != nil {
		return midstreamOutcome{}, err
	}

	verdicts := collectVerdicts(result)
	rc.RecordVerdicts(policy.PhaseMidstream, verdicts)

	actions := s.evaluator.Evaluate(policy.EvalInput{
		Phase:     policy.PhaseMidstream,
		Verdicts:  verdicts,
		Input:     buf.Newest(),
		Tenant:    rc.Tenant,
		RequestID: rc.ID,
		Now:       start,
	})
	rc.RecordActions(actions)
	for _, a := range actions {
		telemetry.ObserveDecision("midstream", string(a.Kind))
	}

	for _, a := range actions {
		switch a.Kind {
		case policy.ActionStop:
			buf.DropNewest()
			telemetry.ObserveRequest("midstream", "stopped")
			return midstreamOutcome{stopped: true, stopRule: a.RuleName}, nil
		case policy.ActionRedact:
			buf.MutateNewest(redactText(buf.Context(), buf.Newest(), verdicts, a))
		}
	}
	return midstreamOutcome{}, nil
}

// redactText applies a Redact action's replacement. ScopeFull replaces the
// entire newest chunk. ScopeMatched replaces only the span(s) cited by the
// verdicts of this midstream pass, translated from context-relative
// coordinates (spans are reported against buf.Context(), the text the
// classifier actually saw) into newest-chunk-relative coordinates — since
// the newest chunk is always the suffix of context, the translation is a
// constant offset. Spans are applied from rightmost to leftmost so one
// replacement never shifts another; a span overlapping one already
// replaced is skipped.
func redactText(context, newest string, verdicts []classifier.Verdict, a policy.Action) string {
	if a.Scope == policy.ScopeFull || a.Scope == "" {
		return a.Replacement
	}
	offset := len(context) - len(newest)
	var spans []classifier.Span
	for _, v := range verdicts {
		spans = append(spans, v.Spans...)
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start > spans[j].Start })
	out := newest
	limit := len(out)
	for _, sp := range spans {
		start, end := sp.Start-offset, sp.End-offset
		if start < 0 {
			start = 0
		}
		if end > limit || end <= start {
			continue
		}
		out = out[:start] + a.Replacement + out[end:]
		limit = start
	}
	return out
}
