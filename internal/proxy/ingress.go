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
	"time"

	"github.com/checkstream/checkstream/internal/classifier"
	"github.com/checkstream/checkstream/internal/pipeline"
	"github.com/checkstream/checkstream/internal/policy"
	"github.com/checkstream/checkstream/internal/telemetry"
)

// ingressOutcome is the result of running the ingress phase: either the
// (possibly Transform-modified) prompt to forward, or a stop directive
// carrying the message and rule name to return to the client.
type ingressOutcome struct {
	stopped    bool
	stopMsg    string
	stopRule   string
	forwardTxt string
	actions    []policy.Action
}

// runIngress runs the ingress pipeline against prompt and evaluates policy
// at phase ingress, per spec §4.5 phase 1.
func (s *Server) runIngress(ctx context.Context, rc *RequestContext) (ingressOutcome, error) {
	start := time.Now()
	deadline := start.Add(s.cfg.IngressTimeout)

	result, err := s.engine.Execute(ctx, s.ingressPipeline, rc.Prompt, deadline)
	telemetry.ObservePhaseLatency("ingress", time.Since(start))
	if err != nil {
		return ingressOutcome{}, err
	}

	verdicts := collectVerdicts(result)
	rc.RecordVerdicts(policy.PhaseIngress, verdicts)

	actions := s.evaluator.Evaluate(policy.EvalInput{
		Phase:     policy.PhaseIngress,
		Verdicts:  verdicts,
		Input:     rc.Prompt,
		Tenant:    rc.Tenant,
		RequestID: rc.ID,
		Now:       start,
	})
	rc.RecordActions(actions)
	for _, a := range actions {
		telemetry.ObserveDecision("ingress", string(a.Kind))
	}

	forward := rc.Prompt
	for _, a := range actions {
		switch a.Kind {
		case policy.ActionStop:
			telemetry.ObserveRequest("ingress", "stopped")
			return ingressOutcome{stopped: true, stopMsg: a.Message, stopRule: a.RuleName, actions: actions}, nil
		case policy.ActionTransform:
			forward = applyTransform(forward, a.Op)
		}
	}
	telemetry.ObserveRequest("ingress", "continued")
	return ingressOutcome{forwardTxt: forward, actions: actions}, nil
}

// applyTransform applies a named, built-in text transform. Unknown ops are
// a no-op: a Transform action referencing an op this build does not
// implement should not fail the request, only fail to take effect.
func applyTransform(text, op string) string {
	switch op {
	case "trim_whitespace":
		return trimWhitespace(text)
	default:
		return text
	}
}

func trimWhitespace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// collectVerdicts flattens the executed stages' verdicts into one slice, for
// policy evaluation and audit citation: each stage's Members (its raw
// verdicts), or its final Verdict when it has no Members. A stage's
// aggregated Verdict is not added alongside its Members.
func collectVerdicts(r *pipeline.Result) []classifier.Verdict {
	if r == nil {
		return nil
	}
	var out []classifier.Verdict
	for _, sr := range r.Stages {
		if !sr.Executed {
			continue
		}
		out = append(out, sr.Members...)
		if sr.Verdict != nil && len(sr.Members) == 0 {
			out = append(out, *sr.Verdict)
		}
	}
	return out
}
