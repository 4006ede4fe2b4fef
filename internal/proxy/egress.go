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
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/checkstream/checkstream/internal/audit"
	"github.com/checkstream/checkstream/internal/policy"
	"github.com/checkstream/checkstream/internal/telemetry"
)

// runEgress runs the egress pipeline against the full accumulated output,
// evaluates policy at phase egress, and always appends an audit record —
// fire-and-forget, so its latency never counts against the request, per
// spec §4.5 phase 3.
func (s *Server) runEgress(ctx context.Context, rc *RequestContext) {
	start := time.Now()
	deadline := start.Add(s.cfg.EgressTimeout)

	output := rc.Output()
	result, err := s.engine.Execute(ctx, s.egressPipeline, output, deadline)
	telemetry.ObservePhaseLatency("egress", time.Since(start))
	if err != nil {
		s.logger.Warnw("egress pipeline failed", "request_id", rc.ID, "error", err)
	}

	var actions []policy.Action
	if result != nil {
		verdicts := collectVerdicts(result)
		rc.RecordVerdicts(policy.PhaseEgress, verdicts)
		actions = s.evaluator.Evaluate(policy.EvalInput{
			Phase:     policy.PhaseEgress,
			Verdicts:  verdicts,
			Input:     rc.Prompt,
			Output:    output,
			Tenant:    rc.Tenant,
			RequestID: rc.ID,
			Now:       start,
		})
		rc.RecordActions(actions)
		for _, a := range actions {
			telemetry.ObserveDecision("egress", string(a.Kind))
		}
	}

	s.appendAudit(ctx, rc)
}

// appendAudit always produces an audit record for a forwarded request, per
// spec §4.6.
func (s *Server) appendAudit(ctx context.Context, rc *RequestContext) {
	if s.trail == nil {
		return
	}
	verdicts := rc.AllVerdicts()
	actions := rc.Actions()

	ve := make([]audit.VerdictEntry, 0, len(verdicts))
	for _, v := range verdicts {
		ve = append(ve, audit.VerdictEntry{Classifier: v.Classifier, Label: v.Label, Score: v.Score})
	}
	ae := make([]audit.ActionEntry, 0, len(actions))
	regSeen := map[string]bool{}
	var regs []string
	for _, a := range actions {
		ae = append(ae, audit.ActionEntry{Kind: string(a.Kind), RuleName: a.RuleName, Detail: a.Message})
		if a.Regulation != "" && !regSeen[a.Regulation] {
			regSeen[a.Regulation] = true
			regs = append(regs, a.Regulation)
		}
	}

	p := audit.Partial{
		RequestID:   rc.ID,
		Tenant:      rc.Tenant,
		InputDigest: digest(rc.Prompt),
		OutputDigest: digest(rc.Output()),
		Verdicts:    ve,
		Actions:     ae,
		Regulations: regs,
	}
	if _, err := s.trail.Append(ctx, p); err != nil {
		telemetry.ObserveAuditEvent("error")
		s.logger.Warnw("audit append failed", "request_id", rc.ID, "error", err)
		return
	}
	telemetry.ObserveAuditEvent("ok")
}

func digest(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
