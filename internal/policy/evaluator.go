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

package policy

import (
	"time"

	"github.com/checkstream/checkstream/internal/classifier"
	"github.com/checkstream/checkstream/internal/telemetry"
)

// EvalInput bundles everything Evaluate needs: the phase being evaluated,
// the verdicts gathered so far, the input/output text, and the identifiers
// available to template substitution.
type EvalInput struct {
	Phase     Phase
	Verdicts  []classifier.Verdict
	Input     string
	Output    string
	Tenant    string
	RequestID string
	Now       time.Time
}

// shadowTag and illegalTag name the two synthetic Log tags the evaluator
// emits on a shadow-mode hit or a phase-illegal demotion, respectively.
const (
	shadowTagPrefix  = "shadow:"
	illegalTagPrefix = "phase-illegal:"
)

// Evaluator runs the policy algorithm of spec §4.3 against a live Store.
type Evaluator struct {
	store *Store
}

// NewEvaluator returns an Evaluator reading rule snapshots from store.
func NewEvaluator(store *Store) *Evaluator {
	return &Evaluator{store: store}
}

// degradeEgressInject converts an Inject action fired at the egress phase
// into an Audit action carrying the would-be-injected content, since the
// client has already received the full stream and there is nothing left to
// inject into.
func degradeEgressInject(a Action) Action {
	return Action{
		Kind:          ActionAudit,
		Regulation:    a.Regulation,
		IncludeFields: append([]string{"would_be_injected_content"}, a.IncludeFields...),
		Content:       a.Content,
		RuleName:      a.RuleName,
	}
}

// Evaluate returns the ordered list of actions that fire for in, per spec
// §4.3's algorithm: filter by phase+mode, sort by priority then name
// (RuleSet is pre-sorted), evaluate triggers in order, stop at the first
// enforcing match unless continue is set, demote phase-illegal actions to
// Log, and substitute ${var} templates into each action's Message,
// Replacement, Content, Payload and IncludeFields.
func (e *Evaluator) Evaluate(in EvalInput) []Action {
	rs := e.store.Load()
	if rs == nil {
		return nil
	}

	var fired []Action
	for _, rule := range rs.rules {
		if !rule.Phase.matches(in.Phase) {
			continue
		}
		if rule.Mode == ModeDisabled {
			continue
		}
		if !rule.Trigger.Evaluate(in.Input, in.Verdicts) {
			continue
		}
		telemetry.ObservePolicyTrigger(rule.Name, string(rule.Mode))

		tv := newTemplateVars(rule, in.Verdicts, in.Input, in.Output, in.Tenant, in.RequestID, in.Now)

		if rule.Mode == ModeShadow {
			fired = append(fired, Action{
				Kind:     ActionLog,
				Level:    "info",
				Tags:     []string{shadowTagPrefix + rule.Name},
				RuleName: rule.Name,
			})
			continue
		}

		for _, a := range rule.Actions {
			a.RuleName = rule.Name
			if !isLegal(in.Phase, a.Kind) {
				a = Action{
					Kind:     ActionLog,
					Level:    "warn",
					Tags:     []string{illegalTagPrefix + rule.Name},
					RuleName: rule.Name,
				}
			} else if in.Phase == PhaseEgress && a.Kind == ActionInject {
				a = degradeEgressInject(a)
			}
			fired = append(fired, tv.applyTemplates(a))
		}

		if !rule.Continue {
			break
		}
	}
	return fired
}
