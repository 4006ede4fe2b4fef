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

// ActionKind names one of the seven action variants spec §3 defines.
type ActionKind string

const (
	ActionStop      ActionKind = "stop"
	ActionRedact    ActionKind = "redact"
	ActionInject    ActionKind = "inject"
	ActionLog       ActionKind = "log"
	ActionAudit     ActionKind = "audit"
	ActionTransform ActionKind = "transform"
	ActionNotify    ActionKind = "notify"
)

// RedactScope selects what a Redact action replaces.
type RedactScope string

const (
	ScopeMatched RedactScope = "matched"
	ScopeFull    RedactScope = "full"
)

// InjectPosition selects where Inject places its content.
type InjectPosition string

const (
	PositionStart  InjectPosition = "start"
	PositionEnd    InjectPosition = "end"
	PositionInline InjectPosition = "inline"
)

// Action is a side-effectful directive emitted by a matching rule. Which
// fields are meaningful depends on Kind. Action values are produced by
// Evaluate and are themselves immutable; template substitution (see
// template.go) returns a new Action rather than mutating in place.
type Action struct {
	Kind ActionKind

	// Stop
	Message string

	// Redact
	Replacement string
	Scope       RedactScope

	// Inject
	Position InjectPosition
	Content  string

	// Log
	Level string
	Tags  []string

	// Audit
	Regulation     string
	IncludeFields  []string

	// Transform
	Op string

	// Notify
	Channel string
	Payload string

	// RuleName records which rule produced this action, used by audit
	// records and by the phase-legality demotion tag
	// ("phase-illegal:<rule_name>").
	RuleName string
}

// legalActions maps a Phase to the set of Action kinds spec §4.5 permits
// there. An action outside this set is demoted to Log by the evaluator.
var legalActions = map[Phase]map[ActionKind]bool{
	PhaseIngress: {
		ActionStop: true, ActionLog: true, ActionAudit: true, ActionTransform: true,
	},
	PhaseMidstream: {
		ActionStop: true, ActionRedact: true, ActionLog: true,
	},
	PhaseEgress: {
		ActionLog: true, ActionAudit: true, ActionInject: true, ActionNotify: true,
	},
}

func isLegal(phase Phase, kind ActionKind) bool {
	set, ok := legalActions[phase]
	if !ok {
		return false
	}
	return set[kind]
}
