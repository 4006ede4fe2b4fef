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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/checkstream/checkstream/internal/cserr"
)

type policyDocument struct {
	Policies []ruleSpec `yaml:"policies"`
}

type ruleSpec struct {
	Name       string      `yaml:"name"`
	Trigger    triggerSpec `yaml:"trigger"`
	Actions    []actionSpec `yaml:"actions"`
	Phase      string      `yaml:"phase"`
	Priority   int         `yaml:"priority"`
	Mode       string      `yaml:"mode"`
	Regulation string      `yaml:"regulation"`
	Continue   bool        `yaml:"continue"`
}

// triggerSpec is tagged by Kind ("classifier_threshold", "classifier_label",
// "pattern", "keyword_set", "all", "any", "not"); fields beyond Kind are
// interpreted according to it. There is no plain "classifier" kind.
type triggerSpec struct {
	Kind            string        `yaml:"kind"`
	Classifier      string        `yaml:"classifier"`
	Min             float64       `yaml:"min"`
	Max             *float64      `yaml:"max"`
	Label           string        `yaml:"label"`
	MinConfidence   float64       `yaml:"min_confidence"`
	Regex           string        `yaml:"regex"`
	CaseInsensitive bool          `yaml:"case_insensitive"`
	Words           []string      `yaml:"words"`
	MatchAll        bool          `yaml:"match_all"`
	Triggers        []triggerSpec `yaml:"triggers"`
	Trigger         *triggerSpec  `yaml:"trigger"`
}

type actionSpec struct {
	Kind          string   `yaml:"kind"`
	Message       string   `yaml:"message"`
	Replacement   string   `yaml:"replacement"`
	Scope         string   `yaml:"scope"`
	Position      string   `yaml:"position"`
	Content       string   `yaml:"content"`
	Level         string   `yaml:"level"`
	Tags          []string `yaml:"tags"`
	Regulation    string   `yaml:"regulation"`
	IncludeFields []string `yaml:"include_fields"`
	Op            string   `yaml:"op"`
	Channel       string   `yaml:"channel"`
	Payload       string   `yaml:"payload"`
}

// Load reads and validates the policy document at path into a ready-to-use
// RuleSet. Every regex trigger is compiled eagerly so a malformed pattern is
// a ConfigInvalid at load time, never a panic mid-request.
func Load(path string) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &cserr.ConfigInvalid{Document: path, Cause: err}
	}
	var doc policyDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &cserr.ConfigInvalid{Document: path, Cause: err}
	}

	rules := make([]Rule, 0, len(doc.Policies))
	for _, rs := range doc.Policies {
		rule, err := buildRule(rs)
		if err != nil {
			return nil, &cserr.ConfigInvalid{Document: path + "#" + rs.Name, Cause: err}
		}
		rules = append(rules, rule)
	}
	return NewRuleSet(rules), nil
}

func buildRule(rs ruleSpec) (Rule, error) {
	trig, err := buildTrigger(rs.Trigger)
	if err != nil {
		return Rule{}, err
	}
	if err := trig.compile(); err != nil {
		return Rule{}, fmt.Errorf("trigger: %w", err)
	}

	actions := make([]Action, 0, len(rs.Actions))
	for _, as := range rs.Actions {
		a, err := buildAction(as)
		if err != nil {
			return Rule{}, err
		}
		actions = append(actions, a)
	}

	phase := Phase(rs.Phase)
	switch phase {
	case PhaseIngress, PhaseMidstream, PhaseEgress, PhaseAll:
	default:
		return Rule{}, fmt.Errorf("unknown phase %q", rs.Phase)
	}

	mode := Mode(rs.Mode)
	switch mode {
	case ModeEnforce, ModeShadow, ModeDisabled:
	case "":
		mode = ModeEnforce
	default:
		return Rule{}, fmt.Errorf("unknown mode %q", rs.Mode)
	}

	return Rule{
		Name:       rs.Name,
		Trigger:    trig,
		Actions:    actions,
		Phase:      phase,
		Priority:   rs.Priority,
		Mode:       mode,
		Regulation: rs.Regulation,
		Continue:   rs.Continue,
	}, nil
}

func buildTrigger(ts triggerSpec) (Trigger, error) {
	switch TriggerKind(ts.Kind) {
	case TriggerClassifierThreshold:
		t := Trigger{Kind: TriggerClassifierThreshold, Classifier: ts.Classifier, Min: ts.Min}
		if ts.Max != nil {
			t.HasMax = true
			t.Max = *ts.Max
		}
		return t, nil
	case TriggerClassifierLabel:
		return Trigger{Kind: TriggerClassifierLabel, Classifier: ts.Classifier, Label: ts.Label, Min: ts.MinConfidence}, nil
	case TriggerPattern:
		return Trigger{Kind: TriggerPattern, RegexSource: ts.Regex, CaseInsensitive: ts.CaseInsensitive}, nil
	case TriggerKeywordSet:
		return Trigger{Kind: TriggerKeywordSet, Words: ts.Words, MatchAll: ts.MatchAll}, nil
	case TriggerAll, TriggerAny:
		children := make([]Trigger, 0, len(ts.Triggers))
		for _, c := range ts.Triggers {
			child, err := buildTrigger(c)
			if err != nil {
				return Trigger{}, err
			}
			children = append(children, child)
		}
		return Trigger{Kind: TriggerKind(ts.Kind), Children: children}, nil
	case TriggerNot:
		if ts.Trigger == nil {
			return Trigger{}, fmt.Errorf("not trigger missing child")
		}
		child, err := buildTrigger(*ts.Trigger)
		if err != nil {
			return Trigger{}, err
		}
		return Trigger{Kind: TriggerNot, Children: []Trigger{child}}, nil
	default:
		return Trigger{}, fmt.Errorf("unknown trigger kind %q", ts.Kind)
	}
}

func buildAction(as actionSpec) (Action, error) {
	switch ActionKind(as.Kind) {
	case ActionStop:
		return Action{Kind: ActionStop, Message: as.Message}, nil
	case ActionRedact:
		scope := RedactScope(as.Scope)
		if scope == "" {
			scope = ScopeMatched
		}
		return Action{Kind: ActionRedact, Replacement: as.Replacement, Scope: scope}, nil
	case ActionInject:
		pos := InjectPosition(as.Position)
		if pos == "" {
			pos = PositionEnd
		}
		return Action{Kind: ActionInject, Position: pos, Content: as.Content}, nil
	case ActionLog:
		return Action{Kind: ActionLog, Level: as.Level, Tags: as.Tags}, nil
	case ActionAudit:
		return Action{Kind: ActionAudit, Regulation: as.Regulation, IncludeFields: as.IncludeFields}, nil
	case ActionTransform:
		return Action{Kind: ActionTransform, Op: as.Op}, nil
	case ActionNotify:
		return Action{Kind: ActionNotify, Channel: as.Channel, Payload: as.Payload}, nil
	default:
		return Action{}, fmt.Errorf("unknown action kind %q", as.Kind)
	}
}
