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

// Package policy evaluates classifier verdicts against a set of rules and
// resolves the actions they fire.
package policy

import (
	"regexp"
	"strings"

	"github.com/checkstream/checkstream/internal/classifier"
)

// TriggerKind names one of the seven trigger variants (four leaves, three
// boolean composites) spec §3 defines.
type TriggerKind string

const (
	TriggerClassifierThreshold TriggerKind = "classifier_threshold"
	TriggerClassifierLabel     TriggerKind = "classifier_label"
	TriggerPattern             TriggerKind = "pattern"
	TriggerKeywordSet          TriggerKind = "keyword_set"
	TriggerAll                 TriggerKind = "all"
	TriggerAny                 TriggerKind = "any"
	TriggerNot                 TriggerKind = "not"
)

// Trigger is a boolean predicate over (input text, verdicts so far). It is
// recursive: All/Any/Not hold child Triggers.
type Trigger struct {
	Kind TriggerKind

	// ClassifierThreshold, ClassifierLabel
	Classifier string
	Min        float64
	HasMax     bool
	Max        float64
	Label      string

	// Pattern
	regex           *regexp.Regexp
	RegexSource     string
	CaseInsensitive bool

	// KeywordSet
	Words    []string
	MatchAll bool

	// Composites
	Children []Trigger
}

// compile finishes construction of a Pattern trigger, compiling its regex
// once so Evaluate never re-compiles on the hot path.
func (t *Trigger) compile() error {
	if t.Kind != TriggerPattern {
		for i := range t.Children {
			if err := t.Children[i].compile(); err != nil {
				return err
			}
		}
		return nil
	}
	expr := t.RegexSource
	if t.CaseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return err
	}
	t.regex = re
	return nil
}

// Evaluate reports whether the trigger holds against inputText and the
// verdicts accumulated across phases relevant to the current evaluation.
func (t Trigger) Evaluate(inputText string, verdicts []classifier.Verdict) bool {
	switch t.Kind {
	case TriggerClassifierThreshold:
		for _, v := range verdicts {
			if v.Classifier != t.Classifier {
				continue
			}
			if v.Score < t.Min {
				continue
			}
			if t.HasMax && v.Score > t.Max {
				continue
			}
			return true
		}
		return false
	case TriggerClassifierLabel:
		for _, v := range verdicts {
			if v.Classifier == t.Classifier && v.Label == t.Label && v.Score >= t.Min {
				return true
			}
		}
		return false
	case TriggerPattern:
		if t.regex == nil {
			return false
		}
		return t.regex.MatchString(inputText)
	case TriggerKeywordSet:
		if t.MatchAll {
			for _, w := range t.Words {
				if !strings.Contains(inputText, w) {
					return false
				}
			}
			return len(t.Words) > 0
		}
		for _, w := range t.Words {
			if strings.Contains(inputText, w) {
				return true
			}
		}
		return false
	case TriggerAll:
		for _, c := range t.Children {
			if !c.Evaluate(inputText, verdicts) {
				return false
			}
		}
		return true
	case TriggerAny:
		for _, c := range t.Children {
			if c.Evaluate(inputText, verdicts) {
				return true
			}
		}
		return false
	case TriggerNot:
		if len(t.Children) != 1 {
			return false
		}
		return !t.Children[0].Evaluate(inputText, verdicts)
	default:
		return false
	}
}

// citedScore returns the highest score among verdicts the trigger's leaves
// reference, used by the `${score}` template variable. Composite triggers
// recurse into their children.
func (t Trigger) citedScore(verdicts []classifier.Verdict) (float64, bool) {
	switch t.Kind {
	case TriggerClassifierThreshold, TriggerClassifierLabel:
		best, found := 0.0, false
		for _, v := range verdicts {
			if v.Classifier == t.Classifier {
				if !found || v.Score > best {
					best = v.Score
				}
				found = true
			}
		}
		return best, found
	case TriggerAll, TriggerAny, TriggerNot:
		best, found := 0.0, false
		for _, c := range t.Children {
			if s, ok := c.citedScore(verdicts); ok {
				if !found || s > best {
					best = s
				}
				found = true
			}
		}
		return best, found
	default:
		return 0, false
	}
}

// citedClassifier returns the first classifier name the trigger's leaves
// reference, used by the `${classifier_name}` template variable.
func (t Trigger) citedClassifier() (string, bool) {
	switch t.Kind {
	case TriggerClassifierThreshold, TriggerClassifierLabel:
		return t.Classifier, t.Classifier != ""
	case TriggerAll, TriggerAny, TriggerNot:
		for _, c := range t.Children {
			if name, ok := c.citedClassifier(); ok {
				return name, true
			}
		}
		return "", false
	default:
		return "", false
	}
}
