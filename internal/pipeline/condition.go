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

import "github.com/checkstream/checkstream/internal/classifier"

// ConditionKind names one of the predicate variants a Conditional stage
// evaluates against verdicts accumulated from prior stages.
type ConditionKind string

const (
	CondAnyAboveThreshold ConditionKind = "any_above_threshold"
	CondAllAboveThreshold ConditionKind = "all_above_threshold"
	CondClassifierTriggered ConditionKind = "classifier_triggered"
	CondAlways            ConditionKind = "always"
)

// triggeredMinScore is the fixed threshold ClassifierTriggered uses to
// decide whether a prior verdict from the named classifier counts as
// "triggered", per spec §4.2.
const triggeredMinScore = 0.5

// Condition configures one predicate variant.
type Condition struct {
	Kind           ConditionKind
	Threshold      float64
	ClassifierName string
}

// Evaluate reports whether the condition holds against the verdicts
// accumulated from every prior stage, in completion order.
func (c Condition) Evaluate(verdicts []classifier.Verdict) bool {
	switch c.Kind {
	case CondAnyAboveThreshold:
		for _, v := range verdicts {
			if v.Score >= c.Threshold {
				return true
			}
		}
		return false
	case CondAllAboveThreshold:
		if len(verdicts) == 0 {
			return false
		}
		for _, v := range verdicts {
			if v.Score < c.Threshold {
				return false
			}
		}
		return true
	case CondClassifierTriggered:
		for _, v := range verdicts {
			if v.Classifier == c.ClassifierName && v.Score >= triggeredMinScore {
				return true
			}
		}
		return false
	case CondAlways:
		return true
	default:
		return false
	}
}
