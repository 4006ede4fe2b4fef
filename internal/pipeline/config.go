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
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/checkstream/checkstream/internal/classifier"
	"github.com/checkstream/checkstream/internal/cserr"
)

// stageSpec is the raw YAML shape of one pipeline stage entry (spec §6.2).
type stageSpec struct {
	Type        string           `yaml:"type"`
	Name        string           `yaml:"name"`
	Classifier  string           `yaml:"classifier"`
	Classifiers []string         `yaml:"classifiers"`
	Aggregation *aggregationSpec `yaml:"aggregation"`
	Condition   *conditionSpec   `yaml:"condition"`
}

type aggregationSpec struct {
	Kind      string             `yaml:"kind"`
	Threshold float64            `yaml:"threshold"`
	Weights   map[string]float64 `yaml:"weights"`
}

type conditionSpec struct {
	Kind       string  `yaml:"kind"`
	Threshold  float64 `yaml:"threshold"`
	Classifier string  `yaml:"classifier"`
}

// Load decodes the `pipelines` node of the classifiers & pipelines document
// (as produced by internal/classifier.LoadDocument) into named Pipelines,
// validating every referenced classifier name against registry — the eager
// "ClassifierNotFound is fatal before the first request" rule of spec §7.
func Load(pipelinesNode yaml.Node, registry *classifier.Registry) (map[string]Pipeline, error) {
	var raw map[string][]stageSpec
	if err := pipelinesNode.Decode(&raw); err != nil {
		return nil, &cserr.ConfigInvalid{Document: "pipelines", Cause: err}
	}

	pipelines := make(map[string]Pipeline, len(raw))
	for name, specs := range raw {
		stages := make([]Stage, 0, len(specs))
		for _, s := range specs {
			stage, err := buildStage(s)
			if err != nil {
				return nil, &cserr.ConfigInvalid{Document: "pipelines." + name, Cause: err}
			}
			for _, ref := range classifierRefs(stage) {
				if _, err := registry.Get(ref); err != nil {
					return nil, err
				}
			}
			stages = append(stages, stage)
		}
		pipelines[name] = Pipeline{Name: name, Stages: stages}
	}
	return pipelines, nil
}

func classifierRefs(s Stage) []string {
	switch s.Kind {
	case KindSingle, KindConditional:
		return []string{s.Classifier}
	case KindParallel, KindSequential:
		return s.Classifiers
	default:
		return nil
	}
}

func buildStage(s stageSpec) (Stage, error) {
	stage := Stage{Name: s.Name, Classifier: s.Classifier, Classifiers: s.Classifiers}
	switch s.Type {
	case "single":
		stage.Kind = KindSingle
	case "parallel":
		stage.Kind = KindParallel
		agg, err := buildAggregation(s.Aggregation)
		if err != nil {
			return Stage{}, err
		}
		stage.Aggregation = agg
	case "sequential":
		stage.Kind = KindSequential
		if s.Aggregation != nil {
			agg, err := buildAggregation(s.Aggregation)
			if err != nil {
				return Stage{}, err
			}
			stage.Aggregation = agg
		} else {
			stage.Aggregation = Aggregation{Kind: AggMaxScore}
		}
	case "conditional":
		stage.Kind = KindConditional
		cond, err := buildCondition(s.Condition)
		if err != nil {
			return Stage{}, err
		}
		stage.Condition = cond
	default:
		return Stage{}, fmt.Errorf("unknown stage type %q", s.Type)
	}
	return stage, nil
}

func buildAggregation(spec *aggregationSpec) (Aggregation, error) {
	if spec == nil {
		return Aggregation{Kind: AggMaxScore}, nil
	}
	kind := AggregationKind(spec.Kind)
	switch kind {
	case AggAll, AggMaxScore, AggMinScore, AggFirstPositive, AggUnanimous, AggWeightedAverage:
		return Aggregation{Kind: kind, Threshold: spec.Threshold, Weights: spec.Weights}, nil
	default:
		return Aggregation{}, fmt.Errorf("unknown aggregation kind %q", spec.Kind)
	}
}

func buildCondition(spec *conditionSpec) (Condition, error) {
	if spec == nil {
		return Condition{}, fmt.Errorf("conditional stage missing condition")
	}
	kind := ConditionKind(spec.Kind)
	switch kind {
	case CondAnyAboveThreshold, CondAllAboveThreshold, CondClassifierTriggered, CondAlways:
		return Condition{Kind: kind, Threshold: spec.Threshold, ClassifierName: spec.Classifier}, nil
	default:
		return Condition{}, fmt.Errorf("unknown condition kind %q", spec.Kind)
	}
}
