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

// AggregationKind names one of the six reduction strategies a Parallel or
// Sequential stage may use to fold multiple verdicts into one.
type AggregationKind string

const (
	AggAll             AggregationKind = "all"
	AggMaxScore        AggregationKind = "max_score"
	AggMinScore        AggregationKind = "min_score"
	AggFirstPositive   AggregationKind = "first_positive"
	AggUnanimous       AggregationKind = "unanimous"
	AggWeightedAverage AggregationKind = "weighted_average"
)

// Aggregation configures a reduction strategy. Threshold is used by
// FirstPositive and Unanimous; Weights is used by WeightedAverage and is
// keyed by classifier name, defaulting to 1.0 for any name absent from the
// map.
type Aggregation struct {
	Kind      AggregationKind
	Threshold float64
	Weights   map[string]float64
}

// reduce folds verdicts (already complete — FirstPositive's short-circuit is
// handled by the caller during collection, not here) into a single stage
// verdict. It assumes len(verdicts) > 0; callers must not call reduce on an
// empty ensemble.
func (a Aggregation) reduce(verdicts []classifier.Verdict) classifier.Verdict {
	switch a.Kind {
	case AggMinScore:
		best := verdicts[0]
		for _, v := range verdicts[1:] {
			if v.Score < best.Score {
				best = v
			}
		}
		return best
	case AggFirstPositive:
		// By the time reduce is called without a short-circuit winner, no
		// verdict met the threshold: synthesize from the max, per spec.
		best := verdicts[0]
		for _, v := range verdicts[1:] {
			if v.Score > best.Score {
				best = v
			}
		}
		return best
	case AggUnanimous:
		min := verdicts[0].Score
		allPass := true
		for _, v := range verdicts {
			if v.Score < min {
				min = v.Score
			}
			if v.Score < a.Threshold {
				allPass = false
			}
		}
		if allPass {
			return classifier.Verdict{Label: "unanimous", Score: min}
		}
		return classifier.Verdict{Label: "dissent", Score: min}
	case AggWeightedAverage:
		var weightedSum, weightSum float64
		best := verdicts[0]
		for _, v := range verdicts {
			w := 1.0
			if a.Weights != nil {
				if configured, ok := a.Weights[v.Classifier]; ok {
					w = configured
				}
			}
			weightedSum += w * v.Score
			weightSum += w
			if v.Score > best.Score {
				best = v
			}
		}
		score := 0.0
		if weightSum > 0 {
			score = weightedSum / weightSum
		}
		return classifier.Verdict{Label: best.Label, Score: score}
	case AggAll:
		best := verdicts[0]
		for _, v := range verdicts[1:] {
			if v.Score > best.Score {
				best = v
			}
		}
		return classifier.Verdict{Label: best.Label, Score: best.Score}
	case AggMaxScore:
		fallthrough
	default:
		best := verdicts[0]
		for _, v := range verdicts[1:] {
			if v.Score > best.Score {
				best = v
			}
		}
		return best
	}
}
