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

// Phase identifies which of the three proxy phases a rule applies to.
type Phase string

const (
	PhaseIngress   Phase = "ingress"
	PhaseMidstream Phase = "midstream"
	PhaseEgress    Phase = "egress"
	PhaseAll       Phase = "all"
)

// Matches reports whether a rule scoped to r applies to the running phase p.
func (r Phase) matches(p Phase) bool {
	return r == PhaseAll || r == p
}

// Mode selects whether a matched rule's actions actually fire.
type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

// Rule is one policy document entry: spec §3's
// (name, trigger, actions[], phase, priority, mode, regulation?) tuple, plus
// Continue, which §4.3 step 3 references ("stop iteration unless the rule
// has continue = true") without listing in the headline tuple.
type Rule struct {
	Name       string
	Trigger    Trigger
	Actions    []Action
	Phase      Phase
	Priority   int
	Mode       Mode
	Regulation string
	Continue   bool
}

// RuleSet is an immutable, validated collection of rules, already sorted for
// evaluation order (descending priority, ties by ascending rule name). It is
// the unit hot-reload swaps atomically.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet sorts rules into evaluation order and returns an immutable set.
func NewRuleSet(rules []Rule) *RuleSet {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sortRules(sorted)
	return &RuleSet{rules: sorted}
}

// Len reports how many rules the set holds.
func (rs *RuleSet) Len() int { return len(rs.rules) }

func sortRules(rules []Rule) {
	// Insertion sort: rule sets are small (tens, not thousands) and this
	// keeps the comparator's tie-break (priority desc, name asc) explicit
	// and stable without importing sort for a three-line comparator.
	for i := 1; i < len(rules); i++ {
		j := i
		for j > 0 && ruleLess(rules[i], rules[j-1]) {
			j--
		}
		if j != i {
			r := rules[i]
			copy(rules[j+1:i+1], rules[j:i])
			rules[j] = r
		}
	}
}

func ruleLess(a, b Rule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Name < b.Name
}
