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

import "testing"

// TestNewRuleSet_OrdersByPriorityDescThenNameAsc covers spec §8's priority
// obedience property: higher priority first, ties broken by ascending name.
func TestNewRuleSet_OrdersByPriorityDescThenNameAsc(t *testing.T) {
	rules := []Rule{
		{Name: "low", Priority: 1},
		{Name: "zed-high", Priority: 10},
		{Name: "alpha-high", Priority: 10},
		{Name: "mid", Priority: 5},
	}
	rs := NewRuleSet(rules)
	if rs.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", rs.Len())
	}
	want := []string{"alpha-high", "zed-high", "mid", "low"}
	for i, name := range want {
		if rs.rules[i].Name != name {
			t.Fatalf("rules[%d].Name = %q, want %q", i, rs.rules[i].Name, name)
		}
	}
}

func TestNewRuleSet_DoesNotMutateInput(t *testing.T) {
	rules := []Rule{{Name: "b", Priority: 1}, {Name: "a", Priority: 1}}
	_ = NewRuleSet(rules)
	if rules[0].Name != "b" || rules[1].Name != "a" {
		t.Fatalf("NewRuleSet mutated its input slice: %+v", rules)
	}
}

func TestPhase_Matches(t *testing.T) {
	if !PhaseAll.matches(PhaseIngress) {
		t.Fatalf("PhaseAll should match any phase")
	}
	if PhaseIngress.matches(PhaseEgress) {
		t.Fatalf("PhaseIngress should not match PhaseEgress")
	}
	if !PhaseMidstream.matches(PhaseMidstream) {
		t.Fatalf("PhaseMidstream should match itself")
	}
}
