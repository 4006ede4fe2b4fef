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

package classifier

import (
	"context"
	"testing"
)

func TestPatternClassifier_MatchProducesSpans(t *testing.T) {
	c, err := NewPatternClassifier("ssn", "pii:ssn", `\b\d{3}-\d{2}-\d{4}\b`)
	if err != nil {
		t.Fatalf("NewPatternClassifier: %v", err)
	}

	text := "Your SSN is 123-45-6789 and no other info."
	verdicts, err := c.Classify(context.Background(), text)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(verdicts) != 1 {
		t.Fatalf("expected 1 verdict, got %d", len(verdicts))
	}
	v := verdicts[0]
	if !v.Triggered || v.Score != 1.0 {
		t.Fatalf("expected triggered score 1.0, got triggered=%v score=%v", v.Triggered, v.Score)
	}
	if len(v.Spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(v.Spans))
	}
	got := text[v.Spans[0].Start:v.Spans[0].End]
	if got != "123-45-6789" {
		t.Fatalf("span text = %q, want %q", got, "123-45-6789")
	}
}

func TestPatternClassifier_NoMatchReturnsEmpty(t *testing.T) {
	c, err := NewPatternClassifier("ssn", "pii:ssn", `\b\d{3}-\d{2}-\d{4}\b`)
	if err != nil {
		t.Fatalf("NewPatternClassifier: %v", err)
	}
	verdicts, err := c.Classify(context.Background(), "nothing sensitive here")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(verdicts) != 0 {
		t.Fatalf("expected no verdicts, got %d", len(verdicts))
	}
}

func TestKeywordSetClassifier_ScoreSaturates(t *testing.T) {
	k := NewKeywordSetClassifier("kw", "profanity", []string{"foo", "bar"}, KeywordSetOptions{Saturation: 4, CaseFold: true})

	verdicts, err := k.Classify(context.Background(), "FOO and bar and foo again")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(verdicts) != 1 {
		t.Fatalf("expected 1 verdict, got %d", len(verdicts))
	}
	// 3 hits (foo, bar, foo) out of saturation 4 => 0.75
	if verdicts[0].Score != 0.75 {
		t.Fatalf("expected score 0.75, got %v", verdicts[0].Score)
	}
}

func TestKeywordSetClassifier_ScoreCapsAtOne(t *testing.T) {
	k := NewKeywordSetClassifier("kw", "profanity", []string{"foo"}, KeywordSetOptions{Saturation: 1})
	verdicts, err := k.Classify(context.Background(), "foo foo foo")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if verdicts[0].Score != 1.0 {
		t.Fatalf("expected score capped at 1.0, got %v", verdicts[0].Score)
	}
}

func TestKeywordSetClassifier_NoHitsReturnsEmpty(t *testing.T) {
	k := NewKeywordSetClassifier("kw", "profanity", []string{"zzz"}, KeywordSetOptions{})
	verdicts, err := k.Classify(context.Background(), "nothing matches")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(verdicts) != 0 {
		t.Fatalf("expected no verdicts, got %d", len(verdicts))
	}
}
