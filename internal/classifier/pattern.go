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
	"regexp"
	"strings"
)

// PatternClassifier matches a compiled regular expression against text and
// emits a single verdict, labeled with the rule's configured label, that
// carries one span per match.
// Score is always 1.0 — a regex either matches or it doesn't, there is no
// graded confidence to report. It defaults to the conservative branch: a
// match always sets Triggered, never leaves it to the caller to decide.
type PatternClassifier struct {
	name    string
	label   string
	pattern *regexp.Regexp
}

// NewPatternClassifier compiles expr and returns a classifier registered
// under name that tags any match with label.
func NewPatternClassifier(name, label, expr string) (*PatternClassifier, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &PatternClassifier{name: name, label: label, pattern: re}, nil
}

func (p *PatternClassifier) Name() string { return p.name }
func (p *PatternClassifier) Tier() Tier   { return TierFast }

func (p *PatternClassifier) Classify(_ context.Context, text string) ([]Verdict, error) {
	locs := p.pattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil, nil
	}
	spans := make([]Span, 0, len(locs))
	for _, loc := range locs {
		spans = append(spans, Span{Start: loc[0], End: loc[1]})
	}
	return []Verdict{{
		Classifier: p.name,
		Label:      p.label,
		Score:      1.0,
		Triggered:  true,
		Spans:      spans,
	}}, nil
}

// KeywordSetClassifier matches against a fixed vocabulary. Unlike
// PatternClassifier it reports a graded score: the total number of keyword
// occurrences found divided by a saturation count, capped at 1.0, so a
// downstream threshold rule can distinguish "one hit" from "ten hits".
type KeywordSetClassifier struct {
	name       string
	label      string
	keywords   []string
	saturation int
	caseFold   bool
}

// KeywordSetOptions configures a KeywordSetClassifier.
type KeywordSetOptions struct {
	// Saturation is the keyword-hit count at which Score reaches 1.0. A
	// value <= 0 defaults to len(keywords).
	Saturation int
	// CaseFold, when true, matches case-insensitively.
	CaseFold bool
}

// NewKeywordSetClassifier builds a classifier over a fixed keyword list.
func NewKeywordSetClassifier(name, label string, keywords []string, opts KeywordSetOptions) *KeywordSetClassifier {
	sat := opts.Saturation
	if sat <= 0 {
		sat = len(keywords)
	}
	if sat <= 0 {
		sat = 1
	}
	return &KeywordSetClassifier{
		name:       name,
		label:      label,
		keywords:   keywords,
		saturation: sat,
		caseFold:   opts.CaseFold,
	}
}

func (k *KeywordSetClassifier) Name() string { return k.name }
func (k *KeywordSetClassifier) Tier() Tier   { return TierFast }

func (k *KeywordSetClassifier) Classify(_ context.Context, text string) ([]Verdict, error) {
	haystack := text
	if k.caseFold {
		haystack = strings.ToLower(haystack)
	}
	var spans []Span
	hits := 0
	for _, kw := range k.keywords {
		needle := kw
		if k.caseFold {
			needle = strings.ToLower(needle)
		}
		idx := 0
		for {
			pos := strings.Index(haystack[idx:], needle)
			if pos < 0 {
				break
			}
			start := idx + pos
			spans = append(spans, Span{Start: start, End: start + len(needle)})
			hits++
			idx = start + len(needle)
		}
	}
	if hits == 0 {
		return nil, nil
	}
	score := float64(hits) / float64(k.saturation)
	if score > 1.0 {
		score = 1.0
	}
	return []Verdict{{
		Classifier: k.name,
		Label:      k.label,
		Score:      score,
		Triggered:  true,
		Spans:      spans,
	}}, nil
}
