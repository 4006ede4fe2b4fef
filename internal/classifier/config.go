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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/checkstream/checkstream/internal/cserr"
)

// Document is the decoded shape of the "classifiers & pipelines" config
// document (spec §6.2). Only the `classifiers` and `patterns` collections
// are consumed here; `pipelines` is decoded and handed to
// internal/pipeline's own loader so each package owns the part of the
// document it understands.
type Document struct {
	Classifiers []ClassifierSpec `yaml:"classifiers"`
	Patterns    []PatternSpec    `yaml:"patterns"`
	Pipelines   yaml.Node        `yaml:"pipelines"`
}

// ClassifierSpec describes one non-pattern classifier entry. Kind selects a
// built-in constructor (Populate recognises only "keyword_set"); Params is
// kind-specific and left as a raw yaml.Node so each kind decodes its own
// shape.
type ClassifierSpec struct {
	Name   string    `yaml:"name"`
	Kind   string    `yaml:"kind"`
	Params yaml.Node `yaml:"params"`
}

// PatternSpec describes one regex-backed classifier entry.
type PatternSpec struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
	Label string `yaml:"label"`
}

// KeywordSpec describes one keyword-set classifier entry, decoded from a
// ClassifierSpec whose Kind is "keyword_set".
type KeywordSpec struct {
	Label      string   `yaml:"label"`
	Keywords   []string `yaml:"keywords"`
	Saturation int      `yaml:"saturation"`
	CaseFold   bool     `yaml:"case_fold"`
}

// LoadDocument reads and parses the classifiers & pipelines document at
// path. It does not build a Registry — call Populate with the result.
func LoadDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &cserr.ConfigInvalid{Document: path, Cause: err}
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &cserr.ConfigInvalid{Document: path, Cause: err}
	}
	return &doc, nil
}

// Populate builds a Registry from doc's classifiers and patterns
// collections. Black-box classifier kinds beyond "keyword_set" are expected
// to be registered directly by the embedding program (spec §7: "concrete ML
// model weight loading... treated as black-box Classifier implementations")
// before pipelines referencing them are validated.
func Populate(doc *Document, registry *Registry) error {
	for _, p := range doc.Patterns {
		c, err := NewPatternClassifier(p.Name, p.Label, p.Regex)
		if err != nil {
			return &cserr.ConfigInvalid{Document: "patterns." + p.Name, Cause: err}
		}
		if err := registry.Register(c); err != nil {
			return &cserr.ConfigInvalid{Document: "patterns." + p.Name, Cause: err}
		}
	}

	for _, spec := range doc.Classifiers {
		switch spec.Kind {
		case "keyword_set":
			var ks KeywordSpec
			if err := spec.Params.Decode(&ks); err != nil {
				return &cserr.ConfigInvalid{Document: "classifiers." + spec.Name, Cause: err}
			}
			c := NewKeywordSetClassifier(spec.Name, ks.Label, ks.Keywords, KeywordSetOptions{
				Saturation: ks.Saturation,
				CaseFold:   ks.CaseFold,
			})
			if err := registry.Register(c); err != nil {
				return &cserr.ConfigInvalid{Document: "classifiers." + spec.Name, Cause: err}
			}
		default:
			return &cserr.ConfigInvalid{Document: "classifiers." + spec.Name, Cause: fmt.Errorf("unknown classifier kind %q (register it programmatically instead)", spec.Kind)}
		}
	}
	return nil
}
