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
	"regexp"
	"strconv"
	"time"

	"github.com/checkstream/checkstream/internal/classifier"
)

// templateVars holds the substitution values for one rule evaluation.
// Unknown ${var} references are left verbatim, per spec §4.3.
type templateVars struct {
	input      string
	output     string
	tenant     string
	requestID  string
	timestamp  time.Time
	ruleName   string
	score      string
	classifier string
}

var templateRe = regexp.MustCompile(`\$\{([a-zA-Z_]+)\}`)

func newTemplateVars(rule Rule, verdicts []classifier.Verdict, inputText, outputText, tenant, requestID string, ts time.Time) templateVars {
	tv := templateVars{
		input:     inputText,
		output:    outputText,
		tenant:    tenant,
		requestID: requestID,
		timestamp: ts,
		ruleName:  rule.Name,
	}
	if s, ok := rule.Trigger.citedScore(verdicts); ok {
		tv.score = strconv.FormatFloat(s, 'f', 4, 64)
	}
	if name, ok := rule.Trigger.citedClassifier(); ok {
		tv.classifier = name
	}
	return tv
}

func (tv templateVars) substitute(s string) string {
	return templateRe.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		switch name {
		case "input":
			return tv.input
		case "output":
			return tv.output
		case "tenant":
			return tv.tenant
		case "request_id":
			return tv.requestID
		case "timestamp":
			return tv.timestamp.UTC().Format(time.RFC3339Nano)
		case "rule_name":
			return tv.ruleName
		case "score":
			return tv.score
		case "classifier_name":
			return tv.classifier
		default:
			return match
		}
	})
}

// applyTemplates returns a copy of a with Message, Replacement, Content,
// Payload and each IncludeFields entry run through tv.substitute; the other
// fields are copied unchanged. IncludeFields is rebuilt in a new slice, so
// the rule's own action is never written.
func (tv templateVars) applyTemplates(a Action) Action {
	a.Message = tv.substitute(a.Message)
	a.Replacement = tv.substitute(a.Replacement)
	a.Content = tv.substitute(a.Content)
	a.Payload = tv.substitute(a.Payload)
	if a.IncludeFields != nil {
		fields := make([]string, len(a.IncludeFields))
		for i, f := range a.IncludeFields {
			fields[i] = tv.substitute(f)
		}
		a.IncludeFields = fields
	}
	return a
}
