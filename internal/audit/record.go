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

// Package audit implements the hash-chained, append-only audit trail (spec
// §4.6): canonical serialization, SHA-256 chaining, append/query/verify, and
// retention truncation that preserves chain validity for the retained
// suffix.
package audit

import "time"

// Record is one immutable audit trail entry (spec §3). Hash covers
// PreviousHash plus the canonical bytes of every other field.
type Record struct {
	ID           int64
	Timestamp    time.Time
	PreviousHash string
	Hash         string
	RequestID    string
	Tenant       string
	InputDigest  string
	OutputDigest string
	Verdicts     []VerdictEntry
	Actions      []ActionEntry
	Regulations  []string
}

// VerdictEntry is the audit-trail projection of a classifier.Verdict —
// score and label only, no spans (spans are a redaction-time concern, not
// evidence).
type VerdictEntry struct {
	Classifier string
	Label      string
	Score      float64
}

// ActionEntry is the audit-trail projection of a fired policy.Action.
type ActionEntry struct {
	Kind     string
	RuleName string
	Detail   string
}

// Partial is the caller-supplied shape append() completes: ID, Timestamp,
// PreviousHash, and Hash are assigned by the Trail, never by the caller.
type Partial struct {
	RequestID    string
	Tenant       string
	InputDigest  string
	OutputDigest string
	Verdicts     []VerdictEntry
	Actions      []ActionEntry
	Regulations  []string
}

// Filter selects a subset of records for Query.
type Filter struct {
	Start  time.Time
	End    time.Time
	Tenant string
	Action string
	Limit  int
	Offset int
}

func (f Filter) matches(r Record) bool {
	if !f.Start.IsZero() && r.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && r.Timestamp.After(f.End) {
		return false
	}
	if f.Tenant != "" && r.Tenant != f.Tenant {
		return false
	}
	if f.Action != "" {
		found := false
		for _, a := range r.Actions {
			if a.Kind == f.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
