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

// Package proxy implements the three-phase (ingress/midstream/egress) HTTP
// proxy that sits between a client and an upstream chat-completions backend.
package proxy

import (
	"strings"
	"sync"
	"time"

	"github.com/checkstream/checkstream/internal/classifier"
	"github.com/checkstream/checkstream/internal/policy"
)

// RequestContext is owned by the task handling one request and is never
// shared across requests. Its exported fields are set at construction; mu
// guards the accumulated output, verdicts and actions, which the detached
// egress task also reads.
type RequestContext struct {
	ID        string
	Tenant    string
	Start     time.Time
	Prompt    string
	Stream    bool

	mu               sync.Mutex
	outputBuilder    strings.Builder
	ingressVerdicts  []classifier.Verdict
	midstreamVerdicts []classifier.Verdict
	egressVerdicts   []classifier.Verdict
	actions          []policy.Action
}

// NewRequestContext starts a context with the given ID and start timestamp.
func NewRequestContext(id, tenant, prompt string, stream bool, now time.Time) *RequestContext {
	return &RequestContext{ID: id, Tenant: tenant, Prompt: prompt, Stream: stream, Start: now}
}

// AppendOutput accumulates a chunk of assistant output text.
func (c *RequestContext) AppendOutput(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputBuilder.WriteString(s)
}

// Output returns the assistant output accumulated so far.
func (c *RequestContext) Output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputBuilder.String()
}

// RecordVerdicts appends verdicts observed during the named phase.
func (c *RequestContext) RecordVerdicts(phase policy.Phase, vs []classifier.Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch phase {
	case policy.PhaseIngress:
		c.ingressVerdicts = append(c.ingressVerdicts, vs...)
	case policy.PhaseMidstream:
		c.midstreamVerdicts = append(c.midstreamVerdicts, vs...)
	case policy.PhaseEgress:
		c.egressVerdicts = append(c.egressVerdicts, vs...)
	}
}

// RecordActions appends actions that fired during the request.
func (c *RequestContext) RecordActions(actions []policy.Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, actions...)
}

// AllVerdicts returns every verdict observed across all phases so far.
func (c *RequestContext) AllVerdicts() []classifier.Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]classifier.Verdict, 0, len(c.ingressVerdicts)+len(c.midstreamVerdicts)+len(c.egressVerdicts))
	out = append(out, c.ingressVerdicts...)
	out = append(out, c.midstreamVerdicts...)
	out = append(out, c.egressVerdicts...)
	return out
}

// Actions returns every action that fired across all phases so far.
func (c *RequestContext) Actions() []policy.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]policy.Action, len(c.actions))
	copy(out, c.actions)
	return out
}
