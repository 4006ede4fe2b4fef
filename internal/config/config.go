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

package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/checkstream/checkstream/internal/cserr"
	"github.com/checkstream/checkstream/internal/proxy"
)

// ProxyDocument is the decoded shape of spec §6's "proxy config" document.
type ProxyDocument struct {
	BackendURL       string `yaml:"backend_url"`
	BackendTimeoutMs int    `yaml:"backend_timeout_ms"`
	PolicyPath       string `yaml:"policy_path"`
	ClassifiersPath  string `yaml:"classifiers_path"`

	Pipelines struct {
		IngressPipeline   string  `yaml:"ingress_pipeline"`
		MidstreamPipeline string  `yaml:"midstream_pipeline"`
		EgressPipeline    string  `yaml:"egress_pipeline"`
		SafetyThreshold   float64 `yaml:"safety_threshold"`
		ChunkThreshold    float64 `yaml:"chunk_threshold"`
		TimeoutMs         int     `yaml:"timeout_ms"`
		IngressTimeoutMs  int     `yaml:"ingress_timeout_ms"`
		MidstreamTimeoutMs int    `yaml:"midstream_timeout_ms"`
		EgressTimeoutMs   int     `yaml:"egress_timeout_ms"`
		DrainTimeoutMs    int     `yaml:"drain_timeout_ms"`

		Streaming struct {
			ContextChunks int `yaml:"context_chunks"`
			MaxBufferSize int `yaml:"max_buffer_size"`
			TokenHoldback int `yaml:"token_holdback"`
		} `yaml:"streaming"`
	} `yaml:"pipelines"`
}

// defaults fills in the zero-valued knobs spec §6 documents a default for.
func (d *ProxyDocument) defaults() {
	if d.BackendTimeoutMs == 0 {
		d.BackendTimeoutMs = 30000
	}
	if d.Pipelines.SafetyThreshold == 0 {
		d.Pipelines.SafetyThreshold = 0.7
	}
	if d.Pipelines.ChunkThreshold == 0 {
		d.Pipelines.ChunkThreshold = 0.8
	}
	if d.Pipelines.Streaming.ContextChunks == 0 {
		d.Pipelines.Streaming.ContextChunks = 5
	}
	if d.Pipelines.DrainTimeoutMs == 0 {
		d.Pipelines.DrainTimeoutMs = 10000
	}
}

// phaseTimeout resolves a phase-specific timeout, falling back to the
// shared pipelines.timeout_ms, per spec §6: "applies to all phases when
// phase-specific not given".
func (d *ProxyDocument) phaseTimeout(specific int) time.Duration {
	ms := specific
	if ms == 0 {
		ms = d.Pipelines.TimeoutMs
	}
	if ms == 0 {
		ms = 5000
	}
	return time.Duration(ms) * time.Millisecond
}

// LoadProxyDocument reads and parses the proxy config document at path,
// applying the BACKEND_URL environment variable override per spec §6, then
// validating the required fields are present. AUDIT_PATH is not read here;
// AuditPath resolves it separately.
func LoadProxyDocument(path string) (*ProxyDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &cserr.ConfigInvalid{Document: path, Cause: err}
	}
	var doc ProxyDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &cserr.ConfigInvalid{Document: path, Cause: err}
	}
	doc.defaults()

	if v := os.Getenv("BACKEND_URL"); v != "" {
		doc.BackendURL = v
	}
	if doc.BackendURL == "" {
		return nil, &cserr.ConfigInvalid{Document: path, Cause: errMissingBackendURL}
	}
	if doc.Pipelines.IngressPipeline == "" {
		return nil, &cserr.ConfigInvalid{Document: path, Cause: errMissingIngressPipeline}
	}
	return &doc, nil
}

// ServerConfig translates the decoded document into internal/proxy's
// runtime Config, resolving phase timeouts against the shared default.
func (d *ProxyDocument) ServerConfig() proxy.Config {
	return proxy.Config{
		IngressTimeout:   d.phaseTimeout(d.Pipelines.IngressTimeoutMs),
		MidstreamTimeout: d.phaseTimeout(d.Pipelines.MidstreamTimeoutMs),
		EgressTimeout:    d.phaseTimeout(d.Pipelines.EgressTimeoutMs),
		BackendTimeout:   time.Duration(d.BackendTimeoutMs) * time.Millisecond,
		DrainTimeout:     time.Duration(d.Pipelines.DrainTimeoutMs) * time.Millisecond,
		ContextChunks:    d.Pipelines.Streaming.ContextChunks,
		MaxBufferSize:    d.Pipelines.Streaming.MaxBufferSize,
		TokenHoldback:    d.Pipelines.Streaming.TokenHoldback,
		SafetyThreshold:  d.Pipelines.SafetyThreshold,
		ChunkThreshold:   d.Pipelines.ChunkThreshold,
	}
}

// ListenAddr resolves the HTTP listen address from LISTEN_ADDR/LISTEN_PORT,
// defaulting to ":8080" to match the teacher's demo default.
func ListenAddr() string {
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		return addr
	}
	if port := os.Getenv("LISTEN_PORT"); port != "" {
		return ":" + port
	}
	return ":8080"
}

// AuditPath resolves the file-backend path from AUDIT_PATH, defaulting to a
// local JSONL file so checkstream-proxy runs out of the box without a
// database.
func AuditPath() string {
	if p := os.Getenv("AUDIT_PATH"); p != "" {
		return p
	}
	return "checkstream-audit.jsonl"
}

var (
	errMissingBackendURL      = configErr("backend_url is required")
	errMissingIngressPipeline = configErr("pipelines.ingress_pipeline is required")
)

type configErr string

func (e configErr) Error() string { return string(e) }
