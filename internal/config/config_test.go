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
	"path/filepath"
	"testing"
	"time"
)

const sampleProxyDoc = `
backend_url: "http://localhost:9090"
policy_path: "policy.yaml"
classifiers_path: "classifiers.yaml"
pipelines:
  ingress_pipeline: "ingress-default"
  midstream_pipeline: "midstream-default"
  egress_pipeline: "egress-default"
  timeout_ms: 2000
  ingress_timeout_ms: 500
  streaming:
    context_chunks: 3
    max_buffer_size: 4096
    token_holdback: 2
`

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "checkstream.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp doc: %v", err)
	}
	return path
}

func TestLoadProxyDocument_ParsesAndDefaults(t *testing.T) {
	path := writeDoc(t, sampleProxyDoc)
	doc, err := LoadProxyDocument(path)
	if err != nil {
		t.Fatalf("LoadProxyDocument: %v", err)
	}
	if doc.BackendURL != "http://localhost:9090" {
		t.Fatalf("BackendURL = %q", doc.BackendURL)
	}
	// BackendTimeoutMs was unset in the doc; defaults() must fill it.
	if doc.BackendTimeoutMs != 30000 {
		t.Fatalf("BackendTimeoutMs = %d, want default 30000", doc.BackendTimeoutMs)
	}
	if doc.Pipelines.SafetyThreshold != 0.7 {
		t.Fatalf("SafetyThreshold = %v, want default 0.7", doc.Pipelines.SafetyThreshold)
	}
	if doc.Pipelines.ChunkThreshold != 0.8 {
		t.Fatalf("ChunkThreshold = %v, want default 0.8", doc.Pipelines.ChunkThreshold)
	}
}

func TestLoadProxyDocument_EnvOverridesBackendURL(t *testing.T) {
	path := writeDoc(t, sampleProxyDoc)
	t.Setenv("BACKEND_URL", "http://override:1234")
	doc, err := LoadProxyDocument(path)
	if err != nil {
		t.Fatalf("LoadProxyDocument: %v", err)
	}
	if doc.BackendURL != "http://override:1234" {
		t.Fatalf("BackendURL = %q, want env override applied", doc.BackendURL)
	}
}

func TestLoadProxyDocument_MissingBackendURLIsConfigInvalid(t *testing.T) {
	path := writeDoc(t, `
pipelines:
  ingress_pipeline: "ingress-default"
`)
	if _, err := LoadProxyDocument(path); err == nil {
		t.Fatalf("expected error when backend_url is missing and BACKEND_URL unset")
	}
}

func TestLoadProxyDocument_MissingIngressPipelineIsConfigInvalid(t *testing.T) {
	path := writeDoc(t, `
backend_url: "http://localhost:9090"
`)
	if _, err := LoadProxyDocument(path); err == nil {
		t.Fatalf("expected error when pipelines.ingress_pipeline is missing")
	}
}

func TestLoadProxyDocument_MissingFileIsConfigInvalid(t *testing.T) {
	if _, err := LoadProxyDocument("/nonexistent/checkstream.yaml"); err == nil {
		t.Fatalf("expected error loading a missing file")
	}
}

// TestProxyDocument_ServerConfig_FallsBackToSharedTimeout covers spec §6's
// rule that a phase-specific timeout, when zero, falls back to
// pipelines.timeout_ms.
func TestProxyDocument_ServerConfig_FallsBackToSharedTimeout(t *testing.T) {
	path := writeDoc(t, sampleProxyDoc)
	doc, err := LoadProxyDocument(path)
	if err != nil {
		t.Fatalf("LoadProxyDocument: %v", err)
	}
	cfg := doc.ServerConfig()

	if cfg.IngressTimeout != 500*time.Millisecond {
		t.Fatalf("IngressTimeout = %s, want the phase-specific 500ms", cfg.IngressTimeout)
	}
	// MidstreamTimeoutMs was never set in sampleProxyDoc, so it must fall
	// back to the shared pipelines.timeout_ms of 2000ms.
	if cfg.MidstreamTimeout != 2000*time.Millisecond {
		t.Fatalf("MidstreamTimeout = %s, want shared fallback 2000ms", cfg.MidstreamTimeout)
	}
	if cfg.EgressTimeout != 2000*time.Millisecond {
		t.Fatalf("EgressTimeout = %s, want shared fallback 2000ms", cfg.EgressTimeout)
	}
	if cfg.ContextChunks != 3 || cfg.MaxBufferSize != 4096 || cfg.TokenHoldback != 2 {
		t.Fatalf("streaming knobs not carried through: %+v", cfg)
	}
}

func TestProxyDocument_ServerConfig_DefaultsPhaseTimeoutTo5s(t *testing.T) {
	path := writeDoc(t, `
backend_url: "http://localhost:9090"
pipelines:
  ingress_pipeline: "ingress-default"
`)
	doc, err := LoadProxyDocument(path)
	if err != nil {
		t.Fatalf("LoadProxyDocument: %v", err)
	}
	cfg := doc.ServerConfig()
	if cfg.IngressTimeout != 5*time.Second {
		t.Fatalf("IngressTimeout = %s, want the 5s fallback default", cfg.IngressTimeout)
	}
}

func TestListenAddr_PrefersListenAddrOverPort(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("LISTEN_PORT", "1234")
	if got := ListenAddr(); got != ":9999" {
		t.Fatalf("ListenAddr() = %q, want LISTEN_ADDR to win", got)
	}
}

func TestListenAddr_FallsBackToPortThenDefault(t *testing.T) {
	t.Setenv("LISTEN_PORT", "1234")
	if got := ListenAddr(); got != ":1234" {
		t.Fatalf("ListenAddr() = %q, want :1234", got)
	}

	t.Setenv("LISTEN_PORT", "")
	if got := ListenAddr(); got != ":8080" {
		t.Fatalf("ListenAddr() = %q, want default :8080", got)
	}
}

func TestAuditPath_DefaultsToLocalJSONL(t *testing.T) {
	t.Setenv("AUDIT_PATH", "")
	if got := AuditPath(); got != "checkstream-audit.jsonl" {
		t.Fatalf("AuditPath() = %q, want default checkstream-audit.jsonl", got)
	}
	t.Setenv("AUDIT_PATH", "/var/lib/checkstream/audit.jsonl")
	if got := AuditPath(); got != "/var/lib/checkstream/audit.jsonl" {
		t.Fatalf("AuditPath() = %q, want env override", got)
	}
}
