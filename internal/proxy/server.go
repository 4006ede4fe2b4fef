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

// Package proxy implements the public-facing HTTP server: the three-phase
// guardrail proxy sitting in front of an upstream chat-completions backend.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/checkstream/checkstream/internal/audit"
	"github.com/checkstream/checkstream/internal/classifier"
	"github.com/checkstream/checkstream/internal/cserr"
	"github.com/checkstream/checkstream/internal/pipeline"
	"github.com/checkstream/checkstream/internal/policy"
)

// Config bundles the external-interface knobs of spec §6's proxy config
// document that the HTTP layer and phase runners need directly.
type Config struct {
	IngressTimeout   time.Duration
	MidstreamTimeout time.Duration
	EgressTimeout    time.Duration
	BackendTimeout   time.Duration
	DrainTimeout     time.Duration

	ContextChunks int
	MaxBufferSize int
	TokenHoldback int

	SafetyThreshold float64
	ChunkThreshold  float64
}

// Server handles the HTTP surface of §6 and owns the wiring between the
// classifier registry, pipeline engine, policy evaluator, audit trail, and
// upstream backend client.
type Server struct {
	cfg Config

	registry *classifier.Registry
	engine   *pipeline.Engine

	ingressPipeline   pipeline.Pipeline
	midstreamPipeline pipeline.Pipeline
	egressPipeline    pipeline.Pipeline

	evaluator *policy.Evaluator
	trail     *audit.Trail
	backend   *BackendClient
	logger    *zap.SugaredLogger

	draining      *shutdownFlag
	drainDeadline atomic.Pointer[time.Time]
	inFlight      sync.WaitGroup
}

// drainForceDeadline reports whether a drain has been requested and its
// timeout has elapsed, meaning any still-streaming response must be forced
// closed with a stop-marker frame rather than left to finish on its own.
func (s *Server) drainForceDeadline() bool {
	d := s.drainDeadline.Load()
	return d != nil && !time.Now().Before(*d)
}

// NewServer wires the dependencies needed to serve spec §6's HTTP surface.
func NewServer(cfg Config, registry *classifier.Registry, engine *pipeline.Engine,
	ingress, midstream, egress pipeline.Pipeline,
	evaluator *policy.Evaluator, trail *audit.Trail, backend *BackendClient, logger *zap.SugaredLogger) *Server {
	return &Server{
		cfg: cfg, registry: registry, engine: engine,
		ingressPipeline: ingress, midstreamPipeline: midstream, egressPipeline: egress,
		evaluator: evaluator, trail: trail, backend: backend, logger: logger,
		draining: newShutdownFlag(),
	}
}

// RegisterRoutes sets up the HTTP routes for the server on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/embeddings", s.handleEmbeddings)
	mux.HandleFunc("/health/live", s.handleHealthLive)
	mux.HandleFunc("/health/ready", s.handleHealthReady)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/audit", s.handleAuditQuery)
	mux.HandleFunc("/audit/verify", s.handleAuditVerify)
}

// ListenAndServe starts the HTTP server on addr with the teacher's
// timeout-hardened http.Server shape.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses may run long; bounded by phase timeouts instead
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Infow("checkstream proxy listening", "addr", addr)
	return httpServer.ListenAndServe()
}

// chatMessage is one OpenAI-compatible chat message.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the subset of the OpenAI chat-completions request body
// this proxy inspects; unknown fields are forwarded upstream unmodified via
// the raw body, not reconstructed from this struct.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// extractPrompt concatenates message contents, respecting role boundaries
// per spec §4.5 phase 1, into one classifiable text blob.
func extractPrompt(req chatRequest) string {
	var b strings.Builder
	for _, m := range req.Messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if s.draining.isSet() {
		http.Error(w, "service draining", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.inFlight.Add(1)
	defer s.inFlight.Done()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	reqID := uuid.NewString()
	tenant := r.Header.Get("X-CheckStream-Tenant")
	rc := NewRequestContext(reqID, tenant, extractPrompt(req), req.Stream, time.Now())

	w.Header().Set("X-CheckStream-Request-Id", reqID)

	ingressOut, err := s.runIngress(r.Context(), rc)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	latencyMs := time.Since(rc.Start).Milliseconds()
	w.Header().Set("X-CheckStream-Latency-Ms", strconv.FormatInt(latencyMs, 10))

	if ingressOut.stopped {
		w.Header().Set("X-CheckStream-Decision", "block")
		w.Header().Set("X-CheckStream-Rule-Triggered", ingressOut.stopRule)
		s.writeStop(w, req.Stream, ingressOut.stopMsg, ingressOut.stopRule)
		s.appendAudit(r.Context(), rc)
		return
	}
	w.Header().Set("X-CheckStream-Decision", decisionFor(ingressOut.actions))

	forwardBody, err := buildForwardBody(body, ingressOut.forwardTxt, req)
	if err != nil {
		http.Error(w, "failed to build upstream request", http.StatusInternalServerError)
		return
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, s.backend.ResolveURL(r.URL.Path), bytes.NewReader(forwardBody))
	if err != nil {
		http.Error(w, "failed to construct upstream request", http.StatusInternalServerError)
		return
	}
	upstreamReq.Header.Set("Content-Type", "application/json")
	if auth := r.Header.Get("Authorization"); auth != "" {
		upstreamReq.Header.Set("Authorization", auth)
	}

	resp, err := s.backend.Do(upstreamReq)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	defer resp.Body.Close()

	if req.Stream {
		s.relayStream(r.Context(), w, rc, resp.Body)
	} else {
		s.relayNonStreaming(r.Context(), w, rc, resp.Body)
	}
}

func decisionFor(actions []policy.Action) string {
	for _, a := range actions {
		switch a.Kind {
		case policy.ActionRedact:
			return "redact"
		case policy.ActionStop:
			return "block"
		}
	}
	return "allow"
}

// buildForwardBody re-serializes the request with the (possibly
// Transform-modified) prompt substituted back into the last message,
// whatever its role, preserving every other field of the original body
// untouched.
func buildForwardBody(original []byte, forwardPrompt string, req chatRequest) ([]byte, error) {
	if forwardPrompt == extractPrompt(req) {
		return original, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(original, &raw); err != nil {
		return nil, err
	}
	if msgs, ok := raw["messages"].([]interface{}); ok && len(msgs) > 0 {
		if last, ok := msgs[len(msgs)-1].(map[string]interface{}); ok {
			last["content"] = forwardPrompt
		}
	}
	return json.Marshal(raw)
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch err.(type) {
	case *cserr.BackendUnreachable:
		http.Error(w, err.Error(), http.StatusBadGateway)
	case *cserr.BackendError:
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) writeStop(w http.ResponseWriter, stream bool, msg, rule string) {
	if !stream {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"type": "safety_violation", "message": msg, "rule": rule},
		})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	enc := newSSEEncoder(w)
	body, _ := json.Marshal(map[string]interface{}{
		"error": map[string]string{"type": "safety_violation", "message": msg, "rule": rule},
	})
	_ = enc.WriteData(string(body))
	_ = enc.WriteDone()
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if s.draining.isSet() {
		http.Error(w, "service draining", http.StatusServiceUnavailable)
		return
	}
	s.inFlight.Add(1)
	defer s.inFlight.Done()
	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, s.backend.ResolveURL(r.URL.Path), r.Body)
	if err != nil {
		http.Error(w, "failed to construct upstream request", http.StatusInternalServerError)
		return
	}
	upstreamReq.Header = r.Header.Clone()
	resp, err := s.backend.Do(upstreamReq)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	defer resp.Body.Close()
	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil || s.registry.Len() == 0 {
		http.Error(w, "registry not populated", http.StatusServiceUnavailable)
		return
	}
	if s.evaluator == nil {
		http.Error(w, "policy not loaded", http.StatusServiceUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.backend.Ping(ctx); err != nil {
		http.Error(w, "upstream unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ready")
}

func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	f := audit.Filter{
		Tenant: r.URL.Query().Get("tenant"),
		Action: r.URL.Query().Get("action"),
	}
	if v := r.URL.Query().Get("start"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Start = t
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.End = t
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}

	records, err := s.trail.Query(r.Context(), f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	f := audit.Filter{}
	if v := r.URL.Query().Get("start"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Start = t
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.End = t
		}
	}
	result, err := s.trail.Verify(r.Context(), f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":            statusFor(result.Valid),
		"records_verified":  result.RecordsVerified,
		"chain_intact":      result.Valid,
		"first_bad_index":   result.FirstBadIndex,
	})
}

func statusFor(valid bool) string {
	if valid {
		return "ok"
	}
	return "corrupt"
}
