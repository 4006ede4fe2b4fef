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

package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/checkstream/checkstream/internal/audit"
	"github.com/checkstream/checkstream/internal/audit/backend"
	"github.com/checkstream/checkstream/internal/classifier"
	"github.com/checkstream/checkstream/internal/pipeline"
	"github.com/checkstream/checkstream/internal/policy"
)

// TestServer_RelayStream_BackpressureOverflowClosesStream covers the
// backpressure-overflow fix end to end: with max_buffer_size small enough
// that the oldest chunk is still owed to the client (token_holdback keeps
// it unreleased), the stream must close with a backpressure_overflow
// stop-marker frame rather than silently dropping an unsent chunk.
func TestServer_RelayStream_BackpressureOverflowClosesStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for i := 0; i < 10; i++ {
			w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"aaaaaaaaaa\"}}]}\n\n"))
			flusher.Flush()
		}
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer upstream.Close()

	registry := classifier.NewRegistry()
	engine := pipeline.NewEngine(registry, nil)
	ingress := pipeline.Pipeline{Name: "ingress"}
	midstream := pipeline.Pipeline{Name: "midstream"}
	egress := pipeline.Pipeline{Name: "egress"}
	evaluator := policy.NewEvaluator(policy.NewStore(policy.NewRuleSet(nil)))

	trail, err := audit.NewTrail(context.Background(), backend.NewMock())
	if err != nil {
		t.Fatalf("NewTrail: %v", err)
	}

	b := NewBackendClient(upstream.URL, 5*time.Second)
	cfg := Config{
		IngressTimeout: time.Second, MidstreamTimeout: time.Second, EgressTimeout: time.Second,
		BackendTimeout: 5 * time.Second, DrainTimeout: time.Second,
		ContextChunks: 0, MaxBufferSize: 5, TokenHoldback: 100,
	}
	s := NewServer(cfg, registry, engine, ingress, midstream, egress, evaluator, trail, b, zap.NewNop().Sugar())

	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(string(chatBody(t, "hello", true))))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "backpressure_overflow") {
		t.Fatalf("expected a backpressure_overflow stop-marker frame, got: %s", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Fatalf("expected the response to end with a [DONE] frame, got: %q", body)
	}
}
