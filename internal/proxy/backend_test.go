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
	"testing"
	"time"
)

func TestBackendClient_ResolveURL(t *testing.T) {
	b := NewBackendClient("http://localhost:9090/", time.Second)
	if got := b.ResolveURL("/v1/chat/completions"); got != "http://localhost:9090/v1/chat/completions" {
		t.Fatalf("ResolveURL = %q", got)
	}
}

func TestBackendClient_DoForwardsSuccessfulResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	b := NewBackendClient(upstream.URL, time.Second)
	req, err := http.NewRequest(http.MethodGet, upstream.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := b.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if !b.Ready() {
		t.Fatalf("expected breaker to remain closed (ready) after a successful call")
	}
}

func TestBackendClient_DoMapsNonSuccessStatusToBackendError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	b := NewBackendClient(upstream.URL, time.Second)
	req, err := http.NewRequest(http.MethodGet, upstream.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := b.Do(req); err == nil {
		t.Fatalf("expected an error for a 503 upstream response")
	}
}

func TestBackendClient_PingSucceedsAgainstLiveUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	b := NewBackendClient(upstream.URL, time.Second)
	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestBackendClient_BaseURL(t *testing.T) {
	b := NewBackendClient("http://example.com", time.Second)
	if got := b.BaseURL(); got != "http://example.com" {
		t.Fatalf("BaseURL = %q", got)
	}
}
