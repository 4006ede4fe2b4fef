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
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/checkstream/checkstream/internal/cserr"
)

// BackendClient forwards requests to the upstream LLM backend, wrapped in a
// circuit breaker so repeated connect failures fail fast instead of piling
// up goroutines on a dead backend.
type BackendClient struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
}

// NewBackendClient returns a client bound to baseURL with the given
// per-call timeout.
func NewBackendClient(baseURL string, timeout time.Duration) *BackendClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "checkstream-backend",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &BackendClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		cb:      cb,
	}
}

// Do issues req through the circuit breaker, mapping connect-level failures
// to cserr.BackendUnreachable and non-2xx responses to cserr.BackendError.
// A successful call returns the raw *http.Response with its body unread —
// the caller owns closing it.
func (b *BackendClient) Do(req *http.Request) (*http.Response, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		resp, err := b.http.Do(req)
		if err != nil {
			return nil, &cserr.BackendUnreachable{Cause: err}
		}
		if resp.StatusCode >= 300 {
			status := resp.StatusCode
			resp.Body.Close()
			return nil, &cserr.BackendError{Status: status}
		}
		return resp, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &cserr.BackendUnreachable{Cause: err}
		}
		return nil, err
	}
	return v.(*http.Response), nil
}

// Ready reports whether the breaker currently allows traffic. The
// /health/ready probe does not call it; it uses Ping.
func (b *BackendClient) Ready() bool {
	return b.cb.State() != gobreaker.StateOpen
}

// Ping issues a lightweight HEAD request to confirm upstream reachability
// for the readiness probe, without going through the circuit breaker (a
// readiness check should not itself trip or reset the breaker's state).
func (b *BackendClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, b.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return &cserr.BackendUnreachable{Cause: err}
	}
	resp.Body.Close()
	return nil
}

// BaseURL returns the configured upstream base URL.
func (b *BackendClient) BaseURL() string { return b.baseURL }

// ResolveURL joins the configured base URL with path, so a single
// backend_url config value can serve every proxied route (chat completions,
// the completions alias, embeddings) the way an OpenAI-compatible backend
// expects: same host, route-matching path.
func (b *BackendClient) ResolveURL(path string) string {
	return strings.TrimRight(b.baseURL, "/") + path
}
