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
	"sync/atomic"
	"time"
)

// shutdownFlag is a process-wide flag new requests check before admission,
// adapted from the teacher's stopChan + atomic.CompareAndSwap-guarded Stop()
// idiom (internal/ratelimiter/core/worker.go), generalized from "stop a
// background loop" to "reject new requests, let in-flight ones drain".
type shutdownFlag struct {
	set atomic.Bool
}

func newShutdownFlag() *shutdownFlag { return &shutdownFlag{} }

func (f *shutdownFlag) isSet() bool { return f.set.Load() }
func (f *shutdownFlag) trip()       { f.set.Store(true) }

// Drain flags the server as draining (new requests get 503), waits up to
// drainTimeout for every in-flight request admitted by handleChatCompletions
// or handleEmbeddings to finish, then returns regardless. Any still-streaming
// response is terminated on its own: relayStream checks the drainTimeout
// deadline set here before reading each upstream event and, once it has
// elapsed, writes a stop-marker frame followed by [DONE]. A read already
// blocked waiting on the upstream is not interrupted; the check runs only
// after that read returns.
func (s *Server) Drain(ctx context.Context, drainTimeout time.Duration) {
	deadline := time.Now().Add(drainTimeout)
	s.drainDeadline.Store(&deadline)
	s.draining.trip()

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
		s.logger.Infow("drain complete: all in-flight requests finished")
	case <-timer.C:
		s.logger.Warnw("drain timeout exceeded; forcing shutdown with in-flight requests still open", "timeout", drainTimeout)
	case <-ctx.Done():
	}
}

// Shutdown stops accepting new connections on httpServer using the standard
// library's graceful shutdown, after the caller has already called Drain.
func Shutdown(ctx context.Context, httpServer *http.Server) error {
	return httpServer.Shutdown(ctx)
}
