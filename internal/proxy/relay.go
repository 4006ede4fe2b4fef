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
	"encoding/json"
	"io"
	"net/http"

	"github.com/checkstream/checkstream/internal/cserr"
	"github.com/checkstream/checkstream/internal/telemetry"
)

// chatChunkDelta is the subset of an OpenAI-compatible streamed chunk this
// proxy needs to read and rewrite.
type chatChunkDelta struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// relayStream consumes the upstream SSE body chunk by chunk, running the
// midstream pipeline over each delta through a HoldbackBuffer, forwarding
// (possibly redacted) chunks to the client in order, and launching the
// egress phase as a fire-and-forget task once the stream ends, per spec
// §4.5 phases 2-3.
func (s *Server) relayStream(ctx context.Context, w http.ResponseWriter, rc *RequestContext, upstream io.Reader) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	enc := newSSEEncoder(w)
	dec := newSSEDecoder(upstream)
	buf := NewHoldbackBuffer(s.cfg.ContextChunks, s.cfg.MaxBufferSize, s.cfg.TokenHoldback)

	stopped := false
	forced := false
	for !stopped {
		if s.drainForceDeadline() {
			forced = true
			break
		}
		ev, err := dec.Next()
		if err != nil {
			break
		}
		if ev.Data == "[DONE]" {
			break
		}
		var delta chatChunkDelta
		text := ""
		if err := json.Unmarshal([]byte(ev.Data), &delta); err == nil && len(delta.Choices) > 0 {
			text = delta.Choices[0].Delta.Content
		}

		outcome, err := s.runMidstreamChunk(ctx, rc, buf, text)
		if err != nil {
			telemetry.ObserveRequest("midstream", "error")
			break
		}
		if outcome.overflow {
			stopped = true
			overflowErr := &cserr.BackpressureOverflow{RequestID: rc.ID}
			s.logger.Warnw("backpressure overflow: closing stream", "request_id", rc.ID, "error", overflowErr.Error())
			_ = enc.WriteData(mustJSON(map[string]interface{}{
				"error": map[string]string{"type": "backpressure_overflow", "message": overflowErr.Error()},
			}))
			break
		}
		if outcome.stopped {
			stopped = true
			_ = enc.WriteData(mustJSON(map[string]interface{}{
				"error": map[string]string{"type": "safety_violation", "message": "stream terminated by policy", "rule": outcome.stopRule},
			}))
			break
		}

		rc.AppendOutput(buf.TextAt(buf.Len() - 1))
		s.drainReady(buf, enc, false)
	}

	if forced {
		_ = enc.WriteData(mustJSON(map[string]interface{}{
			"error": map[string]string{"type": "server_shutdown", "message": "stream terminated: server is draining"},
		}))
	} else if !stopped {
		s.drainReady(buf, enc, true)
	}
	_ = enc.WriteDone()

	go s.runEgress(context.WithoutCancel(ctx), rc)
}

// drainReady forwards every chunk in buf that satisfies its release
// condition, rewriting it as a minimal delta frame. streamClosed releases
// every remaining buffered chunk regardless of token_holdback.
func (s *Server) drainReady(buf *HoldbackBuffer, enc *sseEncoder, streamClosed bool) {
	for {
		text, ok := buf.PopReady(streamClosed)
		if !ok {
			return
		}
		frame := mustJSON(map[string]interface{}{
			"choices": []map[string]interface{}{{"delta": map[string]string{"content": text}}},
		})
		_ = enc.WriteData(frame)
	}
}

// relayNonStreaming reads the full upstream response body, runs the
// midstream pipeline once against the complete output text (there being no
// per-chunk look-ahead to honor for a non-streaming response), forwards it
// to the client unmodified in shape, and launches egress.
func (s *Server) relayNonStreaming(ctx context.Context, w http.ResponseWriter, rc *RequestContext, upstream io.Reader) {
	body, err := io.ReadAll(upstream)
	if err != nil {
		http.Error(w, "failed to read upstream response", http.StatusBadGateway)
		return
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	text := ""
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Choices) > 0 {
		text = parsed.Choices[0].Message.Content
	}

	buf := NewHoldbackBuffer(0, s.cfg.MaxBufferSize, 0)
	outcome, err := s.runMidstreamChunk(ctx, rc, buf, text)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	finalText := text
	if outcome.stopped {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"type": "safety_violation", "message": "response blocked by policy", "rule": outcome.stopRule},
		})
		go s.runEgress(context.WithoutCancel(ctx), rc)
		return
	}
	if buf.Len() > 0 {
		finalText = buf.TextAt(0)
	}
	rc.AppendOutput(finalText)

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err == nil {
		if choices, ok := raw["choices"].([]interface{}); ok && len(choices) > 0 {
			if first, ok := choices[0].(map[string]interface{}); ok {
				if msg, ok := first["message"].(map[string]interface{}); ok {
					msg["content"] = finalText
				}
			}
		}
		body, _ = json.Marshal(raw)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)

	go s.runEgress(context.WithoutCancel(ctx), rc)
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
