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
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// sseEvent is one decoded server-sent event. It follows the same data:/
// event: frame grammar as github.com/r3labs/sse/v2, reimplemented minimally
// here since that client is built around subscribing to a long-lived named
// stream with reconnect/backoff — semantics this proxy's one-shot,
// bounded-budget relay of a single upstream response body does not need.
type sseEvent struct {
	Event string
	Data  string
}

// sseDecoder reads one upstream response body and yields decoded events.
type sseDecoder struct {
	r *bufio.Reader
}

func newSSEDecoder(body io.Reader) *sseDecoder {
	return &sseDecoder{r: bufio.NewReader(body)}
}

// Next reads until a blank line terminates one event, or io.EOF when the
// body is exhausted. Lines are accumulated per the "data:"/"event:" frame
// grammar; unknown field names are ignored, matching the SSE spec's
// forward-compatibility rule.
func (d *sseDecoder) Next() (sseEvent, error) {
	var ev sseEvent
	var data []string
	sawAny := false
	for {
		line, err := d.r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if sawAny {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			if err != nil {
				return sseEvent{}, err
			}
			continue
		}
		sawAny = true
		switch {
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "event:"):
			ev.Event = strings.TrimPrefix(strings.TrimPrefix(line, "event:"), " ")
		default:
			// unrecognized field, ignored
		}
		if err != nil {
			ev.Data = strings.Join(data, "\n")
			return ev, nil
		}
	}
}

// sseEncoder writes frames to the client, flushing after every write so
// chunks are delivered as they are produced rather than buffered by the
// transport.
type sseEncoder struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEEncoder(w http.ResponseWriter) *sseEncoder {
	f, _ := w.(http.Flusher)
	return &sseEncoder{w: w, flusher: f}
}

func (e *sseEncoder) WriteData(jsonBody string) error {
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", jsonBody); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

func (e *sseEncoder) WriteDone() error {
	return e.WriteData("[DONE]")
}
