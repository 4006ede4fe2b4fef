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

// chunk is one upstream delta held in the HoldbackBuffer pending release.
type chunk struct {
	text     string
	released bool
}

// HoldbackBuffer buffers upstream chunks to give midstream classifiers a
// look-ahead window (token_holdback chunks) before a chunk is released to
// the client, and bounds total memory via max_buffer_size. It is
// single-writer: the midstream loop of a single request is the only caller,
// per spec — concurrent writers are a programmer error and are not guarded
// against.
type HoldbackBuffer struct {
	chunks        []chunk
	contextChunks int
	maxBufferSize int
	holdback      int
	bufferedBytes int
}

// NewHoldbackBuffer returns a buffer configured with contextChunks (0 = all
// chunks), maxBufferSize bytes, and holdback chunks of look-ahead.
func NewHoldbackBuffer(contextChunks, maxBufferSize, holdback int) *HoldbackBuffer {
	return &HoldbackBuffer{contextChunks: contextChunks, maxBufferSize: maxBufferSize, holdback: holdback}
}

// Push appends a chunk, dropping already-released chunks from the front
// while the total byte count exceeds max_buffer_size. If the buffer is
// still over budget and the oldest remaining chunk has not yet been
// released to the client, Push stops evicting (dropping it would violate
// ordering guarantee O1 — the client would never see a chunk it was owed)
// and reports overflow instead, leaving the caller to close the stream.
func (b *HoldbackBuffer) Push(text string) (overflow bool) {
	b.chunks = append(b.chunks, chunk{text: text})
	b.bufferedBytes += len(text)
	for b.maxBufferSize > 0 && b.bufferedBytes > b.maxBufferSize && len(b.chunks) > 1 {
		if !b.chunks[0].released {
			return true
		}
		b.bufferedBytes -= len(b.chunks[0].text)
		b.chunks = b.chunks[1:]
	}
	return false
}

// Context returns the concatenation of the last context_chunks chunks (or
// all buffered chunks if context_chunks == 0), per H2: only this window is
// ever exposed to a classifier, never the full buffer.
func (b *HoldbackBuffer) Context() string {
	n := len(b.chunks)
	if n == 0 {
		return ""
	}
	start := 0
	if b.contextChunks > 0 && n > b.contextChunks {
		start = n - b.contextChunks
	}
	total := 0
	for _, c := range b.chunks[start:] {
		total += len(c.text)
	}
	out := make([]byte, 0, total)
	for _, c := range b.chunks[start:] {
		out = append(out, c.text...)
	}
	return string(out)
}

// Newest returns the most recently pushed chunk's text — the subject of the
// current midstream classification.
func (b *HoldbackBuffer) Newest() string {
	if len(b.chunks) == 0 {
		return ""
	}
	return b.chunks[len(b.chunks)-1].text
}

// MutateNewest replaces the newest chunk's text, used by Redact.
func (b *HoldbackBuffer) MutateNewest(newText string) {
	if len(b.chunks) == 0 {
		return
	}
	i := len(b.chunks) - 1
	b.bufferedBytes += len(newText) - len(b.chunks[i].text)
	b.chunks[i].text = newText
}

// DropNewest removes the newest chunk, used by a midstream Stop — equivalent
// to never forwarding it.
func (b *HoldbackBuffer) DropNewest() {
	if len(b.chunks) == 0 {
		return
	}
	i := len(b.chunks) - 1
	b.bufferedBytes -= len(b.chunks[i].text)
	b.chunks = b.chunks[:i]
}

// Len reports how many chunks are currently buffered.
func (b *HoldbackBuffer) Len() int { return len(b.chunks) }

// BufferedBytes reports the current total buffered byte count.
func (b *HoldbackBuffer) BufferedBytes() int { return b.bufferedBytes }

// ReadyToRelease reports whether chunk index i has at least `holdback`
// newer chunks buffered after it (or the stream has closed), per
// token_holdback semantics.
func (b *HoldbackBuffer) ReadyToRelease(i int, streamClosed bool) bool {
	if i < 0 || i >= len(b.chunks) {
		return false
	}
	if streamClosed {
		return true
	}
	newer := len(b.chunks) - 1 - i
	return newer >= b.holdback
}

// TextAt returns chunk i's current text (post-mutation, if any).
func (b *HoldbackBuffer) TextAt(i int) string {
	if i < 0 || i >= len(b.chunks) {
		return ""
	}
	return b.chunks[i].text
}

// PopReady releases the oldest unreleased chunk if it satisfies
// ReadyToRelease, marking it released and returning its (possibly mutated)
// text. ok is false when no chunk is ready yet.
func (b *HoldbackBuffer) PopReady(streamClosed bool) (text string, ok bool) {
	for i, c := range b.chunks {
		if c.released {
			continue
		}
		if !b.ReadyToRelease(i, streamClosed) {
			return "", false
		}
		b.chunks[i].released = true
		return b.chunks[i].text, true
	}
	return "", false
}
