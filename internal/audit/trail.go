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

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/checkstream/checkstream/internal/cserr"
)

// Backend persists records durably. Implementations live in
// internal/audit/backend; Trail depends only on this interface so the
// storage choice (file, Postgres, Redis, Kafka) never leaks into the
// hashing/ordering logic here.
type Backend interface {
	// Append durably stores r. Implementations should treat a repeated
	// Append of a record with the same ID as a no-op (idempotent retry),
	// not an error.
	Append(ctx context.Context, r Record) error
	// All returns every stored record in append order.
	All(ctx context.Context) ([]Record, error)
	// TruncateBefore permanently removes every stored record with
	// ID < beforeID. Implementations must be safe to call with a beforeID
	// that removes zero records.
	TruncateBefore(ctx context.Context, beforeID int64) error
}

// Trail is the single-writer, hash-chained audit log of spec §4.6. Reads
// (Query, Verify) may interleave freely with the writer.
type Trail struct {
	backend Backend

	mu       sync.Mutex
	nextID   int64
	lastHash string
}

// NewTrail constructs a Trail over backend, replaying its existing records
// to recover the last-used ID and hash so the chain continues correctly
// across a restart.
func NewTrail(ctx context.Context, backend Backend) (*Trail, error) {
	t := &Trail{backend: backend, lastHash: zeroHash}
	existing, err := backend.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if r.ID >= t.nextID {
			t.nextID = r.ID + 1
		}
		t.lastHash = r.Hash
	}
	return t, nil
}

// Append completes p into a full Record (assigning ID, Timestamp,
// PreviousHash, Hash) and persists it. On a backend failure it returns
// *cserr.AuditWriteError without advancing lastHash — the next successful
// Append chains off the same PreviousHash, leaving a gap in the ID sequence
// rather than a broken chain link, per spec §7's "audit chain is marked
// with a gap record on next successful write".
func (t *Trail) Append(ctx context.Context, p Partial) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := Record{
		ID:           t.nextID,
		Timestamp:    time.Now(),
		PreviousHash: t.lastHash,
		RequestID:    p.RequestID,
		Tenant:       p.Tenant,
		InputDigest:  p.InputDigest,
		OutputDigest: p.OutputDigest,
		Verdicts:     p.Verdicts,
		Actions:      p.Actions,
		Regulations:  p.Regulations,
	}
	r.Hash = computeHash(r.PreviousHash, r)

	t.nextID = r.ID + 1
	if err := t.backend.Append(ctx, r); err != nil {
		return Record{}, &cserr.AuditWriteError{Cause: err}
	}
	t.lastHash = r.Hash
	return r, nil
}

// Query returns records matching f, in append order.
func (t *Trail) Query(ctx context.Context, f Filter) ([]Record, error) {
	all, err := t.backend.All(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]Record, 0, len(all))
	for _, r := range all {
		if f.matches(r) {
			matched = append(matched, r)
		}
	}
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

// VerifyResult is the outcome of recomputing the hash chain over a range.
type VerifyResult struct {
	Valid           bool
	RecordsVerified int
	FirstBadIndex   *int
}

// Verify recomputes every record's hash from its canonical bytes and the
// previous record's hash, reporting the first index where either the hash
// is wrong or the chain link (PreviousHash) does not match. It is
// read-only: no field of any Record is modified, and calling it twice in a
// row on the same range returns identical results (spec §8 property 6).
func (t *Trail) Verify(ctx context.Context, f Filter) (VerifyResult, error) {
	records, err := t.Query(ctx, f)
	if err != nil {
		return VerifyResult{}, err
	}

	prevHash := zeroHash
	if f.Start.IsZero() && f.Offset == 0 {
		// Ranges starting at the true genesis check against the zero hash;
		// a sub-range (Start set, or Offset>0) has no way to know the true
		// predecessor's hash without the archived anchor, so it only
		// checks internal consistency among the returned records.
	} else if len(records) > 0 {
		prevHash = records[0].PreviousHash
	}

	for i, r := range records {
		if r.PreviousHash != prevHash {
			idx := i
			return VerifyResult{Valid: false, RecordsVerified: i, FirstBadIndex: &idx}, nil
		}
		if computeHash(r.PreviousHash, r) != r.Hash {
			idx := i
			return VerifyResult{Valid: false, RecordsVerified: i, FirstBadIndex: &idx}, nil
		}
		prevHash = r.Hash
	}
	return VerifyResult{Valid: true, RecordsVerified: len(records)}, nil
}

// Retain truncates every record older than cutoff from the head, per spec
// §4.6's retention rule. It returns the hash of the last truncated record —
// the chain's "anchor" — which the caller must archive externally, since
// the retained suffix's first record's PreviousHash can no longer be
// verified against anything still held in the trail itself.
func (t *Trail) Retain(ctx context.Context, cutoff time.Time) (anchorHash string, truncated int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	all, err := t.backend.All(ctx)
	if err != nil {
		return "", 0, err
	}

	var beforeID int64 = -1
	for _, r := range all {
		if r.Timestamp.Before(cutoff) {
			anchorHash = r.Hash
			beforeID = r.ID + 1
			truncated++
		} else {
			break
		}
	}
	if truncated == 0 {
		return "", 0, nil
	}
	if err := t.backend.TruncateBefore(ctx, beforeID); err != nil {
		return "", 0, err
	}
	return anchorHash, truncated, nil
}
