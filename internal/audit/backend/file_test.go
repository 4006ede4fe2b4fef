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

package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/checkstream/checkstream/internal/audit"
)

func TestFile_AppendAndAllRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	f, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer f.Close()

	want := audit.Record{ID: 1, Timestamp: time.Now().Truncate(time.Second), RequestID: "req-1", Hash: "h1"}
	if err := f.Append(ctx, want); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := f.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != 1 || got[0].RequestID != "req-1" || got[0].Hash != "h1" {
		t.Fatalf("All() = %+v, want one record matching %+v", got, want)
	}
}

func TestFile_AllFlushesBufferedWritesFirst(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	f, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer f.Close()

	for i := int64(0); i < 3; i++ {
		if err := f.Append(ctx, audit.Record{ID: i, RequestID: "r"}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	// All() must flush the buffered writer even though the 100ms
	// periodic-flush window has not elapsed.
	got, err := f.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("All() returned %d records, want 3", len(got))
	}
}

func TestFile_TruncateBeforeDropsOlderRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	f, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer f.Close()

	for i := int64(0); i < 5; i++ {
		if err := f.Append(ctx, audit.Record{ID: i, RequestID: "r"}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if err := f.TruncateBefore(ctx, 3); err != nil {
		t.Fatalf("TruncateBefore: %v", err)
	}
	got, err := f.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("All() after truncate = %d records, want 2", len(got))
	}
	for _, r := range got {
		if r.ID < 3 {
			t.Fatalf("found record with ID %d < 3 after TruncateBefore(3)", r.ID)
		}
	}
}

func TestFile_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	f1, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if err := f1.Append(ctx, audit.Record{ID: 1, RequestID: "persisted"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := f1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile (reopen): %v", err)
	}
	defer f2.Close()
	got, err := f2.All(ctx)
	if err != nil {
		t.Fatalf("All (reopen): %v", err)
	}
	if len(got) != 1 || got[0].RequestID != "persisted" {
		t.Fatalf("All() after reopen = %+v, want the previously appended record", got)
	}
}
