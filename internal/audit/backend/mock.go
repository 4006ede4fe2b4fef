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

// Package backend implements internal/audit.Backend against several
// concrete stores, mirroring the teacher's pluggable-persister layout
// (internal/ratelimiter/persistence/*.go): a zero-dependency in-memory/mock
// store for tests and local development, and durable stores built on the
// pack's own third-party clients.
package backend

import (
	"context"
	"sort"
	"sync"

	"github.com/checkstream/checkstream/internal/audit"
)

// Mock is an in-memory Backend. It is the default when no durable backend
// is configured and the backbone of every package test — no network, no
// filesystem, just a mutex-guarded map keyed by record ID, in the spirit of the teacher's
// mockPersister.
type Mock struct {
	mu      sync.Mutex
	records map[int64]audit.Record
}

// NewMock returns an empty in-memory Backend.
func NewMock() *Mock {
	return &Mock{records: make(map[int64]audit.Record)}
}

func (m *Mock) Append(_ context.Context, r audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = r
	return nil
}

func (m *Mock) All(_ context.Context) ([]audit.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Mock) TruncateBefore(_ context.Context, beforeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.records {
		if id < beforeID {
			delete(m.records, id)
		}
	}
	return nil
}
