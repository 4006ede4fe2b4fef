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
	"strconv"

	"github.com/checkstream/checkstream/internal/audit"
)

// IdemShim adapts an IdempotentStore to audit.Backend, the interface Trail
// actually depends on. It derives each commit marker from the record's own
// monotonic ID rather than generating a fresh one per call — unlike the
// teacher's demo shim (which had no natural per-entry identity to reuse and
// so minted a random CommitID each time), an audit record's ID is already
// stable across retries of the same Append call.
type IdemShim struct {
	store IdempotentStore
}

// NewIdemShim wraps store as an audit.Backend.
func NewIdemShim(store IdempotentStore) *IdemShim {
	return &IdemShim{store: store}
}

func (s *IdemShim) Append(ctx context.Context, r audit.Record) error {
	return s.store.AppendIdempotent(ctx, strconv.FormatInt(r.ID, 10), r)
}

func (s *IdemShim) All(ctx context.Context) ([]audit.Record, error) {
	return s.store.LoadAll(ctx)
}

func (s *IdemShim) TruncateBefore(ctx context.Context, beforeID int64) error {
	return s.store.TruncateBefore(ctx, beforeID)
}
