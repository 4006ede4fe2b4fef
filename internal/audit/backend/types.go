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

// Package backend's durable adapters (Postgres, Redis, Kafka) share one
// idempotency shape: apply an audit record keyed by a commit marker so a
// retried Append after a transient failure — per spec §7's AuditWriteError,
// "logged; does not fail request" — becomes a no-op instead of a duplicate.
// This generalizes the teacher's IdempotentPersister/CommitEntry
// (persistence/types.go) from "apply a signed counter delta once" to
// "append an audit record once".
package backend

import (
	"context"

	"github.com/checkstream/checkstream/internal/audit"
)

// IdempotentStore is the minimal API a durable adapter implements. A
// CommitID re-used for a record that was already applied must be a no-op;
// callers use the record's own monotonic ID (formatted as a string) as the
// CommitID, since audit record IDs are already globally unique and ordered.
type IdempotentStore interface {
	AppendIdempotent(ctx context.Context, commitID string, r audit.Record) error
	LoadAll(ctx context.Context) ([]audit.Record, error)
	TruncateBefore(ctx context.Context, beforeID int64) error
}
