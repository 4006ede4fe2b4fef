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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/checkstream/checkstream/internal/audit"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS audit_records (
//   id BIGINT PRIMARY KEY,
//   commit_id TEXT UNIQUE NOT NULL,
//   ts TIMESTAMPTZ NOT NULL,
//   body JSONB NOT NULL
// );
// CREATE INDEX IF NOT EXISTS idx_audit_records_ts ON audit_records(ts);
//
// Idempotent insert per record:
//   INSERT INTO audit_records(id, commit_id, ts, body) VALUES ($1,$2,$3,$4)
//     ON CONFLICT (commit_id) DO NOTHING;

// PostgresStore appends audit records idempotently using the ON CONFLICT DO
// NOTHING pattern above — a retried Append for the same commit_id is a
// no-op rather than a duplicate row.
type PostgresStore struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

// NewPostgresStore wraps db. Callers are responsible for having applied the
// schema above.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, defaultTimeout: 10 * time.Second}
}

func (p *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok || p.defaultTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.defaultTimeout)
}

func (p *PostgresStore) AppendIdempotent(ctx context.Context, commitID string, r audit.Record) error {
	if commitID == "" {
		return errors.New("commitID must be set")
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO audit_records(id, commit_id, ts, body) VALUES ($1,$2,$3,$4) ON CONFLICT (commit_id) DO NOTHING`,
		r.ID, commitID, r.Timestamp, body)
	if err != nil {
		return fmt.Errorf("insert audit_records(%s): %w", commitID, err)
	}
	return nil
}

func (p *PostgresStore) LoadAll(ctx context.Context) ([]audit.Record, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `SELECT body FROM audit_records ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var r audit.Record
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) TruncateBefore(ctx context.Context, beforeID int64) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `DELETE FROM audit_records WHERE id < $1`, beforeID)
	return err
}
