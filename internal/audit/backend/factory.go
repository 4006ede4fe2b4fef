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
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/checkstream/checkstream/internal/audit"
)

// Options holds the knobs needed to build any of the supported backends.
// Only the fields relevant to the selected Kind need to be populated.
type Options struct {
	FilePath    string
	RedisClient RedisEvaler
	RedisPrefix string
	PostgresDB  *sql.DB
	KafkaTopic  string
	KafkaClient KafkaProducer
	Logger      *zap.SugaredLogger
}

// BuildBackend constructs the audit.Backend selected by kind:
//   - "mock": in-process, non-durable — tests and checkstream-mockbackend
//   - "file": append-only JSONL file at opts.FilePath
//   - "redis": idempotent store over opts.RedisClient (an Eval-capable
//     client; pass a *redis.Client or a LoggingEvaler for dependency-free
//     local runs)
//   - "postgres": idempotent store over opts.PostgresDB — caller must supply
//     an already-open *sql.DB wired to a concrete driver; this package
//     never imports one itself so operators choose their own driver
//
// If opts.KafkaTopic and opts.KafkaClient are set, the returned backend is
// wrapped in a MirroringBackend publishing every append to Kafka as a SIEM
// mirror, regardless of which primary kind was selected.
func BuildBackend(kind string, opts Options) (audit.Backend, error) {
	var primary audit.Backend
	var err error

	switch kind {
	case "", "mock":
		primary = NewMock()
	case "file":
		if opts.FilePath == "" {
			return nil, errors.New("file backend requires FilePath")
		}
		primary, err = NewFile(opts.FilePath)
	case "redis":
		if opts.RedisClient == nil {
			return nil, errors.New("redis backend requires RedisClient")
		}
		primary = NewIdemShim(NewRedisStore(opts.RedisClient, opts.RedisPrefix))
	case "postgres":
		if opts.PostgresDB == nil {
			return nil, errors.New("postgres backend requires PostgresDB")
		}
		primary = NewIdemShim(NewPostgresStore(opts.PostgresDB))
	default:
		return nil, fmt.Errorf("unknown audit backend: %s", kind)
	}
	if err != nil {
		return nil, err
	}

	if opts.KafkaTopic != "" && opts.KafkaClient != nil {
		mirror := NewKafkaMirror(opts.KafkaClient, opts.KafkaTopic, opts.Logger)
		primary = NewMirroringBackend(primary, mirror)
	}
	return primary, nil
}
