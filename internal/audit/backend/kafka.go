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
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/checkstream/checkstream/internal/audit"
)

// KafkaProducer is a minimal abstraction over a Kafka client. Implementations
// should enable idempotent production (enable.idempotence=true) and key each
// message by the record's ID so broker-level dedup and per-record ordering
// are preserved. We intentionally avoid importing a specific Kafka client
// library here, matching the teacher's own KafkaProducer abstraction.
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// KafkaMirror publishes every appended audit record to a Kafka topic as a
// durable, independently-consumable mirror for downstream SIEM ingestion —
// it is not the canonical store (it cannot serve Query or Verify) so it is
// wrapped by MirroringBackend rather than used as a Trail backend directly.
type KafkaMirror struct {
	producer       KafkaProducer
	topic          string
	defaultTimeout time.Duration
	logger         *zap.SugaredLogger
}

// NewKafkaMirror returns a mirror publishing to topic via producer.
func NewKafkaMirror(producer KafkaProducer, topic string, logger *zap.SugaredLogger) *KafkaMirror {
	return &KafkaMirror{producer: producer, topic: topic, defaultTimeout: 10 * time.Second, logger: logger}
}

// Publish serializes the whole of r (Hash included) as JSON and produces it
// keyed by record ID.
func (k *KafkaMirror) Publish(ctx context.Context, r audit.Record) {
	ctx, cancel := context.WithTimeout(ctx, k.defaultTimeout)
	defer cancel()

	body, err := json.Marshal(r)
	if err != nil {
		if k.logger != nil {
			k.logger.Warnw("audit kafka mirror: marshal failed", "record_id", r.ID, "error", err)
		}
		return
	}
	key := []byte(fmt.Sprintf("%d", r.ID))
	headers := map[string]string{"content-type": "application/json"}
	if err := k.producer.Produce(ctx, k.topic, key, body, headers); err != nil {
		if k.logger != nil {
			k.logger.Warnw("audit kafka mirror: produce failed", "record_id", r.ID, "error", err)
		}
	}
}

// MirroringBackend decorates a primary audit.Backend, publishing a copy of
// every successfully appended record to a KafkaMirror. Mirror failures are
// logged, never returned: the mirror is a best-effort SIEM feed, not part
// of the chain's durability guarantee.
type MirroringBackend struct {
	primary audit.Backend
	mirror  *KafkaMirror
}

// NewMirroringBackend wraps primary, mirroring every Append to mirror.
func NewMirroringBackend(primary audit.Backend, mirror *KafkaMirror) *MirroringBackend {
	return &MirroringBackend{primary: primary, mirror: mirror}
}

func (m *MirroringBackend) Append(ctx context.Context, r audit.Record) error {
	if err := m.primary.Append(ctx, r); err != nil {
		return err
	}
	m.mirror.Publish(ctx, r)
	return nil
}

func (m *MirroringBackend) All(ctx context.Context) ([]audit.Record, error) {
	return m.primary.All(ctx)
}

func (m *MirroringBackend) TruncateBefore(ctx context.Context, beforeID int64) error {
	return m.primary.TruncateBefore(ctx, beforeID)
}
