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
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewGoRedisClient returns a *redis.Client for a real Redis instance at addr.
// *redis.Client satisfies RedisEvaler directly, so no wrapper type is needed
// for the production path.
func NewGoRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// LoggingEvaler decorates a RedisEvaler, logging every Eval call before
// delegating to Inner. Useful when diagnosing idempotency-marker collisions
// against a live Redis instance without instrumenting the client itself.
type LoggingEvaler struct {
	Inner  RedisEvaler
	Logger *zap.SugaredLogger
}

func (l LoggingEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	if l.Logger != nil {
		l.Logger.Debugw("redis eval", "keys", keys, "script_len", len(script))
	}
	return l.Inner.Eval(ctx, script, keys, args...)
}

func (l LoggingEvaler) ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd {
	return l.Inner.ZRangeByScore(ctx, key, opt)
}

func (l LoggingEvaler) ZRemRangeByScore(ctx context.Context, key, min, max string) *redis.IntCmd {
	if l.Logger != nil {
		l.Logger.Debugw("redis truncate", "key", key, "min", min, "max", max)
	}
	return l.Inner.ZRemRangeByScore(ctx, key, min, max)
}

func (l LoggingEvaler) HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd {
	return l.Inner.HMGet(ctx, key, fields...)
}

// LoggingKafkaProducer is a dependency-free KafkaProducer that logs each
// produced message instead of dialing a broker. It lets local development
// exercise the mirror-sink wiring without standing up
// real Kafka infrastructure.
type LoggingKafkaProducer struct {
	Logger *zap.SugaredLogger
}

func (p LoggingKafkaProducer) Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if p.Logger != nil {
		p.Logger.Infow("kafka mirror (logging producer)", "topic", topic, "key", string(key), "bytes", len(value), "headers", headers)
		return nil
	}
	fmt.Printf("[kafka-mirror] topic=%s key=%s bytes=%d headers=%v\n", topic, string(key), len(value), headers)
	return nil
}
