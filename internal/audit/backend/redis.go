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
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/checkstream/checkstream/internal/audit"
)

// RedisEvaler abstracts the minimal surface needed from a Redis client —
// github.com/redis/go-redis/v9's *redis.Client satisfies it directly.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRemRangeByScore(ctx context.Context, key, min, max string) *redis.IntCmd
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
}

// RedisStore applies audit record appends idempotently using a Lua script:
//  1. SETNX the commit marker.
//  2. If set, HSET the record's JSON body and ZADD its ID into the ordering
//     index.
//
// If SETNX fails (already applied), the script is a no-op — a retried
// Append after a transient failure never double-appends.
type RedisStore struct {
	client    RedisEvaler
	keyPrefix string
}

// NewRedisStore returns a store writing under the given key prefix (e.g.
// "checkstream:audit").
func NewRedisStore(client RedisEvaler, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "checkstream:audit"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (r *RedisStore) indexKey() string          { return r.keyPrefix + ":index" }
func (r *RedisStore) recordsKey() string        { return r.keyPrefix + ":records" }
func (r *RedisStore) markerKey(id string) string { return r.keyPrefix + ":commit:" + id }

// appendScript returns 1 if applied, 0 if the commit marker already existed.
const appendScript = `
local markerKey = KEYS[1]
local recordsKey = KEYS[2]
local indexKey = KEYS[3]
local id = ARGV[1]
local body = ARGV[2]
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('HSET', recordsKey, id, body)
  redis.call('ZADD', indexKey, tonumber(id), id)
  return 1
else
  return 0
end
`

func (r *RedisStore) AppendIdempotent(ctx context.Context, commitID string, rec audit.Record) error {
	if commitID == "" {
		return errors.New("commitID must be set")
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	keys := []string{r.markerKey(commitID), r.recordsKey(), r.indexKey()}
	if err := r.client.Eval(ctx, appendScript, keys, commitID, string(body)).Err(); err != nil {
		return fmt.Errorf("redis append id=%s: %w", commitID, err)
	}
	return nil
}

func (r *RedisStore) LoadAll(ctx context.Context) ([]audit.Record, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{Min: "-inf", Max: "+inf"}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	bodies, err := r.client.HMGet(ctx, r.recordsKey(), ids...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]audit.Record, 0, len(bodies))
	for _, b := range bodies {
		s, ok := b.(string)
		if !ok {
			continue
		}
		var rec audit.Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RedisStore) TruncateBefore(ctx context.Context, beforeID int64) error {
	return r.client.ZRemRangeByScore(ctx, r.indexKey(), "-inf", fmt.Sprintf("(%d", beforeID)).Err()
}
