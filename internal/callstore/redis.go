package callstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "call:"

	// defaultRecordTTL bounds how long an abandoned record can linger.
	// The memory store has no expiry; redis gets one because shared state
	// outlives relay restarts and endCall is the only explicit delete.
	defaultRecordTTL = 24 * time.Hour
)

// RedisStore shares call records across relay instances.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: defaultRecordTTL}
}

func (s *RedisStore) key(callSID string) string {
	return redisKeyPrefix + callSID
}

func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("callstore: marshal record: %w", err)
	}
	return s.rdb.Set(ctx, s.key(rec.CallSID), b, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, callSID string) (Record, error) {
	b, err := s.rdb.Get(ctx, s.key(callSID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("callstore: unmarshal record: %w", err)
	}
	return rec, nil
}

// updateStatusScript rewrites status and duration in place, atomically with
// the existence check. A plain get-modify-set can race endCall's delete: the
// set would re-create the key, and with KEEPTTL on a fresh key the record
// would never expire.
var updateStatusScript = redis.NewScript(`
-- KEYS[1] = record key
-- ARGV[1] = status
-- ARGV[2] = duration seconds (int)
--
-- Returns 1 if the record was updated, 0 if no record exists.
local raw = redis.call('GET', KEYS[1])
if not raw then
  return 0
end
local rec = cjson.decode(raw)
rec['status'] = ARGV[1]
rec['duration_seconds'] = tonumber(ARGV[2])
redis.call('SET', KEYS[1], cjson.encode(rec), 'KEEPTTL')
return 1
`)

func (s *RedisStore) UpdateStatus(ctx context.Context, callSID, status string, durationSeconds int) (bool, error) {
	// KEEPTTL so redelivered callbacks do not extend the record's life.
	res, err := updateStatusScript.Run(ctx, s.rdb, []string{s.key(callSID)}, status, durationSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("callstore: update status: %w", err)
	}
	return res == 1, nil
}

func (s *RedisStore) Delete(ctx context.Context, callSID string) error {
	return s.rdb.Del(ctx, s.key(callSID)).Err()
}
