package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore claims keys with SET NX and finishes them with token-checked
// scripts, so a holder whose lease expired cannot overwrite a newer claim.
type RedisStore struct {
	Client    *redis.Client
	KeyFormat string // e.g. redisx.KeyIdemCheckout
	Now       func() time.Time
}

var (
	completeScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return 0 end
local e = cjson.decode(cur)
if e.token ~= ARGV[1] or e.state ~= 'in_flight' then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PXAT', ARGV[3])
return 1`)

	releaseScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return 0 end
local e = cjson.decode(cur)
if e.token ~= ARGV[1] or e.state ~= 'in_flight' then return 0 end
return redis.call('DEL', KEYS[1])`)
)

func (s *RedisStore) key(k string) string {
	if s.KeyFormat == "" {
		return k
	}
	return fmt.Sprintf(s.KeyFormat, k)
}

func (s *RedisStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *RedisStore) Claim(ctx context.Context, key, token string, lease time.Duration) (Entry, bool, error) {
	e := Entry{State: StateInFlight, Token: token, CreatedAt: s.now().UTC()}
	b, err := json.Marshal(e)
	if err != nil {
		return Entry{}, false, err
	}

	ok, err := s.Client.SetNX(ctx, s.key(key), b, lease).Result()
	if err != nil {
		return Entry{}, false, err
	}
	if ok {
		return e, true, nil
	}

	raw, err := s.Client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var cur Entry
	if err := json.Unmarshal(raw, &cur); err != nil {
		return Entry{}, false, fmt.Errorf("decode idempotency entry: %w", err)
	}
	cur.Token = ""
	return cur, false, nil
}

func (s *RedisStore) Complete(ctx context.Context, key, token string, payload []byte, expiresAt time.Time) error {
	e := Entry{State: StateDone, Token: token, Payload: payload, CreatedAt: s.now().UTC()}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	n, err := completeScript.Run(ctx, s.Client, []string{s.key(key)}, token, b, expiresAt.UnixMilli()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrClaimLost
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, s.Client, []string{s.key(key)}, token).Err()
}
