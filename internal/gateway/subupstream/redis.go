package subupstream

import (
    "context"
    "time"

    "github.com/redis/go-redis/v9"
)

const keyPrefix = "appgw:subupstream:"

// redisStore shares dedup counts across gateway processes via Redis INCR/
// DECR, so a fleet of instances agrees on which events already have a live
// upstream subscription. Counters expire after idleTTL of inactivity so a
// crashed instance cannot leak a permanently-nonzero count.
type redisStore struct {
    cli     *redis.Client
    idleTTL time.Duration
}

// NewRedis returns a Store backed by cli. idleTTL bounds how long an
// inactive counter survives; it is refreshed on every Track/Untrack.
func NewRedis(cli *redis.Client, idleTTL time.Duration) Store {
    if idleTTL <= 0 {
        idleTTL = time.Hour
    }
    return &redisStore{cli: cli, idleTTL: idleTTL}
}

func (s *redisStore) Track(event string) (bool, error) {
    ctx := context.Background()
    key := keyPrefix + event
    n, err := s.cli.Incr(ctx, key).Result()
    if err != nil {
        return false, err
    }
    s.cli.Expire(ctx, key, s.idleTTL)
    return n == 1, nil
}

func (s *redisStore) Untrack(event string) (bool, error) {
    ctx := context.Background()
    key := keyPrefix + event
    n, err := s.cli.Decr(ctx, key).Result()
    if err != nil {
        return false, err
    }
    if n <= 0 {
        s.cli.Del(ctx, key)
        return true, nil
    }
    s.cli.Expire(ctx, key, s.idleTTL)
    return false, nil
}

func (s *redisStore) Count(event string) (int64, error) {
    ctx := context.Background()
    v, err := s.cli.Get(ctx, keyPrefix+event).Int64()
    if err == redis.Nil {
        return 0, nil
    }
    return v, err
}
