package store

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"gateport/internal/constants"
	"gateport/internal/session"
)

// RedisStore keeps session records in Redis with a TTL matching the session
// deadline, so stale records disappear on their own.
type RedisStore struct {
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRedis(host, port, username, password string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Username: username,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := client.Ping(ctx).Err(); err != nil {
		cancel()
		return nil, err
	}

	return &RedisStore{client: client, ctx: ctx, cancel: cancel}, nil
}

func (st *RedisStore) Save(snap session.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("Failed to marshal session record: %v", err)
		return
	}

	// Records live until the session deadline; a record past its deadline
	// has nothing left to say.
	ttl := time.Until(snap.ExpiresAt)
	if ttl <= 0 {
		st.Delete(snap.Code)
		return
	}

	key := constants.RedisKeyPrefix + snap.Code
	if err := st.client.Set(st.ctx, key, data, ttl).Err(); err != nil {
		log.Printf("Failed to save session record to Redis: %v", err)
	}
}

func (st *RedisStore) Get(code string) (session.Snapshot, bool) {
	key := constants.RedisKeyPrefix + code

	data, err := st.client.Get(st.ctx, key).Result()
	if err == redis.Nil {
		return session.Snapshot{}, false
	}
	if err != nil {
		log.Printf("Failed to get session record from Redis: %v", err)
		return session.Snapshot{}, false
	}

	var snap session.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		log.Printf("Failed to parse session record %s: %v", code, err)
		return session.Snapshot{}, false
	}
	return snap, true
}

func (st *RedisStore) List() []session.Snapshot {
	var out []session.Snapshot

	pattern := constants.RedisKeyPrefix + "*"
	iter := st.client.Scan(st.ctx, 0, pattern, 100).Iterator()
	for iter.Next(st.ctx) {
		code := iter.Val()[len(constants.RedisKeyPrefix):]
		if snap, ok := st.Get(code); ok {
			out = append(out, snap)
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("Redis scan error: %v", err)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (st *RedisStore) Delete(code string) {
	key := constants.RedisKeyPrefix + code
	if err := st.client.Del(st.ctx, key).Err(); err != nil {
		log.Printf("Failed to delete session record from Redis: %v", err)
	}
}

func (st *RedisStore) Close() error {
	st.cancel()
	return st.client.Close()
}
