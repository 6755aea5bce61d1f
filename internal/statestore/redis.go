package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/tileview/internal/view"
)

// RedisStore keeps one hash per document whose fields are view names and
// whose values are JSON encoded states.
type RedisStore struct {
	client *redis.Client
	keyNS  string
}

// NewRedisStore connects to redisURL and pings it.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: c, keyNS: "tileview"}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(c *redis.Client) *RedisStore {
	return &RedisStore{client: c, keyNS: "tileview"}
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStore) key(doc string) string { return fmt.Sprintf("%s:%s:views", s.keyNS, doc) }

func (s *RedisStore) Save(ctx context.Context, doc, viewName string, st view.State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode view state: %w", err)
	}
	m := map[string]interface{}{
		viewName:              string(b),
		viewName + ":updated": strconv.FormatInt(time.Now().Unix(), 10),
	}
	if err := s.client.HSet(ctx, s.key(doc), m).Err(); err != nil {
		return fmt.Errorf("save view state %s/%s: %w", doc, viewName, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, doc, viewName string) (view.State, error) {
	res, err := s.client.HGet(ctx, s.key(doc), viewName).Result()
	if errors.Is(err, redis.Nil) {
		return view.State{}, ErrNotFound
	}
	if err != nil {
		return view.State{}, fmt.Errorf("load view state %s/%s: %w", doc, viewName, err)
	}
	var st view.State
	if err := json.Unmarshal([]byte(res), &st); err != nil {
		return view.State{}, fmt.Errorf("decode view state %s/%s: %w", doc, viewName, err)
	}
	return st, nil
}

// Updated returns when the state of viewName was last saved.
func (s *RedisStore) Updated(ctx context.Context, doc, viewName string) (time.Time, bool, error) {
	v, err := s.client.HGet(ctx, s.key(doc), viewName+":updated").Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.Unix(sec, 0), true, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
