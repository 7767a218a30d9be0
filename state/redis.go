package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/redis/go-redis/v9"
)

// redisState reads and writes directly against redis. Unlike the badger
// backend there is no local replica: several relay instances may share
// one verdict database, and a stale read only costs a reclassification.
type redisState[K comparable, V any] struct {
	urlParsed *url.URL
	rPrefix   string
	db        *redis.Client
	ctx       context.Context
	cancel    context.CancelFunc
}

func (r *redisState[K, V]) init() error {
	r.rPrefix = r.urlParsed.Query().Get("prefix")
	if r.rPrefix == "" {
		return fmt.Errorf("'prefix' is required on the redis state engine, place it on your URL query string")
	}
	opts, err := redis.ParseURL(r.urlParsed.String())
	if err != nil {
		return err
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.db = redis.NewClient(opts)
	return r.db.Ping(r.ctx).Err()
}

func (r *redisState[K, V]) Close() error {
	r.cancel()
	return r.db.Close()
}

func (r *redisState[K, V]) key(key K) (string, error) {
	k, err := json.Marshal(key)
	if err != nil {
		return "", err
	}
	return r.rPrefix + string(k), nil
}

func (r *redisState[K, V]) Get(key K) (V, error) {
	var v V
	kStr, err := r.key(key)
	if err != nil {
		return v, err
	}
	vRaw, err := r.db.Get(r.ctx, kStr).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, ErrorKeyNotFound
	} else if err != nil {
		return v, err
	}
	err = json.Unmarshal(vRaw, &v)
	return v, err
}

func (r *redisState[K, V]) Add(key K, value V) error {
	kStr, err := r.key(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.db.Set(r.ctx, kStr, v, 0).Err()
}

func (r *redisState[K, V]) Delete(key K) error {
	kStr, err := r.key(key)
	if err != nil {
		return err
	}
	return r.db.Del(r.ctx, kStr).Err()
}

func (r *redisState[K, V]) Pop(key K) (V, error) {
	v, err := r.Get(key)
	if err != nil {
		return v, err
	}
	return v, r.Delete(key)
}
