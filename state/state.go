// Package state provides the persistence layer for per-template verdicts.
// A generic key-value store backs the memoization: in-memory by default,
// optionally badger or redis so verdicts survive relay restarts or can be
// shared between relay instances.
package state

import (
	"fmt"
	"net/url"
	"sync"
)

var (
	SupportedSchemes = []string{"memory", "badger", "redis"}
	ErrorKeyNotFound = fmt.Errorf("key not found")
)

type State[K comparable, V any] interface {
	Close() error
	Get(key K) (V, error)
	Add(key K, value V) error
	Delete(key K) error
	Pop(key K) (V, error)
}

// NewState creates a store from an engine URL (eg. memory://,
// badger:///var/lib/relay/verdicts, redis://localhost:6379?prefix=x).
func NewState[K comparable, V any](rawUrl string) (State[K, V], error) {
	urlParsed, err := url.Parse(rawUrl)
	if err != nil {
		return nil, err
	}
	memory := memoryState[K, V]{
		data: make(map[K]V),
		lock: new(sync.RWMutex),
	}
	switch urlParsed.Scheme {
	case "memory":
		return &memory, nil
	case "badger":
		bd := &badgerState[K, V]{
			memory:    memory,
			urlParsed: urlParsed,
		}
		if err = bd.init(); err != nil {
			return nil, err
		}
		return bd, nil
	case "redis", "rediss":
		rd := &redisState[K, V]{
			urlParsed: urlParsed,
		}
		if err = rd.init(); err != nil {
			return nil, err
		}
		return rd, nil
	default:
		return nil, fmt.Errorf("unknown state engine %s", urlParsed.Scheme)
	}
}
