package state

import (
	"encoding/json"
	"net/url"

	"github.com/dgraph-io/badger/v4"
)

// badgerState keeps a full in-memory copy for reads and writes through to
// badger for durability. The on-disk copy is loaded once at init.
type badgerState[K comparable, V any] struct {
	memory    memoryState[K, V]
	urlParsed *url.URL
	db        *badger.DB
}

func (b *badgerState[K, V]) init() error {
	db, err := badger.Open(badger.DefaultOptions(b.urlParsed.Path))
	if err != nil {
		return err
	}
	b.db = db
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var k K
			if err := json.Unmarshal(item.Key(), &k); err != nil {
				return err
			}
			err := item.Value(func(vRaw []byte) error {
				var v V
				if err := json.Unmarshal(vRaw, &v); err != nil {
					return err
				}
				return b.memory.Add(k, v)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *badgerState[K, V]) Close() error {
	return b.db.Close()
}

func (b *badgerState[K, V]) Get(key K) (V, error) {
	return b.memory.Get(key)
}

func (b *badgerState[K, V]) Add(key K, value V) error {
	return b.db.Update(func(txn *badger.Txn) error {
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return err
		}
		if err = txn.Set(k, v); err != nil {
			return err
		}
		return b.memory.Add(key, value)
	})
}

func (b *badgerState[K, V]) Delete(key K) error {
	return b.db.Update(func(txn *badger.Txn) error {
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		if err = txn.Delete(k); err != nil {
			return err
		}
		return b.memory.Delete(key)
	})
}

func (b *badgerState[K, V]) Pop(key K) (V, error) {
	var v V
	err := b.db.Update(func(txn *badger.Txn) error {
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		if err = txn.Delete(k); err != nil {
			return err
		}
		v, err = b.memory.Pop(key)
		return err
	})
	return v, err
}
