// Copyright 2026 Blink Labs Software
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

package rpc

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// Cache persists runtime API results of pinned-block queries. Results at a
// fixed block never change, so entries are never invalidated
type Cache struct {
	conn *leveldb.DB
}

// OpenCache opens (or creates) a cache at the given path
func OpenCache(path string) (*Cache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Cache{conn: db}, nil
}

// NewMemoryCache returns a cache that is not persisted
func NewMemoryCache() (*Cache, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Cache{conn: db}, nil
}

// Get returns the cached value for key and whether it was found
func (c *Cache) Get(key string) ([]byte, bool, error) {
	ret, err := c.conn.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return ret, true, nil
}

// Put stores a value
func (c *Cache) Put(key string, value []byte) error {
	return c.conn.Put([]byte(key), value, nil)
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	iter := c.conn.NewIterator(nil, nil)
	defer iter.Release()
	count := 0
	for iter.Next() {
		count++
	}
	return count
}

// Close closes the underlying database
func (c *Cache) Close() error {
	return c.conn.Close()
}
