// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package memstore is an in-process store.Store, useful for tests and for
// embedding the lease client without a real DynamoDB table.
//
// Its locking shape is a process-wide map guarded by a RWMutex for
// inserts, with per-key locking delegated to the entry itself so
// unrelated keys never contend.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/coredhcp/dynalease/store"
)

type entry struct {
	sync.Mutex
	version string
	expiry  time.Time
	// present is false once the record has been deleted. There is no TTL
	// reaping: an expired record stays present until it is replaced. The
	// entry itself is kept (and reused) rather than removed from the
	// map, to keep the store's locking simple. A background sweep could
	// remove expired-and-unread entries, but nothing in this package
	// requires bounding the map's size for tests.
	present bool
}

// Store is an in-memory store.Store. The zero value is not usable; use New.
type Store struct {
	// keyLock guards inserts into records. Once an *entry exists for a
	// key it is never removed, so all other access only needs to hold
	// keyLock for the duration of the map lookup.
	keyLock sync.RWMutex
	records map[string]*entry
}

// New creates an empty Store.
func New() *Store {
	return &Store{records: make(map[string]*entry)}
}

func (s *Store) entryFor(key string) *entry {
	s.keyLock.RLock()
	e := s.records[key]
	s.keyLock.RUnlock()
	if e != nil {
		return e
	}

	s.keyLock.Lock()
	defer s.keyLock.Unlock()
	if e = s.records[key]; e != nil {
		return e
	}
	e = &entry{}
	s.records[key] = e
	return e
}

func (s *Store) AcquireOrReplace(ctx context.Context, key, version string, now time.Time, ttl time.Duration) (store.Outcome, error) {
	e := s.entryFor(key)
	e.Lock()
	defer e.Unlock()

	if e.present && e.expiry.After(now) {
		return store.Held, nil
	}

	e.present = true
	e.version = version
	e.expiry = now.Add(ttl)
	return store.Acquired, nil
}

func (s *Store) ExtendIfMine(ctx context.Context, key, expectedVersion, newVersion string, now time.Time, ttl time.Duration) (store.Outcome, error) {
	e := s.entryFor(key)
	e.Lock()
	defer e.Unlock()

	if !e.present || e.version != expectedVersion {
		return store.Lost, nil
	}

	e.version = newVersion
	e.expiry = now.Add(ttl)
	return store.Extended, nil
}

func (s *Store) DeleteIfMine(ctx context.Context, key, expectedVersion string) (store.Outcome, error) {
	e := s.entryFor(key)
	e.Lock()
	defer e.Unlock()

	if !e.present || e.version != expectedVersion {
		return store.Lost, nil
	}

	e.present = false
	e.version = ""
	return store.Deleted, nil
}

// Get returns the raw record for a key, for tests that want to assert on
// store state directly rather than through the lease client. The second
// return is false if no record is present; an expired record that has not
// been deleted or replaced is still returned.
func (s *Store) Get(key string) (store.Record, bool) {
	s.keyLock.RLock()
	e := s.records[key]
	s.keyLock.RUnlock()
	if e == nil {
		return store.Record{}, false
	}

	e.Lock()
	defer e.Unlock()
	if !e.present {
		return store.Record{}, false
	}
	return store.Record{Key: key, Version: e.version, Expiry: e.expiry}, true
}

// Seed directly inserts a record, bypassing any condition. Used by tests to
// set up pre-existing or already-expired leases.
func (s *Store) Seed(key, version string, expiry time.Time) {
	e := s.entryFor(key)
	e.Lock()
	defer e.Unlock()
	e.present = true
	e.version = version
	e.expiry = expiry
}
