// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredhcp/dynalease/store"
	"github.com/coredhcp/dynalease/store/memstore"
)

func TestAcquireOrReplace(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("fresh key acquires", func(t *testing.T) {
		s := memstore.New()
		outcome, err := s.AcquireOrReplace(ctx, "k", "v1", now, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, store.Acquired, outcome)
	})

	t.Run("held key is contested", func(t *testing.T) {
		s := memstore.New()
		_, err := s.AcquireOrReplace(ctx, "k", "v1", now, time.Minute)
		require.NoError(t, err)

		outcome, err := s.AcquireOrReplace(ctx, "k", "v2", now, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, store.Held, outcome)
	})

	t.Run("expired key is reclaimable", func(t *testing.T) {
		s := memstore.New()
		s.Seed("k", "stale", now.Add(-time.Hour))

		outcome, err := s.AcquireOrReplace(ctx, "k", "fresh", now, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, store.Acquired, outcome)

		rec, ok := s.Get("k")
		require.True(t, ok)
		assert.Equal(t, "fresh", rec.Version)
	})
}

func TestExtendIfMine(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("matching version extends", func(t *testing.T) {
		s := memstore.New()
		_, err := s.AcquireOrReplace(ctx, "k", "v1", now, time.Minute)
		require.NoError(t, err)

		outcome, err := s.ExtendIfMine(ctx, "k", "v1", "v2", now, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, store.Extended, outcome)

		rec, ok := s.Get("k")
		require.True(t, ok)
		assert.Equal(t, "v2", rec.Version)
	})

	t.Run("stale version is lost", func(t *testing.T) {
		s := memstore.New()
		_, err := s.AcquireOrReplace(ctx, "k", "v1", now, time.Minute)
		require.NoError(t, err)

		outcome, err := s.ExtendIfMine(ctx, "k", "wrong", "v2", now, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, store.Lost, outcome)
	})

	t.Run("missing record is lost", func(t *testing.T) {
		s := memstore.New()
		outcome, err := s.ExtendIfMine(ctx, "nope", "v1", "v2", now, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, store.Lost, outcome)
	})
}

func TestDeleteIfMine(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("matching version deletes", func(t *testing.T) {
		s := memstore.New()
		_, err := s.AcquireOrReplace(ctx, "k", "v1", now, time.Minute)
		require.NoError(t, err)

		outcome, err := s.DeleteIfMine(ctx, "k", "v1")
		require.NoError(t, err)
		assert.Equal(t, store.Deleted, outcome)

		_, ok := s.Get("k")
		assert.False(t, ok)
	})

	t.Run("stale version is lost and record survives", func(t *testing.T) {
		s := memstore.New()
		_, err := s.AcquireOrReplace(ctx, "k", "v1", now, time.Minute)
		require.NoError(t, err)

		outcome, err := s.DeleteIfMine(ctx, "k", "wrong")
		require.NoError(t, err)
		assert.Equal(t, store.Lost, outcome)

		_, ok := s.Get("k")
		assert.True(t, ok)
	})
}
