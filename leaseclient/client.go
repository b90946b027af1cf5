// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package leaseclient implements the distributed lease client: at-most-one
// holder per key across a fleet of participants talking to a shared
// conditional-write store, with crash safety from the store's TTL and
// liveness from a background per-lease extension task.
package leaseclient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/coredhcp/dynalease/registry"
	"github.com/coredhcp/dynalease/store"
)

// Client bundles a store, this process's local key registry, and the
// lease-lifetime configuration shared by every lease it acquires.
type Client struct {
	store    store.Store
	registry *registry.Registry
	clock    clockwork.Clock
	cfg      config
	log      *logrus.Entry
}

// ClientOption configures fields of Client that aren't part of lease
// timing (config.go's Option covers those).
type ClientOption func(*Client)

// WithClock overrides the clock used for expiry and sleep timing. Tests that
// need to drive extension or poll timing without a real sleep pass a
// clockwork.FakeClock here; production code should leave this unset.
func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) { c.clock = clock }
}

// WithLogger overrides the logrus entry the client and its leases log
// through. Defaults to the standard logger tagged with component=leaseclient.
func WithLogger(log *logrus.Entry) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient builds a Client bound to the given store and lease-timing
// options. If the store implements store.SchemaChecker, its schema is
// validated before NewClient returns, so a misprovisioned table is caught
// at startup rather than on the first acquire.
func NewClient(ctx context.Context, s store.Store, opts []Option, clientOpts ...ClientOption) (*Client, error) {
	cfg, err := resolve(opts)
	if err != nil {
		return nil, err
	}

	c := &Client{
		store:    s,
		registry: registry.New(),
		clock:    clockwork.NewRealClock(),
		cfg:      cfg,
		log:      logrus.StandardLogger().WithField("component", "leaseclient"),
	}
	for _, opt := range clientOpts {
		opt(c)
	}

	if checker, ok := s.(store.SchemaChecker); ok {
		if err := checker.CheckSchema(ctx); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// TryAcquire attempts to acquire key without waiting. It returns (nil, nil)
// if another participant already holds an unexpired lease — that is a
// normal contested outcome, not an error.
func (c *Client) TryAcquire(ctx context.Context, key string) (*Lease, error) {
	tok, err := c.registry.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}

	version := uuid.NewString()
	now := c.clock.Now()
	outcome, err := c.store.AcquireOrReplace(ctx, key, version, now, c.cfg.ttl)
	if err != nil {
		tok.Release()
		return nil, err
	}
	if outcome != store.Acquired {
		tok.Release()
		return nil, nil
	}

	return newLease(c, key, version, tok), nil
}

// Acquire blocks, retrying every acquire-poll-period, until key is
// acquired or ctx is cancelled.
func (c *Client) Acquire(ctx context.Context, key string) (*Lease, error) {
	for {
		lease, err := c.TryAcquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if lease != nil {
			return lease, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clock.After(c.cfg.pollPeriod):
		}
	}
}

// AcquireTimeout is Acquire bounded by timeout. It returns
// ErrAcquireTimedOut, rather than ctx.Err(), if the deadline elapses before
// the lease is acquired.
func (c *Client) AcquireTimeout(ctx context.Context, key string, timeout time.Duration) (*Lease, error) {
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lease, err := c.Acquire(deadlineCtx, key)
	if err != nil {
		if deadlineCtx.Err() != nil && ctx.Err() == nil {
			return nil, ErrAcquireTimedOut
		}
		return nil, err
	}
	return lease, nil
}
