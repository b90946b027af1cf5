// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package leaseclient

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/coredhcp/dynalease/registry"
)

// versionCell is the state shared between a Lease and its extension task:
// the current version token, single-writer protected. The extension task
// never holds a strong pointer to this across a sleep — only a
// weak.Pointer — so it self-terminates once the Lease (the only strong
// holder) becomes unreachable, without any explicit signalling between the
// two.
type versionCell struct {
	mu      sync.Mutex
	version string
}

func (vc *versionCell) get() string {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.version
}

func (vc *versionCell) set(v string) {
	vc.mu.Lock()
	vc.version = v
	vc.mu.Unlock()
}

// Lease is an owned handle to a held lease. It must eventually be released,
// either explicitly via Release or implicitly on garbage collection, which
// schedules the same release sequence as best-effort background work.
type Lease struct {
	client *Client
	key    string
	shared *versionCell

	// token is the local serialisation token for key, released before the
	// store-side delete. Guarded by mu so the finalizer and an explicit
	// Release racing each other never double-release it.
	mu    sync.Mutex
	token *registry.Token

	released atomic.Bool
}

func newLease(c *Client, key, version string, tok *registry.Token) *Lease {
	shared := &versionCell{version: version}
	lease := &Lease{client: c, key: key, shared: shared, token: tok}

	runtime.SetFinalizer(lease, func(l *Lease) {
		go l.release(context.Background())
	})

	go runExtendTask(weak.Make(shared), c, key)

	return lease
}

// Version returns the version token currently believed to identify this
// lease's holder in the store. It changes each time the background
// extension task successfully extends the lease.
func (l *Lease) Version() string {
	return l.shared.get()
}

// Release releases the lease and awaits the store's acknowledgement of the
// delete. It is idempotent: calling Release more than once, or calling it
// and then letting the Lease be garbage collected, has the same effect as
// calling it once. Store failures during the delete are swallowed (logged,
// not returned) since the TTL guarantees eventual cleanup either way;
// ctx cancellation is still reported.
func (l *Lease) Release(ctx context.Context) error {
	runtime.SetFinalizer(l, nil)
	return l.release(ctx)
}

func (l *Lease) release(ctx context.Context) error {
	if !l.released.CompareAndSwap(false, true) {
		return nil
	}

	// Drop the local token before the store delete: a local waiter must
	// compete with remote acquirers on equal footing, not win by racing
	// the store delete.
	l.mu.Lock()
	tok := l.token
	l.token = nil
	l.mu.Unlock()
	if tok != nil {
		tok.Release()
	}

	version := l.shared.get()
	_, err := l.client.store.DeleteIfMine(ctx, l.key, version)
	if err != nil {
		l.client.log.WithError(err).WithField("key", l.key).
			Warn("lease release: store delete failed, relying on TTL")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	return nil
}
