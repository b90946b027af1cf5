// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package leaseclient

import (
	"context"
	"weak"

	"github.com/google/uuid"

	"github.com/coredhcp/dynalease/store"
)

// runExtendTask is the background extension task spawned once per live
// lease. It re-derives a strong pointer to the shared version cell on every
// tick; if the Lease has been dropped, the weak pointer fails to upgrade
// and the task exits without any explicit signalling from the Lease.
func runExtendTask(cell weak.Pointer[versionCell], c *Client, key string) {
	for {
		<-c.clock.After(c.cfg.extendPeriod)

		shared := cell.Value()
		if shared == nil {
			return
		}

		current := shared.get()
		newVersion := uuid.NewString()
		now := c.clock.Now()

		outcome, err := c.store.ExtendIfMine(context.Background(), key, current, newVersion, now, c.cfg.ttl)
		if err != nil {
			c.log.WithError(err).WithField("key", key).Warn("lease extension failed, giving up the lease")
			return
		}

		switch outcome {
		case store.Extended:
			shared.set(newVersion)
		case store.Lost:
			c.log.WithField("key", key).Info("lease extension lost: reclaimed by another participant or reaped")
			return
		}
	}
}
