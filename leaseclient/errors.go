// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package leaseclient

import "errors"

// ErrAcquireTimedOut is returned by AcquireTimeout when the deadline
// elapses before the lease could be acquired.
var ErrAcquireTimedOut = errors.New("leaseclient: timed out waiting to acquire lease")
