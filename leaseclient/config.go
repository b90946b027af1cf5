// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package leaseclient

import (
	"fmt"
	"time"
)

const (
	// DefaultTTL is the lease lifetime stamped into a record's expiry on
	// each acquire or extend, absent any WithTTL option.
	DefaultTTL = 20 * time.Second
	// DefaultPollPeriod is the gap between retries when Acquire is
	// waiting for a held key to free up.
	DefaultPollPeriod = time.Second
)

// Option configures a Client at construction time.
type Option func(*config)

type config struct {
	ttl             time.Duration
	extendPeriod    time.Duration
	pollPeriod      time.Duration
	extendPeriodSet bool
}

func defaultConfig() config {
	return config{
		ttl:        DefaultTTL,
		pollPeriod: DefaultPollPeriod,
	}
}

// WithTTL sets the absolute lifetime stamped into a lease's expiry on each
// acquire or extend. Default DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) { c.ttl = ttl }
}

// WithExtendPeriod sets the interval between background extends. Default is
// ttl/4, leaving headroom for several missed or slow extends before the
// lease lapses.
func WithExtendPeriod(d time.Duration) Option {
	return func(c *config) { c.extendPeriod = d; c.extendPeriodSet = true }
}

// WithAcquirePollPeriod sets the gap between retries when Acquire is
// waiting for a held key. Default DefaultPollPeriod.
func WithAcquirePollPeriod(d time.Duration) Option {
	return func(c *config) { c.pollPeriod = d }
}

// resolve applies options, fills in the derived default for extendPeriod,
// and validates that 0 < extendPeriod < ttl: an extend period at or past the
// ttl could let the lease lapse between extends.
func resolve(opts []Option) (config, error) {
	c := defaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	if !c.extendPeriodSet {
		c.extendPeriod = c.ttl / 4
	}

	if c.ttl <= 0 {
		return config{}, &ConfigError{msg: fmt.Sprintf("lease_ttl must be positive, got %s", c.ttl)}
	}
	if c.extendPeriod <= 0 || c.extendPeriod >= c.ttl {
		return config{}, &ConfigError{msg: fmt.Sprintf(
			"extend_period must satisfy 0 < extend_period < lease_ttl, got extend_period=%s lease_ttl=%s",
			c.extendPeriod, c.ttl)}
	}
	if c.pollPeriod <= 0 {
		return config{}, &ConfigError{msg: fmt.Sprintf("acquire_poll_period must be positive, got %s", c.pollPeriod)}
	}
	return c, nil
}

// ConfigError reports an invalid Client configuration.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string {
	return "leaseclient: invalid configuration: " + e.msg
}
