/*
 * Copyright 2024 Wang Min Xiang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * 	http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package sharedcache is the public entry point: Open returns a Handle onto
// a named, in-process, cross-goroutine shared key-value cache. Every Open
// call for the same name returns a distinct Handle; the handles converge on
// the same bindings through the channel package's broadcast bus and the
// membership handshake, not through sharing a Go value.
package sharedcache

import (
	"fmt"
	"time"

	"github.com/aacfactory/configures"
	"github.com/aacfactory/errors"
	"github.com/aacfactory/logs"
	"github.com/aacfactory/sharedcache/codec"
	"github.com/aacfactory/sharedcache/store"
)

// SetOption re-exports store.SetOption so callers never need to import the
// store package directly.
type SetOption = store.SetOption

var (
	WithMinBufferSize = store.WithMinBufferSize
	WithImmutable     = store.WithImmutable
	WithTTL           = store.WithTTL
	WithSkipLock      = store.WithSkipLock
)

// Handle is the handle returned by Open: the whole of spec.md §6's external
// interface, implemented by *store.Store.
type Handle interface {
	Set(key string, value any, opts ...SetOption) bool
	Get(key string, skipLock ...bool) (value any, ok bool)
	Delete(key string) bool
	ListKeys(pattern ...string) []string
	Lock(key string, timeout ...time.Duration) bool
	Release(key string) bool
	Clear()
	Close()
}

// Config is the JSON-loadable shape of Options, the way the teacher's
// shareds.LocalSharedConfig carries a raw JSON Store field for
// configures.Config to decode.
type Config struct {
	LockTimeoutMillis     int64 `json:"lockTimeoutMillis,omitempty" yaml:"lockTimeoutMillis,omitempty"`
	HandshakeWindowMillis int64 `json:"handshakeWindowMillis,omitempty" yaml:"handshakeWindowMillis,omitempty"`
}

type options struct {
	log             logs.Logger
	codec           codec.Codec
	lockTimeout     time.Duration
	handshakeWindow time.Duration
}

// Option configures Open.
type Option func(*options)

// WithLogger attaches the logs.Logger every opened Handle reports internal
// (never-surfaced) failures to.
func WithLogger(log logs.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithCodec overrides the default pack/unpack implementation.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithLockTimeout overrides the cumulative lock-acquisition timeout used by
// every operation the opened Handle performs internally.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) { o.lockTimeout = d }
}

// WithHandshakeWindow overrides how long Open waits after announcing for a
// donor's response.
func WithHandshakeWindow(d time.Duration) Option {
	return func(o *options) { o.handshakeWindow = d }
}

// WithConfig decodes a configures.Config (typically loaded from JSON) into
// Config and applies its fields, the way services in this corpus accept an
// options.Config and call Config.As(&cfg).
func WithConfig(config configures.Config) Option {
	return func(o *options) {
		if config == nil {
			return
		}
		cfg := Config{}
		if err := config.As(&cfg); err != nil {
			return
		}
		if cfg.LockTimeoutMillis > 0 {
			o.lockTimeout = time.Duration(cfg.LockTimeoutMillis) * time.Millisecond
		}
		if cfg.HandshakeWindowMillis > 0 {
			o.handshakeWindow = time.Duration(cfg.HandshakeWindowMillis) * time.Millisecond
		}
	}
}

// Open constructs a new Handle on the named store, running the membership
// handshake before returning. The error return reports only process-local
// construction failures (an invalid name); every cache operation on the
// returned Handle reports failure through its own sentinel return instead,
// never through error (spec.md §7).
func Open(name string, opts ...Option) (Handle, error) {
	if name == "" {
		return nil, errors.Warning("sharedcache: open failed").WithCause(fmt.Errorf("name is required"))
	}

	o := &options{
		codec:           codec.Default,
		lockTimeout:     store.DefaultLockTimeout,
		handshakeWindow: store.DefaultHandshakeWindow,
	}
	for _, apply := range opts {
		apply(o)
	}

	storeOpts := []store.Option{
		store.WithCodec(o.codec),
		store.WithLockTimeout(o.lockTimeout),
		store.WithHandshakeWindow(o.handshakeWindow),
	}
	if o.log != nil {
		storeOpts = append(storeOpts, store.WithLogger(o.log))
	}

	return store.New(name, storeOpts...), nil
}
