// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package topology implements the Topology Actor and Server Handle described
// in spec §4.2 and §4.6: the mutable actor that owns the current
// TopologyDescription, mediates every state change, and drives the
// server-selection algorithm in §4.4.
package topology

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/mongodb/sdam-core/address"
	"github.com/mongodb/sdam-core/compression"
	"github.com/mongodb/sdam-core/description"
	"github.com/mongodb/sdam-core/event"
	"github.com/mongodb/sdam-core/internal/logger"
)

// Default option values per spec §6.
const (
	DefaultLocalThreshold           = 15 * time.Millisecond
	DefaultServerSelectionTimeout   = 10000 * time.Millisecond
	DefaultHeartbeatFrequency       = 30000 * time.Millisecond
	DefaultMinHeartbeatInterval     = 500 * time.Millisecond
	defaultRescanSRVInterval        = 60 * time.Second
)

// Heartbeater performs the out-of-scope isMaster probe described in spec §1
// ("wire-protocol codec... out of scope"). prev is the connection-layer
// handle returned by the previous call for this address, or nil on the
// first call or after an error; implementations may use it to reuse a
// socket. It returns the parsed reply, the round-trip time, an opaque
// handle to retain for the next call, and an error.
type Heartbeater func(ctx context.Context, addr address.Address, prev interface{}) (reply *description.IsMasterResult, rtt time.Duration, next interface{}, err error)

// Executor performs the out-of-scope command dispatch (spec §1's wire
// codec). It sends cmd to addr and returns the raw reply.
type Executor func(ctx context.Context, addr address.Address, dbName string, cmd interface{}) (interface{}, error)

// SRVResolver resolves a DNS SRV seedlist to its current host list, backing
// the optional rescan loop described in SPEC_FULL.md's supplemented
// features.
type SRVResolver func(ctx context.Context) ([]address.Address, error)

// Config is the Topology's resolved configuration, built by newConfig from
// the Options passed to New.
type Config struct {
	SeedList []address.Address

	ReplicaSetName string
	Direct         bool

	LocalThreshold         time.Duration
	ServerSelectionTimeout time.Duration
	HeartbeatFrequency     time.Duration
	MinHeartbeatInterval   time.Duration

	RescanSRVInterval time.Duration
	SRVResolver       SRVResolver

	Heartbeater Heartbeater
	Executor    Executor

	Compression *compression.Registry

	ServerMonitor  *event.ServerMonitor
	CommandMonitor *event.CommandMonitor

	Logger *logger.Logger

	AppName string
}

// Option configures a Config. Functional options mirror the teacher's
// newConfig(opts ...Option) shape throughout x/mongo/driver/topology.
type Option func(*Config) error

func newConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		LocalThreshold:         DefaultLocalThreshold,
		ServerSelectionTimeout: DefaultServerSelectionTimeout,
		HeartbeatFrequency:     DefaultHeartbeatFrequency,
		MinHeartbeatInterval:   DefaultMinHeartbeatInterval,
		RescanSRVInterval:      defaultRescanSRVInterval,
		Compression:            compression.NewRegistry(nil),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if len(cfg.SeedList) == 0 {
		return nil, fmt.Errorf("topology: at least one seed is required")
	}
	return cfg, nil
}

// WithSeedList sets the initial server addresses.
func WithSeedList(addrs ...address.Address) Option {
	return func(cfg *Config) error {
		cfg.SeedList = append(cfg.SeedList, addrs...)
		return nil
	}
}

// WithSeedListString parses a comma-delimited seedlist of the form
// "a:1,b,c:3", per spec §8's parsing law.
func WithSeedListString(raw string) Option {
	return func(cfg *Config) error {
		addrs, err := address.ParseList(raw)
		if err != nil {
			return err
		}
		cfg.SeedList = append(cfg.SeedList, addrs...)
		return nil
	}
}

// WithReplicaSetName forces the initial topology kind to
// ReplicaSetNoPrimary, per spec §6.
func WithReplicaSetName(name string) Option {
	return func(cfg *Config) error {
		cfg.ReplicaSetName = name
		return nil
	}
}

// WithDirect forces the initial topology kind to Single regardless of
// seedlist size, modeling the legacy "direct connection" mode.
func WithDirect(direct bool) Option {
	return func(cfg *Config) error { cfg.Direct = direct; return nil }
}

// WithLocalThreshold sets localThresholdMS (spec §6).
func WithLocalThreshold(d time.Duration) Option {
	return func(cfg *Config) error { cfg.LocalThreshold = d; return nil }
}

// WithServerSelectionTimeout sets serverSelectionTimeoutMS (spec §6, §4.4).
func WithServerSelectionTimeout(d time.Duration) Option {
	return func(cfg *Config) error { cfg.ServerSelectionTimeout = d; return nil }
}

// WithHeartbeatFrequency sets heartbeatFrequencyMS (spec §6).
func WithHeartbeatFrequency(d time.Duration) Option {
	return func(cfg *Config) error { cfg.HeartbeatFrequency = d; return nil }
}

// WithMinHeartbeatInterval sets minHeartbeatIntervalMS (spec §4.4).
func WithMinHeartbeatInterval(d time.Duration) Option {
	return func(cfg *Config) error { cfg.MinHeartbeatInterval = d; return nil }
}

// WithRescanSRVInterval configures the optional SRV host-list rescan loop
// (SUPPLEMENTED FEATURES). A zero resolver disables the loop regardless of
// the interval.
func WithRescanSRVInterval(d time.Duration, resolver SRVResolver) Option {
	return func(cfg *Config) error {
		cfg.RescanSRVInterval = d
		cfg.SRVResolver = resolver
		return nil
	}
}

// WithHeartbeater installs the heartbeat probe implementation. Required;
// newConfig does not default it since the wire protocol is out of scope
// (spec §1).
func WithHeartbeater(h Heartbeater) Option {
	return func(cfg *Config) error { cfg.Heartbeater = h; return nil }
}

// WithExecutor installs the command/write dispatch implementation.
func WithExecutor(e Executor) Option {
	return func(cfg *Config) error { cfg.Executor = e; return nil }
}

// WithCompressors sets the handshake compressor preference list (spec §6's
// "compression" option).
func WithCompressors(names ...string) Option {
	return func(cfg *Config) error { cfg.Compression = compression.NewRegistry(names); return nil }
}

// WithServerMonitor installs the SDAM lifecycle event subscriber.
func WithServerMonitor(m *event.ServerMonitor) Option {
	return func(cfg *Config) error { cfg.ServerMonitor = m; return nil }
}

// WithCommandMonitor installs the command lifecycle event subscriber.
func WithCommandMonitor(m *event.CommandMonitor) Option {
	return func(cfg *Config) error { cfg.CommandMonitor = m; return nil }
}

// WithLogger installs the structured SDAM logger.
func WithLogger(l *logger.Logger) Option {
	return func(cfg *Config) error { cfg.Logger = l; return nil }
}

// WithAppName sets the handshake client-info application name.
func WithAppName(name string) Option {
	return func(cfg *Config) error { cfg.AppName = name; return nil }
}

// ClientInfo is the handshake record described in spec §6, populated from
// the host environment at topology construction.
type ClientInfo struct {
	Driver struct {
		Name    string `bson:"name"`
		Version string `bson:"version"`
	} `bson:"driver"`
	OS struct {
		Type         string `bson:"type"`
		Name         string `bson:"name"`
		Architecture string `bson:"architecture"`
	} `bson:"os"`
	Platform string `bson:"platform"`
}

// clientInfo populates a ClientInfo from the current process's environment,
// the SUPPLEMENTED FEATURES "handshake client-info population" item.
func clientInfo(appName string) ClientInfo {
	var ci ClientInfo
	ci.Driver.Name = "sdam-core"
	ci.Driver.Version = "0.1.0"
	ci.OS.Type = runtime.GOOS
	ci.OS.Architecture = runtime.GOARCH
	ci.Platform = fmt.Sprintf("go%s", runtime.Version()[2:])
	if appName != "" {
		ci.Platform = fmt.Sprintf("%s/%s", ci.Platform, appName)
	}
	return ci
}
