// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Command sdamctl connects a Topology to a seedlist and pretty-prints every
// description change it observes, generalizing the teacher's
// mongo/private/examples/cluster_monitoring example to the Topology Core's
// own API.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/kr/pretty"

	"github.com/mongodb/sdam-core/address"
	"github.com/mongodb/sdam-core/description"
	"github.com/mongodb/sdam-core/topology"
)

func main() {
	seeds := flag.String("seeds", "localhost:27017", "comma-delimited seedlist, e.g. a:27017,b:27017")
	replicaSet := flag.String("replicaSet", "", "replica set name; forces the initial topology type")
	dialTimeout := flag.Duration("dialTimeout", 2*time.Second, "TCP dial timeout per heartbeat")
	flag.Parse()

	opts := []topology.Option{
		topology.WithSeedListString(*seeds),
		topology.WithHeartbeater(tcpReachabilityHeartbeater(*dialTimeout)),
	}
	if *replicaSet != "" {
		opts = append(opts, topology.WithReplicaSetName(*replicaSet))
	}

	topo, err := topology.New(opts...)
	if err != nil {
		log.Fatalf("sdamctl: could not create topology: %v", err)
	}

	if err := topo.Connect(); err != nil {
		log.Fatalf("sdamctl: could not connect: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = topo.Close(ctx)
	}()

	sub, err := topo.Subscribe()
	if err != nil {
		log.Fatalf("sdamctl: could not subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case desc, ok := <-sub.C:
			if !ok {
				return
			}
			log.Printf("%# v", pretty.Formatter(desc))
		}
	}
}

// tcpReachabilityHeartbeater is a minimal, honest stand-in for the real
// isMaster wire-protocol probe, which is out of scope for this module (spec
// §1): it reports Standalone on a successful TCP connect and an error
// otherwise, enough to drive SDAM's state machine for a demo seedlist
// without pulling in a wire-protocol codec.
func tcpReachabilityHeartbeater(dialTimeout time.Duration) topology.Heartbeater {
	return func(ctx context.Context, addr address.Address, prev interface{}) (*description.IsMasterResult, time.Duration, interface{}, error) {
		start := time.Now()
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr.String())
		if err != nil {
			return nil, 0, nil, err
		}
		conn.Close()
		return &description.IsMasterResult{OK: true}, time.Since(start), nil, nil
	}
}
