// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package compression implements handshake compressor negotiation for the
// client-info record described in spec §6. The wire protocol itself (the
// codec that would actually compress outgoing messages) is out of scope per
// spec §1; this package only picks a name and can round-trip a sample
// payload through it as a self-check.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Name identifies a compressor by its MongoDB wire-protocol name.
type Name string

// The compressor names the registry recognizes.
const (
	Snappy Name = "snappy"
	Zlib   Name = "zlib"
	Zstd   Name = "zstd"
)

// entry is a registered compressor's round-trip implementation, used only
// by SelfCheck.
type entry struct {
	encode func([]byte) ([]byte, error)
	decode func([]byte) ([]byte, error)
}

// Registry holds the compressors a Topology is configured to offer during
// the handshake, in preference order.
type Registry struct {
	order   []Name
	entries map[Name]entry
}

// NewRegistry builds a Registry from the requested names, skipping any name
// it does not recognize. Order is preserved; it becomes the preference
// order used by Negotiate.
func NewRegistry(names []string) *Registry {
	r := &Registry{entries: defaultEntries()}
	for _, n := range names {
		name := Name(n)
		if _, ok := r.entries[name]; ok {
			r.order = append(r.order, name)
		}
	}
	return r
}

func defaultEntries() map[Name]entry {
	return map[Name]entry{
		Snappy: {
			encode: func(b []byte) ([]byte, error) { return snappy.Encode(nil, b), nil },
			decode: func(b []byte) ([]byte, error) { return snappy.Decode(nil, b) },
		},
		Zlib: {
			encode: func(b []byte) ([]byte, error) {
				var buf bytes.Buffer
				w := zlib.NewWriter(&buf)
				if _, err := w.Write(b); err != nil {
					return nil, err
				}
				if err := w.Close(); err != nil {
					return nil, err
				}
				return buf.Bytes(), nil
			},
			decode: func(b []byte) ([]byte, error) {
				r, err := zlib.NewReader(bytes.NewReader(b))
				if err != nil {
					return nil, err
				}
				defer r.Close()
				return io.ReadAll(r)
			},
		},
		Zstd: {
			encode: func(b []byte) ([]byte, error) {
				enc, err := zstd.NewWriter(nil)
				if err != nil {
					return nil, err
				}
				defer enc.Close()
				return enc.EncodeAll(b, nil), nil
			},
			decode: func(b []byte) ([]byte, error) {
				dec, err := zstd.NewReader(nil)
				if err != nil {
					return nil, err
				}
				defer dec.Close()
				return dec.DecodeAll(b, nil)
			},
		},
	}
}

// Offered returns the compressor names this registry advertises, in
// preference order, for the handshake's client-info record.
func (r *Registry) Offered() []string {
	out := make([]string, len(r.order))
	for i, n := range r.order {
		out[i] = string(n)
	}
	return out
}

// Negotiate returns the first name in the registry's preference order that
// also appears in supported (the server's advertised list), or "" if there
// is no mutual compressor. It is pure.
func (r *Registry) Negotiate(supported []string) string {
	supportedSet := make(map[string]struct{}, len(supported))
	for _, s := range supported {
		supportedSet[s] = struct{}{}
	}
	for _, n := range r.order {
		if _, ok := supportedSet[string(n)]; ok {
			return string(n)
		}
	}
	return ""
}

// SelfCheck round-trips payload through the named compressor and confirms
// the result matches. It exists to exercise the registered codecs without
// taking on the out-of-scope wire-protocol framing they'd need in
// production use.
func (r *Registry) SelfCheck(name string, payload []byte) error {
	e, ok := r.entries[Name(name)]
	if !ok {
		return fmt.Errorf("compression: unknown compressor %q", name)
	}
	encoded, err := e.encode(payload)
	if err != nil {
		return fmt.Errorf("compression: encode with %q: %w", name, err)
	}
	decoded, err := e.decode(encoded)
	if err != nil {
		return fmt.Errorf("compression: decode with %q: %w", name, err)
	}
	if !bytes.Equal(decoded, payload) {
		return fmt.Errorf("compression: round-trip mismatch for %q", name)
	}
	return nil
}
