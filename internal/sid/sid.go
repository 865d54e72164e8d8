// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package sid generates and validates statement identifiers: opaque,
// process-globally unique strings stamped into probes and later used
// to key the coverage-by-test matrix.
package sid

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// New draws a fresh 128-bit random statement identifier and returns
// its canonical textual form. Collisions are astronomically unlikely;
// the Rewriter is expected to treat one as fatal (spec: "collisions
// are catastrophic and must fail hard").
func New() string {
	return uuid.New().String()
}

// seen is the uniqueness guard a Registry holds while the Rewriter
// instruments a whole production tree in one pass.
type seen struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewRegistry returns a uniqueness tracker for one instrumentation run.
func NewRegistry() *Registry {
	return &Registry{seen: seen{ids: make(map[string]struct{})}}
}

// Registry enforces the sid-uniqueness invariant across an entire
// Instrument pass over a production tree.
type Registry struct {
	seen seen
}

// Next draws a new sid and registers it, panicking if by some
// near-impossible chance it collides with one already issued this
// run — spec.md requires collisions to fail hard, not be silently
// re-rolled.
func (r *Registry) Next() string {
	r.seen.mu.Lock()
	defer r.seen.mu.Unlock()
	s := New()
	if _, dup := r.seen.ids[s]; dup {
		panic(fmt.Sprintf("sid collision: %s", s))
	}
	r.seen.ids[s] = struct{}{}
	return s
}

// Valid reports whether s parses as a well-formed sid. Used by the
// probe codec and coverage loader to reject corrupt lines defensively.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
