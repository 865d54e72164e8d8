// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package coverage implements the Coverage Loader (spec.md component
// E): it reads each test's per-test .coverage file into a set of
// statement identifiers.
package coverage

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/jakechild/gosbfl/internal/discover"
	"github.com/jakechild/gosbfl/internal/log"
	"github.com/jakechild/gosbfl/internal/sid"
)

// Set is a set of sids, compared case-insensitively on the sid's
// textual form (spec.md §9 open question: the comparator must match
// however sids are emitted; ids are lower-cased consistently by both
// the generator and the loader here).
type Set map[string]struct{}

// Contains reports whether sid is in the set.
func (s Set) Contains(sid string) bool {
	_, ok := s[strings.ToLower(sid)]
	return ok
}

func newSet() Set { return make(Set) }

func (s Set) add(sid string) { s[strings.ToLower(sid)] = struct{}{} }

// Load reads <coverageDir>/<stem>.coverage for every test and returns
// stem -> set<sid> (spec.md §4.5). A missing or empty file yields an
// empty set with a warning, not an error — the test still contributes
// to the pass/fail vector (spec.md §9 open question).
func Load(coverageDir string, tests []discover.Test) map[string]Set {
	out := make(map[string]Set, len(tests))
	for _, t := range tests {
		out[t.Stem()] = loadOne(coverageDir, t.Stem())
	}
	return out
}

func loadOne(coverageDir, stem string) Set {
	path := filepath.Join(coverageDir, stem+".coverage")
	set := newSet()

	f, err := os.Open(path)
	if err != nil {
		log.Warnf("coverage: %s produced no coverage file, treating as empty", stem)
		return set
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !sid.Valid(line) {
			log.Warnf("coverage: %s: discarding corrupt sid line %q", stem, line)
			continue
		}
		set.add(line)
	}
	if len(set) == 0 {
		log.Warnf("coverage: %s's coverage file is empty, treating as empty", stem)
	}
	return set
}
