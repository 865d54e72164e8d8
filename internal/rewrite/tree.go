// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package rewrite

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jakechild/gosbfl/internal/log"
)

// ignoredDirs are conventional build-output subtrees skipped during
// any tree walk, matched case-insensitively as path segments
// (spec.md §4.3, reused here since instrumentation must skip the same
// generated/output trees test discovery does).
var ignoredDirs = map[string]bool{
	"bin": true, "obj": true, "coverage": true, ".coverage": true,
	"vendor": true, ".git": true, "testdata": true,
}

func isIgnoredDir(name string) bool {
	return ignoredDirs[strings.ToLower(name)]
}

func isGoSource(name string) bool {
	return strings.HasSuffix(name, ".go") &&
		!strings.HasSuffix(name, "_test.go") &&
		name != helperFileName
}

// walkGoFiles calls fn for every non-test, non-generated-helper .go
// file under root, skipping conventional build-output directories.
func walkGoFiles(root string, fn func(path string) error) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && isIgnoredDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isGoSource(info.Name()) {
			return nil
		}
		return fn(path)
	})
}

// InstrumentTree walks root and instruments every production source
// file, routing already-instrumented files to Retarget instead (the
// mode-selection rule in spec.md §4.2). It returns the merged
// identifier map across the whole tree.
func InstrumentTree(root, sink string) (map[string]Entry, error) {
	rw := New()
	entries := map[string]Entry{}

	var files []string
	if err := walkGoFiles(root, func(path string) error {
		files = append(files, path)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files) // deterministic sid-assignment order across runs

	for _, path := range files {
		already, err := AlreadyInstrumented(path)
		if err != nil {
			log.Warnf("rewrite: skipping %s: %v", path, err)
			continue
		}
		if already {
			fileEntries, _, err := rw.Retarget(path, sink)
			if err != nil {
				log.Warnf("rewrite: retarget %s: %v", path, err)
				continue
			}
			for k, v := range fileEntries {
				entries[k] = v
			}
			continue
		}
		fileEntries, _, err := rw.Instrument(path, sink)
		if err != nil {
			log.Warnf("rewrite: instrument %s: %v", path, err)
			continue
		}
		for k, v := range fileEntries {
			entries[k] = v
		}
	}

	return entries, nil
}

// StripTree removes every probe from every source file under root,
// used by --reset (spec.md §5, testable property S5).
func StripTree(root string) error {
	rw := New()
	return walkGoFiles(root, func(path string) error {
		if _, err := rw.Strip(path); err != nil {
			log.Warnf("rewrite: strip %s: %v", path, err)
		}
		return nil
	})
}
