// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package discover implements Test Discovery (spec.md component C):
// it walks a directory tree, parses each Go test file, and extracts
// every function matching one of the recognised test markers.
package discover

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jakechild/gosbfl/internal/log"
)

// Test is one discovered test method (spec.md §4.3).
type Test struct {
	File           string
	TypeName       string // "type display name": the package name
	MethodName     string // the function name
	FullyQualified string // package import path + "." + MethodName
	Marker         string // which TestMarker recognised it
}

// Stem is the filename-safe "<type>.<method>" key used to name
// coverage files and key the pass/fail map (spec.md glossary).
func (t Test) Stem() string {
	return t.TypeName + "." + t.MethodName
}

// ignoredDirs mirrors spec.md §4.3's conventional build-output
// exclusions, matched case-insensitively as path segments.
var ignoredDirs = map[string]bool{
	"bin": true, "obj": true, "coverage": true, ".coverage": true,
	"vendor": true, ".git": true, "testdata": true,
}

func isIgnoredDir(name string) bool {
	return ignoredDirs[strings.ToLower(name)]
}

// isGeneratedName reports whether name matches one of the generated
// file suffixes spec.md excludes (the Go analogue of .g.*/.designer.*
// is mock/protobuf/generated companion files).
func isGeneratedName(name string) bool {
	for _, suf := range []string{"_mock.go", ".pb.go", "_generated.go"} {
		if strings.HasSuffix(name, suf) {
			return true
		}
	}
	return false
}

// Discover walks dir and returns every recognised test, deduplicated
// by fully-qualified name and sorted by ordinal byte-wise comparison
// (spec.md §4.3).
func Discover(dir string, importPathOf func(pkgDir string) string) ([]Test, error) {
	seen := map[string]Test{}

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != dir && isIgnoredDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, "_test.go") || isGeneratedName(info.Name()) {
			return nil
		}

		fset := token.NewFileSet()
		file, err := parser.ParseFile(fset, path, nil, 0)
		if err != nil {
			log.Warnf("discover: skipping unparsable file %s: %v", path, err)
			return nil
		}

		pkgDir := filepath.Dir(path)
		importPath := pkgDir
		if importPathOf != nil {
			importPath = importPathOf(pkgDir)
		}

		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok {
				continue
			}
			marker := Recognise(fn)
			if marker == "" {
				continue
			}
			t := Test{
				File:           path,
				TypeName:       file.Name.Name,
				MethodName:     fn.Name.Name,
				FullyQualified: importPath + "." + fn.Name.Name,
				Marker:         marker,
			}
			seen[t.FullyQualified] = t
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover tests under %s: %w", dir, err)
	}

	out := make([]Test, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FullyQualified < out[j].FullyQualified
	})
	return out, nil
}
