// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package rewrite

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"

	"github.com/jakechild/gosbfl/internal/probe"
)

// helperFileName is the generated companion file every instrumented
// package gains, defining the unqualified __sbflMark function every
// probe calls. "zz_" sorts it to the bottom of directory listings and
// marks it as tool-generated, the same convention protobuf and mock
// generators use for companion files.
const helperFileName = "zz_sbfl_probe.go"

func helperSource(pkgName string) string {
	return fmt.Sprintf(`// Code generated by gosbfl. DO NOT EDIT.

package %s

import "os"

// %s appends sid, newline-terminated, to path, creating it if
// necessary. It never reports failure: a coverage probe must not be
// able to fail the instrumented program.
func %s(sid, path string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	f.WriteString(sid + "\n")
}
`, pkgName, probe.MarkFunc, probe.MarkFunc)
}

// ensureMarkHelper writes dir/zz_sbfl_probe.go if it does not already
// exist, inferring the package name from any other .go file in dir.
func ensureMarkHelper(dir string) error {
	helperPath := filepath.Join(dir, helperFileName)
	if _, err := os.Stat(helperPath); err == nil {
		return nil
	}

	pkgName, err := packageNameOf(dir)
	if err != nil {
		return err
	}
	return os.WriteFile(helperPath, []byte(helperSource(pkgName)), 0644)
}

// removeMarkHelperIfOrphaned deletes dir/zz_sbfl_probe.go once no
// sibling file still references __sbflMark, i.e. after the last Strip
// in a package. Failure is non-fatal: an unused helper function is
// harmless, matching spec.md's per-item-recoverable IOError policy.
func removeMarkHelperIfOrphaned(dir string) {
	helperPath := filepath.Join(dir, helperFileName)
	if _, err := os.Stat(helperPath); err != nil {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == helperFileName || filepath.Ext(name) != ".go" {
			continue
		}
		if fileReferencesMarkFunc(filepath.Join(dir, name)) {
			return
		}
	}
	os.Remove(helperPath)
}

func fileReferencesMarkFunc(path string) bool {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return false
	}
	found := false
	ast.Inspect(file, func(n ast.Node) bool {
		if found {
			return false
		}
		if ident, ok := n.(*ast.Ident); ok && ident.Name == probe.MarkFunc {
			found = true
		}
		return true
	})
	return found
}

func packageNameOf(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read dir %s: %w", dir, err)
	}
	fset := token.NewFileSet()
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".go" {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, e.Name()), nil, parser.PackageClauseOnly)
		if err != nil {
			continue
		}
		return file.Name.Name, nil
	}
	return "", fmt.Errorf("no Go source files found in %s to infer package name", dir)
}
