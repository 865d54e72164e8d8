// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveDirs(t *testing.T) {
	solution := t.TempDir()
	mustMkdir(t, filepath.Join(solution, "mypkg"))

	_, testDir, projDir, err := resolveDirs([]string{solution, "mypkg", "mypkg"})
	if err != nil {
		t.Fatalf("resolveDirs: %v", err)
	}
	want := filepath.Join(solution, "mypkg")
	if testDir != want || projDir != want {
		t.Fatalf("got testDir=%s projDir=%s, want both %s", testDir, projDir, want)
	}
}

func TestResolveDirsMissingProject(t *testing.T) {
	solution := t.TempDir()
	if _, _, _, err := resolveDirs([]string{solution, "nope", "nope"}); err == nil {
		t.Fatalf("expected error for missing project directory")
	}
}

func TestResolveDirsMissingSolution(t *testing.T) {
	if _, _, _, err := resolveDirs([]string{filepath.Join(os.TempDir(), "does-not-exist-gosbfl"), "a", "b"}); err == nil {
		t.Fatalf("expected error for missing solution directory")
	}
}

func TestModuleImportPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "go.mod"), "module github.com/example/widgets\n\ngo 1.24\n")

	got, err := moduleImportPath(dir)
	if err != nil {
		t.Fatalf("moduleImportPath: %v", err)
	}
	if got != "github.com/example/widgets" {
		t.Fatalf("got %q, want github.com/example/widgets", got)
	}
}

func TestModuleImportPathMissingFile(t *testing.T) {
	if _, err := moduleImportPath(t.TempDir()); err == nil {
		t.Fatalf("expected error for missing go.mod")
	}
}

func TestJoinImportPath(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "internal", "widget")
	mustMkdir(t, sub)

	got := joinImportPath("github.com/example/widgets", []string{root}, sub)
	want := "github.com/example/widgets/internal/widget"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestJoinImportPathRoot(t *testing.T) {
	root := t.TempDir()
	got := joinImportPath("github.com/example/widgets", []string{root}, root)
	if got != "github.com/example/widgets" {
		t.Fatalf("got %q, want module path unchanged at the root package", got)
	}
}

func TestJoinImportPathPicksContainingRoot(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	sub := filepath.Join(b, "pkg")
	mustMkdir(t, sub)

	got := joinImportPath("example.com/mod", []string{a, b}, sub)
	if got != "example.com/mod/pkg" {
		t.Fatalf("got %q, want example.com/mod/pkg", got)
	}
}

func TestUniqueDirs(t *testing.T) {
	got := uniqueDirs("a", "b", "a")
	if len(got) != 2 {
		t.Fatalf("expected 2 unique dirs, got %v", got)
	}
}

func TestIsIgnoredWatchDir(t *testing.T) {
	if !isIgnoredWatchDir("Vendor") {
		t.Fatalf("expected case-insensitive match for vendor")
	}
	if isIgnoredWatchDir("internal") {
		t.Fatalf("internal should not be ignored")
	}
}

func mustMkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
