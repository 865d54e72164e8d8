// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package discover

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleTestFile = `package sample_test

import "testing"

func TestSimple(t *testing.T) {
	_ = 1
}

func TestTableDriven(t *testing.T) {
	cases := []int{1, 2, 3}
	for _, c := range cases {
		_ = c
	}
}

func TestFactLike() {
	_ = 1
}

func helperNotATest(t *testing.T) {}
`

func TestDiscoverFindsMarkedFunctions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample_test.go")
	if err := os.WriteFile(path, []byte(sampleTestFile), 0644); err != nil {
		t.Fatal(err)
	}

	tests, err := Discover(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	names := map[string]string{}
	for _, tc := range tests {
		names[tc.MethodName] = tc.Marker
	}

	want := map[string]string{
		"TestSimple":     "Test",
		"TestTableDriven": "Theory",
		"TestFactLike":   "Fact",
	}
	for name, marker := range want {
		if got, ok := names[name]; !ok {
			t.Errorf("missing discovered test %s", name)
		} else if got != marker {
			t.Errorf("%s: marker = %q, want %q", name, got, marker)
		}
	}
	if _, ok := names["helperNotATest"]; ok {
		t.Errorf("helperNotATest should not be discovered")
	}
}

func TestDiscoverSortsAndDeduplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample_test.go")
	if err := os.WriteFile(path, []byte(sampleTestFile), 0644); err != nil {
		t.Fatal(err)
	}

	tests, err := Discover(dir, func(string) string { return "pkg" })
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(tests); i++ {
		if tests[i-1].FullyQualified >= tests[i].FullyQualified {
			t.Fatalf("results not sorted ordinal byte-wise at index %d: %q >= %q",
				i, tests[i-1].FullyQualified, tests[i].FullyQualified)
		}
	}
}

func TestDiscoverSkipsIgnoredDirs(t *testing.T) {
	dir := t.TempDir()
	binDir := filepath.Join(dir, "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(binDir, "sample_test.go"), []byte(sampleTestFile), 0644); err != nil {
		t.Fatal(err)
	}

	tests, err := Discover(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tests) != 0 {
		t.Fatalf("expected no tests discovered under bin/, got %d", len(tests))
	}
}
