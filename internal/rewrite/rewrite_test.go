// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package rewrite

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fixtureSource = `package sample

func Classify(n int) string {
	if n < 0 {
		return "negative"
	} else if n == 0 {
		return "zero"
	}
	x := n * 2
	for i := 0; i < x; i++ {
		if i == 3 {
			continue
		}
	}
	switch {
	case n > 100:
		return "big"
	default:
		return "small"
	}
}
`

func writeFixture(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "sample.go")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestInstrumentInjectsProbes(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, fixtureSource)

	rw := New()
	entries, changed, err := rw.Instrument(path, filepath.Join(dir, "__current.coverage.tmp"))
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	if !changed {
		t.Fatalf("expected file to change")
	}
	if len(entries) == 0 {
		t.Fatalf("expected at least one probe entry")
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "__sbflMark(") {
		t.Fatalf("instrumented file does not call the mark function:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, helperFileName)); err != nil {
		t.Fatalf("expected helper file to be generated: %v", err)
	}

	for sidVal := range entries {
		want := "/*@sbfl:" + sidVal + "@*/"
		if !strings.Contains(string(out), want) {
			t.Fatalf("instrumented file is missing sentinel comment %s:\n%s", want, out)
		}
	}
}

// TestAlreadyInstrumentedIgnoresRenamedCallee proves recognition goes
// through the sentinel comment, not the callee identifier: a file
// whose mark function has been renamed (e.g. by a refactor) but whose
// sentinel comment still agrees with the call's sid is still
// recognised as instrumented.
func TestAlreadyInstrumentedIgnoresRenamedCallee(t *testing.T) {
	dir := t.TempDir()
	const sidVal = "4f6a35d2-7e2a-4a38-9c1e-5b1a6e9b0a11"
	src := "package sample\n\nfunc F() {\n" +
		"\t/*@sbfl:" + sidVal + "@*/\n" +
		"\trenamedMark(\"" + sidVal + "\", \"/tmp/x\")\n" +
		"}\n"
	path := writeFixture(t, dir, src)

	already, err := AlreadyInstrumented(path)
	if err != nil {
		t.Fatal(err)
	}
	if !already {
		t.Fatalf("AlreadyInstrumented = false, want true: recognition must not depend on the callee identifier")
	}
}

// TestAlreadyInstrumentedRejectsBareCall proves the converse: a call
// with the right name and arguments but no sentinel comment is not
// recognised, since recognition is anchored on the comment.
func TestAlreadyInstrumentedRejectsBareCall(t *testing.T) {
	dir := t.TempDir()
	src := "package sample\n\nfunc F() {\n" +
		"\t__sbflMark(\"4f6a35d2-7e2a-4a38-9c1e-5b1a6e9b0a11\", \"/tmp/x\")\n" +
		"}\n"
	path := writeFixture(t, dir, src)

	already, err := AlreadyInstrumented(path)
	if err != nil {
		t.Fatal(err)
	}
	if already {
		t.Fatalf("AlreadyInstrumented = true, want false: a bare call with no sentinel comment is not a recognised probe")
	}
}

func TestInstrumentIdempotentViaRetarget(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, fixtureSource)

	rw := New()
	sink := filepath.Join(dir, "__current.coverage.tmp")
	if _, _, err := rw.Instrument(path, sink); err != nil {
		t.Fatal(err)
	}
	firstPass, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// A second pass over an already-instrumented file is owned by
	// Retarget-to-the-same-sink, which must be a no-op.
	already, err := AlreadyInstrumented(path)
	if err != nil || !already {
		t.Fatalf("AlreadyInstrumented = %v, %v; want true, nil", already, err)
	}
	entries, changed, err := rw.Retarget(path, sink)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Fatalf("Retarget to the same sink should be a no-op")
	}
	if len(entries) == 0 {
		t.Fatalf("expected Retarget to rebuild identifier-map entries even as a no-op")
	}

	secondPass, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(firstPass) != string(secondPass) {
		t.Fatalf("second pass changed file:\nfirst=%s\nsecond=%s", firstPass, secondPass)
	}
}

func TestStripRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, fixtureSource)

	rw := New()
	sink := filepath.Join(dir, "__current.coverage.tmp")
	if _, _, err := rw.Instrument(path, sink); err != nil {
		t.Fatal(err)
	}

	changed, err := rw.Strip(path)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatalf("expected Strip to change the instrumented file")
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "__sbflMark(") {
		t.Fatalf("stripped file still references the mark function:\n%s", out)
	}
	if normalizeWhitespace(string(out)) != normalizeWhitespace(fixtureSource) {
		t.Fatalf("strip did not round-trip to the original source modulo whitespace:\ngot=%s\nwant=%s", out, fixtureSource)
	}
}

func TestRetargetChangesOnlySink(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, fixtureSource)

	rw := New()
	sink1 := filepath.Join(dir, "a.tmp")
	if _, _, err := rw.Instrument(path, sink1); err != nil {
		t.Fatal(err)
	}

	sink2 := filepath.Join(dir, "b.tmp")
	entries, changed, err := rw.Retarget(path, sink2)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatalf("expected retarget to a new sink to change the file")
	}
	if len(entries) == 0 {
		t.Fatalf("expected Retarget to return identifier-map entries")
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), sink1) {
		t.Fatalf("old sink still present after retarget:\n%s", out)
	}
	if !strings.Contains(string(out), sink2) {
		t.Fatalf("new sink missing after retarget:\n%s", out)
	}
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
