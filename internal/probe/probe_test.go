// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package probe

import "testing"

func TestEncodeRecognise(t *testing.T) {
	sid := "4f6a35d2-7e2a-4a38-9c1e-5b1a6e9b0a11"
	sink := "/tmp/Coverage/__current.coverage.tmp"

	text := Encode(sid, sink)
	if !Recognise(text) {
		t.Fatalf("Recognise(Encode(...)) = false, want true")
	}

	got, ok := ExtractSink(text)
	if !ok || got != sink {
		t.Fatalf("ExtractSink() = (%q, %v), want (%q, true)", got, ok, sink)
	}
}

func TestRetargetIdempotent(t *testing.T) {
	sid := "00000000-0000-4000-8000-000000000000"
	text := Encode(sid, "/a/__current.coverage.tmp")

	once := Retarget(text, "/b/__current.coverage.tmp")
	twice := Retarget(once, "/b/__current.coverage.tmp")

	if once != twice {
		t.Fatalf("second Retarget changed output:\nonce=%q\ntwice=%q", once, twice)
	}

	want := Encode(sid, "/b/__current.coverage.tmp")
	if once != want {
		t.Fatalf("Retarget(Encode(sid,P),P') != Encode(sid,P'):\ngot =%q\nwant=%q", once, want)
	}
}

func TestRecogniseRejectsUnrelatedText(t *testing.T) {
	cases := []string{
		"",
		"x := 1",
		"// just a comment",
		`__sbflMark("not-a-probe", "/tmp/x")`,
	}
	for _, c := range cases {
		if Recognise(c) {
			t.Errorf("Recognise(%q) = true, want false", c)
		}
	}
}

func TestDecodeMismatchedSidRejected(t *testing.T) {
	text := Sentinel + "aaaa@*/\n" + MarkFunc + `("bbbb", "/tmp/x")`
	if Recognise(text) {
		t.Fatalf("Recognise accepted a probe whose comment and call sids disagree")
	}
}
