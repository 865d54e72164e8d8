// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package rank

import (
	"math"
	"testing"

	"github.com/jakechild/gosbfl/internal/coverage"
	"github.com/jakechild/gosbfl/internal/rewrite"
)

func set(sids ...string) coverage.Set {
	s := make(coverage.Set)
	for _, sid := range sids {
		s[sid] = struct{}{}
	}
	return s
}

// TestScenarioS1 reproduces spec.md §8 scenario S1.
func TestScenarioS1(t *testing.T) {
	coverageByTest := map[string]coverage.Set{
		"t1": set("x", "y"),
		"t2": set("y", "z"),
	}
	pass := map[string]bool{"t1": false, "t2": true}

	rows := Rank(map[string]rewrite.Entry{}, coverageByTest, pass)

	byID := map[string]Row{}
	for _, r := range rows {
		byID[r.SID] = r
	}

	assertClose(t, byID["x"].Scores["Ochiai"], 1.0, true)
	assertClose(t, byID["y"].Scores["Ochiai"], 0.707107, true)
	assertClose(t, byID["z"].Scores["Ochiai"], 0, false)

	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].SID != "x" || rows[1].SID != "y" || rows[2].SID != "z" {
		t.Fatalf("unexpected ordering: %v, %v, %v", rows[0].SID, rows[1].SID, rows[2].SID)
	}
}

// TestScenarioS2 reproduces spec.md §8 scenario S2: a single failing
// test covering a single statement must yield Tarantula == 1.0 via
// the zero-numerator rule applied to the passing branch.
func TestScenarioS2(t *testing.T) {
	coverageByTest := map[string]coverage.Set{
		"t1": set("a"),
	}
	pass := map[string]bool{"t1": false}

	rows := Rank(map[string]rewrite.Entry{}, coverageByTest, pass)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	assertClose(t, rows[0].Scores["Tarantula"], 1.0, true)
}

func TestUndefinedVsZero(t *testing.T) {
	// ef=0 everywhere: Tarantula must be undefined, not zero.
	coverageByTest := map[string]coverage.Set{
		"t1": set("x"),
	}
	pass := map[string]bool{"t1": true}

	rows := Rank(map[string]rewrite.Entry{}, coverageByTest, pass)
	s := rows[0].Scores["Tarantula"]
	if s.Ok {
		t.Fatalf("expected Tarantula to be undefined when ef=0, got %v", s.Value)
	}
}

func TestOrderTieBreaksByEFThenSID(t *testing.T) {
	rows := []Row{
		{SID: "b", EF: 1, Scores: map[string]Score{"Ochiai": defined(0.5)}},
		{SID: "a", EF: 1, Scores: map[string]Score{"Ochiai": defined(0.5)}},
		{SID: "c", EF: 2, Scores: map[string]Score{"Ochiai": defined(0.5)}},
	}
	Order(rows, "Ochiai")

	want := []string{"c", "a", "b"}
	for i, sid := range want {
		if rows[i].SID != sid {
			t.Fatalf("position %d: got %s, want %s", i, rows[i].SID, sid)
		}
	}
}

func TestOrderUndefinedSortsLast(t *testing.T) {
	rows := []Row{
		{SID: "defined-zero", Scores: map[string]Score{"Ochiai": defined(0)}},
		{SID: "undefined", Scores: map[string]Score{"Ochiai": undefined()}},
	}
	Order(rows, "Ochiai")
	if rows[0].SID != "defined-zero" || rows[1].SID != "undefined" {
		t.Fatalf("expected defined-zero before undefined, got %v", rows)
	}
}

func assertClose(t *testing.T, got Score, want float64, wantOk bool) {
	t.Helper()
	if got.Ok != wantOk {
		t.Fatalf("Ok = %v, want %v (value=%v)", got.Ok, wantOk, got.Value)
	}
	if !wantOk {
		return
	}
	if math.Abs(got.Value-want) > 1e-6 {
		t.Fatalf("value = %v, want %v", got.Value, want)
	}
}
