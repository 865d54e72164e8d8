// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package rank implements the Ranker (spec.md component F): it
// computes five SBFL suspiciousness scores per statement identifier
// from the coverage-by-test matrix and the pass/fail vector.
package rank

import (
	"math"
	"sort"

	"github.com/jakechild/gosbfl/internal/coverage"
	"github.com/jakechild/gosbfl/internal/rewrite"
)

// Score is an optional float: present and Value meaningful when Ok,
// undefined (spec.md: "distinct from zero") otherwise.
type Score struct {
	Value float64
	Ok    bool
}

func defined(v float64) Score { return Score{Value: v, Ok: true} }
func undefined() Score        { return Score{} }
func infinity() Score         { return Score{Value: math.Inf(1), Ok: true} }

// Formula computes one SBFL metric from the four spectrum counts
// (spec.md §9: "expose the Ranker as a pipeline keyed by metric name
// with pluggable formula objects").
type Formula struct {
	Name  string
	Score func(ef, ep, nf, np int) Score
}

// Formulas is the five classical SBFL metrics from spec.md §4.6, in
// report-column order.
var Formulas = []Formula{
	{Name: "Tarantula", Score: tarantula},
	{Name: "Ochiai", Score: ochiai},
	{Name: "DStar", Score: dstar},
	{Name: "Op2", Score: op2},
	{Name: "Jaccard", Score: jaccard},
}

// divide implements spec.md §4.6's zero-numerator rule: division by
// zero yields +Inf iff the numerator is strictly positive, otherwise
// the result is undefined.
func divide(num, den float64) Score {
	if den != 0 {
		return defined(num / den)
	}
	if num > 0 {
		return infinity()
	}
	return undefined()
}

func tarantula(ef, ep, nf, np int) Score {
	failRatio := divide(float64(ef), float64(ef+nf))
	passRatio := divide(float64(ep), float64(ep+np))
	if !failRatio.Ok || failRatio.Value == 0 {
		// ef == 0 (including ef+nf == 0): the statement was never
		// exercised by a failing test, making Tarantula undefined
		// regardless of the passed branch (spec.md §4.6: "apply... to
		// the overall metric").
		return undefined()
	}
	if !passRatio.Ok {
		// failRatio defined and positive, passRatio's denominator is
		// zero: the overall metric's numerator (failRatio) is
		// positive, so it resolves to 1.0, not +Inf — Tarantula's
		// formula is a ratio bounded in [0,1] even when the passed
		// branch has no data (spec.md S2: "Tarantula(a) = 1.000000").
		return defined(1)
	}
	return divide(failRatio.Value, failRatio.Value+passRatio.Value)
}

func ochiai(ef, ep, nf, np int) Score {
	if ef == 0 {
		// Never exercised by a failing test: undefined, not zero.
		return undefined()
	}
	den := math.Sqrt(float64(ef+nf) * float64(ef+ep))
	return divide(float64(ef), den)
}

func dstar(ef, ep, nf, np int) Score {
	const star = 2
	num := math.Pow(float64(ef), star)
	den := float64(ep + nf)
	return divide(num, den)
}

func op2(ef, ep, nf, np int) Score {
	// Op2 has no division-by-zero case in its own right (ep+np+1 is
	// never zero), so it is always defined.
	return defined(float64(ef) - float64(ep)/float64(ep+np+1))
}

func jaccard(ef, ep, nf, np int) Score {
	return divide(float64(ef), float64(ef+nf+ep))
}

// Row is one statement's ranking row (spec.md §3).
type Row struct {
	SID            string
	File           string
	Line           int
	Snippet        string
	EF, EP, NF, NP int
	Scores         map[string]Score
}

// Rank computes, for every sid seen in coverage, its (ef, ep, nf, np)
// spectrum and every Formula's score (spec.md §4.6).
func Rank(identifiers map[string]rewrite.Entry, coverageByTest map[string]coverage.Set, pass map[string]bool) []Row {
	totalFail, totalPass := 0, 0
	for _, p := range pass {
		if p {
			totalPass++
		} else {
			totalFail++
		}
	}

	sids := map[string]struct{}{}
	for _, set := range coverageByTest {
		for sid := range set {
			sids[sid] = struct{}{}
		}
	}

	rows := make([]Row, 0, len(sids))
	for sid := range sids {
		ef, ep := 0, 0
		for stem, set := range coverageByTest {
			if !set.Contains(sid) {
				continue
			}
			if pass[stem] {
				ep++
			} else {
				ef++
			}
		}
		nf := totalFail - ef
		np := totalPass - ep

		row := Row{SID: sid, EF: ef, EP: ep, NF: nf, NP: np, Scores: map[string]Score{}}
		if entry, ok := identifiers[sid]; ok {
			row.File = entry.File
			row.Line = entry.Line
			row.Snippet = entry.Snippet
		}
		for _, f := range Formulas {
			row.Scores[f.Name] = f.Score(ef, ep, nf, np)
		}
		rows = append(rows, row)
	}

	Order(rows, "Ochiai")
	return rows
}

// Order sorts rows in place by descending primary metric, breaking
// ties by higher EF then ascending ordinal sid (spec.md §4.6).
// Undefined primary scores sort last, below every defined score
// including 0.
func Order(rows []Row, primary string) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].Scores[primary], rows[j].Scores[primary]
		switch {
		case a.Ok && b.Ok && a.Value != b.Value:
			return a.Value > b.Value
		case a.Ok != b.Ok:
			return a.Ok // defined beats undefined
		}
		if rows[i].EF != rows[j].EF {
			return rows[i].EF > rows[j].EF
		}
		return rows[i].SID < rows[j].SID
	})
}
