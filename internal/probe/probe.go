// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package probe implements the probe codec (spec.md component A): it
// renders, recognises, and retargets the single-statement coverage
// probes the Rewriter injects into production source.
//
// A probe is the two-line form:
//
//	/*@sbfl:<sid>@*/
//	__sbflMark("<sid>", "<sink-path>")
//
// The sentinel comment is the O(1), ambiguity-free recognition
// marker named in spec.md §9 — it never depends on the call's callee
// name, so renaming or wrapping __sbflMark does not break
// recognition.
package probe

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jakechild/gosbfl/internal/sid"
)

// Sentinel prefixes every probe's marker comment. The sid follows it
// up to the closing "@*/".
const Sentinel = "/*@sbfl:"

const sentinelSuffix = "@*/"

// MarkFunc is the name of the generated, unqualified, same-package
// function every probe calls.
const MarkFunc = "__sbflMark"

var probeLine = regexp.MustCompile(`^` + regexp.QuoteMeta(Sentinel) + `([0-9a-fA-F-]+)` + regexp.QuoteMeta(sentinelSuffix) + `\s*` +
	regexp.QuoteMeta(MarkFunc) + `\("([0-9a-fA-F-]+)",\s*"((?:[^"\\]|\\.)*)"\)\s*$`)

// Encode renders the probe statement (marker comment plus call) for
// sid, appending to sink when executed.
func Encode(sid, sink string) string {
	return fmt.Sprintf("%s%s%s\n%s(%q, %q)", Sentinel, sid, sentinelSuffix, MarkFunc, sid, sink)
}

// Recognise reports whether text is a previously emitted probe (in
// either the comment+call form Encode produces, or a bare call with a
// leading sentinel comment inline — both forms round-trip through
// Encode/Decode identically). A text whose comment and call sids
// disagree, or whose sid is malformed, is not recognised.
func Recognise(text string) bool {
	_, ok := Decode(text)
	return ok
}

// Decoded holds the pieces of a recognised probe.
type Decoded struct {
	SID  string
	Sink string
}

// Decode extracts the sid and sink path from a recognised probe. It
// returns ok=false if text is not a recognised probe.
func Decode(text string) (Decoded, bool) {
	m := probeLine.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Decoded{}, false
	}
	if m[1] != m[2] {
		// The marker comment's sid and the call's sid literal must
		// agree; disagreement means this was hand-edited or produced
		// by a different tool version, so it is not a probe we own.
		return Decoded{}, false
	}
	if !sid.Valid(m[1]) {
		return Decoded{}, false
	}
	return Decoded{SID: m[1], Sink: unescape(m[3])}, true
}

// ExtractSink returns the sink path literal of a recognised probe.
func ExtractSink(text string) (string, bool) {
	d, ok := Decode(text)
	if !ok {
		return "", false
	}
	return d.Sink, true
}

// Retarget rewrites a recognised probe's sink path to newSink while
// preserving its sid. It returns the original text unchanged if text
// is not a recognised probe.
func Retarget(text, newSink string) string {
	d, ok := Decode(text)
	if !ok {
		return text
	}
	return Encode(d.SID, newSink)
}

func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
