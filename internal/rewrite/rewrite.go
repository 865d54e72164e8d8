// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package rewrite implements the AST Rewriter (spec.md component B):
// Instrument injects a probe before every instrumentable statement in
// a Go source file, Retarget repoints existing probes at a new sink
// path, and Strip removes every probe, restoring the file to its
// pre-instrumented shape.
package rewrite

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/tools/go/ast/astutil"

	"github.com/jakechild/gosbfl/internal/probe"
	"github.com/jakechild/gosbfl/internal/sid"
)

// Entry is one instrumented statement's identifier-map record
// (spec.md §3).
type Entry struct {
	File    string
	Line    int
	Snippet string
}

// Rewriter parses, instruments, retargets, and strips production
// source files. A single Rewriter's Registry enforces sid uniqueness
// across an entire tree-wide Instrument pass.
type Rewriter struct {
	Registry *sid.Registry
}

// New returns a Rewriter backed by a fresh sid registry.
func New() *Rewriter {
	return &Rewriter{Registry: sid.NewRegistry()}
}

// AlreadyInstrumented reports whether path contains any recognised
// probe, which determines whether Instrument or Retarget owns it
// (spec.md §4.2: "Skip files that already contain any recognised
// probe"). Recognition is off the sentinel comment genuinely present
// in the source, not the callee identifier, so a renamed or wrapped
// mark function still round-trips (spec.md §9).
func AlreadyInstrumented(path string) (bool, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	cmap := ast.NewCommentMap(fset, file, file.Comments)
	found := false
	ast.Inspect(file, func(n ast.Node) bool {
		if found {
			return false
		}
		if es, ok := n.(*ast.ExprStmt); ok {
			if _, ok := decodeProbeStmt(cmap, es); ok {
				found = true
			}
		}
		return true
	})
	return found, nil
}

// Instrument parses path, injects a probe before every instrumentable
// statement with a freshly drawn sid, and writes the file back. It
// returns the identifier-map entries for the probes it added and
// whether the file changed. Files that already contain a recognised
// probe are left untouched (see AlreadyInstrumented), so a second
// Instrument pass over an instrumented file is a no-op; InstrumentTree
// routes such files to Retarget instead.
func (rw *Rewriter) Instrument(path, sink string) (map[string]Entry, bool, error) {
	already, err := AlreadyInstrumented(path)
	if err != nil {
		return nil, false, err
	}
	if already {
		return map[string]Entry{}, false, nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", path, err)
	}

	entries := map[string]Entry{}
	ins := &instrumenter{fset: fset, file: file, path: path, sink: sink, reg: rw.Registry, entries: entries}

	changed := false
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		if ins.block(fn.Body) {
			changed = true
		}
	}

	if !changed {
		return entries, false, nil
	}

	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return nil, false, fmt.Errorf("render %s: %w", path, err)
	}
	// The sentinel comment is stamped onto the rendered text rather
	// than attached to the AST: go/printer interleaves free-floating
	// comments by absolute source position, which a freshly
	// synthesized, position-less CallExpr does not have. Every bare
	// mark-call line the formatter just emitted is one this pass
	// added, since Instrument only ever runs on a file
	// AlreadyInstrumented has already ruled out.
	if err := writeBytes(injectSentinels(buf.Bytes()), path); err != nil {
		return nil, false, err
	}
	if err := ensureMarkHelper(filepath.Dir(path)); err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// markCallLine matches a freshly rendered, not-yet-commented mark
// call on its own line, capturing the line's leading indentation and
// its sid/sink string literal contents.
var markCallLine = regexp.MustCompile(`(?m)^([ \t]*)` + regexp.QuoteMeta(probe.MarkFunc) + `\("([0-9a-fA-F-]+)",\s*"((?:[^"\\]|\\.)*)"\)\s*$`)

// injectSentinels turns every bare mark-call line Instrument's AST
// pass produced into the two-line sentinel-comment-plus-call probe
// form Encode renders, preserving the call's original indentation.
func injectSentinels(src []byte) []byte {
	return markCallLine.ReplaceAllFunc(src, func(line []byte) []byte {
		m := markCallLine.FindSubmatch(line)
		indent, sidVal := string(m[1]), string(m[2])
		sinkVal, err := strconv.Unquote(`"` + string(m[3]) + `"`)
		if err != nil {
			return line
		}
		lines := strings.Split(probe.Encode(sidVal, sinkVal), "\n")
		for i := range lines {
			lines[i] = indent + lines[i]
		}
		return []byte(strings.Join(lines, "\n"))
	})
}

// Retarget rewrites the sink literal of every recognised probe in
// path to newSink, leaving every other node untouched, and returns the
// identifier-map entries for every probe it found — re-derived from
// the surviving source on every call so a --watch re-instrumentation
// pass (which always routes an already-instrumented file to Retarget,
// never Instrument) does not lose its File/Line/Snippet columns. Each
// entry describes the statement that follows the probe, as
// Instrument's entries do. It writes the file back only if at least
// one probe's sink changed, and skips the write when the xxhash of the
// re-rendered file equals that of the original bytes. A Retarget to
// the sink every probe already has returns before rendering, so
// Retarget∘Retarget(same sink) never writes.
func (rw *Rewriter) Retarget(path, newSink string) (map[string]Entry, bool, error) {
	orig, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, orig, parser.ParseComments)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", path, err)
	}
	cmap := ast.NewCommentMap(fset, file, file.Comments)

	entries := map[string]Entry{}
	changed := false
	result := astutil.Apply(file, func(c *astutil.Cursor) bool {
		es, ok := c.Node().(*ast.ExprStmt)
		if !ok {
			return true
		}
		text, ok := probeText(cmap, es)
		if !ok {
			return true
		}
		d, ok := probe.Decode(text)
		if !ok {
			return true
		}
		owner := ast.Stmt(es)
		var siblings []ast.Stmt
		switch p := c.Parent().(type) {
		case *ast.BlockStmt:
			siblings = p.List
		case *ast.CaseClause:
			siblings = p.Body
		case *ast.CommClause:
			siblings = p.Body
		}
		if i := c.Index(); i >= 0 && i+1 < len(siblings) {
			owner = siblings[i+1]
		}
		entries[d.SID] = Entry{File: path, Line: fset.Position(owner.Pos()).Line, Snippet: snippet(fset, owner)}
		if d.Sink == newSink {
			return true // already targeting newSink: no-op, matches idempotence contract
		}
		rd, _ := probe.Decode(probe.Retarget(text, newSink))
		call := es.X.(*ast.CallExpr)
		call.Args[1] = &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(rd.Sink)}
		changed = true
		return true
	}, nil)

	if !changed {
		return entries, false, nil
	}

	var buf bytes.Buffer
	if err := format.Node(&buf, fset, result.(*ast.File)); err != nil {
		return nil, false, fmt.Errorf("render %s: %w", path, err)
	}
	if xxhash.Sum64(buf.Bytes()) == xxhash.Sum64(orig) {
		return entries, false, nil
	}
	return entries, true, writeBytes(buf.Bytes(), path)
}

// Strip deletes every statement that is a recognised probe, along
// with its sentinel comment, and writes the file back.
func (rw *Rewriter) Strip(path string) (bool, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	cmap := ast.NewCommentMap(fset, file, file.Comments)

	changed := false
	result := astutil.Apply(file, func(c *astutil.Cursor) bool {
		es, ok := c.Node().(*ast.ExprStmt)
		if !ok {
			return true
		}
		if _, ok := decodeProbeStmt(cmap, es); !ok {
			return true
		}
		c.Delete()
		changed = true
		return true
	}, nil)

	if !changed {
		return false, nil
	}

	resultFile := result.(*ast.File)
	// cmap.Filter drops the sentinel comment groups that belonged to
	// the now-deleted statements, the documented way to keep
	// file.Comments consistent with a tree astutil.Apply has edited.
	resultFile.Comments = cmap.Filter(resultFile).Comments()

	if err := writeFile(fset, resultFile, path); err != nil {
		return false, err
	}
	removeMarkHelperIfOrphaned(filepath.Dir(path))
	return true, nil
}

// instrumenter holds the state threaded through one file's Instrument
// pass: the fileset/file being edited, the sink every new probe is
// baked with, the registry drawing fresh sids, and the identifier map
// being built up.
type instrumenter struct {
	fset    *token.FileSet
	file    *ast.File
	path    string
	sink    string
	reg     *sid.Registry
	entries map[string]Entry
}

// block instruments the statements of a block in place, recursing
// into nested control-flow bodies, and reports whether anything
// changed.
func (ins *instrumenter) block(b *ast.BlockStmt) bool {
	newList, changed := ins.stmtList(b.List)
	b.List = newList
	return changed
}

func (ins *instrumenter) stmtList(list []ast.Stmt) ([]ast.Stmt, bool) {
	out := make([]ast.Stmt, 0, len(list)+len(list)/2)
	changed := false

	for _, stmt := range list {
		ins.recurse(stmt)
		if ins.instrumentable(stmt) {
			out = append(out, ins.newProbeStmt(stmt))
			changed = true
		}
		out = append(out, stmt)
	}
	return out, changed
}

// recurse descends into a statement's nested blocks/bodies so that
// statements inside if/for/switch/select constructs (and function
// literals) are instrumented too.
func (ins *instrumenter) recurse(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.BlockStmt:
		ins.block(s)
	case *ast.IfStmt:
		ins.block(s.Body)
		switch e := s.Else.(type) {
		case *ast.BlockStmt:
			ins.block(e)
		case *ast.IfStmt:
			ins.recurse(e)
		}
		ins.recurseExpr(s.Cond)
	case *ast.ForStmt:
		ins.block(s.Body)
	case *ast.RangeStmt:
		ins.block(s.Body)
	case *ast.SwitchStmt:
		ins.caseClauses(s.Body)
	case *ast.TypeSwitchStmt:
		ins.caseClauses(s.Body)
	case *ast.SelectStmt:
		ins.commClauses(s.Body)
	case *ast.LabeledStmt:
		ins.recurse(s.Stmt)
	case *ast.ExprStmt:
		ins.recurseExpr(s.X)
	case *ast.AssignStmt:
		for _, rhs := range s.Rhs {
			ins.recurseExpr(rhs)
		}
	case *ast.GoStmt:
		ins.recurseExpr(s.Call)
	case *ast.DeferStmt:
		ins.recurseExpr(s.Call)
	case *ast.ReturnStmt:
		for _, r := range s.Results {
			ins.recurseExpr(r)
		}
	}
}

// recurseExpr descends into function literals nested inside
// expressions so closures get instrumented too.
func (ins *instrumenter) recurseExpr(expr ast.Expr) {
	if expr == nil {
		return
	}
	ast.Inspect(expr, func(n ast.Node) bool {
		lit, ok := n.(*ast.FuncLit)
		if !ok {
			return true
		}
		ins.block(lit.Body)
		return false // block() already recursed into lit.Body itself
	})
}

func (ins *instrumenter) caseClauses(b *ast.BlockStmt) {
	for _, stmt := range b.List {
		cc, ok := stmt.(*ast.CaseClause)
		if !ok {
			continue
		}
		newBody, changed := ins.stmtList(cc.Body)
		if changed {
			cc.Body = newBody
		}
	}
}

func (ins *instrumenter) commClauses(b *ast.BlockStmt) {
	for _, stmt := range b.List {
		cc, ok := stmt.(*ast.CommClause)
		if !ok {
			continue
		}
		newBody, changed := ins.stmtList(cc.Body)
		if changed {
			cc.Body = newBody
		}
	}
}

// instrumentable implements spec.md's instrumentable-statement
// definition (§4.2), translated to Go statement kinds in
// SPEC_FULL.md.
func (ins *instrumenter) instrumentable(stmt ast.Stmt) bool {
	switch s := stmt.(type) {
	case *ast.ExprStmt, *ast.AssignStmt, *ast.ReturnStmt, *ast.BranchStmt,
		*ast.SendStmt, *ast.IncDecStmt, *ast.GoStmt, *ast.DeferStmt,
		*ast.IfStmt, *ast.ForStmt, *ast.RangeStmt, *ast.SwitchStmt,
		*ast.TypeSwitchStmt, *ast.SelectStmt:
		return true
	case *ast.DeclStmt:
		gd, ok := s.Decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.VAR {
			return false
		}
		for _, spec := range gd.Specs {
			if vs, ok := spec.(*ast.ValueSpec); ok && len(vs.Values) > 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (ins *instrumenter) newProbeStmt(owner ast.Stmt) ast.Stmt {
	newSid := ins.reg.Next()
	pos := owner.Pos()
	line := ins.fset.Position(pos).Line
	ins.entries[newSid] = Entry{
		File:    ins.path,
		Line:    line,
		Snippet: snippet(ins.fset, owner),
	}
	return &ast.ExprStmt{
		X: &ast.CallExpr{
			Fun: ast.NewIdent(probe.MarkFunc),
			Args: []ast.Expr{
				&ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(newSid)},
				&ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(ins.sink)},
			},
		},
	}
}

func snippet(fset *token.FileSet, stmt ast.Stmt) string {
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, stmt); err != nil {
		return ""
	}
	s := oneLine(buf.String())
	const max = 80
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

// oneLine collapses a (possibly multi-line) rendered statement into a
// single display line for the report's "snippet" column.
func oneLine(s string) string {
	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		if r == '\n' || r == '\t' {
			r = ' '
		}
		if r == ' ' {
			if prevSpace {
				continue
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// probeText reconstructs the two-line comment+call text probe.Decode
// expects for es, reading the comment from the real source via cmap
// rather than fabricating one. It returns ok=false unless es is a
// two-string-literal-argument call with a genuine leading sentinel
// comment — recognition never inspects the callee's identifier, so a
// call renamed or wrapped after the fact is not disqualified by name
// alone (spec.md §9).
func probeText(cmap ast.CommentMap, es *ast.ExprStmt) (string, bool) {
	call, ok := es.X.(*ast.CallExpr)
	if !ok {
		return "", false
	}
	sidVal, sinkVal, ok := markCallArgs(call)
	if !ok {
		return "", false
	}
	comment := leadingSentinel(cmap[es])
	if comment == "" {
		return "", false
	}
	text := comment + "\n" + fmt.Sprintf("%s(%q, %q)", probe.MarkFunc, sidVal, sinkVal)
	if !probe.Recognise(text) {
		return "", false
	}
	return text, true
}

// decodeProbeStmt reports whether es is a recognised probe, decoding
// it through the probe codec rather than re-deriving its fields
// inline.
func decodeProbeStmt(cmap ast.CommentMap, es *ast.ExprStmt) (probe.Decoded, bool) {
	text, ok := probeText(cmap, es)
	if !ok {
		return probe.Decoded{}, false
	}
	return probe.Decode(text)
}

// leadingSentinel returns the text of the sentinel comment among
// groups, or "" if none of them is one.
func leadingSentinel(groups []*ast.CommentGroup) string {
	for _, g := range groups {
		for _, c := range g.List {
			if strings.HasPrefix(c.Text, probe.Sentinel) {
				return c.Text
			}
		}
	}
	return ""
}

// markCallArgs extracts the sid and sink string literals from a
// two-string-literal-argument call, the shape every probe call has.
// It deliberately does not check the callee's identifier: recognition
// is the caller's job, decided off the sentinel comment, so a call
// renamed or wrapped after the fact is not disqualified by name alone
// (spec.md §9).
func markCallArgs(call *ast.CallExpr) (sidVal, sinkVal string, ok bool) {
	if len(call.Args) != 2 {
		return "", "", false
	}
	sidLit, ok1 := call.Args[0].(*ast.BasicLit)
	sinkLit, ok2 := call.Args[1].(*ast.BasicLit)
	if !ok1 || !ok2 || sidLit.Kind != token.STRING || sinkLit.Kind != token.STRING {
		return "", "", false
	}
	sidVal, err := strconv.Unquote(sidLit.Value)
	if err != nil {
		return "", "", false
	}
	sinkVal, err = strconv.Unquote(sinkLit.Value)
	if err != nil {
		return "", "", false
	}
	return sidVal, sinkVal, true
}

func writeFile(fset *token.FileSet, file *ast.File, path string) error {
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	return writeBytes(buf.Bytes(), path)
}

// writeBytes performs the atomic sibling-temp-file-then-rename write
// every rewrite mode relies on (spec.md §4.2: "never a half-written
// .go file").
func writeBytes(data []byte, path string) error {
	tmp := path + ".sbfltmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
