// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package discover

import "go/ast"

// TestMarker is one entry in the recognised-attribute table. spec.md
// §4.3 names Fact/Theory/TestMethod/Test/DataTestMethod as
// case-insensitive attribute names; §9 asks that the set be a data
// table rather than hard-coded branches so frameworks can be added
// without structural change. Go has no attribute system, so each
// marker's Match function expresses the Go-convention analogue of
// that attribute's intent.
type TestMarker struct {
	Name  string
	Match func(*ast.FuncDecl) bool
}

// Markers is the recognised-attribute table, checked in order; the
// first match wins.
var Markers = []TestMarker{
	{Name: "Theory", Match: isTableDrivenTest},
	{Name: "DataTestMethod", Match: isTableDrivenTest},
	{Name: "Fact", Match: isZeroArgAssertionTest},
	{Name: "Test", Match: isStandardGoTest},
	{Name: "TestMethod", Match: isStandardGoTest},
}

// Recognise returns the name of the first marker in Markers that
// matches fn, or "" if none do.
func Recognise(fn *ast.FuncDecl) string {
	if fn.Recv != nil {
		return "" // test functions are package-level, never methods
	}
	for _, m := range Markers {
		if m.Match(fn) {
			return m.Name
		}
	}
	return ""
}

const testPrefix = "Test"

func hasTestPrefix(fn *ast.FuncDecl) bool {
	name := fn.Name.Name
	return len(name) > len(testPrefix) && name[:len(testPrefix)] == testPrefix &&
		!isLowerFirstRune(name[len(testPrefix):])
}

func isLowerFirstRune(s string) bool {
	if s == "" {
		return false
	}
	r := s[0]
	return r >= 'a' && r <= 'z'
}

// isStandardGoTest matches the conventional func TestXxx(t *testing.T)
// shape go test itself discovers.
func isStandardGoTest(fn *ast.FuncDecl) bool {
	if !hasTestPrefix(fn) {
		return false
	}
	return len(fn.Type.Params.List) == 1 && isTestingTParam(fn.Type.Params.List[0])
}

// isZeroArgAssertionTest matches a TestXxx() with no parameters: a
// table-free, assertion-only test in the spirit of an xUnit [Fact].
func isZeroArgAssertionTest(fn *ast.FuncDecl) bool {
	return hasTestPrefix(fn) && len(fn.Type.Params.List) == 0
}

// isTableDrivenTest matches the standard func TestXxx(t *testing.T)
// shape whose body contains a range loop over a plain identifier
// (typically a local table of cases; where the identifier is declared
// is not checked) — the idiomatic Go shape of a data-driven test,
// analogous to an xUnit [Theory]/[DataTestMethod].
func isTableDrivenTest(fn *ast.FuncDecl) bool {
	if !isStandardGoTest(fn) {
		return false
	}
	found := false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		if found {
			return false
		}
		rs, ok := n.(*ast.RangeStmt)
		if !ok {
			return true
		}
		if _, ok := rs.X.(*ast.Ident); ok {
			found = true
		}
		return true
	})
	return found
}

func isTestingTParam(field *ast.Field) bool {
	star, ok := field.Type.(*ast.StarExpr)
	if !ok {
		return false
	}
	sel, ok := star.X.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok {
		return false
	}
	return pkg.Name == "testing" && sel.Sel.Name == "T"
}
