// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/jakechild/gosbfl/internal/coverage"
	"github.com/jakechild/gosbfl/internal/discover"
	"github.com/jakechild/gosbfl/internal/log"
	"github.com/jakechild/gosbfl/internal/rank"
	"github.com/jakechild/gosbfl/internal/report"
	"github.com/jakechild/gosbfl/internal/rewrite"
	"github.com/jakechild/gosbfl/internal/runner"
)

// run executes one instrument -> test -> rank -> report pass and
// returns the process exit code, mirroring the shape of the teacher's
// opaTest (cmd/test.go): a (exitCode int, err error) pair the cobra
// RunE wrapper turns into os.Exit.
func run(args []string, p runParams) (int, error) {
	_, testProjectDir, projectDir, err := resolveDirs(args)
	if err != nil {
		return 1, fmt.Errorf("gosbfl: %w", err)
	}

	if err := doRun(testProjectDir, projectDir, p); err != nil {
		return 1, err
	}

	if !p.watch {
		return 0, nil
	}

	return watchLoop(testProjectDir, projectDir, p)
}

func resolveDirs(args []string) (solutionDir, testProjectDir, projectDir string, err error) {
	solutionDir = args[0]
	testProjectName, projectName := args[1], args[2]

	if info, statErr := os.Stat(solutionDir); statErr != nil || !info.IsDir() {
		return "", "", "", fmt.Errorf("solution directory %s not found", solutionDir)
	}

	testProjectDir = filepath.Join(solutionDir, testProjectName)
	projectDir = filepath.Join(solutionDir, projectName)

	for _, d := range []string{testProjectDir, projectDir} {
		if info, statErr := os.Stat(d); statErr != nil || !info.IsDir() {
			return "", "", "", fmt.Errorf("project directory %s not found", d)
		}
	}
	return solutionDir, testProjectDir, projectDir, nil
}

func doRun(testProjectDir, projectDir string, p runParams) error {
	if p.reset {
		if err := rewrite.StripTree(projectDir); err != nil {
			return fmt.Errorf("gosbfl: reset: %w", err)
		}
	}

	coverageDir := filepath.Join(projectDir, ".coverage")
	sink := filepath.Join(coverageDir, runner.TempCoverageName)

	identifiers, err := rewrite.InstrumentTree(projectDir, sink)
	if err != nil {
		return fmt.Errorf("gosbfl: instrument: %w", err)
	}
	log.Infof("gosbfl: instrumented %d statements under %s", len(identifiers), projectDir)

	importPath, err := moduleImportPath(projectDir)
	if err != nil {
		return fmt.Errorf("gosbfl: %w", err)
	}

	tests, err := discover.Discover(testProjectDir, func(pkgDir string) string {
		return joinImportPath(importPath, []string{projectDir, testProjectDir}, pkgDir)
	})
	if err != nil {
		return fmt.Errorf("gosbfl: discover: %w", err)
	}
	if len(tests) == 0 {
		log.Warnf("gosbfl: no tests discovered under %s", testProjectDir)
	}

	r := runner.New(runner.Options{
		ModuleRoot:  projectDir,
		CoverageDir: coverageDir,
		Verbose:     p.verbose,
		PackageOf: func(t discover.Test) string {
			return joinImportPath(importPath, []string{projectDir, testProjectDir}, filepath.Dir(t.File))
		},
	})

	pass, err := r.Run(context.Background(), tests)
	if err != nil {
		return fmt.Errorf("gosbfl: %w", err)
	}

	coverageByTest := coverage.Load(coverageDir, tests)
	rows := rank.Rank(identifiers, coverageByTest, pass)

	format, err := report.ParseFormat(p.reportFormat)
	if err != nil {
		return fmt.Errorf("gosbfl: %w", err)
	}
	path := p.reportPath
	if path == "" {
		path = report.DefaultPath(format)
	}
	if err := report.Write(path, format, rows, p.top); err != nil {
		return fmt.Errorf("gosbfl: %w", err)
	}
	log.Infof("gosbfl: wrote %s", path)

	if p.summary {
		report.Summary(p.output, rows, p.top)
	}

	if p.cleanup {
		if err := rewrite.StripTree(projectDir); err != nil {
			log.Warnf("gosbfl: cleanup: %v", err)
		}
	}

	return nil
}

// moduleImportPath reads the module directive from go.mod in dir
// using the same go.mod tooling cmd/go itself relies on, which
// correctly handles the module(\n\tpath\n) block form and comments
// that a line-oriented scan would get wrong.
func moduleImportPath(dir string) (string, error) {
	goModPath := filepath.Join(dir, "go.mod")
	data, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("read go.mod under %s: %w", dir, err)
	}
	path := modfile.ModulePath(data)
	if path == "" {
		return "", fmt.Errorf("no module directive found in %s", goModPath)
	}
	return path, nil
}

// joinImportPath maps an absolute package directory to its full
// import path given the module's declared path, resolving pkgDir
// against whichever of roots actually contains it (the test project
// and the project under test are allowed to be distinct trees that
// both live under the same Go module).
func joinImportPath(modulePath string, roots []string, pkgDir string) string {
	for _, root := range roots {
		rel, err := filepath.Rel(root, pkgDir)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if rel == "." {
			return modulePath
		}
		return modulePath + "/" + filepath.ToSlash(rel)
	}
	return modulePath
}
