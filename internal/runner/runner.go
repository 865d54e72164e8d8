// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package runner implements the Runner (spec.md component D): build
// the project under test once, then execute each discovered test in
// a fresh subprocess, promoting its probe output into a per-test
// coverage file between runs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/jakechild/gosbfl/internal/discover"
	"github.com/jakechild/gosbfl/internal/log"
)

// TempCoverageName is the fixed, well-known temporary coverage file
// every probe writes to (spec.md §3).
const TempCoverageName = "__current.coverage.tmp"

// DefaultTimeout is the per-test wall-clock timeout (spec.md §4.4).
const DefaultTimeout = 30 * time.Second

// ErrBuildFailure is returned when the opaque build subprocess exits
// non-zero; the run is aborted with no report (spec.md §7).
var ErrBuildFailure = errors.New("runner: build failed")

// Options configures one Runner.
type Options struct {
	// ModuleRoot is the project-under-test root the build subprocess
	// runs from.
	ModuleRoot string
	// CoverageDir holds promoted per-test coverage files plus the
	// temporary rendezvous file.
	CoverageDir string
	// Timeout bounds each individual test's wall-clock time. Zero
	// means DefaultTimeout.
	Timeout time.Duration
	// PackageOf resolves a test's source file to the package argument
	// passed to `go test`. Defaults to the file's directory.
	PackageOf func(test discover.Test) string
	// Verbose surfaces build/test stdout+stderr even on success.
	Verbose bool

	// RunBuild and RunTest are the two opaque subprocess contracts
	// named in spec.md §6. Overriding them lets tests substitute a
	// fake driver instead of invoking the real `go` toolchain; the
	// defaults shell out to `go build`/`go test`.
	RunBuild func(ctx context.Context, dir string) ([]byte, error)
	RunTest  func(ctx context.Context, dir, pkg, name string) ([]byte, error)
}

// Runner executes discovered tests serially, one subprocess at a
// time, promoting coverage between them (spec.md §5: promotion for
// test T completes before T+1 starts).
type Runner struct {
	opts Options
}

// New returns a Runner configured by opts.
func New(opts Options) *Runner {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PackageOf == nil {
		opts.PackageOf = func(t discover.Test) string { return filepath.Dir(t.File) }
	}
	if opts.RunBuild == nil {
		opts.RunBuild = func(ctx context.Context, dir string) ([]byte, error) {
			cmd := exec.CommandContext(ctx, "go", "build", "./...")
			cmd.Dir = dir
			return cmd.CombinedOutput()
		}
	}
	if opts.RunTest == nil {
		opts.RunTest = func(ctx context.Context, dir, pkg, name string) ([]byte, error) {
			cmd := exec.CommandContext(ctx, "go", "test", "-run", "^"+name+"$", "-count=1", pkg)
			cmd.Dir = dir
			return cmd.CombinedOutput()
		}
	}
	return &Runner{opts: opts}
}

// Run builds the project once, then runs each test in discovery
// order, returning the stem -> pass/fail map (spec.md §4.4).
func (r *Runner) Run(ctx context.Context, tests []discover.Test) (map[string]bool, error) {
	if err := r.resetCoverageDir(); err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	if err := r.build(ctx); err != nil {
		return map[string]bool{}, err
	}

	results := make(map[string]bool, len(tests))
	for _, t := range tests {
		pass := r.runOne(ctx, t)
		results[t.Stem()] = pass
		r.promote(t)
	}
	return results, nil
}

func (r *Runner) resetCoverageDir() error {
	if err := os.RemoveAll(r.opts.CoverageDir); err != nil {
		log.Warnf("runner: could not clear coverage dir %s: %v", r.opts.CoverageDir, err)
	}
	return os.MkdirAll(r.opts.CoverageDir, 0755)
}

func (r *Runner) build(ctx context.Context) error {
	out, err := r.opts.RunBuild(ctx, r.opts.ModuleRoot)
	if err != nil {
		log.Errorf("runner: build failed:\n%s", out)
		return fmt.Errorf("%w: %s", ErrBuildFailure, err)
	}
	if r.opts.Verbose {
		log.Infof("runner: build output:\n%s", out)
	}
	return nil
}

// runOne runs a single test's subprocess and reports whether it
// passed. It never returns an error: a crashed or timed-out test is
// simply recorded as failed (spec.md §7: TestTimeout is per-item
// recoverable).
func (r *Runner) runOne(ctx context.Context, t discover.Test) bool {
	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	pkg := r.opts.PackageOf(t)
	out, err := r.opts.RunTest(runCtx, r.opts.ModuleRoot, pkg, t.MethodName)

	if runCtx.Err() == context.DeadlineExceeded {
		log.Warnf("runner: test %s timed out after %s", t.FullyQualified, r.opts.Timeout)
		return false
	}
	if r.opts.Verbose || err != nil {
		log.Infof("runner: %s output:\n%s", t.FullyQualified, out)
	}
	return err == nil
}

// promote implements spec.md §4.4 step d: delete any existing
// per-test coverage file, atomic-rename the temp file over it, warn
// and continue if the temp file never appeared.
func (r *Runner) promote(t discover.Test) {
	tmp := filepath.Join(r.opts.CoverageDir, TempCoverageName)
	final := filepath.Join(r.opts.CoverageDir, t.Stem()+".coverage")

	if _, err := os.Stat(tmp); err != nil {
		log.Warnf("runner: %s produced no coverage (promotion skipped)", t.FullyQualified)
		return
	}

	os.Remove(final) // best-effort: fine if it doesn't exist yet

	if err := os.Rename(tmp, final); err != nil {
		log.Warnf("runner: promoting coverage for %s failed: %v", t.FullyQualified, err)
		os.Remove(tmp)
	}
}
