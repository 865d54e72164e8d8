// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package cmd wires the Probe Codec, AST Rewriter, Test Discovery,
// Runner, Coverage Loader, Ranker, and Reporter into the command-line
// tool's single operation: instrument a project, run its tests, rank
// every instrumented statement by suspiciousness, and write a report.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jakechild/gosbfl/internal/log"
)

// enumFlag implements pflag.Value to restrict a flag to a fixed set
// of values, the same role the teacher's util.EnumFlag plays for
// --format/--explain/--target in cmd/test.go.
type enumFlag struct {
	value   string
	allowed []string
}

func newEnumFlag(def string, allowed []string) *enumFlag {
	return &enumFlag{value: def, allowed: allowed}
}

func (f *enumFlag) String() string { return f.value }

func (f *enumFlag) Set(v string) error {
	for _, a := range f.allowed {
		if v == a {
			f.value = v
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", strings.Join(f.allowed, ", "))
}

func (f *enumFlag) Type() string { return "string" }

type runParams struct {
	reset        bool
	verbose      bool
	cleanup      bool
	summary      bool
	top          int
	reportFormat string
	reportPath   string
	watch        bool

	output    io.Writer
	errOutput io.Writer
}

func newRunParams() runParams {
	return runParams{
		top:          10,
		reportFormat: "csv",
		output:       os.Stdout,
		errOutput:    os.Stderr,
	}
}

var params = newRunParams()

// RootCommand is the tool's single cobra command; it takes the
// three directory arguments spec.md §6 names and has no subcommands,
// mirroring the teacher's per-command *Params + newXxxCommandParams()
// + Flags().*Var wiring style (cmd/test.go) applied to a one-command
// CLI instead of a command tree.
var RootCommand = &cobra.Command{
	Use:   "gosbfl <solution-dir> <test-project-name> <project-under-test-name>",
	Short: "Spectrum-based fault localization for Go projects",
	Long: `gosbfl instruments a project's production source with per-statement
probes, runs its tests one at a time, loads the coverage each test
produced, ranks every instrumented statement by suspiciousness using
five SBFL formulas (Tarantula, Ochiai, D*, Op2, Jaccard), and writes
a CSV or Markdown report ordered by suspiciousness.

solution-dir is the root containing both the test project and the
project under test; test-project-name and project-under-test-name are
directory names under solution-dir (the same name may be given twice
when tests are co-located with the code they test, which is Go
convention).`,
	Args: cobra.ExactArgs(3),
	RunE: func(_ *cobra.Command, args []string) error {
		if params.verbose {
			if err := log.SetLevel("debug"); err != nil {
				return fmt.Errorf("gosbfl: %w", err)
			}
		}
		params.reportFormat = reportFormatFlag.String()
		exitCode, err := run(args, params)
		if err != nil {
			fmt.Fprintln(params.errOutput, err)
		}
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	},
}

var reportFormatFlag = newEnumFlag("csv", []string{"csv", "markdown", "md"})

func init() {
	addRunFlags(RootCommand.Flags(), &params)
}

// addRunFlags binds runParams to fs, mirroring the teacher's
// addBundleModeFlag/addIgnoreFlag-style standalone flag-binding
// functions in cmd/flags.go.
func addRunFlags(fs *pflag.FlagSet, p *runParams) {
	fs.BoolVarP(&p.reset, "reset", "r", false, "strip any existing probes and re-instrument from a clean slate")
	fs.BoolVarP(&p.verbose, "verbose", "v", false, "surface build/test subprocess output and debug logging")
	fs.BoolVarP(&p.cleanup, "cleanup", "c", false, "strip all probes from the project under test after the report is written")
	fs.BoolVarP(&p.summary, "summary", "s", false, "print a top-N console summary after writing the report")
	fs.IntVarP(&p.top, "top", "t", 10, "number of rows in the report and console summary (0 = all rows in the report; the summary then shows 10)")
	fs.VarP(reportFormatFlag, "report-format", "", "report format: csv, markdown, or md")
	fs.StringVar(&p.reportPath, "report-path", "", "report output path (defaults per --report-format)")
	fs.BoolVarP(&p.watch, "watch", "w", false, "re-run the pipeline on production or test source changes")
}
