// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package report implements the Reporter (spec.md component G): it
// serialises ranked rows to CSV or Markdown with stable ordering and
// deterministic float formatting, and renders the console top-N
// summary.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/jakechild/gosbfl/internal/rank"
)

// Format selects the on-disk report serialisation.
type Format string

const (
	CSV      Format = "csv"
	Markdown Format = "markdown"
)

// ParseFormat accepts "csv", "markdown", or "md" (spec.md §6).
func ParseFormat(s string) (Format, error) {
	switch s {
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	default:
		return "", fmt.Errorf("report: unknown format %q (want csv, markdown, or md)", s)
	}
}

// Columns are the report's columns in fixed order (spec.md §4.7).
var Columns = []string{"sid", "file", "line", "snippet", "Tarantula", "Ochiai", "DStar", "Op2", "Jaccard"}

// DefaultPath returns the default report path for format f, written
// to the current working directory (spec.md §4.7, §6).
func DefaultPath(f Format) string {
	switch f {
	case Markdown:
		return "suspiciousness_report.md"
	default:
		return "suspiciousness_report.csv"
	}
}

// Write renders rows (already ordered by the Ranker) to path in
// format f, atomically via write-and-rename (spec.md §4.7, §7).
func Write(path string, f Format, rows []rank.Row, topN int) error {
	if topN > 0 && topN < len(rows) {
		rows = rows[:topN]
	}

	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", tmp, err)
	}

	var writeErr error
	switch f {
	case Markdown:
		writeErr = writeMarkdown(out, rows)
	default:
		writeErr = writeCSV(out, rows)
	}

	if cerr := out.Close(); writeErr == nil {
		writeErr = cerr
	}
	if writeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("report: write %s: %w", path, writeErr)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("report: rename into %s: %w", path, err)
	}
	return nil
}

func writeCSV(w io.Writer, rows []rank.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(csvRecord(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRecord(r rank.Row) []string {
	rec := make([]string, 0, len(Columns))
	rec = append(rec, r.SID, r.File, strconv.Itoa(r.Line), r.Snippet)
	for _, name := range []string{"Tarantula", "Ochiai", "DStar", "Op2", "Jaccard"} {
		rec = append(rec, formatScore(r.Scores[name], ""))
	}
	return rec
}

func writeMarkdown(w io.Writer, rows []rank.Row) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(Columns)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetHeaderLine(true)
	table.SetRowLine(false)

	for _, r := range rows {
		table.Append(mdRecord(r))
	}
	table.Render()
	return nil
}

func mdRecord(r rank.Row) []string {
	rec := []string{r.SID, r.File, strconv.Itoa(r.Line), r.Snippet}
	for _, name := range []string{"Tarantula", "Ochiai", "DStar", "Op2", "Jaccard"} {
		rec = append(rec, formatScore(r.Scores[name], "-"))
	}
	return rec
}

// formatScore renders a Score per spec.md §4.7: F6 (six fractional
// digits) for defined finite values, the literal "Infinity" for
// positive infinity, and undefinedMark (empty for CSV, "-" for
// Markdown) when undefined.
func formatScore(s rank.Score, undefinedMark string) string {
	if !s.Ok {
		return undefinedMark
	}
	if math.IsInf(s.Value, 1) {
		return "Infinity"
	}
	return strconv.FormatFloat(s.Value, 'f', 6, 64)
}

// Summary renders the top-N rows to w as a console table with the same
// cells as the Markdown report (undefined scores as "-"), in
// tablewriter's default bordered style. A topN of zero or less shows
// the first 10 rows (spec.md §4.7).
func Summary(w io.Writer, rows []rank.Row, topN int) {
	if topN <= 0 {
		topN = 10
	}
	if topN < len(rows) {
		rows = rows[:topN]
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(Columns)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, r := range rows {
		table.Append(mdRecord(r))
	}
	table.Render()
}
