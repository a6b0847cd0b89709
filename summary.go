package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/output"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
	"github.com/mattn/go-runewidth"
)

// batchSummary pairs a batch with what was written for it.
type batchSummary struct {
	Batch  ttypes.FileBatch
	Result output.Result
	Err    error
}

const (
	colStatus = 10
	colLines  = 12
	colAudio  = 10
)

// printSummary writes one row per batch followed by the failed lines.
func printSummary(w io.Writer, rows []batchSummary, width int) {
	nameWidth := width - colStatus - colLines - colAudio - 8
	if nameWidth < 12 {
		nameWidth = 12
	}

	header := cell("FILE", nameWidth) + "  " + cell("STATUS", colStatus) + "  " + cell("DONE/FAIL", colLines) + "  " + cell("AUDIO", colAudio)
	fmt.Fprintln(w, headerStyle.Render(header))

	var totalDone, totalFailed, totalFiles int
	for _, r := range rows {
		done, failed := r.Batch.Counts()
		totalDone += done
		totalFailed += failed
		totalFiles += len(r.Result.LineFiles)
		if r.Result.MergedFile != "" {
			totalFiles++
		}

		status := r.Batch.Status
		if r.Err != nil && status != ttypes.StatusError {
			status = ttypes.StatusError
		}

		audio := r.Result.Report.Duration
		if audio == "" {
			audio = "-"
		}

		fmt.Fprintln(w,
			cell(r.Batch.Name, nameWidth)+"  "+
				statusStyle(status).Render(cell(status.String(), colStatus))+"  "+
				cell(fmt.Sprintf("%d/%d", done, failed), colLines)+"  "+
				cell(audio, colAudio),
		)
		if r.Result.MergedFile != "" {
			fmt.Fprintln(w, faintStyle.Render("  -> "+filepath.Base(r.Result.MergedFile)))
		}
		if r.Err != nil {
			fmt.Fprintln(w, errorStyle.Render("  ! "+r.Err.Error()))
		}
	}

	var failedLines []string
	for _, r := range rows {
		for _, l := range r.Batch.Lines {
			if l.Status == ttypes.StatusError {
				failedLines = append(failedLines, fmt.Sprintf("  %s #%s: %s", r.Batch.Name, l.ID, runewidth.Truncate(l.Error, width-8, "…")))
			}
		}
	}
	if len(failedLines) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("FAILED LINES"))
		fmt.Fprintln(w, errorStyle.Render(strings.Join(failedLines, "\n")))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, faintStyle.Render(fmt.Sprintf("%s converted, %s failed, %s written",
		humanize.Comma(int64(totalDone))+" "+plural(totalDone, "line"),
		humanize.Comma(int64(totalFailed)),
		humanize.Comma(int64(totalFiles))+" "+plural(totalFiles, "file"),
	)))
}

// cell pads or truncates s to exactly n display columns.
func cell(s string, n int) string {
	if runewidth.StringWidth(s) > n {
		s = runewidth.Truncate(s, n, "…")
	}
	return runewidth.FillRight(s, n)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
