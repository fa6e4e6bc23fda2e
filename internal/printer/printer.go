// Package printer writes the human-facing progress output of a sync run.
// Diagnostic logging goes through slog; this package only renders what an
// operator watching the terminal needs to see.
package printer

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Markers prefixed to status lines
const (
	MarkSuccess = "✅"
	MarkFailure = "❌"
	MarkInfo    = "ℹ️"
	MarkWarn    = "⚠️"
)

// Status of a step in the run summary
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Row is one line of the run summary
type Row struct {
	Step     string
	Status   Status
	Duration time.Duration
	Detail   string
}

// Printer renders progress output to a writer. Colors are only emitted when
// the writer is a terminal.
type Printer struct {
	w       io.Writer
	heading lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	info    lipgloss.Style
	warn    lipgloss.Style
}

// New creates a printer writing to w
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		heading: r.NewStyle().Bold(true),
		success: r.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
		failure: r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		info:    r.NewStyle().Foreground(lipgloss.Color("#5B8DEF")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#F7B801")),
	}
}

// Writer returns the underlying writer for free-form output
func (p *Printer) Writer() io.Writer {
	return p.w
}

// Heading announces a step, e.g. "--- Sync from cloud ---"
func (p *Printer) Heading(title string) {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.heading.Render("--- "+title+" ---"))
}

func (p *Printer) Success(format string, args ...any) {
	p.marked(p.success, MarkSuccess, format, args...)
}

func (p *Printer) Failure(format string, args ...any) {
	p.marked(p.failure, MarkFailure, format, args...)
}

func (p *Printer) Info(format string, args ...any) {
	p.marked(p.info, MarkInfo, format, args...)
}

func (p *Printer) Warn(format string, args ...any) {
	p.marked(p.warn, MarkWarn, format, args...)
}

// Line writes an unstyled line
func (p *Printer) Line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *Printer) marked(style lipgloss.Style, mark, format string, args ...any) {
	fmt.Fprintln(p.w, mark+" "+style.Render(fmt.Sprintf(format, args...)))
}

// Summary renders the per-step outcome table
func (p *Printer) Summary(rows []Row) {
	if len(rows) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(p.w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"STEP", "STATUS", "DURATION", "DETAILS"})
	for _, row := range rows {
		t.AppendRow(table.Row{row.Step, statusLabel(row.Status), formatDuration(row), row.Detail})
	}
	fmt.Fprintln(p.w)
	t.Render()
}

func statusLabel(s Status) string {
	switch s {
	case StatusSuccess:
		return MarkSuccess + " " + string(s)
	case StatusFailed:
		return MarkFailure + " " + string(s)
	}
	return string(s)
}

func formatDuration(row Row) string {
	if row.Status == StatusSkipped {
		return "-"
	}
	return row.Duration.Round(time.Millisecond).String()
}
