package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schollz/progressbar/v3"

	"github.com/buildstream-go/buildstream/internal/bstcontext"
	"github.com/buildstream-go/buildstream/internal/scheduler"
)

// newMessagePrinter renders each bus message the Context dispatches
// (kind, element-id, action, text, detail, elapsed, logfile) as one
// colorized line.
func newMessagePrinter(w io.Writer) func(bstcontext.Message) {
	return func(msg bstcontext.Message) {
		line := fmt.Sprintf("[%s:%s] %s", msg.ElementID, msg.Action, msg.Kind)
		if msg.Text != "" {
			line += ": " + msg.Text
		}
		switch msg.Kind {
		case bstcontext.Fail, bstcontext.Bug:
			color.New(color.FgRed).Fprintln(w, line)
		case bstcontext.Warn:
			color.New(color.FgYellow).Fprintln(w, line)
		case bstcontext.Success:
			color.New(color.FgGreen).Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
}

// newProgressReporter returns a scheduler OnEvent callback that advances a
// terminal progress bar once per terminal state transition (success,
// failure, or skip) across all three queues, plus a finish func that closes
// the bar. total is the element count each queue processes at most once.
func newProgressReporter(total int) (func(queue, id string, state scheduler.State, err error), func()) {
	bar := progressbar.Default(int64(total) * 3)
	onEvent := func(queue, id string, state scheduler.State, err error) {
		switch state {
		case scheduler.Succeeded, scheduler.Failed, scheduler.Skipped:
			_ = bar.Add(1)
		}
	}
	return onEvent, func() { _ = bar.Finish() }
}

// printReport renders a Pipeline's fetch/build/push results as a summary
// table.
func printReport(w io.Writer, report scheduler.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Queue", "Succeeded", "Failed", "Skipped"})
	for _, row := range []struct {
		name   string
		result scheduler.Result
	}{
		{"fetch", report.Fetch},
		{"build", report.Build},
		{"push", report.Push},
	} {
		t.AppendRow(table.Row{row.name, len(row.result.Succeeded), len(row.result.Failed), len(row.result.Skipped)})
	}
	t.Render()
}
