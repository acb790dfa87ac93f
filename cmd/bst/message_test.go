package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/buildstream-go/buildstream/internal/bstcontext"
	"github.com/buildstream-go/buildstream/internal/scheduler"
)

func TestMessagePrinterIncludesElementActionAndText(t *testing.T) {
	var buf bytes.Buffer
	print := newMessagePrinter(&buf)
	print(bstcontext.Message{Kind: bstcontext.Fail, ElementID: "hello.bst", Action: "build", Text: "boom"})
	assert.Contains(t, buf.String(), "hello.bst:build")
	assert.Contains(t, buf.String(), "boom")
}

func TestPrintReportRendersAllThreeQueues(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, scheduler.Report{
		Fetch: scheduler.Result{Succeeded: []string{"a.bst"}},
		Build: scheduler.Result{Failed: []string{"b.bst"}},
		Push:  scheduler.Result{Skipped: []string{"c.bst"}},
	})
	out := buf.String()
	assert.Contains(t, out, "fetch")
	assert.Contains(t, out, "build")
	assert.Contains(t, out, "push")
}
