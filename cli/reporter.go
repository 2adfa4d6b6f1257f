package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"GusMove/pkg/engine"
	"GusMove/pkg/progress"
)

// Reporter prints the start banner and the final summary of a run.
type Reporter interface {
	ReportStart(src, dst string, concurrency int)
	ReportComplete(report *engine.Report, err error)
	ReportError(err error)
}

// ConsoleReporter outputs human-readable summaries
type ConsoleReporter struct {
	w io.Writer
}

func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{w: w}
}

func (r *ConsoleReporter) ReportStart(src, dst string, concurrency int) {
	fmt.Fprintf(r.w, "GusMove - moving %s -> %s (concurrency %d)\n", src, dst, concurrency)
}

func (r *ConsoleReporter) ReportComplete(report *engine.Report, err error) {
	if report == nil {
		return
	}
	fmt.Fprintf(r.w, "Moved: %d | Failed: %d | Skipped: %d | Copied: %s | Resumed: %s | Took: %s\n",
		report.Moved, report.Failed, report.Skipped,
		progress.FormatBytes(report.BytesCopied),
		progress.FormatBytes(report.BytesResumed),
		report.Duration.Round(time.Millisecond))
	if report.Retried > 0 {
		fmt.Fprintf(r.w, "Retried: %d file(s) that failed in an earlier run\n", report.Retried)
	}
	if err == nil && !report.SourceRemoved {
		fmt.Fprintln(r.w, "Source kept: it still holds skipped symlinks")
	}
}

func (r *ConsoleReporter) ReportError(err error) {
	fmt.Fprintf(r.w, "Error: %v\n", err)
}

// JSONEvent is the structured event format for machine-readable output
type JSONEvent struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// JSONStartData describes the run about to start.
type JSONStartData struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Concurrency int    `json:"concurrency"`
}

// JSONFailure is one failed file.
type JSONFailure struct {
	Path  string `json:"path"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error"`
}

// JSONCompleteData contains the run summary in structured form
type JSONCompleteData struct {
	RunID         string        `json:"runId"`
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	Moved         int           `json:"moved"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	Retried       int           `json:"retried"`
	BytesCopied   int64         `json:"bytesCopied"`
	BytesResumed  int64         `json:"bytesResumed"`
	SourceRemoved bool          `json:"sourceRemoved"`
	DurationMs    int64         `json:"durationMs"`
	Failures      []JSONFailure `json:"failures,omitempty"`
}

// JSONErrorData contains error information in structured form
type JSONErrorData struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// JSONReporter outputs machine-readable JSON lines for scripting/automation
type JSONReporter struct {
	encoder *json.Encoder
}

func NewJSONReporter(w io.Writer) *JSONReporter {
	return &JSONReporter{
		encoder: json.NewEncoder(w),
	}
}

func (r *JSONReporter) emit(eventType string, data interface{}) {
	event := JSONEvent{
		Type:      eventType,
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Data:      data,
	}
	_ = r.encoder.Encode(event)
}

func (r *JSONReporter) ReportStart(src, dst string, concurrency int) {
	r.emit("start", JSONStartData{Source: src, Destination: dst, Concurrency: concurrency})
}

func (r *JSONReporter) ReportComplete(report *engine.Report, err error) {
	data := JSONCompleteData{Success: err == nil, Message: "move complete"}
	if err != nil {
		data.Message = err.Error()
	}
	if report != nil {
		data.RunID = report.RunID
		data.Moved = report.Moved
		data.Failed = report.Failed
		data.Skipped = report.Skipped
		data.Retried = report.Retried
		data.BytesCopied = report.BytesCopied
		data.BytesResumed = report.BytesResumed
		data.SourceRemoved = report.SourceRemoved
		data.DurationMs = report.Duration.Milliseconds()
		for _, f := range report.Failures() {
			data.Failures = append(data.Failures, JSONFailure{
				Path:  f.Job.Source,
				Kind:  errorKind(f.Err),
				Error: f.Err.Error(),
			})
		}
	}
	r.emit("complete", data)
}

func (r *JSONReporter) ReportError(err error) {
	r.emit("error", JSONErrorData{Kind: errorKind(err), Message: err.Error()})
}

func errorKind(err error) string {
	var me *engine.MoveError
	if errors.As(err, &me) {
		return string(me.Kind)
	}
	return ""
}
