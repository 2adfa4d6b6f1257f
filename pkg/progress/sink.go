// Package progress receives per-file transfer updates and renders them.
//
// A Sink hands out one Handle per file. Each Handle is written by exactly one
// transfer task, while the Sink itself may be called from many goroutines.
package progress

import (
	"fmt"
	"io"
	"sync"
)

// Sink aggregates progress for a whole run.
type Sink interface {
	// NewJob registers a new per-file bar with the given total length.
	NewJob(total int64) Handle
	// Println prints an out-of-band line (warnings, errors) without
	// corrupting the rendered bars.
	Println(text string)
	// Close flushes and stops rendering.
	Close() error
}

// Handle is the per-file view of a Sink.
type Handle interface {
	SetLength(n int64)
	SetPosition(n int64)
	SetMessage(msg string)
	Advance(n int64)
	Finish(msg string)
}

// Nop returns a Sink that discards everything.
func Nop() Sink {
	return nopSink{}
}

type nopSink struct{}

func (nopSink) NewJob(int64) Handle { return nopHandle{} }
func (nopSink) Println(string)      {}
func (nopSink) Close() error        { return nil }

type nopHandle struct{}

func (nopHandle) SetLength(int64)   {}
func (nopHandle) SetPosition(int64) {}
func (nopHandle) SetMessage(string) {}
func (nopHandle) Advance(int64)     {}
func (nopHandle) Finish(string)     {}

// FormatBytes formats bytes as human-readable size
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatRate formats a bytes-per-second rate.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return FormatBytes(int64(bytesPerSec)) + "/s"
}

// Lines returns a Sink that draws no bars but still writes Println text to w,
// one line each.
func Lines(w io.Writer) Sink {
	return &lineSink{w: w}
}

type lineSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *lineSink) NewJob(int64) Handle { return nopHandle{} }

func (s *lineSink) Println(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, text)
}

func (s *lineSink) Close() error { return nil }
