package engine

import (
	"path/filepath"
	"time"
)

const (
	// DefaultConcurrency is the number of files moved at once.
	DefaultConcurrency = 4
	// DefaultBufferSize is the copy buffer; the resume detector reads half of
	// it from each side.
	DefaultBufferSize = 10_000_000
	// jobQueueSize bounds how far enumeration can run ahead of the workers.
	jobQueueSize = 1000
)

// MoveJob is one file's source to destination transfer.
type MoveJob struct {
	Source      string
	Destination string
}

// Name is the source base name, used in progress messages.
func (j MoveJob) Name() string {
	return filepath.Base(j.Source)
}

// Outcome is the result of one MoveJob. Err is nil on success.
type Outcome struct {
	Job      MoveJob
	Resumed  int64 // bytes skipped because the destination already held them
	Copied   int64 // bytes written in this run
	Duration time.Duration
	Err      error
}

// OK reports whether the job succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}
