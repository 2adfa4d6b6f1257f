// Package state keeps an append-only markdown journal of a move run.
//
// Line formats:
//
//	## Run <id> | Started: <timestamp>
//	- [x] <src> -> <dst> | Resumed: <n> | Bytes: <n>
//	- [ ] <src> | Error: <message>
//	- [s] <path> | Skipped: <reason>
//	- [d] <root> | Removed: <timestamp>
//	- [=] <state> | Moved: <n> | Failed: <n> | Skipped: <n>
package state

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"GusMove/internal/core"
)

const timeFormat = "2006-01-02 15:04:05"

var (
	movedPattern   = regexp.MustCompile(`^\s*-\s+\[x\]\s+(.+?)\s+->\s+(.+?)(?:\s*\|\s*Resumed:\s*(\d+))?(?:\s*\|\s*Bytes:\s*(\d+))?\s*$`)
	failedPattern  = regexp.MustCompile(`^\s*-\s+\[\s\]\s+(.+?)(?:\s*\|\s*Error:\s*(.*))?$`)
	skippedPattern = regexp.MustCompile(`^\s*-\s+\[s\]\s+(.+?)(?:\s*\|\s*Skipped:\s*(.*))?$`)
	removedPattern = regexp.MustCompile(`^\s*-\s+\[d\]\s+(.+?)(?:\s*\|\s*Removed:\s*(.*))?$`)
	runPattern     = regexp.MustCompile(`^##\s+Run\s+(\S+)`)
)

// Record is one parsed moved-file line.
type Record struct {
	Source      string
	Destination string
	Resumed     int64
	Bytes       int64
}

// Stats counts journal lines by kind, across every run in the file.
type Stats struct {
	Runs    int
	Moved   int
	Failed  int
	Skipped int
	Removed int
}

// Journal manages the markdown journal file with thread-safe operations
type Journal struct {
	mu     sync.Mutex
	fs     afero.Fs
	path   string
	file   afero.File
	writer *bufio.Writer
	moved  map[string]Record // src -> last moved record
	failed map[string]string // src -> last error, cleared by a later success
	stats  Stats
}

// Open loads an existing journal (if any) and opens it for appending.
func Open(fs afero.Fs, path string) (*Journal, error) {
	j := &Journal{
		fs:     fs,
		path:   path,
		moved:  make(map[string]Record),
		failed: make(map[string]string),
	}
	if err := j.load(); err != nil {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}

	f, err := fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	j.file = f
	j.writer = bufio.NewWriter(f)
	return j, nil
}

// load parses the markdown file and populates the in-memory maps
func (j *Journal) load() error {
	f, err := j.fs.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case runPattern.MatchString(line):
			j.stats.Runs++
		case movedPattern.MatchString(line):
			m := movedPattern.FindStringSubmatch(line)
			rec := Record{Source: m[1], Destination: m[2]}
			rec.Resumed, _ = strconv.ParseInt(m[3], 10, 64)
			rec.Bytes, _ = strconv.ParseInt(m[4], 10, 64)
			j.moved[rec.Source] = rec
			delete(j.failed, rec.Source)
			j.stats.Moved++
		case failedPattern.MatchString(line):
			m := failedPattern.FindStringSubmatch(line)
			j.failed[m[1]] = m[2]
			j.stats.Failed++
		case skippedPattern.MatchString(line):
			j.stats.Skipped++
		case removedPattern.MatchString(line):
			j.stats.Removed++
		}
	}
	return scanner.Err()
}

func (j *Journal) write(line string) error {
	if _, err := j.writer.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write to journal: %w", err)
	}
	return nil
}

// RecordMoved appends a moved-file line.
func (j *Journal) RecordMoved(src, dst string, resumed, bytes int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.moved[src] = Record{Source: src, Destination: dst, Resumed: resumed, Bytes: bytes}
	delete(j.failed, src)
	j.stats.Moved++
	return j.write(fmt.Sprintf("- [x] %s -> %s | Resumed: %d | Bytes: %d", src, dst, resumed, bytes))
}

// RecordFailed appends a failed-file line.
func (j *Journal) RecordFailed(src string, cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	msg := oneLine(cause)
	j.failed[src] = msg
	j.stats.Failed++
	return j.write(fmt.Sprintf("- [ ] %s | Error: %s", src, msg))
}

// RecordSkipped appends a skipped-entry line.
func (j *Journal) RecordSkipped(path, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stats.Skipped++
	return j.write(fmt.Sprintf("- [s] %s | Skipped: %s", path, reason))
}

// RecordRemoved appends a line for the source root being deleted.
func (j *Journal) RecordRemoved(root string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stats.Removed++
	return j.write(fmt.Sprintf("- [d] %s | Removed: %s", root, time.Now().Format(timeFormat)))
}

// EmitRunUpdate writes run headers and summaries, making the journal a
// core.RunEmitter.
func (j *Journal) EmitRunUpdate(ev core.RunEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case ev.State == core.RunEnumerating:
		j.stats.Runs++
		_ = j.write(fmt.Sprintf("\n## Run %s | Started: %s", ev.RunID, ev.At.Format(timeFormat)))
	case ev.State.Terminal():
		_ = j.write(fmt.Sprintf("- [=] %s | Moved: %d | Failed: %d | Skipped: %d",
			ev.State, ev.Stats.Moved, ev.Stats.Failed, ev.Stats.Skipped))
		_ = j.writer.Flush()
	}
}

// Moved returns the last moved record for src, if any.
func (j *Journal) Moved(src string) (Record, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.moved[src]
	return rec, ok
}

// Failures returns sources whose last journal entry is a failure.
func (j *Journal) Failures() map[string]string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]string, len(j.failed))
	for k, v := range j.failed {
		out[k] = v
	}
	return out
}

// Stats returns line counts by kind.
func (j *Journal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

// Close flushes and closes the journal file
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}

func oneLine(err error) string {
	if err == nil {
		return ""
	}
	return strings.Join(strings.Fields(err.Error()), " ")
}
