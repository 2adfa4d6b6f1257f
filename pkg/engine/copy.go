package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"GusMove/pkg/progress"
)

// Mover runs File Transfer Tasks: one call to Move moves one file.
type Mover struct {
	fs       afero.Fs
	limiter  *Limiter
	sink     progress.Sink
	bufSize  int
	truncate bool
	log      zerolog.Logger
}

// MoverConfig configures a Mover. Zero values pick defaults.
type MoverConfig struct {
	Fs         afero.Fs
	Limiter    *Limiter
	Sink       progress.Sink
	BufferSize int
	// Truncate cuts the destination at the end of the copied data,
	// removing stale trailing bytes left by a longer earlier destination.
	Truncate bool
	Logger   zerolog.Logger
}

// NewMover creates a Mover.
func NewMover(cfg MoverConfig) *Mover {
	m := &Mover{
		fs:       cfg.Fs,
		limiter:  cfg.Limiter,
		sink:     cfg.Sink,
		bufSize:  cfg.BufferSize,
		truncate: cfg.Truncate,
		log:      cfg.Logger,
	}
	if m.fs == nil {
		m.fs = afero.NewOsFs()
	}
	if m.limiter == nil {
		m.limiter = NewLimiter(DefaultConcurrency)
	}
	if m.sink == nil {
		m.sink = progress.Nop()
	}
	if m.bufSize < 2 {
		m.bufSize = DefaultBufferSize
	}
	return m
}

// Move transfers job.Source to job.Destination, resuming from the longest
// verified prefix already present in the destination, and deletes the
// source only after every byte was written. Failures leave the source in
// place and the destination as far as it got.
func (m *Mover) Move(ctx context.Context, job MoveJob) Outcome {
	start := time.Now()
	out := Outcome{Job: job}

	permit, err := m.limiter.Acquire(ctx)
	if err != nil {
		out.Err = ioError(job.Source, fmt.Errorf("waiting for a transfer slot: %w", err))
		return out
	}
	defer permit.Release()

	out.Resumed, out.Copied, out.Err = m.move(job)
	out.Duration = time.Since(start)

	ev := m.log.Debug()
	if out.Err != nil {
		ev = m.log.Warn().Err(out.Err)
	}
	ev.Str("src", job.Source).
		Str("dst", job.Destination).
		Int64("resumed", out.Resumed).
		Int64("copied", out.Copied).
		Dur("took", out.Duration).
		Msg("move finished")
	return out
}

func (m *Mover) move(job MoveJob) (resumed, copied int64, err error) {
	name := job.Name()

	exists, err := afero.Exists(m.fs, job.Source)
	if err != nil {
		return 0, 0, ioError(job.Source, err)
	}
	if !exists {
		return 0, 0, sourceMissing(job.Source)
	}

	if err := m.fs.MkdirAll(filepath.Dir(job.Destination), 0o755); err != nil {
		return 0, 0, ioError(job.Destination, fmt.Errorf("failed to create dest dir: %w", err))
	}

	h := m.sink.NewJob(0)
	h.SetMessage(fmt.Sprintf("preparing %q", name))
	defer func() {
		if err != nil {
			h.Finish(fmt.Sprintf("failed %q", name))
		}
	}()

	var offset int64
	dstExists, err := afero.Exists(m.fs, job.Destination)
	if err != nil {
		return 0, 0, ioError(job.Destination, err)
	}
	if dstExists {
		h.SetMessage(fmt.Sprintf("checking %q", name))
		offset, err = DetectResumeOffset(m.fs, job.Source, job.Destination, m.bufSize, h)
		if err != nil {
			return 0, 0, ioError(job.Source, err)
		}
		m.log.Debug().Str("src", job.Source).Int64("offset", offset).Msg("resume offset detected")
	}

	copied, err = m.copyFrom(job, offset, h)
	if err != nil {
		return offset, copied, err
	}

	if err := m.fs.Remove(job.Source); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return offset, copied, sourceMissing(job.Source)
		}
		return offset, copied, ioError(job.Source, fmt.Errorf("failed to remove source: %w", err))
	}

	h.Finish(fmt.Sprintf("complete %q", name))
	return offset, copied, nil
}

// copyFrom writes src[offset:] into dst[offset:]. The destination is opened
// without O_TRUNC so the verified prefix stays in place.
func (m *Mover) copyFrom(job MoveJob, offset int64, h progress.Handle) (int64, error) {
	name := job.Name()

	src, err := m.fs.Open(job.Source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, sourceMissing(job.Source)
		}
		return 0, ioError(job.Source, fmt.Errorf("failed to open source: %w", err))
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, ioError(job.Source, fmt.Errorf("failed to stat source: %w", err))
	}
	srcSize := info.Size()

	h.SetMessage(fmt.Sprintf("seeking %q", name))
	if _, err := src.Seek(offset, io.SeekStart); err != nil {
		return 0, ioError(job.Source, fmt.Errorf("failed to seek source: %w", err))
	}

	dst, err := m.fs.OpenFile(job.Destination, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return 0, ioError(job.Destination, fmt.Errorf("failed to open dest: %w", err))
	}
	defer dst.Close()

	if _, err := dst.Seek(offset, io.SeekStart); err != nil {
		return 0, ioError(job.Destination, fmt.Errorf("failed to seek dest: %w", err))
	}

	h.SetLength(srcSize)
	h.SetPosition(offset)
	h.SetMessage(fmt.Sprintf("copying %q", name))

	buf := bufPool.get(m.bufSize)
	defer bufPool.put(buf)

	pw := &progressWriter{Writer: dst, handle: h}
	// Hide WriterTo so io.CopyBuffer uses our buffer and every chunk goes
	// through pw.
	copied, err := io.CopyBuffer(pw, struct{ io.Reader }{src}, buf)
	if err != nil {
		return copied, ioError(job.Source, fmt.Errorf("copy failed: %w", err))
	}

	if m.truncate {
		if err := dst.Truncate(offset + copied); err != nil {
			return copied, ioError(job.Destination, fmt.Errorf("failed to truncate dest: %w", err))
		}
	}

	if err := dst.Sync(); err != nil {
		return copied, ioError(job.Destination, fmt.Errorf("failed to sync dest: %w", err))
	}
	if err := dst.Close(); err != nil {
		return copied, ioError(job.Destination, fmt.Errorf("failed to close dest: %w", err))
	}
	return copied, nil
}

// progressWriter advances a progress handle by every chunk written.
type progressWriter struct {
	io.Writer
	handle progress.Handle
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	if n > 0 {
		pw.handle.Advance(int64(n))
	}
	return n, err
}
