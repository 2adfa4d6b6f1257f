package engine

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"GusMove/pkg/progress"
)

type recordingHandle struct {
	mu       sync.Mutex
	len, pos int64
	messages []string
	finished string
	onFinish func()
}

func (h *recordingHandle) SetLength(n int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.len = n
}

func (h *recordingHandle) SetPosition(n int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pos = n
}

func (h *recordingHandle) SetMessage(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *recordingHandle) Advance(n int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pos += n
}

func (h *recordingHandle) Finish(msg string) {
	h.mu.Lock()
	h.finished = msg
	fn := h.onFinish
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *recordingHandle) length() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.len
}

func (h *recordingHandle) position() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

// recordingSink keeps printed lines and tracks how many jobs are open at
// once. hold keeps each new job busy for a moment so overlaps show up.
type recordingSink struct {
	mu      sync.Mutex
	lines   []string
	handles []*recordingHandle
	hold    time.Duration

	active atomic.Int64
	peak   atomic.Int64
}

func (s *recordingSink) NewJob(total int64) progress.Handle {
	n := s.active.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.hold > 0 {
		time.Sleep(s.hold)
	}
	h := &recordingHandle{len: total, onFinish: func() { s.active.Add(-1) }}
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	return h
}

func (s *recordingSink) Println(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) printed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// denyOpenFs fails every open of one path, as an unreadable file would.
type denyOpenFs struct {
	afero.Fs
	deny string
}

func (f denyOpenFs) Open(name string) (afero.File, error) {
	if name == f.deny {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.Fs.Open(name)
}

func (f denyOpenFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if name == f.deny {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

// growOnStatFs appends extra to path right after the first Stat of an open
// handle on it, like a writer still appending while the move starts.
type growOnStatFs struct {
	afero.Fs
	path  string
	extra []byte
	once  *sync.Once
}

func (f growOnStatFs) Open(name string) (afero.File, error) {
	file, err := f.Fs.Open(name)
	if err != nil || name != f.path {
		return file, err
	}
	return growOnStatFile{File: file, fs: f}, nil
}

type growOnStatFile struct {
	afero.File
	fs growOnStatFs
}

func (f growOnStatFile) Stat() (os.FileInfo, error) {
	info, err := f.File.Stat()
	if err != nil {
		return info, err
	}
	f.fs.once.Do(func() {
		w, err := f.fs.Fs.OpenFile(f.fs.path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			panic(err)
		}
		defer w.Close()
		if _, err := w.Write(f.fs.extra); err != nil {
			panic(err)
		}
	})
	return info, nil
}
