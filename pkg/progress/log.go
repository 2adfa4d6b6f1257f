package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultLogInterval is how often a LogSink reports byte progress for a job.
const DefaultLogInterval = 2 * time.Second

// LogSink reports progress as structured log lines. It is the non-TTY
// renderer: console lines by default, one JSON object per event when the
// logger writes JSON.
type LogSink struct {
	log      zerolog.Logger
	interval time.Duration
	nextID   atomic.Int64

	mu       sync.Mutex
	lastEmit map[int]time.Time
}

// NewLogSink creates a LogSink writing through log.
func NewLogSink(log zerolog.Logger, interval time.Duration) *LogSink {
	if interval <= 0 {
		interval = DefaultLogInterval
	}
	return &LogSink{
		log:      log,
		interval: interval,
		lastEmit: make(map[int]time.Time),
	}
}

func (s *LogSink) NewJob(total int64) Handle {
	id := int(s.nextID.Add(1))
	return newJob(id, total, s.onChange)
}

func (s *LogSink) Println(text string) {
	s.log.Info().Msg(text)
}

func (s *LogSink) Close() error {
	return nil
}

func (s *LogSink) onChange(j *job, event string) {
	snap := j.snapshot()
	switch event {
	case "message":
		s.log.Info().
			Int("job", snap.ID).
			Int64("total", snap.Total).
			Int64("position", snap.Position).
			Msg(snap.Message)
	case "advance":
		if !s.shouldEmit(snap.ID) {
			return
		}
		s.log.Debug().
			Int("job", snap.ID).
			Int64("position", snap.Position).
			Int64("total", snap.Total).
			Float64("percent", snap.Percent()*100).
			Str("rate", FormatRate(snap.Rate)).
			Msg("progress")
	case "finish":
		s.mu.Lock()
		delete(s.lastEmit, snap.ID)
		s.mu.Unlock()
		s.log.Info().
			Int("job", snap.ID).
			Int64("bytes", snap.Position).
			Msg(snap.Message)
	}
}

func (s *LogSink) shouldEmit(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if now.Sub(s.lastEmit[id]) < s.interval {
		return false
	}
	s.lastEmit[id] = now
	return true
}
