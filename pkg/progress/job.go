package progress

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of one job's progress.
type Snapshot struct {
	ID       int
	Total    int64
	Position int64
	Message  string
	Done     bool
	Rate     float64 // bytes per second since the current phase started
}

// Percent returns the completed fraction in [0,1].
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		if s.Done {
			return 1
		}
		return 0
	}
	p := float64(s.Position) / float64(s.Total)
	if p > 1 {
		return 1
	}
	return p
}

// job is the shared mutable state behind a Handle. Writers are the owning
// task, readers are the renderer.
type job struct {
	mu        sync.Mutex
	id        int
	total     int64
	position  int64
	message   string
	done      bool
	phaseAt   time.Time
	phaseFrom int64
	onChange  func(j *job, event string)
}

func newJob(id int, total int64, onChange func(*job, string)) *job {
	return &job{
		id:       id,
		total:    total,
		phaseAt:  time.Now(),
		onChange: onChange,
	}
}

func (j *job) notify(event string) {
	if j.onChange != nil {
		j.onChange(j, event)
	}
}

func (j *job) SetLength(n int64) {
	j.mu.Lock()
	j.total = n
	j.mu.Unlock()
}

func (j *job) SetPosition(n int64) {
	j.mu.Lock()
	j.position = n
	j.phaseFrom = n
	j.phaseAt = time.Now()
	j.mu.Unlock()
}

func (j *job) SetMessage(msg string) {
	j.mu.Lock()
	j.message = msg
	j.mu.Unlock()
	j.notify("message")
}

func (j *job) Advance(n int64) {
	j.mu.Lock()
	j.position += n
	j.mu.Unlock()
	j.notify("advance")
}

func (j *job) Finish(msg string) {
	j.mu.Lock()
	j.message = msg
	j.done = true
	j.mu.Unlock()
	j.notify("finish")
}

func (j *job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := Snapshot{
		ID:       j.id,
		Total:    j.total,
		Position: j.position,
		Message:  j.message,
		Done:     j.done,
	}
	if elapsed := time.Since(j.phaseAt).Seconds(); elapsed > 0 {
		s.Rate = float64(j.position-j.phaseFrom) / elapsed
	}
	return s
}
