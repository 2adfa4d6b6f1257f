package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"GusMove/internal/core"
	"GusMove/pkg/progress"
	"GusMove/pkg/state"
)

// Config describes one move run.
type Config struct {
	Source      string
	Destination string
	Concurrency int
	BufferSize  int
	// Truncate trims each destination to its source length after copying.
	Truncate bool
}

// Option customizes an Engine.
type Option func(*Engine)

// WithFs sets the filesystem. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(e *Engine) { e.fs = fs }
}

// WithLister replaces the default afero walk lister.
func WithLister(l Lister) Option {
	return func(e *Engine) { e.lister = l }
}

// WithSink sets the progress sink. Defaults to progress.Nop().
func WithSink(s progress.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithJournal records every outcome in j.
func WithJournal(j *state.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithEmitter receives run state transitions.
func WithEmitter(em core.RunEmitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// Engine moves a file or directory tree.
type Engine struct {
	config  Config
	fs      afero.Fs
	lister  Lister
	sink    progress.Sink
	log     zerolog.Logger
	journal *state.Journal
	emitter core.RunEmitter
	limiter *Limiter
	mover   *Mover
}

// New creates an Engine.
func New(config Config, opts ...Option) *Engine {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.BufferSize < 2 {
		config.BufferSize = DefaultBufferSize
	}
	e := &Engine{
		config: config,
		fs:     afero.NewOsFs(),
		sink:   progress.Nop(),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.lister == nil {
		e.lister = NewWalkLister(e.fs)
	}
	e.limiter = NewLimiter(int64(config.Concurrency))
	e.mover = NewMover(MoverConfig{
		Fs:         e.fs,
		Limiter:    e.limiter,
		Sink:       e.sink,
		BufferSize: config.BufferSize,
		Truncate:   config.Truncate,
		Logger:     e.log,
	})
	return e
}

// Limiter exposes the engine's permit pool.
func (e *Engine) Limiter() *Limiter {
	return e.limiter
}

// Report summarises a run.
type Report struct {
	RunID         string
	Outcomes      []Outcome
	Moved         int
	Failed        int
	Skipped       int // symlinks
	Retried       int // files the journal recorded as failed in an earlier run
	BytesCopied   int64
	BytesResumed  int64
	SourceRemoved bool
	Duration      time.Duration
}

// Failures returns the failed outcomes sorted by source path.
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job.Source < out[j].Job.Source })
	return out
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.OK() {
		r.Moved++
		r.BytesCopied += o.Copied
		r.BytesResumed += o.Resumed
		return
	}
	r.Failed++
}

// Run enumerates the source, moves every regular file with at most
// Concurrency transfers doing I/O at once, and removes the source once every
// file succeeded. A failing file never stops its siblings. The returned
// error is nil only when everything moved; ErrIncomplete means at least one
// file failed and the source root was left in place.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	var emitters []core.RunEmitter
	if e.emitter != nil {
		emitters = append(emitters, e.emitter)
	}
	if e.journal != nil {
		emitters = append(emitters, e.journal)
	}
	tracker := core.NewTracker(core.NewMultiEmitter(emitters...))
	report := &Report{RunID: tracker.ID()}
	defer func() { report.Duration = tracker.Elapsed() }()

	src, dst := e.config.Source, e.config.Destination
	_ = tracker.Transition(core.RunEnumerating, src)

	// The walk lstats the root, so must we: a symlinked root is reported as
	// a skipped symlink and must not be treated as a file to remove.
	info, err := lstatIfPossible(e.fs, src)
	if err != nil {
		_ = tracker.Transition(core.RunFailed, err.Error())
		if errors.Is(err, os.ErrNotExist) {
			return report, sourceMissing(src)
		}
		return report, enumerationError(src, err)
	}
	srcIsFile := info.Mode().IsRegular()

	var priorFailures map[string]string
	if e.journal != nil {
		priorFailures = e.journal.Failures()
		stats := e.journal.Stats()
		if stats.Runs > 1 {
			e.log.Info().
				Int("runs", stats.Runs-1).
				Int("moved", stats.Moved).
				Int("failed", len(priorFailures)).
				Msg("journal has earlier runs")
		}
	}

	// Cancelled on enumeration failure so queued jobs fail fast.
	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()

	workers := e.config.Concurrency
	pool, err := ants.NewPool(workers)
	if err != nil {
		_ = tracker.Transition(core.RunFailed, err.Error())
		return report, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	jobs := make(chan MoveJob, jobQueueSize)
	results := make(chan Outcome, jobQueueSize)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			e.worker(schedCtx, jobs, results)
		}); err != nil {
			wg.Done()
			e.log.Error().Err(err).Msg("failed to start worker")
		}
	}

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range results {
			report.add(o)
			tracker.Update(func(s *core.RunStats) {
				if o.OK() {
					s.Moved++
					s.Bytes += o.Copied
				} else {
					s.Failed++
				}
			})
			e.journalOutcome(o)
		}
	}()

	// Scheduling starts with the first queued job; enumeration keeps
	// feeding the queue while workers drain it.
	scheduling := false
	startScheduling := func(detail string) {
		if !scheduling {
			scheduling = true
			_ = tracker.Transition(core.RunScheduling, detail)
		}
	}
	skipped, retried := 0, 0
	enumErr := e.lister.List(src, func(entry Entry) error {
		if entry.IsSymlink {
			skipped++
			e.sink.Println(fmt.Sprintf("warning: symlink %q is skipped", entry.Path))
			if e.journal != nil {
				if err := e.journal.RecordSkipped(entry.Path, "symlink"); err != nil {
					e.log.Warn().Err(err).Msg("journal write failed")
				}
			}
			tracker.Update(func(s *core.RunStats) { s.Skipped++ })
			return nil
		}
		if !entry.IsFile {
			return nil
		}
		job, err := e.jobFor(entry.Path, srcIsFile)
		if err != nil {
			return enumerationError(entry.Path, err)
		}
		e.checkJournal(job, priorFailures, &retried)
		startScheduling(job.Source)
		select {
		case jobs <- job:
			tracker.Update(func(s *core.RunStats) { s.Queued++ })
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	close(jobs)
	startScheduling(dst)

	if enumErr != nil {
		cancelSched()
		_ = tracker.Transition(core.RunReporting, enumErr.Error())
	} else {
		_ = tracker.Transition(core.RunAwaiting, "")
	}

	wg.Wait()
	close(results)
	<-collected
	report.Skipped = skipped
	report.Retried = retried

	failures := report.Failures()
	if enumErr != nil || len(failures) > 0 {
		if enumErr == nil {
			_ = tracker.Transition(core.RunReporting, "")
		}
		for _, f := range failures {
			e.sink.Println(fmt.Sprintf("error when moving %q: %v", f.Job.Source, f.Err))
		}
		_ = tracker.Transition(core.RunFailed, "")
		if enumErr != nil {
			var me *MoveError
			if !errors.As(enumErr, &me) {
				enumErr = enumerationError(src, enumErr)
			}
			return report, enumErr
		}
		return report, ErrIncomplete
	}

	_ = tracker.Transition(core.RunCleanup, src)
	removed, err := e.removeSource(info.Mode(), skipped)
	if err != nil {
		_ = tracker.Transition(core.RunFailed, err.Error())
		return report, err
	}
	report.SourceRemoved = removed
	e.sink.Println("move complete")
	_ = tracker.Transition(core.RunDone, "")
	return report, nil
}

// worker drains jobs until the channel is closed. Once ctx is cancelled the
// remaining jobs are reported as failures without touching the filesystem.
func (e *Engine) worker(ctx context.Context, jobs <-chan MoveJob, results chan<- Outcome) {
	for job := range jobs {
		if err := ctx.Err(); err != nil {
			results <- Outcome{Job: job, Err: ioError(job.Source, fmt.Errorf("not started: %w", err))}
			continue
		}
		results <- e.mover.Move(ctx, job)
	}
}

func (e *Engine) jobFor(path string, srcIsFile bool) (MoveJob, error) {
	if srcIsFile {
		return MoveJob{Source: e.config.Source, Destination: e.config.Destination}, nil
	}
	rel, err := filepath.Rel(e.config.Source, path)
	if err != nil {
		return MoveJob{}, err
	}
	return MoveJob{
		Source:      filepath.Join(e.config.Source, rel),
		Destination: filepath.Join(e.config.Destination, rel),
	}, nil
}

// checkJournal notes what earlier runs recorded about job.
func (e *Engine) checkJournal(job MoveJob, priorFailures map[string]string, retried *int) {
	if e.journal == nil {
		return
	}
	if msg, ok := priorFailures[job.Source]; ok {
		*retried++
		e.log.Info().Str("src", job.Source).Str("previous_error", msg).Msg("retrying file that failed in an earlier run")
		return
	}
	if rec, ok := e.journal.Moved(job.Source); ok {
		e.log.Warn().
			Str("src", job.Source).
			Str("previous_dst", rec.Destination).
			Msg("source was moved in an earlier run but exists again")
	}
}

func lstatIfPossible(fs afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fs.Stat(path)
}

func (e *Engine) journalOutcome(o Outcome) {
	if e.journal == nil {
		return
	}
	var err error
	if o.OK() {
		err = e.journal.RecordMoved(o.Job.Source, o.Job.Destination, o.Resumed, o.Copied)
	} else {
		err = e.journal.RecordFailed(o.Job.Source, o.Err)
	}
	if err != nil {
		e.log.Warn().Err(err).Msg("journal write failed")
	}
}

// removeSource deletes what is left of the source after every file moved and
// reports whether the root is gone. root is the lstat mode of the source.
// Skipped symlinks are never deleted: when any exist only the directories
// emptied by the move are pruned, and a symlinked root is left alone.
func (e *Engine) removeSource(root os.FileMode, symlinks int) (bool, error) {
	src := e.config.Source
	switch {
	case root.IsRegular():
		err := e.fs.Remove(src)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, ioError(src, fmt.Errorf("failed to remove source: %w", err))
		}
		e.recordRemoved(src)
		return true, nil
	case root&os.ModeSymlink != 0:
		return false, nil
	case !root.IsDir():
		e.sink.Println(fmt.Sprintf("warning: %q is not a regular file or directory, kept", src))
		return false, nil
	}

	if symlinks > 0 {
		if err := e.pruneEmptyDirs(src); err != nil {
			return false, ioError(src, fmt.Errorf("failed to prune source: %w", err))
		}
		e.sink.Println(fmt.Sprintf("warning: %q kept, it still holds %d skipped symlink(s)", src, symlinks))
		return false, nil
	}

	if err := e.fs.RemoveAll(src); err != nil {
		return false, ioError(src, fmt.Errorf("failed to remove source: %w", err))
	}
	e.recordRemoved(src)
	return true, nil
}

func (e *Engine) recordRemoved(root string) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordRemoved(root); err != nil {
		e.log.Warn().Err(err).Msg("journal write failed")
	}
}

// pruneEmptyDirs removes empty directories under root, deepest first.
func (e *Engine) pruneEmptyDirs(root string) error {
	var dirs []string
	err := afero.Walk(e.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, dir := range dirs {
		entries, err := afero.ReadDir(e.fs, dir)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			continue
		}
		if err := e.fs.Remove(dir); err != nil {
			return err
		}
	}
	return nil
}
