// run.go - the engine's single entry point
//
// (c) 2024- Sudhi Herle <sudhi@herle.net>
//
// Licensing Terms: GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package engine

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	errCancelled        = errors.New("cancelled")
	errChecksumMismatch = errors.New("checksum mismatch")
)

// Cancellation is the single shared cancellation signal. The drivers
// consult it at the start of each Operation, and the block-parallel
// driver also hands it to every block task as it is dequeued. The
// file-parallel driver does not check it between the extents of a
// copy it has already started.
// There is no cooperative teardown beyond "stop starting new work" -
// a file copy already in flight in the file-parallel driver is allowed
// to finish, while the block-parallel driver reports each block task
// dequeued after cancellation as Cancelled instead of copying it;
// neither is a run-level error.
type Cancellation struct {
	v atomic.Bool
}

// NewCancellation returns a token that can be passed to Run and later
// cancelled from another goroutine.
func NewCancellation() *Cancellation {
	return &Cancellation{}
}

// Cancel requests that a Run using this token stop launching new
// work. Entries already in flight continue, except that the
// block-parallel driver skips their block tasks not yet dequeued.
func (c *Cancellation) Cancel() {
	c.v.Store(true)
}

func (c *Cancellation) isSet() bool {
	if c == nil {
		return false
	}
	return c.v.Load()
}

// RunResult accumulates the outcome of one Run: counts of entries
// processed by kind, total bytes copied, and every non-fatal warning
// or fatal per-entry error encountered. It is safe for concurrent use
// by driver workers.
type RunResult struct {
	mu sync.Mutex

	Files int64
	Dirs  int64
	Bytes int64

	Errors   []*OpError
	Warnings []*OpError
}

func newRunResult() *RunResult {
	return &RunResult{}
}

func (r *RunResult) addFile(n int64) {
	r.mu.Lock()
	r.Files++
	r.Bytes += n
	r.mu.Unlock()
}

func (r *RunResult) addDir() {
	r.mu.Lock()
	r.Dirs++
	r.mu.Unlock()
}

func (r *RunResult) addError(err *OpError) {
	r.mu.Lock()
	r.Errors = append(r.Errors, err)
	r.mu.Unlock()
}

func (r *RunResult) addWarnings(warns []*OpError) {
	if len(warns) == 0 {
		return
	}
	r.mu.Lock()
	r.Warnings = append(r.Warnings, warns...)
	r.mu.Unlock()
}

// OK reports whether the run completed with no fatal per-entry
// errors; warnings don't affect this.
func (r *RunResult) OK() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors) == 0
}

// Run copies 'sources' into 'target' per cfg, streaming progress
// events to sink (nil or cfg.NoProgress disables that entirely). It
// returns once every queued Operation has been consumed by the
// selected driver, or the walker fails a precondition check.
func Run(cfg *Config, sources []string, target string, sink Sink, abort *Cancellation) (*RunResult, error) {
	if err := validate(sources, target); err != nil {
		return nil, err
	}

	if cfg.DryRun {
		sr, err := scanSources(cfg, sources)
		if err != nil {
			return nil, err
		}
		res := newRunResult()
		res.Files = sr.Files
		res.Dirs = sr.Dirs
		res.Bytes = sr.Bytes
		return res, nil
	}

	rep := newReporter(sink, cfg.NoProgress)
	hl := newHardlinker()
	caps := newCapCache()
	if abort == nil {
		abort = NewCancellation()
	}

	q := newQueue(cfg.workers())
	w := newWalker(cfg, q, hl, rep, caps)

	var walkErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		walkErr = w.run(sources, target)
	}()

	var res *RunResult
	switch cfg.Driver {
	case DriverParBlock:
		d := newParBlockDriver(cfg, hl, caps, rep, abort)
		res = d.run(q)
	default:
		d := newParFileDriver(cfg, hl, caps, rep, abort)
		res = d.run(q)
	}

	wg.Wait()
	if walkErr != nil {
		return res, walkErr
	}
	return res, nil
}
