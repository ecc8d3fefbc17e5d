// progress.go - the progress event channel
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

import "time"

// sendTimeout bounds how long send waits for room on a full sink.
const sendTimeout = 100 * time.Millisecond

// EventType tags a ProgressEvent.
type EventType int

const (
	EvStart EventType = iota
	EvAdvance
	EvFinish
	EvError
)

// ProgressEvent is emitted by a worker as it processes one Operation.
// Events for a given file may interleave with events for other files;
// within a single file, Start precedes any Advance, and all Advance
// precede Finish.
type ProgressEvent struct {
	Type EventType
	Path string

	// Start
	Size int64

	// Advance
	Bytes int64

	// Finish
	Err error

	// Error
	Kind Kind
}

// Sink is the consumer side of the progress channel; an external
// renderer (or a null sink) drains it.
type Sink chan ProgressEvent

// reporter is held by drivers and the finaliser; it knows whether a
// consumer is listening so producers can skip constructing events
// entirely when no_progress is set.
type reporter struct {
	sink    Sink
	enabled bool
}

func newReporter(sink Sink, noProgress bool) *reporter {
	return &reporter{sink: sink, enabled: sink != nil && !noProgress}
}

func (r *reporter) start(path string, size int64) {
	if !r.enabled {
		return
	}
	r.send(ProgressEvent{Type: EvStart, Path: path, Size: size})
}

func (r *reporter) advance(path string, n int64) {
	if !r.enabled {
		return
	}
	r.send(ProgressEvent{Type: EvAdvance, Path: path, Bytes: n})
}

func (r *reporter) finish(path string, err error) {
	if !r.enabled {
		return
	}
	r.send(ProgressEvent{Type: EvFinish, Path: path, Err: err})
}

func (r *reporter) fail(path string, kind Kind, err error) {
	if !r.enabled {
		return
	}
	r.send(ProgressEvent{Type: EvError, Path: path, Kind: kind, Err: err})
}

// send never blocks indefinitely: workers must not stall on a full
// channel longer than necessary, so a non-blocking send is attempted
// first; if the channel is full, send waits up to sendTimeout for
// room and then drops the event.
func (r *reporter) send(ev ProgressEvent) {
	select {
	case r.sink <- ev:
	default:
		t := time.NewTimer(sendTimeout)
		defer t.Stop()
		select {
		case r.sink <- ev:
		case <-t.C:
		}
	}
}
