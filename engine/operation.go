// operation.go - the operation stream and its bounded queue
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
	"io/fs"

	"github.com/opencoff/xcp"
)

// OpKind tags the variant held by an Operation.
type OpKind int

const (
	OpCopyFile OpKind = iota
	OpMakeDir
	OpMakeSymlink
	OpMakeSpecial
	OpMakeHardlink
	OpFinaliseMetadata
	OpEnd
)

// Operation is the tagged variant the walker emits and a driver
// consumes. End is a sentinel delivered once per queue after all
// real work; a driver stops pulling once it sees it.
type Operation struct {
	Kind OpKind

	Src string
	Dst string

	// symlink target, valid only for OpMakeSymlink; for
	// OpMakeHardlink, the already-copied destination path to link
	// against.
	Target string

	// directory mode, valid only for OpMakeDir
	Mode fs.FileMode

	// source metadata snapshot, valid for CopyFile/MakeSpecial/
	// FinaliseMetadata
	Info *xcp.Info

	// onDone is invoked by the driver once this operation (and, for
	// CopyFile/MakeSymlink/MakeSpecial, the metadata step the driver
	// applies to it)
	// has fully completed. The walker uses it to bubble completion up
	// a directory's pending-child counter; nil for operations nobody
	// needs to be notified about.
	onDone func()
}

// queue is the bounded channel of Operations between the walker and a
// driver; capacity is approximately 2*workers per spec, so a fast
// walker cannot outrun the workers.
type queue struct {
	ch chan Operation
}

func newQueue(workers int) *queue {
	if workers <= 0 {
		workers = 1
	}
	return &queue{ch: make(chan Operation, 2*workers)}
}

func (q *queue) push(op Operation) {
	q.ch <- op
}

func (q *queue) closeAfterEnd() {
	q.ch <- Operation{Kind: OpEnd}
	close(q.ch)
}

func (q *queue) recv() <-chan Operation {
	return q.ch
}
