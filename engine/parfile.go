// parfile.go - file-parallel copy driver
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
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/opencoff/xcp"
)

// parFileDriver consumes the Operation stream and copies one file per
// worker; parallelism comes from running many files concurrently, not
// from splitting any single file.
type parFileDriver struct {
	cfg   *Config
	hl    *hardlinker
	caps  *capCache
	rep   *reporter
	fin   *finaliser
	abort *Cancellation
}

func newParFileDriver(cfg *Config, hl *hardlinker, caps *capCache, rep *reporter, abort *Cancellation) *parFileDriver {
	return &parFileDriver{
		cfg:   cfg,
		hl:    hl,
		caps:  caps,
		rep:   rep,
		fin:   newFinaliser(cfg, caps),
		abort: abort,
	}
}

// run drains q with cfg.workers() goroutines until it observes OpEnd,
// then waits for every launched worker to finish.
func (d *parFileDriver) run(q *queue) *RunResult {
	res := newRunResult()

	var wg sync.WaitGroup
	n := d.cfg.workers()
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			d.worker(q, res)
		}()
	}
	wg.Wait()
	return res
}

func (d *parFileDriver) worker(q *queue, res *RunResult) {
	for op := range q.recv() {
		if op.Kind == OpEnd {
			return
		}
		if d.abort.isSet() {
			res.addError(newErr(Cancelled, "cancel", op.Src, op.Dst, errCancelled))
			if op.onDone != nil {
				op.onDone()
			}
			continue
		}
		d.apply(op, res)
	}
}

func (d *parFileDriver) apply(op Operation, res *RunResult) {
	switch op.Kind {
	case OpMakeDir:
		res.addDir()
		// directory creation already happened synchronously in the
		// walker; nothing to do here besides bookkeeping.

	case OpMakeSymlink:
		if err := os.Symlink(op.Target, op.Dst); err != nil && !os.IsExist(err) {
			res.addError(newErr(IoError, "symlink", op.Src, op.Dst, err))
		} else {
			res.addFile(0)
		}
		d.finaliseAndDone(op, res)

	case OpMakeSpecial:
		if err := xcp.MakeSpecial(op.Dst, op.Src, op.Info); err != nil {
			res.addError(newErr(IoError, "mknod", op.Src, op.Dst, err))
		} else {
			res.addFile(0)
		}
		d.finaliseAndDone(op, res)

	case OpMakeHardlink:
		d.makeHardlink(op, res)

	case OpCopyFile:
		d.copyFile(op, res)

	case OpFinaliseMetadata:
		d.finalise(op, res)
		if op.onDone != nil {
			op.onDone()
		}
	}
}

// makeHardlink materializes a second reference to an already-copied
// destination (op.Target) instead of re-copying the file's bytes. The
// first reference for a given (dev,rdev,ino) always arrives as an
// OpCopyFile; since workers consume the shared queue out of order,
// this link's target may not exist yet when this op is picked up, so
// a short bounded poll tolerates the normal case where the first
// reference is still mid-copy on another worker.
func (d *parFileDriver) makeHardlink(op Operation, res *RunResult) {
	orig := op.Target
	err := fmt.Errorf("hardlink target %s never appeared", orig)
	for attempt := 0; attempt < 200; attempt++ {
		if _, serr := os.Lstat(orig); serr == nil {
			err = os.Link(orig, op.Dst)
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err != nil {
		res.addError(newErr(IoError, "hardlink", op.Src, op.Dst, err))
	} else {
		res.addFile(0)
	}
	if op.onDone != nil {
		op.onDone()
	}
}

// finaliseAndDone applies metadata to a non-regular-file entry
// (symlink/special) and then immediately signals completion: these
// entries have no separate FinaliseMetadata operation of their own.
func (d *parFileDriver) finaliseAndDone(op Operation, res *RunResult) {
	if op.Info != nil {
		if warns, err := d.fin.finalise(op.Dst, op.Info); err != nil {
			res.addError(err.(*OpError))
		} else {
			res.addWarnings(warns)
		}
	}
	if op.onDone != nil {
		op.onDone()
	}
}

func (d *parFileDriver) finalise(op Operation, res *RunResult) {
	warns, err := d.fin.finalise(op.Dst, op.Info)
	if err != nil {
		res.addError(err.(*OpError))
		return
	}
	res.addWarnings(warns)
}

// copyFile copies src to dst, preferring a reflink clone, then
// sparse-aware extent streaming, finally a plain stream. It applies
// the file's metadata itself (d.fin.finalise) right after the bytes
// are written, so the driver, not the walker, owns the exact moment
// bytes are durable before metadata is applied.
func (d *parFileDriver) copyFile(op Operation, res *RunResult) {
	fi := op.Info
	d.rep.start(op.Src, fi.Size())

	src, err := os.Open(op.Src)
	if err != nil {
		res.addError(newErr(NotFound, "open", op.Src, op.Dst, err))
		d.rep.fail(op.Src, NotFound, err)
		if op.onDone != nil {
			op.onDone()
		}
		return
	}
	defer src.Close()

	sf, err := xcp.NewSafeFile(op.Dst, xcp.OPT_OVERWRITE, os.O_RDWR, fi.Mode().Perm())
	if err != nil {
		res.addError(newErr(IoError, "create", op.Src, op.Dst, err))
		d.rep.fail(op.Src, IoError, err)
		if op.onDone != nil {
			op.onDone()
		}
		return
	}
	defer sf.Abort()

	dev := fi.Dev
	caps := d.caps.get(dev)
	var dig *digest
	if d.cfg.VerifyChecksum {
		dig = newDigest()
	}

	var cerr error
	switch {
	case caps.Reflink && d.cfg.Reflink != ReflinkNever:
		res2, rerr := xcp.TryReflink(sf.File, src)
		switch res2 {
		case xcp.ReflinkDone:
			if dig != nil {
				cerr = d.feedDigest(src, fi.Size(), dig)
			}
		case xcp.ReflinkUnsupported:
			d.caps.disableReflink(dev)
			if d.cfg.Reflink == ReflinkAlways {
				res.addError(newErr(Unsupported, "reflink", op.Src, op.Dst, rerr))
				if op.onDone != nil {
					op.onDone()
				}
				return
			}
			cerr = d.streamCopy(src, sf, fi, dig)
		case xcp.ReflinkError:
			if d.cfg.Reflink == ReflinkAlways {
				res.addError(newErr(IoError, "reflink", op.Src, op.Dst, rerr))
				if op.onDone != nil {
					op.onDone()
				}
				return
			}
			cerr = d.streamCopy(src, sf, fi, dig)
		}

	default:
		cerr = d.streamCopy(src, sf, fi, dig)
	}

	if cerr != nil {
		res.addError(newErr(IoError, "copy", op.Src, op.Dst, cerr))
		d.rep.fail(op.Src, IoError, cerr)
		if op.onDone != nil {
			op.onDone()
		}
		return
	}

	if err := sf.Close(); err != nil {
		res.addError(newErr(IoError, "close", op.Src, op.Dst, err))
		d.rep.fail(op.Src, IoError, err)
		if op.onDone != nil {
			op.onDone()
		}
		return
	}

	res.addFile(fi.Size())
	d.rep.finish(op.Src, nil)

	warns, ferr := d.fin.finalise(op.Dst, fi)
	if ferr != nil {
		res.addError(ferr.(*OpError))
	} else {
		res.addWarnings(warns)
	}

	if dig != nil {
		sum, err := verifyFile(op.Dst)
		if err != nil {
			res.addError(newErr(IoError, "verify", op.Src, op.Dst, err))
		} else if sum != dig.sum() {
			res.addError(newErr(ChecksumMismatch, "verify", op.Src, op.Dst,
				errChecksumMismatch))
		}
	}

	if op.onDone != nil {
		op.onDone()
	}
}

// streamCopy performs a sparse-aware extent copy: holes are skipped
// (the destination is pre-sized so they stay sparse) and data extents
// are streamed with a bounded buffer. dig, if non-nil, accumulates a
// checksum over the exact logical byte stream (data and zero-filled
// holes) as it is written. A non-nil return means the copy is
// incomplete and the destination must not be treated as faithful.
func (d *parFileDriver) streamCopy(src *os.File, sf *xcp.SafeFile, fi *xcp.Info, dig *digest) error {
	size := fi.Size()
	if err := sf.Preallocate(size); err != nil {
		return d.copyWhole(src, sf, size, dig)
	}

	extents, err := xcp.FileExtents(src, size)
	if err != nil || extents == nil {
		return d.copyWhole(src, sf, size, dig)
	}

	buf := make([]byte, 256*1024)
	prevEnd := int64(0)
	for _, ext := range extents {
		if dig != nil && ext.Start > prevEnd {
			dig.writeHole(ext.Start - prevEnd)
		}
		remain := ext.Length
		off := ext.Start
		for remain > 0 {
			want := remain
			if want > int64(len(buf)) {
				want = int64(len(buf))
			}
			n, rerr := src.ReadAt(buf[:want], off)
			if n > 0 {
				if _, werr := sf.WriteAt(buf[:n], off); werr != nil {
					return werr
				}
				if dig != nil {
					dig.writeData(buf[:n])
				}
				d.rep.advance(src.Name(), int64(n))
				off += int64(n)
				remain -= int64(n)
			}
			if rerr != nil {
				if rerr == io.EOF && remain == 0 {
					break
				}
				return rerr
			}
		}
		prevEnd = ext.Start + ext.Length
	}
	if dig != nil && size > prevEnd {
		dig.writeHole(size - prevEnd)
	}
	return nil
}

// feedDigest reads 'size' bytes of 'src' from the start and folds
// them into dig, used after a reflink clone where no bytes pass
// through streamCopy/copyWhole to be hashed along the way.
func (d *parFileDriver) feedDigest(src *os.File, size int64, dig *digest) error {
	buf := make([]byte, 256*1024)
	var off int64
	for off < size {
		want := size - off
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		n, err := src.ReadAt(buf[:want], off)
		if n > 0 {
			dig.writeData(buf[:n])
			off += int64(n)
		}
		if err != nil {
			if err == io.EOF && off >= size {
				return nil
			}
			return err
		}
	}
	return nil
}

// copyWhole is the plain-stream fallback used when sparse
// preallocation or extent discovery isn't available. With no
// checksum in flight it delegates the actual transfer to the
// platform's whole-file primitive (copy_file_range(2) on Linux,
// mmap elsewhere) instead of looping by hand; the manual ReadAt/
// WriteAt loop below only runs while a digest needs to see every
// byte go by.
func (d *parFileDriver) copyWhole(src *os.File, sf *xcp.SafeFile, size int64, dig *digest) error {
	if dig == nil {
		return xcp.CopyWholeProgress(sf.File, src, size, func(n int64) {
			d.rep.advance(src.Name(), n)
		})
	}

	buf := make([]byte, 256*1024)
	var off int64
	for off < size {
		want := size - off
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		n, err := src.ReadAt(buf[:want], off)
		if n > 0 {
			if _, werr := sf.WriteAt(buf[:n], off); werr != nil {
				return werr
			}
			dig.writeData(buf[:n])
			off += int64(n)
		}
		d.rep.advance(src.Name(), int64(n))
		if err != nil {
			if err == io.EOF && off >= size {
				return nil
			}
			return err
		}
	}
	return nil
}
