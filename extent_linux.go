// extent_linux.go - extent and sparse-hole probing on linux
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

//go:build linux

package xcp

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Extent is a contiguous byte range of a regular file known to
// contain data. A file's data is fully described by an ordered,
// non-overlapping sequence of Extents covering a prefix of its
// logical size; any gap is a hole.
type Extent struct {
	Start  int64
	Length int64
}

// FileExtents returns the ordered, disjoint data extents of 'fd',
// a regular file of logical size 'size'. It is obtained by walking
// the file with lseek(2) SEEK_DATA/SEEK_HOLE, which every mainstream
// Linux filesystem supports for regular files. An empty return means
// the file is fully sparse (or empty); callers must treat that as
// "no extents" per spec, not as an error.
func FileExtents(fd *os.File, size int64) ([]Extent, error) {
	if size <= 0 {
		return nil, nil
	}

	var extents []Extent
	raw, err := fd.SyscallConn()
	if err != nil {
		return nil, &CopyError{"extents", fd.Name(), "", err}
	}

	var serr error
	err = raw.Control(func(fdno uintptr) {
		off := int64(0)
		for off < size {
			dataOff, e := unix.Seek(int(fdno), off, unix.SEEK_DATA)
			if e != nil {
				if errors.Is(e, syscall.ENXIO) {
					// no more data after 'off'
					return
				}
				if errors.Is(e, syscall.EINVAL) || errors.Is(e, syscall.ENOTSUP) {
					// filesystem doesn't support SEEK_DATA/SEEK_HOLE;
					// report "no extents" and let the caller fall back
					// to a plain streamed copy.
					extents = nil
					return
				}
				serr = e
				return
			}

			holeOff, e := unix.Seek(int(fdno), dataOff, unix.SEEK_HOLE)
			if e != nil {
				serr = e
				return
			}
			if holeOff > size {
				holeOff = size
			}

			extents = append(extents, Extent{Start: dataOff, Length: holeOff - dataOff})
			off = holeOff
		}
	})
	if err != nil {
		return nil, &CopyError{"extents", fd.Name(), "", err}
	}
	if serr != nil {
		return nil, &CopyError{"extents", fd.Name(), "", serr}
	}
	return extents, nil
}

// AllocateSparse ensures 'fd' has logical size 'size' with no data
// blocks allocated for it; it materializes holes without writing any
// bytes.
func AllocateSparse(fd *os.File, size int64) error {
	if err := fd.Truncate(size); err != nil {
		return &CopyError{"ftruncate", fd.Name(), "", err}
	}
	return nil
}
