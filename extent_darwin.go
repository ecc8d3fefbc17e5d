// extent_darwin.go - extent and sparse-hole probing on darwin
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

//go:build darwin

package xcp

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Extent is a contiguous byte range of a regular file known to
// contain data.
type Extent struct {
	Start  int64
	Length int64
}

// FileExtents returns the ordered, disjoint data extents of 'fd'
// using lseek(2) SEEK_DATA/SEEK_HOLE, supported by APFS and HFS+.
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
					return
				}
				if errors.Is(e, syscall.EINVAL) || errors.Is(e, syscall.ENOTSUP) {
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

// AllocateSparse ensures 'fd' has logical size 'size' without
// writing any data bytes.
func AllocateSparse(fd *os.File, size int64) error {
	if err := fd.Truncate(size); err != nil {
		return &CopyError{"ftruncate", fd.Name(), "", err}
	}
	return nil
}
