// extent_other.go - extent probing fallback for platforms without
// SEEK_DATA/SEEK_HOLE
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

//go:build !linux && !darwin

package xcp

import "os"

// Extent is a contiguous byte range of a regular file known to
// contain data.
type Extent struct {
	Start  int64
	Length int64
}

// FileExtents always reports no extents on platforms lacking
// hole-punching introspection; callers fall back to a plain
// streamed copy.
func FileExtents(fd *os.File, size int64) ([]Extent, error) {
	return nil, nil
}

// AllocateSparse ensures 'fd' has logical size 'size'.
func AllocateSparse(fd *os.File, size int64) error {
	if err := fd.Truncate(size); err != nil {
		return &CopyError{"ftruncate", fd.Name(), "", err}
	}
	return nil
}
