// rangecopy_other.go - explicit-offset range copy fallback
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

//go:build !linux

package xcp

import (
	"io"
	"os"
)

// CopyRange copies 'length' bytes from 'src' at offset 'srcOff' to
// 'dst' at offset 'dstOff' using positioned reads and writes. Platforms
// without copy_file_range(2) pay the data transfer through userspace.
func CopyRange(dst, src *os.File, srcOff, dstOff, length int64) (int64, error) {
	if length == 0 {
		return 0, nil
	}

	buf := make([]byte, 256*1024)
	var total int64
	for total < length {
		want := length - total
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		n, err := src.ReadAt(buf[:want], srcOff+total)
		if n > 0 {
			if _, werr := dst.WriteAt(buf[:n], dstOff+total); werr != nil {
				return total, &CopyError{"rangecopy", src.Name(), dst.Name(), werr}
			}
			total += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return total, &CopyError{"rangecopy", src.Name(), dst.Name(), err}
		}
	}
	return total, nil
}
