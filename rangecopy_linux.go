// rangecopy_linux.go - explicit-offset range copy for the
// block-parallel driver
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
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// CopyRange copies 'length' bytes from 'src' at offset 'srcOff' to
// 'dst' at offset 'dstOff' without disturbing either file's cursor.
// It is the primitive the block-parallel driver uses to farm
// disjoint byte ranges of one file to a worker pool; unlike
// sysCopyFd, it never touches the whole file and never issues a
// reflink ioctl (copy_file_range(2) itself may share extents on
// filesystems that support it).
//
// It prefers copy_file_range(2) and falls back to ReadAt/WriteAt
// when the source and destination are not eligible (different
// filesystems, pipes, etc).
func CopyRange(dst, src *os.File, srcOff, dstOff, length int64) (int64, error) {
	if length == 0 {
		return 0, nil
	}

	srcFd, err := src.SyscallConn()
	if err != nil {
		return 0, &CopyError{"rangecopy", src.Name(), dst.Name(), err}
	}
	dstFd, err := dst.SyscallConn()
	if err != nil {
		return 0, &CopyError{"rangecopy", src.Name(), dst.Name(), err}
	}

	var total int64
	var cerr error
	err = dstFd.Control(func(dfd uintptr) {
		err = srcFd.Control(func(sfd uintptr) {
			roff, woff := srcOff, dstOff
			remain := length
			for remain > 0 {
				n, e := unix.CopyFileRange(int(sfd), &roff, int(dfd), &woff, int(remain), 0)
				if e != nil {
					if errors.Is(e, unix.EXDEV) || errors.Is(e, unix.ENOSYS) || errors.Is(e, unix.EINVAL) {
						cerr = errUnsupportedRangeCopy
						return
					}
					cerr = e
					return
				}
				if n == 0 {
					break
				}
				total += int64(n)
				remain -= int64(n)
			}
		})
	})
	if err != nil {
		return 0, &CopyError{"rangecopy", src.Name(), dst.Name(), err}
	}

	if cerr == errUnsupportedRangeCopy {
		return copyRangeFallback(dst, src, srcOff, dstOff, length)
	}
	if cerr != nil {
		return total, &CopyError{"rangecopy", src.Name(), dst.Name(), cerr}
	}
	return total, nil
}

var errUnsupportedRangeCopy = errors.New("range copy not supported between these files")

func copyRangeFallback(dst, src *os.File, srcOff, dstOff, length int64) (int64, error) {
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
