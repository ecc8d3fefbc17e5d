// reflink_darwin.go - tri-state reflink/CoW clone attempt on darwin
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
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// ReflinkResult reports the outcome of a reflink clone attempt.
type ReflinkResult int

const (
	ReflinkDone ReflinkResult = iota
	ReflinkUnsupported
	ReflinkError
)

// TryReflink attempts to make 'dst' an APFS copy-on-write clone of
// 'src' via clonefile(2). Unlike FICLONE, clonefile(2) operates on
// paths, and requires that 'dst' not already exist; 'dst' is closed
// and removed by the caller's cleanup path if this returns anything
// but ReflinkDone. Both open files are only used for their Name().
func TryReflink(dst, src *os.File) (ReflinkResult, error) {
	err := unix.Clonefile(src.Name(), dst.Name(), unix.CLONE_NOFOLLOW)
	if err == nil {
		return ReflinkDone, nil
	}

	if errAny(err, syscall.ENOTSUP, syscall.ENOSYS, syscall.EXDEV) {
		return ReflinkUnsupported, nil
	}
	return ReflinkError, &CopyError{"reflink", src.Name(), dst.Name(), err}
}
