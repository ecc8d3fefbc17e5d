// reflink_linux.go - tri-state reflink/CoW clone attempt on linux
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
	"os"

	"golang.org/x/sys/unix"
)

// ReflinkResult reports the outcome of a reflink clone attempt. It is
// tri-state rather than a bool so the caller can tell "this
// filesystem pair cannot do CoW" from "the clone ioctl itself
// failed", and apply the --reflink=auto/always/never policy without
// the primitive silently falling back on its own.
type ReflinkResult int

const (
	// ReflinkDone means dst now holds a full copy-on-write clone of
	// src; no further data copy is required.
	ReflinkDone ReflinkResult = iota
	// ReflinkUnsupported means the underlying filesystem(s) do not
	// support reflink between these two files; the caller should
	// fall back to a regular copy.
	ReflinkUnsupported
	// ReflinkError means the clone was attempted and failed for a
	// reason other than lack of support (e.g. EPERM); EXDEV counts as
	// lack of support.
	ReflinkError
)

// TryReflink attempts to make 'dst' a reflink (copy-on-write) clone
// of 'src' via the FICLONE ioctl. Both files must already be open;
// 'dst' must be empty. It never falls through to a streamed copy
// itself -- the driver decides what to do with ReflinkUnsupported
// or ReflinkError.
func TryReflink(dst, src *os.File) (ReflinkResult, error) {
	err := unix.IoctlFileClone(int(dst.Fd()), int(src.Fd()))
	if err == nil {
		return ReflinkDone, nil
	}

	if errAny(err, unix.ENOTSUP, unix.EOPNOTSUPP, unix.EXDEV, unix.ENOSYS, unix.EINVAL) {
		return ReflinkUnsupported, nil
	}
	return ReflinkError, &CopyError{"reflink", src.Name(), dst.Name(), err}
}
