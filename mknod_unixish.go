// mknod_unixish.go -- mknod(2) for linux and darwin
//
// (c) 2021 Sudhi Herle <sudhi@herle.net>
//
// Licensing Terms: GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

//go:build linux || darwin

package xcp

import (
	"fmt"
	"io/fs"
	"syscall"
)

// mknod recreates a fifo, socket, block-dev, or char-dev entry at dest.
// Sys() on our own Info returns the Info itself (not a *syscall.Stat_t,
// as os.FileInfo's does), so the device number has to come from ii.Rdev
// directly; only block/char devices carry a meaningful device number,
// fifos and sockets pass 0.
func mknod(dest string, src string, fi fs.FileInfo) error {
	ii, ok := fi.(*Info)
	if !ok {
		return fmt.Errorf("mknod: %s: not an *Info", dest)
	}

	var rdev int
	var typ uint32
	switch ii.Kind() {
	case KindBlockDev:
		typ, rdev = syscall.S_IFBLK, int(ii.Rdev)
	case KindCharDev:
		typ, rdev = syscall.S_IFCHR, int(ii.Rdev)
	case KindFifo:
		typ = syscall.S_IFIFO
	case KindSocket:
		typ = syscall.S_IFSOCK
	}

	if err := syscall.Mknod(dest, typ|uint32(fi.Mode().Perm()), rdev); err != nil {
		return fmt.Errorf("mknod: %w", err)
	}
	if err := utimes(dest, src, fi); err != nil {
		return err
	}
	return clonexattr(dest, src, fi)
}
