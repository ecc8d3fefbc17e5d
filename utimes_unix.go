// utimes_unix.go -- set file times for unixish platforms
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

//go:build unix

package xcp

import (
	"fmt"
	"io/fs"
	"os"
)

func utimes(dest string, _ string, info fs.FileInfo) error {
	ii, ok := info.(*Info)
	if !ok {
		return fmt.Errorf("utimes: %s: not an Info", dest)
	}
	if err := os.Chtimes(dest, ii.Atim, ii.Mtim); err != nil {
		return fmt.Errorf("utimes: %w", err)
	}
	return nil
	/*
		tv := []unix.Timeval{
			unix.NsecToTimeval(fi.Atim.Nano()),
			unix.NsecToTimeval(fi.Mtim.Nano()),
		}

		if err := unix.Lutimes(dest, tv); err != nil {
			return fmt.Errorf("utimes: set: %w", err)
		}
		return nil
	*/
}
