// copy.go - platform independent entry point for copying open files
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

package xcp

import "os"

// copyFile copies the contents of src into dst using the OS specific
// sysCopyFd: on Linux a reflink clone, falling back to
// copy_file_range(2); on other platforms an mmap(2)-based copy.
func copyFile(dst, src *os.File) error {
	return sysCopyFd(dst, src)
}
