// hardlink.go - hardlink tracking and materialization
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

package engine

import (
	"fmt"

	"github.com/opencoff/xcp"
)

// hardlinker tracks source files with Nlink > 1 so that only the
// first reference is actually copied; subsequent references to the
// same (dev, rdev, ino) become os.Link calls against the first
// destination instead of re-copying bytes. The first-seen Info is
// kept (not just its destination path) so a later reference can be
// diagnosed against the original source entry if the link target
// never materializes.
type hardlinker struct {
	// src (dev:rdev:ino) -> first reference's Info, repathed to dst
	first *xcp.FioMap
}

func newHardlinker() *hardlinker {
	return &hardlinker{first: xcp.NewFioMap()}
}

func hardlinkKey(fi *xcp.Info) string {
	return fmt.Sprintf("%d:%d:%d", fi.Dev, fi.Rdev, fi.Ino)
}

// track records 'dst' as a destination for 'src' and reports whether
// a hardlink (rather than a full copy) suffices for it. Returns the
// path to link against when true.
func (h *hardlinker) track(src *xcp.Info, dst string) (orig string, islink bool) {
	if src.Nlink <= 1 || !src.IsRegular() {
		return "", false
	}

	first := src.Clone()
	first.SetPath(dst)

	k := hardlinkKey(src)
	actual, loaded := h.first.LoadOrStore(k, first)
	if !loaded {
		return "", false
	}
	return actual.Path(), true
}
