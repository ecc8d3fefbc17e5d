// scan.go - fast concurrent source inventory for dry-run reporting
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
	"sync/atomic"

	"github.com/opencoff/xcp"
	"github.com/opencoff/xcp/walk"
)

// scanResult summarizes a source tree without performing any copy.
type scanResult struct {
	Files int64
	Dirs  int64
	Bytes int64
}

// scanSources inventories 'sources' concurrently using the tree
// walker substrate; it never opens a destination and is used to
// populate RunResult counts for a DryRun, where the ordering
// guarantees the real walker provides are unnecessary.
func scanSources(cfg *Config, sources []string) (scanResult, error) {
	var res scanResult

	opt := walk.Options{
		Type:                 walk.ALL,
		FollowSymlinks:       false,
		Excludes:             cfg.Excludes,
		IgnoreDuplicateInode: cfg.IgnoreDuplicateIno,
	}

	var files, dirs, bytes atomic.Int64
	err := walk.WalkFunc(sources, opt, func(fi *xcp.Info) error {
		if fi.Kind() == xcp.KindDir {
			dirs.Add(1)
		} else {
			files.Add(1)
			bytes.Add(fi.Size())
		}
		return nil
	})

	res.Files = files.Load()
	res.Dirs = dirs.Load()
	res.Bytes = bytes.Load()
	if err != nil {
		return res, newErr(WalkerError, "scan", "", "", err)
	}
	return res, nil
}
