// finalize.go - metadata finaliser
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
	"os"

	"github.com/opencoff/xcp"
)

// finaliser applies preserved attributes to a destination entry once
// its bytes are committed: owner, group, mode, timestamps, xattrs,
// ACLs, in that order, then an optional fsync. Each step is
// independent; under MetaRelaxed a failing step (other than mode) is
// recorded as a warning rather than aborting the entry.
type finaliser struct {
	cfg  *Config
	caps *capCache
}

func newFinaliser(cfg *Config, caps *capCache) *finaliser {
	return &finaliser{cfg: cfg, caps: caps}
}

// finalise applies metadata from fi to dst. It returns the first fatal
// error (mode-bit failures, or any failure under MetaStrict); warnings
// are returned as a non-nil slice of *OpError even when the overall
// result is otherwise success.
func (f *finaliser) finalise(dst string, fi *xcp.Info) (warnings []*OpError, fatal error) {
	strict := f.cfg.Meta == MetaStrict

	step := func(name string, fatalOnFail bool, fn func() error) {
		if fatal != nil {
			return
		}
		if err := fn(); err != nil {
			oe := newErr(MetadataError, name, fi.Path(), dst, err)
			if fatalOnFail || strict {
				fatal = oe
				return
			}
			warnings = append(warnings, oe)
		}
	}

	if !f.cfg.NoPerms {
		step("chown", false, func() error {
			return os.Chown(dst, int(fi.Uid), int(fi.Gid))
		})
		step("chmod", true, func() error {
			return os.Chmod(dst, fi.Mode())
		})
	}

	if !f.cfg.NoTimestamps {
		step("utimes", false, func() error {
			return os.Chtimes(dst, fi.Atim, fi.Mtim)
		})
	}

	dev := fi.Dev
	caps := f.caps.get(dev)

	if caps.Xattr {
		step("xattr", false, func() error {
			if err := xcp.ReplaceXattr(dst, fi.Xattr); err != nil {
				f.caps.disableXattr(dev)
				return err
			}
			return nil
		})
	}

	if caps.ACL {
		step("acl", false, func() error {
			if err := xcp.CopyACL(dst, fi.Path()); err != nil {
				f.caps.disableACL(dev)
				return err
			}
			return nil
		})
	}

	if fatal == nil && f.cfg.Fsync {
		step("fsync", false, func() error {
			fd, err := os.Open(dst)
			if err != nil {
				return err
			}
			defer fd.Close()
			return fd.Sync()
		})
	}

	return warnings, fatal
}
