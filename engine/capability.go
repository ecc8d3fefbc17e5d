// capability.go - per-filesystem feature support cache
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

import "github.com/puzpuzpuz/xsync/v3"

// capFlags records which optional facilities a destination
// filesystem is known to support. Support is probed once per device
// id and cached for the remainder of the run; callers that observe an
// Unsupported failure downgrade the flag for that device so they
// don't pay the syscall cost again.
type capFlags struct {
	Reflink bool
	Xattr   bool
	ACL     bool
}

// capCache is a process-wide, write-once/read-many map from
// destination device id to its probed capability flags.
type capCache struct {
	m *xsync.MapOf[uint64, capFlags]
}

func newCapCache() *capCache {
	return &capCache{m: xsync.NewMapOf[uint64, capFlags]()}
}

// get returns the cached flags for 'dev', defaulting to "everything
// supported" on first sight; callers downgrade via disable.
func (c *capCache) get(dev uint64) capFlags {
	v, _ := c.m.LoadOrStore(dev, capFlags{Reflink: true, Xattr: true, ACL: true})
	return v
}

func (c *capCache) disableReflink(dev uint64) {
	c.m.Compute(dev, func(old capFlags, loaded bool) (capFlags, bool) {
		old.Reflink = false
		return old, false
	})
}

func (c *capCache) disableXattr(dev uint64) {
	c.m.Compute(dev, func(old capFlags, loaded bool) (capFlags, bool) {
		old.Xattr = false
		return old, false
	})
}

func (c *capCache) disableACL(dev uint64) {
	c.m.Compute(dev, func(old capFlags, loaded bool) (capFlags, bool) {
		old.ACL = false
		return old, false
	})
}
