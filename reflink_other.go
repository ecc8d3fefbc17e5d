// reflink_other.go - reflink fallback for platforms without CoW clone
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

//go:build !linux && !darwin

package xcp

import "os"

// ReflinkResult reports the outcome of a reflink clone attempt.
type ReflinkResult int

const (
	ReflinkDone ReflinkResult = iota
	ReflinkUnsupported
	ReflinkError
)

// TryReflink always reports ReflinkUnsupported; this platform has no
// CoW clone primitive known to this package.
func TryReflink(dst, src *os.File) (ReflinkResult, error) {
	return ReflinkUnsupported, nil
}
