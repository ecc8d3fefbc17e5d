// checksum.go - optional streaming checksum verifier
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
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// digest accumulates a fast non-cryptographic 64-bit hash over the
// exact bytes written to a destination: the extent sequence in
// order, with hole bytes contributing zeros for the hole length. The
// same algorithm is used to re-read and re-hash the destination after
// FinaliseMetadata; a mismatch is a ChecksumMismatch error.
type digest struct {
	h *xxhash.Digest
}

func newDigest() *digest {
	return &digest{h: xxhash.New()}
}

func (d *digest) writeData(b []byte) {
	d.h.Write(b)
}

// writeHole feeds 'n' zero bytes into the digest without allocating a
// buffer of that size.
func (d *digest) writeHole(n int64) {
	var zero [32 * 1024]byte
	for n > 0 {
		w := int64(len(zero))
		if w > n {
			w = n
		}
		d.h.Write(zero[:w])
		n -= w
	}
}

func (d *digest) sum() uint64 {
	return d.h.Sum64()
}

// verifyFile re-reads 'path' end to end and returns its digest sum,
// for comparison against the sum accumulated during copy.
func verifyFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, newErr(IoError, "verify-open", path, "", err)
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, newErr(IoError, "verify-read", path, "", err)
	}
	return h.Sum64(), nil
}
