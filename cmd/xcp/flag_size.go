// flag_size.go - pflag.Value for a size with a B/K/M/G/T suffix
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

package main

import (
	"fmt"
	"strconv"
	"strings"
)

// SizeValue implements pflag.Value for --block-size: an integer with
// an optional B/K/M/G/T suffix (multiples of 1024), matching spec.md
// §6.2's "block size with B/K/M/G suffix".
type SizeValue int64

func (v *SizeValue) String() string {
	return strconv.FormatInt(int64(*v), 10)
}

func (v *SizeValue) Set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("empty size")
	}

	mult := int64(1)
	suffix := s[len(s)-1]
	switch suffix {
	case 'b', 'B':
		mult = 1
		s = s[:len(s)-1]
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	case 't', 'T':
		mult = 1 << 40
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return fmt.Errorf("invalid size %q: negative", s)
	}

	*v = SizeValue(n * mult)
	return nil
}

func (v *SizeValue) Type() string {
	return "size"
}
