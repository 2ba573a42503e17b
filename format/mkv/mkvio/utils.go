package mkvio

import (
	"math"

	"github.com/pkg/errors"
)

// UnknownSize is the data size of an element whose end is implied by its
// successor.
const UnknownSize = uint64(1)<<56 - 1

// MaxVintLen is the longest size coding the writer uses.
const MaxVintLen = 8

func pack(n int, b []byte) uint64 {
	var v uint64
	var k uint64 = (uint64(n) - 1) * 8

	for i := 0; i < n; i++ {
		v |= uint64(b[i]) << k
		k -= 8
	}

	return v
}

func unpack(n int, v uint64) []byte {
	b := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// VintLen is the shortest coding of v as an element size. The all-ones value
// of every length is reserved for unknown sizes.
func VintLen(v uint64) int {
	for n := 1; n <= MaxVintLen; n++ {
		if v < uint64(1)<<(7*uint(n))-1 {
			return n
		}
	}
	return 0
}

// EncodeVint codes v on exactly n bytes.
func EncodeVint(v uint64, n int) ([]byte, error) {
	if n < 1 || n > MaxVintLen || v >= uint64(1)<<(7*uint(n))-1 {
		return nil, errors.Errorf("mkvio: %d does not fit a %d byte vint", v, n)
	}
	b := unpack(n, v)
	b[0] |= 0x80 >> uint(n-1)
	return b, nil
}

// EncodeSize codes v on its shortest length.
func EncodeSize(v uint64) ([]byte, error) {
	n := VintLen(v)
	if n == 0 {
		return nil, errors.Errorf("mkvio: size %d out of range", v)
	}
	return EncodeVint(v, n)
}

// UnknownSizeBytes is the reserved all-ones size coded on n bytes.
func UnknownSizeBytes(n int) []byte {
	b := make([]byte, n)
	b[0] = 0xff >> uint(n-1)
	for i := 1; i < n; i++ {
		b[i] = 0xff
	}
	return b
}

// DecodeVint decodes a size from the start of b and reports its length.
// unknown is set for the reserved all-ones pattern.
func DecodeVint(b []byte) (v uint64, n int, unknown bool, err error) {
	if len(b) == 0 || b[0] == 0 {
		err = ErrParse
		return
	}
	n = 1
	for mask := byte(0x80); b[0]&mask == 0; mask >>= 1 {
		n++
	}
	if len(b) < n {
		err = ErrUnexpectedEOF
		return
	}
	first := b[0] & (0xff >> uint(n))
	v = pack(n, append([]byte{first}, b[1:n]...))
	unknown = v == uint64(1)<<(7*uint(n))-1
	return
}

// IDLen is the coded length of an element ID. IDs keep their marker bits.
func IDLen(id uint32) int {
	switch {
	case id <= 0xff:
		return 1
	case id <= 0xffff:
		return 2
	case id <= 0xffffff:
		return 3
	}
	return 4
}

func EncodeID(id uint32) []byte {
	return unpack(IDLen(id), uint64(id))
}

func uintLen(v uint64) int {
	n := 1
	for v > 0xff {
		v >>= 8
		n++
	}
	return n
}

func intLen(v int64) int {
	n := 1
	for n < 8 {
		lim := int64(1) << (8*uint(n) - 1)
		if v >= -lim && v < lim {
			break
		}
		n++
	}
	return n
}

func encodeFloat(v float64) []byte {
	return unpack(8, math.Float64bits(v))
}
