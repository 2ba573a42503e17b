// Package timescale converts between time.Duration and the tick based
// timestamps used by containers.
package timescale

import (
	"math"
	"math/bits"
	"time"
)

// ToScale converts a decode time from time.Duration to a specified timescale
func ToScale(t time.Duration, scale uint32) uint64 {
	hi, lo := bits.Mul64(uint64(t), uint64(scale))
	dts, rem := bits.Div64(hi, lo, uint64(time.Second))
	if rem >= uint64(time.Second/2) {
		// round up
		dts++
	}
	return dts
}

// FromScale converts v units of 1/scale seconds to time.Duration, rounding
// to the nearest nanosecond.
func FromScale(v uint64, scale uint32) time.Duration {
	if scale == 0 {
		return 0
	}
	hi, lo := bits.Mul64(v, uint64(time.Second))
	if hi >= uint64(scale) {
		return time.Duration(math.MaxInt64)
	}
	q, rem := bits.Div64(hi, lo, uint64(scale))
	if rem >= (uint64(scale)+1)/2 {
		q++
	}
	if q > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(q)
}

// Ticks converts t to Matroska ticks of scale nanoseconds each, rounding
// half away from zero.
func Ticks(t time.Duration, scale uint64) int64 {
	if scale <= 1 {
		return int64(t)
	}
	s := int64(scale)
	q, r := int64(t)/s, int64(t)%s
	if r < 0 {
		r = -r
	}
	if 2*r >= s {
		if t < 0 {
			q--
		} else {
			q++
		}
	}
	return q
}

// FromTicks is the inverse of Ticks.
func FromTicks(ticks int64, scale uint64) time.Duration {
	return time.Duration(ticks * int64(scale))
}

// Relative returns the block timecode of t relative to a cluster starting at
// base. ok is false when it does not fit the signed 16 bit field.
func Relative(t, base time.Duration, scale uint64) (rel int16, ok bool) {
	d := Ticks(t, scale) - Ticks(base, scale)
	if d < math.MinInt16 || d > math.MaxInt16 {
		return 0, false
	}
	return int16(d), true
}
