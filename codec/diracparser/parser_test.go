package diracparser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadUint(t *testing.T) {
	for v := uint32(0); v < 300; v++ {
		w := &bitWriter{}
		w.uint(v)
		w.flag(true)
		pos := 0
		got, err := readUint(w.buf, &pos)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestSequenceHeader(t *testing.T) {
	in := SequenceHeader{
		MajorVersion:    2,
		MinorVersion:    2,
		Profile:         8,
		Level:           0,
		BaseVideoFormat: 12,
		Width:           1920,
		Height:          1080,
		FrameRateNum:    25,
		FrameRateDen:    1,
	}
	out, err := ParseSequenceHeader(in.Marshal())
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, 40*time.Millisecond, out.FrameDuration())

	tr := out.NewTrack(0)
	assert.Equal(t, "V_DIRAC", tr.CodecID)
	assert.Equal(t, 1920, tr.Video.PixelWidth)
	assert.Equal(t, 40*time.Millisecond, tr.DefaultDuration)

	_, err = ParseSequenceHeader([]byte{0x00})
	assert.Error(t, err)
}

func TestParseInfo(t *testing.T) {
	b := MarshalParseInfo(0x0c, 100, 13)
	pi, err := ParseParseInfo(b)
	require.NoError(t, err)
	assert.True(t, pi.IsPicture())
	assert.True(t, pi.IsIntra())
	assert.True(t, pi.IsReference())
	assert.Equal(t, uint32(100), pi.NextOffset)

	pi.Code = 0x09
	assert.False(t, pi.IsIntra())

	assert.Equal(t, 3, FindParseInfo(append([]byte{1, 2, 3}, b...), 0))
	assert.Equal(t, -1, FindParseInfo(b, 1))

	_, err = ParseParseInfo([]byte("BBCD"))
	assert.ErrorIs(t, err, ErrParseInfoInvalid)
}
