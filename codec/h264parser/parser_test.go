package h264parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSPS = []byte{
		0x67, 0x64, 0x00, 0x0c, 0xac, 0x3b, 0x50, 0xb0,
		0x4b, 0x42, 0x00, 0x00, 0x03, 0x00, 0x02, 0x00,
		0x00, 0x03, 0x00, 0x3d, 0x08,
	}
	testPPS = []byte{0x68, 0xee, 0x3c, 0x80}
)

func TestSplitNALUs(t *testing.T) {
	annexb := []byte{0, 0, 0, 1, 0x09, 0xf0, 0, 0, 1, 0x65, 0x88, 0x84, 0, 0, 1, 0x41, 0x9a}
	nalus, typ := SplitNALUs(annexb)
	assert.Equal(t, NALU_ANNEXB, typ)
	require.Len(t, nalus, 3)
	assert.True(t, IsKeyFrame(nalus))

	avcc, err := ToAVCC(nalus)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 3, 0x65, 0x88, 0x84, 0, 0, 0, 2, 0x41, 0x9a}, avcc)

	back, typ := SplitNALUs(avcc)
	assert.Equal(t, NALU_AVCC, typ)
	require.Len(t, back, 2)
	assert.False(t, IsKeyFrame(back[1:]))

	_, typ = SplitNALUs([]byte{0x65})
	assert.Equal(t, NALU_RAW, typ)
}

func TestCodecData(t *testing.T) {
	cd, err := NewCodecDataFromSPSAndPPS(testSPS, testPPS)
	require.NoError(t, err)
	assert.Equal(t, 352, cd.Width())
	assert.Equal(t, 288, cd.Height())
	assert.True(t, cd.Reordered())

	rec := cd.AVCDecoderConfRecordBytes()
	assert.Equal(t, byte(1), rec[0])
	assert.Equal(t, byte(0x64), rec[1])
	assert.Equal(t, byte(0xff), rec[4])
	assert.Len(t, rec, cd.RecordInfo.Len())

	again, err := NewCodecDataFromAVCDecoderConfRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, testSPS, again.SPS())
	assert.Equal(t, testPPS, again.PPS())

	tr := cd.NewTrack(4)
	assert.Equal(t, "V_MPEG4/ISO/AVC", tr.CodecID)
	assert.Equal(t, rec, tr.CodecPrivate)
	assert.Equal(t, 352, tr.Video.PixelWidth)

	_, err = NewCodecDataFromAVCDecoderConfRecord([]byte{1, 2})
	assert.ErrorIs(t, err, ErrDecconfInvalid)
}

func TestRelength(t *testing.T) {
	out, err := Relength([]byte{0, 2, 0x41, 0x9a, 0, 1, 0x06}, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 2, 0x41, 0x9a, 0, 0, 0, 1, 0x06}, out)

	_, err = Relength([]byte{0, 5, 0x41}, 2)
	assert.Error(t, err)
	_, err = Relength([]byte{0}, 2)
	assert.Error(t, err)
}
