package ivf

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepch/mkvmux/av"
)

type collector struct {
	blocks []*av.Block
}

func (self *collector) Push(blk *av.Block) error {
	self.blocks = append(self.blocks, blk)
	return nil
}

func file(fourcc string, frames ...[]byte) []byte {
	hdr := Header{FourCC: fourcc, Width: 640, Height: 360, Rate: 25, Scale: 1, NumFrames: uint32(len(frames))}
	b := hdr.Marshal()
	for i, f := range frames {
		b = append(b, MarshalFrameHeader(len(f), uint64(i))...)
		b = append(b, f...)
	}
	return b
}

func TestIsKeyFrame(t *testing.T) {
	for _, tc := range []struct {
		typ   av.CodecType
		frame []byte
		key   bool
	}{
		{av.VP8, []byte{0x10, 0x02}, true},
		{av.VP8, []byte{0x11, 0x02}, false},
		{av.VP9, []byte{0x82}, true},  // profile 0, key frame
		{av.VP9, []byte{0x86}, false}, // profile 0, inter frame
		{av.VP9, []byte{0x88}, false}, // show existing frame
		{av.VP9, []byte{0xb0}, true},  // profile 3, key frame
		{av.VP9, []byte{0x42}, false}, // bad frame marker
		{av.AV1, []byte{0x12, 0x00}, false},
	} {
		assert.Equal(t, tc.key, IsKeyFrame(tc.typ, tc.frame), "%v %x", tc.typ, tc.frame)
	}
}

func TestRead(t *testing.T) {
	b := file("VP80", []byte{0x10, 1}, []byte{0x11, 2}, []byte{0x11, 3})
	d := NewDemuxer(bytes.NewReader(b), int64(len(b)))
	tracks, err := d.Identify()
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	tr := tracks[0]
	assert.Equal(t, "V_VP8", tr.CodecID)
	assert.Equal(t, 640, tr.Video.PixelWidth)
	assert.Equal(t, 40*time.Millisecond, tr.DefaultDuration)
	tr.Number = 1

	var out collector
	_, err = d.CreatePacketizer(tr, &out)
	require.NoError(t, err)
	for {
		status, err := d.Read(false)
		require.NoError(t, err)
		if status == av.Done {
			break
		}
	}
	require.Len(t, out.blocks, 3)
	assert.True(t, out.blocks[0].IsKeyFrame)
	assert.False(t, out.blocks[1].IsKeyFrame)
	assert.Equal(t, 80*time.Millisecond, out.blocks[2].Time)
	assert.Equal(t, []byte{0x11, 3}, out.blocks[2].Frames[0])
}

func TestAV1Unsupported(t *testing.T) {
	b := file("AV01", []byte{0x12, 0})
	d := NewDemuxer(bytes.NewReader(b), int64(len(b)))
	tracks, err := d.Identify()
	require.NoError(t, err)
	_, err = d.CreatePacketizer(tracks[0], &collector{})
	assert.True(t, av.IsUnsupportedCodec(err))
}

func TestBadHeader(t *testing.T) {
	b := file("VP80")
	b[16] = 0 // rate
	b[17] = 0
	_, err := ParseHeader(b)
	assert.True(t, av.IsFormatError(err))
}
