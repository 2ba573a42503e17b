package packetizer

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/codec"
	"github.com/deepch/mkvmux/codec/opusparser"
)

type collector struct {
	blocks []*av.Block
}

func (self *collector) Push(blk *av.Block) error {
	self.blocks = append(self.blocks, blk)
	return nil
}

func audioTrack(c av.CodecType, id string) *av.Track {
	t := av.NewTrack(1, av.KindAudio, c, id)
	t.Number = 1
	t.Audio = &av.AudioParams{SampleRate: 48000, Channels: 2, BitDepth: 16}
	return t
}

func TestNewUnsupported(t *testing.T) {
	tr := av.NewTrack(3, av.KindAudio, av.SPEEX, "A_MS/ACM")
	_, err := New(tr, &collector{}, Options{})
	require.Error(t, err)
	assert.True(t, av.IsUnsupportedCodec(err))
}

func TestAVC(t *testing.T) {
	tr := av.NewTrack(1, av.KindVideo, av.H264, codec.IDAVC)
	tr.DefaultDuration = 40 * time.Millisecond
	var out collector
	p, err := New(tr, &out, Options{})
	require.NoError(t, err)

	au := []byte{0, 0, 0, 1, 0x67, 0x42, 0, 0, 0, 1, 0x68, 0xce, 0, 0, 0, 1, 0x65, 0x88}
	require.NoError(t, p.Process(av.Packet{Time: 0, Data: au}))
	require.NoError(t, p.Process(av.Packet{Time: 80 * time.Millisecond, DTS: 40 * time.Millisecond, HasDTS: true, Data: []byte{0, 0, 1, 0x41, 0x9a}}))
	require.NoError(t, p.Process(av.Packet{Time: 40 * time.Millisecond, Data: []byte{0, 0, 1, 0x09, 0xf0}}))

	require.Len(t, out.blocks, 2)
	assert.True(t, out.blocks[0].IsKeyFrame)
	assert.Equal(t, [][]byte{{0, 0, 0, 2, 0x65, 0x88}}, out.blocks[0].Frames)
	assert.Equal(t, 40*time.Millisecond, out.blocks[0].Duration)
	assert.False(t, out.blocks[1].IsKeyFrame)
	assert.Equal(t, 40*time.Millisecond, out.blocks[1].DTS)
	assert.Equal(t, 80*time.Millisecond, out.blocks[1].Time)
}

func TestDerivedDTS(t *testing.T) {
	tr := av.NewTrack(1, av.KindVideo, av.H264, codec.IDAVC)
	tr.Reordered = true
	var out collector
	p, err := New(tr, &out, Options{})
	require.NoError(t, err)

	ms := time.Millisecond
	for _, pts := range []time.Duration{0, 80 * ms, 40 * ms, 160 * ms, 120 * ms} {
		require.NoError(t, p.Process(av.Packet{Time: pts, Data: []byte{0, 0, 1, 0x41, 0x9a}}))
	}
	require.Len(t, out.blocks, 1)
	require.NoError(t, p.Flush())
	require.Len(t, out.blocks, 5)

	want := []time.Duration{0, 40 * ms, 40 * ms, 120 * ms, 120 * ms}
	for i, blk := range out.blocks {
		assert.Equal(t, want[i], blk.DTS)
	}
	assert.Equal(t, 80*ms, out.blocks[1].Time)
	assert.Zero(t, p.(*AVC).Violations())
}

func TestDerivedDTSNotAfterPTS(t *testing.T) {
	tr := av.NewTrack(1, av.KindVideo, av.H264, codec.IDAVC)
	tr.Reordered = true
	var out collector
	p, err := New(tr, &out, Options{})
	require.NoError(t, err)

	ms := time.Millisecond
	// I0 P120 B40 B80 P240 B160 B200
	for _, pts := range []time.Duration{0, 120 * ms, 40 * ms, 80 * ms, 240 * ms, 160 * ms, 200 * ms} {
		require.NoError(t, p.Process(av.Packet{Time: pts, Data: []byte{0, 0, 1, 0x41, 0x9a}}))
	}
	require.NoError(t, p.Flush())
	require.Len(t, out.blocks, 7)

	var last time.Duration
	for i, blk := range out.blocks {
		assert.LessOrEqual(t, blk.DTS, blk.Time, "block %d", i)
		assert.GreaterOrEqual(t, blk.DTS, last, "block %d", i)
		last = blk.DTS
	}
	assert.Equal(t, 40*ms, out.blocks[1].DTS)
	assert.Equal(t, 160*ms, out.blocks[4].DTS)
	assert.Zero(t, p.(*AVC).Violations())
}

func TestOrderViolation(t *testing.T) {
	tr := av.NewTrack(1, av.KindVideo, av.VP8, codec.IDVP8)
	tr.Number = 5
	var out collector
	var logs bytes.Buffer
	log := logrus.New()
	log.SetOutput(&logs)

	p := NewVideo(tr, &out, Options{Log: log})
	require.NoError(t, p.Process(av.Packet{Time: 40 * time.Millisecond, Data: []byte{1}}))
	require.NoError(t, p.Process(av.Packet{Time: 20 * time.Millisecond, Data: []byte{2}}))
	require.NoError(t, p.Process(av.Packet{Time: 60 * time.Millisecond, Data: []byte{3}}))

	assert.Len(t, out.blocks, 3)
	assert.Equal(t, 1, p.Violations())
	assert.Contains(t, logs.String(), "timestamp order violation")

	// reordered codecs are checked on decode order only
	tr.Reordered = true
	p = NewVideo(tr, &out, Options{Log: log})
	require.NoError(t, p.Process(av.Packet{Time: 80 * time.Millisecond, DTS: 0, HasDTS: true, Data: []byte{1}}))
	require.NoError(t, p.Process(av.Packet{Time: 40 * time.Millisecond, DTS: 40 * time.Millisecond, HasDTS: true, Data: []byte{2}}))
	assert.Equal(t, 0, p.Violations())
}

func TestOffset(t *testing.T) {
	tr := av.NewTrack(1, av.KindVideo, av.VP9, codec.IDVP9)
	var out collector
	p, err := New(tr, &out, Options{Offset: time.Second})
	require.NoError(t, err)
	require.NoError(t, p.Process(av.Packet{Time: 40 * time.Millisecond, IsKeyFrame: true, Data: []byte{1}}))
	assert.Equal(t, time.Second+40*time.Millisecond, out.blocks[0].Time)
	assert.Equal(t, time.Second+40*time.Millisecond, out.blocks[0].DTS)
	assert.Same(t, tr, out.blocks[0].Track)
}

func TestAACStripsADTS(t *testing.T) {
	tr := audioTrack(av.AAC, codec.IDAAC)
	tr.DefaultDuration = 1024 * time.Second / 48000
	var out collector
	p, err := New(tr, &out, Options{})
	require.NoError(t, err)

	frame := []byte{0xff, 0xf1, 0x4c, 0x80, 0x01, 0x7f, 0xfc, 0xaa, 0xbb, 0xcc, 0xdd}
	require.NoError(t, p.Process(av.Packet{Data: frame}))
	require.NoError(t, p.Process(av.Packet{Time: tr.DefaultDuration, Data: []byte{0x21, 0x10}}))

	require.Len(t, out.blocks, 2)
	assert.Equal(t, [][]byte{{0xaa, 0xbb, 0xcc, 0xdd}}, out.blocks[0].Frames)
	assert.Equal(t, [][]byte{{0x21, 0x10}}, out.blocks[1].Frames)
	assert.True(t, out.blocks[1].IsKeyFrame)
	assert.Equal(t, tr.DefaultDuration, out.blocks[1].Duration)
}

func TestLacing(t *testing.T) {
	tr := audioTrack(av.PCM, codec.IDPCM)
	var out collector
	p, err := New(tr, &out, Options{Lace: 3})
	require.NoError(t, err)

	frame := make([]byte, 192) // 48 samples, 1ms
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Process(av.Packet{Time: time.Duration(i) * time.Millisecond, Data: frame}))
	}
	require.Len(t, out.blocks, 1)
	assert.Equal(t, av.LacingFixed, out.blocks[0].Lacing)
	assert.Len(t, out.blocks[0].Frames, 3)
	assert.Equal(t, 3*time.Millisecond, out.blocks[0].Duration)

	require.NoError(t, p.Process(av.Packet{Time: 4 * time.Millisecond, Data: frame[:96]}))
	require.NoError(t, p.Flush())
	require.Len(t, out.blocks, 2)
	assert.Equal(t, av.LacingEBML, out.blocks[1].Lacing)
	assert.Equal(t, 3*time.Millisecond/2, out.blocks[1].Duration)
	assert.Equal(t, 3*time.Millisecond, out.blocks[1].Time)

	require.NoError(t, p.Flush())
	assert.Len(t, out.blocks, 2)
}

func TestOpusDuration(t *testing.T) {
	tr, err := opusparser.NewTrack(0, 2, nil)
	require.NoError(t, err)
	var out collector
	p, err := New(tr, &out, Options{})
	require.NoError(t, err)
	require.NoError(t, p.Process(av.Packet{Data: []byte{0xfc, 0xff}}))
	assert.Equal(t, 20*time.Millisecond, out.blocks[0].Duration)
}

func TestText(t *testing.T) {
	tr := av.NewTrack(0, av.KindSubtitle, av.TEXT, codec.IDTextUTF8)
	var out collector
	p, err := New(tr, &out, Options{})
	require.NoError(t, err)
	require.NoError(t, p.Process(av.Packet{Time: time.Second, Duration: 2 * time.Second, Data: []byte("Hello\r\nWorld\r\n")}))
	require.NoError(t, p.Process(av.Packet{Time: 4 * time.Second, Data: []byte("\r\n")}))

	require.Len(t, out.blocks, 1)
	assert.True(t, out.blocks[0].HasDuration)
	assert.Equal(t, "Hello\nWorld", string(out.blocks[0].Frames[0]))
	assert.Equal(t, 3*time.Second, out.blocks[0].End())
}
