package mkv

import (
	"bytes"
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/av/stereo"
	"github.com/deepch/mkvmux/format/mkv/mkvio"
)

type collector struct {
	blocks map[int64][]*av.Block
}

func (self *collector) Push(blk *av.Block) error {
	if self.blocks == nil {
		self.blocks = map[int64][]*av.Block{}
	}
	self.blocks[blk.Track.ID] = append(self.blocks[blk.Track.ID], blk)
	return nil
}

func sampleFile(t *testing.T) []byte {
	var buf seekablebuffer.Buffer
	mux(t, NewMuxer(&buf, MuxerOptions{}))
	return buf.Bytes()
}

func readAll(t *testing.T, b []byte) ([]*av.Track, *collector) {
	d := NewDemuxer(bytes.NewReader(b), int64(len(b)))
	tracks, err := d.Identify()
	require.NoError(t, err)

	out := &collector{}
	for _, tr := range tracks {
		tr.Number = uint64(tr.ID)
		_, err = d.CreatePacketizer(tr, out)
		require.NoError(t, err)
	}
	for {
		status, err := d.Read(false)
		require.NoError(t, err)
		if status == av.Done {
			break
		}
	}
	assert.Equal(t, 100, d.Progress())
	return tracks, out
}

func TestProbe(t *testing.T) {
	b := sampleFile(t)
	assert.True(t, Probe(b))

	bad := append([]byte(nil), b...)
	// DocType "matroska" becomes "matroskb"
	i := bytes.Index(bad, []byte("matroska"))
	require.True(t, i > 0)
	bad[i+7] = 'b'
	assert.False(t, Probe(bad))
	assert.False(t, Probe([]byte("RIFF....AVI ")))
}

func TestRead(t *testing.T) {
	tracks, out := readAll(t, sampleFile(t))
	require.Len(t, tracks, 3)

	video, audio, text := tracks[0], tracks[1], tracks[2]
	assert.Equal(t, av.H264, video.Codec)
	assert.Equal(t, "Main", video.Name)
	assert.Equal(t, "ger", video.Language)
	assert.True(t, video.HasStereoMode)
	assert.Equal(t, stereo.Anaglyph, video.StereoMode)
	assert.Equal(t, 40*time.Millisecond, video.DefaultDuration)
	assert.Equal(t, av.AAC, audio.Codec)
	assert.Equal(t, float64(48000), audio.Audio.SampleRate)
	assert.Equal(t, 2, audio.Audio.Channels)
	assert.Equal(t, av.TEXT, text.Codec)
	assert.False(t, text.Default)

	vb := out.blocks[video.ID]
	require.Len(t, vb, 4)
	for i, blk := range vb {
		assert.Equal(t, time.Duration(i)*40*time.Millisecond, blk.Time)
		assert.Equal(t, i%2 == 0, blk.IsKeyFrame, "frame %d", i)
		assert.Equal(t, []byte{0, 0, 0, 2, 0x41, byte(i)}, blk.Frames[0])
	}

	ab := out.blocks[audio.ID]
	require.Len(t, ab, 4)
	assert.Equal(t, 150*time.Millisecond, ab[3].Time)
	assert.Equal(t, []byte{1, 2, 3}, ab[3].Frames[0])

	tb := out.blocks[text.ID]
	require.Len(t, tb, 1)
	assert.Equal(t, 30*time.Millisecond, tb[0].Time)
	assert.Equal(t, 60*time.Millisecond, tb[0].Duration)
	assert.True(t, tb[0].HasDuration)
	assert.Equal(t, "hello", string(tb[0].Frames[0]))
}

func TestReadTruncated(t *testing.T) {
	b := sampleFile(t)
	_, seg := parse(t, b)
	clusters := seg.All(mkvio.ElementCluster.ID)
	require.Len(t, clusters, 2)

	// cut into the first block of the second cluster
	tracks, out := readAll(t, b[:clusters[1].Offset+20])
	require.Len(t, tracks, 3)
	assert.Len(t, out.blocks[tracks[0].ID], 3)
	assert.Len(t, out.blocks[tracks[1].ID], 3)
}

func TestReadNoTracks(t *testing.T) {
	var buf seekablebuffer.Buffer
	m := NewMuxer(&buf, MuxerOptions{})
	require.NoError(t, m.WriteHeader(nil))
	require.NoError(t, m.Close())

	_, err := NewDemuxer(bytes.NewReader(buf.Bytes()), int64(len(buf.Bytes()))).Identify()
	require.Error(t, err)
}
